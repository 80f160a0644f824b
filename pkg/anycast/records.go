// Copyright (c) 2017 OysterPack, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package anycast

import (
	"container/heap"
	"time"

	"github.com/oysterpack/anycast/pkg/msgstore"
	"github.com/oysterpack/anycast/pkg/tick"
)

// RecordInfo is the read-only view of a record exposed to management tooling.
// Times are unix milliseconds. Timeout is in milliseconds. tick.UndefinedTime is used for an infinite timeout and
// for the completion time of a request that never expires.
type RecordInfo struct {
	ID             string
	IssueTime      int64
	Timeout        int64
	CompletionTime int64
	AckingEpoch    uint64
	Criteria       []string

	// only set for values
	Priority    int
	Reliability msgstore.Reliability
	Delivered   bool
}

// RequestRecord is an outstanding request for the message at a tick
type RequestRecord struct {
	Tick      tick.Tick
	IssueTime time.Time
	// Timeout is tick.InfiniteTimeout, or any negative duration, if the request never expires
	Timeout time.Duration
	// AckingEpoch is the remote epoch that acknowledged the request. Zero means it has not been acknowledged.
	AckingEpoch uint64
	Criteria    []string

	// Slowed is set once the responder acknowledged the request. Slowed requests are repeated less often.
	Slowed   bool
	lastSent time.Time
	// position in the expiry queue
	index int
}

func (a *RequestRecord) expires() bool {
	return a.Timeout >= 0
}

func (a *RequestRecord) completion() time.Time {
	return a.IssueTime.Add(a.Timeout)
}

// CompletionTime returns issue time + timeout as unix millis, or tick.UndefinedTime if the request never expires
func (a *RequestRecord) CompletionTime() int64 {
	return completionTime(a.IssueTime, a.Timeout)
}

// Info returns a snapshot of the record
func (a *RequestRecord) Info() *RecordInfo {
	return &RecordInfo{
		ID:             a.Tick.String(),
		IssueTime:      unixMillis(a.IssueTime),
		Timeout:        timeoutMillis(a.Timeout),
		CompletionTime: a.CompletionTime(),
		AckingEpoch:    a.AckingEpoch,
		Criteria:       append([]string(nil), a.Criteria...),
	}
}

func (a *RequestRecord) dereference() {
	*a = RequestRecord{}
}

// ValueRecord is a message value received for a previously requested tick.
type ValueRecord struct {
	Tick            tick.Tick
	IssueTime       time.Time
	OriginalTimeout time.Duration
	AckingEpoch     uint64
	Criteria        []string
	Priority        int
	Reliability     msgstore.Reliability
	Delivered       bool

	Message *msgstore.Message
	// Epoch is the remote epoch that resolved the value
	Epoch uint64
}

func newValueRecord(req *RequestRecord, msg *ValueMessage) *ValueRecord {
	return &ValueRecord{
		Tick:            req.Tick,
		IssueTime:       req.IssueTime,
		OriginalTimeout: req.Timeout,
		AckingEpoch:     msg.Epoch,
		Criteria:        req.Criteria,
		Priority:        msg.Priority,
		Reliability:     msg.Reliability,
		Message:         msg.Message,
		Epoch:           msg.Epoch,
	}
}

// CompletionTime is derived from the originating request: issue time + original timeout.
func (a *ValueRecord) CompletionTime() int64 {
	return completionTime(a.IssueTime, a.OriginalTimeout)
}

// Info returns a snapshot of the record
func (a *ValueRecord) Info() *RecordInfo {
	return &RecordInfo{
		ID:             a.Tick.String(),
		IssueTime:      unixMillis(a.IssueTime),
		Timeout:        timeoutMillis(a.OriginalTimeout),
		CompletionTime: a.CompletionTime(),
		AckingEpoch:    a.AckingEpoch,
		Criteria:       append([]string(nil), a.Criteria...),
		Priority:       a.Priority,
		Reliability:    a.Reliability,
		Delivered:      a.Delivered,
	}
}

// toRequest is used when the delivery acknowledgement fails and the tick must be requested again
func (a *ValueRecord) toRequest() *RequestRecord {
	return &RequestRecord{
		Tick:        a.Tick,
		IssueTime:   a.IssueTime,
		Timeout:     a.OriginalTimeout,
		AckingEpoch: a.AckingEpoch,
		Criteria:    a.Criteria,
	}
}

func (a *ValueRecord) dereference() {
	*a = ValueRecord{}
}

func completionTime(issueTime time.Time, timeout time.Duration) int64 {
	if timeout < 0 {
		return tick.UndefinedTime
	}
	return unixMillis(issueTime.Add(timeout))
}

func unixMillis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

func timeoutMillis(timeout time.Duration) int64 {
	if timeout < 0 {
		return tick.UndefinedTime
	}
	return int64(timeout / time.Millisecond)
}

// expiryQueue orders requests by completion time. A record is removed from the queue when its request is removed.
type expiryQueue []*RequestRecord

func (a expiryQueue) Len() int { return len(a) }

func (a expiryQueue) Less(i, j int) bool {
	return a[i].completion().Before(a[j].completion())
}

func (a expiryQueue) Swap(i, j int) {
	a[i], a[j] = a[j], a[i]
	a[i].index = i
	a[j].index = j
}

func (a *expiryQueue) Push(x interface{}) {
	rec := x.(*RequestRecord)
	rec.index = len(*a)
	*a = append(*a, rec)
}

func (a *expiryQueue) Pop() interface{} {
	old := *a
	n := len(old)
	rec := old[n-1]
	old[n-1] = nil
	rec.index = -1
	*a = old[:n-1]
	return rec
}

func (a *expiryQueue) push(rec *RequestRecord) {
	if rec.expires() {
		heap.Push(a, rec)
	}
}

// remove is a no-op if the record is not queued
func (a *expiryQueue) remove(rec *RequestRecord) {
	if i := rec.index; i >= 0 && i < len(*a) && (*a)[i] == rec {
		heap.Remove(a, i)
	}
}

// popExpired pops the records whose completion time is at or before now
func (a *expiryQueue) popExpired(now time.Time) []*RequestRecord {
	var expired []*RequestRecord
	for a.Len() > 0 && !(*a)[0].completion().After(now) {
		expired = append(expired, heap.Pop(a).(*RequestRecord))
	}
	return expired
}
