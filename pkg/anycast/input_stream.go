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
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oysterpack/anycast/pkg/logging"
	"github.com/oysterpack/anycast/pkg/msgstore"
	"github.com/oysterpack/anycast/pkg/tick"
)

// Outcome is the result of a request reported to the consumer
type Outcome int

const (
	OutcomeValue Outcome = iota + 1
	OutcomeNotFound
	OutcomeExpired
	OutcomeUnreachable
)

func (a Outcome) String() string {
	switch a {
	case OutcomeValue:
		return "VALUE"
	case OutcomeNotFound:
		return "NOT_FOUND"
	case OutcomeExpired:
		return "EXPIRED"
	case OutcomeUnreachable:
		return "UNREACHABLE"
	default:
		return "UNKNOWN"
	}
}

// Err maps the outcome to the error reported to the consumer. OutcomeValue maps to nil.
func (a Outcome) Err() error {
	switch a {
	case OutcomeNotFound:
		return ErrMessageNotFound
	case OutcomeExpired:
		return ErrRequestExpired
	case OutcomeUnreachable:
		return ErrRemoteUnreachable
	default:
		return nil
	}
}

// Notification reports the outcome of a request
type Notification struct {
	Stream  StreamID
	Tick    tick.Tick
	Outcome Outcome
	// Message is only set for OutcomeValue
	Message *msgstore.Message
}

// Listener is notified of request outcomes. It is never invoked while the stream's lock is held.
type Listener func(Notification)

// InputStream is the requester side of an anycast stream. It requests messages for a destination that is held by
// a single remote node.
//
// A tick is held by at most one of the request and value collections. Responses are matched to records by tick,
// which means they may arrive in any order. Responses for ticks that are not outstanding are discarded.
type InputStream struct {
	mutex sync.Mutex

	id          StreamID
	remote      NodeID
	destination string

	ticks       *tick.Generator
	requests    map[tick.Tick]*RequestRecord
	values      map[tick.Tick]*ValueRecord
	expiry      expiryQueue
	latestEpoch uint64

	handler  *RequestHandler
	listener Listener

	finished bool
	closed   bool
}

// NewInputStream creates a stream that requests messages for the destination from the remote node
func NewInputStream(id StreamID, remote NodeID, destination string, handler *RequestHandler, listener Listener) (*InputStream, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, ErrDestinationBlank
	}
	return &InputStream{
		id:          id,
		remote:      remote,
		destination: destination,
		ticks:       tick.NewGenerator(0),
		requests:    map[tick.Tick]*RequestRecord{},
		values:      map[tick.Tick]*ValueRecord{},
		handler:     handler,
		listener:    listener,
	}, nil
}

func (a *InputStream) ID() StreamID {
	return a.id
}

func (a *InputStream) Remote() NodeID {
	return a.remote
}

func (a *InputStream) Destination() string {
	return a.destination
}

// RequestNext issues a request for the next message matching the criteria, and returns its tick without waiting
// for the reply. The outcome is reported to the listener.
//
// If the request cannot be sent, then the request is removed and ErrRemoteUnreachable is returned.
func (a *InputStream) RequestNext(criteria []string, timeout time.Duration) (tick.Tick, error) {
	if _, err := ParseCriteria(criteria); err != nil {
		return 0, err
	}

	a.mutex.Lock()
	if a.closed {
		a.mutex.Unlock()
		return 0, ErrStreamClosed
	}
	now := a.handler.now()
	rec := &RequestRecord{
		Tick:        a.ticks.Next(),
		IssueTime:   now,
		Timeout:     timeout,
		AckingEpoch: a.latestEpoch,
		Criteria:    append([]string(nil), criteria...),
		lastSent:    now,
	}
	a.addRequest(rec)
	t := rec.Tick
	msg := requestMessage(rec)
	a.mutex.Unlock()

	a.handler.metrics.requests.Inc()
	if err := a.handler.sendRequest(a, msg); err != nil {
		a.mutex.Lock()
		if !a.closed && a.requests[t] == rec {
			a.removeRequest(rec)
		}
		a.mutex.Unlock()
		return 0, &StreamError{Stream: a.id, Tick: t, Err: err}
	}
	return t, nil
}

// requestMessage must be called while holding the lock
func requestMessage(rec *RequestRecord) *RequestMessage {
	return &RequestMessage{
		Tick:        rec.Tick,
		Criteria:    rec.Criteria,
		AckingEpoch: rec.AckingEpoch,
		Timeout:     rec.Timeout,
	}
}

// must be called while holding the lock
func (a *InputStream) addRequest(rec *RequestRecord) {
	a.requests[rec.Tick] = rec
	a.expiry.push(rec)
	a.handler.metrics.outstanding.Inc()
}

// must be called while holding the lock
func (a *InputStream) removeRequest(rec *RequestRecord) {
	delete(a.requests, rec.Tick)
	a.expiry.remove(rec)
	a.handler.metrics.outstanding.Dec()
}

// reissue replaces the record with a new record for the same tick, acknowledged by the specified epoch.
// Must be called while holding the lock.
func (a *InputStream) reissue(rec *RequestRecord, epoch uint64) *RequestRecord {
	fresh := &RequestRecord{
		Tick:        rec.Tick,
		IssueTime:   rec.IssueTime,
		Timeout:     rec.Timeout,
		AckingEpoch: epoch,
		Criteria:    rec.Criteria,
		lastSent:    a.handler.now(),
	}
	a.requests[rec.Tick] = fresh
	a.expiry.remove(rec)
	a.expiry.push(fresh)
	a.handler.metrics.reissued.Inc()
	REQUEST_REISSUED.Log(logger.Info()).
		Str(logging.STREAM, string(a.id)).
		Uint64(TICK, uint64(rec.Tick)).
		Uint64(EPOCH, epoch).
		Msg("")
	return fresh
}

// must be called while holding the lock
func (a *InputStream) updateEpoch(epoch uint64) {
	if epoch > a.latestEpoch {
		a.latestEpoch = epoch
	}
}

// resend sends the request message async. The message must have been built from rec while holding the lock.
// If the remote is unreachable and rec is still the live record for the tick, the request is removed and the
// consumer is notified.
func (a *InputStream) resend(rec *RequestRecord, msg *RequestMessage) {
	go func() {
		if err := a.handler.sendRequest(a, msg); err != nil {
			a.unreachable(msg.Tick, rec)
		}
	}()
}

func (a *InputStream) unreachable(t tick.Tick, rec *RequestRecord) {
	a.mutex.Lock()
	if a.closed || a.requests[t] != rec {
		a.mutex.Unlock()
		return
	}
	a.removeRequest(rec)
	listener := a.listener
	a.mutex.Unlock()
	notify(listener, Notification{Stream: a.id, Tick: t, Outcome: OutcomeUnreachable})
}

// reject tells the remote node to drop the ticks, which releases any message it reserved for them.
// It does not wait for the sends.
func (a *InputStream) reject(ticks ...tick.Tick) {
	if len(ticks) == 0 {
		return
	}
	go func() {
		for _, t := range ticks {
			if a.handler.sendReject(a, t) == nil {
				REJECT_SENT.Log(logger.Debug()).Str(logging.STREAM, string(a.id)).Uint64(TICK, uint64(t)).Msg("")
			}
		}
	}()
}

func notify(listener Listener, notifications ...Notification) {
	if listener == nil {
		return
	}
	for _, n := range notifications {
		listener(n)
	}
}

func (a *InputStream) violation(t tick.Tick, msgType MessageType, reason string) {
	a.handler.metrics.violations.Inc()
	PROTOCOL_VIOLATION.Log(logger.Debug()).
		Str(logging.STREAM, string(a.id)).
		Uint64(TICK, uint64(t)).
		Str(MSG_TYPE, string(msgType)).
		Msg(reason)
}

// OnValueReceived moves the tick from the requested to the valued collection.
//
// Duplicate values are discarded. A value for a tick that is not outstanding, e.g., one that already expired or was
// delivered, is discarded and rejected, so that the remote node releases the message it reserved for the tick.
// A value resolved by an epoch older than the latest known remote epoch is never accepted: the request is reissued
// against the latest epoch.
func (a *InputStream) OnValueReceived(msg *ValueMessage) {
	a.mutex.Lock()
	if a.closed {
		a.mutex.Unlock()
		return
	}
	rec := a.requests[msg.Tick]
	if rec == nil {
		_, duplicate := a.values[msg.Tick]
		a.mutex.Unlock()
		if duplicate {
			VALUE_DISCARDED.Log(logger.Debug()).Str(logging.STREAM, string(a.id)).Uint64(TICK, uint64(msg.Tick)).Msg("duplicate")
			return
		}
		a.violation(msg.Tick, VALUE, "tick is not outstanding")
		a.reject(msg.Tick)
		return
	}
	if epoch := maxEpoch(a.latestEpoch, rec.AckingEpoch); msg.Epoch < epoch {
		fresh := a.reissue(rec, epoch)
		req := requestMessage(fresh)
		a.mutex.Unlock()
		VALUE_DISCARDED.Log(logger.Info()).
			Str(logging.STREAM, string(a.id)).
			Uint64(TICK, uint64(msg.Tick)).
			Uint64(EPOCH, msg.Epoch).
			Msg("stale epoch")
		a.resend(fresh, req)
		return
	}
	a.updateEpoch(msg.Epoch)
	a.removeRequest(rec)
	a.values[msg.Tick] = newValueRecord(rec, msg)
	listener := a.listener
	roundTrip := a.handler.now().Sub(rec.IssueTime)
	a.mutex.Unlock()

	a.handler.metrics.values.Inc()
	a.handler.metrics.roundTrip.Observe(roundTrip.Seconds())
	VALUE_RECEIVED.Log(logger.Debug()).Str(logging.STREAM, string(a.id)).Uint64(TICK, uint64(msg.Tick)).Msg("")
	notify(listener, Notification{Stream: a.id, Tick: msg.Tick, Outcome: OutcomeValue, Message: msg.Message})
}

func maxEpoch(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// OnNotFound removes the request and reports OutcomeNotFound
func (a *InputStream) OnNotFound(msg *NotFoundMessage) {
	a.mutex.Lock()
	if a.closed {
		a.mutex.Unlock()
		return
	}
	rec := a.requests[msg.Tick]
	if rec == nil {
		a.mutex.Unlock()
		a.violation(msg.Tick, NOT_FOUND, "tick is not outstanding")
		return
	}
	a.removeRequest(rec)
	listener := a.listener
	a.mutex.Unlock()

	a.handler.metrics.notFound.Inc()
	notify(listener, Notification{Stream: a.id, Tick: msg.Tick, Outcome: OutcomeNotFound})
}

// OnReissueRequired reissues the request against the remote's current epoch
func (a *InputStream) OnReissueRequired(msg *ReissueRequiredMessage) {
	a.mutex.Lock()
	if a.closed {
		a.mutex.Unlock()
		return
	}
	if msg.CurrentEpoch < a.latestEpoch {
		a.mutex.Unlock()
		a.violation(msg.Tick, REISSUE_REQUIRED, "stale epoch")
		return
	}
	a.updateEpoch(msg.CurrentEpoch)
	rec := a.requests[msg.Tick]
	if rec == nil {
		a.mutex.Unlock()
		a.violation(msg.Tick, REISSUE_REQUIRED, "tick is not outstanding")
		return
	}
	if rec.AckingEpoch == msg.CurrentEpoch {
		// already reissued
		a.mutex.Unlock()
		return
	}
	fresh := a.reissue(rec, msg.CurrentEpoch)
	req := requestMessage(fresh)
	a.mutex.Unlock()
	a.resend(fresh, req)
}

// OnRequestAck records the acking epoch. The request is then repeated at the slowed interval.
func (a *InputStream) OnRequestAck(msg *RequestAckMessage) {
	a.mutex.Lock()
	if a.closed {
		a.mutex.Unlock()
		return
	}
	if msg.Epoch < a.latestEpoch {
		a.mutex.Unlock()
		a.violation(msg.Tick, REQUEST_ACK, "stale epoch")
		return
	}
	a.updateEpoch(msg.Epoch)
	rec := a.requests[msg.Tick]
	if rec == nil {
		a.mutex.Unlock()
		a.violation(msg.Tick, REQUEST_ACK, "tick is not outstanding")
		return
	}
	rec.AckingEpoch = msg.Epoch
	rec.Slowed = true
	a.mutex.Unlock()
}

// OnTimeoutSweep removes the requests whose completion time is at or before now, reports them as expired, and
// rejects them on the remote node. Requests with an infinite timeout never expire. The expired ticks are returned
// in expiry order.
func (a *InputStream) OnTimeoutSweep(now time.Time) []tick.Tick {
	a.mutex.Lock()
	if a.closed {
		a.mutex.Unlock()
		return nil
	}
	var expired []tick.Tick
	for _, rec := range a.expiry.popExpired(now) {
		if a.requests[rec.Tick] != rec {
			continue
		}
		a.removeRequest(rec)
		expired = append(expired, rec.Tick)
	}
	listener := a.listener
	a.mutex.Unlock()

	if len(expired) == 0 {
		return nil
	}
	a.handler.metrics.expired.Add(float64(len(expired)))
	notifications := make([]Notification, len(expired))
	for i, t := range expired {
		REQUEST_EXPIRED.Log(logger.Info()).Str(logging.STREAM, string(a.id)).Uint64(TICK, uint64(t)).Msg("")
		notifications[i] = Notification{Stream: a.id, Tick: t, Outcome: OutcomeExpired}
	}
	notify(listener, notifications...)
	a.reject(expired...)
	return expired
}

// Repeat re-sends the outstanding requests that have not been sent within their repeat interval, using the same
// tick. Requests that have not been acknowledged by the responder are repeated at the eager interval. The repeated
// ticks are returned in tick order.
func (a *InputStream) Repeat(now time.Time) []tick.Tick {
	a.mutex.Lock()
	if a.closed {
		a.mutex.Unlock()
		return nil
	}
	settings := a.handler.settings
	type repeat struct {
		rec *RequestRecord
		msg *RequestMessage
	}
	var repeats []repeat
	for _, rec := range a.requests {
		interval := settings.EagerRepeatInterval
		if rec.Slowed {
			interval = settings.SlowedRepeatInterval
		}
		if now.Sub(rec.lastSent) >= interval {
			rec.lastSent = now
			repeats = append(repeats, repeat{rec, requestMessage(rec)})
		}
	}
	a.mutex.Unlock()

	sort.Slice(repeats, func(i, j int) bool { return repeats[i].msg.Tick < repeats[j].msg.Tick })
	ticks := make([]tick.Tick, len(repeats))
	for i, r := range repeats {
		ticks[i] = r.msg.Tick
		REQUEST_REPEATED.Log(logger.Debug()).Str(logging.STREAM, string(a.id)).Uint64(TICK, uint64(r.msg.Tick)).Msg("")
		a.resend(r.rec, r.msg)
	}
	return ticks
}

// Deliver marks the value as delivered to the consumer, and acknowledges the delivery to the remote node.
// Once acknowledged, the value is removed.
//
// If the acknowledgement cannot be sent, then the value is discarded and the tick is requested again. The error
// wraps ErrRemoteUnreachable in that case.
func (a *InputStream) Deliver(t tick.Tick) (*msgstore.Message, error) {
	a.mutex.Lock()
	if a.closed {
		a.mutex.Unlock()
		return nil, ErrStreamClosed
	}
	value := a.values[t]
	if value == nil {
		a.mutex.Unlock()
		return nil, &StreamError{Stream: a.id, Tick: t, Err: ErrTickNotFound}
	}
	msg := value.Message
	if value.Delivered {
		a.mutex.Unlock()
		return msg, nil
	}
	value.Delivered = true
	a.mutex.Unlock()

	err := a.handler.sendAck(a, t)

	a.mutex.Lock()
	if a.closed || a.values[t] != value {
		a.mutex.Unlock()
		if err != nil {
			return nil, &StreamError{Stream: a.id, Tick: t, Err: err}
		}
		return msg, nil
	}
	delete(a.values, t)
	if err == nil {
		a.mutex.Unlock()
		return msg, nil
	}
	rec := value.toRequest()
	rec.AckingEpoch = maxEpoch(rec.AckingEpoch, a.latestEpoch)
	rec.lastSent = a.handler.now()
	a.addRequest(rec)
	req := requestMessage(rec)
	a.mutex.Unlock()

	ACK_FAILED.Log(logger.Warn()).Str(logging.STREAM, string(a.id)).Uint64(TICK, uint64(t)).Err(err).Msg("")
	a.resend(rec, req)
	return nil, &StreamError{Stream: a.id, Tick: t, Err: err}
}

// Reject cancels the tick, whether it is requested or valued but not yet delivered, and notifies the remote node so
// that it can drop the request or release the reserved message.
func (a *InputStream) Reject(t tick.Tick) error {
	a.mutex.Lock()
	if a.closed {
		a.mutex.Unlock()
		return ErrStreamClosed
	}
	if rec := a.requests[t]; rec != nil {
		a.removeRequest(rec)
	} else if value := a.values[t]; value != nil && !value.Delivered {
		delete(a.values, t)
	} else {
		a.mutex.Unlock()
		return &StreamError{Stream: a.id, Tick: t, Err: ErrTickNotFound}
	}
	a.mutex.Unlock()

	if err := a.handler.sendReject(a, t); err != nil {
		return &StreamError{Stream: a.id, Tick: t, Err: err}
	}
	return nil
}

// Finished detaches the consumer. Outcomes are no longer reported, but the stream's records are kept.
func (a *InputStream) Finished() {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.finished = true
	a.listener = nil
}

// DereferenceControllable tears down the stream. All records are zeroed and dropped. Responses that arrive
// afterwards are discarded, and RequestNext returns ErrStreamClosed.
func (a *InputStream) DereferenceControllable() {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	a.handler.metrics.outstanding.Sub(float64(len(a.requests)))
	for _, rec := range a.requests {
		rec.dereference()
	}
	for _, value := range a.values {
		value.dereference()
	}
	a.requests = nil
	a.values = nil
	a.expiry = nil
	a.listener = nil
	a.finished = true
	STREAM_CLOSED.Log(logger.Info()).Str(logging.STREAM, string(a.id)).Str(REMOTE, string(a.remote)).Msg("")
}

// Closed returns true once the stream has been dereferenced
func (a *InputStream) Closed() bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.closed
}

// IsFinished returns true once the consumer has been detached
func (a *InputStream) IsFinished() bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.finished
}

// LatestTick returns the last tick that was issued
func (a *InputStream) LatestTick() tick.Tick {
	return a.ticks.Latest()
}

// LatestEpoch returns the latest remote epoch seen
func (a *InputStream) LatestEpoch() uint64 {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.latestEpoch
}

// RequestCount returns the number of outstanding requests
func (a *InputStream) RequestCount() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return len(a.requests)
}

// ValueCount returns the number of values held
func (a *InputStream) ValueCount() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return len(a.values)
}

// CountAllMessagesOnStream returns the number of ticks in flight, i.e., requested or valued
func (a *InputStream) CountAllMessagesOnStream() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return len(a.requests) + len(a.values)
}

// Request returns a snapshot of the outstanding request for the tick
func (a *InputStream) Request(t tick.Tick) (*RecordInfo, bool) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if rec := a.requests[t]; rec != nil {
		return rec.Info(), true
	}
	return nil, false
}

// Value returns a snapshot of the value for the tick
func (a *InputStream) Value(t tick.Tick) (*RecordInfo, bool) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if value := a.values[t]; value != nil {
		return value.Info(), true
	}
	return nil, false
}

// RequestIterator iterates over the outstanding requests in tick order.
// Removing an entry removes the request and rejects the tick on the remote node.
func (a *InputStream) RequestIterator() *Iterator {
	a.mutex.Lock()
	ticks := make([]tick.Tick, 0, len(a.requests))
	for t := range a.requests {
		ticks = append(ticks, t)
	}
	a.mutex.Unlock()
	return newIterator(tickKeys(ticks), func(key string) (*RecordInfo, bool) {
		t, err := tick.Parse(key)
		if err != nil {
			return nil, false
		}
		return a.Request(t)
	}, func(key string) bool {
		t, err := tick.Parse(key)
		if err != nil {
			return false
		}
		a.mutex.Lock()
		rec := a.requests[t]
		if rec == nil {
			a.mutex.Unlock()
			return false
		}
		a.removeRequest(rec)
		a.mutex.Unlock()
		a.reject(t)
		return true
	})
}

// ValueIterator iterates over the values awaiting delivery in tick order.
// Removing an undelivered value rejects the tick on the remote node, which releases the reserved message.
func (a *InputStream) ValueIterator() *Iterator {
	a.mutex.Lock()
	ticks := make([]tick.Tick, 0, len(a.values))
	for t := range a.values {
		ticks = append(ticks, t)
	}
	a.mutex.Unlock()
	return newIterator(tickKeys(ticks), func(key string) (*RecordInfo, bool) {
		t, err := tick.Parse(key)
		if err != nil {
			return nil, false
		}
		return a.Value(t)
	}, func(key string) bool {
		t, err := tick.Parse(key)
		if err != nil {
			return false
		}
		a.mutex.Lock()
		value := a.values[t]
		if value == nil {
			a.mutex.Unlock()
			return false
		}
		delete(a.values, t)
		delivered := value.Delivered
		a.mutex.Unlock()
		if !delivered {
			a.reject(t)
		}
		return true
	})
}

func tickKeys(ticks []tick.Tick) []string {
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })
	keys := make([]string, len(ticks))
	for i, t := range ticks {
		keys[i] = t.String()
	}
	return keys
}
