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
	"sync"
	"time"

	"github.com/oysterpack/anycast/pkg/logging"
	"github.com/oysterpack/anycast/pkg/msgstore"
	"github.com/oysterpack/anycast/pkg/tick"
)

// ResolutionKind is the kind of answer to a request
type ResolutionKind int

const (
	ResolvedValue ResolutionKind = iota + 1
	ResolvedNotFound
	// ResolvedPending means no matching message exists yet. The tick is answered when Notify finds a message,
	// or with NotFound when the request expires.
	ResolvedPending
	ResolvedReissueRequired
)

func (a ResolutionKind) String() string {
	switch a {
	case ResolvedValue:
		return "VALUE"
	case ResolvedNotFound:
		return "NOT_FOUND"
	case ResolvedPending:
		return "PENDING"
	case ResolvedReissueRequired:
		return "REISSUE_REQUIRED"
	default:
		return "UNKNOWN"
	}
}

// Resolution is the answer to a request
type Resolution struct {
	Kind  ResolutionKind
	Tick  tick.Tick
	Epoch uint64
	// Message is the reserved message when Kind is ResolvedValue
	Message *msgstore.Message
}

type outputTick struct {
	tick      tick.Tick
	criteria  []string
	match     msgstore.Matcher
	issueTime time.Time
	timeout   time.Duration

	valued bool
	// seq of the reserved message
	seq uint64
}

func (a *outputTick) expired(now time.Time) bool {
	return !a.valued && a.timeout >= 0 && !a.issueTime.Add(a.timeout).After(now)
}

// OutputStream is the responder side of an anycast stream. It answers the requests of one remote requester stream
// for a destination held by the local message store.
//
// Messages are reserved for the requester when a tick is resolved to a value. The reservation is completed when
// the requester acknowledges delivery, and released when the tick is rejected or the stream is closed.
type OutputStream struct {
	mutex sync.Mutex

	key         StreamKey
	destination string
	epoch       uint64
	store       msgstore.Store

	ticks    map[tick.Tick]*outputTick
	sessions map[string]*BrowseSession

	totalRequests uint64
	attached      time.Time
	lastActivity  time.Time
	now           func() time.Time

	closed bool
}

// NewOutputStream creates the responder stream for the requester stream key
func NewOutputStream(key StreamKey, destination string, epoch uint64, store msgstore.Store, now func() time.Time) *OutputStream {
	if now == nil {
		now = time.Now
	}
	attached := now()
	return &OutputStream{
		key:          key,
		destination:  destination,
		epoch:        epoch,
		store:        store,
		ticks:        map[tick.Tick]*outputTick{},
		sessions:     map[string]*BrowseSession{},
		attached:     attached,
		lastActivity: attached,
		now:          now,
	}
}

func (a *OutputStream) Key() StreamKey {
	return a.key
}

func (a *OutputStream) Destination() string {
	return a.destination
}

func (a *OutputStream) Epoch() uint64 {
	return a.epoch
}

func (a *OutputStream) owner(t tick.Tick) string {
	return a.key.String() + "/" + t.String()
}

// Resolve answers the request.
//
// A request acknowledged by a different epoch is answered with ReissueRequired. A repeated request is answered
// with the same value, or Pending if it is still waiting for a message. Otherwise the oldest unreserved matching
// message is reserved. If there is none, the tick is parked as Pending, unless the request's timeout is
// tick.NoWait, in which case it is answered with NotFound.
func (a *OutputStream) Resolve(req *RequestMessage) (Resolution, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.closed {
		return Resolution{}, ErrStreamClosed
	}
	a.totalRequests++
	now := a.now()
	a.lastActivity = now
	resolution := Resolution{Tick: req.Tick, Epoch: a.epoch}

	if req.AckingEpoch != 0 && req.AckingEpoch != a.epoch {
		resolution.Kind = ResolvedReissueRequired
		return resolution, nil
	}

	if ot := a.ticks[req.Tick]; ot != nil {
		if !ot.valued {
			resolution.Kind = ResolvedPending
			return resolution, nil
		}
		msg, err := a.store.Get(a.destination, ot.seq)
		if err == msgstore.ErrMessageNotFound {
			delete(a.ticks, req.Tick)
			resolution.Kind = ResolvedNotFound
			return resolution, nil
		}
		if err != nil {
			return Resolution{}, err
		}
		resolution.Kind = ResolvedValue
		resolution.Message = msg
		return resolution, nil
	}

	match, err := ParseCriteria(req.Criteria)
	if err != nil {
		PROTOCOL_VIOLATION.Log(logger.Debug()).
			Str(logging.STREAM, a.key.String()).
			Uint64(TICK, uint64(req.Tick)).
			Err(err).
			Msg("invalid criteria")
		resolution.Kind = ResolvedNotFound
		return resolution, nil
	}
	msg, err := a.store.Reserve(a.destination, match, a.owner(req.Tick))
	if err != nil {
		return Resolution{}, err
	}
	ot := &outputTick{
		tick:      req.Tick,
		criteria:  req.Criteria,
		match:     match,
		issueTime: now,
		timeout:   req.Timeout,
	}
	switch {
	case msg != nil:
		ot.valued = true
		ot.seq = msg.Seq
		a.ticks[req.Tick] = ot
		resolution.Kind = ResolvedValue
		resolution.Message = msg
	case req.Timeout == tick.NoWait:
		resolution.Kind = ResolvedNotFound
	default:
		a.ticks[req.Tick] = ot
		resolution.Kind = ResolvedPending
		TICK_PENDING.Log(logger.Debug()).Str(logging.STREAM, a.key.String()).Uint64(TICK, uint64(req.Tick)).Msg("")
	}
	return resolution, nil
}

// Notify resolves pending ticks, in tick order, against messages that have arrived in the store since they were
// parked. The resolved values are returned.
func (a *OutputStream) Notify() ([]Resolution, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.closed {
		return nil, ErrStreamClosed
	}
	var resolutions []Resolution
	for _, ot := range a.sortedTicks() {
		if ot.valued {
			continue
		}
		msg, err := a.store.Reserve(a.destination, ot.match, a.owner(ot.tick))
		if err != nil {
			return resolutions, err
		}
		if msg == nil {
			continue
		}
		ot.valued = true
		ot.seq = msg.Seq
		resolutions = append(resolutions, Resolution{Kind: ResolvedValue, Tick: ot.tick, Epoch: a.epoch, Message: msg})
		TICK_RESOLVED.Log(logger.Debug()).Str(logging.STREAM, a.key.String()).Uint64(TICK, uint64(ot.tick)).Msg("")
	}
	return resolutions, nil
}

// must be called while holding the lock
func (a *OutputStream) sortedTicks() []*outputTick {
	ticks := make([]*outputTick, 0, len(a.ticks))
	for _, ot := range a.ticks {
		ticks = append(ticks, ot)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i].tick < ticks[j].tick })
	return ticks
}

// AckCompletion completes the reservation for the delivered tick
func (a *OutputStream) AckCompletion(t tick.Tick) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.closed {
		return ErrStreamClosed
	}
	a.lastActivity = a.now()
	ot := a.ticks[t]
	if ot == nil || !ot.valued {
		return ErrTickNotFound
	}
	delete(a.ticks, t)
	return a.store.Complete(a.destination, ot.seq)
}

// Reject drops the tick. If it was resolved, the reserved message is released.
func (a *OutputStream) Reject(t tick.Tick) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.closed {
		return ErrStreamClosed
	}
	a.lastActivity = a.now()
	ot := a.ticks[t]
	if ot == nil {
		return ErrTickNotFound
	}
	delete(a.ticks, t)
	if ot.valued {
		if err := a.store.Release(a.destination, ot.seq); err != nil && err != msgstore.ErrNotReserved {
			return err
		}
	}
	return nil
}

// OnTimeoutSweep drops the pending ticks whose timeout has elapsed. The caller answers them with NotFound.
// Browse sessions that have been idle for longer than browseTimeout are finished.
func (a *OutputStream) OnTimeoutSweep(now time.Time, browseTimeout time.Duration) []tick.Tick {
	a.mutex.Lock()
	if a.closed {
		a.mutex.Unlock()
		return nil
	}
	var expired []tick.Tick
	for _, ot := range a.sortedTicks() {
		if ot.expired(now) {
			delete(a.ticks, ot.tick)
			expired = append(expired, ot.tick)
		}
	}
	sessions := a.browseSessions()
	a.mutex.Unlock()

	for _, t := range expired {
		TICK_EXPIRED.Log(logger.Debug()).Str(logging.STREAM, a.key.String()).Uint64(TICK, uint64(t)).Msg("")
	}
	for _, session := range sessions {
		if session.idle(now) >= browseTimeout {
			BROWSE_EXPIRED.Log(logger.Info()).Str(logging.STREAM, a.key.String()).Str(BROWSE_ID, session.id).Msg("")
			session.Finished()
		}
	}
	return expired
}

// Idle returns true if the stream has nothing to answer, has no browse sessions, and has been inactive for at
// least the specified duration.
func (a *OutputStream) Idle(now time.Time, timeout time.Duration) bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return len(a.ticks) == 0 && len(a.sessions) == 0 && now.Sub(a.lastActivity) >= timeout
}

// Close releases all reservations and finishes all browse sessions. Close is idempotent.
func (a *OutputStream) Close() {
	a.mutex.Lock()
	if a.closed {
		a.mutex.Unlock()
		return
	}
	a.closed = true
	for _, ot := range a.ticks {
		if ot.valued {
			a.store.Release(a.destination, ot.seq)
		}
	}
	a.ticks = nil
	sessions := a.browseSessions()
	a.mutex.Unlock()

	for _, session := range sessions {
		session.Finished()
	}
	STREAM_CLOSED.Log(logger.Info()).Str(logging.STREAM, a.key.String()).Msg("")
}

func (a *OutputStream) Closed() bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.closed
}

// TotalRequestsReceived counts every request received, including repeats
func (a *OutputStream) TotalRequestsReceived() uint64 {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.totalRequests
}

// PendingCount returns the number of ticks waiting for a message
func (a *OutputStream) PendingCount() int {
	return a.count(false)
}

// ValuedCount returns the number of ticks resolved and awaiting acknowledgement
func (a *OutputStream) ValuedCount() int {
	return a.count(true)
}

func (a *OutputStream) count(valued bool) int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	n := 0
	for _, ot := range a.ticks {
		if ot.valued == valued {
			n++
		}
	}
	return n
}

// CountAllMessagesOnStream returns the number of messages held by the store for the destination
func (a *OutputStream) CountAllMessagesOnStream() (int, error) {
	return a.store.Count(a.destination)
}

// Info describes the attached requester stream
func (a *OutputStream) Info() *RecordInfo {
	return &RecordInfo{
		ID:             a.key.String(),
		IssueTime:      unixMillis(a.attached),
		Timeout:        tick.UndefinedTime,
		CompletionTime: tick.UndefinedTime,
		AckingEpoch:    a.epoch,
	}
}

func (a *OutputStream) tickInfo(ot *outputTick) *RecordInfo {
	return &RecordInfo{
		ID:             ot.tick.String(),
		IssueTime:      unixMillis(ot.issueTime),
		Timeout:        timeoutMillis(ot.timeout),
		CompletionTime: completionTime(ot.issueTime, ot.timeout),
		AckingEpoch:    a.epoch,
		Criteria:       append([]string(nil), ot.criteria...),
		Delivered:      ot.valued,
	}
}

// TickIterator iterates over the ticks the stream must answer, in tick order.
// Removing an entry rejects the tick.
func (a *OutputStream) TickIterator() *Iterator {
	a.mutex.Lock()
	ticks := make([]tick.Tick, 0, len(a.ticks))
	for t := range a.ticks {
		ticks = append(ticks, t)
	}
	a.mutex.Unlock()
	return newIterator(tickKeys(ticks), func(key string) (*RecordInfo, bool) {
		t, err := tick.Parse(key)
		if err != nil {
			return nil, false
		}
		a.mutex.Lock()
		defer a.mutex.Unlock()
		if ot := a.ticks[t]; ot != nil {
			return a.tickInfo(ot), true
		}
		return nil, false
	}, func(key string) bool {
		t, err := tick.Parse(key)
		if err != nil {
			return false
		}
		return a.Reject(t) == nil
	})
}
