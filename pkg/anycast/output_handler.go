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

// OutputHandler drives the output streams of the local node. It attaches an OutputStream per remote requester
// stream on the first request, and sends the replies.
type OutputHandler struct {
	node      NodeID
	epoch     uint64
	store     msgstore.Store
	transport Transport
	settings  Settings
	metrics   *responderMetrics

	now func() time.Time

	mutex   sync.RWMutex
	streams map[StreamKey]*OutputStream
}

// NewOutputHandler creates the responder for the local node's store. The epoch must change every time the node
// restarts, e.g., via msgstore.Store.NextEpoch.
func NewOutputHandler(node NodeID, epoch uint64, store msgstore.Store, transport Transport, settings Settings) *OutputHandler {
	return &OutputHandler{
		node:      node,
		epoch:     epoch,
		store:     store,
		transport: transport,
		settings:  settings.withDefaults(),
		metrics:   newResponderMetrics(node),
		now:       time.Now,
		streams:   map[StreamKey]*OutputStream{},
	}
}

// SetClock replaces the clock
func (a *OutputHandler) SetClock(now func() time.Time) {
	a.now = now
}

func (a *OutputHandler) Epoch() uint64 {
	return a.epoch
}

func (a *OutputHandler) attach(env *Envelope) (*OutputStream, error) {
	if env.Destination == "" {
		return nil, ErrDestinationBlank
	}
	key := env.StreamKey()
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if stream := a.streams[key]; stream != nil {
		return stream, nil
	}
	stream := NewOutputStream(key, env.Destination, a.epoch, a.store, a.now)
	a.streams[key] = stream
	STREAM_ATTACHED.Log(logger.Info()).
		Str(logging.STREAM, key.String()).
		Str(DESTINATION, env.Destination).
		Uint64(EPOCH, a.epoch).
		Msg("")
	return stream, nil
}

// Stream looks up an attached stream
func (a *OutputHandler) Stream(key StreamKey) (*OutputStream, bool) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	stream, ok := a.streams[key]
	return stream, ok
}

func (a *OutputHandler) lookup(env *Envelope) (*OutputStream, error) {
	stream, ok := a.Stream(env.StreamKey())
	if !ok {
		return nil, ErrStreamNotFound
	}
	return stream, nil
}

// Streams returns the attached streams ordered by key
func (a *OutputHandler) Streams() []*OutputStream {
	a.mutex.RLock()
	streams := make([]*OutputStream, 0, len(a.streams))
	for _, stream := range a.streams {
		streams = append(streams, stream)
	}
	a.mutex.RUnlock()
	sort.Slice(streams, func(i, j int) bool { return streams[i].key.String() < streams[j].key.String() })
	return streams
}

// StreamIterator iterates over the attached remote requester streams. Removing an entry closes the stream.
func (a *OutputHandler) StreamIterator() *Iterator {
	streams := a.Streams()
	keys := make([]string, len(streams))
	byKey := make(map[string]StreamKey, len(streams))
	for i, stream := range streams {
		keys[i] = stream.key.String()
		byKey[keys[i]] = stream.key
	}
	return newIterator(keys, func(key string) (*RecordInfo, bool) {
		stream, ok := a.Stream(byKey[key])
		if !ok {
			return nil, false
		}
		return stream.Info(), true
	}, func(key string) bool {
		return a.CloseStream(byKey[key])
	})
}

// CloseStream detaches and closes the stream, releasing its reservations
func (a *OutputHandler) CloseStream(key StreamKey) bool {
	a.mutex.Lock()
	stream, ok := a.streams[key]
	delete(a.streams, key)
	a.mutex.Unlock()
	if ok {
		stream.Close()
	}
	return ok
}

// Close closes all streams
func (a *OutputHandler) Close() {
	for _, stream := range a.Streams() {
		a.CloseStream(stream.key)
	}
}

func (a *OutputHandler) reply(stream *OutputStream, msgType MessageType, body interface{}) error {
	env, err := NewEnvelope(msgType, a.node, stream.key.Stream, stream.destination, body)
	if err != nil {
		return err
	}
	if err := sendWithRetry(a.transport, stream.key.Requester, env, a.settings.SendAttempts, a.settings.SendBackoff); err != nil {
		SEND_FAILED.Log(logger.Warn()).
			Str(logging.STREAM, stream.key.String()).
			Str(MSG_TYPE, string(msgType)).
			Err(err).
			Msg("")
		return err
	}
	return nil
}

func (a *OutputHandler) replyResolution(stream *OutputStream, resolution Resolution) error {
	switch resolution.Kind {
	case ResolvedValue:
		a.metrics.values.Inc()
		return a.reply(stream, VALUE, &ValueMessage{
			Tick:        resolution.Tick,
			Epoch:       resolution.Epoch,
			Priority:    resolution.Message.Priority,
			Reliability: resolution.Message.Reliability,
			Message:     resolution.Message,
		})
	case ResolvedNotFound:
		a.metrics.notFound.Inc()
		return a.reply(stream, NOT_FOUND, &NotFoundMessage{Tick: resolution.Tick})
	case ResolvedReissueRequired:
		a.metrics.reissueRequired.Inc()
		return a.reply(stream, REISSUE_REQUIRED, &ReissueRequiredMessage{Tick: resolution.Tick, CurrentEpoch: resolution.Epoch})
	default:
		return a.reply(stream, REQUEST_ACK, &RequestAckMessage{Tick: resolution.Tick, Epoch: resolution.Epoch})
	}
}

func (a *OutputHandler) HandleRequest(env *Envelope) error {
	msg := &RequestMessage{}
	if err := env.DecodeBody(msg); err != nil {
		return err
	}
	stream, err := a.attach(env)
	if err != nil {
		return err
	}
	a.metrics.requests.Inc()
	resolution, err := stream.Resolve(msg)
	if err != nil {
		return err
	}
	return a.replyResolution(stream, resolution)
}

func (a *OutputHandler) HandleAck(env *Envelope) error {
	msg := &AckMessage{}
	if err := env.DecodeBody(msg); err != nil {
		return err
	}
	stream, err := a.lookup(env)
	if err != nil {
		return err
	}
	if err := stream.AckCompletion(msg.Tick); err != nil {
		return err
	}
	a.metrics.completed.Inc()
	return nil
}

func (a *OutputHandler) HandleReject(env *Envelope) error {
	msg := &RejectMessage{}
	if err := env.DecodeBody(msg); err != nil {
		return err
	}
	stream, err := a.lookup(env)
	if err != nil {
		return err
	}
	switch err := stream.Reject(msg.Tick); err {
	case nil:
		a.metrics.rejected.Inc()
	case ErrTickNotFound:
		// the tick was already answered, expired or rejected
		PROTOCOL_VIOLATION.Log(logger.Debug()).
			Str(logging.STREAM, stream.key.String()).
			Uint64(TICK, uint64(msg.Tick)).
			Str(MSG_TYPE, string(REJECT)).
			Msg("tick is not held")
	default:
		return err
	}
	return nil
}

func (a *OutputHandler) HandleBrowseGet(env *Envelope) error {
	msg := &BrowseGetMessage{}
	if err := env.DecodeBody(msg); err != nil {
		return err
	}
	stream, err := a.attach(env)
	if err != nil {
		return err
	}
	session, err := stream.browseSession(msg.BrowseID, msg.Criteria)
	if err != nil {
		return err
	}
	next, err := session.NextAfter(msg.Seq)
	if err == ErrBrowseFinished {
		return a.reply(stream, BROWSE_END, &BrowseEndMessage{BrowseID: msg.BrowseID, Seq: msg.Seq})
	}
	if err != nil {
		return err
	}
	if next == nil {
		return a.reply(stream, BROWSE_END, &BrowseEndMessage{BrowseID: msg.BrowseID, Seq: msg.Seq})
	}
	return a.reply(stream, BROWSE_DATA, &BrowseDataMessage{BrowseID: msg.BrowseID, Seq: next.Seq, Message: next})
}

func (a *OutputHandler) HandleBrowseClose(env *Envelope) error {
	msg := &BrowseCloseMessage{}
	if err := env.DecodeBody(msg); err != nil {
		return err
	}
	stream, err := a.lookup(env)
	if err != nil {
		return err
	}
	if session, ok := stream.BrowseSession(msg.BrowseID); ok {
		session.Finished()
	}
	return nil
}

// Notify resolves the pending ticks of the streams attached to the destination, and sends the values.
// It is invoked when a message is appended to the store.
func (a *OutputHandler) Notify(destination string) {
	for _, stream := range a.Streams() {
		if stream.destination != destination {
			continue
		}
		resolutions, err := stream.Notify()
		if err != nil && err != ErrStreamClosed {
			logger.Error().Str(logging.STREAM, stream.key.String()).Err(err).Msg("notify failed")
		}
		for _, resolution := range resolutions {
			a.replyResolution(stream, resolution)
		}
	}
}

// Sweep answers expired pending ticks with NotFound, expires idle browse sessions, and detaches idle streams.
// The expired ticks are returned per stream.
func (a *OutputHandler) Sweep(now time.Time) map[StreamKey][]tick.Tick {
	expired := map[StreamKey][]tick.Tick{}
	for _, stream := range a.Streams() {
		ticks := stream.OnTimeoutSweep(now, a.settings.BrowseTimeout)
		for _, t := range ticks {
			a.metrics.notFound.Inc()
			a.reply(stream, NOT_FOUND, &NotFoundMessage{Tick: t})
		}
		if len(ticks) > 0 {
			expired[stream.key] = ticks
		}
		if stream.Idle(now, a.settings.BrowseTimeout) {
			a.CloseStream(stream.key)
		}
	}
	return expired
}
