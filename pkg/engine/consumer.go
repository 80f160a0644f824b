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

package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oysterpack/anycast/pkg/anycast"
	"github.com/oysterpack/anycast/pkg/logging"
	"github.com/oysterpack/anycast/pkg/msgstore"
	"github.com/oysterpack/anycast/pkg/tick"
)

// consumer owns the InputStream for a remote destination, and routes its notifications to the pending requests
type consumer struct {
	mutex sync.Mutex

	key    string
	stream *anycast.InputStream
	// notifications that arrive before the request handle is waiting are buffered
	outcomes map[tick.Tick]chan anycast.Notification
	closed   chan struct{}
}

func consumerKey(remote anycast.NodeID, destination string) string {
	return string(remote) + "/" + destination
}

func (a *consumer) outcome(t tick.Tick) chan anycast.Notification {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	c := a.outcomes[t]
	if c == nil {
		c = make(chan anycast.Notification, 2)
		a.outcomes[t] = c
	}
	return c
}

func (a *consumer) remove(t tick.Tick) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	delete(a.outcomes, t)
}

func (a *consumer) notify(n anycast.Notification) {
	select {
	case a.outcome(n.Tick) <- n:
	default:
		NOTIFICATION_DROPPED.Log(logger.Warn()).
			Str(logging.STREAM, string(n.Stream)).
			Uint64(anycast.TICK, uint64(n.Tick)).
			Str("outcome", n.Outcome.String()).
			Msg("")
	}
}

func (a *Engine) consumer(remote anycast.NodeID, destination string) (*consumer, error) {
	key := consumerKey(remote, destination)
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if c := a.consumers[key]; c != nil {
		return c, nil
	}
	c := &consumer{key: key, outcomes: map[tick.Tick]chan anycast.Notification{}, closed: make(chan struct{})}
	stream, err := anycast.NewInputStream(anycast.NewStreamID(), remote, destination, a.requests, c.notify)
	if err != nil {
		return nil, err
	}
	c.stream = stream
	a.responses.Register(stream)
	a.consumers[key] = c
	return c, nil
}

func (a *Engine) consumerList() []*consumer {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	consumers := make([]*consumer, 0, len(a.consumers))
	for _, c := range a.consumers {
		consumers = append(consumers, c)
	}
	return consumers
}

func (a *Engine) closeConsumer(c *consumer) {
	a.mutex.Lock()
	if a.consumers[c.key] != c {
		a.mutex.Unlock()
		return
	}
	delete(a.consumers, c.key)
	a.mutex.Unlock()

	a.responses.Deregister(c.stream.ID())
	c.stream.DereferenceControllable()
	close(c.closed)
}

// CloseStream closes the stream for the remote destination. Pending requests fail with ErrStreamClosed.
// It returns false if there is no such stream.
func (a *Engine) CloseStream(remote anycast.NodeID, destination string) bool {
	a.mutex.RLock()
	c := a.consumers[consumerKey(remote, destination)]
	a.mutex.RUnlock()
	if c == nil {
		return false
	}
	a.closeConsumer(c)
	return true
}

// Stream returns the InputStream for the remote destination, if one has been created
func (a *Engine) Stream(remote anycast.NodeID, destination string) (*anycast.InputStream, bool) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	if c := a.consumers[consumerKey(remote, destination)]; c != nil {
		return c.stream, true
	}
	return nil, false
}

// RequestNext requests the next message matching the criteria from the destination held by the remote node.
// Requests to the same remote destination share a stream. The timeout is relative to now. tick.NoWait means only an
// immediately available message is accepted, and tick.InfiniteTimeout means the request never expires.
func (a *Engine) RequestNext(remote anycast.NodeID, destination string, criteria []string, timeout time.Duration) (*Request, error) {
	if err := a.checkAlive(); err != nil {
		return nil, err
	}
	c, err := a.consumer(remote, destination)
	if err != nil {
		return nil, err
	}
	t, err := c.stream.RequestNext(criteria, timeout)
	if err != nil {
		return nil, err
	}
	return &Request{consumer: c, tick: t}, nil
}

// Get requests the next message using the default timeout, and waits for it
func (a *Engine) Get(ctx context.Context, remote anycast.NodeID, destination string, criteria []string) (*msgstore.Message, error) {
	req, err := a.RequestNext(remote, destination, criteria, a.config.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	msg, err := req.Receive(ctx)
	if err == context.Canceled || err == context.DeadlineExceeded {
		req.Cancel()
	}
	return msg, err
}

// Request is the handle for an outstanding request
type Request struct {
	consumer *consumer
	tick     tick.Tick
}

func (a *Request) Tick() tick.Tick {
	return a.tick
}

func (a *Request) Stream() *anycast.InputStream {
	return a.consumer.stream
}

// Receive waits for the request's outcome. If a value arrives, then it is delivered, i.e., acknowledged to the remote
// node, and returned. If the acknowledgement cannot be sent, then the tick is requested again and Receive keeps
// waiting.
//
// NotFound, expiry, and unreachable outcomes are returned as anycast.ErrMessageNotFound, anycast.ErrRequestExpired,
// and anycast.ErrRemoteUnreachable.
func (a *Request) Receive(ctx context.Context) (*msgstore.Message, error) {
	outcomes := a.consumer.outcome(a.tick)
	for {
		select {
		case n := <-outcomes:
			if n.Outcome != anycast.OutcomeValue {
				a.consumer.remove(a.tick)
				return nil, n.Outcome.Err()
			}
			msg, err := a.consumer.stream.Deliver(a.tick)
			if err != nil {
				if errors.Is(err, anycast.ErrRemoteUnreachable) {
					// the value was discarded and the tick was requested again
					continue
				}
				a.consumer.remove(a.tick)
				return nil, err
			}
			a.consumer.remove(a.tick)
			return msg, nil
		case <-a.consumer.closed:
			return nil, anycast.ErrStreamClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Cancel rejects the tick. If a message was reserved for it, then the remote node releases it.
func (a *Request) Cancel() error {
	a.consumer.remove(a.tick)
	return a.consumer.stream.Reject(a.tick)
}
