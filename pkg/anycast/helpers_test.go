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

package anycast_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oysterpack/anycast/pkg/anycast"
	"github.com/oysterpack/anycast/pkg/tick"
)

var errSendFailed = errors.New("send failed")

var testSettings = anycast.Settings{
	EagerRepeatInterval:  time.Second,
	SlowedRepeatInterval: 5 * time.Second,
	SendAttempts:         2,
	SendBackoff:          time.Millisecond,
	BrowseTimeout:        time.Minute,
}

type sent struct {
	remote anycast.NodeID
	env    *anycast.Envelope
}

// recordingTransport records every envelope. If deliver is set, the envelope is passed on to it.
type recordingTransport struct {
	mutex   sync.Mutex
	sent    []sent
	fail    bool
	deliver func(remote anycast.NodeID, env *anycast.Envelope)
}

func (a *recordingTransport) Send(remote anycast.NodeID, env *anycast.Envelope) error {
	a.mutex.Lock()
	if a.fail {
		a.mutex.Unlock()
		return errSendFailed
	}
	a.sent = append(a.sent, sent{remote, env})
	deliver := a.deliver
	a.mutex.Unlock()
	if deliver != nil {
		deliver(remote, env)
	}
	return nil
}

func (a *recordingTransport) setFail(fail bool) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.fail = fail
}

func (a *recordingTransport) envelopes(msgType anycast.MessageType) []*anycast.Envelope {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	var envs []*anycast.Envelope
	for _, s := range a.sent {
		if s.env.Type == msgType {
			envs = append(envs, s.env)
		}
	}
	return envs
}

func (a *recordingTransport) requests(t *testing.T) []*anycast.RequestMessage {
	t.Helper()
	var msgs []*anycast.RequestMessage
	for _, env := range a.envelopes(anycast.REQUEST) {
		msg := &anycast.RequestMessage{}
		if err := env.DecodeBody(msg); err != nil {
			t.Fatal(err)
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func (a *recordingTransport) rejected(t *testing.T) []tick.Tick {
	t.Helper()
	var ticks []tick.Tick
	for _, env := range a.envelopes(anycast.REJECT) {
		msg := &anycast.RejectMessage{}
		if err := env.DecodeBody(msg); err != nil {
			t.Fatal(err)
		}
		ticks = append(ticks, msg.Tick)
	}
	return ticks
}

type clock struct {
	mutex sync.Mutex
	t     time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2017, 12, 1, 0, 0, 0, 0, time.UTC)}
}

func (a *clock) now() time.Time {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.t
}

func (a *clock) advance(d time.Duration) time.Time {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.t = a.t.Add(d)
	return a.t
}

type notifications struct {
	mutex sync.Mutex
	list  []anycast.Notification
}

func (a *notifications) listener(n anycast.Notification) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.list = append(a.list, n)
}

func (a *notifications) outcomes(outcome anycast.Outcome) []tick.Tick {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	var ticks []tick.Tick
	for _, n := range a.list {
		if n.Outcome == outcome {
			ticks = append(ticks, n.Tick)
		}
	}
	return ticks
}

func (a *notifications) count() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return len(a.list)
}

type requesterFixture struct {
	transport     *recordingTransport
	clock         *clock
	notifications *notifications
	handler       *anycast.RequestHandler
	stream        *anycast.InputStream
}

func newRequesterFixture(t *testing.T) *requesterFixture {
	t.Helper()
	f := &requesterFixture{
		transport:     &recordingTransport{},
		clock:         newClock(),
		notifications: &notifications{},
	}
	f.handler = anycast.NewRequestHandler(anycast.NodeID("node-a"), f.transport, testSettings)
	f.handler.SetClock(f.clock.now)
	stream, err := anycast.NewInputStream(anycast.NewStreamID(), anycast.NodeID("node-b"), "orders", f.handler, f.notifications.listener)
	if err != nil {
		t.Fatal(err)
	}
	f.stream = stream
	return f
}

func (a *requesterFixture) requestNext(t *testing.T, criteria []string, timeout time.Duration) tick.Tick {
	t.Helper()
	n, err := a.stream.RequestNext(criteria, timeout)
	if err != nil {
		t.Fatalf("RequestNext failed : %v", err)
	}
	return n
}

func waitFor(t *testing.T, description string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for : %s", description)
		}
		time.Sleep(time.Millisecond)
	}
}

func containsTick(ticks []tick.Tick, n tick.Tick) bool {
	for _, t := range ticks {
		if t == n {
			return true
		}
	}
	return false
}
