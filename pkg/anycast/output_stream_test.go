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
	"testing"
	"time"

	"github.com/oysterpack/anycast/pkg/anycast"
	"github.com/oysterpack/anycast/pkg/msgstore"
	"github.com/oysterpack/anycast/pkg/tick"
)

const testEpoch = 7

type responderFixture struct {
	store  *msgstore.MemoryStore
	clock  *clock
	stream *anycast.OutputStream
}

func newResponderFixture(t *testing.T) *responderFixture {
	t.Helper()
	f := &responderFixture{store: msgstore.NewMemoryStore(), clock: newClock()}
	key := anycast.StreamKey{Requester: "node-a", Stream: "stream-1"}
	f.stream = anycast.NewOutputStream(key, "orders", testEpoch, f.store, f.clock.now)
	return f
}

func (a *responderFixture) append(t *testing.T, topic string) uint64 {
	t.Helper()
	seq, err := a.store.Append(&msgstore.Message{Destination: "orders", Topic: topic, Payload: []byte(topic)})
	if err != nil {
		t.Fatal(err)
	}
	return seq
}

func (a *responderFixture) resolve(t *testing.T, req *anycast.RequestMessage) anycast.Resolution {
	t.Helper()
	resolution, err := a.stream.Resolve(req)
	if err != nil {
		t.Fatal(err)
	}
	return resolution
}

func TestOutputStream_Resolve(t *testing.T) {
	t.Run("value", func(t *testing.T) {
		f := newResponderFixture(t)
		f.append(t, "Y")
		seq := f.append(t, "X")
		resolution := f.resolve(t, &anycast.RequestMessage{Tick: 1, Criteria: []string{"topic=X"}, Timeout: time.Second})
		if resolution.Kind != anycast.ResolvedValue || resolution.Message.Seq != seq || resolution.Epoch != testEpoch {
			t.Fatalf("resolution did not match : %#v", resolution)
		}
		if f.stream.ValuedCount() != 1 {
			t.Error("the tick should be valued")
		}
		// the message is reserved
		if msg, _ := f.store.Reserve("orders", msgstore.MatchAll, "other"); msg == nil || msg.Seq == seq {
			t.Errorf("only the other message should be available : %v", msg)
		}
		if count, _ := f.stream.CountAllMessagesOnStream(); count != 2 {
			t.Errorf("resolving never removes messages : %d", count)
		}
	})

	t.Run("repeated request returns the same value", func(t *testing.T) {
		f := newResponderFixture(t)
		seq := f.append(t, "X")
		f.append(t, "X")
		req := &anycast.RequestMessage{Tick: 1, Timeout: time.Second}
		f.resolve(t, req)
		resolution := f.resolve(t, req)
		if resolution.Kind != anycast.ResolvedValue || resolution.Message.Seq != seq {
			t.Errorf("the same message should be returned : %#v", resolution)
		}
		if f.stream.TotalRequestsReceived() != 2 {
			t.Errorf("total requests did not match : %d", f.stream.TotalRequestsReceived())
		}
	})

	t.Run("pending", func(t *testing.T) {
		f := newResponderFixture(t)
		req := &anycast.RequestMessage{Tick: 1, Criteria: []string{"topic=X"}, Timeout: time.Second}
		if resolution := f.resolve(t, req); resolution.Kind != anycast.ResolvedPending {
			t.Errorf("the request should be pending : %v", resolution.Kind)
		}
		if resolution := f.resolve(t, req); resolution.Kind != anycast.ResolvedPending {
			t.Errorf("the repeated request should still be pending : %v", resolution.Kind)
		}
		if f.stream.PendingCount() != 1 {
			t.Errorf("pending count did not match : %d", f.stream.PendingCount())
		}
	})

	t.Run("no wait", func(t *testing.T) {
		f := newResponderFixture(t)
		resolution := f.resolve(t, &anycast.RequestMessage{Tick: 1, Timeout: tick.NoWait})
		if resolution.Kind != anycast.ResolvedNotFound {
			t.Errorf("the request should not be found : %v", resolution.Kind)
		}
		if f.stream.PendingCount() != 0 {
			t.Error("the tick should not be parked")
		}
	})

	t.Run("stale epoch", func(t *testing.T) {
		f := newResponderFixture(t)
		f.append(t, "X")
		resolution := f.resolve(t, &anycast.RequestMessage{Tick: 1, AckingEpoch: testEpoch - 1, Timeout: time.Second})
		if resolution.Kind != anycast.ResolvedReissueRequired || resolution.Epoch != testEpoch {
			t.Errorf("reissue should be required : %#v", resolution)
		}
		if f.stream.ValuedCount() != 0 {
			t.Error("the stale request must not reserve a message")
		}
		if resolution := f.resolve(t, &anycast.RequestMessage{Tick: 1, AckingEpoch: testEpoch, Timeout: time.Second}); resolution.Kind != anycast.ResolvedValue {
			t.Errorf("the reissued request should be resolved : %v", resolution.Kind)
		}
	})

	t.Run("invalid criteria", func(t *testing.T) {
		f := newResponderFixture(t)
		f.append(t, "X")
		if resolution := f.resolve(t, &anycast.RequestMessage{Tick: 1, Criteria: []string{"=X"}, Timeout: time.Second}); resolution.Kind != anycast.ResolvedNotFound {
			t.Errorf("the request should not be found : %v", resolution.Kind)
		}
	})
}

func TestOutputStream_Notify(t *testing.T) {
	f := newResponderFixture(t)
	f.resolve(t, &anycast.RequestMessage{Tick: 2, Criteria: []string{"topic=X"}, Timeout: time.Second})
	f.resolve(t, &anycast.RequestMessage{Tick: 1, Criteria: []string{"topic=X"}, Timeout: time.Second})
	f.resolve(t, &anycast.RequestMessage{Tick: 3, Criteria: []string{"topic=Y"}, Timeout: time.Second})

	first := f.append(t, "X")
	resolutions, err := f.stream.Notify()
	if err != nil {
		t.Fatal(err)
	}
	if len(resolutions) != 1 || resolutions[0].Tick != 1 || resolutions[0].Message.Seq != first {
		t.Fatalf("the lowest pending tick should be resolved first : %#v", resolutions)
	}

	f.append(t, "Y")
	second := f.append(t, "X")
	resolutions, _ = f.stream.Notify()
	if len(resolutions) != 2 || resolutions[0].Tick != 2 || resolutions[0].Message.Seq != second || resolutions[1].Tick != 3 {
		t.Errorf("resolutions did not match : %#v", resolutions)
	}
	if f.stream.PendingCount() != 0 || f.stream.ValuedCount() != 3 {
		t.Errorf("counts did not match : pending = %d, valued = %d", f.stream.PendingCount(), f.stream.ValuedCount())
	}
}

func TestOutputStream_AckCompletion(t *testing.T) {
	f := newResponderFixture(t)
	seq := f.append(t, "X")
	f.resolve(t, &anycast.RequestMessage{Tick: 1, Timeout: time.Second})
	if err := f.stream.AckCompletion(1); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.Get("orders", seq); err != msgstore.ErrMessageNotFound {
		t.Errorf("the store should have completed the message : %v", err)
	}
	if err := f.stream.AckCompletion(1); err != anycast.ErrTickNotFound {
		t.Errorf("ErrTickNotFound should have been returned : %v", err)
	}
	// pending ticks cannot be acknowledged
	f.resolve(t, &anycast.RequestMessage{Tick: 2, Timeout: time.Second})
	if err := f.stream.AckCompletion(2); err != anycast.ErrTickNotFound {
		t.Errorf("ErrTickNotFound should have been returned : %v", err)
	}
}

func TestOutputStream_Reject(t *testing.T) {
	f := newResponderFixture(t)
	seq := f.append(t, "X")
	f.resolve(t, &anycast.RequestMessage{Tick: 1, Timeout: time.Second})
	if err := f.stream.Reject(1); err != nil {
		t.Fatal(err)
	}
	msg, _ := f.store.Reserve("orders", msgstore.MatchAll, "other")
	if msg == nil || msg.Seq != seq {
		t.Errorf("the message should have been released : %v", msg)
	}
	if err := f.stream.Reject(1); err != anycast.ErrTickNotFound {
		t.Errorf("ErrTickNotFound should have been returned : %v", err)
	}
}

func TestOutputStream_OnTimeoutSweep(t *testing.T) {
	f := newResponderFixture(t)
	t0 := f.clock.now()
	f.resolve(t, &anycast.RequestMessage{Tick: 1, Timeout: 500 * time.Millisecond})
	f.resolve(t, &anycast.RequestMessage{Tick: 2, Timeout: tick.InfiniteTimeout})
	f.append(t, "X")
	f.resolve(t, &anycast.RequestMessage{Tick: 3, Timeout: 500 * time.Millisecond})

	if expired := f.stream.OnTimeoutSweep(t0.Add(499*time.Millisecond), time.Minute); len(expired) != 0 {
		t.Errorf("nothing should have expired : %v", expired)
	}
	expired := f.stream.OnTimeoutSweep(t0.Add(600*time.Millisecond), time.Minute)
	if len(expired) != 1 || expired[0] != 1 {
		t.Errorf("only the pending tick with a finite timeout should expire : %v", expired)
	}
	if f.stream.PendingCount() != 1 || f.stream.ValuedCount() != 1 {
		t.Errorf("counts did not match : pending = %d, valued = %d", f.stream.PendingCount(), f.stream.ValuedCount())
	}
}

func TestOutputStream_Close(t *testing.T) {
	f := newResponderFixture(t)
	f.append(t, "X")
	f.resolve(t, &anycast.RequestMessage{Tick: 1, Timeout: time.Second})
	session, err := f.stream.Browse(nil)
	if err != nil {
		t.Fatal(err)
	}

	f.stream.Close()
	f.stream.Close()
	if !f.stream.Closed() {
		t.Error("the stream should be closed")
	}
	if msg, _ := f.store.Reserve("orders", msgstore.MatchAll, "other"); msg == nil {
		t.Error("closing the stream should release its reservations")
	}
	if !session.IsFinished() {
		t.Error("closing the stream should finish its browse sessions")
	}
	if _, err := f.stream.Resolve(&anycast.RequestMessage{Tick: 2}); err != anycast.ErrStreamClosed {
		t.Errorf("ErrStreamClosed should have been returned : %v", err)
	}
	if err := f.stream.AckCompletion(1); err != anycast.ErrStreamClosed {
		t.Errorf("ErrStreamClosed should have been returned : %v", err)
	}
}

func TestOutputStream_Iterators(t *testing.T) {
	f := newResponderFixture(t)
	f.append(t, "X")
	f.resolve(t, &anycast.RequestMessage{Tick: 1, Criteria: []string{"topic=X"}, Timeout: time.Second})
	f.resolve(t, &anycast.RequestMessage{Tick: 2, Timeout: time.Second})

	i := f.stream.TickIterator()
	info := i.Next()
	if info == nil || info.ID != "1" || info.AckingEpoch != testEpoch || !info.Delivered {
		t.Errorf("tick info did not match : %#v", info)
	}
	info = i.Next()
	if info == nil || info.ID != "2" || info.Delivered {
		t.Errorf("tick info did not match : %#v", info)
	}
	if !i.Remove() {
		t.Error("remove should have rejected the tick")
	}
	if i.Next() != nil {
		t.Error("Next past the end should return nil")
	}
	i.Finished()
	if f.stream.PendingCount() != 0 {
		t.Error("the pending tick should have been removed")
	}

	session, _ := f.stream.Browse([]string{"topic=X"})
	browse := f.stream.BrowseIterator()
	info = browse.Next()
	if info == nil || info.ID != session.ID() || info.Criteria[0] != "topic=X" {
		t.Errorf("browse info did not match : %#v", info)
	}
	browse.Remove()
	browse.Finished()
	if !session.IsFinished() || f.stream.BrowseSessionCount() != 0 {
		t.Error("the browse session should have been finished")
	}
}
