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
	"testing"
	"time"

	"github.com/oysterpack/anycast/pkg/anycast"
	"github.com/oysterpack/anycast/pkg/metrics"
	"github.com/oysterpack/anycast/pkg/msgstore"
	"github.com/oysterpack/anycast/pkg/tick"
)

func valueMessage(n tick.Tick, epoch uint64) *anycast.ValueMessage {
	return &anycast.ValueMessage{
		Tick:        n,
		Epoch:       epoch,
		Priority:    4,
		Reliability: msgstore.AssuredPersistent,
		Message:     &msgstore.Message{Seq: uint64(n), Destination: "orders", Topic: "X", Priority: 4, Reliability: msgstore.AssuredPersistent},
	}
}

func TestInputStream_RequestNext(t *testing.T) {
	defer metrics.ResetRegistry()

	t.Run("ticks are strictly increasing", func(t *testing.T) {
		f := newRequesterFixture(t)
		var prev tick.Tick
		for i := 0; i < 50; i++ {
			n := f.requestNext(t, nil, time.Second)
			if n <= prev {
				t.Fatalf("tick %d was issued after %d", n, prev)
			}
			prev = n
		}
		if f.stream.LatestTick() != prev {
			t.Errorf("LatestTick did not match : %d != %d", f.stream.LatestTick(), prev)
		}
		if len(f.transport.requests(t)) != 50 {
			t.Errorf("50 requests should have been sent : %d", len(f.transport.requests(t)))
		}
	})

	t.Run("the request carries the criteria and timeout", func(t *testing.T) {
		f := newRequesterFixture(t)
		n := f.requestNext(t, []string{"topic=X"}, 1000*time.Millisecond)
		requests := f.transport.requests(t)
		if len(requests) != 1 {
			t.Fatalf("1 request should have been sent : %d", len(requests))
		}
		req := requests[0]
		if req.Tick != n || req.Timeout != time.Second || len(req.Criteria) != 1 || req.Criteria[0] != "topic=X" || req.AckingEpoch != 0 {
			t.Errorf("request did not match : %#v", req)
		}
		info, ok := f.stream.Request(n)
		if !ok {
			t.Fatal("request record should exist")
		}
		issueTime := f.clock.now().UnixNano() / int64(time.Millisecond)
		if info.IssueTime != issueTime || info.Timeout != 1000 || info.CompletionTime != issueTime+1000 || info.ID != n.String() {
			t.Errorf("request info did not match : %#v", info)
		}
	})

	t.Run("infinite timeout has an undefined completion time", func(t *testing.T) {
		f := newRequesterFixture(t)
		n := f.requestNext(t, nil, tick.InfiniteTimeout)
		info, _ := f.stream.Request(n)
		if info.CompletionTime != tick.UndefinedTime || info.Timeout != tick.UndefinedTime {
			t.Errorf("completion time should be undefined : %#v", info)
		}
	})

	t.Run("invalid criteria", func(t *testing.T) {
		f := newRequesterFixture(t)
		if _, err := f.stream.RequestNext([]string{"=X"}, time.Second); !errors.Is(err, anycast.ErrInvalidCriteria) {
			t.Errorf("ErrInvalidCriteria should have been returned : %v", err)
		}
		if f.stream.RequestCount() != 0 {
			t.Error("no request should have been created")
		}
	})

	t.Run("remote unreachable", func(t *testing.T) {
		f := newRequesterFixture(t)
		f.transport.setFail(true)
		_, err := f.stream.RequestNext(nil, time.Second)
		if !errors.Is(err, anycast.ErrRemoteUnreachable) {
			t.Fatalf("ErrRemoteUnreachable should have been returned : %v", err)
		}
		streamErr := &anycast.StreamError{}
		if !errors.As(err, &streamErr) || streamErr.Stream != f.stream.ID() {
			t.Errorf("a StreamError should have been returned : %v", err)
		}
		if f.stream.RequestCount() != 0 {
			t.Error("the request should have been removed")
		}
	})
}

func TestInputStream_OnValueReceived(t *testing.T) {
	defer metrics.ResetRegistry()

	t.Run("tick 42 is valued and is no longer swept", func(t *testing.T) {
		f := newRequesterFixture(t)
		for i := 0; i < 41; i++ {
			f.requestNext(t, nil, tick.InfiniteTimeout)
		}
		t0 := f.clock.now()
		n := f.requestNext(t, []string{"topic=X"}, 1000*time.Millisecond)
		if n != 42 {
			t.Fatalf("tick should be 42 : %d", n)
		}

		f.stream.OnValueReceived(valueMessage(42, 1))
		if _, ok := f.stream.Request(42); ok {
			t.Error("tick 42 should no longer be requested")
		}
		info, ok := f.stream.Value(42)
		if !ok {
			t.Fatal("tick 42 should be valued")
		}
		if info.Priority != 4 || info.Reliability != msgstore.AssuredPersistent || info.Delivered {
			t.Errorf("value info did not match : %#v", info)
		}
		if ticks := f.notifications.outcomes(anycast.OutcomeValue); len(ticks) != 1 || ticks[0] != 42 {
			t.Errorf("the consumer should have been notified : %v", ticks)
		}

		expired := f.stream.OnTimeoutSweep(t0.Add(2000 * time.Millisecond))
		if containsTick(expired, 42) {
			t.Error("tick 42 should not have expired")
		}
		if _, ok := f.stream.Value(42); !ok {
			t.Error("tick 42 should still be valued")
		}
	})

	t.Run("out of order responses", func(t *testing.T) {
		f := newRequesterFixture(t)
		for i := 0; i < 4; i++ {
			f.requestNext(t, nil, time.Second)
		}
		for _, n := range []tick.Tick{5, 6, 7} {
			if got := f.requestNext(t, nil, time.Second); got != n {
				t.Fatalf("tick should be %d : %d", n, got)
			}
		}
		for _, n := range []tick.Tick{7, 5, 6} {
			f.stream.OnValueReceived(valueMessage(n, 1))
		}
		for _, n := range []tick.Tick{5, 6, 7} {
			info, ok := f.stream.Value(n)
			if !ok {
				t.Errorf("tick %d should be valued", n)
				continue
			}
			if info.ID != n.String() {
				t.Errorf("tick %d resolved to the wrong record : %s", n, info.ID)
			}
			if _, ok := f.stream.Request(n); ok {
				t.Errorf("tick %d should not be requested", n)
			}
		}
		if f.stream.RequestCount() != 4 || f.stream.ValueCount() != 3 {
			t.Errorf("counts did not match : requests = %d, values = %d", f.stream.RequestCount(), f.stream.ValueCount())
		}
	})

	t.Run("late and duplicate values are discarded", func(t *testing.T) {
		f := newRequesterFixture(t)
		n := f.requestNext(t, nil, 500*time.Millisecond)
		f.stream.OnValueReceived(valueMessage(n, 1))
		f.stream.OnValueReceived(valueMessage(n, 1))
		f.stream.OnValueReceived(valueMessage(n+100, 1))
		if f.stream.ValueCount() != 1 || f.stream.RequestCount() != 0 {
			t.Errorf("counts did not match : requests = %d, values = %d", f.stream.RequestCount(), f.stream.ValueCount())
		}
		if f.notifications.count() != 1 {
			t.Errorf("only 1 notification should have been sent : %d", f.notifications.count())
		}

		expiring := f.requestNext(t, nil, 500*time.Millisecond)
		f.stream.OnTimeoutSweep(f.clock.advance(time.Second))
		f.stream.OnValueReceived(valueMessage(expiring, 1))
		if _, ok := f.stream.Value(expiring); ok {
			t.Error("a value received after expiry should be discarded")
		}
	})

	t.Run("a value for a tick that is not outstanding is rejected", func(t *testing.T) {
		f := newRequesterFixture(t)
		n := f.requestNext(t, nil, time.Minute)
		f.stream.OnValueReceived(valueMessage(n, 1))
		if _, err := f.stream.Deliver(n); err != nil {
			t.Fatal(err)
		}

		// a repeated request was answered after the delivery was acknowledged
		f.stream.OnValueReceived(valueMessage(n, 1))
		waitFor(t, "reject for the delivered tick", func() bool {
			rejected := f.transport.rejected(t)
			return len(rejected) == 1 && rejected[0] == n
		})
		if f.stream.CountAllMessagesOnStream() != 0 {
			t.Errorf("the value must not be recorded again : %d", f.stream.CountAllMessagesOnStream())
		}

		// a duplicate of a value that is awaiting delivery holds the same reservation
		held := f.requestNext(t, nil, time.Minute)
		f.stream.OnValueReceived(valueMessage(held, 1))
		f.stream.OnValueReceived(valueMessage(held, 1))
		time.Sleep(20 * time.Millisecond)
		if rejected := f.transport.rejected(t); len(rejected) != 1 {
			t.Errorf("duplicates must not be rejected : %v", rejected)
		}
	})

	t.Run("a value from an older epoch is never accepted", func(t *testing.T) {
		f := newRequesterFixture(t)
		n := f.requestNext(t, nil, time.Minute)
		f.stream.OnRequestAck(&anycast.RequestAckMessage{Tick: n, Epoch: 2})
		if f.stream.LatestEpoch() != 2 {
			t.Errorf("latest epoch should be 2 : %d", f.stream.LatestEpoch())
		}

		f.stream.OnValueReceived(valueMessage(n, 1))
		if _, ok := f.stream.Value(n); ok {
			t.Fatal("the stale value should not have been accepted")
		}
		info, ok := f.stream.Request(n)
		if !ok {
			t.Fatal("the tick should be requested again")
		}
		if info.AckingEpoch != 2 {
			t.Errorf("the request should be reissued against epoch 2 : %d", info.AckingEpoch)
		}
		waitFor(t, "reissued request", func() bool {
			requests := f.transport.requests(t)
			last := requests[len(requests)-1]
			return len(requests) == 2 && last.Tick == n && last.AckingEpoch == 2
		})

		f.stream.OnValueReceived(valueMessage(n, 2))
		if _, ok := f.stream.Value(n); !ok {
			t.Error("the value from the current epoch should have been accepted")
		}
	})
}

func TestInputStream_OnTimeoutSweep(t *testing.T) {
	defer metrics.ResetRegistry()

	t.Run("expired request is removed and a new request gets a larger tick", func(t *testing.T) {
		f := newRequesterFixture(t)
		t0 := f.clock.now()
		n := f.requestNext(t, []string{"topic=X"}, 500*time.Millisecond)

		expired := f.stream.OnTimeoutSweep(t0.Add(600 * time.Millisecond))
		if len(expired) != 1 || expired[0] != n {
			t.Fatalf("tick %d should have expired : %v", n, expired)
		}
		if _, ok := f.stream.Request(n); ok {
			t.Error("the expired request should have been removed")
		}
		if ticks := f.notifications.outcomes(anycast.OutcomeExpired); len(ticks) != 1 || ticks[0] != n {
			t.Errorf("the consumer should have been notified of the expiry : %v", ticks)
		}

		next := f.requestNext(t, []string{"topic=X"}, 500*time.Millisecond)
		if next <= n {
			t.Errorf("the new tick should be larger : %d <= %d", next, n)
		}
	})

	t.Run("expired ticks are rejected on the remote node", func(t *testing.T) {
		f := newRequesterFixture(t)
		t0 := f.clock.now()
		first := f.requestNext(t, nil, time.Second)
		second := f.requestNext(t, nil, time.Second)
		f.requestNext(t, nil, tick.InfiniteTimeout)

		f.stream.OnTimeoutSweep(t0.Add(time.Second))
		waitFor(t, "rejects for the expired ticks", func() bool {
			rejected := f.transport.rejected(t)
			return len(rejected) == 2 && rejected[0] == first && rejected[1] == second
		})
	})

	t.Run("expires iff now >= issue time + timeout", func(t *testing.T) {
		f := newRequesterFixture(t)
		t0 := f.clock.now()
		n := f.requestNext(t, nil, time.Second)
		if expired := f.stream.OnTimeoutSweep(t0.Add(time.Second - time.Nanosecond)); len(expired) != 0 {
			t.Errorf("nothing should have expired : %v", expired)
		}
		if expired := f.stream.OnTimeoutSweep(t0.Add(time.Second)); len(expired) != 1 || expired[0] != n {
			t.Errorf("tick should have expired at its completion time : %v", expired)
		}
		if expired := f.stream.OnTimeoutSweep(t0.Add(time.Hour)); len(expired) != 0 {
			t.Errorf("a tick should only expire once : %v", expired)
		}
	})

	t.Run("infinite timeout never expires", func(t *testing.T) {
		f := newRequesterFixture(t)
		n := f.requestNext(t, nil, tick.InfiniteTimeout)
		if expired := f.stream.OnTimeoutSweep(f.clock.now().Add(100 * 365 * 24 * time.Hour)); len(expired) != 0 {
			t.Errorf("nothing should have expired : %v", expired)
		}
		if _, ok := f.stream.Request(n); !ok {
			t.Error("the request should still be outstanding")
		}
	})

	t.Run("expiry order", func(t *testing.T) {
		f := newRequesterFixture(t)
		t0 := f.clock.now()
		long := f.requestNext(t, nil, 3*time.Second)
		short := f.requestNext(t, nil, time.Second)
		medium := f.requestNext(t, nil, 2*time.Second)
		expired := f.stream.OnTimeoutSweep(t0.Add(5 * time.Second))
		if len(expired) != 3 || expired[0] != short || expired[1] != medium || expired[2] != long {
			t.Errorf("ticks should expire in completion time order : %v", expired)
		}
	})
}

func TestInputStream_OnNotFound(t *testing.T) {
	defer metrics.ResetRegistry()
	f := newRequesterFixture(t)
	n := f.requestNext(t, nil, time.Second)
	f.stream.OnNotFound(&anycast.NotFoundMessage{Tick: n})
	if f.stream.RequestCount() != 0 {
		t.Error("the request should have been removed")
	}
	if ticks := f.notifications.outcomes(anycast.OutcomeNotFound); len(ticks) != 1 || ticks[0] != n {
		t.Errorf("the consumer should have been notified : %v", ticks)
	}
	// duplicate
	f.stream.OnNotFound(&anycast.NotFoundMessage{Tick: n})
	if f.notifications.count() != 1 {
		t.Errorf("the duplicate should have been discarded : %d", f.notifications.count())
	}
}

func TestInputStream_OnReissueRequired(t *testing.T) {
	defer metrics.ResetRegistry()
	f := newRequesterFixture(t)
	n := f.requestNext(t, nil, time.Minute)
	f.stream.OnRequestAck(&anycast.RequestAckMessage{Tick: n, Epoch: 3})

	f.stream.OnReissueRequired(&anycast.ReissueRequiredMessage{Tick: n, CurrentEpoch: 7})
	waitFor(t, "reissued request", func() bool {
		requests := f.transport.requests(t)
		return len(requests) == 2 && requests[1].Tick == n && requests[1].AckingEpoch == 7
	})
	info, _ := f.stream.Request(n)
	if info.AckingEpoch != 7 {
		t.Errorf("acking epoch should be 7 : %d", info.AckingEpoch)
	}

	// a duplicate does not reissue again
	f.stream.OnReissueRequired(&anycast.ReissueRequiredMessage{Tick: n, CurrentEpoch: 7})
	// a stale epoch is ignored
	f.stream.OnReissueRequired(&anycast.ReissueRequiredMessage{Tick: n, CurrentEpoch: 5})
	time.Sleep(20 * time.Millisecond)
	if requests := f.transport.requests(t); len(requests) != 2 {
		t.Errorf("the request should not have been reissued again : %d", len(requests))
	}
	if f.stream.CountAllMessagesOnStream() != 1 {
		t.Errorf("the tick should be in flight exactly once : %d", f.stream.CountAllMessagesOnStream())
	}
}

func TestInputStream_Repeat(t *testing.T) {
	defer metrics.ResetRegistry()
	f := newRequesterFixture(t)
	eager := f.requestNext(t, nil, tick.InfiniteTimeout)
	slowed := f.requestNext(t, nil, tick.InfiniteTimeout)
	f.stream.OnRequestAck(&anycast.RequestAckMessage{Tick: slowed, Epoch: 1})

	if repeated := f.stream.Repeat(f.clock.now().Add(500 * time.Millisecond)); len(repeated) != 0 {
		t.Errorf("nothing should be repeated yet : %v", repeated)
	}
	repeated := f.stream.Repeat(f.clock.now().Add(testSettings.EagerRepeatInterval))
	if len(repeated) != 1 || repeated[0] != eager {
		t.Errorf("only the unacknowledged request should be repeated : %v", repeated)
	}
	repeated = f.stream.Repeat(f.clock.now().Add(testSettings.SlowedRepeatInterval))
	if len(repeated) != 2 || repeated[0] != eager || repeated[1] != slowed {
		t.Errorf("both requests should be repeated : %v", repeated)
	}
	waitFor(t, "repeated requests", func() bool {
		return len(f.transport.requests(t)) == 5
	})
	for _, req := range f.transport.requests(t)[2:] {
		if req.Tick != eager && req.Tick != slowed {
			t.Errorf("repeats must use the same ticks : %d", req.Tick)
		}
	}
	if f.stream.LatestTick() != slowed {
		t.Errorf("repeats must not allocate new ticks : %d", f.stream.LatestTick())
	}
}

func TestInputStream_Deliver(t *testing.T) {
	defer metrics.ResetRegistry()

	t.Run("delivery is acknowledged", func(t *testing.T) {
		f := newRequesterFixture(t)
		n := f.requestNext(t, nil, time.Second)
		f.stream.OnValueReceived(valueMessage(n, 1))
		msg, err := f.stream.Deliver(n)
		if err != nil {
			t.Fatal(err)
		}
		if msg == nil || msg.Seq != uint64(n) {
			t.Errorf("the message did not match : %v", msg)
		}
		acks := f.transport.envelopes(anycast.ACK)
		if len(acks) != 1 {
			t.Fatalf("1 ack should have been sent : %d", len(acks))
		}
		ack := &anycast.AckMessage{}
		acks[0].DecodeBody(ack)
		if ack.Tick != n {
			t.Errorf("ack tick did not match : %d", ack.Tick)
		}
		if f.stream.CountAllMessagesOnStream() != 0 {
			t.Error("the value should have been removed")
		}
		if _, err := f.stream.Deliver(n); !errors.Is(err, anycast.ErrTickNotFound) {
			t.Errorf("ErrTickNotFound should have been returned : %v", err)
		}
	})

	t.Run("ack failure requests the tick again", func(t *testing.T) {
		f := newRequesterFixture(t)
		n := f.requestNext(t, nil, time.Minute)
		f.stream.OnValueReceived(valueMessage(n, 1))
		f.transport.setFail(true)
		if _, err := f.stream.Deliver(n); !errors.Is(err, anycast.ErrRemoteUnreachable) {
			t.Fatalf("ErrRemoteUnreachable should have been returned : %v", err)
		}
		if _, ok := f.stream.Value(n); ok {
			t.Error("the value should have been discarded")
		}
		// the re-request fails as well, which is reported to the consumer
		waitFor(t, "unreachable notification", func() bool {
			return len(f.notifications.outcomes(anycast.OutcomeUnreachable)) == 1
		})
		if f.stream.RequestCount() != 0 {
			t.Error("the unreachable request should have been removed")
		}
	})

	t.Run("ack failure then recovery", func(t *testing.T) {
		f := newRequesterFixture(t)
		attempts := 0
		failing := anycast.TransportFunc(func(remote anycast.NodeID, env *anycast.Envelope) error {
			if env.Type == anycast.ACK {
				attempts++
				return errSendFailed
			}
			return f.transport.Send(remote, env)
		})
		handler := anycast.NewRequestHandler(anycast.NodeID("node-a"), failing, testSettings)
		stream, _ := anycast.NewInputStream(anycast.NewStreamID(), anycast.NodeID("node-b"), "orders", handler, nil)
		m, _ := stream.RequestNext(nil, time.Minute)
		stream.OnValueReceived(valueMessage(m, 1))
		if _, err := stream.Deliver(m); !errors.Is(err, anycast.ErrRemoteUnreachable) {
			t.Fatalf("ErrRemoteUnreachable should have been returned : %v", err)
		}
		if attempts != testSettings.SendAttempts {
			t.Errorf("the ack should have been attempted %d times : %d", testSettings.SendAttempts, attempts)
		}
		if _, ok := stream.Request(m); !ok {
			t.Error("the tick should be requested again")
		}
		stream.OnValueReceived(valueMessage(m, 1))
		if _, ok := stream.Value(m); !ok {
			t.Error("the value should be accepted again")
		}
	})
}

func TestInputStream_Reject(t *testing.T) {
	defer metrics.ResetRegistry()
	f := newRequesterFixture(t)
	requested := f.requestNext(t, nil, time.Second)
	valued := f.requestNext(t, nil, time.Second)
	f.stream.OnValueReceived(valueMessage(valued, 1))

	if err := f.stream.Reject(requested); err != nil {
		t.Error(err)
	}
	if err := f.stream.Reject(valued); err != nil {
		t.Error(err)
	}
	if err := f.stream.Reject(valued); !errors.Is(err, anycast.ErrTickNotFound) {
		t.Errorf("ErrTickNotFound should have been returned : %v", err)
	}
	if f.stream.CountAllMessagesOnStream() != 0 {
		t.Error("both ticks should have been removed")
	}
	if rejects := f.transport.envelopes(anycast.REJECT); len(rejects) != 2 {
		t.Errorf("2 rejects should have been sent : %d", len(rejects))
	}
}

func TestInputStream_Close(t *testing.T) {
	defer metrics.ResetRegistry()
	f := newRequesterFixture(t)
	n := f.requestNext(t, nil, time.Second)

	f.stream.Finished()
	f.stream.Finished()
	if !f.stream.IsFinished() || f.stream.Closed() {
		t.Error("the stream should be finished but not closed")
	}
	// the stream is still usable, but the consumer is no longer notified
	f.stream.OnValueReceived(valueMessage(n, 1))
	if f.notifications.count() != 0 {
		t.Error("a finished stream should not notify")
	}
	if _, ok := f.stream.Value(n); !ok {
		t.Error("the value should have been recorded")
	}

	f.requestNext(t, nil, time.Second)
	f.stream.DereferenceControllable()
	f.stream.DereferenceControllable()
	if !f.stream.Closed() {
		t.Error("the stream should be closed")
	}
	if _, err := f.stream.RequestNext(nil, time.Second); err != anycast.ErrStreamClosed {
		t.Errorf("ErrStreamClosed should have been returned : %v", err)
	}
	if _, err := f.stream.Deliver(n); err != anycast.ErrStreamClosed {
		t.Errorf("ErrStreamClosed should have been returned : %v", err)
	}
	f.stream.OnValueReceived(valueMessage(n+1, 1))
	f.stream.OnNotFound(&anycast.NotFoundMessage{Tick: n + 1})
	if expired := f.stream.OnTimeoutSweep(f.clock.advance(time.Hour)); len(expired) != 0 {
		t.Errorf("nothing should expire on a closed stream : %v", expired)
	}
	if f.stream.CountAllMessagesOnStream() != 0 {
		t.Error("all records should have been dropped")
	}
}

func TestInputStream_Iterators(t *testing.T) {
	defer metrics.ResetRegistry()
	f := newRequesterFixture(t)
	for i := 0; i < 5; i++ {
		f.requestNext(t, []string{"topic=X"}, time.Second)
	}
	f.stream.OnValueReceived(valueMessage(2, 1))

	t.Run("requests", func(t *testing.T) {
		i := f.stream.RequestIterator()
		defer i.Finished()
		var ids []string
		for i.HasNext() {
			ids = append(ids, i.Next().ID)
		}
		if len(ids) != 4 || ids[0] != "1" || ids[1] != "3" || ids[3] != "5" {
			t.Errorf("ids did not match : %v", ids)
		}
		if i.Next() != nil {
			t.Error("Next past the end should return nil")
		}
	})

	t.Run("vanished entries are skipped", func(t *testing.T) {
		i := f.stream.RequestIterator()
		defer i.Finished()
		f.stream.OnNotFound(&anycast.NotFoundMessage{Tick: 3})
		var ids []string
		for info := i.Next(); info != nil; info = i.Next() {
			ids = append(ids, info.ID)
		}
		if len(ids) != 3 || ids[1] != "4" {
			t.Errorf("ids did not match : %v", ids)
		}
	})

	t.Run("remove removes the live entry", func(t *testing.T) {
		i := f.stream.RequestIterator()
		if !i.HasNext() {
			t.Fatal("there should be requests")
		}
		info := i.Next()
		if !i.Remove() {
			t.Error("remove should have succeeded")
		}
		if i.Remove() {
			t.Error("the entry was already removed")
		}
		if info.ID != "1" {
			t.Errorf("the first request should be tick 1 : %s", info.ID)
		}
		if _, ok := f.stream.Request(1); ok {
			t.Error("the request should have been removed")
		}
		i.Finished()
		i.Finished()
		if i.HasNext() || i.Next() != nil {
			t.Error("a finished iterator is exhausted")
		}
	})

	t.Run("values", func(t *testing.T) {
		i := f.stream.ValueIterator()
		defer i.Finished()
		info := i.Next()
		if info == nil || info.ID != "2" || len(info.Criteria) != 1 {
			t.Errorf("value info did not match : %#v", info)
		}
		if i.HasNext() {
			t.Error("there should only be 1 value")
		}
	})

	t.Run("removing a value rejects it", func(t *testing.T) {
		i := f.stream.ValueIterator()
		defer i.Finished()
		if i.Next() == nil || !i.Remove() {
			t.Fatal("the value should have been removed")
		}
		if _, ok := f.stream.Value(2); ok {
			t.Error("the value should no longer be held")
		}
		waitFor(t, "reject for the removed value", func() bool {
			return containsTick(f.transport.rejected(t), 2)
		})
	})
}

// run with -race : the sweeper repeats requests while the receive path updates the same records
func TestInputStream_ConcurrentAccess(t *testing.T) {
	defer metrics.ResetRegistry()
	f := newRequesterFixture(t)
	var ticks []tick.Tick
	for i := 0; i < 10; i++ {
		ticks = append(ticks, f.requestNext(t, nil, tick.InfiniteTimeout))
	}

	const iterations = 200
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < iterations; i++ {
			n := ticks[i%len(ticks)]
			round := uint64(i / len(ticks))
			f.stream.OnRequestAck(&anycast.RequestAckMessage{Tick: n, Epoch: 2*round + 1})
			if i%len(ticks) == len(ticks)-1 {
				f.stream.OnReissueRequired(&anycast.ReissueRequiredMessage{Tick: n, CurrentEpoch: 2*round + 2})
			}
		}
	}()
	for i := 1; i <= iterations; i++ {
		f.stream.Repeat(f.clock.now().Add(time.Duration(i) * testSettings.SlowedRepeatInterval))
		if i%50 == 0 {
			f.requestNext(t, nil, tick.InfiniteTimeout)
		}
	}
	<-done

	if f.stream.RequestCount() != len(ticks)+iterations/50 {
		t.Errorf("every request should still be outstanding : %d", f.stream.RequestCount())
	}
	for _, req := range f.transport.requests(t) {
		if req.Tick == 0 || req.Tick > f.stream.LatestTick() {
			t.Errorf("request was sent for an unknown tick : %d", req.Tick)
		}
	}

	// tearing down while requests are being repeated
	go f.stream.Repeat(f.clock.now().Add(time.Duration(iterations+1) * testSettings.SlowedRepeatInterval))
	f.stream.DereferenceControllable()
	if _, err := f.stream.RequestNext(nil, time.Second); err != anycast.ErrStreamClosed {
		t.Errorf("ErrStreamClosed should have been returned : %v", err)
	}
}
