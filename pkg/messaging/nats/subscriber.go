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

package nats

import (
	"sync"

	"github.com/nats-io/go-nats"
	"github.com/nats-io/nuid"
	"github.com/oysterpack/anycast/pkg/messaging"
	"github.com/prometheus/client_golang/prometheus"
)

// Subscriber subscribes to the specified topic and relays messages to the associated MessageProcessor.
// Messages are processed sequentially on the Subscriber's goroutine.
type Subscriber struct {
	id           string
	conn         *Conn
	topic        messaging.Topic
	subscription *nats.Subscription

	messages chan *nats.Msg
	process  messaging.MessageProcessor
	received prometheus.Counter

	shutdown    chan struct{}
	done        chan struct{}
	unsubscribe sync.Once
}

func newSubscriber(conn *Conn, topic messaging.Topic, bufSize int, process messaging.MessageProcessor) (*Subscriber, error) {
	if bufSize <= 0 {
		bufSize = DefaultSubscriberBufSize
	}
	subscriber := &Subscriber{
		id:    nuid.Next(),
		conn:  conn,
		topic: topic,

		messages: make(chan *nats.Msg, bufSize),
		process:  process,
		received: conn.metrics.received.WithLabelValues(string(topic)),

		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	var err error
	subscriber.subscription, err = conn.nc.ChanSubscribe(string(topic), subscriber.messages)
	if err != nil {
		return nil, err
	}
	go subscriber.run()
	EVENT_SUBSCRIBED.Log(logger.Info()).Str(CONN_ID, conn.id).Str(SUBSCRIPTION_ID, subscriber.id).Str(TOPIC, string(topic)).Msg("")
	return subscriber, nil
}

func (a *Subscriber) run() {
	defer close(a.done)
	for {
		select {
		case msg := <-a.messages:
			a.receive(msg)
		case <-a.shutdown:
			// drain and process any queued up messages
			for {
				select {
				case msg := <-a.messages:
					a.receive(msg)
				default:
					return
				}
			}
		}
	}
}

func (a *Subscriber) receive(msg *nats.Msg) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error().Str(SUBSCRIPTION_ID, a.id).Str(TOPIC, string(a.topic)).Interface("panic", p).Msg("message processor panicked")
		}
	}()
	a.received.Inc()
	a.process(toMessage(msg))
}

func (a *Subscriber) ID() string {
	return a.id
}

func (a *Subscriber) Topic() messaging.Topic {
	return a.topic
}

func (a *Subscriber) Delivered() (int64, error) {
	return a.subscription.Delivered()
}

func (a *Subscriber) Dropped() (int, error) {
	return a.subscription.Dropped()
}

func (a *Subscriber) IsValid() bool {
	return a.subscription.IsValid()
}

// Unsubscribe cancels the NATS subscription and triggers the goroutine to shutdown, after processing the messages
// that have already been received. It is safe to call more than once.
func (a *Subscriber) Unsubscribe() error {
	var err error
	a.unsubscribe.Do(func() {
		if a.subscription.IsValid() {
			err = a.subscription.Unsubscribe()
		}
		close(a.shutdown)
		a.conn.removeSubscription(a.id)
		EVENT_UNSUBSCRIBED.Log(logger.Info()).Str(CONN_ID, a.conn.id).Str(SUBSCRIPTION_ID, a.id).Str(TOPIC, string(a.topic)).Msg("")
	})
	return err
}

// Done is closed once the Subscriber's goroutine has exited
func (a *Subscriber) Done() <-chan struct{} {
	return a.done
}

func (a *Subscriber) SubscriptionInfo() (*messaging.SubscriptionInfo, error) {
	info := &messaging.SubscriptionInfo{ID: a.id, Topic: a.topic, Valid: a.IsValid()}
	if !info.Valid {
		return info, nil
	}
	var err error
	if info.Delivered, err = a.Delivered(); err != nil {
		return nil, err
	}
	if info.Dropped, err = a.Dropped(); err != nil {
		return nil, err
	}
	return info, nil
}
