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
	"time"

	"github.com/nats-io/go-nats"
	"github.com/nats-io/nuid"
	"github.com/oysterpack/anycast/pkg/messaging"
)

// Connect creates a new managed NATS connection. The connection tracks lifecycle events and collects metrics.
//
// Connections are configured to always reconnect. The specified options are applied after the defaults, i.e., they
// override the defaults.
func Connect(url string, options ...nats.Option) (*Conn, error) {
	conn := &Conn{
		id:            nuid.Next(),
		created:       time.Now(),
		metrics:       newConnMetrics(),
		subscriptions: map[string]*Subscriber{},
	}
	opts := []nats.Option{
		DefaultConnectTimeout,
		DefaultReConnectTimeout,
		AlwaysReconnect,
		nats.Name(conn.id),
		nats.ClosedHandler(func(*nats.Conn) { conn.closed() }),
		nats.DisconnectHandler(func(*nats.Conn) { conn.disconnected() }),
		nats.ReconnectHandler(func(*nats.Conn) { conn.reconnected() }),
		nats.DiscoveredServersHandler(func(*nats.Conn) { conn.discoveredServers() }),
		nats.ErrorHandler(func(_ *nats.Conn, subscription *nats.Subscription, err error) {
			conn.subscriptionError(subscription, err)
		}),
	}
	nc, err := nats.Connect(url, append(opts, options...)...)
	if err != nil {
		return nil, err
	}
	conn.nc = nc
	conn.metrics.created.Inc()
	conn.metrics.conns.Inc()
	EVENT_CONN_CONNECTED.Log(logger.Info()).Str(CONN_ID, conn.id).Str(URL, nc.ConnectedUrl()).Msg("")
	return conn, nil
}

// Conn represents a managed NATS connection
type Conn struct {
	mutex sync.RWMutex

	nc      *nats.Conn
	id      string
	created time.Time

	disconnects        int
	lastDisconnectTime time.Time
	lastReconnectTime  time.Time
	lastErr            *messaging.ConnErr

	subscriptions map[string]*Subscriber

	metrics *connMetrics
}

// ID is the unique id assigned to the connection for tracking purposes
func (a *Conn) ID() string {
	return a.id
}

// Created is when the conn was created
func (a *Conn) Created() time.Time {
	return a.created
}

// Publish sends the message in fire and forget fashion.
// While reconnecting, published messages are buffered by the NATS client.
func (a *Conn) Publish(msg *messaging.Message) error {
	if err := msg.Topic.Validate(); err != nil {
		return err
	}
	if a.nc.IsClosed() {
		return messaging.ErrConnectionIsClosed
	}
	var err error
	if msg.ReplyTo == "" {
		err = a.nc.Publish(string(msg.Topic), msg.Data)
	} else {
		err = a.nc.PublishRequest(string(msg.Topic), string(msg.ReplyTo), msg.Data)
	}
	if err != nil {
		return err
	}
	a.metrics.published.WithLabelValues(string(msg.Topic)).Inc()
	return nil
}

// Subscribe creates a Subscriber for the topic. The Subscriber is tracked and is unsubscribed when the conn is closed.
func (a *Conn) Subscribe(topic messaging.Topic, bufSize int, process messaging.MessageProcessor) (messaging.Subscription, error) {
	if err := topic.Validate(); err != nil {
		return nil, err
	}
	if a.nc.IsClosed() {
		return nil, messaging.ErrConnectionIsClosed
	}
	subscriber, err := newSubscriber(a, topic.TrimSpace(), bufSize, process)
	if err != nil {
		return nil, err
	}
	a.mutex.Lock()
	a.subscriptions[subscriber.id] = subscriber
	a.mutex.Unlock()
	return subscriber, nil
}

func (a *Conn) removeSubscription(id string) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	delete(a.subscriptions, id)
}

// SubscriptionCount returns the number of active subscriptions
func (a *Conn) SubscriptionCount() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return len(a.subscriptions)
}

// Flush performs a round trip to the server, which guarantees that all published messages have been processed by the
// server
func (a *Conn) Flush() error {
	return a.nc.Flush()
}

// Close unsubscribes all subscriptions and closes the connection
func (a *Conn) Close() {
	a.mutex.RLock()
	subscribers := make([]*Subscriber, 0, len(a.subscriptions))
	for _, subscriber := range a.subscriptions {
		subscribers = append(subscribers, subscriber)
	}
	a.mutex.RUnlock()
	for _, subscriber := range subscribers {
		subscriber.Unsubscribe()
	}
	a.nc.Close()
}

// Closed tests if a Conn has been closed.
func (a *Conn) Closed() bool {
	return a.nc.IsClosed()
}

// Connected tests if a Conn is connected.
func (a *Conn) Connected() bool {
	return a.nc.IsConnected()
}

// LastError reports the last async error and when it occurred. If no error has occurred, then nil is returned.
func (a *Conn) LastError() *messaging.ConnErr {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.lastErr
}

// Disconnects returns the number of times the connection has been disconnected
func (a *Conn) Disconnects() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.disconnects
}

// LastDisconnectTime records the last time a disconnect happened
func (a *Conn) LastDisconnectTime() time.Time {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.lastDisconnectTime
}

// LastReconnectTime records the last time the conn reconnected
func (a *Conn) LastReconnectTime() time.Time {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.lastReconnectTime
}

func (a *Conn) closed() {
	a.metrics.closed.Inc()
	a.metrics.conns.Dec()
	EVENT_CONN_CLOSED.Log(logger.Info()).Str(CONN_ID, a.id).Msg("")
}

func (a *Conn) disconnected() {
	a.mutex.Lock()
	a.lastDisconnectTime = time.Now()
	a.disconnects++
	disconnects := a.disconnects
	a.mutex.Unlock()
	a.metrics.disconnected.Inc()
	EVENT_CONN_DISCONNECT.Log(logger.Info()).Str(CONN_ID, a.id).Int(DISCONNECTS, disconnects).Msg("")
}

func (a *Conn) reconnected() {
	a.mutex.Lock()
	a.lastReconnectTime = time.Now()
	a.mutex.Unlock()
	a.metrics.reconnected.Inc()
	EVENT_CONN_RECONNECT.Log(logger.Info()).Str(CONN_ID, a.id).Uint64(RECONNECTS, a.nc.Stats().Reconnects).Msg("")
}

func (a *Conn) discoveredServers() {
	EVENT_CONN_DISCOVERED_SERVERS.Log(logger.Info()).Str(CONN_ID, a.id).Strs(DISCOVERED_SERVERS, a.nc.DiscoveredServers()).Msg("")
}

func (a *Conn) subscriptionError(subscription *nats.Subscription, err error) {
	a.mutex.Lock()
	a.lastErr = &messaging.ConnErr{Error: err, Timestamp: time.Now()}
	a.mutex.Unlock()
	a.metrics.errors.Inc()

	event := EVENT_CONN_ERR.Log(logger.Error()).Str(CONN_ID, a.id).Err(err)
	if subscription != nil {
		event.Str(TOPIC, subscription.Subject).Bool(SUBSCRIPTION_VALID, subscription.IsValid())
		if delivered, e := subscription.Delivered(); e == nil {
			event.Int64(DELIVERED, delivered)
		}
		if dropped, e := subscription.Dropped(); e == nil {
			event.Int(DROPPED, dropped)
		}
	}
	event.Msg("")
}

var _ messaging.Conn = &Conn{}
