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
	"github.com/oysterpack/anycast/pkg/anycast"
	"github.com/oysterpack/anycast/pkg/logging"
	"github.com/oysterpack/anycast/pkg/messaging"
)

// TOPIC_PREFIX is prepended to the node id to form the topic that the node receives envelopes on
const TOPIC_PREFIX = "anycast."

// NodeTopic returns the topic that the node receives anycast envelopes on
func NodeTopic(node anycast.NodeID) messaging.Topic {
	return messaging.Topic(TOPIC_PREFIX + string(node))
}

// NewTransport returns an anycast Transport that publishes envelopes to the remote node's topic.
// NATS preserves message order per publishing connection, which satisfies the ordering the protocol relies on.
func NewTransport(conn messaging.Conn) *Transport {
	return &Transport{conn: conn}
}

type Transport struct {
	conn messaging.Conn
}

func (a *Transport) Send(remote anycast.NodeID, env *anycast.Envelope) error {
	data, err := anycast.Encode(env)
	if err != nil {
		return err
	}
	return a.conn.Publish(&messaging.Message{Topic: NodeTopic(remote), Data: data})
}

// Listen subscribes to the node's topic. Envelopes are decoded and relayed to the handler in the order received.
// Messages that cannot be decoded are logged and discarded.
func (a *Transport) Listen(node anycast.NodeID, bufSize int, handle func(env *anycast.Envelope)) (messaging.Subscription, error) {
	return a.conn.Subscribe(NodeTopic(node), bufSize, func(msg *messaging.Message) {
		env, err := anycast.Decode(msg.Data)
		if err != nil {
			EVENT_ENVELOPE_DISCARDED.Log(logger.Warn()).Str(logging.NODE, string(node)).Str(TOPIC, string(msg.Topic)).Err(err).Msg("")
			return
		}
		handle(env)
	})
}

var _ anycast.Transport = &Transport{}
