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
	"github.com/json-iterator/go"
	"github.com/oysterpack/anycast/pkg/anycast"
	"github.com/oysterpack/anycast/pkg/logging"
	"github.com/oysterpack/anycast/pkg/messaging"
	"github.com/oysterpack/anycast/pkg/msgstore"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PUBLISH_TOPIC_SUFFIX is appended to the node topic to form the topic that local producers publish messages to
const PUBLISH_TOPIC_SUFFIX = ".publish"

// PublishTopic returns the topic that producers publish messages to, in order to have them appended to the node's
// message store
func PublishTopic(node anycast.NodeID) messaging.Topic {
	return NodeTopic(node) + PUBLISH_TOPIC_SUFFIX
}

// PublishFunc appends the message to the local store and returns its seq
type PublishFunc func(msg *msgstore.Message) (uint64, error)

// PublishReply is sent to the reply-to topic of a published message
type PublishReply struct {
	Seq   uint64 `json:"seq,omitempty"`
	Error string `json:"error,omitempty"`
}

// ServePublish subscribes to the node's publish topic. The data of each message received is a JSON encoded
// msgstore.Message, which is handed to publish. If the message specifies a reply-to topic, then a PublishReply is
// sent to it.
func ServePublish(conn messaging.Conn, node anycast.NodeID, bufSize int, publish PublishFunc) (messaging.Subscription, error) {
	return conn.Subscribe(PublishTopic(node), bufSize, func(msg *messaging.Message) {
		reply := &PublishReply{}
		storeMsg := &msgstore.Message{}
		if err := json.Unmarshal(msg.Data, storeMsg); err != nil {
			reply.Error = err.Error()
		} else if seq, err := publish(storeMsg); err != nil {
			reply.Error = err.Error()
		} else {
			reply.Seq = seq
		}
		if reply.Error != "" {
			EVENT_PUBLISH_FAILED.Log(logger.Warn()).Str(logging.NODE, string(node)).Str(TOPIC, string(msg.Topic)).Msg(reply.Error)
		}

		if msg.ReplyTo.Validate() != nil {
			return
		}
		data, err := json.Marshal(reply)
		if err != nil {
			logger.Error().Err(err).Msg("PublishReply could not be marshalled")
			return
		}
		if err := conn.Publish(&messaging.Message{Topic: msg.ReplyTo.AsTopic(), Data: data}); err != nil {
			EVENT_PUBLISH_FAILED.Log(logger.Warn()).Str(logging.NODE, string(node)).Str(TOPIC, string(msg.ReplyTo)).Err(err).Msg("reply")
		}
	})
}
