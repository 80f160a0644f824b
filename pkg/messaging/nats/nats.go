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

// Package nats implements the messaging interfaces on top of NATS, and provides the NATS based anycast transport.
package nats

import (
	"time"

	"github.com/nats-io/go-nats"
	"github.com/oysterpack/anycast/pkg/logging"
	"github.com/oysterpack/anycast/pkg/messaging"
)

type pkgobject struct{}

var logger = logging.NewPackageLogger(pkgobject{})

// Connect Options
var (
	// DefaultConnectTimeout is the default timeout used when creating a new NATS connection
	DefaultConnectTimeout   = nats.Timeout(5 * time.Second)
	DefaultReConnectTimeout = nats.ReconnectWait(2 * time.Second)
	AlwaysReconnect         = nats.MaxReconnects(-1)
)

// DefaultSubscriberBufSize is used when the subscriber buffer size is not positive
const DefaultSubscriberBufSize = 1024

// Events
const (
	EVENT_CONN_CONNECTED          = logging.Event("conn_connected")
	EVENT_CONN_CLOSED             = logging.Event("conn_closed")
	EVENT_CONN_DISCONNECT         = logging.Event("conn_disconnect")
	EVENT_CONN_RECONNECT          = logging.Event("conn_reconnect")
	EVENT_CONN_DISCOVERED_SERVERS = logging.Event("conn_discovered_servers")
	EVENT_CONN_ERR                = logging.Event("conn_err")
	EVENT_SUBSCRIBED              = logging.Event("subscribed")
	EVENT_UNSUBSCRIBED            = logging.Event("unsubscribed")
	EVENT_ENVELOPE_DISCARDED      = logging.Event("envelope_discarded")
	EVENT_PUBLISH_FAILED          = logging.Event("publish_failed")
)

// log event fields
const (
	CONN_ID            = messaging.CONN_ID
	SUBSCRIPTION_ID    = "sub_id"
	TOPIC              = "topic"
	URL                = "url"
	DISCOVERED_SERVERS = "discovered_servers"
	SUBSCRIPTION_VALID = "sub_valid"
	DELIVERED          = "delivered"
	DROPPED            = "dropped"
	DISCONNECTS        = "disconnects"
	RECONNECTS         = "reconnects"
)

func toMessage(msg *nats.Msg) *messaging.Message {
	return &messaging.Message{
		Topic:   messaging.Topic(msg.Subject),
		Data:    msg.Data,
		ReplyTo: messaging.ReplyTo(msg.Reply),
	}
}
