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
	"time"

	"github.com/oysterpack/anycast/pkg/msgstore"
	"github.com/oysterpack/anycast/pkg/tick"
)

// MessageType identifies the protocol message carried by an Envelope
type MessageType string

// requester to responder
const (
	REQUEST      = MessageType("request")
	ACK          = MessageType("ack")
	REJECT       = MessageType("reject")
	BROWSE_GET   = MessageType("browse_get")
	BROWSE_CLOSE = MessageType("browse_close")
)

// responder to requester
const (
	VALUE            = MessageType("value")
	NOT_FOUND        = MessageType("not_found")
	REISSUE_REQUIRED = MessageType("reissue_required")
	REQUEST_ACK      = MessageType("request_ack")
	BROWSE_DATA      = MessageType("browse_data")
	BROWSE_END       = MessageType("browse_end")
)

// MessageTypes lists all protocol message types
var MessageTypes = []MessageType{
	REQUEST, ACK, REJECT, BROWSE_GET, BROWSE_CLOSE,
	VALUE, NOT_FOUND, REISSUE_REQUIRED, REQUEST_ACK, BROWSE_DATA, BROWSE_END,
}

// RequestMessage asks the responder to resolve the tick to a message that matches the criteria.
// A request is repeated with the same tick until it is answered.
type RequestMessage struct {
	Tick     tick.Tick `json:"tick"`
	Criteria []string  `json:"criteria,omitempty"`
	// AckingEpoch is zero until the responder has acknowledged the request
	AckingEpoch uint64        `json:"epoch"`
	Timeout     time.Duration `json:"timeout"`
}

// ValueMessage resolves a tick to a reserved message
type ValueMessage struct {
	Tick        tick.Tick            `json:"tick"`
	Epoch       uint64               `json:"epoch"`
	Priority    int                  `json:"priority"`
	Reliability msgstore.Reliability `json:"reliability"`
	Message     *msgstore.Message    `json:"msg"`
}

// NotFoundMessage means that no matching message exists, or the request expired while parked on the responder
type NotFoundMessage struct {
	Tick tick.Tick `json:"tick"`
}

// ReissueRequiredMessage is the reply to a request acknowledged by a different epoch
type ReissueRequiredMessage struct {
	Tick         tick.Tick `json:"tick"`
	CurrentEpoch uint64    `json:"epoch"`
}

// AckMessage confirms delivery of the value for the tick
type AckMessage struct {
	Tick tick.Tick `json:"tick"`
}

// RequestAckMessage acknowledges that the request is parked on the responder waiting for a message
type RequestAckMessage struct {
	Tick  tick.Tick `json:"tick"`
	Epoch uint64    `json:"epoch"`
}

// RejectMessage cancels the request for the tick, releasing the reservation if a value was resolved
type RejectMessage struct {
	Tick tick.Tick `json:"tick"`
}

// BrowseGetMessage asks for the next message after Seq
type BrowseGetMessage struct {
	BrowseID string   `json:"browse_id"`
	Criteria []string `json:"criteria,omitempty"`
	Seq      uint64   `json:"seq"`
}

// BrowseDataMessage returns the next browsed message
type BrowseDataMessage struct {
	BrowseID string            `json:"browse_id"`
	Seq      uint64            `json:"seq"`
	Message  *msgstore.Message `json:"msg"`
}

// BrowseEndMessage means that there are no more messages to browse
type BrowseEndMessage struct {
	BrowseID string `json:"browse_id"`
	// Seq echoes the BrowseGet seq
	Seq uint64 `json:"seq"`
}

// BrowseCloseMessage ends the responder's browse session
type BrowseCloseMessage struct {
	BrowseID string `json:"browse_id"`
}
