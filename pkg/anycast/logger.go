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
	"github.com/oysterpack/anycast/pkg/logging"
)

type pkgobject struct{}

var logger = logging.NewPackageLogger(pkgobject{})

// log events
const (
	REQUEST_SENT       = logging.Event("request_sent")
	REQUEST_EXPIRED    = logging.Event("request_expired")
	REQUEST_REISSUED   = logging.Event("request_reissued")
	REQUEST_REPEATED   = logging.Event("request_repeated")
	REJECT_SENT        = logging.Event("reject_sent")
	VALUE_RECEIVED     = logging.Event("value_received")
	VALUE_DISCARDED    = logging.Event("value_discarded")
	PROTOCOL_VIOLATION = logging.Event("protocol_violation")
	REMOTE_UNREACHABLE = logging.Event("remote_unreachable")
	ACK_FAILED         = logging.Event("ack_failed")
	STREAM_CLOSED      = logging.Event("stream_closed")
	STREAM_ATTACHED    = logging.Event("stream_attached")
	TICK_PENDING       = logging.Event("tick_pending")
	TICK_RESOLVED      = logging.Event("tick_resolved")
	TICK_EXPIRED       = logging.Event("tick_expired")
	BROWSE_EXPIRED     = logging.Event("browse_expired")
	SEND_FAILED        = logging.Event("send_failed")
)

// log fields
const (
	TICK        = "tick"
	EPOCH       = "epoch"
	REMOTE      = "remote"
	DESTINATION = "dest"
	MSG_TYPE    = "msg_type"
	ATTEMPT     = "attempt"
	BROWSE_ID   = "browse_id"
)
