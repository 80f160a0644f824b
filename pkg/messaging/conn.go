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

package messaging

import (
	"time"
)

// MessageProcessor processes messages received on a subscription.
// Messages are processed sequentially, in the order they were received.
type MessageProcessor func(msg *Message)

// Conn represents a messaging connection
type Conn interface {
	// ID is a unique identifier assigned to the connection for tracking purposes
	ID() string

	// Publish sends the message in fire and forget fashion
	Publish(msg *Message) error

	// Subscribe creates an async topic subscription. Received messages are buffered and relayed to the processor.
	Subscribe(topic Topic, bufSize int, process MessageProcessor) (Subscription, error)

	// Close will close the connection to the server. This call will release all blocking calls
	Close()

	// Closed tests if a Conn has been closed.
	Closed() bool

	// Connected tests if a Conn is connected.
	Connected() bool

	// LastError reports the last error encountered via the connection and when it occurred
	LastError() *ConnErr
}

// ConnErr contains a conn error and when it happened
type ConnErr struct {
	Error     error
	Timestamp time.Time
}
