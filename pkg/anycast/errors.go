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
	"errors"
	"fmt"

	"github.com/oysterpack/anycast/pkg/tick"
)

var (
	// ErrStreamClosed is returned when the stream existed but has been torn down
	ErrStreamClosed = errors.New("Stream is closed")
	// ErrStreamNotFound is returned when the stream never existed
	ErrStreamNotFound = errors.New("Stream not found")
	// ErrRemoteUnreachable is returned when a message could not be sent within the configured number of attempts
	ErrRemoteUnreachable = errors.New("Remote node is unreachable")
	// ErrRequestExpired means that the request timed out before a value was received
	ErrRequestExpired = errors.New("Request expired")
	// ErrMessageNotFound means that the remote node has no matching message
	ErrMessageNotFound = errors.New("Message not found")
	// ErrRequestRejected means that the request was cancelled
	ErrRequestRejected = errors.New("Request rejected")
	ErrTickNotFound    = errors.New("Tick not found")
	ErrBrowseFinished  = errors.New("Browse session is finished")

	ErrInvalidCriteria     = errors.New("Invalid selection criteria")
	ErrDestinationBlank    = errors.New("Destination must not be blank")
	ErrUnknownMessageType  = errors.New("Unknown message type")
	ErrIncompatibleVersion = errors.New("Incompatible protocol version")
)

// StreamError reports an error for a tick on a stream
type StreamError struct {
	Stream StreamID
	Tick   tick.Tick
	Err    error
}

func (a *StreamError) Error() string {
	return fmt.Sprintf("stream %s tick %s : %v", a.Stream, a.Tick, a.Err)
}

func (a *StreamError) Unwrap() error {
	return a.Err
}
