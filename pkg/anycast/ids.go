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
	"fmt"

	"github.com/google/uuid"
)

// NodeID identifies a node. It is also used to derive the node's inbound transport topic.
type NodeID string

// NewNodeID returns a new random NodeID
func NewNodeID() NodeID {
	return NodeID(uuid.New().String())
}

// StreamID identifies an InputStream on its node
type StreamID string

// NewStreamID returns a new random StreamID
func NewStreamID() StreamID {
	return StreamID(uuid.New().String())
}

// StreamKey identifies a remote requester's stream on the responder side
type StreamKey struct {
	Requester NodeID
	Stream    StreamID
}

func (a StreamKey) String() string {
	return fmt.Sprintf("%s/%s", a.Requester, a.Stream)
}
