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

	"github.com/Masterminds/semver"
	"github.com/json-iterator/go"
)

// ProtocolVersion is stamped on every Envelope
const ProtocolVersion = "1.0.0"

var (
	json = jsoniter.ConfigCompatibleWithStandardLibrary

	protocolVersionConstraint = mustConstraint("^1.0.0")
)

func mustConstraint(c string) *semver.Constraints {
	constraint, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return constraint
}

// Envelope carries one protocol message between nodes
type Envelope struct {
	Type    MessageType `json:"type"`
	Version string      `json:"version"`
	// Source is the sending node. Replies are sent back to it.
	Source      NodeID              `json:"source"`
	Stream      StreamID            `json:"stream"`
	Destination string              `json:"dest,omitempty"`
	Body        jsoniter.RawMessage `json:"body"`
}

// NewEnvelope wraps the message body
func NewEnvelope(msgType MessageType, source NodeID, stream StreamID, destination string, body interface{}) (*Envelope, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Type:        msgType,
		Version:     ProtocolVersion,
		Source:      source,
		Stream:      stream,
		Destination: destination,
		Body:        data,
	}, nil
}

// DecodeBody unmarshals the message body into v
func (a *Envelope) DecodeBody(v interface{}) error {
	return json.Unmarshal(a.Body, v)
}

// StreamKey returns the key that the responder uses for the requester's stream
func (a *Envelope) StreamKey() StreamKey {
	return StreamKey{Requester: a.Source, Stream: a.Stream}
}

// Encode marshals the envelope for the wire
func Encode(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Decode unmarshals the envelope and checks that its protocol version is compatible
func Decode(data []byte) (*Envelope, error) {
	env := &Envelope{}
	if err := json.Unmarshal(data, env); err != nil {
		return nil, err
	}
	version, err := semver.NewVersion(env.Version)
	if err != nil {
		return nil, fmt.Errorf("%w : %v", ErrIncompatibleVersion, err)
	}
	if !protocolVersionConstraint.Check(version) {
		return nil, fmt.Errorf("%w : %s", ErrIncompatibleVersion, env.Version)
	}
	return env, nil
}
