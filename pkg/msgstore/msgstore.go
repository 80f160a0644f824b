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

// Package msgstore provides the local message store that an OutputStream resolves requests against.
//
// The store owns the messages. The anycast protocol never deletes messages itself: it reserves a message for a
// remote requester, releases the reservation when the request is rejected or expires, and completes it once the
// requester acknowledges delivery.
package msgstore

import (
	"strings"
	"time"
)

// Reliability is the delivery quality classification of a message
type Reliability int

const (
	ReliabilityUnknown Reliability = iota
	BestEffortNonPersistent
	ExpressNonPersistent
	ReliableNonPersistent
	ReliablePersistent
	AssuredPersistent
)

func (a Reliability) String() string {
	switch a {
	case BestEffortNonPersistent:
		return "BEST_EFFORT_NONPERSISTENT"
	case ExpressNonPersistent:
		return "EXPRESS_NONPERSISTENT"
	case ReliableNonPersistent:
		return "RELIABLE_NONPERSISTENT"
	case ReliablePersistent:
		return "RELIABLE_PERSISTENT"
	case AssuredPersistent:
		return "ASSURED_PERSISTENT"
	default:
		return "UNKNOWN"
	}
}

// Assured returns true for persistent qualities of service
func (a Reliability) Assured() bool {
	return a >= ReliablePersistent
}

// ParseReliability also accepts the short names BEST_EFFORT, EXPRESS, RELIABLE, and ASSURED
func ParseReliability(s string) Reliability {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BEST_EFFORT_NONPERSISTENT", "BEST_EFFORT":
		return BestEffortNonPersistent
	case "EXPRESS_NONPERSISTENT", "EXPRESS":
		return ExpressNonPersistent
	case "RELIABLE_NONPERSISTENT":
		return ReliableNonPersistent
	case "RELIABLE_PERSISTENT", "RELIABLE":
		return ReliablePersistent
	case "ASSURED_PERSISTENT", "ASSURED":
		return AssuredPersistent
	default:
		return ReliabilityUnknown
	}
}

const (
	MinPriority = 0
	MaxPriority = 9
	// DefaultPriority is applied to messages whose priority is out of range
	DefaultPriority = 4
)

// Message is a message held by the local store for a destination.
type Message struct {
	// Seq is assigned by the store when the message is appended. Seq is strictly increasing per store.
	Seq         uint64            `json:"seq"`
	Destination string            `json:"dest"`
	Topic       string            `json:"topic,omitempty"`
	Priority    int               `json:"priority"`
	Reliability Reliability       `json:"reliability"`
	Properties  map[string]string `json:"props,omitempty"`
	Payload     []byte            `json:"payload,omitempty"`
	Created     time.Time         `json:"created"`
}

// Property returns the named property. The "topic" property maps to the Topic field.
func (a *Message) Property(name string) (string, bool) {
	if name == "topic" {
		return a.Topic, a.Topic != ""
	}
	v, ok := a.Properties[name]
	return v, ok
}

// Matcher is used to apply selection criteria to stored messages
type Matcher func(msg *Message) bool

// MatchAll matches every message
func MatchAll(msg *Message) bool {
	return true
}

// Store is the message store interface consumed by the anycast protocol.
// All methods are safe for concurrent use.
type Store interface {
	// Append stores the message and assigns its sequence number
	Append(msg *Message) (uint64, error)

	// Get returns ErrMessageNotFound if the message does not exist
	Get(destination string, seq uint64) (*Message, error)

	// Reserve locks the oldest unreserved message for the destination that matches and records the owner.
	// If no message matches, then nil is returned.
	Reserve(destination string, match Matcher, owner string) (*Message, error)

	// Release unlocks a reserved message, making it available to other requesters
	Release(destination string, seq uint64) error

	// Complete is invoked when delivery of a reserved message has been acknowledged. The store decides what to do
	// with the message, i.e., both implementations remove it.
	Complete(destination string, seq uint64) error

	// Next returns the first message with a sequence number greater than after that matches, regardless of
	// reservations. It never modifies the store. If there is none, then nil is returned.
	Next(destination string, after uint64, match Matcher) (*Message, error)

	// Count returns the number of messages held for the destination
	Count(destination string) (int, error)

	// NextEpoch increments and returns the store's instance epoch.
	NextEpoch() (uint64, error)

	Close() error
}

func checkMessage(msg *Message) error {
	if msg == nil {
		return ErrMessageNil
	}
	msg.Destination = strings.TrimSpace(msg.Destination)
	if msg.Destination == "" {
		return ErrDestinationBlank
	}
	if msg.Priority < MinPriority || msg.Priority > MaxPriority {
		msg.Priority = DefaultPriority
	}
	if msg.Reliability == ReliabilityUnknown {
		msg.Reliability = ReliablePersistent
	}
	if msg.Created.IsZero() {
		msg.Created = time.Now()
	}
	return nil
}
