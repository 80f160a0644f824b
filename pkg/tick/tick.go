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

// Package tick defines the sequence identifiers that position messages within a logical message stream.
package tick

import (
	"strconv"
	"sync"
	"time"
)

// Tick denotes a position in a logical, per destination message stream.
// Ticks are used only for ordering and correlation.
type Tick uint64

func (a Tick) String() string {
	return strconv.FormatUint(uint64(a), 10)
}

// Parse parses the stringified tick
func Parse(s string) (Tick, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return Tick(n), nil
}

const (
	// InfiniteTimeout means the request never expires
	InfiniteTimeout time.Duration = -1
	// NoWait means the request is answered immediately, i.e., it is never parked waiting for a message
	NoWait time.Duration = 0
	// UndefinedTime is used as the completion time when the timeout is infinite
	UndefinedTime int64 = -1
)

// NewGenerator returns a generator whose first tick is start + 1
func NewGenerator(start Tick) *Generator {
	return &Generator{n: start}
}

// Generator issues strictly increasing ticks. It is safe for concurrent use.
type Generator struct {
	m sync.Mutex
	n Tick
}

// Next returns the next tick
func (a *Generator) Next() Tick {
	a.m.Lock()
	a.n++
	n := a.n
	a.m.Unlock()
	return n
}

// Latest returns the last tick that was issued, or the start tick if no ticks have been issued
func (a *Generator) Latest() Tick {
	a.m.Lock()
	n := a.n
	a.m.Unlock()
	return n
}
