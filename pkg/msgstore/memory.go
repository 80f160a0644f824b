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

package msgstore

import (
	"sort"
	"sync"
	"time"
)

// NewMemoryStore returns a store that keeps messages in memory.
// Its epoch is derived from the process start time, which guarantees that a restarted process reports a greater
// epoch than the instance it replaces.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		destinations: map[string]*memoryDestination{},
		epoch:        uint64(time.Now().UnixNano()),
	}
}

type MemoryStore struct {
	mutex sync.Mutex

	destinations map[string]*memoryDestination
	seq          uint64
	epoch        uint64
	closed       bool
}

type memoryDestination struct {
	// ordered by seq
	messages []*Message
	reserved map[uint64]string
}

func (a *memoryDestination) index(seq uint64) int {
	i := sort.Search(len(a.messages), func(i int) bool { return a.messages[i].Seq >= seq })
	if i < len(a.messages) && a.messages[i].Seq == seq {
		return i
	}
	return -1
}

func (a *MemoryStore) destination(name string, create bool) *memoryDestination {
	dest := a.destinations[name]
	if dest == nil && create {
		dest = &memoryDestination{reserved: map[uint64]string{}}
		a.destinations[name] = dest
	}
	return dest
}

func (a *MemoryStore) Append(msg *Message) (uint64, error) {
	if err := checkMessage(msg); err != nil {
		return 0, err
	}
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.closed {
		return 0, ErrStoreClosed
	}
	a.seq++
	stored := *msg
	stored.Seq = a.seq
	dest := a.destination(msg.Destination, true)
	dest.messages = append(dest.messages, &stored)
	msg.Seq = stored.Seq
	return stored.Seq, nil
}

func (a *MemoryStore) Get(destination string, seq uint64) (*Message, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.closed {
		return nil, ErrStoreClosed
	}
	dest := a.destination(destination, false)
	if dest == nil {
		return nil, ErrMessageNotFound
	}
	i := dest.index(seq)
	if i < 0 {
		return nil, ErrMessageNotFound
	}
	msg := *dest.messages[i]
	return &msg, nil
}

func (a *MemoryStore) Reserve(destination string, match Matcher, owner string) (*Message, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.closed {
		return nil, ErrStoreClosed
	}
	dest := a.destination(destination, false)
	if dest == nil {
		return nil, nil
	}
	for _, msg := range dest.messages {
		if _, reserved := dest.reserved[msg.Seq]; reserved {
			continue
		}
		if match(msg) {
			dest.reserved[msg.Seq] = owner
			reservedMsg := *msg
			return &reservedMsg, nil
		}
	}
	return nil, nil
}

func (a *MemoryStore) Release(destination string, seq uint64) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.closed {
		return ErrStoreClosed
	}
	dest := a.destination(destination, false)
	if dest == nil {
		return ErrNotReserved
	}
	if _, reserved := dest.reserved[seq]; !reserved {
		return ErrNotReserved
	}
	delete(dest.reserved, seq)
	return nil
}

func (a *MemoryStore) Complete(destination string, seq uint64) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.closed {
		return ErrStoreClosed
	}
	dest := a.destination(destination, false)
	if dest == nil {
		return ErrNotReserved
	}
	if _, reserved := dest.reserved[seq]; !reserved {
		return ErrNotReserved
	}
	delete(dest.reserved, seq)
	if i := dest.index(seq); i >= 0 {
		dest.messages = append(dest.messages[:i], dest.messages[i+1:]...)
	}
	return nil
}

func (a *MemoryStore) Next(destination string, after uint64, match Matcher) (*Message, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.closed {
		return nil, ErrStoreClosed
	}
	dest := a.destination(destination, false)
	if dest == nil {
		return nil, nil
	}
	i := sort.Search(len(dest.messages), func(i int) bool { return dest.messages[i].Seq > after })
	for ; i < len(dest.messages); i++ {
		if match(dest.messages[i]) {
			msg := *dest.messages[i]
			return &msg, nil
		}
	}
	return nil, nil
}

func (a *MemoryStore) Count(destination string) (int, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.closed {
		return 0, ErrStoreClosed
	}
	if dest := a.destination(destination, false); dest != nil {
		return len(dest.messages), nil
	}
	return 0, nil
}

func (a *MemoryStore) NextEpoch() (uint64, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.closed {
		return 0, ErrStoreClosed
	}
	a.epoch++
	return a.epoch, nil
}

func (a *MemoryStore) Close() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.closed = true
	return nil
}
