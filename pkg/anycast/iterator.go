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

// Iterator is a single pass iterator over a snapshot of the keys of a live collection.
//
// The iterator holds only the keys. Each entry is looked up when the iterator reaches it, and entries that have
// vanished in the meantime are skipped. Remove removes the entry last returned by Next from the live collection.
type Iterator struct {
	keys   []string
	i      int
	lookup func(key string) (*RecordInfo, bool)
	remove func(key string) bool

	next     *RecordInfo
	current  string
	finished bool
}

func newIterator(keys []string, lookup func(key string) (*RecordInfo, bool), remove func(key string) bool) *Iterator {
	return &Iterator{keys: keys, lookup: lookup, remove: remove}
}

func (a *Iterator) advance() {
	for a.next == nil && a.i < len(a.keys) {
		key := a.keys[a.i]
		a.i++
		if info, ok := a.lookup(key); ok {
			a.next = info
		}
	}
}

// HasNext returns true if there is another live entry
func (a *Iterator) HasNext() bool {
	if a.finished {
		return false
	}
	a.advance()
	return a.next != nil
}

// Next returns the next live entry, or nil past the end
func (a *Iterator) Next() *RecordInfo {
	if !a.HasNext() {
		return nil
	}
	info := a.next
	a.next = nil
	a.current = info.ID
	return info
}

// Remove removes the entry last returned by Next. It returns false if there is no such entry or it has vanished.
func (a *Iterator) Remove() bool {
	if a.finished || a.current == "" || a.remove == nil {
		return false
	}
	key := a.current
	a.current = ""
	return a.remove(key)
}

// Finished releases the snapshot. It has no effect on the underlying collection.
func (a *Iterator) Finished() {
	a.finished = true
	a.keys = nil
	a.next = nil
	a.current = ""
}
