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
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nuid"
	"github.com/oysterpack/anycast/pkg/msgstore"
	"github.com/oysterpack/anycast/pkg/tick"
)

// BrowseSession is a non-destructive cursor over the messages of an OutputStream's destination.
// Browsing never reserves, consumes, or modifies messages.
type BrowseSession struct {
	mutex sync.Mutex

	id       string
	stream   *OutputStream
	criteria []string
	match    msgstore.Matcher

	// seq of the last message returned
	seq      uint64
	created  time.Time
	lastUsed time.Time
	finished bool
}

// Browse opens a local browse session
func (a *OutputStream) Browse(criteria []string) (*BrowseSession, error) {
	return a.browseSession(nuid.Next(), criteria)
}

// browseSession returns the session for the id, creating it if needed
func (a *OutputStream) browseSession(id string, criteria []string) (*BrowseSession, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.closed {
		return nil, ErrStreamClosed
	}
	now := a.now()
	a.lastActivity = now
	if session := a.sessions[id]; session != nil {
		return session, nil
	}
	match, err := ParseCriteria(criteria)
	if err != nil {
		return nil, err
	}
	session := &BrowseSession{
		id:       id,
		stream:   a,
		criteria: criteria,
		match:    match,
		created:  now,
		lastUsed: now,
	}
	a.sessions[id] = session
	return session, nil
}

// must be called while holding the lock
func (a *OutputStream) browseSessions() []*BrowseSession {
	sessions := make([]*BrowseSession, 0, len(a.sessions))
	for _, session := range a.sessions {
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].id < sessions[j].id })
	return sessions
}

func (a *OutputStream) removeSession(id string) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	delete(a.sessions, id)
}

// BrowseSession returns the active session for the id
func (a *OutputStream) BrowseSession(id string) (*BrowseSession, bool) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	session, ok := a.sessions[id]
	return session, ok
}

// BrowseSessionCount returns the number of active browse sessions
func (a *OutputStream) BrowseSessionCount() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return len(a.sessions)
}

// BrowseIterator iterates over the active browse sessions ordered by id. Removing an entry finishes the session.
func (a *OutputStream) BrowseIterator() *Iterator {
	a.mutex.Lock()
	keys := make([]string, 0, len(a.sessions))
	for id := range a.sessions {
		keys = append(keys, id)
	}
	a.mutex.Unlock()
	sort.Strings(keys)
	return newIterator(keys, func(key string) (*RecordInfo, bool) {
		session, ok := a.BrowseSession(key)
		if !ok {
			return nil, false
		}
		return session.Info(), true
	}, func(key string) bool {
		session, ok := a.BrowseSession(key)
		if !ok {
			return false
		}
		session.Finished()
		return true
	})
}

func (a *BrowseSession) ID() string {
	return a.id
}

// Next returns the next matching message, or nil if there are currently no more messages.
// Messages appended later are returned by subsequent calls.
func (a *BrowseSession) Next() (*msgstore.Message, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.next(a.seq)
}

// NextAfter returns the next matching message after seq. It is used to serve remote browsers, which track their
// own position, which makes repeated gets idempotent.
func (a *BrowseSession) NextAfter(seq uint64) (*msgstore.Message, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.next(seq)
}

func (a *BrowseSession) next(after uint64) (*msgstore.Message, error) {
	if a.finished {
		return nil, ErrBrowseFinished
	}
	a.lastUsed = a.stream.now()
	msg, err := a.stream.store.Next(a.stream.destination, after, a.match)
	if err != nil || msg == nil {
		return nil, err
	}
	a.seq = msg.Seq
	return msg, nil
}

// Finished ends the session. It is idempotent.
func (a *BrowseSession) Finished() {
	a.mutex.Lock()
	if a.finished {
		a.mutex.Unlock()
		return
	}
	a.finished = true
	a.mutex.Unlock()
	a.stream.removeSession(a.id)
}

func (a *BrowseSession) IsFinished() bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.finished
}

func (a *BrowseSession) idle(now time.Time) time.Duration {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return now.Sub(a.lastUsed)
}

// Info describes the session. The browse id is used as the record id.
func (a *BrowseSession) Info() *RecordInfo {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return &RecordInfo{
		ID:             a.id,
		IssueTime:      unixMillis(a.created),
		Timeout:        tick.UndefinedTime,
		CompletionTime: tick.UndefinedTime,
		AckingEpoch:    a.stream.epoch,
		Criteria:       append([]string(nil), a.criteria...),
	}
}
