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
	"context"
	"strings"
	"sync"

	"github.com/nats-io/nuid"
	"github.com/oysterpack/anycast/pkg/msgstore"
)

type browseResponse struct {
	seq uint64
	msg *msgstore.Message
	end bool
}

// RemoteBrowser browses a destination held by a remote node. Each call to Next is one round trip.
// The browser tracks the seq of the last message it received, which means a repeated get never skips a message.
type RemoteBrowser struct {
	mutex sync.Mutex
	// serializes calls to Next
	gets sync.Mutex

	id          string
	stream      StreamID
	remote      NodeID
	destination string
	criteria    []string

	handler   *RequestHandler
	responses chan browseResponse
	done      chan struct{}
	onFinish  func(*RemoteBrowser)

	seq      uint64
	finished bool
}

// NewRemoteBrowser creates a browser. It must be registered with the ResponseHandler to receive responses.
func NewRemoteBrowser(remote NodeID, destination string, criteria []string, handler *RequestHandler) (*RemoteBrowser, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, ErrDestinationBlank
	}
	if _, err := ParseCriteria(criteria); err != nil {
		return nil, err
	}
	return &RemoteBrowser{
		id:          nuid.Next(),
		stream:      NewStreamID(),
		remote:      remote,
		destination: destination,
		criteria:    append([]string(nil), criteria...),
		handler:     handler,
		responses:   make(chan browseResponse, 8),
		done:        make(chan struct{}),
	}, nil
}

func (a *RemoteBrowser) ID() string {
	return a.id
}

func (a *RemoteBrowser) Stream() StreamID {
	return a.stream
}

// Next returns the next message, or nil when the remote has no more messages to browse.
func (a *RemoteBrowser) Next(ctx context.Context) (*msgstore.Message, error) {
	a.gets.Lock()
	defer a.gets.Unlock()
	a.mutex.Lock()
	finished, seq := a.finished, a.seq
	a.mutex.Unlock()
	if finished {
		return nil, ErrBrowseFinished
	}
	if err := a.handler.sendBrowseGet(a, seq); err != nil {
		return nil, err
	}
	for {
		select {
		case resp := <-a.responses:
			if resp.end {
				if resp.seq != seq {
					continue
				}
				return nil, nil
			}
			if resp.seq <= seq {
				continue
			}
			a.mutex.Lock()
			a.seq = resp.seq
			a.mutex.Unlock()
			return resp.msg, nil
		case <-a.done:
			return nil, ErrBrowseFinished
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Finished closes the remote browse session. It is idempotent.
func (a *RemoteBrowser) Finished() error {
	a.mutex.Lock()
	if a.finished {
		a.mutex.Unlock()
		return nil
	}
	a.finished = true
	close(a.done)
	onFinish := a.onFinish
	a.mutex.Unlock()
	if onFinish != nil {
		onFinish(a)
	}
	return a.handler.sendBrowseClose(a)
}

func (a *RemoteBrowser) deliver(resp browseResponse) {
	select {
	case a.responses <- resp:
	default:
		// the browser is not waiting for this response
	}
}
