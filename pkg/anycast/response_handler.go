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

	"github.com/oysterpack/anycast/pkg/logging"
)

// ResponseHandler routes the responder's replies to the input streams and remote browsers of the local node.
// Replies for streams that are not registered are discarded with ErrStreamNotFound.
type ResponseHandler struct {
	mutex    sync.RWMutex
	streams  map[StreamID]*InputStream
	browsers map[string]*RemoteBrowser
}

func NewResponseHandler() *ResponseHandler {
	return &ResponseHandler{
		streams:  map[StreamID]*InputStream{},
		browsers: map[string]*RemoteBrowser{},
	}
}

// Register adds the stream
func (a *ResponseHandler) Register(stream *InputStream) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.streams[stream.id] = stream
}

// Deregister removes the stream. The stream is not dereferenced.
func (a *ResponseHandler) Deregister(id StreamID) (*InputStream, bool) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	stream, ok := a.streams[id]
	delete(a.streams, id)
	return stream, ok
}

// Stream looks up a registered stream
func (a *ResponseHandler) Stream(id StreamID) (*InputStream, bool) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	stream, ok := a.streams[id]
	return stream, ok
}

// Streams returns the registered streams ordered by id
func (a *ResponseHandler) Streams() []*InputStream {
	a.mutex.RLock()
	streams := make([]*InputStream, 0, len(a.streams))
	for _, stream := range a.streams {
		streams = append(streams, stream)
	}
	a.mutex.RUnlock()
	sort.Slice(streams, func(i, j int) bool { return streams[i].id < streams[j].id })
	return streams
}

// RegisterBrowser adds the browser. The browser deregisters itself when it is finished.
func (a *ResponseHandler) RegisterBrowser(browser *RemoteBrowser) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	browser.onFinish = a.deregisterBrowser
	a.browsers[browser.id] = browser
}

func (a *ResponseHandler) deregisterBrowser(browser *RemoteBrowser) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	delete(a.browsers, browser.id)
}

// Browsers returns the registered remote browsers
func (a *ResponseHandler) Browsers() []*RemoteBrowser {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	browsers := make([]*RemoteBrowser, 0, len(a.browsers))
	for _, browser := range a.browsers {
		browsers = append(browsers, browser)
	}
	return browsers
}

func (a *ResponseHandler) stream(env *Envelope) (*InputStream, error) {
	stream, ok := a.Stream(env.Stream)
	if !ok {
		PROTOCOL_VIOLATION.Log(logger.Debug()).
			Str(logging.STREAM, string(env.Stream)).
			Str(MSG_TYPE, string(env.Type)).
			Str(REMOTE, string(env.Source)).
			Msg("unknown stream")
		return nil, ErrStreamNotFound
	}
	return stream, nil
}

func (a *ResponseHandler) browser(id string) (*RemoteBrowser, error) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	browser, ok := a.browsers[id]
	if !ok {
		return nil, ErrStreamNotFound
	}
	return browser, nil
}

func (a *ResponseHandler) HandleValue(env *Envelope) error {
	msg := &ValueMessage{}
	if err := env.DecodeBody(msg); err != nil {
		return err
	}
	stream, err := a.stream(env)
	if err != nil {
		return err
	}
	stream.OnValueReceived(msg)
	return nil
}

func (a *ResponseHandler) HandleNotFound(env *Envelope) error {
	msg := &NotFoundMessage{}
	if err := env.DecodeBody(msg); err != nil {
		return err
	}
	stream, err := a.stream(env)
	if err != nil {
		return err
	}
	stream.OnNotFound(msg)
	return nil
}

func (a *ResponseHandler) HandleReissueRequired(env *Envelope) error {
	msg := &ReissueRequiredMessage{}
	if err := env.DecodeBody(msg); err != nil {
		return err
	}
	stream, err := a.stream(env)
	if err != nil {
		return err
	}
	stream.OnReissueRequired(msg)
	return nil
}

func (a *ResponseHandler) HandleRequestAck(env *Envelope) error {
	msg := &RequestAckMessage{}
	if err := env.DecodeBody(msg); err != nil {
		return err
	}
	stream, err := a.stream(env)
	if err != nil {
		return err
	}
	stream.OnRequestAck(msg)
	return nil
}

func (a *ResponseHandler) HandleBrowseData(env *Envelope) error {
	msg := &BrowseDataMessage{}
	if err := env.DecodeBody(msg); err != nil {
		return err
	}
	browser, err := a.browser(msg.BrowseID)
	if err != nil {
		return err
	}
	browser.deliver(browseResponse{seq: msg.Seq, msg: msg.Message})
	return nil
}

func (a *ResponseHandler) HandleBrowseEnd(env *Envelope) error {
	msg := &BrowseEndMessage{}
	if err := env.DecodeBody(msg); err != nil {
		return err
	}
	browser, err := a.browser(msg.BrowseID)
	if err != nil {
		return err
	}
	browser.deliver(browseResponse{seq: msg.Seq, end: true})
	return nil
}
