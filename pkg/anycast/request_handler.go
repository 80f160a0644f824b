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
	"time"

	"github.com/oysterpack/anycast/pkg/logging"
	"github.com/oysterpack/anycast/pkg/tick"
)

// RequestHandler sends the requester side traffic of input streams. Sends are retried with the same tick up to
// Settings.SendAttempts times. If the remote cannot be reached, ErrRemoteUnreachable is returned.
type RequestHandler struct {
	node      NodeID
	transport Transport
	settings  Settings
	metrics   *requesterMetrics

	now func() time.Time
}

// NewRequestHandler creates a new RequestHandler for the local node
func NewRequestHandler(node NodeID, transport Transport, settings Settings) *RequestHandler {
	return &RequestHandler{
		node:      node,
		transport: transport,
		settings:  settings.withDefaults(),
		metrics:   newRequesterMetrics(node),
		now:       time.Now,
	}
}

// SetClock replaces the clock used to timestamp requests
func (a *RequestHandler) SetClock(now func() time.Time) {
	a.now = now
}

// Node returns the local node id
func (a *RequestHandler) Node() NodeID {
	return a.node
}

// Settings returns the protocol settings
func (a *RequestHandler) Settings() Settings {
	return a.settings
}

func (a *RequestHandler) send(remote NodeID, stream StreamID, destination string, msgType MessageType, body interface{}) error {
	env, err := NewEnvelope(msgType, a.node, stream, destination, body)
	if err != nil {
		return err
	}
	if err := sendWithRetry(a.transport, remote, env, a.settings.SendAttempts, a.settings.SendBackoff); err != nil {
		a.metrics.sendFailures.Inc()
		REMOTE_UNREACHABLE.Log(logger.Error()).
			Str(logging.NODE, string(a.node)).
			Str(REMOTE, string(remote)).
			Str(logging.STREAM, string(stream)).
			Str(MSG_TYPE, string(msgType)).
			Err(err).
			Msg("")
		return fmt.Errorf("%w : %v", ErrRemoteUnreachable, err)
	}
	return nil
}

func (a *RequestHandler) sendRequest(stream *InputStream, msg *RequestMessage) error {
	err := a.send(stream.remote, stream.id, stream.destination, REQUEST, msg)
	if err == nil {
		REQUEST_SENT.Log(logger.Debug()).
			Str(logging.STREAM, string(stream.id)).
			Uint64(TICK, uint64(msg.Tick)).
			Uint64(EPOCH, msg.AckingEpoch).
			Msg("")
	}
	return err
}

func (a *RequestHandler) sendAck(stream *InputStream, t tick.Tick) error {
	return a.send(stream.remote, stream.id, stream.destination, ACK, &AckMessage{Tick: t})
}

func (a *RequestHandler) sendReject(stream *InputStream, t tick.Tick) error {
	return a.send(stream.remote, stream.id, stream.destination, REJECT, &RejectMessage{Tick: t})
}

func (a *RequestHandler) sendBrowseGet(browser *RemoteBrowser, seq uint64) error {
	return a.send(browser.remote, browser.stream, browser.destination, BROWSE_GET, &BrowseGetMessage{
		BrowseID: browser.id,
		Criteria: browser.criteria,
		Seq:      seq,
	})
}

func (a *RequestHandler) sendBrowseClose(browser *RemoteBrowser) error {
	return a.send(browser.remote, browser.stream, browser.destination, BROWSE_CLOSE, &BrowseCloseMessage{BrowseID: browser.id})
}
