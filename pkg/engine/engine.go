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

// Package engine runs an anycast node: it is both a requester and a responder. Envelopes received on the node's
// topic are dispatched to the protocol handlers, and a sweeper periodically expires and repeats requests.
package engine

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oysterpack/anycast/pkg/anycast"
	"github.com/oysterpack/anycast/pkg/logging"
	"github.com/oysterpack/anycast/pkg/messaging"
	"github.com/oysterpack/anycast/pkg/msgstore"
	"gopkg.in/tomb.v2"
)

var (
	ErrNotStarted     = errors.New("Engine is not started")
	ErrAlreadyStarted = errors.New("Engine is already started")
	ErrStopped        = errors.New("Engine is stopped")
)

// Transport sends envelopes to remote nodes, and listens for envelopes addressed to the local node
type Transport interface {
	anycast.Transport
	Listen(node anycast.NodeID, bufSize int, handle func(env *anycast.Envelope)) (messaging.Subscription, error)
}

type Config struct {
	Node     anycast.NodeID
	Settings anycast.Settings
	// DefaultTimeout applies to Get
	DefaultTimeout time.Duration
	SweepInterval  time.Duration
	// SubscriberBufSize is the transport buffer size
	SubscriberBufSize int
	// EnvelopeBufSize is the dispatch channel buffer size
	EnvelopeBufSize int
}

const (
	DEFAULT_SWEEP_INTERVAL    = 100 * time.Millisecond
	DEFAULT_TIMEOUT           = 30 * time.Second
	DEFAULT_ENVELOPE_BUF_SIZE = 256
)

// MessageHandler processes an envelope of a specific message type
type MessageHandler func(env *anycast.Envelope) error

// Engine is an anycast node
type Engine struct {
	tomb.Tomb

	mutex sync.RWMutex

	config Config
	epoch  uint64

	store     msgstore.Store
	transport Transport

	requests  *anycast.RequestHandler
	responses *anycast.ResponseHandler
	output    *anycast.OutputHandler
	handlers  map[anycast.MessageType]MessageHandler

	// key = remote/destination
	consumers map[string]*consumer

	envelopes    chan *anycast.Envelope
	subscription messaging.Subscription
	started      bool
	now          func() time.Time
}

// New creates an Engine. The store's epoch is incremented, which means that requests acknowledged by a previous
// instance of this node are reissued by their requesters.
func New(config Config, store msgstore.Store, transport Transport) (*Engine, error) {
	if strings.TrimSpace(string(config.Node)) == "" {
		config.Node = anycast.NewNodeID()
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DEFAULT_SWEEP_INTERVAL
	}
	if config.DefaultTimeout == 0 {
		config.DefaultTimeout = DEFAULT_TIMEOUT
	}
	if config.EnvelopeBufSize <= 0 {
		config.EnvelopeBufSize = DEFAULT_ENVELOPE_BUF_SIZE
	}
	epoch, err := store.NextEpoch()
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    config,
		epoch:     epoch,
		store:     store,
		transport: transport,
		requests:  anycast.NewRequestHandler(config.Node, transport, config.Settings),
		responses: anycast.NewResponseHandler(),
		output:    anycast.NewOutputHandler(config.Node, epoch, store, transport, config.Settings),
		consumers: map[string]*consumer{},
		envelopes: make(chan *anycast.Envelope, config.EnvelopeBufSize),
		now:       time.Now,
	}
	engine.handlers = map[anycast.MessageType]MessageHandler{
		// responder
		anycast.REQUEST:      engine.output.HandleRequest,
		anycast.ACK:          engine.output.HandleAck,
		anycast.REJECT:       engine.output.HandleReject,
		anycast.BROWSE_GET:   engine.output.HandleBrowseGet,
		anycast.BROWSE_CLOSE: engine.output.HandleBrowseClose,
		// requester
		anycast.VALUE:            engine.responses.HandleValue,
		anycast.NOT_FOUND:        engine.responses.HandleNotFound,
		anycast.REISSUE_REQUIRED: engine.responses.HandleReissueRequired,
		anycast.REQUEST_ACK:      engine.responses.HandleRequestAck,
		anycast.BROWSE_DATA:      engine.responses.HandleBrowseData,
		anycast.BROWSE_END:       engine.responses.HandleBrowseEnd,
	}
	return engine, nil
}

// Node returns the node id that remote nodes address this engine by
func (a *Engine) Node() anycast.NodeID {
	return a.config.Node
}

// Epoch returns the responder epoch of this engine instance
func (a *Engine) Epoch() uint64 {
	return a.epoch
}

// Handler returns the handler registered for the message type
func (a *Engine) Handler(msgType anycast.MessageType) MessageHandler {
	return a.handlers[msgType]
}

// OutputHandler exposes the responder streams for administration
func (a *Engine) OutputHandler() *anycast.OutputHandler {
	return a.output
}

// ResponseHandler exposes the requester streams and browsers for administration
func (a *Engine) ResponseHandler() *anycast.ResponseHandler {
	return a.responses
}

// Start subscribes to the node's topic, and starts the dispatcher and the sweeper
func (a *Engine) Start() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	select {
	case <-a.Dying():
		return ErrStopped
	default:
	}
	if a.started {
		return ErrAlreadyStarted
	}

	subscription, err := a.transport.Listen(a.config.Node, a.config.SubscriberBufSize, a.receive)
	if err != nil {
		return err
	}
	a.subscription = subscription
	a.started = true

	a.Go(a.dispatch)
	a.Go(a.sweep)
	STARTED.Log(logger.Info()).Str(logging.NODE, string(a.config.Node)).Uint64(anycast.EPOCH, a.epoch).Msg("")
	return nil
}

// receive relays envelopes from the transport to the dispatcher
func (a *Engine) receive(env *anycast.Envelope) {
	select {
	case a.envelopes <- env:
	case <-a.Dying():
	}
}

func (a *Engine) dispatch() error {
	for {
		select {
		case <-a.Dying():
			return nil
		case env := <-a.envelopes:
			a.handle(env)
		}
	}
}

func (a *Engine) handle(env *anycast.Envelope) {
	handler := a.handlers[env.Type]
	if handler == nil {
		UNKNOWN_MESSAGE_TYPE.Log(logger.Warn()).
			Str(logging.NODE, string(a.config.Node)).
			Str(anycast.MSG_TYPE, string(env.Type)).
			Str(anycast.REMOTE, string(env.Source)).
			Msg("Message dropped")
		return
	}
	if err := handler(env); err != nil {
		HANDLER_FAILED.Log(logger.Debug()).
			Str(logging.NODE, string(a.config.Node)).
			Str(anycast.MSG_TYPE, string(env.Type)).
			Str(anycast.REMOTE, string(env.Source)).
			Str(logging.STREAM, string(env.Stream)).
			Err(err).
			Msg("")
	}
}

func (a *Engine) sweep() error {
	ticker := time.NewTicker(a.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.Dying():
			return nil
		case <-ticker.C:
			a.Sweep(a.now())
		}
	}
}

// Sweep expires and repeats outstanding requests, and expires pending responder ticks and idle browse sessions.
// It is run periodically by the engine.
func (a *Engine) Sweep(now time.Time) {
	for _, stream := range a.responses.Streams() {
		stream.OnTimeoutSweep(now)
		stream.Repeat(now)
	}
	a.output.Sweep(now)
}

// Stop unsubscribes from the node's topic, stops the engine's goroutines, and closes all streams.
// The store is not closed: it is owned by the caller.
func (a *Engine) Stop() error {
	a.mutex.Lock()
	started := a.started
	subscription := a.subscription
	a.mutex.Unlock()

	STOPPING.Log(logger.Info()).Str(logging.NODE, string(a.config.Node)).Msg("")
	if subscription != nil {
		subscription.Unsubscribe()
	}
	a.Kill(nil)
	var err error
	if started {
		err = a.Wait()
	}

	for _, consumer := range a.consumerList() {
		a.closeConsumer(consumer)
	}
	for _, browser := range a.responses.Browsers() {
		browser.Finished()
	}
	a.output.Close()
	STOPPED.Log(logger.Info()).Str(logging.NODE, string(a.config.Node)).Msg("")
	return err
}

// Publish stores the message, and resolves pending requests for the message's destination
func (a *Engine) Publish(msg *msgstore.Message) (uint64, error) {
	seq, err := a.store.Append(msg)
	if err != nil {
		return 0, err
	}
	a.output.Notify(msg.Destination)
	return seq, nil
}

// Browse creates a browser for a destination held by a remote node. The browser must be finished when done.
func (a *Engine) Browse(remote anycast.NodeID, destination string, criteria []string) (*anycast.RemoteBrowser, error) {
	if err := a.checkAlive(); err != nil {
		return nil, err
	}
	browser, err := anycast.NewRemoteBrowser(remote, destination, criteria, a.requests)
	if err != nil {
		return nil, err
	}
	a.responses.RegisterBrowser(browser)
	return browser, nil
}

func (a *Engine) checkAlive() error {
	select {
	case <-a.Dying():
		return ErrStopped
	default:
	}
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	if !a.started {
		return ErrNotStarted
	}
	return nil
}
