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

// Package server runs an embedded NATS server, which lets a single anycast node run without external messaging
// infrastructure.
package server

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	natsserver "github.com/nats-io/gnatsd/server"
)

// Default config settings
const (
	DEFAULT_HOST        = "127.0.0.1"
	DEFAULT_SERVER_PORT = natsserver.DEFAULT_PORT
	DEFAULT_MAXPAYLOAD  = 1024 * 1024 // 1 MB
	// RANDOM_PORT lets the server pick an available port
	RANDOM_PORT         = natsserver.RANDOM_PORT

	DEFAULT_STARTUP_TIMEOUT = 10 * time.Second
)

var (
	ErrServerNotReady = errors.New("NATS server is not ready for connections")
	ErrServerStopped  = errors.New("NATS server is stopped")
)

// Config is the embedded NATS server config.
// Zero values are replaced by the defaults.
type Config struct {
	Host       string
	Port       int
	MaxPayload int
	// LogLevel is one of DEBUG, TRACE, INFO. TRACE also enables debug logging.
	LogLevel string
}

func (a Config) withDefaults() Config {
	if strings.TrimSpace(a.Host) == "" {
		a.Host = DEFAULT_HOST
	}
	if a.Port == 0 {
		a.Port = DEFAULT_SERVER_PORT
	}
	if a.MaxPayload <= 0 {
		a.MaxPayload = DEFAULT_MAXPAYLOAD
	}
	return a
}

func (a Config) debug() bool {
	level := strings.ToUpper(a.LogLevel)
	return level == "DEBUG" || level == "TRACE"
}

func (a Config) trace() bool {
	return strings.ToUpper(a.LogLevel) == "TRACE"
}

// NewNATSServer creates a new NATSServer. The server is not started.
func NewNATSServer(config Config) *NATSServer {
	config = config.withDefaults()
	opts := &natsserver.Options{
		Host:       config.Host,
		Port:       config.Port,
		MaxPayload: config.MaxPayload,
		NoSigs:     true,
		Debug:      config.debug(),
		Trace:      config.trace(),
	}
	s := natsserver.New(opts)
	s.SetLogger(NewNATSLogger(logger), config.debug(), config.trace())
	return &NATSServer{Server: s, config: config}
}

// NATSServer is an embedded NATS server
type NATSServer struct {
	sync.Mutex
	*natsserver.Server

	config  Config
	started bool
	stopped bool
}

// StartUp starts the server, and waits until it is ready for connections.
// If the server is not ready within the timeout, then it is shutdown and ErrServerNotReady is returned.
func (a *NATSServer) StartUp(timeout time.Duration) error {
	a.Lock()
	defer a.Unlock()
	if a.stopped {
		return ErrServerStopped
	}
	if a.started {
		return nil
	}

	go a.Server.Start()
	if timeout <= 0 {
		timeout = DEFAULT_STARTUP_TIMEOUT
	}
	if !a.ReadyForConnections(timeout) {
		logger.Error().Dur("timeout", timeout).Msg("NATS server did not become ready. Server will be shutdown.")
		a.Server.Shutdown()
		a.stopped = true
		return ErrServerNotReady
	}
	a.started = true
	logger.Info().Str("url", a.url()).Msg("NATS server started")
	return nil
}

// URL returns the client connect URL. It is only valid once the server is started.
func (a *NATSServer) URL() string {
	a.Lock()
	defer a.Unlock()
	return a.url()
}

func (a *NATSServer) url() string {
	if addr, ok := a.Addr().(*net.TCPAddr); ok && addr != nil {
		return fmt.Sprintf("nats://%s:%d", a.config.Host, addr.Port)
	}
	return fmt.Sprintf("nats://%s:%d", a.config.Host, a.config.Port)
}

// Shutdown stops the NATS server. It is safe to call more than once.
func (a *NATSServer) Shutdown() {
	a.Lock()
	defer a.Unlock()
	if a.stopped {
		return
	}
	a.stopped = true
	a.Server.Shutdown()
	logger.Info().Msg("NATS server shutdown")
}
