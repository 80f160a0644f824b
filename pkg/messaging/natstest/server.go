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

// Package natstest provides NATS test servers and connections
package natstest

import (
	"fmt"

	"github.com/nats-io/gnatsd/server"
	gnatsd "github.com/nats-io/gnatsd/test"
)

// RunServer starts a test NATS server
func RunServer() *server.Server {
	return RunServerWithOptions(gnatsd.DefaultTestOptions)
}

// RunServerOnPort starts a test NATS server on the specified port
func RunServerOnPort(port int) *server.Server {
	opts := gnatsd.DefaultTestOptions
	opts.Port = port
	return RunServerWithOptions(opts)
}

// RunServerWithOptions starts a test NATS server with the specified options
func RunServerWithOptions(opts server.Options) *server.Server {
	return gnatsd.RunServer(&opts)
}

// URL returns the client URL for a test server running on the specified port
func URL(port int) string {
	return fmt.Sprintf("nats://%s:%d", gnatsd.DefaultTestOptions.Host, port)
}
