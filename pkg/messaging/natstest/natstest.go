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

package natstest

import (
	"testing"
	"time"

	natsio "github.com/nats-io/go-nats"
	"github.com/oysterpack/anycast/pkg/messaging/nats"
)

const ReConnectTimeout = 10 * time.Millisecond

// Connect creates a managed connection to the test server running on the specified port.
// The test fails if the connection cannot be created.
func Connect(t *testing.T, port int) *nats.Conn {
	t.Helper()
	conn, err := nats.Connect(URL(port), natsio.ReconnectWait(ReConnectTimeout))
	if err != nil {
		t.Fatalf("nats.Connect failed : %v", err)
	}
	return conn
}
