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
	"math/rand"
	"time"

	"github.com/oysterpack/anycast/pkg/logging"
)

// Transport delivers envelopes to remote nodes. Delivery is assumed to be ordered per remote node.
type Transport interface {
	Send(remote NodeID, env *Envelope) error
}

// TransportFunc adapts a func to a Transport
type TransportFunc func(remote NodeID, env *Envelope) error

func (a TransportFunc) Send(remote NodeID, env *Envelope) error {
	return a(remote, env)
}

// sendWithRetry makes up to attempts tries, waiting an exponentially growing random backoff between tries.
// If all attempts fail, the last error is returned.
func sendWithRetry(transport Transport, remote NodeID, env *Envelope, attempts int, backoff time.Duration) error {
	var err error
	wait := backoff
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = transport.Send(remote, env); err == nil {
			return nil
		}
		logger.Debug().
			Str(REMOTE, string(remote)).
			Str(MSG_TYPE, string(env.Type)).
			Str(logging.STREAM, string(env.Stream)).
			Int(ATTEMPT, attempt).
			Err(err).
			Msg("send failed")
		if attempt == attempts {
			break
		}
		time.Sleep(wait)
		if wait > 0 {
			wait += time.Duration(rand.Int63n(int64(wait)))
		}
	}
	return err
}
