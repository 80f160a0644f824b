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

import "time"

// Settings are the protocol tuning parameters
type Settings struct {
	// EagerRepeatInterval is how often an unacknowledged request is re-sent
	EagerRepeatInterval time.Duration
	// SlowedRepeatInterval is how often a request is re-sent once the responder has acknowledged it
	SlowedRepeatInterval time.Duration
	// SendAttempts is the maximum number of attempts made to send a message before the remote is deemed unreachable
	SendAttempts int
	// SendBackoff is the initial wait between send attempts. It grows exponentially.
	SendBackoff time.Duration
	// BrowseTimeout is how long an idle responder side browse session is kept
	BrowseTimeout time.Duration
}

// DefaultSettings returns the default protocol settings
func DefaultSettings() Settings {
	return Settings{
		EagerRepeatInterval:  time.Second,
		SlowedRepeatInterval: 5 * time.Second,
		SendAttempts:         3,
		SendBackoff:          50 * time.Millisecond,
		BrowseTimeout:        time.Minute,
	}
}

func (a Settings) withDefaults() Settings {
	defaults := DefaultSettings()
	if a.EagerRepeatInterval <= 0 {
		a.EagerRepeatInterval = defaults.EagerRepeatInterval
	}
	if a.SlowedRepeatInterval <= 0 {
		a.SlowedRepeatInterval = defaults.SlowedRepeatInterval
	}
	if a.SendAttempts <= 0 {
		a.SendAttempts = defaults.SendAttempts
	}
	if a.SendBackoff <= 0 {
		a.SendBackoff = defaults.SendBackoff
	}
	if a.BrowseTimeout <= 0 {
		a.BrowseTimeout = defaults.BrowseTimeout
	}
	return a
}
