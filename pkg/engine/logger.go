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

package engine

import (
	"github.com/oysterpack/anycast/pkg/logging"
)

type pkgobject struct{}

var logger = logging.NewPackageLogger(pkgobject{})

// log events
const (
	STARTED              = logging.Event("started")
	STOPPING             = logging.Event("stopping")
	STOPPED              = logging.Event("stopped")
	UNKNOWN_MESSAGE_TYPE = logging.Event("unknown_message_type")
	HANDLER_FAILED       = logging.Event("handler_failed")
	NOTIFICATION_DROPPED = logging.Event("notification_dropped")
)
