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

// Package logging provides the zerolog conventions shared by all packages: package scoped loggers,
// standard field names, and log events.
package logging

import (
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// standard log field names
const (
	PACKAGE = "pkg"
	TYPE    = "type"
	FUNC    = "func"
	EVENT   = "event"
	ID      = "id"
	NODE    = "node"
	STREAM  = "stream"
	STATE   = "state"
)

// Event is used to tag a log entry with a well known event name
type Event string

// Log adds the event field to the log entry
func (a Event) Log(event *zerolog.Event) *zerolog.Event {
	return event.Str(EVENT, string(a))
}

func (a Event) String() string {
	return string(a)
}

// NewPackageLogger returns a logger that is tagged with the object's package path.
// The object must be a value of a named struct type, e.g., a private pkgobject struct{} declared in the package.
func NewPackageLogger(o interface{}) zerolog.Logger {
	t := reflect.TypeOf(o)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct || t.PkgPath() == "" {
		panic("NewPackageLogger can only be created for a named struct")
	}
	return log.With().Str(PACKAGE, t.PkgPath()).Logger().Output(os.Stderr)
}

// ParseLevel maps DEBUG, INFO, WARN, ERROR (case insensitive) to the zerolog level.
// Anything else maps to WARN.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.WarnLevel
	}
}

// SetLevel sets the global log level
func SetLevel(level string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
