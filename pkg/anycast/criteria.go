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
	"strings"

	"github.com/oysterpack/anycast/pkg/msgstore"
)

// ParseCriteria compiles selection criteria into a msgstore.Matcher. All expressions must match.
//
// Supported expressions:
//   - "name=value" : the property must equal the value
//   - "name!=value" : the property must be absent or not equal the value
//   - "name" : the property must be present
//
// A value ending in '*' matches by prefix. The "topic" property refers to the message topic.
func ParseCriteria(criteria []string) (msgstore.Matcher, error) {
	if len(criteria) == 0 {
		return msgstore.MatchAll, nil
	}
	matchers := make([]msgstore.Matcher, 0, len(criteria))
	for _, expr := range criteria {
		m, err := parseExpression(expr)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, m)
	}
	return func(msg *msgstore.Message) bool {
		for _, m := range matchers {
			if !m(msg) {
				return false
			}
		}
		return true
	}, nil
}

func parseExpression(expr string) (msgstore.Matcher, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w : blank expression", ErrInvalidCriteria)
	}
	if i := strings.Index(expr, "!="); i >= 0 {
		name, value := strings.TrimSpace(expr[:i]), strings.TrimSpace(expr[i+2:])
		if name == "" {
			return nil, fmt.Errorf("%w : %q", ErrInvalidCriteria, expr)
		}
		eq := valueMatcher(value)
		return func(msg *msgstore.Message) bool {
			v, ok := msg.Property(name)
			return !ok || !eq(v)
		}, nil
	}
	if i := strings.Index(expr, "="); i >= 0 {
		name, value := strings.TrimSpace(expr[:i]), strings.TrimSpace(expr[i+1:])
		if name == "" {
			return nil, fmt.Errorf("%w : %q", ErrInvalidCriteria, expr)
		}
		eq := valueMatcher(value)
		return func(msg *msgstore.Message) bool {
			v, ok := msg.Property(name)
			return ok && eq(v)
		}, nil
	}
	return func(msg *msgstore.Message) bool {
		_, ok := msg.Property(expr)
		return ok
	}, nil
}

func valueMatcher(value string) func(string) bool {
	if strings.HasSuffix(value, "*") {
		prefix := strings.TrimSuffix(value, "*")
		return func(v string) bool { return strings.HasPrefix(v, prefix) }
	}
	return func(v string) bool { return v == value }
}
