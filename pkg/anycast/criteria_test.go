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

package anycast_test

import (
	"errors"
	"testing"

	"github.com/oysterpack/anycast/pkg/anycast"
	"github.com/oysterpack/anycast/pkg/msgstore"
)

func TestParseCriteria(t *testing.T) {
	msg := &msgstore.Message{
		Destination: "orders",
		Topic:       "orders.eu",
		Properties:  map[string]string{"region": "eu-west", "priority": "high"},
	}

	tests := []struct {
		criteria []string
		match    bool
	}{
		{nil, true},
		{[]string{"topic=orders.eu"}, true},
		{[]string{"topic=orders.us"}, false},
		{[]string{"topic=orders.*"}, true},
		{[]string{"region=eu-*", "priority=high"}, true},
		{[]string{"region=eu-*", "priority=low"}, false},
		{[]string{"region!=us-east"}, true},
		{[]string{"region!=eu-*"}, false},
		{[]string{"missing!=x"}, true},
		{[]string{"region"}, true},
		{[]string{"missing"}, false},
		{[]string{" topic = orders.eu "}, true},
	}

	for _, test := range tests {
		match, err := anycast.ParseCriteria(test.criteria)
		if err != nil {
			t.Errorf("%v : %v", test.criteria, err)
			continue
		}
		if match(msg) != test.match {
			t.Errorf("%v : match should be %v", test.criteria, test.match)
		}
	}

	for _, criteria := range [][]string{{""}, {"=x"}, {"!=x"}, {"topic=x", "  "}} {
		if _, err := anycast.ParseCriteria(criteria); !errors.Is(err, anycast.ErrInvalidCriteria) {
			t.Errorf("%q : ErrInvalidCriteria should have been returned : %v", criteria, err)
		}
	}
}
