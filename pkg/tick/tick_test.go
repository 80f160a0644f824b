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

package tick_test

import (
	"sync"
	"testing"

	"github.com/oysterpack/anycast/pkg/tick"
)

func TestGenerator(t *testing.T) {

	t.Run("NewGenerator(0)", func(t *testing.T) {
		seq := tick.NewGenerator(0)

		wg := sync.WaitGroup{}
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 1000; i++ {
					seq.Next()
				}
			}()
		}
		wg.Wait()
		if seq.Latest() != 10*1000 {
			t.Errorf("Latest tick did not match : %d", seq.Latest())
		}
	})

	t.Run("NewGenerator(100)", func(t *testing.T) {
		seq := tick.NewGenerator(100)
		prev := seq.Latest()
		for i := 0; i < 100; i++ {
			next := seq.Next()
			if next <= prev {
				t.Fatalf("ticks must be strictly increasing : %d <= %d", next, prev)
			}
			prev = next
		}
		if seq.Latest() != 200 {
			t.Errorf("Latest tick did not match : %d", seq.Latest())
		}
	})

	t.Run("Default Generator", func(t *testing.T) {
		var seq tick.Generator
		if seq.Next() != 1 {
			t.Error("the first tick should be 1")
		}
	})
}

func TestParse(t *testing.T) {
	tk, err := tick.Parse(tick.Tick(42).String())
	if err != nil {
		t.Fatal(err)
	}
	if tk != 42 {
		t.Errorf("tick did not match : %v", tk)
	}

	if _, err := tick.Parse("-1"); err == nil {
		t.Error("negative ticks should fail to parse")
	}
}
