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

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mutex sync.RWMutex

	// Registry is the global registry
	Registry = NewRegistry(true)

	collectors = map[string]*registration{}
)

// NewRegistry creates a new registry. If collectProcessMetrics = true, then the go and process collectors are registered.
func NewRegistry(collectProcessMetrics bool) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	if collectProcessMetrics {
		registry.MustRegister(
			prometheus.NewGoCollector(),
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		)
	}
	return registry
}

// ResetRegistry is exposed for testing purposes.
func ResetRegistry() {
	mutex.Lock()
	defer mutex.Unlock()
	Registry = NewRegistry(true)
	collectors = map[string]*registration{}
}

// Registered returns true if a metric is registered with the specified fully qualified name
func Registered(name string) bool {
	mutex.RLock()
	defer mutex.RUnlock()
	_, exists := collectors[name]
	return exists
}
