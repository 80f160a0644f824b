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
	"fmt"

	"github.com/oysterpack/anycast/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// registration is an entry in the registry's metric table, keyed by fully qualified name
type registration struct {
	metricType MetricType
	opts       interface{}
	collector  prometheus.Collector
}

// getOrMustRegister returns the collector registered under name.
// If nothing is registered, newCollector is registered under name.
// It panics if name is taken by another metric type, or by the same type registered with opts that do not match.
// The caller must hold the mutex.
func getOrMustRegister(name string, metricType MetricType, opts interface{}, optsMatch func(registered interface{}) bool, newCollector func() prometheus.Collector) prometheus.Collector {
	if reg, exists := collectors[name]; exists {
		if reg.metricType != metricType {
			logger.Panic().Str(logging.FUNC, "getOrMustRegister").
				Str("name", name).
				Str("type", metricType.String()).
				Str("registered_type", reg.metricType.String()).
				Err(ErrMetricNameUsedByDifferentMetricType).
				Msg("")
		}
		if !optsMatch(reg.opts) {
			logger.Panic().Str(logging.FUNC, "getOrMustRegister").
				Str("registered", fmt.Sprintf("%v", reg.opts)).
				Str("dup", fmt.Sprintf("%v", opts)).
				Err(ErrMetricAlreadyRegisteredWithDifferentOpts).
				Msg("")
		}
		return reg.collector
	}

	collector := newCollector()
	Registry.MustRegister(collector)
	collectors[name] = &registration{metricType, opts, collector}
	return collector
}

// GetOrMustRegisterCounterVec returns the registered CounterVec, registering it if needed.
func GetOrMustRegisterCounterVec(opts *CounterVecOpts) *prometheus.CounterVec {
	mutex.Lock()
	defer mutex.Unlock()
	return getOrMustRegister(CounterFQName(opts.CounterOpts), MetricType_COUNTER_VEC, opts,
		func(registered interface{}) bool { return CounterVecOptsMatch(opts, registered.(*CounterVecOpts)) },
		func() prometheus.Collector { return prometheus.NewCounterVec(*opts.CounterOpts, opts.Labels) },
	).(*prometheus.CounterVec)
}

// GetOrMustRegisterGaugeVec returns the registered GaugeVec, registering it if needed.
func GetOrMustRegisterGaugeVec(opts *GaugeVecOpts) *prometheus.GaugeVec {
	mutex.Lock()
	defer mutex.Unlock()
	return getOrMustRegister(GaugeFQName(opts.GaugeOpts), MetricType_GAUGE_VEC, opts,
		func(registered interface{}) bool { return GaugeVecOptsMatch(opts, registered.(*GaugeVecOpts)) },
		func() prometheus.Collector { return prometheus.NewGaugeVec(*opts.GaugeOpts, opts.Labels) },
	).(*prometheus.GaugeVec)
}

// GetOrMustRegisterHistogramVec returns the registered HistogramVec, registering it if needed.
func GetOrMustRegisterHistogramVec(opts *HistogramVecOpts) *prometheus.HistogramVec {
	mutex.Lock()
	defer mutex.Unlock()
	return getOrMustRegister(HistogramFQName(opts.HistogramOpts), MetricType_HISTOGRAM_VEC, opts,
		func(registered interface{}) bool { return HistogramVecOptsMatch(opts, registered.(*HistogramVecOpts)) },
		func() prometheus.Collector { return prometheus.NewHistogramVec(*opts.HistogramOpts, opts.Labels) },
	).(*prometheus.HistogramVec)
}

// GetCounterVec returns nil if no CounterVec is registered under the name
func GetCounterVec(name string) *CounterVec {
	mutex.RLock()
	defer mutex.RUnlock()
	if reg, exists := collectors[name]; exists && reg.metricType == MetricType_COUNTER_VEC {
		return &CounterVec{reg.collector.(*prometheus.CounterVec), reg.opts.(*CounterVecOpts)}
	}
	return nil
}

// GetGaugeVec returns nil if no GaugeVec is registered under the name
func GetGaugeVec(name string) *GaugeVec {
	mutex.RLock()
	defer mutex.RUnlock()
	if reg, exists := collectors[name]; exists && reg.metricType == MetricType_GAUGE_VEC {
		return &GaugeVec{reg.collector.(*prometheus.GaugeVec), reg.opts.(*GaugeVecOpts)}
	}
	return nil
}

// GetHistogramVec returns nil if no HistogramVec is registered under the name
func GetHistogramVec(name string) *HistogramVec {
	mutex.RLock()
	defer mutex.RUnlock()
	if reg, exists := collectors[name]; exists && reg.metricType == MetricType_HISTOGRAM_VEC {
		return &HistogramVec{reg.collector.(*prometheus.HistogramVec), reg.opts.(*HistogramVecOpts)}
	}
	return nil
}
