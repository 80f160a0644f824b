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

// Package metrics wraps a global prometheus registry. Metrics are registered idempotently: registering the same
// opts twice returns the already registered collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type MetricType int

const (
	MetricType_UNKNOWN MetricType = iota

	MetricType_COUNTER_VEC
	MetricType_GAUGE_VEC
	MetricType_HISTOGRAM_VEC
)

func (a MetricType) Value() int {
	return int(a)
}

func (a MetricType) String() string {
	switch a {
	case MetricType_COUNTER_VEC:
		return "CounterVec"
	case MetricType_GAUGE_VEC:
		return "GaugeVec"
	case MetricType_HISTOGRAM_VEC:
		return "HistogramVec"
	default:
		return "UNKNOWN"
	}
}

// CounterVecOpts represents the settings for a prometheus counter vector metric
type CounterVecOpts struct {
	*prometheus.CounterOpts
	Labels []string
}

// GaugeVecOpts represents the settings for a prometheus gauge vector metric
type GaugeVecOpts struct {
	*prometheus.GaugeOpts
	Labels []string
}

// HistogramVecOpts represents the settings for a prometheus histogram vector metric
type HistogramVecOpts struct {
	*prometheus.HistogramOpts
	Labels []string
}

type CounterVec struct {
	*prometheus.CounterVec
	*CounterVecOpts
}

type GaugeVec struct {
	*prometheus.GaugeVec
	*GaugeVecOpts
}

type HistogramVec struct {
	*prometheus.HistogramVec
	*HistogramVecOpts
}
