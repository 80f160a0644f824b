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
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// FindMetricFamilyByName returns nil if not found
func FindMetricFamilyByName(gatheredMetrics []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, m := range gatheredMetrics {
		if m.GetName() == name {
			return m
		}
	}
	return nil
}

func CounterFQName(opts *prometheus.CounterOpts) string {
	return prometheus.BuildFQName(opts.Namespace, opts.Subsystem, opts.Name)
}

func GaugeFQName(opts *prometheus.GaugeOpts) string {
	return prometheus.BuildFQName(opts.Namespace, opts.Subsystem, opts.Name)
}

func HistogramFQName(opts *prometheus.HistogramOpts) string {
	return prometheus.BuildFQName(opts.Namespace, opts.Subsystem, opts.Name)
}

func CounterVecOptsMatch(opts1, opts2 *CounterVecOpts) bool {
	if opts1 == nil || opts2 == nil {
		return opts1 == opts2
	}
	return CounterFQName(opts1.CounterOpts) == CounterFQName(opts2.CounterOpts) &&
		opts1.Help == opts2.Help &&
		stringMapsAreEqual(opts1.ConstLabels, opts2.ConstLabels) &&
		labelsAreEqual(opts1.Labels, opts2.Labels)
}

func GaugeVecOptsMatch(opts1, opts2 *GaugeVecOpts) bool {
	if opts1 == nil || opts2 == nil {
		return opts1 == opts2
	}
	return GaugeFQName(opts1.GaugeOpts) == GaugeFQName(opts2.GaugeOpts) &&
		opts1.Help == opts2.Help &&
		stringMapsAreEqual(opts1.ConstLabels, opts2.ConstLabels) &&
		labelsAreEqual(opts1.Labels, opts2.Labels)
}

func HistogramVecOptsMatch(opts1, opts2 *HistogramVecOpts) bool {
	if opts1 == nil || opts2 == nil {
		return opts1 == opts2
	}
	if len(opts1.Buckets) != len(opts2.Buckets) {
		return false
	}
	for i, v := range opts1.Buckets {
		if opts2.Buckets[i] != v {
			return false
		}
	}
	return HistogramFQName(opts1.HistogramOpts) == HistogramFQName(opts2.HistogramOpts) &&
		opts1.Help == opts2.Help &&
		stringMapsAreEqual(opts1.ConstLabels, opts2.ConstLabels) &&
		labelsAreEqual(opts1.Labels, opts2.Labels)
}

func stringMapsAreEqual(m1, m2 map[string]string) bool {
	if len(m1) != len(m2) {
		return false
	}
	for k, v := range m1 {
		if m2[k] != v {
			return false
		}
	}
	return true
}

// labels are compared as sets, i.e., order does not matter
func labelsAreEqual(s1, s2 []string) bool {
	if len(s1) != len(s2) {
		return false
	}
	a := append([]string(nil), s1...)
	b := append([]string(nil), s2...)
	sort.Strings(a)
	sort.Strings(b)
	for i, v := range a {
		if b[i] != v {
			return false
		}
	}
	return true
}
