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

package nats

import (
	"github.com/oysterpack/anycast/pkg/messaging"
	"github.com/oysterpack/anycast/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubSystem is used as the metric subsystem for nats related metrics
	MetricsSubSystem = "nats"
)

func counterVecOpts(name, help string, labels ...string) *metrics.CounterVecOpts {
	return &metrics.CounterVecOpts{
		CounterOpts: &prometheus.CounterOpts{
			Namespace: messaging.MetricsNamespace,
			Subsystem: MetricsSubSystem,
			Name:      name,
			Help:      help,
		},
		Labels: labels,
	}
}

var (
	// CreatedCounterOpts tracks the number of connections that have been created
	CreatedCounterOpts = counterVecOpts("conns_created", "The number of connections that have been created")
	// ClosedCounterOpts tracks the number of connection that have been closed
	ClosedCounterOpts = counterVecOpts("conns_closed", "The number of connections that have been closed")
	// DisconnectedCounterOpts tracks the number of times connections have been disconnected
	DisconnectedCounterOpts = counterVecOpts("disconnects", "The number of times connections have been disconnected")
	// ReconnectedCounterOpts tracks the number of times connections have reconnected
	ReconnectedCounterOpts = counterVecOpts("reconnects", "The number of times connections have reconnected")
	// ErrorCounterOpts tracks the number of async connection errors
	ErrorCounterOpts = counterVecOpts("errors", "The number of async connection errors, e.g., slow consumer errors")

	// PublishedCounterOpts tracks the number of messages published per topic
	PublishedCounterOpts = counterVecOpts("published", "The number of messages published", TOPIC)
	// ReceivedCounterOpts tracks the number of messages received per topic
	ReceivedCounterOpts = counterVecOpts("received", "The number of messages received", TOPIC)

	// ConnCountOpts tracks the number of open connections
	ConnCountOpts = &metrics.GaugeVecOpts{
		GaugeOpts: &prometheus.GaugeOpts{
			Namespace: messaging.MetricsNamespace,
			Subsystem: MetricsSubSystem,
			Name:      "conns",
			Help:      "The number of open connections",
		},
	}
)

type connMetrics struct {
	created, closed, disconnected, reconnected, errors prometheus.Counter
	conns                                              prometheus.Gauge
	published, received                                *prometheus.CounterVec
}

func newConnMetrics() *connMetrics {
	return &connMetrics{
		created:      metrics.GetOrMustRegisterCounterVec(CreatedCounterOpts).WithLabelValues(),
		closed:       metrics.GetOrMustRegisterCounterVec(ClosedCounterOpts).WithLabelValues(),
		disconnected: metrics.GetOrMustRegisterCounterVec(DisconnectedCounterOpts).WithLabelValues(),
		reconnected:  metrics.GetOrMustRegisterCounterVec(ReconnectedCounterOpts).WithLabelValues(),
		errors:       metrics.GetOrMustRegisterCounterVec(ErrorCounterOpts).WithLabelValues(),
		conns:        metrics.GetOrMustRegisterGaugeVec(ConnCountOpts).WithLabelValues(),
		published:    metrics.GetOrMustRegisterCounterVec(PublishedCounterOpts),
		received:     metrics.GetOrMustRegisterCounterVec(ReceivedCounterOpts),
	}
}
