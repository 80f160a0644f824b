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
	"github.com/oysterpack/anycast/pkg/logging"
	"github.com/oysterpack/anycast/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	METRICS_NAMESPACE = "anycast"
	REQUESTER         = "requester"
	RESPONDER         = "responder"
)

func counterVecOpts(subsystem, name, help string) *metrics.CounterVecOpts {
	return &metrics.CounterVecOpts{
		CounterOpts: &prometheus.CounterOpts{
			Namespace: METRICS_NAMESPACE,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		Labels: []string{logging.NODE},
	}
}

// requester metrics
var (
	RequestsCounter           = counterVecOpts(REQUESTER, "requests", "The number of requests issued")
	ValuesCounter             = counterVecOpts(REQUESTER, "values", "The number of values received")
	ExpiredCounter            = counterVecOpts(REQUESTER, "expired", "The number of requests that timed out")
	NotFoundCounter           = counterVecOpts(REQUESTER, "not_found", "The number of requests answered with not found")
	ReissuedCounter           = counterVecOpts(REQUESTER, "reissued", "The number of requests reissued because of an epoch change")
	ProtocolViolationsCounter = counterVecOpts(REQUESTER, "protocol_violations", "The number of late, duplicate, or unknown responses discarded")
	SendFailuresCounter       = counterVecOpts(REQUESTER, "send_failures", "The number of messages that could not be sent after all attempts")

	OutstandingRequestsGauge = &metrics.GaugeVecOpts{
		GaugeOpts: &prometheus.GaugeOpts{
			Namespace: METRICS_NAMESPACE,
			Subsystem: REQUESTER,
			Name:      "outstanding",
			Help:      "The number of outstanding requests",
		},
		Labels: []string{logging.NODE},
	}

	RoundTripHistogram = &metrics.HistogramVecOpts{
		HistogramOpts: &prometheus.HistogramOpts{
			Namespace: METRICS_NAMESPACE,
			Subsystem: REQUESTER,
			Name:      "round_trip_seconds",
			Help:      "The time from issuing a request to receiving its value",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		Labels: []string{logging.NODE},
	}
)

// responder metrics
var (
	RequestsReceivedCounter = counterVecOpts(RESPONDER, "requests", "The number of requests received")
	ValuesSentCounter       = counterVecOpts(RESPONDER, "values", "The number of requests resolved to a value")
	NotFoundSentCounter     = counterVecOpts(RESPONDER, "not_found", "The number of requests answered with not found")
	ReissueRequiredCounter  = counterVecOpts(RESPONDER, "reissue_required", "The number of requests received from a stale epoch")
	CompletedCounter        = counterVecOpts(RESPONDER, "completed", "The number of acknowledged deliveries")
	RejectedCounter         = counterVecOpts(RESPONDER, "rejected", "The number of rejected ticks")
)

type requesterMetrics struct {
	requests, values, expired, notFound, reissued, violations, sendFailures prometheus.Counter
	outstanding                                                             prometheus.Gauge
	roundTrip                                                               prometheus.Observer
}

func newRequesterMetrics(node NodeID) *requesterMetrics {
	label := string(node)
	return &requesterMetrics{
		requests:     metrics.GetOrMustRegisterCounterVec(RequestsCounter).WithLabelValues(label),
		values:       metrics.GetOrMustRegisterCounterVec(ValuesCounter).WithLabelValues(label),
		expired:      metrics.GetOrMustRegisterCounterVec(ExpiredCounter).WithLabelValues(label),
		notFound:     metrics.GetOrMustRegisterCounterVec(NotFoundCounter).WithLabelValues(label),
		reissued:     metrics.GetOrMustRegisterCounterVec(ReissuedCounter).WithLabelValues(label),
		violations:   metrics.GetOrMustRegisterCounterVec(ProtocolViolationsCounter).WithLabelValues(label),
		sendFailures: metrics.GetOrMustRegisterCounterVec(SendFailuresCounter).WithLabelValues(label),
		outstanding:  metrics.GetOrMustRegisterGaugeVec(OutstandingRequestsGauge).WithLabelValues(label),
		roundTrip:    metrics.GetOrMustRegisterHistogramVec(RoundTripHistogram).WithLabelValues(label),
	}
}

type responderMetrics struct {
	requests, values, notFound, reissueRequired, completed, rejected prometheus.Counter
}

func newResponderMetrics(node NodeID) *responderMetrics {
	label := string(node)
	return &responderMetrics{
		requests:        metrics.GetOrMustRegisterCounterVec(RequestsReceivedCounter).WithLabelValues(label),
		values:          metrics.GetOrMustRegisterCounterVec(ValuesSentCounter).WithLabelValues(label),
		notFound:        metrics.GetOrMustRegisterCounterVec(NotFoundSentCounter).WithLabelValues(label),
		reissueRequired: metrics.GetOrMustRegisterCounterVec(ReissueRequiredCounter).WithLabelValues(label),
		completed:       metrics.GetOrMustRegisterCounterVec(CompletedCounter).WithLabelValues(label),
		rejected:        metrics.GetOrMustRegisterCounterVec(RejectedCounter).WithLabelValues(label),
	}
}
