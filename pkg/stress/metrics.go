/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package stress

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
)

const metricsNamespace = "fetchop"

// Metrics are the Prometheus collectors updated by a Runner.
type Metrics struct {
	Ops           *prometheus.CounterVec
	CASRetries    *prometheus.CounterVec
	Rounds        *prometheus.CounterVec
	Mismatches    *prometheus.CounterVec
	RoundDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ops_total",
			Help:      "Fetch-and-op calls applied to contended cells.",
		}, []string{"op", "width"}),
		CASRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cas_retries_total",
			Help:      "Failed compare-and-swap attempts inside retry loops.",
		}, []string{"op", "width"}),
		Rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rounds_total",
			Help:      "Contention rounds completed, by outcome.",
		}, []string{"scenario", "outcome"}),
		Mismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "mismatches_total",
			Help:      "Rounds whose aggregate differed from the expected value.",
		}, []string{"scenario"}),
		RoundDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "round_duration_seconds",
			Help:      "Wall time of one contention round from release to join.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"scenario"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Ops, m.CASRetries, m.Rounds, m.Mismatches, m.RoundDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeRound(sc string, op string, width int, ops, retries int64, d time.Duration, ok bool) {
	w := strconv.Itoa(width)
	m.Ops.WithLabelValues(op, w).Add(float64(ops))
	m.CASRetries.WithLabelValues(op, w).Add(float64(retries))
	m.RoundDuration.WithLabelValues(sc).Observe(d.Seconds())
	if ok {
		m.Rounds.WithLabelValues(sc, "pass").Inc()
		return
	}
	m.Rounds.WithLabelValues(sc, "fail").Inc()
	m.Mismatches.WithLabelValues(sc).Inc()
}

// otelInstruments mirror the retry and op counters for OpenTelemetry.
type otelInstruments struct {
	ops     metric.Int64Counter
	retries metric.Int64Counter
}

func newOtelInstruments(meter metric.Meter) (*otelInstruments, error) {
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter(metricsNamespace)
	}
	ops, err := meter.Int64Counter("fetchop.ops",
		metric.WithDescription("Fetch-and-op calls applied to contended cells."))
	if err != nil {
		return nil, err
	}
	retries, err := meter.Int64Counter("fetchop.cas.retries",
		metric.WithDescription("Failed compare-and-swap attempts inside retry loops."))
	if err != nil {
		return nil, err
	}
	return &otelInstruments{ops: ops, retries: retries}, nil
}

func (o *otelInstruments) record(ctx context.Context, op string, width int, ops, retries int64) {
	attrs := metric.WithAttributes(attribute.String("op", op), attribute.Int("width", width))
	o.ops.Add(ctx, ops, attrs)
	o.retries.Add(ctx, retries, attrs)
}
