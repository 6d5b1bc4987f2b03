/*
 * Copyright 2025 Carver Automation Corporation.
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

// Package metrics exposes the agent's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors for the control loop and its supporting
// subsystems.
type Metrics struct {
	CyclesTotal      prometheus.Counter
	CycleErrorsTotal prometheus.Counter
	CycleDuration    prometheus.Histogram

	ActuatorChangesTotal  *prometheus.CounterVec
	ActuatorFailuresTotal *prometheus.CounterVec

	AuditEventsTotal  *prometheus.CounterVec
	AuditBufferSize   prometheus.Gauge
	AuditShedTotal    prometheus.Counter
	SyncBatchesTotal  prometheus.Counter
	SyncFailuresTotal prometheus.Counter

	ServerFetchFailuresTotal prometheus.Counter
}

// New creates the collectors and registers them with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poolguard_cycles_total",
			Help: "Control cycles completed.",
		}),
		CycleErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poolguard_cycle_errors_total",
			Help: "Control cycles that ended with an error.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "poolguard_cycle_duration_seconds",
			Help:    "Wall time of one control cycle.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ActuatorChangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poolguard_actuator_changes_total",
			Help: "Applied actuator state changes.",
		}, []string{"actuator_id"}),
		ActuatorFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poolguard_actuator_failures_total",
			Help: "Actuator drive failures.",
		}, []string{"actuator_id"}),
		AuditEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poolguard_audit_events_total",
			Help: "Audit events appended to the local chain.",
		}, []string{"event_type"}),
		AuditBufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "poolguard_audit_buffer_size",
			Help: "Unsynced audit events buffered on the device.",
		}),
		AuditShedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poolguard_audit_shed_total",
			Help: "Non-critical audit events refused because the buffer was full.",
		}),
		SyncBatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poolguard_sync_batches_total",
			Help: "Audit batches the server acknowledged.",
		}),
		SyncFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poolguard_sync_failures_total",
			Help: "Audit sync attempts that failed after retries.",
		}),
		ServerFetchFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poolguard_server_fetch_failures_total",
			Help: "Failed desired-state or settings fetches.",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleErrorsTotal,
		m.CycleDuration,
		m.ActuatorChangesTotal,
		m.ActuatorFailuresTotal,
		m.AuditEventsTotal,
		m.AuditBufferSize,
		m.AuditShedTotal,
		m.SyncBatchesTotal,
		m.SyncFailuresTotal,
		m.ServerFetchFailuresTotal,
	)

	return m
}

// NewTestMetrics creates collectors on a throwaway registry.
func NewTestMetrics() *Metrics {
	return New(prometheus.NewRegistry())
}
