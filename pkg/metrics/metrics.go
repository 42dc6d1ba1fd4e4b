/*
Copyright 2025 Lumina Contributors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics provides Prometheus metrics for the spotmanagerd
// reconciler. It exposes process health, per-pool capacity, and scaling
// event metrics to enable operational visibility and alerting.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the reconciler process.
type Metrics struct {
	// ReconcilerRunning is a simple gauge set to 1 on startup. If the metric
	// disappears from the metrics endpoint, the process has crashed.
	ReconcilerRunning prometheus.Gauge

	// TickDuration measures the time taken to reconcile a single pool.
	// Labels: pool_id
	TickDuration *prometheus.HistogramVec

	// TickErrors counts ticks that ended with an error.
	// Labels: pool_id
	TickErrors *prometheus.CounterVec

	// LastCycleTimestamp records the Unix timestamp of a pool's last
	// completed reconciliation tick (successful or not).
	// Labels: pool_id
	LastCycleTimestamp *prometheus.GaugeVec

	// PoolInstanceCount tracks the number of instances a pool currently has
	// recorded, broken down by region and instance type.
	// Labels: pool_id, region, instance_type
	PoolInstanceCount *prometheus.GaugeVec

	// PoolCoresObserved tracks total cores a pool currently counts toward
	// its target capacity.
	// Labels: pool_id
	PoolCoresObserved *prometheus.GaugeVec

	// PoolCoresDeficit tracks how many cores a pool is short of its
	// configured size (negative means over capacity).
	// Labels: pool_id
	PoolCoresDeficit *prometheus.GaugeVec

	// ScaleUpRequests counts spot instance requests placed by the
	// reconciler.
	// Labels: pool_id, region, instance_type
	ScaleUpRequests *prometheus.CounterVec

	// ScaleDownTerminations counts instances the reconciler has asked the
	// provider to terminate.
	// Labels: pool_id, reason
	ScaleDownTerminations *prometheus.CounterVec

	// StatusEntryActive indicates whether a pool currently has an active
	// status entry of a given type.
	// Labels: pool_id, status_type
	StatusEntryActive *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics with the provided
// registry.
//
// Example usage:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewMetrics(reg)
//	m.ReconcilerRunning.Set(1)
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ReconcilerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricReconcilerRunning,
			Help: "Indicates whether the reconciler process is running (1 = running)",
		}),

		TickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricTickDurationSeconds,
			Help:    "Time taken to reconcile a single pool in one scheduler tick",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{LabelPoolID}),

		TickErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricTickErrorsTotal,
			Help: "Count of reconciliation ticks that ended with an error",
		}, []string{LabelPoolID}),

		LastCycleTimestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricLastCycleTimestamp,
			Help: "Unix timestamp of a pool's last completed reconciliation tick",
		}, []string{LabelPoolID}),

		PoolInstanceCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricPoolInstanceCount,
			Help: "Number of instances a pool currently has recorded in the instance store",
		}, []string{LabelPoolID, LabelRegion, LabelInstanceType}),

		PoolCoresObserved: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricPoolCoresObserved,
			Help: "Total cores a pool currently counts toward its target capacity",
		}, []string{LabelPoolID}),

		PoolCoresDeficit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricPoolCoresDeficit,
			Help: "Cores a pool is short of its configured size (negative means over capacity)",
		}, []string{LabelPoolID}),

		ScaleUpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricScaleUpRequestsTotal,
			Help: "Spot instance requests placed by the reconciler",
		}, []string{LabelPoolID, LabelRegion, LabelInstanceType}),

		ScaleDownTerminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricScaleDownTerminationsTotal,
			Help: "Instances the reconciler has asked the provider to terminate",
		}, []string{LabelPoolID, LabelReason}),

		StatusEntryActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricStatusEntryActive,
			Help: "Whether a pool currently has an active status entry of a given type (1 = active)",
		}, []string{LabelPoolID, LabelStatusType}),
	}

	reg.MustRegister(
		m.ReconcilerRunning,
		m.TickDuration,
		m.TickErrors,
		m.LastCycleTimestamp,
		m.PoolInstanceCount,
		m.PoolCoresObserved,
		m.PoolCoresDeficit,
		m.ScaleUpRequests,
		m.ScaleDownTerminations,
		m.StatusEntryActive,
	)

	return m
}

// RecordTick records the outcome of one reconciliation tick for a pool.
func (m *Metrics) RecordTick(poolID int64, duration time.Duration, err error) {
	id := strconv.FormatInt(poolID, 10)
	m.TickDuration.WithLabelValues(id).Observe(duration.Seconds())
	m.LastCycleTimestamp.WithLabelValues(id).Set(float64(time.Now().Unix()))
	if err != nil {
		m.TickErrors.WithLabelValues(id).Inc()
	}
}

// RecordCapacity records a pool's observed cores and capacity deficit for
// the current tick.
func (m *Metrics) RecordCapacity(poolID int64, coresObserved, coresDeficit int) {
	id := strconv.FormatInt(poolID, 10)
	m.PoolCoresObserved.WithLabelValues(id).Set(float64(coresObserved))
	m.PoolCoresDeficit.WithLabelValues(id).Set(float64(coresDeficit))
}

// RecordScaleUp increments the scale-up request counter for a region and
// instance type chosen by the Region Selector.
func (m *Metrics) RecordScaleUp(poolID int64, region, instanceType string, count int) {
	id := strconv.FormatInt(poolID, 10)
	m.ScaleUpRequests.WithLabelValues(id, region, instanceType).Add(float64(count))
}

// RecordScaleDown increments the termination counter for a pool and reason.
func (m *Metrics) RecordScaleDown(poolID int64, reason string, count int) {
	id := strconv.FormatInt(poolID, 10)
	m.ScaleDownTerminations.WithLabelValues(id, reason).Add(float64(count))
}

// SetStatusEntryActive records whether a pool currently has an active
// status entry of the given type.
func (m *Metrics) SetStatusEntryActive(poolID int64, statusType string, active bool) {
	id := strconv.FormatInt(poolID, 10)
	if active {
		m.StatusEntryActive.WithLabelValues(id, statusType).Set(1)
		return
	}
	m.StatusEntryActive.WithLabelValues(id, statusType).Set(0)
}
