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

package metrics

// This file exports metric name constants for use by external consumers
// that need to query spotmanagerd metrics programmatically. Using these
// constants provides compile-time safety, refactoring support, and IDE
// autocomplete for metric names.
//
// For metric label names, see the exported label constants in labels.go:
// LabelPoolID, LabelRegion, LabelZone, LabelInstanceType, etc.

// Reconciler Health Metrics
//
// These metrics provide visibility into the operational health of the
// reconciler process itself.

const (
	// MetricReconcilerRunning indicates whether the reconciler process is running.
	// Value is always 1 when the process is active. If this metric disappears
	// from the metrics endpoint, it indicates the process has crashed or stopped.
	// Type: Gauge
	// Labels: none
	MetricReconcilerRunning = "spotmanagerd_reconciler_running"

	// MetricTickDurationSeconds measures the time taken to reconcile a single
	// pool during one scheduler tick.
	// Type: Histogram
	// Labels: pool_id
	MetricTickDurationSeconds = "spotmanagerd_tick_duration_seconds"

	// MetricTickErrorsTotal counts ticks that ended with an error re-raised
	// after the pool lock was released.
	// Type: Counter
	// Labels: pool_id
	MetricTickErrorsTotal = "spotmanagerd_tick_errors_total"

	// MetricLastCycleTimestamp records the Unix timestamp of a pool's last
	// completed reconciliation tick (successful or not).
	// Type: Gauge
	// Labels: pool_id
	MetricLastCycleTimestamp = "spotmanagerd_last_cycle_timestamp"
)

// Pool Capacity Metrics
//
// These metrics track the observed instance population and capacity
// deficit/surplus for each pool.

const (
	// MetricPoolInstanceCount tracks the number of instances a pool currently
	// has recorded in the Instance Store, broken down by region and instance
	// type. Includes instances still in the requested (not yet fulfilled) state.
	// Type: Gauge
	// Labels: pool_id, region, instance_type
	MetricPoolInstanceCount = "spotmanagerd_pool_instance_count"

	// MetricPoolCoresObserved tracks the total cores a pool currently counts
	// toward its target capacity (requested, pending and running instances;
	// excludes terminal ones).
	// Type: Gauge
	// Labels: pool_id
	MetricPoolCoresObserved = "spotmanagerd_pool_cores_observed"

	// MetricPoolCoresDeficit tracks the number of cores a pool is short of
	// its configured size. Zero or negative means the pool is at or above
	// target.
	// Type: Gauge
	// Labels: pool_id
	MetricPoolCoresDeficit = "spotmanagerd_pool_cores_deficit"
)

// Scaling Event Metrics
//
// These metrics count scale-up and scale-down actions taken by the
// reconciler, for capacity-planning and cost dashboards.

const (
	// MetricScaleUpRequestsTotal counts spot instance requests placed by the
	// reconciler, broken down by region and instance type chosen by the
	// Region Selector.
	// Type: Counter
	// Labels: pool_id, region, instance_type
	MetricScaleUpRequestsTotal = "spotmanagerd_scale_up_requests_total"

	// MetricScaleDownTerminationsTotal counts instances the reconciler has
	// asked the provider to terminate, broken down by the reason for the
	// termination (oversize, disabled, cycle_interval).
	// Type: Counter
	// Labels: pool_id, reason
	MetricScaleDownTerminationsTotal = "spotmanagerd_scale_down_terminations_total"
)

// Status Entry Metrics
//
// These metrics mirror the pool status entries recorded in the Instance
// Store, giving dashboards a way to alert on a pool being stuck without
// querying the store directly.

const (
	// MetricStatusEntryActive indicates whether a pool currently has an
	// active status entry of a given type (1 = active, 0 = cleared; absent
	// until the type is first reported for the pool).
	// Type: Gauge
	// Labels: pool_id, status_type
	MetricStatusEntryActive = "spotmanagerd_status_entry_active"
)
