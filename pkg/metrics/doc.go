/*
Package metrics provides Prometheus metrics and component health for cirrus.

All collectors are package-level variables registered with the default
registry in init, so any package can record a value without wiring:

	metrics.PodsBound.Inc()
	metrics.SchedulingCyclesTotal.WithLabelValues(metrics.OutcomeExecuted).Inc()

Handler exposes them for scraping on /metrics.

# Metrics Catalog

Scheduler:
  - cirrus_scheduling_cycles_total{outcome}: cycles by outcome
    (no_pending_work, nothing_placed, executed, partial_failure, error)
  - cirrus_scheduling_cycle_duration_seconds: end-to-end cycle latency
  - cirrus_scheduling_cycles_skipped_total: triggers dropped while a cycle ran
  - cirrus_pending_pods: tagged pending pods seen at the last detection
  - cirrus_pods_bound_total, cirrus_bind_failures_total

Plan:
  - cirrus_plan_new_nodes: nodes the last plan asked to create
  - cirrus_plan_hourly_price: summed hourly price of every plan node
  - cirrus_unplaced_pods: pods no node or machine type could hold

Provisioning:
  - cirrus_nodes_provisioned_total{machine_type}
  - cirrus_provisioning_failures_total{stage}: create, running, address,
    ssh, bootstrap, join
  - cirrus_provisioning_duration_seconds

Pricing:
  - cirrus_pricing_refresh_duration_seconds{provider}
  - cirrus_pricing_refresh_errors_total{provider}
  - cirrus_machine_types{provider}: size of the published table

# Timer

Timer wraps the common start/observe pattern:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulingCycleDuration)

# Health

Components report their state with UpdateComponent. A healthy report with a
message is degraded: a pricing refresh that failed for one provider while the
previous table is still served, or a cycle that bound only part of its plan.
GetHealth returns the worst reported state. GetReadiness only looks at the
critical set (kubernetes, pricing and scheduler by default, replaceable with
SetCriticalComponents). HealthHandler, ReadyHandler and LivenessHandler
serve those results as JSON, and the gRPC health service in pkg/api reads
the same registry through Component.
*/
package metrics
