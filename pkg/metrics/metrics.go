package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcome label values
const (
	OutcomeNoPendingWork  = "no_pending_work"
	OutcomeNothingPlaced  = "nothing_placed"
	OutcomeExecuted       = "executed"
	OutcomePartialFailure = "partial_failure"
	OutcomeError          = "error"
)

var (
	// Scheduler metrics
	SchedulingCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cirrus_scheduling_cycles_total",
			Help: "Total number of scheduling cycles by outcome",
		},
		[]string{"outcome"},
	)

	SchedulingCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cirrus_scheduling_cycle_duration_seconds",
			Help:    "Time taken by one scheduling cycle in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	CyclesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cirrus_scheduling_cycles_skipped_total",
			Help: "Total number of triggers dropped because a cycle was in flight",
		},
	)

	PodsBound = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cirrus_pods_bound_total",
			Help: "Total number of pods bound to a node",
		},
	)

	BindFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cirrus_bind_failures_total",
			Help: "Total number of failed pod bindings",
		},
	)

	PendingPods = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cirrus_pending_pods",
			Help: "Pending pods tagged for this scheduler at the last detection",
		},
	)

	// Plan metrics
	PlanNewNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cirrus_plan_new_nodes",
			Help: "Number of new nodes proposed by the last plan",
		},
	)

	PlanHourlyPrice = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cirrus_plan_hourly_price",
			Help: "Total hourly price of all nodes in the last plan",
		},
	)

	UnplacedPods = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cirrus_unplaced_pods",
			Help: "Pods the last plan could not place on any node or machine type",
		},
	)

	// Provisioning metrics
	NodesProvisioned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cirrus_nodes_provisioned_total",
			Help: "Total number of nodes provisioned by machine type",
		},
		[]string{"machine_type"},
	)

	ProvisioningFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cirrus_provisioning_failures_total",
			Help: "Total number of provisioning failures by stage",
		},
		[]string{"stage"},
	)

	ProvisioningDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cirrus_provisioning_duration_seconds",
			Help:    "Time from instance creation to node Ready in seconds",
			Buckets: []float64{10, 30, 60, 120, 180, 300, 600, 900},
		},
	)

	// Pricing metrics
	PricingRefreshDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cirrus_pricing_refresh_duration_seconds",
			Help:    "Pricing source refresh duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	PricingRefreshErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cirrus_pricing_refresh_errors_total",
			Help: "Total number of failed pricing refreshes by provider",
		},
		[]string{"provider"},
	)

	MachineTypes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cirrus_machine_types",
			Help: "Machine types in the published pricing table by provider",
		},
		[]string{"provider"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cirrus_api_requests_total",
			Help: "Total number of API requests by path and status",
		},
		[]string{"path", "status"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(SchedulingCyclesTotal)
	prometheus.MustRegister(SchedulingCycleDuration)
	prometheus.MustRegister(CyclesSkipped)
	prometheus.MustRegister(PodsBound)
	prometheus.MustRegister(BindFailures)
	prometheus.MustRegister(PendingPods)
	prometheus.MustRegister(PlanNewNodes)
	prometheus.MustRegister(PlanHourlyPrice)
	prometheus.MustRegister(UnplacedPods)
	prometheus.MustRegister(NodesProvisioned)
	prometheus.MustRegister(ProvisioningFailures)
	prometheus.MustRegister(ProvisioningDuration)
	prometheus.MustRegister(PricingRefreshDuration)
	prometheus.MustRegister(PricingRefreshErrors)
	prometheus.MustRegister(MachineTypes)
	prometheus.MustRegister(APIRequestsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
