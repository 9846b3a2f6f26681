package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/cirrus/pkg/binder"
	"github.com/cuemby/cirrus/pkg/events"
	"github.com/cuemby/cirrus/pkg/log"
	"github.com/cuemby/cirrus/pkg/metrics"
	"github.com/cuemby/cirrus/pkg/optimizer"
	"github.com/cuemby/cirrus/pkg/pricing"
	"github.com/cuemby/cirrus/pkg/types"
)

var (
	// ErrCycleInFlight is returned by Trigger while another cycle runs
	ErrCycleInFlight = errors.New("scheduling cycle already in flight")

	// ErrPricingUnavailable is returned when no pricing table has been published
	ErrPricingUnavailable = errors.New("pricing table not available")

	// ErrNoProvisioner is recorded for new nodes when no driver is configured
	ErrNoProvisioner = errors.New("no provisioner configured")
)

// State is the orchestrator's position in a scheduling cycle
type State string

const (
	StateIdle      State = "idle"
	StateDetecting State = "detecting"
	StatePlanning  State = "planning"
	StateExecuting State = "executing"
	StateFailed    State = "failed"
)

// Outcome classifies a finished cycle
type Outcome string

const (
	OutcomeNoPendingWork  Outcome = metrics.OutcomeNoPendingWork
	OutcomeNothingPlaced  Outcome = metrics.OutcomeNothingPlaced
	OutcomeExecuted       Outcome = metrics.OutcomeExecuted
	OutcomePartialFailure Outcome = metrics.OutcomePartialFailure
	OutcomeError          Outcome = metrics.OutcomeError
)

// Monitor produces cluster snapshots
type Monitor interface {
	Refresh(ctx context.Context) (*types.ClusterSnapshot, error)
}

// PricingSource exposes the current machine type table
type PricingSource interface {
	Snapshot() *pricing.Table
	Ready() bool
}

// Provisioner creates nodes and tracks names already in use. Providers
// limits planning to machine types the backend can create; nil means any.
type Provisioner interface {
	CreateNode(ctx context.Context, mt types.MachineType) (*types.Node, error)
	AdoptExisting(node *types.Node)
	Providers() []types.Provider
}

// Deps are the collaborators of a Scheduler. Provisioner and Publisher may
// be nil.
type Deps struct {
	Monitor     Monitor
	Pricing     PricingSource
	Binder      binder.Binder
	Provisioner Provisioner
	Publisher   events.Publisher
}

// Config selects the pods this scheduler is responsible for
type Config struct {
	SchedulerName string
	Namespace     string // empty matches every namespace
}

// Failure records one node or pod that could not be handled
type Failure struct {
	Target string `json:"target"`
	Error  string `json:"error"`
}

// CycleResult is the record of one scheduling cycle
type CycleResult struct {
	ID                string             `json:"id"`
	StartedAt         time.Time          `json:"started_at"`
	FinishedAt        time.Time          `json:"finished_at"`
	Outcome           Outcome            `json:"outcome"`
	Pending           int                `json:"pending"`
	Summary           *optimizer.Summary `json:"summary,omitempty"`
	Provisioned       []string           `json:"provisioned,omitempty"`
	Bound             []string           `json:"bound,omitempty"`
	ProvisionFailures []Failure          `json:"provision_failures,omitempty"`
	BindFailures      []Failure          `json:"bind_failures,omitempty"`
	StillPending      []string           `json:"still_pending,omitempty"`
	Error             string             `json:"error,omitempty"`
}

// Failed reports whether any node or pod failed during execution
func (r *CycleResult) Failed() bool {
	return len(r.ProvisionFailures) > 0 || len(r.BindFailures) > 0
}

// Scheduler runs detect → plan → execute cycles, one at a time
type Scheduler struct {
	deps   Deps
	cfg    Config
	logger zerolog.Logger

	cycleMu sync.Mutex // held for the duration of a cycle

	mu    sync.RWMutex
	state State
	last  *CycleResult
}

// New creates a scheduler
func New(deps Deps, cfg Config, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		state:  StateIdle,
	}
}

// State returns the current state
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastCycle returns the most recent finished cycle, or nil
func (s *Scheduler) LastCycle() *CycleResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	c := *s.last
	return &c
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// Trigger runs one cycle unless one is already in flight, in which case it
// returns ErrCycleInFlight immediately
func (s *Scheduler) Trigger(ctx context.Context) error {
	_, err := s.RunCycle(ctx)
	return err
}

// RunCycle runs one full cycle and returns its record. Fatal errors (cluster
// or pricing unavailable, corrupt snapshot) are returned; execution failures
// are reported in the result.
func (s *Scheduler) RunCycle(ctx context.Context) (*CycleResult, error) {
	if !s.cycleMu.TryLock() {
		metrics.CyclesSkipped.Inc()
		return nil, ErrCycleInFlight
	}
	defer s.cycleMu.Unlock()

	result := &CycleResult{ID: uuid.New().String(), StartedAt: time.Now()}
	logger := log.WithCycleID(s.logger, result.ID)
	timer := metrics.NewTimer()
	s.emit(events.NewEvent(events.EventCycleStarted, result.ID, "Scheduling cycle started"))

	err := s.cycle(ctx, logger, result)

	result.FinishedAt = time.Now()
	timer.ObserveDuration(metrics.SchedulingCycleDuration)
	if err != nil {
		result.Outcome = OutcomeError
		result.Error = err.Error()
	}
	metrics.SchedulingCyclesTotal.WithLabelValues(string(result.Outcome)).Inc()
	s.finish(logger, result, err)
	return result, err
}

func (s *Scheduler) finish(logger zerolog.Logger, result *CycleResult, err error) {
	s.mu.Lock()
	s.last = result
	s.mu.Unlock()

	switch {
	case err != nil:
		s.setState(StateFailed)
		metrics.UpdateComponent(metrics.ComponentScheduler, false, err.Error())
		logger.Error().Err(err).Msg("Scheduling cycle failed")
		s.emit(events.NewEvent(events.EventCycleFailed, result.ID, err.Error()).
			With("outcome", string(result.Outcome)))
	case result.Outcome == OutcomePartialFailure:
		s.setState(StateFailed)
		metrics.UpdateComponent(metrics.ComponentScheduler, true, fmt.Sprintf("%d provision and %d bind failures",
			len(result.ProvisionFailures), len(result.BindFailures)))
		logger.Warn().
			Int("provision_failures", len(result.ProvisionFailures)).
			Int("bind_failures", len(result.BindFailures)).
			Msg("Scheduling cycle completed with failures")
		s.emit(events.NewEvent(events.EventCycleFailed, result.ID, "Scheduling cycle completed with failures").
			With("outcome", string(result.Outcome)))
	default:
		metrics.UpdateComponent(metrics.ComponentScheduler, true, "")
		logger.Info().
			Str("outcome", string(result.Outcome)).
			Dur("duration", result.FinishedAt.Sub(result.StartedAt)).
			Msg("Scheduling cycle completed")
		s.emit(events.NewEvent(events.EventCycleCompleted, result.ID, "Scheduling cycle completed").
			With("outcome", string(result.Outcome)))
	}
	s.setState(StateIdle)
}

func (s *Scheduler) cycle(ctx context.Context, logger zerolog.Logger, result *CycleResult) error {
	s.setState(StateDetecting)
	snapshot, pending, err := s.detect(ctx)
	if err != nil {
		return err
	}
	result.Pending = len(pending)
	metrics.PendingPods.Set(float64(len(pending)))
	if len(pending) == 0 {
		logger.Debug().Msg("No pending pods")
		result.Outcome = OutcomeNoPendingWork
		return nil
	}

	s.setState(StatePlanning)
	plan := s.plan(snapshot, pending)
	summary := optimizer.Summarize(plan)
	result.Summary = &summary
	optimizer.LogSummary(logger, summary)
	s.recordPlan(result.ID, plan)
	if plan.Empty() {
		result.Outcome = OutcomeNothingPlaced
		return nil
	}

	s.setState(StateExecuting)
	exec := s.Execute(ctx, result.ID, plan, snapshot)
	result.Provisioned = exec.Provisioned
	result.Bound = exec.Bound
	result.ProvisionFailures = exec.ProvisionFailures
	result.BindFailures = exec.BindFailures
	result.StillPending = s.converge(ctx, logger, plan)

	if result.Failed() {
		result.Outcome = OutcomePartialFailure
	} else {
		result.Outcome = OutcomeExecuted
	}
	return nil
}

// detect pulls a fresh snapshot and filters the pods this scheduler owns
func (s *Scheduler) detect(ctx context.Context) (*types.ClusterSnapshot, []*types.Pod, error) {
	if !s.deps.Pricing.Ready() {
		return nil, nil, ErrPricingUnavailable
	}
	snapshot, err := s.deps.Monitor.Refresh(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to refresh cluster snapshot: %w", err)
	}
	if err := snapshot.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid cluster snapshot: %w", err)
	}
	return snapshot, snapshot.PendingPods(s.cfg.SchedulerName, s.cfg.Namespace), nil
}

func (s *Scheduler) plan(snapshot *types.ClusterSnapshot, pending []*types.Pod) *types.Plan {
	return optimizer.Optimize(pending, snapshot.ReadyNodes(), s.creatable(s.deps.Pricing.Snapshot()))
}

// creatable filters the pricing table down to machine types the provisioner
// can create
func (s *Scheduler) creatable(table *pricing.Table) []types.MachineType {
	mts := table.MachineTypes()
	if s.deps.Provisioner == nil {
		return mts
	}
	allowed := s.deps.Provisioner.Providers()
	if len(allowed) == 0 {
		return mts
	}
	out := make([]types.MachineType, 0, len(mts))
	for _, mt := range mts {
		if slices.Contains(allowed, mt.Provider) {
			out = append(out, mt)
		}
	}
	return out
}

// Plan detects pending pods and computes a plan without executing it
func (s *Scheduler) Plan(ctx context.Context) (*types.Plan, error) {
	snapshot, pending, err := s.detect(ctx)
	if err != nil {
		return nil, err
	}
	return s.plan(snapshot, pending), nil
}

func (s *Scheduler) recordPlan(cycleID string, plan *types.Plan) {
	metrics.PlanNewNodes.Set(float64(len(plan.NewNodes())))
	metrics.PlanHourlyPrice.Set(plan.TotalPrice())
	metrics.UnplacedPods.Set(float64(len(plan.Unplaced)))

	s.emit(events.NewEvent(events.EventPlanCreated, cycleID, "Placement plan computed").
		With("nodes", fmt.Sprint(len(plan.Nodes))).
		With("new_nodes", fmt.Sprint(len(plan.NewNodes()))).
		With("placed_pods", fmt.Sprint(len(plan.PlacedPods()))).
		With("total_price", fmt.Sprintf("%.4f", plan.TotalPrice())))

	for _, p := range plan.Unplaced {
		s.emit(events.NewEvent(events.EventPodUnplaced, cycleID, "No node or machine type can hold pod").
			With("pod", p.Key()))
	}
}

// ExecuteResult reports what Execute did
type ExecuteResult struct {
	Provisioned       []string
	Bound             []string
	ProvisionFailures []Failure
	BindFailures      []Failure
}

// Execute commits a plan: pods assigned to existing nodes are bound, then new
// nodes are provisioned one at a time and their pods bound once each is
// Ready. Pods that already carry a node are never bound again. Failures are
// isolated to the affected node or pod.
func (s *Scheduler) Execute(ctx context.Context, cycleID string, plan *types.Plan, snapshot *types.ClusterSnapshot) ExecuteResult {
	logger := log.WithCycleID(s.logger, cycleID)
	var res ExecuteResult
	issued := make(map[string]bool)

	if s.deps.Provisioner != nil && snapshot != nil {
		for _, n := range snapshot.Nodes {
			s.deps.Provisioner.AdoptExisting(n)
		}
	}

	for _, node := range plan.ExistingNodes() {
		s.bindAll(ctx, logger, cycleID, node.Pods, node.Name, issued, &res)
	}

	for _, node := range plan.NewNodes() {
		if len(unbound(node.Pods, issued)) == 0 {
			continue
		}
		created, err := s.provision(ctx, node)
		if err != nil {
			logger.Error().Err(err).Str("machine_type", node.MachineType).Msg("Failed to provision node, its pods stay pending")
			res.ProvisionFailures = append(res.ProvisionFailures, Failure{Target: node.Name, Error: err.Error()})
			s.emit(events.NewEvent(events.EventNodeProvisionFailed, cycleID, err.Error()).
				With("placeholder", node.Name).
				With("machine_type", node.MachineType))
			continue
		}

		res.Provisioned = append(res.Provisioned, created.Name)
		s.emit(events.NewEvent(events.EventNodeProvisioned, cycleID, "Node provisioned").
			With("node", created.Name).
			With("machine_type", created.MachineType))
		s.bindAll(ctx, logger, cycleID, node.Pods, created.Name, issued, &res)
	}

	return res
}

func (s *Scheduler) provision(ctx context.Context, node *types.Node) (*types.Node, error) {
	if s.deps.Provisioner == nil {
		return nil, ErrNoProvisioner
	}
	return s.deps.Provisioner.CreateNode(ctx, types.MachineType{
		Provider: node.Provider,
		Name:     node.MachineType,
		CPU:      node.CPU,
		RAM:      node.RAM,
		Price:    node.Price,
	})
}

func (s *Scheduler) bindAll(ctx context.Context, logger zerolog.Logger, cycleID string, pods []*types.Pod, nodeName string, issued map[string]bool, res *ExecuteResult) {
	for _, pod := range unbound(pods, issued) {
		issued[pod.Key()] = true

		err := s.deps.Binder.Bind(ctx, pod, nodeName)
		if errors.Is(err, binder.ErrAlreadyBound) {
			logger.Info().Str("pod", pod.Key()).Msg("Pod already bound, skipping")
			continue
		}
		if err != nil {
			metrics.BindFailures.Inc()
			logger.Error().Err(err).Str("pod", pod.Key()).Str("node", nodeName).Msg("Failed to bind pod")
			res.BindFailures = append(res.BindFailures, Failure{Target: pod.Key(), Error: err.Error()})
			s.emit(events.NewEvent(events.EventPodBindFailed, cycleID, err.Error()).
				With("pod", pod.Key()).
				With("node", nodeName))
			continue
		}

		metrics.PodsBound.Inc()
		res.Bound = append(res.Bound, pod.Key())
		s.emit(events.NewEvent(events.EventPodBound, cycleID, "Pod bound").
			With("pod", pod.Key()).
			With("node", nodeName))
	}
}

// unbound filters pods that carry no node and were not bound in this call
func unbound(pods []*types.Pod, issued map[string]bool) []*types.Pod {
	var out []*types.Pod
	for _, p := range pods {
		if !p.IsBound() && !issued[p.Key()] {
			out = append(out, p)
		}
	}
	return out
}

// converge re-pulls the cluster and returns placed pods that are still
// pending. A failed refresh is logged; the next cycle will see the state.
func (s *Scheduler) converge(ctx context.Context, logger zerolog.Logger, plan *types.Plan) []string {
	snapshot, err := s.deps.Monitor.Refresh(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to confirm convergence")
		return nil
	}

	placed := make(map[string]bool)
	for _, p := range plan.PlacedPods() {
		placed[p.Key()] = true
	}

	var still []string
	for _, p := range snapshot.PendingPods(s.cfg.SchedulerName, s.cfg.Namespace) {
		if placed[p.Key()] {
			still = append(still, p.Key())
		}
	}
	if len(still) > 0 {
		logger.Warn().Strs("pods", still).Msg("Placed pods still pending after execution")
	} else {
		logger.Info().Int("pods", len(placed)).Msg("Cluster converged on plan")
	}
	return still
}

func (s *Scheduler) emit(ev *events.Event) {
	if s.deps.Publisher != nil {
		s.deps.Publisher.Publish(ev)
	}
}
