/*
Package scheduler drives scheduling cycles: it detects pending pods, asks the
optimizer for a placement plan and commits that plan to the cluster.

# Wiring

A Scheduler is built from its collaborators. Monitor, Pricing and Binder are
required. Without a Provisioner the scheduler still binds pods to existing
nodes and records ErrNoProvisioner for every node the plan wants to create.
Without a Publisher no events are emitted.

	sched := scheduler.New(scheduler.Deps{
		Monitor:     mon,
		Pricing:     catalog.Cache(),
		Binder:      binder.New(client, logger),
		Provisioner: prov,
		Publisher:   broker,
	}, scheduler.Config{
		SchedulerName: "cirrus",
		Namespace:     "default",
	}, logger)

	poller := monitor.NewPoller(mon, sched.Trigger, 5*time.Second, 30*time.Second, logger)
	poller.IgnoreErrors(scheduler.ErrCycleInFlight)
	poller.Start()
	defer poller.Stop()

Only pods whose schedulerName matches Config.SchedulerName are handled. An
empty Namespace handles pending pods of every namespace; node occupancy is
always counted across all of them.

# Cycle

Each cycle moves through a fixed set of states:

	        Trigger
	           │
	           ▼
	┌──────────────────┐   no pending pods    ┌──────┐
	│    Detecting     │─────────────────────▶│ Idle │
	│ refresh snapshot │                      └──────┘
	└────────┬─────────┘                          ▲
	         │                                    │ plan places nothing
	         ▼                                    │
	┌──────────────────┐──────────────────────────┘
	│     Planning     │
	│  CABFD optimizer │
	└────────┬─────────┘
	         ▼
	┌──────────────────┐   node or bind failure   ┌────────┐
	│    Executing     │─────────────────────────▶│ Failed │──▶ Idle
	│ bind, provision, │                          └────────┘
	│ bind, converge   │──────────────────────────────────────▶ Idle
	└──────────────────┘

Only one cycle runs at a time. A Trigger that arrives while a cycle is in
flight returns ErrCycleInFlight without waiting; the poller calls again on
its next tick and the new cycle works from a fresh snapshot.

# Execution

Pods assigned to nodes that already exist are bound first, so they start
without waiting on slower node creation. New nodes are then provisioned one
at a time; once a node is Ready its pods are bound using the node's real
name. A provisioning failure leaves only that node's pods pending and a bind
failure affects only that pod. Both surface as a partial_failure outcome.

Binding is idempotent within and across cycles. Pods that already carry a
node are skipped, a pod is bound at most once per Execute call, and an
"already bound" answer from the API server counts as success.

After execution the cluster is re-read and any pod the plan placed that is
still pending is listed in the cycle result.

# Machine Types

The optimizer only sees machine types the provisioner can create. A
Provisioner reports its providers through Providers; the pricing table is
filtered to those before planning, so a gcp driver is never asked for an
aws type even when aws prices are loaded for comparison. A nil result means
the driver accepts any machine type, and without a Provisioner the whole
table is used.

# Dry Run

Plan runs detection and planning without binding or creating anything.
It backs `cirrus plan`:

	plan, err := sched.Plan(ctx)
	if err != nil {
		return err
	}
	optimizer.LogSummary(logger, optimizer.Summarize(plan))

Execute commits a plan obtained elsewhere and reports what was bound and
provisioned. RunCycle detects, plans and executes under the cycle lock.

# Events

A cycle opens with cycle.started and plan.created, plus one pod.unplaced
per unplaced pod. Execution then publishes node.provisioned or
node.provision_failed for each new node and pod.bound or pod.bind_failed for
each pod as it happens. The cycle closes with cycle.completed or
cycle.failed. Every event carries the cycle uuid.

# Observability

Every cycle carries a uuid that is attached to its log lines and events.
Outcomes are counted in cirrus_scheduling_cycles_total and the last cycle
is kept for the HTTP API:

	result, err := sched.RunCycle(ctx)
	if errors.Is(err, scheduler.ErrCycleInFlight) {
		return nil
	}
	fmt.Println(result.Outcome, result.Summary.NewNodesPrice)

Metrics updated by each cycle:

	cirrus_scheduling_cycles_total{outcome}     cycles by outcome
	cirrus_scheduling_cycle_duration_seconds    detect to converge
	cirrus_scheduling_cycles_skipped_total      triggers refused while busy
	cirrus_pending_pods                         pods seen by the last detection
	cirrus_plan_new_nodes                       nodes the last plan creates
	cirrus_plan_hourly_price                    hourly price of the last plan
	cirrus_unplaced_pods                        pods no machine type can hold
	cirrus_pods_bound_total                     successful bindings
	cirrus_bind_failures_total                  failed bindings

A partial failure also marks the scheduler component degraded on /health
with the number of provision and bind failures.

# Troubleshooting

Pods stay pending with outcome nothing_placed: no Ready node has room and
no creatable machine type is large enough. Check cirrus_unplaced_pods and
the pod.unplaced events, then the flavor pool and the providers of the
configured driver.

Every cycle returns ErrPricingUnavailable: the pricing cache has never been
published. Check the pricing component on /health and the pricing refresh
errors.

Cycles keep creating nodes for the same pods: the new nodes never become
Ready, usually because the bootstrap join command failed. The provisioner
logs the failing stage of every node.
*/
package scheduler
