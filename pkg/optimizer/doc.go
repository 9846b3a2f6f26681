/*
Package optimizer implements cost-aware best-fit decreasing (CABFD)
placement.

The optimizer is a pure function of its inputs. It reads no clock, makes
no API calls and never changes the nodes or machine types it is given, so
the same inputs always produce the same Plan. Committing that plan is left
to the scheduler.

# Algorithm

Optimize takes the pending pods, the Ready worker nodes and the machine type
table, and returns a Plan:

 1. Pods are sorted by requested RAM, then vCPU, largest first (stable).
 2. The working list starts with copies of the Ready nodes.
 3. For every pod, the candidates are the working-list nodes with room for
    it plus one hypothetical new node per machine type that can hold it.
    The highest score wins; the first candidate seen wins a tie. A pod
    without candidates is recorded in Plan.Unplaced.
 4. A chosen new node joins the working list under a placeholder name
    "<machine-type>#<n>" until the provisioner names it.

Working-list nodes come before machine types in candidate order, and
machine types are ordered by provider then name, so ties always resolve the
same way.

# Scoring

Scoring a candidate n for pod p:

	cpuTerm   = 1 − (n.AvailableCPU − p.CPU) / n.CPU
	ramTerm   = 1 − (n.AvailableRAM − p.RAM) / n.RAM
	priceTerm = 1                        n already in the working list
	          = 1 − n.Price / maxPrice   otherwise
	score     = cpuTerm + ramTerm + 0.5 × priceTerm

maxPrice is taken over all candidates of the pod. When it is not positive,
or every candidate has the same price, priceTerm is 1 for all of them.
Capacity that already exists (or was already chosen in this run) is treated
as sunk cost, so at equal fit it always beats buying a new machine.

A worked example on an empty cluster, for a pod requesting 1.5 vCPU and
3 GiB:

	machine type     vCPU  GiB   $/h     cpuTerm  ramTerm  priceTerm  score
	e2-medium        2     4     0.0335  0.75     0.75     0.75       1.875
	e2-standard-2    2     8     0.067   0.75     0.375    0.5        1.375
	e2-standard-4    4     16    0.134   0.375    0.1875   0          0.5625

e2-medium#1 is created. A following pod of 0.5 vCPU and 1 GiB fills it
exactly and scores 2.5 there, more than any new machine can reach.

# Usage Examples

Planning without touching the cluster:

	snapshot, err := mon.Refresh(ctx)
	if err != nil {
		return err
	}
	pending := snapshot.PendingPods("cirrus", "default")
	plan := optimizer.Optimize(pending, snapshot.ReadyNodes(), cache.Snapshot().MachineTypes())

	for _, n := range plan.NewNodes() {
		fmt.Printf("create %s (%s) for %d pods\n", n.Name, n.MachineType, len(n.Pods))
	}
	for _, p := range plan.Unplaced {
		fmt.Printf("no machine type fits %s\n", p.Key())
	}

Reporting a plan:

	summary := optimizer.Summarize(plan)
	optimizer.LogSummary(logger, summary)
	fmt.Printf("new nodes cost $%.4f/h\n", summary.NewNodesPrice)

Summarize reports per-node utilization in percent and counts each node's
price once. LogSummary writes one "Plan node" line per node, tagged
action=create or action=reuse, then a "Plan summary" line with the totals
and a warning for every unplaced pod.

# Edge Cases

	no pending pods        the plan holds only the Ready nodes
	no machine types       pods that fit no Ready node are unplaced
	pod larger than every  unplaced; no node is created for it
	machine type
	zero-capacity node     that dimension counts as fully used
	idle Ready node        kept in the plan with no new pods
*/
package optimizer
