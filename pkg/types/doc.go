/*
Package types defines the data model shared by every cirrus component.

The model is intentionally small: machine types from the pricing catalogs,
nodes and pods from the cluster, the point-in-time ClusterSnapshot that pairs
them, and the Plan that the optimizer proposes for one scheduling cycle.

# Core Types

Catalog:
  - MachineType: provider, type name, vCPU, RAM (GiB) and on-demand hourly price
  - Provider: gcp, aws or static

Cluster:
  - Node: worker machine with fixed capacity, hourly price and assigned pods
  - NodeStatus: unscheduled, provisioning, ready, not-ready
  - Pod: requested vCPU/RAM, phase, bound node and scheduler name
  - ClusterSnapshot: all nodes and pods at one instant

Scheduling:
  - Plan: ordered nodes (existing first, then new candidates) with the pods
    assigned to each, plus the pods that could not be placed

# Derived Quantities

Occupied and available capacity are never stored. They are computed from the
pods attached to a node:

	occupied := node.OccupiedCPU()          // sum of pod.CPU
	free     := node.AvailableCPU()         // node.CPU - occupied
	ok       := node.Fits(pod)              // free >= request on both axes

A node with no pods therefore always reports zero occupied capacity.

# Ownership

A pod belongs to at most one node. Binding is the only transition that sets
Pod.NodeName, and it is performed by the scheduler through the binding client,
never by flipping the field locally. Snapshots are rebuilt from scratch on
every refresh and must be treated as read-only once handed to the optimizer;
the optimizer works on clones (Node.Clone) of the nodes it receives.
*/
package types
