/*
Package monitor observes the Kubernetes cluster for the scheduler.

ClusterMonitor lists nodes and pods through client-go and converts them into
a types.ClusterSnapshot. Capacities and requests are read from
resource.Quantity values: CPU in cores, memory in GiB. A node's machine type
comes from the node.kubernetes.io/instance-type label and is priced from the
current pricing table. Pods are attached to the node named in their spec
unless they have already completed.

Poller asks the monitor how many pending pods are tagged for this scheduler
every PollInterval and triggers a scheduling cycle when the count is non-zero.
A failed count backs off for ErrorBackoff before the next attempt.
*/
package monitor
