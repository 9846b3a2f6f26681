/*
Package provisioner creates new cluster nodes for a scheduling plan.

CreateNode drives one node through these stages, each bounded:

	create        Driver.CreateInstance with the next <prefix>-<n> name
	wait_running  poll Driver.GetInstance until RUNNING (not-found is retried)
	address       pick the external address, else the internal one
	ssh_port      wait for the SSH version banner (health.WaitHealthy)
	bootstrap     run the configured commands over SSH, retrying connects
	join          NodeWaiter polls the cluster until the node is Ready

A failure at any stage is returned as a *ProvisionError naming the node and
the stage. The name is consumed even on failure so a half-created instance
is never reused.

Name indices are derived from the authoritative node and instance lists:
AdoptExisting and Sync raise the counter past every name already in use.
CreateNode calls are serialized, so the counter needs no cross-call
coordination beyond its own lock.

Drivers live in pkg/cloud: gcp for Compute Engine and libvirt for local or
on-prem KVM hosts.
*/
package provisioner
