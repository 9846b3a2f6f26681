/*
Package libvirt implements the provisioner Driver on a KVM host.

Each node is a libvirt domain whose vCPU and memory come from the machine
type, booting from a qcow2 overlay of a prepared base image. The base image
is expected to carry the SSH key and container runtime so that the
provisioner's bootstrap commands only need to join the cluster. Addresses
are read from the libvirt network's DHCP leases once the domain runs.

Machine types for libvirt hosts normally come from the static pricing
provider, with prices set to the host's amortised hourly cost.
*/
package libvirt
