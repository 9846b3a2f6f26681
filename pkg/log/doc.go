/*
Package log provides structured logging for cirrus using zerolog.

The process logger is built once at startup with Init and then handed to each
component through its constructor, usually narrowed with WithComponent:

	base := log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	sched := scheduler.New(deps, cfg, log.WithComponent(base, "scheduler"))

Components never reach for the package-level Logger themselves; it exists
for the CLI entry point and for code paths that run before wiring completes.
Tests pass zerolog.Nop() or a logger writing into a bytes.Buffer.

# Fields

Loggers carry context as structured fields rather than formatted text:

  - component: scheduler, optimizer, pricing, monitor, provisioner, api
  - cycle_id: UUID of one scheduling cycle (WithCycleID)
  - node: node name during provisioning and binding (WithNode)
  - pod, machine_type, provider: added per event

# Output

JSONOutput selects newline-delimited JSON, suitable for log shippers. The
console writer (default) prints RFC3339 timestamps and colorized levels for
interactive use.
*/
package log
