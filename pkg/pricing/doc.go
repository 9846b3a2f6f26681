/*
Package pricing maintains the machine type and hourly price table the
optimizer plans against.

# Architecture

	 Source (gcp, aws, static)      Source ...
	         │ Refresh (concurrent, no locks held)
	         ▼
	      Catalog ── merge under write mutex ──► storage.PricingStore
	         │
	         │ load, build and swap under the same mutex
	         ▼
	       Cache  ◄── Snapshot() ── scheduler

Each Source fetches its provider's catalog into a MachineSet. The Catalog
persists every successful result, then builds a new immutable Table from the
merged file and swaps it into the Cache. A provider whose refresh fails keeps
its last persisted entries, so a throttled API never empties the table.

Publishing holds the catalog's write mutex from loading the file until the
swap. Two refreshes that overlap therefore publish in the order their merges
were written, and the cache never goes back to an older file.

# Core Components

Table is an immutable, name-indexed view of machine types sorted by
provider and name. Readers keep the Table they got from Snapshot for as long
as they need it; a later Swap does not change it.

Cache holds the current Table behind a read-write mutex and starts with an
empty one, so Snapshot never returns nil. Ready reports whether a non-empty
table has been published.

Catalog owns the sources and the store. Warm publishes the persisted file at
startup without contacting any provider. Refresh queries every source and
publishes once all of them have answered.

Refresher repeats Catalog.Refresh on a fixed interval (10 minutes by
default) until Stop is called.

FlavorPool restricts which machine type names each provider may offer. An
empty pool for a provider allows every name.

# Usage Examples

Wiring a catalog over the persisted file and two providers:

	store, err := storage.NewFileStore("/var/lib/cirrus/pricing.json")
	if err != nil {
		return err
	}
	pool, err := pricing.LoadFlavorPool("/etc/cirrus/flavors.yaml")
	if err != nil {
		return err
	}

	cache := pricing.NewCache()
	catalog := pricing.NewCatalog(store, cache, logger,
		gcp.NewSource(gcpClient, gcp.Config{Project: "acme", Region: "us-east1", Zone: "us-east1-b"}, pool, logger),
		pricing.NewStaticSource(lab, pool),
	)

	if err := catalog.Warm(ctx); err != nil {
		return err
	}
	refresher := pricing.NewRefresher(catalog, 10*time.Minute, logger)
	refresher.Start()
	defer refresher.Stop()

Reading a price during planning:

	if !cache.Ready() {
		return scheduler.ErrPricingUnavailable
	}
	mt, ok := cache.Snapshot().Get("e2-standard-4")
	if ok {
		fmt.Printf("%s: %.0f vCPU, %.0f GiB, $%.4f/h\n", mt.Name, mt.CPU, mt.RAM, mt.Price)
	}

A custom Source embeds MachineSet and only implements Provider and Refresh:

	type labSource struct {
		pricing.MachineSet
	}

	func (s *labSource) Provider() types.Provider { return types.ProviderStatic }

	func (s *labSource) Refresh(ctx context.Context) error {
		s.Set(inventory(ctx))
		return nil
	}

# Integration Points

The scheduler reads Cache.Snapshot once per cycle and keeps that Table for
the whole plan. The HTTP API serves the same snapshot at /v1/pricing.
`cirrus pricing refresh` calls Catalog.Refresh once and prints the per
provider counts. Refresh and failure events go to the events broker when a
publisher is set.

# Failure Handling

Refresh returns the errors of all failed sources joined together, after the
new table has been published. The pricing component is reported degraded
while any source fails and unhealthy until a non-empty table exists. An
empty persisted file at startup is not an error; scheduling waits for the
first successful refresh.

# Monitoring Metrics

	cirrus_pricing_refresh_duration_seconds{provider}   fetch time per source
	cirrus_pricing_refresh_errors_total{provider}       failed fetches and merges
	cirrus_machine_types{provider}                      entries in the published table
*/
package pricing
