/*
Package storage persists the merged pricing file that lets cirrus start with
a usable machine type table before any provider API has answered.

# Format

The file maps each provider to a list of single-key objects, one per machine
type:

	{
	  "gcp": [
	    {"e2-standard-2": {"cpu": 2, "ram": 8, "price": 0.067}},
	    {"e2-standard-4": {"cpu": 4, "ram": 16, "price": 0.134}}
	  ],
	  "aws": [
	    {"m5.large": {"cpu": 2, "ram": 8, "price": 0.096}}
	  ]
	}

Entries are written sorted by name. Save replaces one provider and keeps the
others untouched, so providers refreshed at different times share one file.

# Backends

	┌──────────────── PricingStore ────────────────┐
	│                                               │
	│  FileStore                 BoltStore          │
	│  - one JSON document       - bucket "pricing" │
	│  - temp file + rename      - key = provider   │
	│  - missing file = empty    - value = entries  │
	│                                               │
	└───────────────────────────────────────────────┘

FileStore is the default and keeps the format readable and editable by hand.
BoltStore stores the same per-provider entry lists inside a BoltDB
transaction and suits deployments that already keep state on a data volume.

Neither backend serializes callers beyond a single Save; the pricing catalog
holds its own write mutex so concurrent provider refreshes never interleave.
*/
package storage
