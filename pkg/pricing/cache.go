package pricing

import (
	"sync"
	"time"

	"github.com/cuemby/cirrus/pkg/types"
)

// Table is an immutable machine type table keyed by type name
type Table struct {
	byName  map[string]types.MachineType
	sorted  []types.MachineType
	builtAt time.Time
}

// NewTable builds a table from machine types. When two providers share a
// type name the first in provider order wins.
func NewTable(mts []types.MachineType) *Table {
	sorted := append([]types.MachineType(nil), mts...)
	types.SortMachineTypes(sorted)

	t := &Table{
		byName:  make(map[string]types.MachineType, len(sorted)),
		sorted:  make([]types.MachineType, 0, len(sorted)),
		builtAt: time.Now(),
	}
	for _, mt := range sorted {
		if _, dup := t.byName[mt.Name]; dup {
			continue
		}
		t.byName[mt.Name] = mt
		t.sorted = append(t.sorted, mt)
	}
	return t
}

// Get returns the machine type with the given name
func (t *Table) Get(name string) (types.MachineType, bool) {
	mt, ok := t.byName[name]
	return mt, ok
}

// MachineTypes returns a sorted copy of every machine type
func (t *Table) MachineTypes() []types.MachineType {
	return append([]types.MachineType(nil), t.sorted...)
}

// Len returns the number of machine types
func (t *Table) Len() int {
	return len(t.sorted)
}

// CountByProvider returns how many machine types each provider contributes
func (t *Table) CountByProvider() map[types.Provider]int {
	counts := make(map[types.Provider]int)
	for _, mt := range t.sorted {
		counts[mt.Provider]++
	}
	return counts
}

// BuiltAt returns when the table was built
func (t *Table) BuiltAt() time.Time {
	return t.builtAt
}

// Cache publishes the current Table. Readers always see a complete table;
// writers build a new one and swap the pointer.
type Cache struct {
	mu        sync.RWMutex
	table     *Table
	published bool
}

// NewCache creates a cache holding an empty table
func NewCache() *Cache {
	return &Cache{table: NewTable(nil)}
}

// Snapshot returns the current table
func (c *Cache) Snapshot() *Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.table
}

// Swap publishes a new table
func (c *Cache) Swap(t *Table) {
	c.mu.Lock()
	c.table = t
	c.published = true
	c.mu.Unlock()
}

// Ready reports whether a non-empty table has been published
func (c *Cache) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.published && c.table.Len() > 0
}
