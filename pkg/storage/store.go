package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/cuemby/cirrus/pkg/types"
)

// ErrNotFound is returned when a provider has no persisted entries
var ErrNotFound = errors.New("not found")

// PricingStore persists the merged pricing file shared by all providers
type PricingStore interface {
	// Load returns every provider's persisted machine types. A store that
	// has never been written returns an empty file.
	Load() (PricingFile, error)

	// Save replaces the entries of one provider, keeping the others
	Save(provider types.Provider, machineTypes []types.MachineType) error

	Close() error
}

// PricingFile maps a provider to its machine types
type PricingFile map[types.Provider][]types.MachineType

// MachineTypes returns the entries of one provider or ErrNotFound
func (f PricingFile) MachineTypes(provider types.Provider) ([]types.MachineType, error) {
	mts, ok := f[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s: %w", provider, ErrNotFound)
	}
	return mts, nil
}

// All returns every machine type of every provider, sorted
func (f PricingFile) All() []types.MachineType {
	var all []types.MachineType
	for _, mts := range f {
		all = append(all, mts...)
	}
	types.SortMachineTypes(all)
	return all
}

// entry is the on-disk shape of one machine type: a single-key object
// {"<name>": {"cpu": .., "ram": .., "price": ..}}. Keys match case-insensitively,
// so files using "CPU" and "RAM" decode too.
type entry map[string]entryValue

type entryValue struct {
	CPU   float64 `json:"cpu"`
	RAM   float64 `json:"ram"`
	Price float64 `json:"price"`
}

func encodeEntries(mts []types.MachineType) []entry {
	sorted := append([]types.MachineType(nil), mts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	out := make([]entry, 0, len(sorted))
	for _, mt := range sorted {
		out = append(out, entry{mt.Name: {CPU: mt.CPU, RAM: mt.RAM, Price: mt.Price}})
	}
	return out
}

func decodeEntries(provider types.Provider, entries []entry) ([]types.MachineType, error) {
	out := make([]types.MachineType, 0, len(entries))
	for _, e := range entries {
		if len(e) != 1 {
			return nil, fmt.Errorf("provider %s: entry must have exactly one machine type, got %d", provider, len(e))
		}
		for name, v := range e {
			mt := types.MachineType{Provider: provider, Name: name, CPU: v.CPU, RAM: v.RAM, Price: v.Price}
			if err := mt.Validate(); err != nil {
				return nil, fmt.Errorf("provider %s: %w", provider, err)
			}
			out = append(out, mt)
		}
	}
	return out, nil
}

func marshalFile(f PricingFile) ([]byte, error) {
	raw := make(map[types.Provider][]entry, len(f))
	for provider, mts := range f {
		raw[provider] = encodeEntries(mts)
	}
	return json.MarshalIndent(raw, "", "  ")
}

func unmarshalFile(data []byte) (PricingFile, error) {
	var raw map[types.Provider]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode pricing file: %w", err)
	}
	f := make(PricingFile, len(raw))
	for provider, value := range raw {
		entries, err := decodeProvider(provider, value)
		if err != nil {
			return nil, err
		}
		mts, err := decodeEntries(provider, entries)
		if err != nil {
			return nil, err
		}
		f[provider] = mts
	}
	return f, nil
}

// decodeProvider accepts a list of single-key entries, null, or an object
// keyed by machine type name. Files written before a provider's first
// refresh carry that provider as {}.
func decodeProvider(provider types.Provider, value json.RawMessage) ([]entry, error) {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '{' {
		var obj entry
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("failed to decode pricing file: provider %s: %w", provider, err)
		}
		names := make([]string, 0, len(obj))
		for name := range obj {
			names = append(names, name)
		}
		sort.Strings(names)
		entries := make([]entry, 0, len(names))
		for _, name := range names {
			entries = append(entries, entry{name: obj[name]})
		}
		return entries, nil
	}

	var entries []entry
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode pricing file: provider %s: %w", provider, err)
	}
	return entries, nil
}
