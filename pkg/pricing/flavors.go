package pricing

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/cirrus/pkg/types"
)

// FlavorPool lists, per provider, the machine type names that may be offered
type FlavorPool struct {
	names map[types.Provider]map[string]bool
}

// NewFlavorPool builds a pool from provider → names
func NewFlavorPool(flavors map[types.Provider][]string) *FlavorPool {
	p := &FlavorPool{names: make(map[types.Provider]map[string]bool, len(flavors))}
	for provider, names := range flavors {
		set := make(map[string]bool, len(names))
		for _, n := range names {
			set[n] = true
		}
		p.names[provider] = set
	}
	return p
}

// LoadFlavorPool reads a YAML or JSON flavor file
func LoadFlavorPool(path string) (*FlavorPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flavor pool: %w", err)
	}

	var flavors map[types.Provider][]string
	if err := yaml.Unmarshal(data, &flavors); err != nil {
		return nil, fmt.Errorf("failed to parse flavor pool: %w", err)
	}
	return NewFlavorPool(flavors), nil
}

// Allows reports whether the provider may offer the named type. A nil pool
// or a provider without a list allows everything.
func (p *FlavorPool) Allows(provider types.Provider, name string) bool {
	if p == nil {
		return true
	}
	set, ok := p.names[provider]
	if !ok || len(set) == 0 {
		return true
	}
	return set[name]
}

// Names returns the listed names for a provider, nil when unrestricted
func (p *FlavorPool) Names(provider types.Provider) []string {
	if p == nil {
		return nil
	}
	set := p.names[provider]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
