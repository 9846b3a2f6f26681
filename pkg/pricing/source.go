package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/cirrus/pkg/types"
)

var (
	// ErrNoMachineTypes is returned when no pricing table has been published
	ErrNoMachineTypes = errors.New("no machine types published")

	// ErrUnknownMachineType is returned by Price for a name the source does not offer
	ErrUnknownMachineType = errors.New("unknown machine type")
)

// Source fetches machine types and hourly prices from one provider
type Source interface {
	// Provider identifies the source
	Provider() types.Provider

	// Refresh fetches the provider's current catalog. On error the
	// previously fetched machine types are kept.
	Refresh(ctx context.Context) error

	// MachineTypes returns the machine types of the last successful refresh
	MachineTypes() []types.MachineType

	// Price returns the hourly price of a machine type
	Price(name string) (float64, error)
}

// MachineSet is the thread-safe result holder shared by Source
// implementations. Its zero value is empty and ready to use.
type MachineSet struct {
	mu     sync.RWMutex
	byName map[string]types.MachineType
}

// Set replaces the held machine types
func (s *MachineSet) Set(mts []types.MachineType) {
	byName := make(map[string]types.MachineType, len(mts))
	for _, mt := range mts {
		byName[mt.Name] = mt
	}

	s.mu.Lock()
	s.byName = byName
	s.mu.Unlock()
}

// MachineTypes returns a sorted copy of the held machine types
func (s *MachineSet) MachineTypes() []types.MachineType {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.MachineType, 0, len(s.byName))
	for _, mt := range s.byName {
		out = append(out, mt)
	}
	types.SortMachineTypes(out)
	return out
}

// Price returns the hourly price of a held machine type
func (s *MachineSet) Price(name string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mt, ok := s.byName[name]
	if !ok {
		return 0, fmt.Errorf("%s: %w", name, ErrUnknownMachineType)
	}
	return mt.Price, nil
}

// StaticSource serves machine types declared in configuration
type StaticSource struct {
	MachineSet
	declared []types.MachineType
	pool     *FlavorPool
}

// NewStaticSource creates a source over fixed machine types. A nil pool
// allows every declared type.
func NewStaticSource(machineTypes []types.MachineType, pool *FlavorPool) *StaticSource {
	return &StaticSource{declared: machineTypes, pool: pool}
}

func (s *StaticSource) Provider() types.Provider {
	return types.ProviderStatic
}

// Refresh validates the declared machine types and publishes those in the pool
func (s *StaticSource) Refresh(ctx context.Context) error {
	var out []types.MachineType
	for _, mt := range s.declared {
		mt.Provider = types.ProviderStatic
		if err := mt.Validate(); err != nil {
			return err
		}
		if !s.pool.Allows(types.ProviderStatic, mt.Name) {
			continue
		}
		out = append(out, mt)
	}
	if len(out) == 0 {
		return fmt.Errorf("static: %w", ErrNoMachineTypes)
	}
	s.Set(out)
	return nil
}
