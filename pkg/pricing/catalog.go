package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/cirrus/pkg/events"
	"github.com/cuemby/cirrus/pkg/metrics"
	"github.com/cuemby/cirrus/pkg/storage"
	"github.com/cuemby/cirrus/pkg/types"
)

// Catalog refreshes every enabled Source, merges their results into the
// persisted pricing file and publishes the combined table to the Cache.
type Catalog struct {
	sources   []Source
	store     storage.PricingStore
	cache     *Cache
	publisher events.Publisher
	logger    zerolog.Logger

	// writeMu serializes merges into the pricing file and the
	// load-build-swap of each publish, so a table built from an older file
	// never replaces a newer one
	writeMu sync.Mutex
}

// NewCatalog creates a catalog over the given sources
func NewCatalog(store storage.PricingStore, cache *Cache, logger zerolog.Logger, sources ...Source) *Catalog {
	return &Catalog{
		sources: sources,
		store:   store,
		cache:   cache,
		logger:  logger,
	}
}

// SetPublisher makes the catalog publish refresh events
func (c *Catalog) SetPublisher(p events.Publisher) {
	c.publisher = p
}

// Cache returns the cache the catalog publishes to
func (c *Catalog) Cache() *Cache {
	return c.cache
}

// Providers returns the providers of the enabled sources
func (c *Catalog) Providers() []types.Provider {
	out := make([]types.Provider, 0, len(c.sources))
	for _, src := range c.sources {
		out = append(out, src.Provider())
	}
	return out
}

// Warm publishes the persisted pricing file so scheduling can start before
// any provider has been queried
func (c *Catalog) Warm(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	table, err := c.publish()
	if err != nil {
		return fmt.Errorf("failed to warm pricing cache: %w", err)
	}
	if table.Len() == 0 {
		c.logger.Warn().Msg("Persisted pricing file is empty, waiting for first refresh")
		return nil
	}
	c.logger.Info().Int("machine_types", table.Len()).Msg("Pricing cache warmed from persisted file")
	return nil
}

// Refresh queries every source concurrently. Each fetch runs outside any
// lock; only merges into the pricing file and publishes are serialized. A
// failing source keeps its previously persisted entries and its error is
// returned joined with the others after the new table has been published.
func (c *Catalog) Refresh(ctx context.Context) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	record := func(provider types.Provider, err error) {
		metrics.PricingRefreshErrors.WithLabelValues(string(provider)).Inc()
		mu.Lock()
		errs = append(errs, fmt.Errorf("%s: %w", provider, err))
		mu.Unlock()
	}

	var g errgroup.Group
	for _, src := range c.sources {
		g.Go(func() error {
			provider := src.Provider()
			logger := c.logger.With().Str("provider", string(provider)).Logger()
			timer := metrics.NewTimer()

			if err := src.Refresh(ctx); err != nil {
				logger.Error().Err(err).Msg("Pricing refresh failed, keeping persisted entries")
				record(provider, err)
				c.emit(events.NewEvent(events.EventPricingFailed, "", err.Error()).With("provider", string(provider)))
				return nil
			}
			timer.ObserveDurationVec(metrics.PricingRefreshDuration, string(provider))

			mts := src.MachineTypes()
			if err := c.merge(provider, mts); err != nil {
				logger.Error().Err(err).Msg("Failed to persist pricing")
				record(provider, err)
				return nil
			}

			logger.Info().
				Int("machine_types", len(mts)).
				Dur("duration", timer.Duration()).
				Msg("Pricing refreshed")
			c.emit(events.NewEvent(events.EventPricingRefreshed, "", fmt.Sprintf("%d machine types", len(mts))).
				With("provider", string(provider)))
			return nil
		})
	}
	_ = g.Wait()

	table, err := c.publish()
	if err != nil {
		errs = append(errs, err)
	} else {
		c.logger.Debug().Int("machine_types", table.Len()).Msg("Pricing table published")
	}

	if len(errs) > 0 {
		metrics.UpdateComponent(metrics.ComponentPricing, c.cache.Ready(), errors.Join(errs...).Error())
		return errors.Join(errs...)
	}
	metrics.UpdateComponent(metrics.ComponentPricing, c.cache.Ready(), "")
	return nil
}

func (c *Catalog) merge(provider types.Provider, mts []types.MachineType) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.store.Save(provider, mts)
}

// publish rebuilds the table from the pricing file, restricted to the
// enabled providers, and swaps it into the cache
func (c *Catalog) publish() (*Table, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	file, err := c.store.Load()
	if err != nil {
		return nil, err
	}

	var mts []types.MachineType
	for _, provider := range c.Providers() {
		mts = append(mts, file[provider]...)
	}

	table := NewTable(mts)
	if table.Len() > 0 {
		c.cache.Swap(table)
	}

	for provider, n := range table.CountByProvider() {
		metrics.MachineTypes.WithLabelValues(string(provider)).Set(float64(n))
	}
	return table, nil
}

func (c *Catalog) emit(ev *events.Event) {
	if c.publisher != nil {
		c.publisher.Publish(ev)
	}
}
