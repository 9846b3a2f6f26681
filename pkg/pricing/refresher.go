package pricing

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRefreshInterval matches the provider catalogs' update cadence
const DefaultRefreshInterval = 10 * time.Minute

// Refresher periodically refreshes a Catalog
type Refresher struct {
	catalog  *Catalog
	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewRefresher creates a new refresher
func NewRefresher(catalog *Catalog, interval time.Duration, logger zerolog.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{
		catalog:  catalog,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the refresh loop
func (r *Refresher) Start() {
	go r.run()
}

// Stop stops the refresh loop and waits for an in-flight refresh to finish
func (r *Refresher) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Refresher) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.interval)
			if err := r.catalog.Refresh(ctx); err != nil {
				r.logger.Error().Err(err).Msg("Periodic pricing refresh failed")
			}
			cancel()
		case <-r.stopCh:
			return
		}
	}
}
