package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/cuemby/cirrus/pkg/metrics"
	"github.com/rs/zerolog"
)

const (
	DefaultPollInterval = 10 * time.Second
	DefaultErrorBackoff = 5 * time.Second
)

// PendingCounter counts pods waiting for this scheduler
type PendingCounter interface {
	CountPending(ctx context.Context) (int, error)
}

// TriggerFunc starts a scheduling cycle
type TriggerFunc func(ctx context.Context) error

// Poller watches for pending pods and triggers scheduling cycles
type Poller struct {
	counter  PendingCounter
	trigger  TriggerFunc
	interval time.Duration
	backoff  time.Duration
	skip     []error
	logger   zerolog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewPoller creates a poller. Zero durations take the defaults.
func NewPoller(counter PendingCounter, trigger TriggerFunc, interval, backoff time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if backoff <= 0 {
		backoff = DefaultErrorBackoff
	}
	return &Poller{
		counter:  counter,
		trigger:  trigger,
		interval: interval,
		backoff:  backoff,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// IgnoreErrors lists trigger errors that are expected and logged at debug
// level only, such as a cycle already being in flight.
func (p *Poller) IgnoreErrors(errs ...error) {
	p.skip = append(p.skip, errs...)
}

// Start begins the poll loop
func (p *Poller) Start() {
	go p.run()
}

// Stop stops the poll loop and waits for the current iteration to return
func (p *Poller) Stop() {
	close(p.stopCh)
	<-p.doneCh
}

func (p *Poller) run() {
	defer close(p.doneCh)

	for {
		wait := p.interval
		if err := p.poll(); err != nil {
			p.logger.Error().Err(err).Dur("backoff", p.backoff).Msg("Pending pod poll failed")
			wait = p.backoff
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-p.stopCh:
			timer.Stop()
			return
		}
	}
}

// poll performs one detection pass. Only counting errors are returned; trigger
// errors are logged.
func (p *Poller) poll() error {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	count, err := p.counter.CountPending(ctx)
	cancel()
	if err != nil {
		metrics.UpdateComponent(metrics.ComponentKubernetes, false, err.Error())
		return err
	}
	metrics.UpdateComponent(metrics.ComponentKubernetes, true, "")
	metrics.PendingPods.Set(float64(count))

	if count == 0 {
		p.logger.Debug().Msg("No pending pods")
		return nil
	}

	p.logger.Info().Int("pending", count).Msg("Pending pods detected, triggering scheduling cycle")
	if err := p.trigger(context.Background()); err != nil {
		if p.ignored(err) {
			p.logger.Debug().Err(err).Msg("Scheduling cycle skipped")
			return nil
		}
		p.logger.Error().Err(err).Msg("Scheduling cycle failed")
	}
	return nil
}

func (p *Poller) ignored(err error) bool {
	for _, target := range p.skip {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
