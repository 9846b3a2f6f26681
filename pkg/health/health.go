package health

import (
	"context"
	"fmt"
	"time"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypeSSH CheckType = "ssh"
)

// Result represents the outcome of a health check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of health check
	Type() CheckType
}

// Config controls how long WaitHealthy keeps checking
type Config struct {
	// Interval is the time between health checks
	Interval time.Duration

	// Retries is the number of failed checks tolerated before giving up
	Retries int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Interval: 10 * time.Second,
		Retries:  10,
	}
}

// Status tracks consecutive results of a checker
type Status struct {
	// ConsecutiveFailures tracks the number of consecutive failed checks
	ConsecutiveFailures int

	// ConsecutiveSuccesses tracks the number of consecutive successful checks
	ConsecutiveSuccesses int

	// LastResult is the result of the last health check
	LastResult Result

	// Healthy indicates if the target is currently considered healthy
	Healthy bool
}

// Update records a check result
func (s *Status) Update(result Result, config Config) {
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
		s.Healthy = true
		return
	}

	s.ConsecutiveFailures++
	s.ConsecutiveSuccesses = 0
	if s.ConsecutiveFailures >= config.Retries {
		s.Healthy = false
	}
}

// Exhausted reports whether the retry budget is used up
func (s *Status) Exhausted(config Config) bool {
	return !s.Healthy && s.ConsecutiveFailures >= config.Retries
}

// WaitHealthy runs checker until it succeeds, the retry budget is exhausted
// or ctx is done. The returned Status holds the last result either way.
func WaitHealthy(ctx context.Context, checker Checker, config Config) (*Status, error) {
	if config.Retries <= 0 {
		config.Retries = 1
	}
	status := &Status{}

	for {
		status.Update(checker.Check(ctx), config)
		if status.Healthy {
			return status, nil
		}
		if status.Exhausted(config) {
			return status, fmt.Errorf("%s check failed after %d attempts: %s",
				checker.Type(), status.ConsecutiveFailures, status.LastResult.Message)
		}

		timer := time.NewTimer(config.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return status, ctx.Err()
		case <-timer.C:
		}
	}
}
