package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/cirrus/pkg/metrics"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	mu    sync.Mutex
	count int
	err   error
	calls int32
}

func (f *fakeCounter) CountPending(context.Context) (int, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count, f.err
}

func (f *fakeCounter) set(count int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count, f.err = count, err
}

func TestNewPollerDefaults(t *testing.T) {
	p := NewPoller(&fakeCounter{}, func(context.Context) error { return nil }, 0, 0, zerolog.Nop())
	assert.Equal(t, DefaultPollInterval, p.interval)
	assert.Equal(t, DefaultErrorBackoff, p.backoff)
}

func TestPollTriggersOnlyWithPendingPods(t *testing.T) {
	counter := &fakeCounter{}
	var triggers int32
	p := NewPoller(counter, func(context.Context) error {
		atomic.AddInt32(&triggers, 1)
		return nil
	}, time.Second, time.Second, zerolog.Nop())

	require.NoError(t, p.poll())
	assert.Equal(t, int32(0), atomic.LoadInt32(&triggers))

	counter.set(3, nil)
	require.NoError(t, p.poll())
	assert.Equal(t, int32(1), atomic.LoadInt32(&triggers))

	health, ok := metrics.Component(metrics.ComponentKubernetes)
	require.True(t, ok)
	assert.True(t, health.Healthy())
}

func TestPollCountError(t *testing.T) {
	counter := &fakeCounter{}
	counter.set(0, errors.New("connection refused"))
	p := NewPoller(counter, func(context.Context) error {
		t.Fatal("trigger must not run when counting fails")
		return nil
	}, time.Second, time.Second, zerolog.Nop())

	require.Error(t, p.poll())

	health, ok := metrics.Component(metrics.ComponentKubernetes)
	require.True(t, ok)
	assert.False(t, health.Healthy())
	assert.Equal(t, "connection refused", health.Message)
}

func TestPollTriggerErrorDoesNotFailPoll(t *testing.T) {
	inFlight := errors.New("cycle in flight")
	counter := &fakeCounter{}
	counter.set(1, nil)

	tests := []struct {
		name string
		err  error
	}{
		{"ignored", inFlight},
		{"wrapped ignored", errors.Join(errors.New("trigger"), inFlight)},
		{"other", errors.New("provisioning failed")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPoller(counter, func(context.Context) error { return tt.err }, time.Second, time.Second, zerolog.Nop())
			p.IgnoreErrors(inFlight)
			assert.NoError(t, p.poll())
		})
	}
}

func TestPollerLoopKeepsPolling(t *testing.T) {
	counter := &fakeCounter{}
	counter.set(1, nil)
	var triggers int32
	p := NewPoller(counter, func(context.Context) error {
		atomic.AddInt32(&triggers, 1)
		return errors.New("cycle failed")
	}, 10*time.Millisecond, 10*time.Millisecond, zerolog.Nop())

	p.Start()
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&triggers) >= 3
	}, time.Second, 5*time.Millisecond)
	p.Stop()

	calls := atomic.LoadInt32(&counter.calls)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, atomic.LoadInt32(&counter.calls), "no polls after Stop")
}
