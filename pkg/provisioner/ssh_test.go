package provisioner

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSession struct {
	ran    *[]string
	fail   map[string]error
	closed *int
}

func (s *recordingSession) Run(command string) ([]byte, error) {
	*s.ran = append(*s.ran, command)
	if err, ok := s.fail[command]; ok {
		return []byte("error output\n"), err
	}
	return []byte("ok"), nil
}

func (s *recordingSession) Close() error {
	*s.closed++
	return nil
}

func TestSSHBootstrapRetriesConnection(t *testing.T) {
	var addrs, ran []string
	var closed int
	refusals := 2

	connect := func(_ context.Context, addr string) (Session, error) {
		addrs = append(addrs, addr)
		if refusals > 0 {
			refusals--
			return nil, syscall.ECONNREFUSED
		}
		return &recordingSession{ran: &ran, closed: &closed}, nil
	}

	b := newSSHBootstrapper(SSHConfig{Port: 2222, Retries: 5, RetryInterval: time.Millisecond}, connect, zerolog.Nop())
	err := b.Bootstrap(context.Background(), "10.0.0.5", []string{"apt-get update", "kubeadm join"})
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.5:2222", "10.0.0.5:2222", "10.0.0.5:2222"}, addrs)
	assert.Equal(t, []string{"apt-get update", "kubeadm join"}, ran)
	assert.Equal(t, 1, closed)
}

func TestSSHBootstrapRetriesExhausted(t *testing.T) {
	attempts := 0
	connect := func(context.Context, string) (Session, error) {
		attempts++
		return nil, syscall.ECONNREFUSED
	}

	b := newSSHBootstrapper(SSHConfig{Retries: 3, RetryInterval: time.Millisecond}, connect, zerolog.Nop())
	err := b.Bootstrap(context.Background(), "10.0.0.5", []string{"true"})
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Equal(t, 3, attempts)
}

func TestSSHBootstrapCommandFailureNotRetried(t *testing.T) {
	var ran []string
	var closed, attempts int
	cmdErr := &CommandError{Command: "kubeadm join", Err: errors.New("exit status 1")}

	connect := func(context.Context, string) (Session, error) {
		attempts++
		return &recordingSession{
			ran:    &ran,
			closed: &closed,
			fail:   map[string]error{"kubeadm join": cmdErr},
		}, nil
	}

	b := newSSHBootstrapper(SSHConfig{Retries: 5, RetryInterval: time.Millisecond}, connect, zerolog.Nop())
	err := b.Bootstrap(context.Background(), "10.0.0.5", []string{"kubeadm join", "never runs"})
	require.Error(t, err)

	var got *CommandError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, []string{"kubeadm join"}, ran)
	assert.Equal(t, 1, closed)
}

func TestSSHBootstrapContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	connect := func(context.Context, string) (Session, error) {
		cancel()
		return nil, syscall.ECONNREFUSED
	}

	b := newSSHBootstrapper(SSHConfig{Retries: 5, RetryInterval: time.Hour}, connect, zerolog.Nop())
	err := b.Bootstrap(ctx, "10.0.0.5", []string{"true"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewSSHBootstrapperMissingKey(t *testing.T) {
	_, err := NewSSHBootstrapper(SSHConfig{KeyFile: t.TempDir() + "/missing"}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read ssh key")
}
