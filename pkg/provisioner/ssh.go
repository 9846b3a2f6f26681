package provisioner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Bootstrapper joins a running instance to the cluster
type Bootstrapper interface {
	Bootstrap(ctx context.Context, host string, commands []string) error
}

// CommandError is returned when a bootstrap command exits non-zero. It is not
// retried.
type CommandError struct {
	Command string
	Output  string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed: %v: %s", e.Command, e.Err, e.Output)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Session runs commands on a remote host
type Session interface {
	Run(command string) ([]byte, error)
	Close() error
}

// SSHConfig configures the SSH bootstrapper
type SSHConfig struct {
	User           string
	KeyFile        string
	KnownHostsFile string
	Port           int
	Retries        int
	RetryInterval  time.Duration
	DialTimeout    time.Duration
}

// SSHBootstrapper runs bootstrap commands over SSH, reconnecting with a fixed
// backoff while the host is still coming up.
type SSHBootstrapper struct {
	cfg     SSHConfig
	connect func(ctx context.Context, addr string) (Session, error)
	logger  zerolog.Logger
}

// NewSSHBootstrapper loads the private key and host key policy from cfg
func NewSSHBootstrapper(cfg SSHConfig, logger zerolog.Logger) (*SSHBootstrapper, error) {
	key, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ssh key: %w", err)
	}

	hostKeys := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		hostKeys, err = knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
	} else {
		logger.Warn().Msg("No known hosts file configured, host keys of new nodes are not verified")
	}

	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	clientCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeys,
		Timeout:         cfg.DialTimeout,
	}

	return newSSHBootstrapper(cfg, dialSSH(clientCfg), logger), nil
}

func newSSHBootstrapper(cfg SSHConfig, connect func(context.Context, string) (Session, error), logger zerolog.Logger) *SSHBootstrapper {
	if cfg.Port <= 0 {
		cfg.Port = 22
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 1
	}
	return &SSHBootstrapper{cfg: cfg, connect: connect, logger: logger}
}

// Bootstrap runs commands in order on host. Connection failures are retried
// up to Retries times; a failing command aborts immediately.
func (b *SSHBootstrapper) Bootstrap(ctx context.Context, host string, commands []string) error {
	addr := net.JoinHostPort(host, strconv.Itoa(b.cfg.Port))

	var lastErr error
	for attempt := 1; attempt <= b.cfg.Retries; attempt++ {
		lastErr = b.run(ctx, addr, commands)
		if lastErr == nil {
			return nil
		}
		var cmdErr *CommandError
		if errors.As(lastErr, &cmdErr) {
			return lastErr
		}

		b.logger.Warn().
			Err(lastErr).
			Str("host", host).
			Int("attempt", attempt).
			Int("retries", b.cfg.Retries).
			Msg("SSH bootstrap attempt failed")

		if attempt == b.cfg.Retries {
			break
		}
		timer := time.NewTimer(b.cfg.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("ssh bootstrap of %s failed after %d attempts: %w", host, b.cfg.Retries, lastErr)
}

func (b *SSHBootstrapper) run(ctx context.Context, addr string, commands []string) error {
	session, err := b.connect(ctx, addr)
	if err != nil {
		return err
	}
	defer session.Close()

	for _, command := range commands {
		b.logger.Debug().Str("addr", addr).Str("command", command).Msg("Running bootstrap command")
		out, err := session.Run(command)
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				return &CommandError{Command: command, Output: strings.TrimSpace(string(out)), Err: err}
			}
			return err
		}
	}
	return nil
}

// sshSession opens one SSH session per command on a shared connection
type sshSession struct {
	client *ssh.Client
}

func (s *sshSession) Run(command string) ([]byte, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return nil, err
	}
	defer session.Close()
	return session.CombinedOutput(command)
}

func (s *sshSession) Close() error {
	return s.client.Close()
}

func dialSSH(cfg *ssh.ClientConfig) func(context.Context, string) (Session, error) {
	return func(ctx context.Context, addr string) (Session, error) {
		dialer := &net.Dialer{Timeout: cfg.Timeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return &sshSession{client: ssh.NewClient(c, chans, reqs)}, nil
	}
}
