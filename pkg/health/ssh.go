package health

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Servers may send other lines before the version exchange (RFC 4253 4.2).
const maxPreambleLines = 16

// SSHChecker reports healthy once an SSH server on Address sends its
// version banner. An open port that never greets is unhealthy.
type SSHChecker struct {
	Address string
	Timeout time.Duration
}

// NewSSHChecker returns a checker for the SSH server at host:port
func NewSSHChecker(host string, port int) *SSHChecker {
	return &SSHChecker{
		Address: net.JoinHostPort(host, strconv.Itoa(port)),
		Timeout: 5 * time.Second,
	}
}

// Check dials Address and reads until the SSH version line. Nothing is
// written to the server.
func (c *SSHChecker) Check(ctx context.Context) Result {
	start := time.Now()
	result := func(healthy bool, format string, args ...any) Result {
		return Result{
			Healthy:   healthy,
			Message:   fmt.Sprintf(format, args...),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", c.Address)
	if err != nil {
		return result(false, "dial %s: %v", c.Address, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	r := bufio.NewReader(conn)
	for range maxPreambleLines {
		line, err := r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if strings.HasPrefix(line, "SSH-") {
			return result(true, "%s", line)
		}
		if err != nil {
			return result(false, "no ssh banner from %s: %v", c.Address, err)
		}
	}
	return result(false, "no ssh banner from %s within %d lines", c.Address, maxPreambleLines)
}

// Type returns CheckTypeSSH
func (c *SSHChecker) Type() CheckType {
	return CheckTypeSSH
}
