package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// Client executes phase commands on one remote machine. It dials lazily on
// first use and keeps the connection for reuse across phases; Close releases
// it.
type Client struct {
	config Config

	mu   sync.Mutex
	conn *ssh.Client
}

// NewClient creates a client for the given target. Defaults are applied;
// the configuration is validated.
func NewClient(cfg Config) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, &TransportError{Op: "configure", Err: err}
	}
	return &Client{config: cfg}, nil
}

// Connect establishes the SSH connection if not already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.connLocked(ctx)
	return err
}

func (c *Client) connLocked(ctx context.Context) (*ssh.Client, error) {
	if c.conn != nil {
		return c.conn, nil
	}

	clientConfig, err := c.config.clientConfig()
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err, IsAuthError: true}
	}

	address := c.config.Address()
	log.Debug().Str("address", address).Str("user", c.config.User).Msg("dialing phase target")

	type dialResult struct {
		conn *ssh.Client
		err  error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		conn, dialErr := ssh.Dial("tcp", address, clientConfig)
		resultCh <- dialResult{conn, dialErr}
	}()

	select {
	case <-ctx.Done():
		return nil, &TransportError{Op: "connect", Err: ctx.Err(), IsTemporary: true}
	case res := <-resultCh:
		if res.err != nil {
			return nil, &TransportError{
				Op:          "connect",
				Err:         res.err,
				IsTemporary: !isAuthFailure(res.err),
				IsAuthError: isAuthFailure(res.err),
			}
		}
		c.conn = res.conn
		return c.conn, nil
	}
}

// Execute runs a command on the remote machine, honoring context
// cancellation and the configured command timeout. It returns trimmed
// stdout and stderr.
func (c *Client) Execute(ctx context.Context, command string) (stdout, stderr string, err error) {
	c.mu.Lock()
	conn, err := c.connLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return "", "", err
	}

	session, err := conn.NewSession()
	if err != nil {
		return "", "", &TransportError{Op: "execute", Err: err, IsTemporary: true}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	if c.config.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.CommandTimeout)
		defer cancel()
	}

	started := time.Now()
	doneCh := make(chan error, 1)
	go func() {
		doneCh <- session.Run(command)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		runErr = ctx.Err()
	case runErr = <-doneCh:
	}

	stdout = strings.TrimSpace(stdoutBuf.String())
	stderr = strings.TrimSpace(stderrBuf.String())

	log.Debug().
		Str("host", c.config.Host).
		Str("command", command).
		Dur("duration", time.Since(started)).
		Err(runErr).
		Msg("phase command completed")

	if runErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			return stdout, stderr, &TransportError{
				Op:  "execute",
				Err: fmt.Errorf("command exited with code %d: %s", exitErr.ExitStatus(), stderr),
			}
		}
		return stdout, stderr, &TransportError{Op: "execute", Err: runErr, IsTemporary: true}
	}
	return stdout, stderr, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func isAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "handshake failed") ||
		strings.Contains(msg, "knownhosts")
}
