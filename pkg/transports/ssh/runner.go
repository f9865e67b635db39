package ssh

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/topoplan/topoplan/pkg/phases"
	"github.com/topoplan/topoplan/pkg/topology"
)

var _ phases.Uploader = (*Runner)(nil)

// Runner adapts the SSH transport to the phases.Runner contract. It maps
// inventory hosts to clients, dialing lazily and reusing connections for
// the lifetime of one orchestration call.
type Runner struct {
	defaults Config

	mu      sync.Mutex
	clients map[string]*Client
}

// NewRunner creates a runner. The defaults fill fields the inventory host
// leaves unset (key path, known-hosts policy, timeouts).
func NewRunner(defaults Config) *Runner {
	return &Runner{
		defaults: defaults,
		clients:  make(map[string]*Client),
	}
}

// Register adds an inventory host so phase targets can resolve to it.
func (r *Runner) Register(host topology.Host) error {
	cfg := r.defaults
	cfg.Host = host.Address
	if host.Port != 0 {
		cfg.Port = host.Port
	}
	if host.User != "" {
		cfg.User = host.User
	}
	if host.KeyPath != "" {
		cfg.PrivateKeyPath = host.KeyPath
		cfg.AuthMethod = AuthMethodKey
	}

	client, err := NewClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to register host %s: %w", host.Address, err)
	}

	r.mu.Lock()
	r.clients[host.Address] = client
	r.mu.Unlock()
	return nil
}

// Run executes a phase command on the target machine.
func (r *Runner) Run(ctx context.Context, target phases.Target, command string) error {
	r.mu.Lock()
	client, ok := r.clients[target.Host]
	r.mu.Unlock()
	if !ok {
		return &TransportError{Op: "execute", Err: fmt.Errorf("no registered host %q", target.Host)}
	}

	_, stderr, err := client.Execute(ctx, command)
	if err != nil {
		return fmt.Errorf("on %s (%s): %w", target.Host, stderr, err)
	}
	return nil
}

// Upload pushes a local file to the target machine over SFTP.
func (r *Runner) Upload(ctx context.Context, target phases.Target, localPath, remotePath string, mode os.FileMode) error {
	r.mu.Lock()
	client, ok := r.clients[target.Host]
	r.mu.Unlock()
	if !ok {
		return &TransportError{Op: "upload", Err: fmt.Errorf("no registered host %q", target.Host)}
	}
	return client.Upload(ctx, localPath, remotePath, mode)
}

// Close releases every client connection.
func (r *Runner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, client := range r.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
