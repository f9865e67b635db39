package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/topoplan/topoplan/pkg/catalog"
	"github.com/topoplan/topoplan/pkg/converge"
	"github.com/topoplan/topoplan/pkg/nodespec"
	"github.com/topoplan/topoplan/pkg/orchestrator"
	"github.com/topoplan/topoplan/pkg/phases"
	"github.com/topoplan/topoplan/pkg/telemetry"
	"github.com/topoplan/topoplan/pkg/topology"
	sshtransport "github.com/topoplan/topoplan/pkg/transports/ssh"
)

// convergeFlags are shared by every command that reaches for real hosts.
type convergeFlags struct {
	dryRun      bool
	parallelism int
	sshUser     string
	sshKeyPath  string
	knownHosts  string
	metricsAddr string
}

func (f *convergeFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "log what would happen without touching hosts")
	cmd.Flags().IntVar(&f.parallelism, "parallelism", 0, "max hosts converged concurrently per phase (0 = engine default)")
	cmd.Flags().StringVar(&f.sshUser, "ssh-user", "", "default SSH user for inventory hosts")
	cmd.Flags().StringVar(&f.sshKeyPath, "ssh-key", "", "default SSH private key for inventory hosts")
	cmd.Flags().StringVar(&f.knownHosts, "known-hosts", "", "known_hosts file for host key verification")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address for the run")
}

// noopRunner backs phase construction when no host will ever be dialed.
type noopRunner struct{}

func (noopRunner) Run(ctx context.Context, target phases.Target, command string) error {
	return nil
}

func (noopRunner) Upload(ctx context.Context, target phases.Target, localPath, remotePath string, mode os.FileMode) error {
	return nil
}

func loadCluster() (*topology.Cluster, error) {
	cluster, err := topology.LoadFile(clusterPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load cluster file %s: %w", clusterPath, err)
	}
	return cluster, nil
}

// session bundles a driver with everything that must be torn down after
// the command finishes.
type session struct {
	cluster *topology.Cluster
	driver  *orchestrator.Driver
	cleanup func()
}

// newSession loads the cluster and assembles a driver. With --dry-run the
// engine only logs; otherwise inventory hosts are registered against an
// SSH runner and converged for real.
func newSession(flags convergeFlags) (*session, error) {
	cluster, err := loadCluster()
	if err != nil {
		return nil, err
	}

	var (
		tel     *telemetry.Telemetry
		cleanup = func() {}
	)
	if flags.metricsAddr != "" {
		cfg := telemetry.DefaultConfig()
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddress = flags.metricsAddr
		tel, err = telemetry.New(cfg)
		if err != nil {
			return nil, err
		}
		if err := tel.StartMetricsServer(); err != nil {
			return nil, err
		}
		cleanup = func() { _ = tel.Shutdown(context.Background()) }
	}

	var (
		runner phases.Runner
		engine converge.Engine
	)
	if flags.dryRun {
		runner = noopRunner{}
		engine = converge.NewDryRun()
	} else {
		sshRunner := sshtransport.NewRunner(sshtransport.Config{
			User:           flags.sshUser,
			PrivateKeyPath: flags.sshKeyPath,
			KnownHostsPath: flags.knownHosts,
		})
		for _, hosts := range cluster.Inventory {
			for _, host := range hosts {
				if err := sshRunner.Register(host); err != nil {
					cleanup()
					return nil, err
				}
			}
		}
		runner = sshRunner
		var engineOpts []converge.SSHOption
		if tel != nil {
			engineOpts = append(engineOpts, converge.WithTelemetry(tel))
		}
		engine = converge.NewSSH(cluster.Inventory, engineOpts...)
		inner := cleanup
		cleanup = func() {
			_ = sshRunner.Close()
			inner()
		}
	}

	builder := nodespec.NewBuilder(catalog.Default(), phases.Builtins(runner))

	opts := []orchestrator.Option{
		orchestrator.WithOptions(converge.Options{Parallelism: flags.parallelism}),
	}
	if tel != nil {
		opts = append(opts, orchestrator.WithTelemetry(tel))
	}

	return &session{
		cluster: cluster,
		driver:  orchestrator.NewDriver(builder, engine, opts...),
		cleanup: cleanup,
	}, nil
}
