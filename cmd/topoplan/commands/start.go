package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newStartCommand() *cobra.Command {
	var flags convergeFlags

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start cluster services in dependency order",
		Long: `Start runs the service start phases against the running cluster:
coordinator first, then storage, job control and workers. Instance
counts are not changed; hosts must already be booted.`,
		Example: `  # Start all services
  topoplan start -c cluster.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(flags)
			if err != nil {
				return err
			}
			defer sess.cleanup()

			if err := sess.driver.Start(cmd.Context(), sess.cluster); err != nil {
				return err
			}
			log.Info().Str("cluster", clusterPath).Msg("Cluster services started")
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
