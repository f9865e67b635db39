package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newBootCommand() *cobra.Command {
	var flags convergeFlags

	cmd := &cobra.Command{
		Use:   "boot",
		Short: "Bring the declared topology up",
		Long: `Boot validates the topology, computes a bring-up diff and converges it:
instance counts reach their declared targets, then the configure,
publish-key and authorize-coordinator phases run in order across the
cluster. Key publication completes everywhere before any host authorizes
the coordinator.`,
		Example: `  # Bring the cluster up
  topoplan boot -c cluster.yaml

  # Show what boot would do
  topoplan boot --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(flags)
			if err != nil {
				return err
			}
			defer sess.cleanup()

			if err := sess.driver.Boot(cmd.Context(), sess.cluster); err != nil {
				return err
			}
			log.Info().Str("cluster", clusterPath).Msg("Cluster booted")
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
