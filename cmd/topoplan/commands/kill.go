package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newKillCommand() *cobra.Command {
	var flags convergeFlags

	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Tear the topology down",
		Long: `Kill computes a tear-down diff targeting zero instances for every
node-group and converges it. No configuration phases run during
tear-down.`,
		Example: `  # Tear the cluster down
  topoplan kill -c cluster.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(flags)
			if err != nil {
				return err
			}
			defer sess.cleanup()

			if err := sess.driver.Kill(cmd.Context(), sess.cluster); err != nil {
				return err
			}
			log.Info().Str("cluster", clusterPath).Msg("Cluster torn down")
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
