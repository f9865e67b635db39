package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newLiftCommand() *cobra.Command {
	var flags convergeFlags

	cmd := &cobra.Command{
		Use:   "lift PHASE [PHASE...]",
		Short: "Run an arbitrary phase sequence against the cluster",
		Long: `Lift executes the given phases, in the order supplied, against every
node-group whose roles carry them. Instance counts are not changed.
Phases a node-group does not carry are skipped for that group.`,
		Example: `  # Re-run configuration everywhere
  topoplan lift configure

  # Restart the storage and worker services
  topoplan lift start-storage-role start-worker-role`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(flags)
			if err != nil {
				return err
			}
			defer sess.cleanup()

			for _, name := range args {
				if !sess.driver.KnownPhase(name) {
					return fmt.Errorf("unknown phase %q", name)
				}
			}

			if err := sess.driver.Lift(cmd.Context(), sess.cluster, args); err != nil {
				return err
			}
			log.Info().Strs("phases", args).Msg("Lift complete")
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
