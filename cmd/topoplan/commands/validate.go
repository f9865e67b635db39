package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/topoplan/topoplan/pkg/catalog"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the cluster topology file",
		Long: `Validate parses the cluster topology file and checks it against the
role catalog: every node-group must resolve to at least one known role,
and no singleton role may be claimed by more than one node-group.`,
		Example: `  # Validate the default cluster.yaml
  topoplan validate

  # Validate a specific file
  topoplan validate -c staging.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cluster, err := loadCluster()
			if err != nil {
				return err
			}
			if err := cluster.Validate(catalog.Default()); err != nil {
				return fmt.Errorf("invalid topology in %s: %w", clusterPath, err)
			}

			log.Info().
				Str("cluster", clusterPath).
				Int("node_groups", len(cluster.Groups)).
				Msg("Topology is valid")
			return nil
		},
	}
	return cmd
}
