package commands

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/topoplan/topoplan/pkg/catalog"
	"github.com/topoplan/topoplan/pkg/converge"
	"github.com/topoplan/topoplan/pkg/nodespec"
	"github.com/topoplan/topoplan/pkg/orchestrator"
	"github.com/topoplan/topoplan/pkg/phases"
	"github.com/topoplan/topoplan/pkg/plan"
)

// debounceWindow absorbs the editor write-then-rename burst into one replan.
const debounceWindow = 250 * time.Millisecond

func newWatchCommand() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Recompute the topology diff whenever the cluster file changes",
		Long: `Watch monitors the cluster topology file and reprints the diff every
time the file changes. Validation failures are reported and watching
continues, so the file can be fixed in place. Nothing is ever executed
against real hosts.`,
		Example: `  # Keep replanning cluster.yaml as it is edited
  topoplan watch -c cluster.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			builder := nodespec.NewBuilder(catalog.Default(), phases.Builtins(noopRunner{}))
			driver := orchestrator.NewDriver(builder, converge.NewDryRun())

			action := plan.ActionBringUp
			if down {
				action = plan.ActionTearDown
			}

			replan := func() {
				cluster, err := loadCluster()
				if err != nil {
					log.Error().Err(err).Msg("Cluster file not loadable")
					return
				}
				diff, err := driver.Plan(cluster, action)
				if err != nil {
					log.Error().Err(err).Msg("Topology invalid")
					return
				}
				if err := renderDiff(diff); err != nil {
					log.Error().Err(err).Msg("Failed to render diff")
				}
			}
			replan()

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()

			// Watch the directory: editors typically replace the file,
			// which would otherwise drop the watch.
			dir := filepath.Dir(clusterPath)
			if err := watcher.Add(dir); err != nil {
				return err
			}
			log.Info().Str("cluster", clusterPath).Msg("Watching for changes")

			target := filepath.Clean(clusterPath)
			var timer *time.Timer
			pending := make(chan struct{}, 1)

			for {
				select {
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if filepath.Clean(event.Name) != target {
						continue
					}
					if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
						continue
					}
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(debounceWindow, func() {
						select {
						case pending <- struct{}{}:
						default:
						}
					})
				case <-pending:
					replan()
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					log.Warn().Err(err).Msg("Watcher error")
				case <-cmd.Context().Done():
					return nil
				}
			}
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "compute the tear-down diff instead of bring-up")
	return cmd
}
