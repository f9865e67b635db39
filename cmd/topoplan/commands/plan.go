package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/topoplan/topoplan/pkg/catalog"
	"github.com/topoplan/topoplan/pkg/converge"
	"github.com/topoplan/topoplan/pkg/nodespec"
	"github.com/topoplan/topoplan/pkg/orchestrator"
	"github.com/topoplan/topoplan/pkg/phases"
	"github.com/topoplan/topoplan/pkg/plan"
)

func newPlanCommand() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute the topology diff without converging",
		Long: `Plan validates the cluster topology, resolves every node-group to its
machine specification (roles, inbound ports, lifecycle phases) and prints
the resulting diff. Nothing is executed against real hosts.`,
		Example: `  # Show the bring-up diff
  topoplan plan

  # Show the tear-down diff as JSON
  topoplan plan --down --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cluster, err := loadCluster()
			if err != nil {
				return err
			}

			builder := nodespec.NewBuilder(catalog.Default(), phases.Builtins(noopRunner{}))
			driver := orchestrator.NewDriver(builder, converge.NewDryRun())

			action := plan.ActionBringUp
			if down {
				action = plan.ActionTearDown
			}
			diff, err := driver.Plan(cluster, action)
			if err != nil {
				return err
			}
			return renderDiff(diff)
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "compute the tear-down diff instead of bring-up")
	return cmd
}

type entryView struct {
	Tag         string   `json:"tag"`
	Roles       []string `json:"roles"`
	Ports       []int    `json:"inbound_ports"`
	Phases      []string `json:"phases"`
	TargetCount int      `json:"target_count"`
}

type diffView struct {
	ID              string      `json:"id"`
	Action          string      `json:"action"`
	CreatedAt       time.Time   `json:"created_at"`
	Groups          int         `json:"groups"`
	TargetInstances int         `json:"target_instances"`
	MasterGroups    int         `json:"master_groups"`
	Entries         []entryView `json:"entries"`
}

func renderDiff(diff *plan.Diff) error {
	view := diffView{
		ID:              diff.ID,
		Action:          string(diff.Action),
		CreatedAt:       diff.CreatedAt,
		Groups:          diff.Summary.Groups,
		TargetInstances: diff.Summary.TargetInstances,
		MasterGroups:    diff.Summary.MasterGroups,
	}
	for _, tag := range diff.Tags() {
		entry := diff.Entries[tag]
		roles := make([]string, len(entry.Spec.Roles))
		for i, role := range entry.Spec.Roles {
			roles[i] = string(role)
		}
		view.Entries = append(view.Entries, entryView{
			Tag:         tag,
			Roles:       roles,
			Ports:       entry.Spec.Template.InboundPorts,
			Phases:      entry.Spec.PhaseNames(),
			TargetCount: entry.TargetCount,
		})
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	fmt.Printf("Diff %s (%s): %d group(s), %d target instance(s), %d master group(s)\n",
		view.ID, view.Action, view.Groups, view.TargetInstances, view.MasterGroups)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TAG\tCOUNT\tROLES\tPORTS\tPHASES")
	for _, entry := range view.Entries {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
			entry.Tag,
			entry.TargetCount,
			strings.Join(entry.Roles, ","),
			joinInts(entry.Ports),
			strings.Join(entry.Phases, ","),
		)
	}
	return w.Flush()
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ",")
}
