package converge

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/topoplan/topoplan/pkg/nodespec"
	"github.com/topoplan/topoplan/pkg/plan"
)

// DryRun is an engine that logs what would happen and applies nothing.
// The CLI uses it for --dry-run; tests use it as a harmless default.
type DryRun struct {
	logger zerolog.Logger
}

// NewDryRun creates a dry-run engine.
func NewDryRun() *DryRun {
	return &DryRun{logger: log.With().Str("component", "converge.dryrun").Logger()}
}

// Converge logs the diff's target counts and the phases that would run.
func (d *DryRun) Converge(ctx context.Context, diff *plan.Diff, phaseFilter []string, opts Options) error {
	for _, tag := range diff.Tags() {
		entry := diff.Entries[tag]
		d.logger.Info().
			Str("diff_id", diff.ID).
			Str("tag", tag).
			Int("target_count", entry.TargetCount).
			Ints("inbound_ports", entry.Spec.Template.InboundPorts).
			Strs("phases", selectPhases(entry.Spec, phaseFilter)).
			Msg("dry-run: would converge node-group")
	}
	return nil
}

// Lift logs the phases that would run against each spec.
func (d *DryRun) Lift(ctx context.Context, specs []nodespec.Resolved, sequence []string, opts Options) error {
	for _, spec := range specs {
		d.logger.Info().
			Str("tag", spec.Tag).
			Strs("phases", selectPhases(spec, sequence)).
			Msg("dry-run: would lift node-group")
	}
	return nil
}

// selectPhases returns the subset of the ordered sequence the spec's phase
// map carries, preserving sequence order.
func selectPhases(spec nodespec.Resolved, sequence []string) []string {
	out := make([]string, 0, len(sequence))
	for _, name := range sequence {
		if _, ok := spec.Phases[name]; ok {
			out = append(out, name)
		}
	}
	return out
}
