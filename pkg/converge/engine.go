package converge

import (
	"context"

	"github.com/topoplan/topoplan/pkg/nodespec"
	"github.com/topoplan/topoplan/pkg/plan"
)

// Options are passed through from the caller to the engine unchanged; the
// orchestration core does not interpret them.
type Options struct {
	// Parallelism bounds how many hosts one phase runs on concurrently.
	// Zero means the engine default.
	Parallelism int

	// Extra carries engine-specific settings the core is oblivious to.
	Extra map[string]string
}

// Engine reconciles actual cluster state toward a topology diff and runs
// lifecycle phases against node-groups. Implementations own all network
// I/O, parallelism and retries; one orchestration call invokes the engine
// at most once, with a complete diff, and propagates its failure unchanged.
type Engine interface {
	// Converge reconciles instance counts toward the diff's targets and,
	// when phaseFilter is non-empty, runs exactly those phases in that
	// order against every group whose spec carries them. A nil filter
	// runs no phases (teardown does not run configuration work).
	Converge(ctx context.Context, diff *plan.Diff, phaseFilter []string, opts Options) error

	// Lift runs the given phase sequence, in order, against every spec.
	// Counts are not touched.
	Lift(ctx context.Context, specs []nodespec.Resolved, sequence []string, opts Options) error
}
