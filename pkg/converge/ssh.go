package converge

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/topoplan/topoplan/pkg/nodespec"
	"github.com/topoplan/topoplan/pkg/phases"
	"github.com/topoplan/topoplan/pkg/plan"
	"github.com/topoplan/topoplan/pkg/telemetry"
	"github.com/topoplan/topoplan/pkg/topology"
)

const defaultParallelism = 4

// SSH is the reference convergence engine: it executes selected phases
// against the declared inventory hosts of each node-group, phase by phase
// in sequence order, with bounded per-phase parallelism across hosts.
//
// Instance provisioning against a cloud API is out of scope; the engine
// logs the target counts it was handed and reconciles configuration only.
type SSH struct {
	inventory map[string][]topology.Host
	tel       *telemetry.Telemetry
	logger    zerolog.Logger
}

// SSHOption configures the SSH engine.
type SSHOption func(*SSH)

// WithTelemetry attaches phase metrics and lifecycle events to the engine.
func WithTelemetry(tel *telemetry.Telemetry) SSHOption {
	return func(e *SSH) { e.tel = tel }
}

// NewSSH creates an SSH engine over a tag -> hosts inventory.
func NewSSH(inventory map[string][]topology.Host, opts ...SSHOption) *SSH {
	e := &SSH{
		inventory: inventory,
		logger:    log.With().Str("component", "converge.ssh").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Converge logs the count targets and runs the filtered phases, in filter
// order, against every group whose spec carries them. A nil filter runs no
// phases.
func (e *SSH) Converge(ctx context.Context, diff *plan.Diff, phaseFilter []string, opts Options) error {
	for _, tag := range diff.Tags() {
		entry := diff.Entries[tag]
		e.logger.Info().
			Str("diff_id", diff.ID).
			Str("tag", tag).
			Int("target_count", entry.TargetCount).
			Int("known_hosts", len(e.inventory[tag])).
			Msg("converge target")
	}
	if len(phaseFilter) == 0 {
		return nil
	}

	specs := make([]nodespec.Resolved, 0, len(diff.Entries))
	for _, tag := range diff.Tags() {
		specs = append(specs, diff.Entries[tag].Spec)
	}
	return e.runSequence(ctx, specs, phaseFilter, opts)
}

// Lift runs the sequence against every spec without touching counts.
func (e *SSH) Lift(ctx context.Context, specs []nodespec.Resolved, sequence []string, opts Options) error {
	return e.runSequence(ctx, specs, sequence, opts)
}

// runSequence applies each phase of the sequence, in order, across all
// groups before moving to the next phase. Inter-phase ordering is the
// orchestrator's contract (trust bootstrap depends on it); intra-phase
// host fan-out is bounded by opts.Parallelism.
func (e *SSH) runSequence(ctx context.Context, specs []nodespec.Resolved, sequence []string, opts Options) error {
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}

	for _, name := range sequence {
		if err := e.runPhase(ctx, specs, name, parallelism); err != nil {
			return err
		}
	}
	return nil
}

func (e *SSH) runPhase(ctx context.Context, specs []nodespec.Resolved, name string, parallelism int) error {
	type work struct {
		phase  phases.Phase
		target phases.Target
	}

	var pending []work
	for _, spec := range specs {
		phase, ok := spec.Phases[name]
		if !ok {
			continue
		}
		for _, host := range e.inventory[spec.Tag] {
			pending = append(pending, work{
				phase:  phase,
				target: phases.Target{Tag: spec.Tag, Host: host.Address},
			})
		}
	}
	if len(pending) == 0 {
		e.logger.Debug().Str("phase", name).Msg("no targets carry phase")
		return nil
	}

	e.logger.Info().Str("phase", name).Int("targets", len(pending)).Msg("running phase")
	e.phaseStarted(name, len(pending))

	sem := make(chan struct{}, parallelism)
	errCh := make(chan error, len(pending))
	var wg sync.WaitGroup

	for _, w := range pending {
		wg.Add(1)
		go func(w work) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
			defer func() { <-sem }()

			if err := w.phase.Apply(ctx, w.target); err != nil {
				errCh <- err
			}
		}(w)
	}
	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		e.phaseFinished(name, err)
		return fmt.Errorf("phase %s failed: %w", name, err)
	}
	e.phaseFinished(name, nil)
	return nil
}

// phaseStarted announces a phase run over the event stream.
func (e *SSH) phaseStarted(name string, targets int) {
	if e.tel == nil || e.tel.Events == nil {
		return
	}
	_ = e.tel.Events.Publish(telemetry.Event{
		Type:       telemetry.EventPhaseStarted,
		Source:     "converge.ssh",
		Phase:      name,
		Attributes: map[string]any{"targets": targets},
	})
}

// phaseFinished records one finished phase run in metrics and events.
func (e *SSH) phaseFinished(name string, err error) {
	if e.tel == nil {
		return
	}
	if e.tel.Metrics != nil {
		e.tel.Metrics.RecordPhase(name, err)
	}
	if e.tel.Events == nil {
		return
	}
	event := telemetry.Event{
		Type:   telemetry.EventPhaseCompleted,
		Source: "converge.ssh",
		Phase:  name,
	}
	if err != nil {
		event.Type = telemetry.EventPhaseFailed
		event.Level = telemetry.EventLevelError
		event.Message = err.Error()
	}
	_ = e.tel.Events.Publish(event)
}
