package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/topoplan/topoplan/pkg/converge"
	"github.com/topoplan/topoplan/pkg/nodespec"
	"github.com/topoplan/topoplan/pkg/phases"
	"github.com/topoplan/topoplan/pkg/plan"
	"github.com/topoplan/topoplan/pkg/telemetry"
	"github.com/topoplan/topoplan/pkg/topology"
)

// BootSequence is the ordered set of phases a boot runs after the engine has
// brought the instance counts up. Key publication must complete on every host
// before any host authorizes the coordinator's key, so the order is strict.
var BootSequence = []string{
	phases.Configure,
	phases.PublishKey,
	phases.AuthorizeCoordinator,
}

// StartSequence is the ordered set of service-start phases used by Start.
// The coordinator comes up first so storage and workers find it registered.
var StartSequence = []string{
	phases.StartCoordinator,
	phases.StartStorage,
	phases.StartJobControl,
	phases.StartWorker,
}

// Driver turns cluster declarations into engine calls. It owns validation
// and diff computation; the engine owns execution. Each public operation
// invokes the engine at most once and propagates engine failures unchanged.
type Driver struct {
	builder *nodespec.Builder
	engine  converge.Engine
	opts    converge.Options
	tel     *telemetry.Telemetry
	logger  zerolog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithOptions sets the engine options forwarded on every call.
func WithOptions(opts converge.Options) Option {
	return func(d *Driver) { d.opts = opts }
}

// WithTelemetry attaches metrics and event publishing to the driver.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(d *Driver) { d.tel = tel }
}

// NewDriver creates a Driver over a spec builder and a convergence engine.
func NewDriver(builder *nodespec.Builder, engine converge.Engine, options ...Option) *Driver {
	d := &Driver{
		builder: builder,
		engine:  engine,
		logger:  log.With().Str("component", "orchestrator").Logger(),
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// KnownPhase reports whether the catalog behind the driver defines the
// named lifecycle phase.
func (d *Driver) KnownPhase(name string) bool {
	return d.builder.Catalog().KnownPhase(name)
}

// Plan validates the cluster and computes the diff for the given action
// without invoking the engine.
func (d *Driver) Plan(cluster *topology.Cluster, action plan.Action) (*plan.Diff, error) {
	if err := cluster.Validate(d.builder.Catalog()); err != nil {
		d.record("plan", time.Time{}, err)
		return nil, err
	}
	diff, err := plan.Compute(d.builder, cluster, action)
	d.record("plan", time.Time{}, err)
	if err != nil {
		return nil, err
	}
	d.gauge(diff)
	d.publish(telemetry.EventPlanComputed, diff.ID, map[string]any{
		"action":           string(diff.Action),
		"groups":           diff.Summary.Groups,
		"target_instances": diff.Summary.TargetInstances,
	})
	return diff, nil
}

// Boot brings the declared topology up: it validates the cluster, computes
// a bring-up diff, and converges with the boot phase sequence.
func (d *Driver) Boot(ctx context.Context, cluster *topology.Cluster) error {
	return d.run(ctx, "boot", cluster, plan.ActionBringUp, BootSequence)
}

// Kill tears the topology down: every group's target count goes to zero and
// no configuration phases run.
func (d *Driver) Kill(ctx context.Context, cluster *topology.Cluster) error {
	return d.run(ctx, "kill", cluster, plan.ActionTearDown, nil)
}

// Lift runs the caller's phase sequence against every node-group of the
// cluster without changing instance counts.
func (d *Driver) Lift(ctx context.Context, cluster *topology.Cluster, sequence []string) error {
	started := time.Now()
	runID := uuid.New().String()

	if err := cluster.Validate(d.builder.Catalog()); err != nil {
		d.record("lift", started, err)
		return err
	}
	specs, err := plan.Specs(d.builder, cluster)
	if err != nil {
		d.record("lift", started, err)
		return err
	}

	d.logger.Info().
		Str("run_id", runID).
		Strs("sequence", sequence).
		Int("groups", len(specs)).
		Msg("lifting cluster")

	err = d.engine.Lift(ctx, specs, sequence, d.opts)
	d.record("lift", started, err)
	d.finish(runID, "lift", err)
	return err
}

// Start launches the cluster services in dependency order. It is a lift
// with the fixed start sequence.
func (d *Driver) Start(ctx context.Context, cluster *topology.Cluster) error {
	return d.Lift(ctx, cluster, StartSequence)
}

func (d *Driver) run(ctx context.Context, op string, cluster *topology.Cluster, action plan.Action, sequence []string) error {
	started := time.Now()
	runID := uuid.New().String()

	if err := cluster.Validate(d.builder.Catalog()); err != nil {
		d.record(op, started, err)
		return err
	}
	diff, err := plan.Compute(d.builder, cluster, action)
	if err != nil {
		d.record(op, started, err)
		return err
	}
	d.gauge(diff)

	d.logger.Info().
		Str("run_id", runID).
		Str("diff_id", diff.ID).
		Str("op", op).
		Int("groups", diff.Summary.Groups).
		Int("target_instances", diff.Summary.TargetInstances).
		Msg("converging cluster")
	d.publish(telemetry.EventRunStarted, runID, map[string]any{
		"op": op, "diff_id": diff.ID,
	})

	err = d.engine.Converge(ctx, diff, sequence, d.opts)
	d.record(op, started, err)
	d.finish(runID, op, err)
	return err
}

// record updates metrics for one finished operation. A zero start time
// suppresses the duration observation (plan is instantaneous and local).
func (d *Driver) record(op string, started time.Time, err error) {
	if d.tel == nil || d.tel.Metrics == nil {
		return
	}
	d.tel.Metrics.RecordOrchestration(op, err)
	if !started.IsZero() {
		d.tel.Metrics.ObserveRunDuration(op, time.Since(started))
	}
	if err != nil {
		d.tel.Metrics.RecordTopologyError(err)
	}
}

func (d *Driver) gauge(diff *plan.Diff) {
	if d.tel == nil || d.tel.Metrics == nil {
		return
	}
	d.tel.Metrics.SetTopologyTargets(diff.Summary.Groups, diff.Summary.TargetInstances)
}

func (d *Driver) publish(eventType, id string, attrs map[string]any) {
	if d.tel == nil || d.tel.Events == nil {
		return
	}
	d.tel.Events.Publish(telemetry.Event{
		Type:       eventType,
		RunID:      id,
		Attributes: attrs,
	})
}

func (d *Driver) finish(runID, op string, err error) {
	if err != nil {
		d.logger.Error().Err(err).Str("run_id", runID).Str("op", op).Msg("orchestration failed")
		d.publish(telemetry.EventRunFailed, runID, map[string]any{"op": op, "error": err.Error()})
		return
	}
	d.logger.Info().Str("run_id", runID).Str("op", op).Msg("orchestration complete")
	d.publish(telemetry.EventRunCompleted, runID, map[string]any{"op": op})
}
