package orchestrator

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/topoplan/topoplan/pkg/catalog"
	"github.com/topoplan/topoplan/pkg/converge"
	"github.com/topoplan/topoplan/pkg/nodespec"
	"github.com/topoplan/topoplan/pkg/phases"
	"github.com/topoplan/topoplan/pkg/plan"
	"github.com/topoplan/topoplan/pkg/topology"
)

// mockEngine records every engine invocation.
type mockEngine struct {
	convergeCalls int
	liftCalls     int
	lastDiff      *plan.Diff
	lastFilter    []string
	lastSpecs     []nodespec.Resolved
	lastSequence  []string
	err           error
}

func (m *mockEngine) Converge(ctx context.Context, diff *plan.Diff, phaseFilter []string, opts converge.Options) error {
	m.convergeCalls++
	m.lastDiff = diff
	m.lastFilter = phaseFilter
	return m.err
}

func (m *mockEngine) Lift(ctx context.Context, specs []nodespec.Resolved, sequence []string, opts converge.Options) error {
	m.liftCalls++
	m.lastSpecs = specs
	m.lastSequence = sequence
	return m.err
}

type nopRunner struct{}

func (nopRunner) Run(ctx context.Context, target phases.Target, command string) error { return nil }

func testCluster() *topology.Cluster {
	return topology.NewCluster(phases.IPModePrivate, map[string]topology.NodeGroup{
		"master": topology.NewNodeGroup([]catalog.Role{catalog.RoleCoordinator, catalog.RoleJobControl}),
		"slaves": topology.NewNodeGroup([]catalog.Role{catalog.RoleSlaveNode}, topology.WithCount(3)),
	})
}

func testDriver(engine converge.Engine) *Driver {
	builder := nodespec.NewBuilder(catalog.Default(), phases.Builtins(nopRunner{}))
	return NewDriver(builder, engine)
}

func TestBootConvergesWithBootSequence(t *testing.T) {
	engine := &mockEngine{}
	d := testDriver(engine)

	if err := d.Boot(context.Background(), testCluster()); err != nil {
		t.Fatalf("Boot returned %v", err)
	}
	if engine.convergeCalls != 1 {
		t.Fatalf("engine invoked %d times, want exactly once", engine.convergeCalls)
	}
	want := []string{phases.Configure, phases.PublishKey, phases.AuthorizeCoordinator}
	if !reflect.DeepEqual(engine.lastFilter, want) {
		t.Errorf("boot phase filter = %v, want %v", engine.lastFilter, want)
	}
	if engine.lastDiff.Action != plan.ActionBringUp {
		t.Errorf("boot diff action = %q, want bring-up", engine.lastDiff.Action)
	}
	if got := engine.lastDiff.Entries["slaves"].TargetCount; got != 3 {
		t.Errorf("slaves target count = %d, want 3", got)
	}
}

func TestKillConvergesAllZeroWithNoPhases(t *testing.T) {
	engine := &mockEngine{}
	d := testDriver(engine)

	if err := d.Kill(context.Background(), testCluster()); err != nil {
		t.Fatalf("Kill returned %v", err)
	}
	if engine.convergeCalls != 1 {
		t.Fatalf("engine invoked %d times, want exactly once", engine.convergeCalls)
	}
	if engine.lastFilter != nil {
		t.Errorf("kill passed phases %v, want none", engine.lastFilter)
	}
	for tag, entry := range engine.lastDiff.Entries {
		if entry.TargetCount != 0 {
			t.Errorf("kill target for %s = %d, want 0", tag, entry.TargetCount)
		}
	}
	if engine.lastDiff.Action != plan.ActionTearDown {
		t.Errorf("kill diff action = %q, want tear-down", engine.lastDiff.Action)
	}
}

func TestLiftForwardsCallerSequence(t *testing.T) {
	engine := &mockEngine{}
	d := testDriver(engine)

	sequence := []string{phases.StartStorage, phases.Configure}
	if err := d.Lift(context.Background(), testCluster(), sequence); err != nil {
		t.Fatalf("Lift returned %v", err)
	}
	if engine.liftCalls != 1 {
		t.Fatalf("engine lift invoked %d times, want exactly once", engine.liftCalls)
	}
	if !reflect.DeepEqual(engine.lastSequence, sequence) {
		t.Errorf("lift sequence = %v, want %v", engine.lastSequence, sequence)
	}
	if len(engine.lastSpecs) != 2 {
		t.Errorf("lift got %d specs, want 2", len(engine.lastSpecs))
	}
}

func TestStartUsesStartSequence(t *testing.T) {
	engine := &mockEngine{}
	d := testDriver(engine)

	if err := d.Start(context.Background(), testCluster()); err != nil {
		t.Fatalf("Start returned %v", err)
	}
	want := []string{
		phases.StartCoordinator,
		phases.StartStorage,
		phases.StartJobControl,
		phases.StartWorker,
	}
	if !reflect.DeepEqual(engine.lastSequence, want) {
		t.Errorf("start sequence = %v, want %v", engine.lastSequence, want)
	}
}

func TestEngineFailurePropagatesUnchanged(t *testing.T) {
	boom := errors.New("ssh handshake refused")
	engine := &mockEngine{err: boom}
	d := testDriver(engine)

	if err := d.Boot(context.Background(), testCluster()); !errors.Is(err, boom) {
		t.Errorf("Boot error = %v, want the engine failure", err)
	}
	if err := d.Start(context.Background(), testCluster()); !errors.Is(err, boom) {
		t.Errorf("Start error = %v, want the engine failure", err)
	}
}

func TestInvalidClusterNeverReachesEngine(t *testing.T) {
	engine := &mockEngine{}
	d := testDriver(engine)

	bad := topology.NewCluster(phases.IPModePublic, map[string]topology.NodeGroup{
		"a": topology.NewNodeGroup([]catalog.Role{catalog.RoleCoordinator}),
		"b": topology.NewNodeGroup([]catalog.Role{catalog.RoleCoordinator}),
	})
	err := d.Boot(context.Background(), bad)
	if !topology.IsCode(err, topology.CodeAmbiguousSingleton) {
		t.Fatalf("Boot error = %v, want ambiguous singleton", err)
	}
	if engine.convergeCalls != 0 || engine.liftCalls != 0 {
		t.Errorf("engine invoked on invalid topology")
	}
}

func TestPlanComputesWithoutEngine(t *testing.T) {
	engine := &mockEngine{}
	d := testDriver(engine)

	diff, err := d.Plan(testCluster(), plan.ActionBringUp)
	if err != nil {
		t.Fatalf("Plan returned %v", err)
	}
	if diff.Summary.TargetInstances != 4 {
		t.Errorf("target instances = %d, want 4", diff.Summary.TargetInstances)
	}
	if engine.convergeCalls != 0 || engine.liftCalls != 0 {
		t.Errorf("Plan invoked the engine")
	}
}
