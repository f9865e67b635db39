package converge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/topoplan/topoplan/pkg/catalog"
	"github.com/topoplan/topoplan/pkg/nodespec"
	"github.com/topoplan/topoplan/pkg/phases"
	"github.com/topoplan/topoplan/pkg/plan"
	"github.com/topoplan/topoplan/pkg/telemetry"
	"github.com/topoplan/topoplan/pkg/topology"
)

// recordingRunner records every (phase, host) execution in order.
type recordingRunner struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error // command substring -> error
}

func (r *recordingRunner) Run(ctx context.Context, target phases.Target, command string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, command+"@"+target.Host)
	for substr, err := range r.fail {
		if substr != "" && strings.Contains(command, substr) {
			return err
		}
	}
	return nil
}

func testFixture(runner phases.Runner) (*nodespec.Builder, *topology.Cluster) {
	builder := nodespec.NewBuilder(catalog.Default(), phases.Builtins(runner))
	cluster := topology.NewCluster(phases.IPModePrivate,
		map[string]topology.NodeGroup{
			"master": topology.NewNodeGroup([]catalog.Role{catalog.RoleCoordinator, catalog.RoleJobControl}),
			"slaves": topology.NewNodeGroup([]catalog.Role{catalog.RoleSlaveNode}, topology.WithCount(2)),
		},
		topology.WithInventory(map[string][]topology.Host{
			"master": {{Address: "10.0.0.10"}},
			"slaves": {{Address: "10.0.0.20"}, {Address: "10.0.0.21"}},
		}),
	)
	return builder, cluster
}

func TestConvergeRunsFilterInOrder(t *testing.T) {
	runner := &recordingRunner{}
	builder, cluster := testFixture(runner)
	diff, err := plan.Compute(builder, cluster, plan.ActionBringUp)
	if err != nil {
		t.Fatalf("Compute returned %v", err)
	}

	engine := NewSSH(cluster.Inventory)
	filter := []string{phases.Configure, phases.PublishKey, phases.AuthorizeCoordinator}
	if err := engine.Converge(context.Background(), diff, filter, Options{Parallelism: 1}); err != nil {
		t.Fatalf("Converge returned %v", err)
	}

	// Phase boundaries must be strict: every configure call precedes
	// every publish-key call, which precedes every authorize call.
	lastIdx := func(substr string) int {
		last := -1
		for i, call := range runner.calls {
			if strings.Contains(call, substr) {
				last = i
			}
		}
		return last
	}
	firstIdx := func(substr string) int {
		for i, call := range runner.calls {
			if strings.Contains(call, substr) {
				return i
			}
		}
		return len(runner.calls)
	}

	if lastIdx("configure") > firstIdx("publish-key") {
		t.Errorf("configure ran after publish-key: %v", runner.calls)
	}
	if lastIdx("publish-key") > firstIdx("authorize") {
		t.Errorf("publish-key ran after authorize: %v", runner.calls)
	}

	// authorize-coordinator applies only to the slave roles; the master
	// group's phase map does not carry it.
	for _, call := range runner.calls {
		if strings.Contains(call, "authorize") && strings.Contains(call, "10.0.0.10") {
			t.Errorf("authorize ran on the master host: %v", runner.calls)
		}
	}
}

func TestConvergeNilFilterRunsNoPhases(t *testing.T) {
	runner := &recordingRunner{}
	builder, cluster := testFixture(runner)
	diff, err := plan.Compute(builder, cluster, plan.ActionTearDown)
	if err != nil {
		t.Fatalf("Compute returned %v", err)
	}

	engine := NewSSH(cluster.Inventory)
	if err := engine.Converge(context.Background(), diff, nil, Options{}); err != nil {
		t.Fatalf("Converge returned %v", err)
	}
	if len(runner.calls) != 0 {
		t.Errorf("teardown ran phases: %v", runner.calls)
	}
}

func TestConvergeStopsSequenceOnPhaseFailure(t *testing.T) {
	boom := errors.New("disk on fire")
	runner := &recordingRunner{fail: map[string]error{"publish-key": boom}}
	builder, cluster := testFixture(runner)
	diff, err := plan.Compute(builder, cluster, plan.ActionBringUp)
	if err != nil {
		t.Fatalf("Compute returned %v", err)
	}

	engine := NewSSH(cluster.Inventory)
	filter := []string{phases.Configure, phases.PublishKey, phases.AuthorizeCoordinator}
	err = engine.Converge(context.Background(), diff, filter, Options{Parallelism: 1})
	if err == nil {
		t.Fatal("Converge swallowed a phase failure")
	}
	if !errors.Is(err, boom) {
		t.Errorf("engine failure not propagated unchanged: %v", err)
	}
	for _, call := range runner.calls {
		if strings.Contains(call, "authorize") {
			t.Errorf("authorize ran after publish-key failed: %v", runner.calls)
		}
	}
}

func TestLiftRunsCallerSequenceVerbatim(t *testing.T) {
	runner := &recordingRunner{}
	builder, cluster := testFixture(runner)
	specs, err := plan.Specs(builder, cluster)
	if err != nil {
		t.Fatalf("Specs returned %v", err)
	}

	engine := NewSSH(cluster.Inventory)
	sequence := []string{phases.StartStorage, phases.StartWorker}
	if err := engine.Lift(context.Background(), specs, sequence, Options{Parallelism: 2}); err != nil {
		t.Fatalf("Lift returned %v", err)
	}

	var sawStorage, sawWorker bool
	for _, call := range runner.calls {
		if strings.Contains(call, "start storage") {
			sawStorage = true
		}
		if strings.Contains(call, "start worker") {
			if !sawStorage {
				t.Errorf("worker started before storage: %v", runner.calls)
			}
			sawWorker = true
		}
	}
	if !sawStorage || !sawWorker {
		t.Errorf("lift missed phases: %v", runner.calls)
	}
}

func telemetryFixture(t *testing.T) *telemetry.Telemetry {
	t.Helper()
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Output = "stderr"
	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddress = ":0"
	tel, err := telemetry.New(cfg)
	if err != nil {
		t.Fatalf("telemetry.New returned %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })
	return tel
}

func phaseExposition(t *testing.T, tel *telemetry.Telemetry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	tel.Metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func TestConvergeEmitsPhaseTelemetry(t *testing.T) {
	runner := &recordingRunner{}
	builder, cluster := testFixture(runner)
	diff, err := plan.Compute(builder, cluster, plan.ActionBringUp)
	if err != nil {
		t.Fatalf("Compute returned %v", err)
	}

	tel := telemetryFixture(t)
	var events []string
	tel.Events.Subscribe(func(e telemetry.Event) {
		events = append(events, e.Type+":"+e.Phase)
	}, telemetry.FilterByType(
		telemetry.EventPhaseStarted, telemetry.EventPhaseCompleted, telemetry.EventPhaseFailed))

	engine := NewSSH(cluster.Inventory, WithTelemetry(tel))
	filter := []string{phases.Configure, phases.PublishKey}
	if err := engine.Converge(context.Background(), diff, filter, Options{Parallelism: 1}); err != nil {
		t.Fatalf("Converge returned %v", err)
	}

	want := []string{
		"phase.started:configure",
		"phase.completed:configure",
		"phase.started:publish-key",
		"phase.completed:publish-key",
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}

	body := phaseExposition(t, tel)
	for _, line := range []string{
		`topoplan_phase_runs_total{phase="configure",status="ok"} 1`,
		`topoplan_phase_runs_total{phase="publish-key",status="ok"} 1`,
	} {
		if !strings.Contains(body, line) {
			t.Errorf("exposition missing %q", line)
		}
	}
}

func TestConvergeRecordsPhaseFailureTelemetry(t *testing.T) {
	boom := errors.New("disk on fire")
	runner := &recordingRunner{fail: map[string]error{"publish-key": boom}}
	builder, cluster := testFixture(runner)
	diff, err := plan.Compute(builder, cluster, plan.ActionBringUp)
	if err != nil {
		t.Fatalf("Compute returned %v", err)
	}

	tel := telemetryFixture(t)
	var failed []string
	tel.Events.Subscribe(func(e telemetry.Event) {
		failed = append(failed, e.Phase)
	}, telemetry.FilterByType(telemetry.EventPhaseFailed))

	engine := NewSSH(cluster.Inventory, WithTelemetry(tel))
	filter := []string{phases.Configure, phases.PublishKey, phases.AuthorizeCoordinator}
	if err := engine.Converge(context.Background(), diff, filter, Options{Parallelism: 1}); err == nil {
		t.Fatal("Converge swallowed a phase failure")
	}

	if !reflect.DeepEqual(failed, []string{phases.PublishKey}) {
		t.Errorf("failed phases = %v, want [publish-key]", failed)
	}
	body := phaseExposition(t, tel)
	for _, line := range []string{
		`topoplan_phase_runs_total{phase="configure",status="ok"} 1`,
		`topoplan_phase_runs_total{phase="publish-key",status="error"} 1`,
	} {
		if !strings.Contains(body, line) {
			t.Errorf("exposition missing %q", line)
		}
	}
}

func TestDryRunAppliesNothing(t *testing.T) {
	runner := &recordingRunner{}
	builder, cluster := testFixture(runner)
	diff, err := plan.Compute(builder, cluster, plan.ActionBringUp)
	if err != nil {
		t.Fatalf("Compute returned %v", err)
	}

	engine := NewDryRun()
	filter := []string{phases.Configure, phases.PublishKey}
	if err := engine.Converge(context.Background(), diff, filter, Options{}); err != nil {
		t.Fatalf("Converge returned %v", err)
	}
	if len(runner.calls) != 0 {
		t.Errorf("dry-run executed commands: %v", runner.calls)
	}
}
