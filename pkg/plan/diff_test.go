package plan

import (
	"context"
	"reflect"
	"testing"

	"github.com/topoplan/topoplan/pkg/catalog"
	"github.com/topoplan/topoplan/pkg/nodespec"
	"github.com/topoplan/topoplan/pkg/phases"
	"github.com/topoplan/topoplan/pkg/topology"
)

type nopRunner struct{}

func (nopRunner) Run(ctx context.Context, target phases.Target, command string) error {
	return nil
}

func testBuilder() *nodespec.Builder {
	return nodespec.NewBuilder(catalog.Default(), phases.Builtins(nopRunner{}))
}

func twoGroupCluster() *topology.Cluster {
	return topology.NewCluster(phases.IPModePrivate,
		map[string]topology.NodeGroup{
			"master": topology.NewNodeGroup([]catalog.Role{catalog.RoleCoordinator, catalog.RoleJobControl}),
			"slaves": topology.NewNodeGroup([]catalog.Role{catalog.RoleSlaveNode}, topology.WithCount(5)),
		},
		topology.WithBaseTemplate(topology.MachineTemplate{InboundPorts: []int{22}}),
	)
}

func TestResolveTagsDeterministic(t *testing.T) {
	cluster := twoGroupCluster()

	got, err := ResolveTags(catalog.Default(),
		[]catalog.Role{catalog.RoleCoordinator, catalog.RoleStorage}, cluster.Groups)
	if err != nil {
		t.Fatalf("ResolveTags returned %v", err)
	}
	want := []string{"master", "slaves"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ResolveTags = %v, want %v", got, want)
	}
}

func TestResolveTagsMissingRole(t *testing.T) {
	groups := map[string]topology.NodeGroup{
		"slaves": topology.NewNodeGroup([]catalog.Role{catalog.RoleWorker}),
	}

	_, err := ResolveTags(catalog.Default(), []catalog.Role{catalog.RoleCoordinator}, groups)
	if !topology.IsCode(err, topology.CodeMissingRole) {
		t.Fatalf("ResolveTags = %v, want missing_role", err)
	}
}

func TestResolveTagsDuplicateHolderIsMissingRole(t *testing.T) {
	// Two groups holding storage: resolution reports missing_role instead
	// of picking one.
	groups := map[string]topology.NodeGroup{
		"a": topology.NewNodeGroup([]catalog.Role{catalog.RoleStorage}),
		"b": topology.NewNodeGroup([]catalog.Role{catalog.RoleStorage}),
	}

	_, err := ResolveTags(catalog.Default(), []catalog.Role{catalog.RoleStorage}, groups)
	if !topology.IsCode(err, topology.CodeMissingRole) {
		t.Fatalf("ResolveTags = %v, want missing_role", err)
	}
}

func TestResolveTagsRejectsCompensatingMismatch(t *testing.T) {
	// No coordinator but two storage groups: two tags found for two roles
	// in total, yet neither role resolves safely. Each role must match
	// exactly one group on its own.
	groups := map[string]topology.NodeGroup{
		"store-a": topology.NewNodeGroup([]catalog.Role{catalog.RoleStorage}),
		"store-b": topology.NewNodeGroup([]catalog.Role{catalog.RoleStorage}),
	}

	_, err := ResolveTags(catalog.Default(),
		[]catalog.Role{catalog.RoleCoordinator, catalog.RoleStorage}, groups)
	if !topology.IsCode(err, topology.CodeMissingRole) {
		t.Fatalf("ResolveTags = %v, want missing_role", err)
	}
}

func TestComputeBringUp(t *testing.T) {
	d, err := Compute(testBuilder(), twoGroupCluster(), ActionBringUp)
	if err != nil {
		t.Fatalf("Compute returned %v", err)
	}

	if len(d.Entries) != 2 {
		t.Fatalf("diff has %d entries, want 2", len(d.Entries))
	}
	if got := d.Entries["master"].TargetCount; got != 1 {
		t.Errorf("master target = %d, want 1", got)
	}
	if got := d.Entries["slaves"].TargetCount; got != 5 {
		t.Errorf("slaves target = %d, want 5", got)
	}
	if d.Summary.TargetInstances != 6 || d.Summary.Groups != 2 || d.Summary.MasterGroups != 1 {
		t.Errorf("summary = %+v", d.Summary)
	}
	if d.ID == "" {
		t.Error("diff has no ID")
	}
}

func TestComputeTearDownForcesZero(t *testing.T) {
	d, err := Compute(testBuilder(), twoGroupCluster(), ActionTearDown)
	if err != nil {
		t.Fatalf("Compute returned %v", err)
	}
	for tag, entry := range d.Entries {
		if entry.TargetCount != 0 {
			t.Errorf("tear-down target for %q = %d, want 0", tag, entry.TargetCount)
		}
	}
}

func TestComputeSpecsAreInternallyConsistent(t *testing.T) {
	cat := catalog.Default()
	d, err := Compute(testBuilder(), twoGroupCluster(), ActionBringUp)
	if err != nil {
		t.Fatalf("Compute returned %v", err)
	}

	for tag, entry := range d.Entries {
		valid := make(map[string]bool)
		for _, name := range cat.PhasesFor(entry.Spec.Roles) {
			valid[name] = true
		}
		for name := range entry.Spec.Phases {
			if !valid[name] {
				t.Errorf("group %q carries phase %q not valid for roles %v", tag, name, entry.Spec.Roles)
			}
		}
	}
}

func TestComputeEndToEndPortsAndPhases(t *testing.T) {
	d, err := Compute(testBuilder(), twoGroupCluster(), ActionBringUp)
	if err != nil {
		t.Fatalf("Compute returned %v", err)
	}

	master := d.Entries["master"].Spec
	wantPorts := []int{22, 7070, 7071, 7090, 7091}
	if !reflect.DeepEqual(master.Template.InboundPorts, wantPorts) {
		t.Errorf("master ports = %v, want %v", master.Template.InboundPorts, wantPorts)
	}
	wantPhases := []string{
		phases.Configure,
		phases.Install,
		phases.PublishKey,
		phases.StartCoordinator,
		phases.StartJobControl,
	}
	if got := master.PhaseNames(); !reflect.DeepEqual(got, wantPhases) {
		t.Errorf("master phases = %v, want %v", got, wantPhases)
	}

	slaves := d.Entries["slaves"].Spec
	wantPorts = []int{22, 7010, 7060, 7075}
	if !reflect.DeepEqual(slaves.Template.InboundPorts, wantPorts) {
		t.Errorf("slaves ports = %v, want %v", slaves.Template.InboundPorts, wantPorts)
	}
}

func TestComputeFailsWithoutCoordinator(t *testing.T) {
	cluster := topology.NewCluster(phases.IPModePrivate, map[string]topology.NodeGroup{
		"slaves": topology.NewNodeGroup([]catalog.Role{catalog.RoleSlaveNode}),
	})

	_, err := Compute(testBuilder(), cluster, ActionBringUp)
	if !topology.IsCode(err, topology.CodeMissingRole) {
		t.Fatalf("Compute = %v, want missing_role", err)
	}
}

func TestSpecsEnumerateWithoutCounts(t *testing.T) {
	specs, err := Specs(testBuilder(), twoGroupCluster())
	if err != nil {
		t.Fatalf("Specs returned %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("got %d specs, want 2", len(specs))
	}
	if specs[0].Tag != "master" || specs[1].Tag != "slaves" {
		t.Errorf("spec order = [%s %s], want [master slaves]", specs[0].Tag, specs[1].Tag)
	}
}
