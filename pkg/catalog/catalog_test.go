package catalog

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/topoplan/topoplan/pkg/phases"
)

func TestExpandAppendsDefaultRole(t *testing.T) {
	c := Default()

	got := c.Expand([]Role{RoleWorker})
	want := []Role{RoleDefault, RoleWorker}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand([worker]) = %v, want %v", got, want)
	}
}

func TestExpandSubstitutesAlias(t *testing.T) {
	c := Default()

	got := c.Expand([]Role{RoleSlaveNode})
	want := []Role{RoleDefault, RoleStorage, RoleWorker}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand([slavenode]) = %v, want %v", got, want)
	}
}

func TestExpandIsIdempotent(t *testing.T) {
	c := Default()

	inputs := [][]Role{
		{},
		{RoleWorker},
		{RoleSlaveNode},
		{RoleCoordinator, RoleJobControl},
		{RoleSlaveNode, RoleCoordinator, "mystery"},
	}
	for _, input := range inputs {
		once := c.Expand(input)
		twice := c.Expand(once)
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("Expand not idempotent for %v: first %v, second %v", input, once, twice)
		}
	}
}

func TestExpandPreservesUnknownRoles(t *testing.T) {
	c := Default()

	got := c.Expand([]Role{"flux-capacitor"})
	want := []Role{RoleDefault, "flux-capacitor"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand = %v, want %v", got, want)
	}
}

func TestPortsForIsOrderInsensitive(t *testing.T) {
	c := Default()

	roles := []Role{RoleCoordinator, RoleJobControl, RoleStorage, RoleWorker}
	want := c.PortsFor(roles)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10; i++ {
		shuffled := append([]Role(nil), roles...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		if got := c.PortsFor(shuffled); !reflect.DeepEqual(got, want) {
			t.Fatalf("PortsFor(%v) = %v, want %v", shuffled, got, want)
		}
	}
}

func TestPortsForDeduplicates(t *testing.T) {
	c := Default()

	got := c.PortsFor([]Role{RoleWorker, RoleWorker, RoleSlaveNode})
	seen := make(map[int]bool)
	for _, port := range got {
		if seen[port] {
			t.Errorf("duplicate port %d in %v", port, got)
		}
		seen[port] = true
	}
	// slavenode expands to storage+worker; the union must cover both.
	want := []int{22, 7010, 7060, 7075}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PortsFor = %v, want %v", got, want)
	}
}

func TestPortsForIgnoresUnknownRoles(t *testing.T) {
	c := Default()

	withUnknown := c.PortsFor([]Role{RoleWorker, "mystery"})
	without := c.PortsFor([]Role{RoleWorker})
	if !reflect.DeepEqual(withUnknown, without) {
		t.Errorf("unknown role changed ports: %v vs %v", withUnknown, without)
	}
}

func TestPhasesForMonotonicity(t *testing.T) {
	c := Default()

	small := c.PhasesFor([]Role{RoleWorker})
	large := c.PhasesFor([]Role{RoleWorker, RoleCoordinator, RoleStorage})

	largeSet := make(map[string]bool, len(large))
	for _, phase := range large {
		largeSet[phase] = true
	}
	for _, phase := range small {
		if !largeSet[phase] {
			t.Errorf("phase %q present for subset but missing for superset", phase)
		}
	}
}

func TestPhasesForCoordinatorGroup(t *testing.T) {
	c := Default()

	got := c.PhasesFor([]Role{RoleCoordinator, RoleJobControl})
	want := []string{
		phases.Configure,
		phases.Install,
		phases.PublishKey,
		phases.StartCoordinator,
		phases.StartJobControl,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PhasesFor = %v, want %v", got, want)
	}
}

func TestIsMaster(t *testing.T) {
	c := Default()

	cases := []struct {
		roles []Role
		want  bool
	}{
		{[]Role{RoleCoordinator}, true},
		{[]Role{RoleJobControl, RoleWorker}, true},
		{[]Role{RoleSlaveNode}, false},
		{[]Role{RoleWorker, RoleStorage}, false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := c.IsMaster(tc.roles); got != tc.want {
			t.Errorf("IsMaster(%v) = %v, want %v", tc.roles, got, tc.want)
		}
	}
}

func TestCatalogCopiesInputs(t *testing.T) {
	ports := []int{100}
	roles := map[Role]Definition{
		"base": {Ports: ports, Phases: []string{"setup"}},
	}
	c := New("base", roles, nil)

	ports[0] = 999
	if got := c.PortsFor(nil); got[0] != 100 {
		t.Errorf("catalog shares caller's port slice: got %v", got)
	}
}

func TestUnknownRolesDiagnostic(t *testing.T) {
	c := Default()

	got := c.UnknownRoles([]Role{RoleWorker, "typo-role"})
	if len(got) != 1 || got[0] != "typo-role" {
		t.Errorf("UnknownRoles = %v, want [typo-role]", got)
	}
}
