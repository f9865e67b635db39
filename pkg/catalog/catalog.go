package catalog

import (
	"sort"

	"github.com/topoplan/topoplan/pkg/phases"
)

// Role is a functional capability a node-group provides.
type Role string

// Roles known to the default catalog.
const (
	// RoleDefault is the universal role appended to every node-group
	// during expansion. It owns the baseline install/configure phases and
	// the SSH port.
	RoleDefault Role = "default"

	// RoleCoordinator is the singleton cluster coordinator.
	RoleCoordinator Role = "coordinator"

	// RoleJobControl is the singleton job-control service.
	RoleJobControl Role = "jobcontrol"

	// RoleStorage is a storage daemon role.
	RoleStorage Role = "storage"

	// RoleWorker is a compute worker role.
	RoleWorker Role = "worker"

	// RoleSlaveNode is an alias expanding to storage plus worker.
	RoleSlaveNode Role = "slavenode"
)

// Definition describes what one role requires from a machine: the inbound
// ports it needs exposed, the lifecycle phases that must be able to run
// against it, and whether at most one node-group may hold it.
type Definition struct {
	// Ports lists the inbound ports the role requires.
	Ports []int

	// Phases lists the lifecycle phase names the role requires.
	Phases []string

	// Singleton marks a role at most one node-group cluster-wide may
	// claim, with a desired count of 0 or 1.
	Singleton bool
}

// Catalog is the immutable role registry: role definitions, alias
// expansions, and the derived known-phase set. Construct one at process
// start and pass it explicitly; the zero value is not usable.
type Catalog struct {
	roles       map[Role]Definition
	aliases     map[Role][]Role
	defaultRole Role
	knownPhases map[string]struct{}
}

// New builds a catalog from role definitions and alias expansions. Inputs
// are deep-copied; the catalog never mutates after construction. The default
// role must be present in roles.
func New(defaultRole Role, roles map[Role]Definition, aliases map[Role][]Role) *Catalog {
	c := &Catalog{
		roles:       make(map[Role]Definition, len(roles)),
		aliases:     make(map[Role][]Role, len(aliases)),
		defaultRole: defaultRole,
		knownPhases: make(map[string]struct{}),
	}
	for role, def := range roles {
		copied := Definition{
			Ports:     append([]int(nil), def.Ports...),
			Phases:    append([]string(nil), def.Phases...),
			Singleton: def.Singleton,
		}
		c.roles[role] = copied
		for _, phase := range def.Phases {
			c.knownPhases[phase] = struct{}{}
		}
	}
	for alias, expansion := range aliases {
		c.aliases[alias] = append([]Role(nil), expansion...)
	}
	return c
}

// Default returns the built-in catalog for a coordinator/jobcontrol/storage/
// worker fleet.
func Default() *Catalog {
	return New(RoleDefault,
		map[Role]Definition{
			RoleDefault: {
				Ports:  []int{22},
				Phases: []string{phases.Install, phases.Configure, phases.PublishKey},
			},
			RoleCoordinator: {
				Ports:     []int{7070, 7071},
				Phases:    []string{phases.Configure, phases.PublishKey, phases.StartCoordinator},
				Singleton: true,
			},
			RoleJobControl: {
				Ports:     []int{7090, 7091},
				Phases:    []string{phases.Configure, phases.StartJobControl},
				Singleton: true,
			},
			RoleStorage: {
				Ports:  []int{7010, 7075},
				Phases: []string{phases.AuthorizeCoordinator, phases.StartStorage},
			},
			RoleWorker: {
				Ports:  []int{7060},
				Phases: []string{phases.AuthorizeCoordinator, phases.StartWorker},
			},
		},
		map[Role][]Role{
			RoleSlaveNode: {RoleStorage, RoleWorker},
		},
	)
}

// Expand resolves a role sequence: the universal default role is appended,
// aliases are substituted with their expansion (one level) and the flattened
// result is deduplicated and sorted. Unknown non-alias roles pass through
// untouched; they fail node-group validation later, not here. Expansion is
// idempotent: expanding an already-expanded sequence is a no-op.
func (c *Catalog) Expand(roles []Role) []Role {
	return c.expand(roles, true)
}

// ExpandDeclared is Expand without appending the universal default role.
// Node-group validation uses it so the always-known default role cannot
// rescue an otherwise unrecognized role set.
func (c *Catalog) ExpandDeclared(roles []Role) []Role {
	return c.expand(roles, false)
}

func (c *Catalog) expand(roles []Role, withDefault bool) []Role {
	seen := make(map[Role]struct{}, len(roles)+1)
	add := func(r Role) {
		seen[r] = struct{}{}
	}

	for _, role := range roles {
		if expansion, ok := c.aliases[role]; ok {
			for _, concrete := range expansion {
				add(concrete)
			}
			continue
		}
		add(role)
	}
	if withDefault {
		add(c.defaultRole)
	}

	out := make([]Role, 0, len(seen))
	for role := range seen {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PortsFor returns the union of required inbound ports across the resolved
// roles, sorted and deduplicated. Unknown roles contribute no ports; that
// permissive merge is deliberate and documented, not an error.
func (c *Catalog) PortsFor(roles []Role) []int {
	set := make(map[int]struct{})
	for _, role := range c.Expand(roles) {
		def, ok := c.roles[role]
		if !ok {
			continue
		}
		for _, port := range def.Ports {
			set[port] = struct{}{}
		}
	}
	out := make([]int, 0, len(set))
	for port := range set {
		out = append(out, port)
	}
	sort.Ints(out)
	return out
}

// PhasesFor returns the set of phase names required by the resolved roles,
// restricted to phases the catalog knows, sorted for determinism. Ordering
// for execution is the orchestration driver's concern, not this one.
func (c *Catalog) PhasesFor(roles []Role) []string {
	set := make(map[string]struct{})
	for _, role := range c.Expand(roles) {
		def, ok := c.roles[role]
		if !ok {
			continue
		}
		for _, phase := range def.Phases {
			if _, known := c.knownPhases[phase]; known {
				set[phase] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for phase := range set {
		out = append(out, phase)
	}
	sort.Strings(out)
	return out
}

// IsMaster reports whether the resolved role set intersects the catalog's
// singleton roles.
func (c *Catalog) IsMaster(roles []Role) bool {
	for _, role := range c.Expand(roles) {
		if def, ok := c.roles[role]; ok && def.Singleton {
			return true
		}
	}
	return false
}

// Known reports whether a role (not an alias) is defined in the catalog.
func (c *Catalog) Known(role Role) bool {
	_, ok := c.roles[role]
	return ok
}

// KnownPhase reports whether any catalog role requires the named phase.
func (c *Catalog) KnownPhase(name string) bool {
	_, ok := c.knownPhases[name]
	return ok
}

// KnownRoles returns the declared roles (alias-expanded, default role not
// appended) that have a catalog definition. An empty result means the role
// set is unrecognized and the owning node-group is invalid.
func (c *Catalog) KnownRoles(roles []Role) []Role {
	out := make([]Role, 0, len(roles))
	for _, role := range c.ExpandDeclared(roles) {
		if _, ok := c.roles[role]; ok {
			out = append(out, role)
		}
	}
	return out
}

// Singletons returns the singleton roles held by the expanded role set.
func (c *Catalog) Singletons(roles []Role) []Role {
	out := make([]Role, 0, 2)
	for _, role := range c.Expand(roles) {
		if def, ok := c.roles[role]; ok && def.Singleton {
			out = append(out, role)
		}
	}
	return out
}

// UnknownRoles returns expanded roles with no catalog definition. Callers
// use it for diagnostics only; unknown roles are never an aggregation error.
func (c *Catalog) UnknownRoles(roles []Role) []Role {
	var out []Role
	for _, role := range c.Expand(roles) {
		if _, ok := c.roles[role]; !ok {
			out = append(out, role)
		}
	}
	return out
}
