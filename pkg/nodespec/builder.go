package nodespec

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/topoplan/topoplan/pkg/catalog"
	"github.com/topoplan/topoplan/pkg/phases"
	"github.com/topoplan/topoplan/pkg/topology"
)

// Resolved is the fully computed artifact for one node-group: the final
// machine template (base ports merged with all role-required ports) and the
// phase map restricted to the phases the group's resolved roles require.
// Resolved values are computed fresh on every call and never cached; the
// cluster model may change between calls.
type Resolved struct {
	// Tag is the node-group tag this spec was resolved for.
	Tag string

	// Roles is the expanded role set.
	Roles []catalog.Role

	// Template is the finalized machine template.
	Template topology.MachineTemplate

	// Phases maps phase name to its executable unit, restricted to the
	// phases valid for Roles.
	Phases map[string]phases.Phase
}

// PhaseNames returns the spec's phase names in sorted order.
func (r Resolved) PhaseNames() []string {
	names := make([]string, 0, len(r.Phases))
	for name := range r.Phases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builder turns node-group declarations into resolved specs. It holds the
// role catalog and the caller-supplied phase builders; both are fixed for
// the builder's lifetime.
type Builder struct {
	catalog  *catalog.Catalog
	builders map[string]phases.Builder
}

// NewBuilder creates a builder over a catalog and a phase builder table.
func NewBuilder(cat *catalog.Catalog, builders map[string]phases.Builder) *Builder {
	copied := make(map[string]phases.Builder, len(builders))
	for name, b := range builders {
		copied[name] = b
	}
	return &Builder{catalog: cat, builders: copied}
}

// Catalog returns the builder's role catalog.
func (b *Builder) Catalog() *catalog.Catalog {
	return b.catalog
}

// MachineSpec finalizes a machine template for a role set: the template's
// inbound ports are unioned with every resolved role's required ports,
// deduplicated and sorted. All other attributes pass through unchanged. The
// input template is never mutated.
func (b *Builder) MachineSpec(base topology.MachineTemplate, roles []catalog.Role) topology.MachineTemplate {
	out := base.Clone()

	set := make(map[int]struct{}, len(out.InboundPorts))
	for _, port := range out.InboundPorts {
		set[port] = struct{}{}
	}
	for _, port := range b.catalog.PortsFor(roles) {
		set[port] = struct{}{}
	}
	merged := make([]int, 0, len(set))
	for port := range set {
		merged = append(merged, port)
	}
	sort.Ints(merged)
	out.InboundPorts = merged
	return out
}

// PhaseMap builds the full phase catalog from the registered builders, then
// restricts it to the phases required by the resolved roles. Building is
// pure construction; nothing executes here.
func (b *Builder) PhaseMap(params phases.Params, roles []catalog.Role) map[string]phases.Phase {
	selected := b.catalog.PhasesFor(roles)
	out := make(map[string]phases.Phase, len(selected))
	for _, name := range selected {
		builder, ok := b.builders[name]
		if !ok {
			// The catalog knows the phase but no builder was
			// supplied. The phase is skipped; the map stays
			// internally consistent with what can actually run.
			log.Debug().Str("phase", name).Msg("no builder registered for catalog phase")
			continue
		}
		out[name] = builder(params)
	}
	return out
}

// Resolve computes the resolved spec for one node-group of the cluster,
// using params for the cluster-level phase inputs. The group's property
// overrides are merged into params before phase construction.
func (b *Builder) Resolve(cluster *topology.Cluster, tag string, params phases.Params) (Resolved, error) {
	group, ok := cluster.Groups[tag]
	if !ok {
		return Resolved{}, fmt.Errorf("no node-group with tag %q", tag)
	}

	expanded := b.catalog.Expand(group.Roles)
	if unknown := b.catalog.UnknownRoles(group.Roles); len(unknown) > 0 {
		log.Debug().Str("tag", tag).Interface("roles", unknown).
			Msg("ignoring unknown roles during resolution")
	}

	params.IPMode = cluster.IPMode
	params.Properties = cluster.GroupProperties(tag)

	base := cluster.BaseTemplate.Merge(group.Template)
	return Resolved{
		Tag:      tag,
		Roles:    expanded,
		Template: b.MachineSpec(base, expanded),
		Phases:   b.PhaseMap(params, expanded),
	}, nil
}
