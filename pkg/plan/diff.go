package plan

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/topoplan/topoplan/pkg/catalog"
	"github.com/topoplan/topoplan/pkg/nodespec"
	"github.com/topoplan/topoplan/pkg/phases"
	"github.com/topoplan/topoplan/pkg/topology"
)

// Action selects the direction of a topology diff.
type Action string

const (
	// ActionBringUp targets every node-group at its declared count.
	ActionBringUp Action = "bring-up"

	// ActionTearDown targets every node-group at zero.
	ActionTearDown Action = "tear-down"
)

// Entry pairs one resolved node spec with its target instance count.
type Entry struct {
	// Spec is the resolved node spec for the group.
	Spec nodespec.Resolved

	// TargetCount is the instance count the convergence engine should
	// reconcile the group toward.
	TargetCount int
}

// Summary provides statistics about a diff.
type Summary struct {
	// Groups is the number of node-groups in the diff.
	Groups int

	// TargetInstances is the sum of all target counts.
	TargetInstances int

	// MasterGroups is the number of groups holding a singleton role.
	MasterGroups int
}

// Diff is the hand-off artifact to the convergence engine: a mapping from
// resolved node spec to target instance count. It is complete before any
// execution begins; the engine never sees a partial diff.
type Diff struct {
	// ID is the unique identifier of this diff, for log correlation.
	ID string

	// Action is the direction the diff was computed for.
	Action Action

	// Entries maps node-group tag to its entry.
	Entries map[string]Entry

	// Summary provides statistics about the diff.
	Summary Summary

	// CreatedAt is when the diff was computed.
	CreatedAt time.Time
}

// Tags returns the diff's node-group tags in sorted order.
func (d *Diff) Tags() []string {
	tags := make([]string, 0, len(d.Entries))
	for tag := range d.Entries {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// ResolveTags locates, for each target role, the tag of the unique
// node-group whose expanded role set holds that role. Results align with
// targetRoles. Every role must resolve to exactly one group: a role held
// by no group, or by more than one, fails with missing_role since there is
// no safe way to pick a holder.
func ResolveTags(cat *catalog.Catalog, targetRoles []catalog.Role, groups map[string]topology.NodeGroup) ([]string, error) {
	tags := make([]string, 0, len(groups))
	for tag := range groups {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	found := make([]string, 0, len(targetRoles))
	for _, role := range targetRoles {
		var matches []string
		for _, tag := range tags {
			for _, r := range cat.Expand(groups[tag].Roles) {
				if r == role {
					matches = append(matches, tag)
					break
				}
			}
		}
		switch len(matches) {
		case 1:
			found = append(found, matches[0])
		case 0:
			return nil, topology.NewMissingRole(
				fmt.Sprintf("no node-group holds role %q", role))
		default:
			return nil, topology.NewMissingRole(
				fmt.Sprintf("role %q held by %d node-groups %v", role, len(matches), matches))
		}
	}
	return found, nil
}

// Compute builds the topology diff for a cluster and an action: every
// node-group's resolved spec paired with its declared count for bring-up,
// or with zero for tear-down. The cluster must already have passed
// validation.
func Compute(builder *nodespec.Builder, cluster *topology.Cluster, action Action) (*Diff, error) {
	params, err := clusterParams(builder.Catalog(), cluster)
	if err != nil {
		return nil, err
	}

	d := &Diff{
		ID:        uuid.New().String(),
		Action:    action,
		Entries:   make(map[string]Entry, len(cluster.Groups)),
		CreatedAt: time.Now(),
	}

	for _, tag := range cluster.Tags() {
		spec, err := builder.Resolve(cluster, tag, params)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %q: %w", tag, err)
		}

		target := 0
		if action == ActionBringUp {
			target = cluster.Groups[tag].Count
		}
		d.Entries[tag] = Entry{Spec: spec, TargetCount: target}

		d.Summary.Groups++
		d.Summary.TargetInstances += target
		if builder.Catalog().IsMaster(spec.Roles) {
			d.Summary.MasterGroups++
		}
	}

	log.Debug().
		Str("diff_id", d.ID).
		Str("action", string(action)).
		Int("groups", d.Summary.Groups).
		Int("target_instances", d.Summary.TargetInstances).
		Msg("computed topology diff")

	return d, nil
}

// Specs resolves every node-group of the cluster without touching counts,
// for lift-style operations that re-run phases over the current topology.
func Specs(builder *nodespec.Builder, cluster *topology.Cluster) ([]nodespec.Resolved, error) {
	params, err := clusterParams(builder.Catalog(), cluster)
	if err != nil {
		return nil, err
	}

	specs := make([]nodespec.Resolved, 0, len(cluster.Groups))
	for _, tag := range cluster.Tags() {
		spec, err := builder.Resolve(cluster, tag, params)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %q: %w", tag, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// clusterParams resolves the cross-references every phase map is built
// from: which tag hosts the coordinator and which hosts the storage root.
func clusterParams(cat *catalog.Catalog, cluster *topology.Cluster) (phases.Params, error) {
	tags, err := ResolveTags(cat,
		[]catalog.Role{catalog.RoleCoordinator, catalog.RoleStorage}, cluster.Groups)
	if err != nil {
		return phases.Params{}, err
	}
	return phases.Params{
		IPMode:         cluster.IPMode,
		CoordinatorTag: tags[0],
		StorageTag:     tags[1],
		KeyFile:        cluster.KeyFile,
	}, nil
}
