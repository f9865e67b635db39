package topology

import (
	"fmt"

	"github.com/topoplan/topoplan/pkg/catalog"
	"github.com/topoplan/topoplan/pkg/phases"
)

// ValidateNodeGroup checks one node-group against the catalog: the expanded
// role set must intersect the catalog's known roles, and a group holding a
// singleton role must declare a count of exactly 0 or 1.
func ValidateNodeGroup(cat *catalog.Catalog, tag string, group NodeGroup) error {
	if group.Count < 0 {
		return NewInvalidTopology(fmt.Sprintf("count %d is negative", group.Count)).WithGroup(tag)
	}
	if len(cat.KnownRoles(group.Roles)) == 0 {
		return NewInvalidTopology(fmt.Sprintf("roles %v resolve to no known role", group.Roles)).WithGroup(tag)
	}
	if singles := cat.Singletons(group.Roles); len(singles) > 0 && group.Count > 1 {
		return NewInvalidTopology(
			fmt.Sprintf("singleton role requires count 0 or 1, got %d", group.Count)).
			WithGroup(tag).WithRole(singles[0])
	}
	return nil
}

// Validate checks the whole cluster model: the addressing mode, every
// node-group, and the cluster-wide singleton ownership invariant (at most
// one group may claim each singleton role).
func (c *Cluster) Validate(cat *catalog.Catalog) error {
	switch c.IPMode {
	case phases.IPModePublic, phases.IPModePrivate:
	default:
		return NewInvalidTopology(fmt.Sprintf("unknown ip mode %q", c.IPMode))
	}

	claimed := make(map[catalog.Role]string)
	for _, tag := range c.Tags() {
		group := c.Groups[tag]
		if err := ValidateNodeGroup(cat, tag, group); err != nil {
			return err
		}
		for _, role := range cat.Singletons(group.Roles) {
			if owner, taken := claimed[role]; taken {
				return NewAmbiguousSingleton(
					fmt.Sprintf("singleton role claimed by both %q and %q", owner, tag)).
					WithGroup(tag).WithRole(role)
			}
			claimed[role] = tag
		}
	}
	return nil
}
