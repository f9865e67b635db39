package topology

import (
	"sort"

	"github.com/topoplan/topoplan/pkg/catalog"
	"github.com/topoplan/topoplan/pkg/phases"
)

// MachineTemplate is the base resource shape for a node-group: OS identity,
// inbound port exposure and arbitrary extra attributes. Templates are copied
// and extended per node-group, never mutated in place.
type MachineTemplate struct {
	// OSFamily is the operating system family (e.g. "ubuntu").
	OSFamily string `yaml:"os_family,omitempty"`

	// OSVersion is the operating system version (e.g. "24.04").
	OSVersion string `yaml:"os_version,omitempty"`

	// InboundPorts lists the ports the machine must accept traffic on.
	// Role-required ports are merged in during resolution.
	InboundPorts []int `yaml:"inbound_ports,omitempty"`

	// Attributes are free-form extra machine attributes (image id,
	// instance size, zone, ...). The core passes them through untouched.
	Attributes map[string]string `yaml:"attributes,omitempty"`
}

// Clone returns a deep copy of the template.
func (t MachineTemplate) Clone() MachineTemplate {
	out := MachineTemplate{
		OSFamily:  t.OSFamily,
		OSVersion: t.OSVersion,
	}
	out.InboundPorts = append([]int(nil), t.InboundPorts...)
	if t.Attributes != nil {
		out.Attributes = make(map[string]string, len(t.Attributes))
		for k, v := range t.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

// Merge returns a copy of the template with the override's non-zero fields
// applied. Inbound ports are unioned; attributes are merged key-wise with
// the override winning.
func (t MachineTemplate) Merge(override *MachineTemplate) MachineTemplate {
	out := t.Clone()
	if override == nil {
		return out
	}
	if override.OSFamily != "" {
		out.OSFamily = override.OSFamily
	}
	if override.OSVersion != "" {
		out.OSVersion = override.OSVersion
	}
	if len(override.InboundPorts) > 0 {
		set := make(map[int]struct{}, len(out.InboundPorts)+len(override.InboundPorts))
		for _, p := range out.InboundPorts {
			set[p] = struct{}{}
		}
		for _, p := range override.InboundPorts {
			set[p] = struct{}{}
		}
		merged := make([]int, 0, len(set))
		for p := range set {
			merged = append(merged, p)
		}
		sort.Ints(merged)
		out.InboundPorts = merged
	}
	if len(override.Attributes) > 0 {
		if out.Attributes == nil {
			out.Attributes = make(map[string]string, len(override.Attributes))
		}
		for k, v := range override.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

// NodeGroup is a named, homogeneous set of cluster members sharing a role
// set and a desired instance count. Roles are stored pre-expansion; alias
// expansion happens at resolution time.
type NodeGroup struct {
	// Roles is the declared (pre-expansion) role set.
	Roles []catalog.Role

	// Count is the desired instance count. Zero is legal and represents a
	// torn-down group.
	Count int

	// Template optionally overrides the cluster's base machine template
	// for this group.
	Template *MachineTemplate

	// Properties optionally override the cluster's shared properties for
	// this group.
	Properties map[string]string
}

// GroupOption configures a NodeGroup at construction time.
type GroupOption func(*NodeGroup)

// WithCount sets the desired instance count. Defaults to 1.
func WithCount(n int) GroupOption {
	return func(g *NodeGroup) { g.Count = n }
}

// WithGroupTemplate sets per-group machine-template overrides.
func WithGroupTemplate(t MachineTemplate) GroupOption {
	return func(g *NodeGroup) {
		copied := t.Clone()
		g.Template = &copied
	}
}

// WithGroupProperties sets per-group property overrides.
func WithGroupProperties(props map[string]string) GroupOption {
	return func(g *NodeGroup) {
		g.Properties = copyProps(props)
	}
}

// NewNodeGroup creates a node-group with the given roles. The desired count
// defaults to 1.
func NewNodeGroup(roles []catalog.Role, opts ...GroupOption) NodeGroup {
	g := NodeGroup{
		Roles: append([]catalog.Role(nil), roles...),
		Count: 1,
	}
	for _, opt := range opts {
		opt(&g)
	}
	return g
}

// Host is one reachable machine endpoint in the inventory, consumed by
// convergence engines that execute phases over the network.
type Host struct {
	// Address is the hostname or IP the machine is reached at.
	Address string `yaml:"address" validate:"required"`

	// Port is the SSH port. Defaults to 22.
	Port int `yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`

	// User is the login user. Defaults to "root".
	User string `yaml:"user,omitempty"`

	// KeyPath is the private key used to authenticate.
	KeyPath string `yaml:"key_path,omitempty"`
}

// Cluster is the full declarative cluster description. It is created once
// by the caller and treated as immutable for the duration of one
// orchestration call.
type Cluster struct {
	// IPMode is the addressing mode nodes use to reach each other.
	IPMode phases.IPMode

	// BaseTemplate is the shared machine template all groups start from.
	BaseTemplate MachineTemplate

	// Properties are the shared configuration properties.
	Properties map[string]string

	// Groups maps node-group tag to its declaration.
	Groups map[string]NodeGroup

	// Inventory optionally maps node-group tag to reachable hosts. The
	// core never reads it; it exists for convergence engines.
	Inventory map[string][]Host

	// KeyFile optionally names a local public-key file that the
	// publish-key phase distributes to every host. Empty means each
	// agent publishes its own key.
	KeyFile string
}

// ClusterOption configures a Cluster at construction time.
type ClusterOption func(*Cluster)

// WithBaseTemplate sets the shared base machine template.
func WithBaseTemplate(t MachineTemplate) ClusterOption {
	return func(c *Cluster) { c.BaseTemplate = t.Clone() }
}

// WithProperties sets the shared cluster properties.
func WithProperties(props map[string]string) ClusterOption {
	return func(c *Cluster) { c.Properties = copyProps(props) }
}

// WithKeyFile sets the local public-key file distributed during trust
// bootstrap.
func WithKeyFile(path string) ClusterOption {
	return func(c *Cluster) { c.KeyFile = path }
}

// WithInventory attaches a host inventory.
func WithInventory(inv map[string][]Host) ClusterOption {
	return func(c *Cluster) {
		c.Inventory = make(map[string][]Host, len(inv))
		for tag, hosts := range inv {
			c.Inventory[tag] = append([]Host(nil), hosts...)
		}
	}
}

// NewCluster creates a cluster from an addressing mode and a tag ->
// node-group mapping. Call Validate before handing the cluster to the diff
// engine.
func NewCluster(ipMode phases.IPMode, groups map[string]NodeGroup, opts ...ClusterOption) *Cluster {
	c := &Cluster{
		IPMode: ipMode,
		Groups: make(map[string]NodeGroup, len(groups)),
	}
	for tag, g := range groups {
		c.Groups[tag] = g
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tags returns the node-group tags in sorted order. Every iteration over
// the cluster goes through this so results are deterministic.
func (c *Cluster) Tags() []string {
	tags := make([]string, 0, len(c.Groups))
	for tag := range c.Groups {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// GroupProperties returns the shared properties merged with a group's
// overrides.
func (c *Cluster) GroupProperties(tag string) map[string]string {
	group, ok := c.Groups[tag]
	merged := copyProps(c.Properties)
	if merged == nil {
		merged = make(map[string]string)
	}
	if ok {
		for k, v := range group.Properties {
			merged[k] = v
		}
	}
	return merged
}

func copyProps(props map[string]string) map[string]string {
	if props == nil {
		return nil
	}
	out := make(map[string]string, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
