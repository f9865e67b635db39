package topology

import (
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/topoplan/topoplan/pkg/catalog"
	"github.com/topoplan/topoplan/pkg/phases"
	"gopkg.in/yaml.v3"
)

// fileSpec is the on-disk cluster description. Loading a file is a CLI
// convenience only; embedders construct Cluster values directly.
type fileSpec struct {
	IPMode       string               `yaml:"ip_mode" validate:"required,oneof=public private"`
	BaseTemplate *MachineTemplate     `yaml:"base_template"`
	Properties   map[string]string    `yaml:"properties"`
	Groups       map[string]fileGroup `yaml:"groups" validate:"required,min=1,dive"`
	Inventory    map[string][]Host    `yaml:"inventory" validate:"omitempty,dive,dive"`
	KeyFile      string               `yaml:"key_file,omitempty"`
}

type fileGroup struct {
	Roles []string `yaml:"roles" validate:"required,min=1,dive,required"`

	// Count is a pointer so an absent count (default 1) is
	// distinguishable from an explicit 0 (torn down).
	Count *int `yaml:"count" validate:"omitempty,min=0"`

	Template   *MachineTemplate  `yaml:"template"`
	Properties map[string]string `yaml:"properties"`
}

// Load reads a cluster description from r. Unknown YAML fields are
// rejected. The returned cluster is structurally sound but not yet
// validated against a catalog; callers run Validate separately.
func Load(r io.Reader) (*Cluster, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var spec fileSpec
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("failed to decode cluster file: %w", err)
	}
	if err := validator.New().Struct(&spec); err != nil {
		return nil, fmt.Errorf("cluster file failed validation: %w", err)
	}

	groups := make(map[string]NodeGroup, len(spec.Groups))
	for tag, fg := range spec.Groups {
		roles := make([]catalog.Role, 0, len(fg.Roles))
		for _, r := range fg.Roles {
			roles = append(roles, catalog.Role(r))
		}
		opts := []GroupOption{}
		if fg.Count != nil {
			opts = append(opts, WithCount(*fg.Count))
		}
		if fg.Template != nil {
			opts = append(opts, WithGroupTemplate(*fg.Template))
		}
		if fg.Properties != nil {
			opts = append(opts, WithGroupProperties(fg.Properties))
		}
		groups[tag] = NewNodeGroup(roles, opts...)
	}

	copts := []ClusterOption{}
	if spec.BaseTemplate != nil {
		copts = append(copts, WithBaseTemplate(*spec.BaseTemplate))
	}
	if spec.Properties != nil {
		copts = append(copts, WithProperties(spec.Properties))
	}
	if spec.KeyFile != "" {
		copts = append(copts, WithKeyFile(spec.KeyFile))
	}
	if spec.Inventory != nil {
		inv := make(map[string][]Host, len(spec.Inventory))
		for tag, hosts := range spec.Inventory {
			withDefaults := make([]Host, len(hosts))
			for i, h := range hosts {
				if h.Port == 0 {
					h.Port = 22
				}
				if h.User == "" {
					h.User = "root"
				}
				withDefaults[i] = h
			}
			inv[tag] = withDefaults
		}
		copts = append(copts, WithInventory(inv))
	}

	return NewCluster(phases.IPMode(spec.IPMode), groups, copts...), nil
}

// LoadFile reads a cluster description from a file path.
func LoadFile(path string) (*Cluster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cluster file: %w", err)
	}
	defer f.Close()
	return Load(f)
}
