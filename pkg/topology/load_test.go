package topology

import (
	"strings"
	"testing"

	"github.com/topoplan/topoplan/pkg/catalog"
	"github.com/topoplan/topoplan/pkg/phases"
)

const sampleCluster = `
ip_mode: private
base_template:
  os_family: ubuntu
  os_version: "24.04"
  inbound_ports: [22]
properties:
  fs.root: /srv/data
groups:
  master:
    roles: [coordinator, jobcontrol]
    count: 1
  slaves:
    roles: [slavenode]
    count: 5
    properties:
      heap: 4g
inventory:
  master:
    - address: 10.0.0.10
      user: ops
  slaves:
    - address: 10.0.0.20
    - address: 10.0.0.21
      port: 2222
`

func TestLoadSampleCluster(t *testing.T) {
	cluster, err := Load(strings.NewReader(sampleCluster))
	if err != nil {
		t.Fatalf("Load returned %v", err)
	}

	if cluster.IPMode != phases.IPModePrivate {
		t.Errorf("ip mode = %q, want private", cluster.IPMode)
	}
	if got := cluster.Groups["slaves"].Count; got != 5 {
		t.Errorf("slaves count = %d, want 5", got)
	}
	if got := cluster.Groups["master"].Roles; len(got) != 2 || got[0] != catalog.RoleCoordinator {
		t.Errorf("master roles = %v", got)
	}
	if err := cluster.Validate(catalog.Default()); err != nil {
		t.Errorf("loaded cluster failed validation: %v", err)
	}

	// Inventory defaults.
	master := cluster.Inventory["master"][0]
	if master.Port != 22 || master.User != "ops" {
		t.Errorf("master host = %+v, want port 22 user ops", master)
	}
	slave := cluster.Inventory["slaves"][0]
	if slave.User != "root" {
		t.Errorf("slave host user = %q, want root default", slave.User)
	}
	if cluster.Inventory["slaves"][1].Port != 2222 {
		t.Errorf("explicit port lost: %+v", cluster.Inventory["slaves"][1])
	}
}

func TestLoadDefaultsMissingCountToOne(t *testing.T) {
	cluster, err := Load(strings.NewReader(`
ip_mode: public
groups:
  master:
    roles: [coordinator]
`))
	if err != nil {
		t.Fatalf("Load returned %v", err)
	}
	if got := cluster.Groups["master"].Count; got != 1 {
		t.Errorf("count = %d, want 1", got)
	}
}

func TestLoadKeepsExplicitZeroCount(t *testing.T) {
	cluster, err := Load(strings.NewReader(`
ip_mode: public
groups:
  slaves:
    roles: [worker]
    count: 0
`))
	if err != nil {
		t.Fatalf("Load returned %v", err)
	}
	if got := cluster.Groups["slaves"].Count; got != 0 {
		t.Errorf("count = %d, want 0", got)
	}
}

func TestLoadCarriesKeyFile(t *testing.T) {
	cluster, err := Load(strings.NewReader(`
ip_mode: private
key_file: /etc/keys/cluster.pub
groups:
  master:
    roles: [coordinator]
`))
	if err != nil {
		t.Fatalf("Load returned %v", err)
	}
	if cluster.KeyFile != "/etc/keys/cluster.pub" {
		t.Errorf("key file = %q, want /etc/keys/cluster.pub", cluster.KeyFile)
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	_, err := Load(strings.NewReader(`
ip_mode: public
grups:
  slaves:
    roles: [worker]
`))
	if err == nil {
		t.Fatal("Load accepted a misspelled top-level field")
	}
}

func TestLoadRejectsBadIPMode(t *testing.T) {
	_, err := Load(strings.NewReader(`
ip_mode: smoke-signals
groups:
  slaves:
    roles: [worker]
`))
	if err == nil {
		t.Fatal("Load accepted an invalid ip_mode")
	}
}

func TestLoadRejectsEmptyRoles(t *testing.T) {
	_, err := Load(strings.NewReader(`
ip_mode: public
groups:
  slaves:
    roles: []
`))
	if err == nil {
		t.Fatal("Load accepted a group with no roles")
	}
}
