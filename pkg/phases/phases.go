package phases

import (
	"context"
	"fmt"
	"os"
	"sort"
)

// Phase names are stable identifiers shared between the role catalog, the
// node spec builder and the orchestration driver. The orchestrator sequences
// phases by name; the catalog only decides which names apply to a role set.
const (
	Install              = "install"
	Configure            = "configure"
	PublishKey           = "publish-key"
	AuthorizeCoordinator = "authorize-coordinator"
	StartCoordinator     = "start-coordinator-role"
	StartStorage         = "start-storage-role"
	StartJobControl      = "start-jobcontrol-role"
	StartWorker          = "start-worker-role"
)

// IPMode selects which address family phases configure nodes to advertise.
type IPMode string

const (
	// IPModePublic configures nodes to address each other over public IPs.
	IPModePublic IPMode = "public"

	// IPModePrivate configures nodes to address each other over the
	// cluster's private network.
	IPModePrivate IPMode = "private"
)

// Target identifies one machine a phase is applied to.
type Target struct {
	// Tag is the node-group tag the machine belongs to.
	Tag string

	// Host is the reachable address of the machine.
	Host string
}

// Runner executes a shell command on a target machine. It is the external
// execution collaborator: the phase layer never opens connections itself.
type Runner interface {
	Run(ctx context.Context, target Target, command string) error
}

// Uploader pushes a local file to a target machine. Runners that can move
// files implement it in addition to Run; phases that need a file on the
// host check for it at apply time.
type Uploader interface {
	Upload(ctx context.Context, target Target, localPath, remotePath string, mode os.FileMode) error
}

// Phase is a named, opaque unit of configuration work. The core selects and
// orders phases by name and never inspects what Apply does.
type Phase interface {
	Name() string
	Apply(ctx context.Context, target Target) error
}

// Params carries the cluster-level inputs a phase template is built from:
// the addressing mode, the tags currently hosting the coordinator and the
// storage root, and the cluster's shared properties.
type Params struct {
	IPMode         IPMode
	CoordinatorTag string
	StorageTag     string
	Properties     map[string]string

	// KeyFile optionally names a local public-key file to distribute
	// during publish-key. Empty means each agent publishes its own key.
	KeyFile string
}

// Builder constructs a phase from cluster-level parameters. Callers supply
// builders for any phases they want to override or extend.
type Builder func(p Params) Phase

// commandPhase is a phase backed by a single shell command template.
type commandPhase struct {
	name    string
	command string
	runner  Runner
}

func (c *commandPhase) Name() string { return c.name }

func (c *commandPhase) Apply(ctx context.Context, target Target) error {
	if err := c.runner.Run(ctx, target, c.command); err != nil {
		return fmt.Errorf("phase %s on %s: %w", c.name, target.Host, err)
	}
	return nil
}

// NewCommandPhase creates a phase that runs one command through the runner.
func NewCommandPhase(name, command string, runner Runner) Phase {
	return &commandPhase{name: name, command: command, runner: runner}
}

// funcPhase adapts a bare function to the Phase interface, mainly for tests
// and embedded callers.
type funcPhase struct {
	name string
	fn   func(ctx context.Context, target Target) error
}

func (f *funcPhase) Name() string { return f.name }

func (f *funcPhase) Apply(ctx context.Context, target Target) error {
	return f.fn(ctx, target)
}

// NewFuncPhase wraps a function as a named phase.
func NewFuncPhase(name string, fn func(ctx context.Context, target Target) error) Phase {
	return &funcPhase{name: name, fn: fn}
}

// publishedKeyPath is where publish-key places an operator-supplied public
// key on each host.
const publishedKeyPath = "/etc/topoplan/cluster.pub"

// uploadPhase pushes a local file to the target, then runs one command.
// The upload must succeed before the command runs.
type uploadPhase struct {
	name       string
	localPath  string
	remotePath string
	mode       os.FileMode
	command    string
	runner     Runner
}

func (u *uploadPhase) Name() string { return u.name }

func (u *uploadPhase) Apply(ctx context.Context, target Target) error {
	uploader, ok := u.runner.(Uploader)
	if !ok {
		return fmt.Errorf("phase %s on %s: runner cannot upload files", u.name, target.Host)
	}
	if err := uploader.Upload(ctx, target, u.localPath, u.remotePath, u.mode); err != nil {
		return fmt.Errorf("phase %s on %s: %w", u.name, target.Host, err)
	}
	if err := u.runner.Run(ctx, target, u.command); err != nil {
		return fmt.Errorf("phase %s on %s: %w", u.name, target.Host, err)
	}
	return nil
}

// NewUploadPhase creates a phase that pushes a local file to the target and
// then runs one command through the runner. The runner must also implement
// Uploader.
func NewUploadPhase(name, localPath, remotePath string, mode os.FileMode, command string, runner Runner) Phase {
	return &uploadPhase{
		name:       name,
		localPath:  localPath,
		remotePath: remotePath,
		mode:       mode,
		command:    command,
		runner:     runner,
	}
}

// Builtins returns the reference builder table covering every phase name the
// default catalog knows. The command text parameterizes on Params; the
// contract is only that each builder yields an opaque executable unit.
func Builtins(runner Runner) map[string]Builder {
	return map[string]Builder{
		Install: func(p Params) Phase {
			return NewCommandPhase(Install, "topoplan-agent install "+renderProps(p.Properties), runner)
		},
		Configure: func(p Params) Phase {
			cmd := fmt.Sprintf("topoplan-agent configure --ip-mode=%s --coordinator=%s --storage-root=%s %s",
				p.IPMode, p.CoordinatorTag, p.StorageTag, renderProps(p.Properties))
			return NewCommandPhase(Configure, cmd, runner)
		},
		PublishKey: func(p Params) Phase {
			if p.KeyFile == "" {
				return NewCommandPhase(PublishKey, "topoplan-agent publish-key", runner)
			}
			cmd := fmt.Sprintf("topoplan-agent publish-key --key-file=%s", publishedKeyPath)
			return NewUploadPhase(PublishKey, p.KeyFile, publishedKeyPath, 0o600, cmd, runner)
		},
		AuthorizeCoordinator: func(p Params) Phase {
			cmd := fmt.Sprintf("topoplan-agent authorize --coordinator=%s", p.CoordinatorTag)
			return NewCommandPhase(AuthorizeCoordinator, cmd, runner)
		},
		StartCoordinator: func(p Params) Phase {
			return NewCommandPhase(StartCoordinator, "topoplan-agent start coordinator", runner)
		},
		StartStorage: func(p Params) Phase {
			return NewCommandPhase(StartStorage, "topoplan-agent start storage", runner)
		},
		StartJobControl: func(p Params) Phase {
			return NewCommandPhase(StartJobControl, "topoplan-agent start jobcontrol", runner)
		},
		StartWorker: func(p Params) Phase {
			return NewCommandPhase(StartWorker, "topoplan-agent start worker", runner)
		},
	}
}

// renderProps flattens shared properties into stable --set flags.
func renderProps(props map[string]string) string {
	if len(props) == 0 {
		return ""
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := ""
	for i, k := range keys {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("--set %s=%s", k, props[k])
	}
	return out
}
