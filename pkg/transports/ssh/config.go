package ssh

import (
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// AuthMethod selects how the client authenticates.
type AuthMethod string

const (
	// AuthMethodKey uses private key authentication.
	AuthMethodKey AuthMethod = "key"

	// AuthMethodPassword uses password authentication.
	AuthMethodPassword AuthMethod = "password"

	// AuthMethodAgent uses the local SSH agent.
	AuthMethodAgent AuthMethod = "agent"
)

// Config holds the connection settings for one phase-execution target.
type Config struct {
	// Host is the remote hostname or IP address.
	Host string

	// Port is the SSH port. Defaults to 22.
	Port int

	// User is the SSH login user. Defaults to "root".
	User string

	// AuthMethod selects the authentication method. Defaults to key auth
	// when PrivateKeyPath is set, agent otherwise.
	AuthMethod AuthMethod

	// PrivateKeyPath is the private key file for key auth.
	PrivateKeyPath string

	// PrivateKeyPassphrase decrypts an encrypted private key.
	PrivateKeyPassphrase string

	// Password is the password for password auth.
	Password string

	// KnownHostsPath verifies host keys against a known_hosts file. When
	// empty, host keys are not verified; acceptable for lab fleets only.
	KnownHostsPath string

	// ConnectTimeout bounds connection establishment. Defaults to 30s.
	ConnectTimeout time.Duration

	// CommandTimeout bounds a single phase command. Defaults to 10m;
	// configuration phases can be slow.
	CommandTimeout time.Duration
}

// ApplyDefaults fills unset fields with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 22
	}
	if c.User == "" {
		c.User = "root"
	}
	if c.AuthMethod == "" {
		if c.PrivateKeyPath != "" {
			c.AuthMethod = AuthMethodKey
		} else {
			c.AuthMethod = AuthMethodAgent
		}
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = 10 * time.Minute
	}
}

// Validate checks the configuration for usability.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	switch c.AuthMethod {
	case AuthMethodKey:
		if c.PrivateKeyPath == "" {
			return fmt.Errorf("key auth requires a private key path")
		}
	case AuthMethodPassword:
		if c.Password == "" {
			return fmt.Errorf("password auth requires a password")
		}
	case AuthMethodAgent:
		if os.Getenv("SSH_AUTH_SOCK") == "" {
			return fmt.Errorf("agent auth requires SSH_AUTH_SOCK")
		}
	default:
		return fmt.Errorf("unknown auth method %q", c.AuthMethod)
	}
	return nil
}

// Address returns the host:port dial target.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

// clientConfig builds the x/crypto client configuration.
func (c *Config) clientConfig() (*ssh.ClientConfig, error) {
	auth, err := c.authMethods()
	if err != nil {
		return nil, err
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec // opt-in via empty KnownHostsPath
	if c.KnownHostsPath != "" {
		hostKeyCallback, err = knownhosts.New(c.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.ConnectTimeout,
	}, nil
}

func (c *Config) authMethods() ([]ssh.AuthMethod, error) {
	switch c.AuthMethod {
	case AuthMethodKey:
		key, err := os.ReadFile(c.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		var signer ssh.Signer
		if c.PrivateKeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(c.PrivateKeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(key)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil

	case AuthMethodPassword:
		return []ssh.AuthMethod{ssh.Password(c.Password)}, nil

	case AuthMethodAgent:
		sock, err := net.Dial("unix", os.Getenv("SSH_AUTH_SOCK"))
		if err != nil {
			return nil, fmt.Errorf("failed to reach ssh agent: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeysCallback(agent.NewClient(sock).Signers)}, nil

	default:
		return nil, fmt.Errorf("unknown auth method %q", c.AuthMethod)
	}
}
