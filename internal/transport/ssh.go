package transport

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/flotilla-dev/flotilla/internal/retry"
)

const (
	defaultPort        = 22
	defaultUser        = "root"
	defaultDialTimeout = 10 * time.Second
	defaultMaxRetries  = 5
	defaultRetryDelay  = 2 * time.Second
	defaultMaxDelay    = 10 * time.Second
)

// SSHConfig holds SSH runner configuration.
type SSHConfig struct {
	Host       string
	Port       int
	User       string
	PrivateKey []byte

	// DialTimeout is the timeout for establishing the TCP connection.
	DialTimeout time.Duration

	// MaxRetries is the maximum number of connection retry attempts.
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts.
	RetryDelay time.Duration

	// HostKeyCallback handles host key verification. If nil,
	// ssh.InsecureIgnoreHostKey() is used; provide proper verification for
	// fleets with persistent, known hosts.
	HostKeyCallback ssh.HostKeyCallback
}

// SSHRunner executes commands on a remote host over SSH. The private key is
// parsed once at construction; Dial establishes the connection with retry,
// and each Run opens a fresh session on it.
type SSHRunner struct {
	config *SSHConfig
	signer ssh.Signer
	client *ssh.Client
}

// NewSSHRunner validates the configuration and parses the private key.
func NewSSHRunner(cfg *SSHConfig) (*SSHRunner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("config host cannot be empty")
	}
	if len(cfg.PrivateKey) == 0 {
		return nil, fmt.Errorf("config private key cannot be empty")
	}

	configCopy := *cfg
	if configCopy.Port == 0 {
		configCopy.Port = defaultPort
	}
	if configCopy.User == "" {
		configCopy.User = defaultUser
	}
	if configCopy.DialTimeout == 0 {
		configCopy.DialTimeout = defaultDialTimeout
	}
	if configCopy.MaxRetries == 0 {
		configCopy.MaxRetries = defaultMaxRetries
	}
	if configCopy.RetryDelay == 0 {
		configCopy.RetryDelay = defaultRetryDelay
	}
	if configCopy.HostKeyCallback == nil {
		configCopy.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec
	}

	signer, err := ssh.ParsePrivateKey(configCopy.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &SSHRunner{config: &configCopy, signer: signer}, nil
}

// Dial establishes the SSH connection with exponential backoff retry.
func (r *SSHRunner) Dial(ctx context.Context) error {
	config := &ssh.ClientConfig{
		User: r.config.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(r.signer),
		},
		HostKeyCallback: r.config.HostKeyCallback,
		Timeout:         r.config.DialTimeout,
	}

	addr := fmt.Sprintf("%s:%d", r.config.Host, r.config.Port)
	var client *ssh.Client

	policy := retry.Policy{
		Attempts: r.config.MaxRetries + 1,
		Delay:    r.config.RetryDelay,
		MaxDelay: defaultMaxDelay,
	}
	err := retry.Do(ctx, policy, func() error {
		var dialErr error
		client, dialErr = ssh.Dial("tcp", addr, config)
		return dialErr
	})

	if err != nil {
		return fmt.Errorf("failed to establish SSH connection to %s: %w", addr, err)
	}

	r.client = client
	return nil
}

// Run executes a command in a fresh session and returns its combined output.
func (r *SSHRunner) Run(ctx context.Context, command string) (string, error) {
	if r.client == nil {
		return "", fmt.Errorf("not connected to %s", r.config.Host)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	session, err := r.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create SSH session on %s: %w", r.config.Host, err)
	}
	defer func() { _ = session.Close() }()

	type runResult struct {
		output []byte
		err    error
	}
	done := make(chan runResult, 1)
	go func() {
		output, runErr := session.CombinedOutput(command)
		done <- runResult{output: output, err: runErr}
	}()

	select {
	case <-ctx.Done():
		// The remote command keeps running; closing the session is the best
		// we can do without a remote-side kill.
		_ = session.Close()
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			return string(res.output), fmt.Errorf("command failed on %s: %w", r.config.Host, res.err)
		}
		return string(res.output), nil
	}
}

// Close tears down the underlying connection.
func (r *SSHRunner) Close() error {
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

var _ Runner = (*SSHRunner)(nil)

// NewSSHDialer builds a Dialer for fleet hosts sharing a user and key file.
// Per-host user/port come from the address via the supplied lookup.
func NewSSHDialer(user, keyFile string, lookup func(address string) (port int, hostUser, hostKeyFile string)) Dialer {
	return func(ctx context.Context, address string) (Runner, error) {
		port := 0
		effectiveUser := user
		effectiveKey := keyFile
		if lookup != nil {
			p, u, k := lookup(address)
			port = p
			if u != "" {
				effectiveUser = u
			}
			if k != "" {
				effectiveKey = k
			}
		}

		key, err := os.ReadFile(effectiveKey)
		if err != nil {
			return nil, fmt.Errorf("read private key %s: %w", effectiveKey, err)
		}

		runner, err := NewSSHRunner(&SSHConfig{
			Host:       address,
			Port:       port,
			User:       effectiveUser,
			PrivateKey: key,
		})
		if err != nil {
			return nil, err
		}

		if err := runner.Dial(ctx); err != nil {
			return nil, err
		}
		return runner, nil
	}
}
