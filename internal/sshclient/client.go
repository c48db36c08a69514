// Package sshclient implements the Remote Shell Client (C2): a control
// connection to a tunnel's remote host, used only to introspect network
// topology (routing table, interface addresses) and to recover from
// remote-side port conflicts by killing stray SSH sessions.
//
// This is a distinct concern from the supervised tunnel process itself
// (spawned locally via the system ssh/autossh binary, see internal/registry)
// — the Client here opens its own SSH protocol session to run short,
// read-only diagnostic commands (and, rarely, "killall sshd").
package sshclient

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	defaultTimeout = 15 * time.Second
	maxRetries     = 3
)

// HostKeyPolicy controls how the Client verifies the remote host key.
type HostKeyPolicy int

const (
	// HostKeyStrict verifies against the user's known_hosts file.
	HostKeyStrict HostKeyPolicy = iota
	// HostKeyInsecure accepts any host key. Must be explicitly requested.
	HostKeyInsecure
)

// Config describes how to reach and authenticate to the remote host.
type Config struct {
	Host       string
	Port       int
	User       string
	KeyPath    string
	Passphrase string
	Password   string
	Timeout    time.Duration
	HostKeys   HostKeyPolicy
}

// Client is a lazily-connected SSH control client for one remote host. It
// reconnects transparently on transient failure and retries up to
// maxRetries times per call.
type Client struct {
	cfg Config

	client *ssh.Client
}

// New constructs a Client. The underlying connection is established lazily
// on first use.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{cfg: cfg}
}

func (c *Client) connect() error {
	auth, err := c.authMethods()
	if err != nil {
		return fmt.Errorf("build auth methods: %w", err)
	}

	hostKeyCallback, err := c.hostKeyCallback()
	if err != nil {
		return fmt.Errorf("build host key callback: %w", err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            c.cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.cfg.Timeout,
	}

	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	client, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	if c.client != nil {
		_ = c.client.Close()
	}
	c.client = client
	return nil
}

func (c *Client) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if c.cfg.KeyPath != "" {
		key, err := os.ReadFile(c.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key %s: %w", c.cfg.KeyPath, err)
		}

		var signer ssh.Signer
		if c.cfg.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(c.cfg.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(key)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if c.cfg.Password != "" {
		methods = append(methods, ssh.Password(c.cfg.Password))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no authentication method configured")
	}

	return methods, nil
}

func (c *Client) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.cfg.HostKeys == HostKeyInsecure {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return knownhosts.New(home + "/.ssh/known_hosts")
}

// Exec runs a command on the remote host within the configured timeout
// (15 s by default), logs any stderr at warning level and also returns it as
// warn, and returns stdout trimmed of trailing whitespace.
func (c *Client) Exec(ctx context.Context, cmd string) (stdout string, warn string, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	stdout, warn, err = c.execWithRetries(ctx, cmd, maxRetries)
	if strings.TrimSpace(warn) != "" {
		slog.Warn("remote command wrote to stderr", "cmd", cmd, "stderr", warn)
	}
	return stdout, warn, err
}

func (c *Client) execWithRetries(ctx context.Context, cmd string, retriesLeft int) (string, string, error) {
	if c.client == nil {
		if err := c.connect(); err != nil {
			return "", "", &remoteExecError{cmd: cmd, err: err}
		}
	}

	session, err := c.client.NewSession()
	if err != nil {
		if retriesLeft <= 0 {
			return "", "", &remoteExecError{cmd: cmd, err: err}
		}
		if rerr := c.connect(); rerr != nil {
			return "", "", &remoteExecError{cmd: cmd, err: rerr}
		}
		return c.execWithRetries(ctx, cmd, retriesLeft-1)
	}
	defer session.Close()

	var stdoutBuf, stderrBuf strings.Builder
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return "", "", &remoteExecError{cmd: cmd, err: ctx.Err()}
	case err := <-done:
		if err != nil {
			if retriesLeft <= 0 {
				return "", "", &remoteExecError{cmd: cmd, err: err}
			}
			if _, ok := err.(*ssh.ExitError); !ok {
				// Transport-level failure: reconnect and retry.
				time.Sleep(time.Second)
				if rerr := c.connect(); rerr != nil {
					return "", "", &remoteExecError{cmd: cmd, err: rerr}
				}
				return c.execWithRetries(ctx, cmd, retriesLeft-1)
			}
		}
	}

	return strings.TrimRight(stdoutBuf.String(), " \t\r\n"), stderrBuf.String(), nil
}

type remoteExecError struct {
	cmd string
	err error
}

func (e *remoteExecError) Error() string {
	return fmt.Sprintf("remote exec failed after retries (%s): %v", e.cmd, e.err)
}
func (e *remoteExecError) Unwrap() error { return e.err }

// GetInterfaceIP returns the primary IPv4 address bound to a named remote
// interface.
func (c *Client) GetInterfaceIP(ctx context.Context, name string) (string, error) {
	cmd := fmt.Sprintf("ip addr show |grep %s | grep -E '^\\s*inet' | grep -m1 global | awk '{ print $2 }' | sed 's|/.*||'", name)
	out, _, err := c.Exec(ctx, cmd)
	return out, err
}

// GetDockerHostIP returns the default gateway as seen from inside the
// remote host (typically the docker0 bridge address when the tunnel
// terminates in a container).
func (c *Client) GetDockerHostIP(ctx context.Context) (string, error) {
	out, _, err := c.Exec(ctx, "ip route|awk '/default/ { print $3 }'")
	return out, err
}

// GetRouteGateway runs RouteGatewayCommand on the remote host and returns
// the gateway interface's own IP address.
func (c *Client) GetRouteGateway(ctx context.Context) (string, error) {
	out, _, err := c.Exec(ctx, RouteGatewayCommand)
	return out, err
}

// RouteGatewayCommand finds the gateway interface's own IP address from the
// routing table. Shared verbatim between the local and remote resolvers: C8
// runs it locally via os/exec for "local_gw", and this Client runs the same
// string over SSH for "remote_interface_gw".
const RouteGatewayCommand = `ip route| grep $(ip route |grep default | awk '{ print $5 }') | grep -v "default" | grep "src" | awk '{ for (i = 1; i < NF; i++) if ($i == "src") { print $(i+1); exit } }'`

// KillAllSessions attempts to terminate all remote SSH daemons
// ("killall sshd || true"), then reconnects so subsequent calls succeed
// against the fresh daemon.
func (c *Client) KillAllSessions(ctx context.Context) error {
	if _, _, err := c.Exec(ctx, "killall sshd || true"); err != nil {
		return err
	}
	return c.connect()
}

// Close releases the underlying SSH connection, if any.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnsureSSHBinary verifies that "ssh" is available on PATH, the binary the
// Process Registry shells out to for every supervised tunnel.
func EnsureSSHBinary() error {
	if _, err := exec.LookPath("ssh"); err != nil {
		return fmt.Errorf("ssh binary not found on PATH: %w", err)
	}
	return nil
}

// EnsureAutosshBinary verifies that "autossh" is available on PATH, needed
// only by forwardings with use_autossh enabled.
func EnsureAutosshBinary() error {
	if _, err := exec.LookPath("autossh"); err != nil {
		return fmt.Errorf("autossh binary not found on PATH: %w", err)
	}
	return nil
}
