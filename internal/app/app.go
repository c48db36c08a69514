// Package app implements the Application Root (C8): it wires the
// configuration, the per-host Remote Shell Client and Variable Resolver,
// and the Tunnel Supervisor together, and exposes the three entrypoints the
// CLI dispatches to.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/riotkit-org/tunman-go/internal/model"
	"github.com/riotkit-org/tunman-go/internal/registry"
	"github.com/riotkit-org/tunman-go/internal/sshclient"
	"github.com/riotkit-org/tunman-go/internal/supervisor"
	"github.com/riotkit-org/tunman-go/internal/template"
)

// HostProvider supplies every configured Host (the Configuration Loader,
// C9, is the production implementation).
type HostProvider interface {
	ProvideAllConfigurations() ([]*model.Host, error)
}

// Config bundles the knobs App needs beyond the set of hosts themselves.
type Config struct {
	HostKeyPolicy sshclient.HostKeyPolicy
	Notifier      supervisor.Notifier
}

// App is the Application Root: it owns the Process Registry and the
// per-Forwarding Supervisor goroutines, and the remote control connections
// used for topology lookups and error recovery.
type App struct {
	hosts HostProvider
	cfg   Config

	reg  *registry.Registry
	supv *supervisor.Supervisor

	mu      sync.Mutex
	clients map[*model.Host]*sshclient.Client
}

// New constructs an App. Nothing is connected or spawned until Run,
// SendPublicKey or AddToKnownHosts is called.
func New(hosts HostProvider, cfg Config) *App {
	reg := registry.New()
	return &App{
		hosts:   hosts,
		cfg:     cfg,
		reg:     reg,
		supv:    supervisor.New(reg, cfg.Notifier),
		clients: make(map[*model.Host]*sshclient.Client),
	}
}

// Supervisor exposes the underlying Supervisor for stats/HTTP reporting.
func (a *App) Supervisor() *supervisor.Supervisor { return a.supv }

// Run spawns one supervised goroutine per configured Forwarding, staggered
// by 500ms the way the original spaces out thread starts, then blocks until
// ctx is cancelled, at which point it shuts every tunnel down.
func (a *App) Run(ctx context.Context) error {
	hosts, err := a.hosts.ProvideAllConfigurations()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	for _, host := range hosts {
		a.spawnForHost(ctx, host)
	}

	<-ctx.Done()
	slog.Debug("closing the application")
	a.supv.Shutdown(context.Background())
	return nil
}

func (a *App) spawnForHost(ctx context.Context, host *model.Host) {
	slog.Info("spawning goroutines for host", "host", host.Ident())

	resolver := a.resolverFor(host)
	remote := a.clientFor(host)

	for _, fw := range host.Forward {
		fw.Host = host
		go a.supv.SpawnTunnel(ctx, fw, remote, resolver.Resolve)
		time.Sleep(500 * time.Millisecond)
	}
}

// clientFor returns the shared control client for host, creating it on
// first use.
func (a *App) clientFor(host *model.Host) *sshclient.Client {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.clients[host]; ok {
		return c
	}

	c := sshclient.New(sshclient.Config{
		Host:       host.RemoteHost,
		Port:       host.RemotePort,
		User:       host.RemoteUser,
		KeyPath:    host.RemoteKey,
		Passphrase: host.RemotePassphrase,
		Password:   host.RemotePassword,
		HostKeys:   a.cfg.HostKeyPolicy,
	})
	a.clients[host] = c
	return c
}

// resolverFor builds the lazy variable resolver (C3) for one host, binding
// each lazy token to the topology lookup the original tunnel supervisor
// performs for it.
func (a *App) resolverFor(host *model.Host) *template.Resolver {
	remote := a.clientFor(host)

	return template.NewResolver(template.Lookups{
		LocalGW: func() string { return localGateway() },

		RemoteGW: func() string {
			ips, err := net.LookupHost(host.RemoteHost)
			if err != nil || len(ips) == 0 {
				slog.Error("failed to resolve remote host", "host", host.RemoteHost, "error", err)
				return ""
			}
			return ips[0]
		},

		RemoteInterfaceGW: func() string {
			ip, err := remote.GetRouteGateway(context.Background())
			if err != nil {
				slog.Error("failed to resolve remote interface gateway", "error", err)
				return ""
			}
			return ip
		},

		RemoteDockerHost: func() string {
			ip, err := remote.GetDockerHostIP(context.Background())
			if err != nil {
				slog.Error("failed to resolve remote docker host ip", "error", err)
				return ""
			}
			return ip
		},

		RemoteDockerContainer: func() string {
			return remoteDockerContainerIP(remote)
		},

		RemoteInterface: func(name string) string {
			ip, err := remote.GetInterfaceIP(context.Background(), name)
			if err != nil {
				slog.Error("failed to resolve remote interface ip", "interface", name, "error", err)
				return ""
			}
			return ip
		},

		PostProcess: func(vars map[string]string) map[string]string {
			return host.PostProcessVariables(vars)
		},
	})
}

// localGateway runs the same gateway-lookup command used remotely, but
// locally via os/exec, for the eager "local_gw" token.
func localGateway() string {
	out, err := exec.Command("sh", "-c", sshclient.RouteGatewayCommand).Output()
	if err != nil {
		slog.Error("failed to resolve local gateway", "error", err)
		return ""
	}
	return strings.TrimSpace(string(out))
}

// remoteDockerContainerIP discovers the first non-loopback interface on the
// remote host, then resolves its address -- used when the tunnel terminates
// inside a container and the caller wants "the container's own IP" rather
// than a fixed interface name.
func remoteDockerContainerIP(remote *sshclient.Client) string {
	out, _, err := remote.Exec(context.Background(), "ls /sys/class/net/|grep -v lo|tail -n 1")
	if err != nil {
		slog.Error("failed to list remote network interfaces", "error", err)
		return ""
	}
	iface := strings.TrimSpace(out)
	if iface == "" {
		return ""
	}
	ip, err := remote.GetInterfaceIP(context.Background(), iface)
	if err != nil {
		slog.Error("failed to resolve remote docker container ip", "interface", iface, "error", err)
		return ""
	}
	return ip
}

// SendPublicKey runs ssh-copy-id against every configured host, letting the
// user type credentials interactively.
func (a *App) SendPublicKey() error {
	hosts, err := a.hosts.ProvideAllConfigurations()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	for _, host := range hosts {
		slog.Info("processing host, please enter credentials when asked", "host", host.Ident())
		cmd := host.CreateSSHConnectionString(false, false, "", "ssh-copy-id")
		if err := runInteractivePTY(cmd); err != nil {
			slog.Error("ssh-copy-id failed", "host", host.Ident(), "error", err)
		}
	}
	return nil
}

// AddToKnownHosts runs ssh-keyscan for every configured host not already
// present in ~/.ssh/known_hosts, appending its signature.
func (a *App) AddToKnownHosts(knownHostsPath string) error {
	hosts, err := a.hosts.ProvideAllConfigurations()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	content, err := readOrCreateKnownHosts(knownHostsPath)
	if err != nil {
		return err
	}

	for _, host := range hosts {
		if strings.Contains(content, host.RemoteHost) {
			slog.Info("host already present in known_hosts", "host", host.RemoteHost)
			continue
		}

		slog.Info("adding host to known_hosts", "host", host.Ident(), "path", knownHostsPath)
		cmd := host.CreateSSHKeyscanCommand("ssh-keyscan") + " >> " + knownHostsPath
		if err := runInteractive(cmd); err != nil {
			slog.Error("ssh-keyscan failed", "host", host.Ident(), "error", err)
		}
	}
	return nil
}

func runInteractive(shellCmd string) error {
	cmd := exec.Command("sh", "-c", shellCmd)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// runInteractivePTY runs shellCmd attached to a pseudo-terminal rather than
// the process's own stdio. ssh-copy-id needs a controlling terminal to
// prompt for the remote password without echoing it; plain stdio
// inheritance doesn't give it one when tunman itself isn't attached to a
// tty (e.g. invoked from another program).
func runInteractivePTY(shellCmd string) error {
	cmd := exec.Command("sh", "-c", shellCmd)
	f, err := pty.Start(cmd)
	if err != nil {
		return err
	}
	defer f.Close()

	go func() {
		_, _ = io.Copy(f, os.Stdin)
	}()
	_, _ = io.Copy(os.Stdout, f)

	return cmd.Wait()
}

// readOrCreateKnownHosts ensures path (and its parent directory) exists and
// returns its current content.
func readOrCreateKnownHosts(path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create ssh directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("open known_hosts: %w", err)
	}
	defer f.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read known_hosts: %w", err)
	}
	return string(b), nil
}
