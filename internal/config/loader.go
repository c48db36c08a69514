// Package config implements the Configuration Loader (C9): it scans a
// directory of per-host YAML files and compiles each into a model.Host,
// the way the original tunnel supervisor's factory scanned a directory of
// Python host-definition modules.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/riotkit-org/tunman-go/internal/model"
)

const (
	defaultRetries                       = 10
	defaultHealthCheckConnectTimeoutSecs = 60
	defaultWarmUpTimeSecs                = 5
	defaultTimeBeforeRestartAtInitSecs   = 10
	defaultWaitAfterRetriesSecs          = 600
	defaultIntervalSecs                  = 300
	defaultWaitBeforeRestartSecs         = 10
)

type yamlRemote struct {
	User          string `yaml:"user"`
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	Key           string `yaml:"key"`
	KeyPassphrase string `yaml:"key_passphrase"`
	Password      string `yaml:"password"`
}

type yamlPort struct {
	Gateway bool   `yaml:"gateway"`
	Host    string `yaml:"host"`
	Port    string `yaml:"port"`
}

type yamlValidate struct {
	Method                string `yaml:"method"`
	Interval              int    `yaml:"interval"`
	WaitTimeBeforeRestart int    `yaml:"wait_time_before_restart"`
	KillExistingOnFailure bool   `yaml:"kill_existing_tunnel_on_failure"`
	NotifyURL             string `yaml:"notify_url"`
}

type yamlForwarding struct {
	Local                         yamlPort     `yaml:"local"`
	Remote                        yamlPort     `yaml:"remote"`
	Validate                      yamlValidate `yaml:"validate"`
	Mode                          string       `yaml:"mode"`
	Retries                       int          `yaml:"retries"`
	UseAutossh                    bool         `yaml:"use_autossh"`
	HealthCheckConnectTimeoutSecs int          `yaml:"health_check_connect_timeout"`
	WarmUpTimeSecs                int          `yaml:"warm_up_time"`
	TimeBeforeRestartAtInitSecs   int          `yaml:"time_before_restart_at_initialization"`
	WaitAfterRetriesFailedSecs    int          `yaml:"wait_time_after_all_retries_failed"`
}

type yamlHost struct {
	Remote                        yamlRemote       `yaml:"remote"`
	SSHOpts                       string           `yaml:"ssh_opts"`
	RestartAllOnForwardingFailure bool             `yaml:"restart_all_tunnels_on_forwarding_failure"`
	Forward                       []yamlForwarding `yaml:"forward"`
}

// Loader scans <configDir>/conf.d/*.yaml for host definitions.
type Loader struct {
	dir           string
	postProcessor model.VariablesPostProcessor
}

// NewLoader constructs a Loader rooted at <configDir>/conf.d.
func NewLoader(configDir string) *Loader {
	return &Loader{dir: filepath.Join(configDir, "conf.d")}
}

// WithPostProcessor registers a hook applied to every loaded Host's resolved
// variable map, replacing the Python original's `vars_post_processor`
// callable (YAML cannot express a callback, so it is wired in code).
func (l *Loader) WithPostProcessor(fn model.VariablesPostProcessor) *Loader {
	l.postProcessor = fn
	return l
}

// ProvideAllConfigurations implements app.HostProvider.
func (l *Loader) ProvideAllConfigurations() ([]*model.Host, error) {
	slog.Debug("looking up configuration", "path", l.dir)

	info, err := os.Stat(l.dir)
	if err != nil {
		return nil, fmt.Errorf("config directory %q: %w", l.dir, err)
	}
	if !info.IsDir() {
		return nil, &model.ConfigurationError{Path: l.dir, Err: fmt.Errorf("not a directory")}
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("scan config directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	hosts := make([]*model.Host, 0, len(names))
	for _, name := range names {
		path := filepath.Join(l.dir, name)
		host, err := l.parseFile(path)
		if err != nil {
			return nil, &model.ConfigurationError{Path: path, Err: err}
		}
		hosts = append(hosts, host)
	}
	return hosts, nil
}

func (l *Loader) parseFile(path string) (*model.Host, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw yamlHost
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	if raw.Remote.Host == "" {
		return nil, fmt.Errorf("remote.host is required")
	}
	if raw.Remote.User == "" {
		return nil, fmt.Errorf("remote.user is required")
	}

	host := &model.Host{
		RemoteUser:                 raw.Remote.User,
		RemoteHost:                 raw.Remote.Host,
		RemotePort:                 raw.Remote.Port,
		RemoteKey:                  raw.Remote.Key,
		RemotePassphrase:           raw.Remote.KeyPassphrase,
		RemotePassword:             raw.Remote.Password,
		SSHOpts:                    raw.SSHOpts,
		RestartAllOnForwardFailure: raw.RestartAllOnForwardingFailure,
		VariablesPostProcessor:     l.postProcessor,
	}
	if host.RemotePort == 0 {
		host.RemotePort = 22
	}

	host.Forward = make([]*model.Forwarding, 0, len(raw.Forward))
	for i, rf := range raw.Forward {
		fw, err := buildForwarding(rf, host)
		if err != nil {
			return nil, fmt.Errorf("forward[%d]: %w", i, err)
		}
		host.Forward = append(host.Forward, fw)
	}
	return host, nil
}

func buildForwarding(rf yamlForwarding, host *model.Host) (*model.Forwarding, error) {
	mode := model.Mode(rf.Mode)
	if mode != model.ModeLocal && mode != model.ModeRemote {
		return nil, fmt.Errorf("mode must be %q or %q, got %q", model.ModeLocal, model.ModeRemote, rf.Mode)
	}

	method := rf.Validate.Method
	if method == "" {
		method = model.MethodNone
	}

	return &model.Forwarding{
		Local:  model.PortDefinition{Gateway: rf.Local.Gateway, Host: rf.Local.Host, Port: rf.Local.Port},
		Remote: model.PortDefinition{Gateway: rf.Remote.Gateway, Host: rf.Remote.Host, Port: rf.Remote.Port},
		Validate: model.ValidationSpec{
			Kind:                  model.MethodBuiltIn,
			Method:                method,
			IntervalSeconds:       orDefault(rf.Validate.Interval, defaultIntervalSecs),
			WaitBeforeRestartSecs: orDefault(rf.Validate.WaitTimeBeforeRestart, defaultWaitBeforeRestartSecs),
			KillExistingOnFailure: rf.Validate.KillExistingOnFailure,
			NotifyURL:             rf.Validate.NotifyURL,
		},
		Mode:                          mode,
		Retries:                       orDefault(rf.Retries, defaultRetries),
		UseAutossh:                    rf.UseAutossh,
		HealthCheckConnectTimeout:     time.Duration(orDefault(rf.HealthCheckConnectTimeoutSecs, defaultHealthCheckConnectTimeoutSecs)) * time.Second,
		WarmUpTime:                    time.Duration(orDefault(rf.WarmUpTimeSecs, defaultWarmUpTimeSecs)) * time.Second,
		TimeBeforeRestartAtInit:       time.Duration(orDefault(rf.TimeBeforeRestartAtInitSecs, defaultTimeBeforeRestartAtInitSecs)) * time.Second,
		WaitTimeAfterAllRetriesFailed: time.Duration(orDefault(rf.WaitAfterRetriesFailedSecs, defaultWaitAfterRetriesSecs)) * time.Second,
		Host:                          host,
	}, nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
