package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/riotkit-org/tunman-go/internal/model"
)

func writeConfD(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	confd := filepath.Join(dir, "conf.d")
	if err := os.MkdirAll(confd, 0o755); err != nil {
		t.Fatalf("failed to create conf.d: %v", err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(confd, name), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return dir
}

const minimalHostYAML = `
remote:
  user: deploy
  host: bastion.example.test
  port: 2222
forward:
  - local:
      port: "8080"
    remote:
      host: "{{ remote_gw }}"
      port: "80"
    mode: local
`

func TestProvideAllConfigurationsParsesMinimalHost(t *testing.T) {
	dir := writeConfD(t, map[string]string{"bastion.yaml": minimalHostYAML})
	l := NewLoader(dir)

	hosts, err := l.ProvideAllConfigurations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hosts) != 1 {
		t.Fatalf("expected 1 host, got %d", len(hosts))
	}

	h := hosts[0]
	if h.RemoteUser != "deploy" || h.RemoteHost != "bastion.example.test" || h.RemotePort != 2222 {
		t.Fatalf("unexpected host fields: %+v", h)
	}
	if len(h.Forward) != 1 {
		t.Fatalf("expected 1 forwarding, got %d", len(h.Forward))
	}

	fw := h.Forward[0]
	if fw.Mode != model.ModeLocal {
		t.Fatalf("mode = %q, want local", fw.Mode)
	}
	if fw.Local.Port != "8080" {
		t.Fatalf("local port = %q, want 8080", fw.Local.Port)
	}
	if fw.Host != h {
		t.Fatal("expected forwarding to back-reference its host")
	}
}

func TestProvideAllConfigurationsAppliesDefaults(t *testing.T) {
	dir := writeConfD(t, map[string]string{"bastion.yaml": minimalHostYAML})
	hosts, err := NewLoader(dir).ProvideAllConfigurations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fw := hosts[0].Forward[0]
	if fw.Retries != defaultRetries {
		t.Fatalf("retries = %d, want default %d", fw.Retries, defaultRetries)
	}
	if fw.WarmUpTime != defaultWarmUpTimeSecs*time.Second {
		t.Fatalf("warm up = %s, want %ds", fw.WarmUpTime, defaultWarmUpTimeSecs)
	}
	if fw.Validate.Method != model.MethodNone {
		t.Fatalf("validate method = %q, want none", fw.Validate.Method)
	}
	if fw.Validate.IntervalSeconds != defaultIntervalSecs {
		t.Fatalf("interval = %d, want default %d", fw.Validate.IntervalSeconds, defaultIntervalSecs)
	}
}

func TestProvideAllConfigurationsRejectsMissingRemoteHost(t *testing.T) {
	dir := writeConfD(t, map[string]string{"broken.yaml": "remote:\n  user: deploy\n"})
	if _, err := NewLoader(dir).ProvideAllConfigurations(); err == nil {
		t.Fatal("expected an error for a host missing remote.host")
	}
}

func TestProvideAllConfigurationsRejectsInvalidMode(t *testing.T) {
	yamlContent := `
remote:
  user: deploy
  host: bastion.example.test
forward:
  - local: {port: "8080"}
    remote: {host: "x", port: "80"}
    mode: sideways
`
	dir := writeConfD(t, map[string]string{"broken.yaml": yamlContent})
	if _, err := NewLoader(dir).ProvideAllConfigurations(); err == nil {
		t.Fatal("expected an error for an invalid forward mode")
	}
}

func TestProvideAllConfigurationsErrorsOnMissingDirectory(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "does-not-exist"))
	if _, err := l.ProvideAllConfigurations(); err == nil {
		t.Fatal("expected an error for a missing config directory")
	}
}

func TestProvideAllConfigurationsIgnoresNonYAMLFiles(t *testing.T) {
	dir := writeConfD(t, map[string]string{
		"bastion.yaml": minimalHostYAML,
		"README.md":    "not a host definition",
	})
	hosts, err := NewLoader(dir).ProvideAllConfigurations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hosts) != 1 {
		t.Fatalf("expected non-yaml files to be ignored, got %d hosts", len(hosts))
	}
}

func TestWithPostProcessorIsWiredIntoHost(t *testing.T) {
	dir := writeConfD(t, map[string]string{"bastion.yaml": minimalHostYAML})
	called := false
	l := NewLoader(dir).WithPostProcessor(func(vars map[string]string, host *model.Host) map[string]string {
		called = true
		return vars
	})

	hosts, err := l.ProvideAllConfigurations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hosts[0].PostProcessVariables(map[string]string{})
	if !called {
		t.Fatal("expected the registered post processor to be invoked")
	}
}
