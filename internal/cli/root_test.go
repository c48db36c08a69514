package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/riotkit-org/tunman-go/internal/bundle"
	"github.com/riotkit-org/tunman-go/internal/history"
)

const cliHostYAML = `
remote:
  user: deploy
  host: bastion.example.test
forward:
  - local: {host: "127.0.0.1", port: "9601"}
    remote: {host: "localhost", port: "80"}
    mode: local
`

func writeCLIConfD(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	confd := filepath.Join(dir, "conf.d")
	if err := os.MkdirAll(confd, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(confd, "api.yaml"), []byte(cliHostYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	var out bytes.Buffer
	cmd.SetOut(&out)

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	err := cmd.Execute()
	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.String(), err
}

func TestStatusTextOutput(t *testing.T) {
	dir := writeCLIConfD(t)
	out, err := runCLI(t, "status", "-c", dir)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "bastion.example.test") {
		t.Fatalf("expected host ident in output, got: %s", out)
	}
}

func TestStatusJSONOutput(t *testing.T) {
	dir := writeCLIConfD(t)
	out, err := runCLI(t, "status", "-c", dir, "--json")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var rows []map[string]any
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("json parse: %v; output=%s", err, out)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
}

func TestDoctorJSONOutput(t *testing.T) {
	dir := writeCLIConfD(t)
	out, err := runCLI(t, "doctor", "-c", dir, "--json")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var report map[string]any
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("json parse: %v; output=%s", err, out)
	}
	if _, ok := report["issues"]; !ok {
		t.Fatalf("expected issues key, got: %s", out)
	}
}

func TestBundleCreateListDelete(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"bundle", "create", "staging", "--dir", "/etc/tunman/staging"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("create: %v", err)
	}

	all, err := bundle.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Name != "staging" {
		t.Fatalf("expected one bundle named staging, got %+v", all)
	}

	cmd = NewRootCommand()
	cmd.SetArgs([]string{"bundle", "delete", "staging"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("delete: %v", err)
	}

	all, err = bundle.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Fatalf("expected bundle removed, got %+v", all)
	}
}

func TestSendPublicKeyCommandTouchesHistory(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"send-public-key", "-c", t.TempDir()})
	// No conf.d in the config dir, so Execute fails while loading hosts; the
	// action is recorded in history before that happens.
	_ = cmd.Execute()

	recs, err := history.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, r := range recs {
		if r.Action == "send-public-key" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected send-public-key to be recorded in history, got %+v", recs)
	}
}
