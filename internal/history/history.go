// Package history records a bounded recent-invocations log: which CLI
// action ran against which config directory, and when, for operator audit
// trail. Distinct from the per-tunnel internal/events log.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/riotkit-org/tunman-go/internal/appconfig"
)

// Record is one past CLI invocation.
type Record struct {
	Action    string    `json:"action"`
	ConfigDir string    `json:"config_dir"`
	Timestamp time.Time `json:"timestamp"`
}

type store struct {
	Records []Record `json:"records"`
}

const maxRecords = 200

func filePath() (string, error) {
	dir, err := appconfig.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.json"), nil
}

// Touch records one CLI invocation, trimming the log to the most recent
// maxRecords entries.
func Touch(action, configDir string) error {
	st, err := load()
	if err != nil {
		return err
	}
	st.Records = append(st.Records, Record{Action: action, ConfigDir: configDir, Timestamp: time.Now()})
	if len(st.Records) > maxRecords {
		st.Records = st.Records[len(st.Records)-maxRecords:]
	}
	return save(st)
}

// Recent returns the most recent invocations, newest first, capped at
// limit (0 means no limit).
func Recent(limit int) ([]Record, error) {
	st, err := load()
	if err != nil {
		return nil, err
	}
	out := append([]Record(nil), st.Records...)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func load() (store, error) {
	path, err := filePath()
	if err != nil {
		return store{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store{}, nil
		}
		return store{}, err
	}
	var st store
	if err := json.Unmarshal(b, &st); err != nil {
		return store{}, nil
	}
	return st, nil
}

func save(st store) error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
