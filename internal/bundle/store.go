// Package bundle implements named, saved groups of host config directories
// an operator switches between (e.g. "staging", "production"), persisted as
// YAML under the app config directory.
package bundle

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/riotkit-org/tunman-go/internal/appconfig"
)

// Definition is a named set of configuration directories, each one a
// separate tree of conf.d host files.
type Definition struct {
	Name       string   `yaml:"name" json:"name"`
	ConfigDirs []string `yaml:"config_dirs" json:"config_dirs"`
}

type fileModel struct {
	Bundles map[string]Definition `yaml:"bundles"`
}

func filePath() (string, error) {
	dir, err := appconfig.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "bundles.yaml"), nil
}

// LoadAll returns all bundles sorted by name.
func LoadAll() ([]Definition, error) {
	fm, err := loadFile()
	if err != nil {
		return nil, err
	}
	out := make([]Definition, 0, len(fm.Bundles))
	for _, b := range fm.Bundles {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get fetches one bundle by name.
func Get(name string) (Definition, error) {
	fm, err := loadFile()
	if err != nil {
		return Definition{}, err
	}
	b, ok := fm.Bundles[name]
	if !ok {
		return Definition{}, fmt.Errorf("bundle not found: %s", name)
	}
	return b, nil
}

// Create adds or replaces a bundle definition.
func Create(name string, configDirs []string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("bundle name cannot be empty")
	}
	if len(configDirs) == 0 {
		return fmt.Errorf("bundle must include at least one config directory")
	}
	for i := range configDirs {
		configDirs[i] = strings.TrimSpace(configDirs[i])
		if configDirs[i] == "" {
			return fmt.Errorf("bundle entry %d has an empty config directory", i)
		}
	}

	fm, err := loadFile()
	if err != nil {
		return err
	}
	fm.Bundles[name] = Definition{Name: name, ConfigDirs: configDirs}
	return saveFile(fm)
}

// Delete removes a bundle by name.
func Delete(name string) error {
	fm, err := loadFile()
	if err != nil {
		return err
	}
	if _, ok := fm.Bundles[name]; !ok {
		return fmt.Errorf("bundle not found: %s", name)
	}
	delete(fm.Bundles, name)
	return saveFile(fm)
}

func loadFile() (fileModel, error) {
	path, err := filePath()
	if err != nil {
		return fileModel{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileModel{Bundles: map[string]Definition{}}, nil
		}
		return fileModel{}, err
	}
	var fm fileModel
	if err := yaml.Unmarshal(b, &fm); err != nil {
		return fileModel{}, fmt.Errorf("parse bundles: %w", err)
	}
	if fm.Bundles == nil {
		fm.Bundles = map[string]Definition{}
	}
	return fm, nil
}

func saveFile(fm fileModel) error {
	path, err := filePath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	b, err := yaml.Marshal(fm)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
