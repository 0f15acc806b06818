package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ProjectConfig holds project-level settings loaded from codegraph.yml.
type ProjectConfig struct {
	// ProcPrefixes overrides the stored-procedure naming convention
	// recognized by the relationship rules (default: sp_, usp_).
	ProcPrefixes []string `yaml:"procPrefixes,omitempty"`

	// SimilarityThreshold is the default minimum pattern score.
	SimilarityThreshold float64 `yaml:"similarityThreshold,omitempty"`

	// MaxResults caps pattern query results.
	MaxResults int `yaml:"maxResults,omitempty"`

	// FileTimeout bounds a single file's analysis (e.g. "30s").
	FileTimeout Duration `yaml:"fileTimeout,omitempty"`

	// Workers bounds batch analysis parallelism.
	Workers int `yaml:"workers,omitempty"`

	// MirrorPath, when set, persists each analysis batch to a SQLite
	// database at this path.
	MirrorPath string `yaml:"mirrorPath,omitempty"`
}

// Load attempts to read codegraph.yml or codegraph.yaml from the given
// directory. Returns a zero-value config (not an error) if no config file
// exists.
func Load(dir string) (*ProjectConfig, error) {
	for _, name := range []string{"codegraph.yml", "codegraph.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cfg ProjectConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	return &ProjectConfig{}, nil
}
