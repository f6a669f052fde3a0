package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config bundles the file locations of one update run.
type Config struct {
	// DatasetPath is the base fact file, one triple per line.
	DatasetPath string `yaml:"dataset_path"`

	// UpdatePath is the change-set file with +/- prefixed triples. Empty
	// means no update is applied and the run only reports stats.
	UpdatePath string `yaml:"update_path"`

	// DataDir holds the snapshot and journal.
	DataDir string `yaml:"data_dir"`

	// SnapshotFilename overrides the default snapshot file name.
	SnapshotFilename string `yaml:"snapshot_filename"`
}

// DefaultConfig returns the standard file layout.
func DefaultConfig() Config {
	return Config{
		DataDir:          "data",
		SnapshotFilename: "kompaktdb.snap",
	}
}

// LoadConfig reads a yaml config file on top of the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
