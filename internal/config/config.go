// Package config loads the locksmith configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/chis/locksmith/internal/registry"
)

// Defaults applied when the configuration file omits a value.
const (
	DefaultJobs     = 10
	DefaultPageSize = 100
)

// Config is the locksmith configuration, loaded from YAML.
type Config struct {
	// ProjectsFile is the path to the projects document.
	ProjectsFile string `yaml:"projects_file"`

	// LockFile is the path of the lock file to synchronize.
	LockFile string `yaml:"lock_file"`

	// HistoryDB is the path of the SQLite run history database. Empty
	// disables history.
	HistoryDB string `yaml:"history_db"`

	// Jobs bounds simultaneous in-flight resolutions.
	Jobs int `yaml:"jobs"`

	// PageSize is the tag-listing page size.
	PageSize int `yaml:"page_size"`

	// Registries maps registry hosts to credentials. Hosts not listed are
	// accessed anonymously.
	Registries map[string]registry.Auth `yaml:"registries"`

	// Log configures logging output.
	Log LogConfig `yaml:"log"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		ProjectsFile: "projects.yml",
		LockFile:     "locksmith.lock.json",
		Jobs:         DefaultJobs,
		PageSize:     DefaultPageSize,
		Log:          LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads the configuration from path. A missing file yields the
// defaults; a present but malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()

	// relative paths in the file resolve against its directory
	dir := filepath.Dir(path)
	cfg.ProjectsFile = resolvePath(dir, cfg.ProjectsFile)
	cfg.LockFile = resolvePath(dir, cfg.LockFile)
	cfg.HistoryDB = resolvePath(dir, cfg.HistoryDB)

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ProjectsFile == "" {
		c.ProjectsFile = "projects.yml"
	}
	if c.LockFile == "" {
		c.LockFile = "locksmith.lock.json"
	}
	if c.Jobs <= 0 {
		c.Jobs = DefaultJobs
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

func resolvePath(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
