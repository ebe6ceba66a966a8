// Package cli implements the locksmith commands.
package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chis/locksmith/internal/config"
	"github.com/chis/locksmith/internal/logging"
	"github.com/chis/locksmith/internal/projects"
)

// loadEnvironment loads the configuration and the projects document, and
// re-initializes logging with any command-line overrides applied.
func loadEnvironment(cmd *cobra.Command) (*config.Config, projects.Projects, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}

	level, _ := cmd.Flags().GetString("log-level")
	if level == "" {
		level = cfg.Log.Level
	}
	format, _ := cmd.Flags().GetString("log-format")
	if format == "" {
		format = cfg.Log.Format
	}
	logging.Init(logging.Config{Level: level, Format: format})

	projs, err := projects.Load(cfg.ProjectsFile)
	if err != nil {
		return nil, nil, err
	}
	if err := projs.ExpandFromCompose(filepath.Dir(cfg.ProjectsFile)); err != nil {
		return nil, nil, fmt.Errorf("failed to scan compose files: %w", err)
	}

	return cfg, projs, nil
}

// parseTarget parses the optional positional target argument, defaulting to
// every service of every project.
func parseTarget(args []string, projs projects.Projects) (projects.Selector, error) {
	target := "*"
	if len(args) > 0 {
		target = args[0]
	}
	return projects.ParseSelector(target, projs)
}
