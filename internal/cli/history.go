package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chis/locksmith/internal/projects"
	"github.com/chis/locksmith/internal/storage"
)

// NewHistoryCommand creates the history command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [project.service]",
		Short: "Show past lock changes from the run history",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistory,
	}

	cmd.Flags().Int("limit", 20, "Maximum number of entries to show")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, projs, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	if cfg.HistoryDB == "" {
		return fmt.Errorf("history is disabled: no history_db configured")
	}

	store, err := storage.NewSQLiteStorage(cfg.HistoryDB)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer func() { _ = store.Close() }()

	limit, _ := cmd.Flags().GetInt("limit")

	var entries []storage.HistoryEntry
	if len(args) > 0 {
		selector, err := projects.ParseServiceSelector(args[0], projs)
		if err != nil {
			return err
		}
		identifier := projects.Identifier(selector.Project, selector.Service)
		entries, err = store.GetHistory(cmd.Context(), identifier, limit)
		if err != nil {
			return err
		}
	} else {
		entries, err = store.GetAllHistory(cmd.Context(), limit)
		if err != nil {
			return err
		}
	}

	if len(entries) == 0 {
		cmd.Println("no history")
		return nil
	}

	for _, entry := range entries {
		when := entry.ResolvedAt.Format("2006-01-02 15:04:05")
		switch entry.Kind {
		case "added":
			cmd.Printf("%s  + %-30s %s %s\n", when, entry.Service, entry.NewVersion, shortDigest(entry.NewDigest))
		case "removed":
			cmd.Printf("%s  - %-30s\n", when, entry.Service)
		default:
			cmd.Printf("%s  ~ %-30s %s -> %s (%s -> %s)\n",
				when, entry.Service,
				entry.OldVersion, entry.NewVersion,
				shortDigest(entry.OldDigest), shortDigest(entry.NewDigest))
		}
	}

	return nil
}
