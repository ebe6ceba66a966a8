package cli

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/chis/locksmith/internal/docker"
	"github.com/chis/locksmith/internal/events"
	"github.com/chis/locksmith/internal/lock"
	"github.com/chis/locksmith/internal/registry"
	"github.com/chis/locksmith/internal/resolve"
	"github.com/chis/locksmith/internal/storage"
	"github.com/chis/locksmith/internal/update"
)

// NewLockCommand creates the lock command
func NewLockCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock [target]",
		Short: "Resolve image versions and synchronize the lock file",
		Long: `Resolves every selected service's image to its current digest and
version, then writes the lock file if anything changed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runLock,
	}

	cmd.Flags().Int("jobs", 0, "Maximum concurrent resolutions (default from config)")
	cmd.Flags().Bool("running", false, "Only synchronize services with a running container")

	return cmd
}

func runLock(cmd *cobra.Command, args []string) error {
	cfg, projs, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}

	selector, err := parseTarget(args, projs)
	if err != nil {
		return err
	}
	images := projs.Images(selector)

	if running, _ := cmd.Flags().GetBool("running"); running {
		dockerClient, err := docker.NewService()
		if err != nil {
			return fmt.Errorf("failed to connect to docker: %w", err)
		}
		defer func() { _ = dockerClient.Close() }()

		services, err := dockerClient.ListRunningServices(cmd.Context())
		if err != nil {
			return err
		}
		images = docker.FilterImages(images, services)
	}

	auth, err := registry.NewAuthStore(cfg.Registries)
	if err != nil {
		return err
	}
	resolver := resolve.NewResolver(registry.NewOCIClient(auth), registry.NewHubClient()).
		WithPageSize(cfg.PageSize)

	var store storage.Storage
	if cfg.HistoryDB != "" {
		sqliteStore, err := storage.NewSQLiteStorage(cfg.HistoryDB)
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer func() { _ = sqliteStore.Close() }()
		store = sqliteStore
	}

	jobs, _ := cmd.Flags().GetInt("jobs")
	if jobs <= 0 {
		jobs = cfg.Jobs
	}

	bus := events.NewBus()
	done := renderProgress(cmd, bus)

	orchestrator := update.NewOrchestrator(resolver, bus, store, jobs)
	result, err := orchestrator.Sync(cmd.Context(), images, cfg.LockFile)
	done()
	if err != nil {
		return err
	}

	renderDiff(cmd, result.Diff)

	switch {
	case len(result.Diff) == 0 && len(images) == 0:
		cmd.Println("nothing to do")
	case len(result.Diff) == 0:
		cmd.Printf("%d services up to date\n", len(images))
	default:
		cmd.Printf("%d changes written to %s\n", len(result.Diff), cfg.LockFile)
	}

	if len(result.Failed) > 0 {
		services := make([]string, 0, len(result.Failed))
		for service := range result.Failed {
			services = append(services, service)
		}
		sort.Strings(services)
		for _, service := range services {
			cmd.PrintErrf("failed: %s: %v\n", service, result.Failed[service])
		}
		return fmt.Errorf("%d of %d services failed to resolve", len(result.Failed), len(images))
	}

	return nil
}

// renderProgress prints per-service progress lines from the event bus until
// the returned stop function is called.
func renderProgress(cmd *cobra.Command, bus *events.Bus) func() {
	ch, unsubscribe := bus.Subscribe("*")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for event := range ch {
			service, _ := event.Payload["service"].(string)
			switch event.Type {
			case events.EventResolveResolved:
				version, _ := event.Payload["version"].(string)
				digest, _ := event.Payload["digest"].(string)
				cmd.Printf("  %-30s %s %s\n", service, version, shortDigest(digest))
			case events.EventResolveCached:
				cmd.Printf("  %-30s (cached)\n", service)
			case events.EventResolveFailed:
				reason, _ := event.Payload["error"].(string)
				cmd.Printf("  %-30s failed: %s\n", service, reason)
			}
		}
	}()

	return func() {
		unsubscribe()
		wg.Wait()
	}
}

func shortDigest(digest string) string {
	if rest, ok := strings.CutPrefix(digest, "sha256:"); ok && len(rest) >= 12 {
		return rest[:12]
	}
	return digest
}

// renderDiff prints one line per change, additions and updates first,
// removals last, matching the diff's own ordering.
func renderDiff(cmd *cobra.Command, diff []lock.DiffEntry) {
	for _, entry := range diff {
		switch entry.Kind {
		case lock.Added:
			cmd.Printf("+ %s %s %s\n", entry.Service, entry.New.VersionString(), shortDigest(entry.New.Digest))
		case lock.Updated:
			cmd.Printf("~ %s %s -> %s (%s -> %s)\n",
				entry.Service,
				entry.Old.VersionString(), entry.New.VersionString(),
				shortDigest(entry.Old.Digest), shortDigest(entry.New.Digest))
		case lock.Removed:
			cmd.Printf("- %s\n", entry.Service)
		}
	}
}
