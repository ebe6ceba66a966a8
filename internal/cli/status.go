package cli

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/chis/locksmith/internal/lock"
	"github.com/chis/locksmith/internal/output"
)

// NewStatusCommand creates the status command
func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [target]",
		Short: "Compare the lock file against the declared projects",
		Long: `Shows, without any network access or writes, which selected services are
locked, which are missing from the lock file, and which lock entries no
longer match their declared image.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runStatus,
	}

	cmd.Flags().Bool("json", false, "Output as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, projs, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}

	selector, err := parseTarget(args, projs)
	if err != nil {
		return err
	}
	images := projs.Images(selector)

	state, err := lock.Load(cfg.LockFile)
	if err != nil {
		return err
	}

	statuses := collectStatuses(images, state)

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return output.WriteJSON(cmd.OutOrStdout(), output.SuccessResponse(statuses))
	}

	for _, s := range statuses {
		switch s.State {
		case "unlocked":
			cmd.Printf("  %-30s not locked\n", s.Service)
		case "image-changed":
			cmd.Printf("  %-30s image changed, run lock to update\n", s.Service)
		case "orphaned":
			cmd.Printf("  %-30s locked but not selected\n", s.Service)
		default:
			cmd.Printf("  %-30s %s %s\n", s.Service, s.Version, shortDigest(s.Digest))
		}
	}

	return nil
}

// collectStatuses classifies every selected service and every leftover lock
// entry, sorted by service identifier within each group.
func collectStatuses(images map[string]string, state *lock.State) []output.ServiceStatus {
	identifiers := make([]string, 0, len(images))
	for identifier := range images {
		identifiers = append(identifiers, identifier)
	}
	sort.Strings(identifiers)

	var statuses []output.ServiceStatus
	for _, identifier := range identifiers {
		image := images[identifier]
		status := output.ServiceStatus{Service: identifier, Image: image}

		entry, ok := state.Get(identifier)
		switch {
		case !ok:
			status.State = "unlocked"
		case entry.Image != image:
			status.State = "image-changed"
			status.Version = entry.VersionString()
			status.Digest = entry.Digest
		default:
			status.State = "locked"
			status.Version = entry.VersionString()
			status.Digest = entry.Digest
		}
		statuses = append(statuses, status)
	}

	for _, service := range state.Services() {
		if _, ok := images[service]; ok {
			continue
		}
		entry, _ := state.Get(service)
		statuses = append(statuses, output.ServiceStatus{
			Service: service,
			Image:   entry.Image,
			State:   "orphaned",
			Version: entry.VersionString(),
			Digest:  entry.Digest,
		})
	}

	return statuses
}
