// Package update drives concurrent lock synchronization: it resolves every
// selected service with bounded parallelism, merges the results into a new
// lock state and persists it only when something changed.
package update

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chis/locksmith/internal/events"
	"github.com/chis/locksmith/internal/lock"
	"github.com/chis/locksmith/internal/logging"
	"github.com/chis/locksmith/internal/storage"
)

// DefaultJobs bounds simultaneous in-flight resolutions.
const DefaultJobs = 10

// Resolver is the per-image resolution surface the orchestrator drives.
type Resolver interface {
	// Resolve fully resolves an image reference.
	Resolve(ctx context.Context, image string) (lock.VersionedImage, error)

	// Update re-resolves a previously locked image, short-circuiting when
	// the live digest is unchanged.
	Update(ctx context.Context, prev lock.VersionedImage) (lock.VersionedImage, error)
}

// Result is the outcome of one synchronization run.
type Result struct {
	RunID   string
	State   *lock.State
	Diff    []lock.DiffEntry
	Failed  map[string]error
	Written bool
}

// Orchestrator coordinates one synchronization run end to end.
type Orchestrator struct {
	resolver Resolver
	bus      *events.Bus
	store    storage.Storage
	jobs     int
	log      *logging.Logger
}

// NewOrchestrator creates an orchestrator. The bus and store are optional;
// a nil store disables history recording, a nil bus disables events.
func NewOrchestrator(resolver Resolver, bus *events.Bus, store storage.Storage, jobs int) *Orchestrator {
	if jobs <= 0 {
		jobs = DefaultJobs
	}
	return &Orchestrator{
		resolver: resolver,
		bus:      bus,
		store:    store,
		jobs:     jobs,
		log:      logging.Default().WithComponent("update"),
	}
}

// Sync resolves every service in images (service identifier -> image
// reference), diffs the outcome against the lock file at lockPath and
// persists the new state only when the diff is non-empty.
//
// Per-service failures never abort sibling resolutions; failed services keep
// their previous lock entry (if any) and are reported in Result.Failed. An
// empty image set performs no resolution and no write.
func (o *Orchestrator) Sync(ctx context.Context, images map[string]string, lockPath string) (*Result, error) {
	prev, err := lock.Load(lockPath)
	if err != nil {
		return nil, err
	}

	result := &Result{
		RunID:  uuid.NewString(),
		State:  prev,
		Failed: make(map[string]error),
	}

	if len(images) == 0 {
		o.log.Info().Msg("no services selected, nothing to do")
		return result, nil
	}

	resolved := o.resolveAll(ctx, images, prev, result.Failed)

	next := lock.NewState()
	for service := range images {
		if entry, ok := resolved[service]; ok {
			next.Set(service, entry)
			continue
		}
		// a failed service keeps its previous entry rather than being
		// dropped from the lock
		if entry, ok := prev.Get(service); ok {
			next.Set(service, entry)
		}
	}

	result.State = next
	result.Diff = lock.Diff(prev, next)

	o.emit(events.EventLockDiff, map[string]interface{}{
		"run_id":  result.RunID,
		"changes": len(result.Diff),
	})

	if len(result.Diff) == 0 {
		o.log.Info().Int("services", len(images)).Msg("lock file already up to date")
		return result, nil
	}

	if err := lock.Save(next, lockPath); err != nil {
		return nil, fmt.Errorf("failed to persist lock state: %w", err)
	}
	result.Written = true
	o.log.Info().Int("changes", len(result.Diff)).Str("path", lockPath).Msg("lock file updated")

	o.recordHistory(ctx, result)

	return result, nil
}

// resolveAll fans out one task per service, bounded by the jobs limit.
// Tasks always return nil so one failure never cancels siblings; failures
// land in failed instead.
func (o *Orchestrator) resolveAll(ctx context.Context, images map[string]string, prev *lock.State, failed map[string]error) map[string]lock.VersionedImage {
	cache := NewCache()
	resolved := make(map[string]lock.VersionedImage, len(images))

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(o.jobs)

	for service, image := range images {
		g.Go(func() error {
			o.emit(events.EventResolveStarted, map[string]interface{}{
				"service": service,
				"image":   image,
			})

			if entry, ok := cache.Get(image); ok {
				o.emit(events.EventResolveCached, map[string]interface{}{
					"service": service,
					"image":   image,
					"digest":  entry.Digest,
				})
				mu.Lock()
				resolved[service] = entry
				mu.Unlock()
				return nil
			}

			entry, err := o.resolveOne(ctx, service, image, prev)
			if err != nil {
				o.log.Warn().Err(err).Str("service", service).Msg("resolution failed")
				o.emit(events.EventResolveFailed, map[string]interface{}{
					"service": service,
					"image":   image,
					"error":   err.Error(),
				})
				mu.Lock()
				failed[service] = err
				mu.Unlock()
				return nil
			}

			cache.Put(image, entry)
			o.emit(events.EventResolveResolved, map[string]interface{}{
				"service": service,
				"image":   image,
				"version": entry.VersionString(),
				"digest":  entry.Digest,
			})
			mu.Lock()
			resolved[service] = entry
			mu.Unlock()
			return nil
		})
	}

	g.Wait()
	return resolved
}

// resolveOne picks the update short-circuit for services whose previous lock
// entry matches the declared image; anything else (new service, changed
// image, legacy entry with an unknown image) gets a full resolution.
func (o *Orchestrator) resolveOne(ctx context.Context, service, image string, prev *lock.State) (lock.VersionedImage, error) {
	if entry, ok := prev.Get(service); ok && entry.Image == image {
		return o.resolver.Update(ctx, entry)
	}
	return o.resolver.Resolve(ctx, image)
}

// recordHistory writes the run's diff to the audit trail. History is best
// effort: a storage failure is logged and does not fail the run.
func (o *Orchestrator) recordHistory(ctx context.Context, result *Result) {
	if o.store == nil {
		return
	}

	entries := make([]storage.HistoryEntry, 0, len(result.Diff))
	for _, d := range result.Diff {
		entry := storage.HistoryEntry{
			Service: d.Service,
			Kind:    d.Kind.String(),
		}
		if d.Old != nil {
			entry.OldVersion = d.Old.VersionString()
			entry.OldDigest = d.Old.Digest
		}
		if d.New != nil {
			entry.NewVersion = d.New.VersionString()
			entry.NewDigest = d.New.Digest
		}
		entries = append(entries, entry)
	}

	if err := o.store.LogRun(ctx, result.RunID, entries); err != nil {
		o.log.Warn().Err(err).Msg("failed to record run history")
	}
}

func (o *Orchestrator) emit(eventType string, payload map[string]interface{}) {
	if o.bus == nil {
		return
	}
	o.bus.Emit(eventType, payload)
}
