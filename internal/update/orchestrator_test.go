package update

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chis/locksmith/internal/events"
	"github.com/chis/locksmith/internal/lock"
)

// mockResolver resolves from a fixed table and counts calls.
type mockResolver struct {
	mu           sync.Mutex
	entries      map[string]lock.VersionedImage // image reference -> result
	failures     map[string]error               // image reference -> error
	resolveCalls int
	updateCalls  int
}

func (m *mockResolver) Resolve(_ context.Context, image string) (lock.VersionedImage, error) {
	m.mu.Lock()
	m.resolveCalls++
	m.mu.Unlock()

	if err, ok := m.failures[image]; ok {
		return lock.VersionedImage{}, err
	}
	entry, ok := m.entries[image]
	if !ok {
		return lock.VersionedImage{}, fmt.Errorf("unknown image %s", image)
	}
	return entry, nil
}

func (m *mockResolver) Update(_ context.Context, prev lock.VersionedImage) (lock.VersionedImage, error) {
	m.mu.Lock()
	m.updateCalls++
	m.mu.Unlock()

	if err, ok := m.failures[prev.Image]; ok {
		return lock.VersionedImage{}, err
	}
	live, ok := m.entries[prev.Image]
	if !ok {
		return lock.VersionedImage{}, fmt.Errorf("unknown image %s", prev.Image)
	}
	if live.Digest == prev.Digest {
		return prev, nil
	}
	return live, nil
}

func strptr(s string) *string { return &s }

func lockPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "locksmith.lock.json")
}

func TestSyncAddsNewServices(t *testing.T) {
	resolver := &mockResolver{
		entries: map[string]lock.VersionedImage{
			"nginx:alpine": {Image: "nginx:alpine", Version: strptr("1.27.3"), Digest: "sha256:aaa"},
			"redis:7":      {Image: "redis:7", Version: strptr("7.4.1"), Digest: "sha256:bbb"},
		},
	}
	path := lockPath(t)

	o := NewOrchestrator(resolver, nil, nil, 4)
	result, err := o.Sync(context.Background(), map[string]string{
		"web.nginx":   "nginx:alpine",
		"cache.redis": "redis:7",
	}, path)
	require.NoError(t, err)

	assert.True(t, result.Written)
	assert.Len(t, result.Diff, 2)
	assert.Empty(t, result.Failed)
	for _, entry := range result.Diff {
		assert.Equal(t, lock.Added, entry.Kind)
	}

	persisted, err := lock.Load(path)
	require.NoError(t, err)
	assert.True(t, result.State.Equal(persisted))
}

func TestSyncNoChangesNoWrite(t *testing.T) {
	path := lockPath(t)
	entry := lock.VersionedImage{Image: "nginx:alpine", Version: strptr("1.27.3"), Digest: "sha256:aaa"}

	prev := lock.NewState()
	prev.Set("web.nginx", entry)
	require.NoError(t, lock.Save(prev, path))

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	resolver := &mockResolver{
		entries: map[string]lock.VersionedImage{"nginx:alpine": entry},
	}

	o := NewOrchestrator(resolver, nil, nil, 0)
	result, err := o.Sync(context.Background(), map[string]string{"web.nginx": "nginx:alpine"}, path)
	require.NoError(t, err)

	assert.False(t, result.Written)
	assert.Empty(t, result.Diff)
	assert.Equal(t, 1, resolver.updateCalls, "locked services go through the update short-circuit")
	assert.Equal(t, 0, resolver.resolveCalls)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "an unchanged state must not rewrite the file")
}

func TestSyncEmptyImageSetIsNothingToDo(t *testing.T) {
	resolver := &mockResolver{}
	path := lockPath(t)

	o := NewOrchestrator(resolver, nil, nil, 0)
	result, err := o.Sync(context.Background(), nil, path)
	require.NoError(t, err)

	assert.False(t, result.Written)
	assert.Empty(t, result.Diff)
	assert.Equal(t, 0, resolver.resolveCalls)
	assert.NoFileExists(t, path)
}

func TestSyncFailureDoesNotAbortSiblings(t *testing.T) {
	resolver := &mockResolver{
		entries: map[string]lock.VersionedImage{
			"redis:7": {Image: "redis:7", Version: strptr("7.4.1"), Digest: "sha256:bbb"},
		},
		failures: map[string]error{"nginx:alpine": fmt.Errorf("registry unreachable")},
	}
	path := lockPath(t)

	o := NewOrchestrator(resolver, nil, nil, 4)
	result, err := o.Sync(context.Background(), map[string]string{
		"web.nginx":   "nginx:alpine",
		"cache.redis": "redis:7",
	}, path)
	require.NoError(t, err)

	require.Contains(t, result.Failed, "web.nginx")
	assert.True(t, result.Written, "successful siblings are still persisted")

	_, ok := result.State.Get("cache.redis")
	assert.True(t, ok)
	_, ok = result.State.Get("web.nginx")
	assert.False(t, ok, "a failed new service gets no lock entry")
}

func TestSyncFailedServiceKeepsPreviousEntry(t *testing.T) {
	path := lockPath(t)
	entry := lock.VersionedImage{Image: "nginx:alpine", Version: strptr("1.27.3"), Digest: "sha256:aaa"}

	prev := lock.NewState()
	prev.Set("web.nginx", entry)
	require.NoError(t, lock.Save(prev, path))

	resolver := &mockResolver{
		failures: map[string]error{"nginx:alpine": fmt.Errorf("registry unreachable")},
	}

	o := NewOrchestrator(resolver, nil, nil, 0)
	result, err := o.Sync(context.Background(), map[string]string{"web.nginx": "nginx:alpine"}, path)
	require.NoError(t, err)

	require.Contains(t, result.Failed, "web.nginx")
	kept, ok := result.State.Get("web.nginx")
	require.True(t, ok, "a failed locked service keeps its previous entry")
	assert.True(t, entry.Equal(kept))
	assert.False(t, result.Written)
}

func TestSyncRemovesUnselectedServices(t *testing.T) {
	path := lockPath(t)

	prev := lock.NewState()
	prev.Set("web.nginx", lock.VersionedImage{Image: "nginx:alpine", Digest: "sha256:aaa"})
	prev.Set("old.retired", lock.VersionedImage{Image: "retired:1", Digest: "sha256:zzz"})
	require.NoError(t, lock.Save(prev, path))

	resolver := &mockResolver{
		entries: map[string]lock.VersionedImage{
			"nginx:alpine": {Image: "nginx:alpine", Digest: "sha256:aaa"},
		},
	}

	o := NewOrchestrator(resolver, nil, nil, 0)
	result, err := o.Sync(context.Background(), map[string]string{"web.nginx": "nginx:alpine"}, path)
	require.NoError(t, err)

	require.Len(t, result.Diff, 1)
	assert.Equal(t, lock.Removed, result.Diff[0].Kind)
	assert.Equal(t, "old.retired", result.Diff[0].Service)
	assert.True(t, result.Written)
}

func TestSyncDeduplicatesSharedImages(t *testing.T) {
	resolver := &mockResolver{
		entries: map[string]lock.VersionedImage{
			"postgres:16": {Image: "postgres:16", Version: strptr("16.4"), Digest: "sha256:ccc"},
		},
	}
	path := lockPath(t)

	// jobs=1 forces sequential execution so the second service is
	// guaranteed to see the first one's cache entry. Under real
	// concurrency two misses on the same reference may both resolve it;
	// that duplicate work is an accepted race, not a correctness issue.
	o := NewOrchestrator(resolver, nil, nil, 1)
	result, err := o.Sync(context.Background(), map[string]string{
		"app.db":     "postgres:16",
		"metrics.db": "postgres:16",
	}, path)
	require.NoError(t, err)

	assert.Equal(t, 1, resolver.resolveCalls, "the shared reference resolves once")
	assert.Len(t, result.Diff, 2)

	a, _ := result.State.Get("app.db")
	b, _ := result.State.Get("metrics.db")
	assert.True(t, a.Equal(b))
}

func TestSyncLegacyEntryGetsFullResolution(t *testing.T) {
	path := lockPath(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"web.nginx": "sha256:aaa"}`), 0o644))

	resolver := &mockResolver{
		entries: map[string]lock.VersionedImage{
			"nginx:alpine": {Image: "nginx:alpine", Version: strptr("1.27.3"), Digest: "sha256:aaa"},
		},
	}

	o := NewOrchestrator(resolver, nil, nil, 0)
	result, err := o.Sync(context.Background(), map[string]string{"web.nginx": "nginx:alpine"}, path)
	require.NoError(t, err)

	// legacy entries record no image reference, so the short-circuit
	// cannot apply
	assert.Equal(t, 1, resolver.resolveCalls)
	assert.Equal(t, 0, resolver.updateCalls)
	assert.True(t, result.Written, "the richer schema is written back")
}

func TestSyncEmitsEvents(t *testing.T) {
	resolver := &mockResolver{
		entries: map[string]lock.VersionedImage{
			"nginx:alpine": {Image: "nginx:alpine", Digest: "sha256:aaa"},
		},
	}
	bus := events.NewBus()
	ch, unsubscribe := bus.Subscribe("*")
	defer unsubscribe()

	o := NewOrchestrator(resolver, bus, nil, 1)
	_, err := o.Sync(context.Background(), map[string]string{"web.nginx": "nginx:alpine"}, lockPath(t))
	require.NoError(t, err)

	var types []string
	for len(ch) > 0 {
		types = append(types, (<-ch).Type)
	}
	assert.Contains(t, types, events.EventResolveStarted)
	assert.Contains(t, types, events.EventResolveResolved)
	assert.Contains(t, types, events.EventLockDiff)
}

func TestSyncMalformedLockFileIsFatal(t *testing.T) {
	path := lockPath(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	o := NewOrchestrator(&mockResolver{}, nil, nil, 0)
	_, err := o.Sync(context.Background(), map[string]string{"web.nginx": "nginx:alpine"}, path)
	assert.Error(t, err)
}
