package resolve

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chis/locksmith/internal/lock"
	"github.com/chis/locksmith/internal/registry"
)

// mockClient is an in-memory registry.Client that counts calls so tests can
// assert how much registry work a resolution performed.
type mockClient struct {
	digests map[string]string // full reference -> platform digest
	configs map[string]string // full reference -> raw config JSON
	tags    []string          // tag listing, oldest first

	manifestCalls int
	digestCalls   int
	listCalls     int
}

func (m *mockClient) PullManifestAndConfig(_ context.Context, image string) (string, []byte, error) {
	m.manifestCalls++
	digest, ok := m.digests[image]
	if !ok {
		return "", nil, fmt.Errorf("unknown image %s", image)
	}
	return digest, []byte(m.configs[image]), nil
}

func (m *mockClient) PullPlatformDigest(_ context.Context, image string) (string, error) {
	m.digestCalls++
	digest, ok := m.digests[image]
	if !ok {
		return "", fmt.Errorf("unknown image %s", image)
	}
	return digest, nil
}

func (m *mockClient) ListTags(_ context.Context, _ string, pageSize int, last string) ([]string, error) {
	m.listCalls++
	start := 0
	if last != "" {
		for i, tag := range m.tags {
			if tag == last {
				start = i + 1
				break
			}
		}
	}
	end := start + pageSize
	if end > len(m.tags) {
		end = len(m.tags)
	}
	return m.tags[start:end], nil
}

// mockHub is an in-memory registry.HubLister.
type mockHub struct {
	tags      []registry.HubTag
	listCalls int
	err       error
}

func (m *mockHub) ListTags(_ context.Context, _ string) ([]registry.HubTag, error) {
	m.listCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.tags, nil
}

func configWithLabel(version string) string {
	return fmt.Sprintf(`{"architecture":"amd64","os":"linux","config":{"Labels":{"org.opencontainers.image.version":%q}}}`, version)
}

const configNoLabel = `{"architecture":"amd64","os":"linux","config":{}}`

func newTestResolver(client registry.Client, hub registry.HubLister) *Resolver {
	r := NewResolver(client, hub)
	r.arch = "amd64"
	return r
}

func TestResolveUsesConfigLabel(t *testing.T) {
	client := &mockClient{
		digests: map[string]string{"ghcr.io/owner/app:latest": "sha256:aaa"},
		configs: map[string]string{"ghcr.io/owner/app:latest": configWithLabel("2.5.1")},
	}

	r := newTestResolver(client, nil)
	got, err := r.Resolve(context.Background(), "ghcr.io/owner/app:latest")
	require.NoError(t, err)

	require.NotNil(t, got.Version)
	assert.Equal(t, "2.5.1", *got.Version)
	assert.Equal(t, "sha256:aaa", got.Digest)
	assert.Equal(t, 0, client.listCalls, "labeled images must not trigger alias scanning")
	assert.Equal(t, 0, client.digestCalls)
}

func TestResolveRejectsFloatingLabel(t *testing.T) {
	// an image mislabeling itself "latest" falls through to alias scanning
	client := &mockClient{
		digests: map[string]string{
			"ghcr.io/owner/app:latest": "sha256:aaa",
			"ghcr.io/owner/app:v1.4.0": "sha256:aaa",
		},
		configs: map[string]string{"ghcr.io/owner/app:latest": configWithLabel("latest")},
		tags:    []string{"v1.4.0"},
	}

	r := newTestResolver(client, nil)
	got, err := r.Resolve(context.Background(), "ghcr.io/owner/app:latest")
	require.NoError(t, err)

	require.NotNil(t, got.Version)
	assert.Equal(t, "v1.4.0", *got.Version)
	assert.GreaterOrEqual(t, client.listCalls, 1)
}

func TestResolveGenericAliasWalk(t *testing.T) {
	// listing is oldest first; the reverse walk visits v3, v2, v1. v3 does
	// not match, v2 and v1 do, so the walk performs exactly 3 pulls.
	client := &mockClient{
		digests: map[string]string{
			"ghcr.io/owner/app:latest": "sha256:target",
			"ghcr.io/owner/app:v1":     "sha256:target",
			"ghcr.io/owner/app:v2":     "sha256:target",
			"ghcr.io/owner/app:v3":     "sha256:other",
		},
		configs: map[string]string{"ghcr.io/owner/app:latest": configNoLabel},
		tags:    []string{"v1", "v2", "v3"},
	}

	r := newTestResolver(client, nil)
	got, err := r.Resolve(context.Background(), "ghcr.io/owner/app:latest")
	require.NoError(t, err)

	require.NotNil(t, got.Version)
	assert.Equal(t, "v2", *got.Version)
	assert.Equal(t, 3, client.digestCalls, "walk must stop at the first mismatch after a match")
}

func TestResolveGenericWalkStopsAfterAliasRun(t *testing.T) {
	// aliases sit in the middle of the reversed listing: v4 mismatches,
	// v3+v2 match, v1 mismatches and ends the walk. v0 must never be pulled.
	client := &mockClient{
		digests: map[string]string{
			"ghcr.io/owner/app:latest": "sha256:target",
			"ghcr.io/owner/app:v1":     "sha256:older",
			"ghcr.io/owner/app:v2":     "sha256:target",
			"ghcr.io/owner/app:v3":     "sha256:target",
			"ghcr.io/owner/app:v4":     "sha256:other",
		},
		configs: map[string]string{"ghcr.io/owner/app:latest": configNoLabel},
		tags:    []string{"v0", "v1", "v2", "v3", "v4"},
	}

	r := newTestResolver(client, nil)
	got, err := r.Resolve(context.Background(), "ghcr.io/owner/app:latest")
	require.NoError(t, err)

	require.NotNil(t, got.Version)
	assert.Equal(t, "v3", *got.Version)
	assert.Equal(t, 4, client.digestCalls, "v0 must never be pulled")
}

func TestResolveGenericWalkExhaustsWithoutMatch(t *testing.T) {
	client := &mockClient{
		digests: map[string]string{
			"ghcr.io/owner/app:latest": "sha256:target",
			"ghcr.io/owner/app:v1":     "sha256:other",
			"ghcr.io/owner/app:v2":     "sha256:other",
		},
		configs: map[string]string{"ghcr.io/owner/app:latest": configNoLabel},
		tags:    []string{"v1", "v2"},
	}

	r := newTestResolver(client, nil)
	got, err := r.Resolve(context.Background(), "ghcr.io/owner/app:latest")
	require.NoError(t, err)

	assert.Nil(t, got.Version, "no alias match yields a digest-only entry")
	assert.Equal(t, "sha256:target", got.Digest)
	assert.Equal(t, 2, client.digestCalls)
}

func TestResolveGenericWalkPaginates(t *testing.T) {
	var tags []string
	for i := 0; i < 7; i++ {
		tags = append(tags, fmt.Sprintf("0.%d.0", i))
	}

	digests := map[string]string{"ghcr.io/owner/app:latest": "sha256:target"}
	for _, tag := range tags {
		digests["ghcr.io/owner/app:"+tag] = "sha256:other"
	}
	digests["ghcr.io/owner/app:0.6.0"] = "sha256:target"

	client := &mockClient{
		digests: digests,
		configs: map[string]string{"ghcr.io/owner/app:latest": configNoLabel},
		tags:    tags,
	}

	r := newTestResolver(client, nil).WithPageSize(3)
	got, err := r.Resolve(context.Background(), "ghcr.io/owner/app:latest")
	require.NoError(t, err)

	require.NotNil(t, got.Version)
	assert.Equal(t, "0.6.0", *got.Version)
	// 7 tags at page size 3: pages of 3, 3 and 1
	assert.Equal(t, 3, client.listCalls)
}

func TestResolveHubAliasesNeedNoManifestPulls(t *testing.T) {
	client := &mockClient{
		digests: map[string]string{"nginx:alpine": "sha256:target"},
		configs: map[string]string{"nginx:alpine": configNoLabel},
	}
	hub := &mockHub{
		tags: []registry.HubTag{
			{
				Name: "latest",
				Images: []registry.HubImage{
					{Architecture: "amd64", Digest: "sha256:target"},
				},
			},
			{
				Name: "1.27.3-alpine",
				Images: []registry.HubImage{
					{Architecture: "arm64", Digest: "sha256:arm"},
					{Architecture: "amd64", Digest: "sha256:target"},
				},
			},
			{
				Name: "1.26.0-alpine",
				Images: []registry.HubImage{
					{Architecture: "amd64", Digest: "sha256:old"},
				},
			},
			{
				// matches on the wrong architecture only
				Name: "1.28.0-alpine",
				Images: []registry.HubImage{
					{Architecture: "arm64", Digest: "sha256:target"},
				},
			},
		},
	}

	r := newTestResolver(client, hub)
	got, err := r.Resolve(context.Background(), "nginx:alpine")
	require.NoError(t, err)

	require.NotNil(t, got.Version)
	assert.Equal(t, "1.27.3-alpine", *got.Version)
	assert.Equal(t, 1, hub.listCalls)
	assert.Equal(t, 0, client.digestCalls, "hub strategy performs no manifest pulls")
	assert.Equal(t, 0, client.listCalls)
}

func TestUpdateUnchangedDigestShortCircuits(t *testing.T) {
	client := &mockClient{
		digests: map[string]string{"ghcr.io/owner/app:latest": "sha256:aaa"},
	}
	hub := &mockHub{}

	prev := lock.VersionedImage{
		Image:   "ghcr.io/owner/app:latest",
		Version: strptr("2.5.1"),
		Digest:  "sha256:aaa",
	}

	r := newTestResolver(client, hub)
	got, err := r.Update(context.Background(), prev)
	require.NoError(t, err)

	assert.True(t, prev.Equal(got), "unchanged digest must return the previous record verbatim")
	assert.Equal(t, 1, client.digestCalls)
	assert.Equal(t, 0, client.manifestCalls, "no config work on unchanged digest")
	assert.Equal(t, 0, client.listCalls, "no alias work on unchanged digest")
	assert.Equal(t, 0, hub.listCalls)
}

func TestUpdateChangedDigestResolvesFully(t *testing.T) {
	client := &mockClient{
		digests: map[string]string{"ghcr.io/owner/app:latest": "sha256:new"},
		configs: map[string]string{"ghcr.io/owner/app:latest": configWithLabel("3.0.0")},
	}

	prev := lock.VersionedImage{
		Image:   "ghcr.io/owner/app:latest",
		Version: strptr("2.5.1"),
		Digest:  "sha256:old",
	}

	r := newTestResolver(client, nil)
	got, err := r.Update(context.Background(), prev)
	require.NoError(t, err)

	require.NotNil(t, got.Version)
	assert.Equal(t, "3.0.0", *got.Version)
	assert.Equal(t, "sha256:new", got.Digest)
	assert.Equal(t, 1, client.manifestCalls)
}

func TestResolvePropagatesRegistryErrors(t *testing.T) {
	client := &mockClient{digests: map[string]string{}}

	r := newTestResolver(client, nil)
	_, err := r.Resolve(context.Background(), "ghcr.io/owner/app:latest")
	assert.Error(t, err)
}

func TestResolveHubErrorPropagates(t *testing.T) {
	client := &mockClient{
		digests: map[string]string{"nginx:alpine": "sha256:target"},
		configs: map[string]string{"nginx:alpine": configNoLabel},
	}
	hub := &mockHub{err: errors.New("rate limited")}

	r := newTestResolver(client, hub)
	_, err := r.Resolve(context.Background(), "nginx:alpine")
	assert.Error(t, err)
}

func strptr(s string) *string { return &s }
