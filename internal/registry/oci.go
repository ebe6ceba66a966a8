package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"runtime"
	"strconv"

	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
)

// OCIClient implements Client against any V2/OCI registry using
// go-containerregistry for manifest and config pulls, and the raw
// /v2/<repo>/tags/list endpoint for cursor-paginated tag listing.
type OCIClient struct {
	auth *AuthStore
	arch string
}

// NewOCIClient creates a registry client. Credentials from the auth store
// are attached per canonical registry host; unlisted hosts are accessed
// anonymously.
func NewOCIClient(auth *AuthStore) *OCIClient {
	return &OCIClient{
		auth: auth,
		arch: runtime.GOARCH,
	}
}

// options builds the remote options for one reference.
func (c *OCIClient) options(ctx context.Context, ref name.Reference) []remote.Option {
	return []remote.Option{
		remote.WithContext(ctx),
		remote.WithAuth(c.auth.For(ref.Context().RegistryStr())),
	}
}

// PullManifestAndConfig implements Client. For an image index the manifest
// matching the running architecture is selected; its digest is returned
// together with that image's raw config blob.
func (c *OCIClient) PullManifestAndConfig(ctx context.Context, image string) (string, []byte, error) {
	ref, err := name.ParseReference(image)
	if err != nil {
		return "", nil, fmt.Errorf("invalid image reference %q: %w", image, err)
	}

	desc, err := remote.Get(ref, c.options(ctx, ref)...)
	if err != nil {
		return "", nil, fmt.Errorf("failed to pull manifest for %s: %w", image, err)
	}

	if desc.MediaType.IsIndex() {
		idx, err := desc.ImageIndex()
		if err != nil {
			return "", nil, fmt.Errorf("failed to read image index for %s: %w", image, err)
		}
		digest, err := c.platformDigest(idx)
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", image, err)
		}
		img, err := idx.Image(digest)
		if err != nil {
			return "", nil, fmt.Errorf("failed to pull platform manifest for %s: %w", image, err)
		}
		config, err := img.RawConfigFile()
		if err != nil {
			return "", nil, fmt.Errorf("failed to pull config for %s: %w", image, err)
		}
		return digest.String(), config, nil
	}

	img, err := desc.Image()
	if err != nil {
		return "", nil, fmt.Errorf("failed to read manifest for %s: %w", image, err)
	}
	config, err := img.RawConfigFile()
	if err != nil {
		return "", nil, fmt.Errorf("failed to pull config for %s: %w", image, err)
	}
	return desc.Digest.String(), config, nil
}

// PullPlatformDigest implements Client.
func (c *OCIClient) PullPlatformDigest(ctx context.Context, image string) (string, error) {
	ref, err := name.ParseReference(image)
	if err != nil {
		return "", fmt.Errorf("invalid image reference %q: %w", image, err)
	}

	desc, err := remote.Get(ref, c.options(ctx, ref)...)
	if err != nil {
		return "", fmt.Errorf("failed to pull manifest for %s: %w", image, err)
	}

	if !desc.MediaType.IsIndex() {
		return desc.Digest.String(), nil
	}

	idx, err := desc.ImageIndex()
	if err != nil {
		return "", fmt.Errorf("failed to read image index for %s: %w", image, err)
	}
	digest, err := c.platformDigest(idx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", image, err)
	}
	return digest.String(), nil
}

// platformDigest selects the manifest digest for the running architecture
// from an image index. A missing platform is a hard error, not something to
// paper over with an arbitrary manifest.
func (c *OCIClient) platformDigest(idx v1.ImageIndex) (v1.Hash, error) {
	manifest, err := idx.IndexManifest()
	if err != nil {
		return v1.Hash{}, fmt.Errorf("failed to read index manifest: %w", err)
	}
	return selectPlatformDigest(manifest, c.arch)
}

// selectPlatformDigest picks the first index entry whose platform
// architecture matches arch.
func selectPlatformDigest(manifest *v1.IndexManifest, arch string) (v1.Hash, error) {
	for _, m := range manifest.Manifests {
		if m.Platform != nil && m.Platform.Architecture == arch {
			return m.Digest, nil
		}
	}
	return v1.Hash{}, ErrNoMatchingPlatform
}

// tagsListResponse is the JSON body of the /v2/.../tags/list endpoint.
type tagsListResponse struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// ListTags implements Client. It fetches one page of the V2 tags/list
// endpoint, authenticating through the same token flow the manifest pulls
// use.
func (c *OCIClient) ListTags(ctx context.Context, image string, pageSize int, last string) ([]string, error) {
	ref, err := name.ParseReference(image)
	if err != nil {
		return nil, fmt.Errorf("invalid image reference %q: %w", image, err)
	}
	repo := ref.Context()

	tr, err := transport.NewWithContext(
		ctx,
		repo.Registry,
		c.auth.For(repo.RegistryStr()),
		remote.DefaultTransport,
		[]string{repo.Scope(transport.PullScope)},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate against %s: %w", repo.RegistryStr(), err)
	}

	query := url.Values{}
	query.Set("n", strconv.Itoa(pageSize))
	if last != "" {
		query.Set("last", last)
	}
	uri := url.URL{
		Scheme:   repo.Registry.Scheme(),
		Host:     repo.Registry.RegistryStr(),
		Path:     fmt.Sprintf("/v2/%s/tags/list", repo.RepositoryStr()),
		RawQuery: query.Encode(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	client := &http.Client{Transport: tr}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags for %s: %w", image, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Status: resp.StatusCode, URL: uri.String()}
	}

	var body tagsListResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode tags response: %w", err)
	}

	return body.Tags, nil
}
