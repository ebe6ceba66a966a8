// Package resolve turns image references into versioned, digest-pinned lock
// entries. The version is derived from the image's OCI version label when one
// is present, otherwise from the most version-like tag aliasing the same
// digest.
package resolve

import (
	"bytes"
	"context"
	"fmt"
	"runtime"

	v1 "github.com/google/go-containerregistry/pkg/v1"

	"github.com/chis/locksmith/internal/lock"
	"github.com/chis/locksmith/internal/logging"
	"github.com/chis/locksmith/internal/registry"
	"github.com/chis/locksmith/internal/version"
)

// versionLabel is the OCI annotation most publishers stamp into their image
// configs.
const versionLabel = "org.opencontainers.image.version"

// defaultPageSize matches the Docker Hub tags API default.
const defaultPageSize = 100

// Resolver resolves image references to versioned digest entries.
type Resolver struct {
	client   registry.Client
	hub      registry.HubLister
	arch     string
	pageSize int
	log      *logging.Logger
}

// NewResolver creates a resolver. The hub lister is used for repositories on
// Docker Hub; every other registry goes through the generic client.
func NewResolver(client registry.Client, hub registry.HubLister) *Resolver {
	return &Resolver{
		client:   client,
		hub:      hub,
		arch:     runtime.GOARCH,
		pageSize: defaultPageSize,
		log:      logging.Default().WithComponent("resolve"),
	}
}

// WithPageSize overrides the tag-listing page size.
func (r *Resolver) WithPageSize(size int) *Resolver {
	if size > 0 {
		r.pageSize = size
	}
	return r
}

// Resolve determines the version and platform digest for an image reference.
//
// The version is taken from the image config's version label unless the
// label is missing or floating, in which case the tags aliasing the resolved
// digest are scanned and scored. An image with no derivable version yields a
// digest-only entry, not an error.
func (r *Resolver) Resolve(ctx context.Context, image string) (lock.VersionedImage, error) {
	digest, config, err := r.client.PullManifestAndConfig(ctx, image)
	if err != nil {
		return lock.VersionedImage{}, fmt.Errorf("failed to resolve %s: %w", image, err)
	}

	if v, ok := labelVersion(config); ok {
		r.log.Debug().Str("image", image).Str("version", v).Msg("version from config label")
		return lock.VersionedImage{Image: image, Version: &v, Digest: digest}, nil
	}

	aliases, err := r.aliases(ctx, image, digest)
	if err != nil {
		return lock.VersionedImage{}, fmt.Errorf("failed to scan aliases for %s: %w", image, err)
	}

	if tag, ok := version.CanonicalTag(aliases); ok {
		v := version.Normalize(tag)
		r.log.Debug().Str("image", image).Str("version", v).Msg("version from alias tags")
		return lock.VersionedImage{Image: image, Version: &v, Digest: digest}, nil
	}

	r.log.Debug().Str("image", image).Msg("no version derivable, pinning digest only")
	return lock.VersionedImage{Image: image, Digest: digest}, nil
}

// Update re-resolves a previously locked image. When the live platform
// digest matches the previous record, the record is returned verbatim with
// no further registry work; this keeps a content-identical republish from
// flapping the stored version. A changed digest triggers a full Resolve.
func (r *Resolver) Update(ctx context.Context, prev lock.VersionedImage) (lock.VersionedImage, error) {
	digest, err := r.client.PullPlatformDigest(ctx, prev.Image)
	if err != nil {
		return lock.VersionedImage{}, fmt.Errorf("failed to check %s: %w", prev.Image, err)
	}

	if digest == prev.Digest {
		return prev, nil
	}

	return r.Resolve(ctx, prev.Image)
}

// labelVersion extracts the version label from a raw image config. A missing,
// empty or floating value (an image mislabeling itself "latest") is rejected.
func labelVersion(config []byte) (string, bool) {
	cfg, err := v1.ParseConfigFile(bytes.NewReader(config))
	if err != nil {
		return "", false
	}

	raw, ok := cfg.Config.Labels[versionLabel]
	if !ok {
		return "", false
	}

	v := version.Normalize(raw)
	if v == "" || version.IsFloating(v) {
		return "", false
	}
	return v, true
}
