// Package registry supplies the registry capability consumed by the
// resolution engine: manifest/config pulls and tag listing against any OCI
// registry, plus the Docker Hub tags API which exposes per-architecture
// digests without manifest pulls.
package registry

import (
	"context"
	"errors"
	"fmt"
)

// Client defines the registry operations the resolution engine consumes.
// Implementations must resolve image indexes to the manifest matching the
// running architecture; all returned digests are platform manifest digests.
type Client interface {
	// PullManifestAndConfig resolves an image reference to its platform
	// manifest digest and raw config blob.
	PullManifestAndConfig(ctx context.Context, image string) (digest string, config []byte, err error)

	// PullPlatformDigest resolves an image reference to its platform
	// manifest digest without fetching the config.
	PullPlatformDigest(ctx context.Context, image string) (string, error)

	// ListTags returns one page of the repository's tags. The cursor is the
	// last tag of the previous page; an empty cursor requests the first
	// page. A short page signals the end of the listing.
	ListTags(ctx context.Context, image string, pageSize int, last string) ([]string, error)
}

// HubTag is one tag entry from the Docker Hub tags API. Each tag embeds the
// per-architecture images it currently points at.
type HubTag struct {
	Name   string     `json:"name"`
	Digest string     `json:"digest"`
	Images []HubImage `json:"images"`
}

// HubImage is one platform image under a Docker Hub tag.
type HubImage struct {
	Architecture string `json:"architecture"`
	OS           string `json:"os"`
	Digest       string `json:"digest"`
}

// HubLister lists Docker Hub tags with their embedded platform digests.
type HubLister interface {
	// ListTags returns every tag of a Docker Hub repository
	// ("namespace/name"), paginating until a short page.
	ListTags(ctx context.Context, repository string) ([]HubTag, error)
}

// ErrNoMatchingPlatform is returned when an image index carries no manifest
// for the running architecture. This is fatal for the affected image only.
var ErrNoMatchingPlatform = errors.New("no manifest matches the current platform")

// StatusError is a non-2xx response from a registry endpoint.
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("registry returned %d for %s", e.Status, e.URL)
}
