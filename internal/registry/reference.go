package registry

import (
	"fmt"

	"github.com/google/go-containerregistry/pkg/name"
)

// DockerHubHost is the canonical host of Docker Hub. References like
// "nginx:alpine" or "docker.io/library/nginx" resolve to it.
const DockerHubHost = name.DefaultRegistry

// CanonicalHost returns the canonical registry host an image reference
// addresses.
func CanonicalHost(image string) (string, error) {
	ref, err := name.ParseReference(image)
	if err != nil {
		return "", fmt.Errorf("invalid image reference %q: %w", image, err)
	}
	return ref.Context().RegistryStr(), nil
}

// RepositoryPath returns the repository path of an image reference, e.g.
// "library/nginx" for "nginx:alpine".
func RepositoryPath(image string) (string, error) {
	ref, err := name.ParseReference(image)
	if err != nil {
		return "", fmt.Errorf("invalid image reference %q: %w", image, err)
	}
	return ref.Context().RepositoryStr(), nil
}

// WithTag returns a reference to the same repository addressed by a
// different tag.
func WithTag(image, tag string) (string, error) {
	ref, err := name.ParseReference(image)
	if err != nil {
		return "", fmt.Errorf("invalid image reference %q: %w", image, err)
	}
	tagged, err := name.NewTag(fmt.Sprintf("%s:%s", ref.Context().Name(), tag))
	if err != nil {
		return "", fmt.Errorf("invalid tag %q: %w", tag, err)
	}
	return tagged.Name(), nil
}

// IsDigestReference reports whether an image reference pins a digest. A
// digest reference is immutable and must never be re-resolved.
func IsDigestReference(image string) bool {
	if _, err := name.NewDigest(image); err == nil {
		return true
	}
	return false
}
