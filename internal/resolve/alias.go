package resolve

import (
	"context"
	"fmt"

	"github.com/chis/locksmith/internal/registry"
)

// aliases returns the tags of the image's repository that currently point at
// the given platform digest. Repositories on Docker Hub use the hub tags
// API, whose responses embed per-architecture digests; every other registry
// walks the V2 tag list and pulls manifests one at a time.
func (r *Resolver) aliases(ctx context.Context, image, digest string) ([]string, error) {
	host, err := registry.CanonicalHost(image)
	if err != nil {
		return nil, err
	}

	if host == registry.DockerHubHost && r.hub != nil {
		return r.hubAliases(ctx, image, digest)
	}
	return r.genericAliases(ctx, image, digest)
}

// hubAliases finds aliasing tags from the Docker Hub tags API without any
// manifest pulls. A tag is an alias iff one of its images for the current
// architecture carries the target digest.
func (r *Resolver) hubAliases(ctx context.Context, image, digest string) ([]string, error) {
	repository, err := registry.RepositoryPath(image)
	if err != nil {
		return nil, err
	}

	tags, err := r.hub.ListTags(ctx, repository)
	if err != nil {
		return nil, err
	}

	var aliases []string
	for _, tag := range tags {
		if d, ok := tag.DigestFor(r.arch); ok && d == digest {
			aliases = append(aliases, tag.Name)
		}
	}
	return aliases, nil
}

// genericAliases finds aliasing tags on a plain OCI registry. The full tag
// list is fetched, then walked in reverse on the assumption that registries
// list tags oldest first: tags are skipped until the first digest match,
// collected while they keep matching, and the walk stops at the first
// mismatch after a match. Aliases of the newest push sit contiguously at the
// head of the reversed list, so manifest pulls are bounded by the distance
// to the match plus the run of aliases. Exhausting the list without a match
// yields an empty set.
func (r *Resolver) genericAliases(ctx context.Context, image, digest string) ([]string, error) {
	tags, err := r.listAllTags(ctx, image)
	if err != nil {
		return nil, err
	}

	var aliases []string
	matched := false

	for i := len(tags) - 1; i >= 0; i-- {
		tag := tags[i]

		ref, err := registry.WithTag(image, tag)
		if err != nil {
			return nil, err
		}
		d, err := r.client.PullPlatformDigest(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("failed to pull manifest for tag %s: %w", tag, err)
		}

		if d == digest {
			matched = true
			aliases = append(aliases, tag)
			continue
		}
		if matched {
			break
		}
	}

	return aliases, nil
}

// listAllTags drains the cursor-paginated V2 tags/list endpoint. The cursor
// is the last tag of the previous page; a short page ends the listing.
func (r *Resolver) listAllTags(ctx context.Context, image string) ([]string, error) {
	var tags []string
	last := ""

	for {
		page, err := r.client.ListTags(ctx, image, r.pageSize, last)
		if err != nil {
			return nil, err
		}
		tags = append(tags, page...)
		if len(page) < r.pageSize {
			return tags, nil
		}
		last = page[len(page)-1]
	}
}
