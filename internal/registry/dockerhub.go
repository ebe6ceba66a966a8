package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultHubBaseURL  = "https://hub.docker.com"
	defaultHubPageSize = 100
)

// hubTagsResponse is one page of the Docker Hub tags API.
type hubTagsResponse struct {
	Count   int      `json:"count"`
	Results []HubTag `json:"results"`
}

// HubClient implements HubLister against the Docker Hub tags API
// (hub.docker.com/v2/repositories). Unlike the V2 tags/list endpoint, Hub
// responses embed per-architecture digests, so alias resolution on Hub
// needs no manifest pulls at all.
type HubClient struct {
	baseURL  string
	pageSize int
	client   *http.Client
}

// NewHubClient creates a Docker Hub tags API client.
func NewHubClient() *HubClient {
	return &HubClient{
		baseURL:  defaultHubBaseURL,
		pageSize: defaultHubPageSize,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// ListTags implements HubLister. Pages are fetched in Hub's default order,
// newest pushes first, until a short page ends the listing.
func (c *HubClient) ListTags(ctx context.Context, repository string) ([]HubTag, error) {
	var tags []HubTag

	for page := 1; ; page++ {
		results, err := c.fetchPage(ctx, repository, page)
		if err != nil {
			return nil, err
		}
		tags = append(tags, results...)
		if len(results) < c.pageSize {
			return tags, nil
		}
	}
}

func (c *HubClient) fetchPage(ctx context.Context, repository string, page int) ([]HubTag, error) {
	query := url.Values{}
	query.Set("page_size", strconv.Itoa(c.pageSize))
	query.Set("page", strconv.Itoa(page))
	uri := fmt.Sprintf("%s/v2/repositories/%s/tags?%s", c.baseURL, repository, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags for %s: %w", repository, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Status: resp.StatusCode, URL: uri}
	}

	var body hubTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode tags response: %w", err)
	}

	return body.Results, nil
}

// DigestFor returns the digest of the tag's image for the given
// architecture, or false when the tag carries no image for it.
func (t HubTag) DigestFor(arch string) (string, bool) {
	for _, img := range t.Images {
		if img.Architecture == arch && img.Digest != "" {
			return img.Digest, true
		}
	}
	return "", false
}
