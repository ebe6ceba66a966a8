// Package docker discovers which compose services are currently running, so
// a run can be narrowed to exactly the services deployed on this host.
package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/chis/locksmith/internal/projects"
)

// Compose labels the docker daemon attaches to containers started by
// docker-compose.
const (
	composeProjectLabel = "com.docker.compose.project"
	composeServiceLabel = "com.docker.compose.service"
)

// RunningService is one compose service with a running container.
type RunningService struct {
	Project   string
	Service   string
	Image     string
	Container string
}

// Identifier returns the service's lock identifier.
func (s RunningService) Identifier() string {
	return projects.Identifier(s.Project, s.Service)
}

// Client defines the container discovery operations.
type Client interface {
	// ListRunningServices returns every running compose service.
	ListRunningServices(ctx context.Context) ([]RunningService, error)

	// Close releases resources held by the client.
	Close() error
}

// Service implements Client on the Docker SDK.
type Service struct {
	cli *client.Client
}

// NewService connects to the Docker daemon using the environment's settings
// (DOCKER_HOST, or the default unix socket).
func NewService() (*Service, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Service{cli: cli}, nil
}

// ListRunningServices implements Client. Containers without compose labels
// (started outside compose) are skipped.
func (s *Service) ListRunningServices(ctx context.Context) ([]RunningService, error) {
	containers, err := s.cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	services := make([]RunningService, 0, len(containers))
	for _, c := range containers {
		project := c.Labels[composeProjectLabel]
		service := c.Labels[composeServiceLabel]
		if project == "" || service == "" {
			continue
		}

		name := c.ID
		if len(c.Names) > 0 {
			name = c.Names[0]
		}

		services = append(services, RunningService{
			Project:   project,
			Service:   service,
			Image:     c.Image,
			Container: name,
		})
	}

	return services, nil
}

// Close implements Client.
func (s *Service) Close() error {
	return s.cli.Close()
}

// FilterImages narrows a service-to-image map to the services currently
// running. Services running outside the declared set are ignored.
func FilterImages(images map[string]string, running []RunningService) map[string]string {
	active := make(map[string]bool, len(running))
	for _, svc := range running {
		active[svc.Identifier()] = true
	}

	filtered := make(map[string]string)
	for identifier, image := range images {
		if active[identifier] {
			filtered[identifier] = image
		}
	}
	return filtered
}
