package projects

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ComposeFile represents the subset of a docker-compose.yml file we read.
type ComposeFile struct {
	Services map[string]ComposeService `yaml:"services"`
}

// ComposeService represents a service in docker-compose.yml.
type ComposeService struct {
	Image string `yaml:"image"`
}

// ScanCompose parses a compose file and returns its services' image
// references. Services without an image (build-only services) are skipped.
func ScanCompose(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read compose file %s: %w", path, err)
	}

	var compose ComposeFile
	if err := yaml.Unmarshal(data, &compose); err != nil {
		return nil, fmt.Errorf("failed to parse compose file %s: %w", path, err)
	}

	images := make(map[string]string, len(compose.Services))
	for name, service := range compose.Services {
		if service.Image == "" {
			continue
		}
		images[name] = service.Image
	}

	return images, nil
}
