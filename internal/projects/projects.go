// Package projects models the declaration of docker-compose projects and
// their services, and resolves target selectors ("*", "project",
// "project.service") to the set of images a run should pin.
package projects

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Service is one service of a project. The image may be omitted in the
// declaration and filled in from the project's compose file.
type Service struct {
	Image string `yaml:"image,omitempty"`
}

// Project is one docker-compose project.
type Project struct {
	ComposeFile string             `yaml:"docker-compose"`
	Services    map[string]Service `yaml:"services"`
}

// Projects maps project names to their declarations.
type Projects map[string]Project

// Load reads a projects document from path.
func Load(path string) (Projects, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read projects file %s: %w", path, err)
	}

	var projects Projects
	if err := yaml.Unmarshal(data, &projects); err != nil {
		return nil, fmt.Errorf("failed to parse projects file %s: %w", path, err)
	}

	return projects, nil
}

// ExpandFromCompose fills in services and images a project declaration left
// out by scanning its compose file. Compose paths are resolved relative to
// baseDir. Declared images always win over scanned ones.
func (p Projects) ExpandFromCompose(baseDir string) error {
	for name, project := range p {
		if project.ComposeFile == "" {
			continue
		}

		composePath := project.ComposeFile
		if !filepath.IsAbs(composePath) {
			composePath = filepath.Join(baseDir, composePath)
		}

		scanned, err := ScanCompose(composePath)
		if err != nil {
			return fmt.Errorf("project %s: %w", name, err)
		}

		if project.Services == nil {
			project.Services = make(map[string]Service, len(scanned))
		}
		for serviceName, image := range scanned {
			declared, ok := project.Services[serviceName]
			if ok && declared.Image != "" {
				continue
			}
			project.Services[serviceName] = Service{Image: image}
		}
		p[name] = project
	}

	return nil
}

// Identifier builds the "<project>.<service>" key used in the lock file.
func Identifier(project, service string) string {
	return project + "." + service
}
