package projects

import (
	"fmt"
	"strings"
)

// SelectorKind classifies a target selector.
type SelectorKind int

const (
	// SelectAll targets every service of every project ("*").
	SelectAll SelectorKind = iota
	// SelectProject targets every service of one project ("media").
	SelectProject
	// SelectService targets a single service ("media.plex").
	SelectService
)

// Selector identifies the services a command operates on.
type Selector struct {
	Kind    SelectorKind
	Project string
	Service string
}

// ParseSelector parses and validates a target selector against the declared
// projects. Unknown projects or services are errors; "*" always parses.
func ParseSelector(s string, projects Projects) (Selector, error) {
	s = strings.TrimSpace(s)
	if s == "*" || s == "" {
		return Selector{Kind: SelectAll}, nil
	}

	project, service, hasService := strings.Cut(s, ".")

	declared, ok := projects[project]
	if !ok {
		return Selector{}, fmt.Errorf("project %q not found", project)
	}

	if !hasService {
		return Selector{Kind: SelectProject, Project: project}, nil
	}

	if _, ok := declared.Services[service]; !ok {
		return Selector{}, fmt.Errorf("service %q not found in project %q", service, project)
	}
	return Selector{Kind: SelectService, Project: project, Service: service}, nil
}

// ParseServiceSelector parses a selector that must name a single service.
func ParseServiceSelector(s string, projects Projects) (Selector, error) {
	selector, err := ParseSelector(s, projects)
	if err != nil {
		return Selector{}, err
	}
	if selector.Kind != SelectService {
		return Selector{}, fmt.Errorf("expected a selector like <project>.<service>, got %q", s)
	}
	return selector, nil
}

// Images resolves a selector to the services it targets, as a map from
// service identifier to image reference. Services without an image are
// skipped.
func (p Projects) Images(selector Selector) map[string]string {
	images := make(map[string]string)

	add := func(projectName string, project Project) {
		for serviceName, service := range project.Services {
			if service.Image == "" {
				continue
			}
			images[Identifier(projectName, serviceName)] = service.Image
		}
	}

	switch selector.Kind {
	case SelectAll:
		for name, project := range p {
			add(name, project)
		}
	case SelectProject:
		if project, ok := p[selector.Project]; ok {
			add(selector.Project, project)
		}
	case SelectService:
		project, ok := p[selector.Project]
		if !ok {
			break
		}
		service, ok := project.Services[selector.Service]
		if !ok || service.Image == "" {
			break
		}
		images[Identifier(selector.Project, selector.Service)] = service.Image
	}

	return images
}
