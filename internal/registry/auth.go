package registry

import (
	"fmt"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
)

// Auth is one registry credential as declared in the configuration file.
type Auth struct {
	Type     string `yaml:"type"` // "anonymous", "basic" or "bearer"
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Token    string `yaml:"token,omitempty"`
}

// authenticator converts a declared credential into a go-containerregistry
// authenticator.
func (a Auth) authenticator() (authn.Authenticator, error) {
	switch a.Type {
	case "", "anonymous":
		return authn.Anonymous, nil
	case "basic":
		return &authn.Basic{Username: a.Username, Password: a.Password}, nil
	case "bearer":
		return &authn.Bearer{Token: a.Token}, nil
	default:
		return nil, fmt.Errorf("unknown auth type %q", a.Type)
	}
}

// ResolveHost canonicalizes a registry host alias (e.g. "docker.io" becomes
// "index.docker.io"). An empty host resolves to the default registry.
func ResolveHost(host string) (string, error) {
	reg, err := name.NewRegistry(host)
	if err != nil {
		return "", fmt.Errorf("invalid registry host %q: %w", host, err)
	}
	return reg.RegistryStr(), nil
}

// AuthStore maps canonical registry hosts to authenticators. Credentials are
// attached once at startup and read concurrently by resolution tasks
// afterwards; the store is immutable after construction.
type AuthStore struct {
	auths map[string]authn.Authenticator
}

// NewAuthStore builds an AuthStore from configured credentials, resolving
// each host alias to its canonical form.
func NewAuthStore(sources map[string]Auth) (*AuthStore, error) {
	auths := make(map[string]authn.Authenticator, len(sources))
	for host, auth := range sources {
		canonical, err := ResolveHost(host)
		if err != nil {
			return nil, err
		}
		authenticator, err := auth.authenticator()
		if err != nil {
			return nil, fmt.Errorf("registry %s: %w", host, err)
		}
		auths[canonical] = authenticator
	}
	return &AuthStore{auths: auths}, nil
}

// For returns the authenticator for a canonical registry host, anonymous
// when none is configured.
func (s *AuthStore) For(host string) authn.Authenticator {
	if s == nil {
		return authn.Anonymous
	}
	if a, ok := s.auths[host]; ok {
		return a
	}
	return authn.Anonymous
}
