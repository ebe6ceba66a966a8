// Package lock maintains the persisted mapping from service identifiers to
// digest-pinned image versions, and computes diffs between two such
// mappings.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// UnknownImage marks entries loaded from the legacy digest-only lock schema,
// which did not record the image reference.
const UnknownImage = "<unknown>"

// VersionedImage pins one image reference to an exact digest and, when one
// could be resolved, a human-meaningful version. Values are immutable once
// constructed; updates replace the whole value.
type VersionedImage struct {
	Image   string  `json:"image"`
	Version *string `json:"version"`
	Digest  string  `json:"digest"`
}

// Equal reports structural equality. Equal values are a no-op for lock
// purposes.
func (v VersionedImage) Equal(other VersionedImage) bool {
	if v.Image != other.Image || v.Digest != other.Digest {
		return false
	}
	if (v.Version == nil) != (other.Version == nil) {
		return false
	}
	return v.Version == nil || *v.Version == *other.Version
}

// VersionString returns the version or "none" for display.
func (v VersionedImage) VersionString() string {
	if v.Version == nil {
		return "none"
	}
	return *v.Version
}

// State is the mapping from service identifier (typically
// "<project>.<service>") to its locked image. Keys are unique; persistence
// is key-sorted for stable diffs in version control.
type State struct {
	services map[string]VersionedImage
}

// NewState creates an empty lock state.
func NewState() *State {
	return &State{services: make(map[string]VersionedImage)}
}

// Get returns the locked image for a service.
func (s *State) Get(service string) (VersionedImage, bool) {
	v, ok := s.services[service]
	return v, ok
}

// Set records the locked image for a service, replacing any prior value.
func (s *State) Set(service string, image VersionedImage) {
	s.services[service] = image
}

// Len returns the number of locked services.
func (s *State) Len() int {
	return len(s.services)
}

// Services returns all service identifiers in sorted order.
func (s *State) Services() []string {
	keys := make([]string, 0, len(s.services))
	for k := range s.services {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	clone := NewState()
	for k, v := range s.services {
		clone.services[k] = v
	}
	return clone
}

// Equal reports whether two states lock the same services to the same
// values.
func (s *State) Equal(other *State) bool {
	if len(s.services) != len(other.services) {
		return false
	}
	for k, v := range s.services {
		o, ok := other.services[k]
		if !ok || !v.Equal(o) {
			return false
		}
	}
	return true
}

// MarshalJSON serializes the state as an object keyed by service identifier.
// encoding/json emits map keys in sorted order, which gives us the stable
// on-disk ordering for free.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.services)
}

// UnmarshalJSON accepts both the current schema (service -> object) and the
// legacy schema (service -> digest string). Legacy entries load with an
// unknown image and no version; the engine always writes the current
// schema back.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("lock file is not an object: %w", err)
	}

	s.services = make(map[string]VersionedImage, len(raw))
	for service, value := range raw {
		var image VersionedImage
		if err := json.Unmarshal(value, &image); err == nil {
			s.services[service] = image
			continue
		}

		var digest string
		if err := json.Unmarshal(value, &digest); err != nil {
			return fmt.Errorf("lock entry %q is neither an image object nor a digest string", service)
		}
		s.services[service] = VersionedImage{
			Image:   UnknownImage,
			Version: nil,
			Digest:  digest,
		}
	}

	return nil
}

// Load reads a lock state from path. A missing file yields an empty state;
// a malformed file is an error, since no meaningful diff can be computed
// against it.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("failed to read lock file %s: %w", path, err)
	}

	state := NewState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to parse lock file %s: %w", path, err)
	}

	return state, nil
}

// Save writes the state to path as pretty-printed, key-sorted JSON. The
// write goes through a temporary file and a rename so an interrupted run
// never leaves a truncated lock file behind.
func Save(state *State, path string) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize lock state: %w", err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace lock file: %w", err)
	}

	return nil
}
