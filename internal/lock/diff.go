package lock

// DiffKind classifies one entry of a lock-state diff.
type DiffKind int

const (
	// Added means the service exists only in the new state.
	Added DiffKind = iota
	// Updated means the service exists in both states with differing values.
	Updated
	// Removed means the service exists only in the old state.
	Removed
)

func (k DiffKind) String() string {
	switch k {
	case Added:
		return "added"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// DiffEntry describes one changed service between two lock states. Old is
// nil for Added entries, New is nil for Removed entries.
type DiffEntry struct {
	Kind    DiffKind
	Service string
	Old     *VersionedImage
	New     *VersionedImage
}

// Diff compares two lock states. Entries are emitted in key order: first
// additions and updates in the order of the new state's keys, then removals
// in the order of the old state's keys.
func Diff(old, new *State) []DiffEntry {
	var entries []DiffEntry

	for _, service := range new.Services() {
		newImage, _ := new.Get(service)
		oldImage, existed := old.Get(service)
		switch {
		case !existed:
			n := newImage
			entries = append(entries, DiffEntry{
				Kind:    Added,
				Service: service,
				New:     &n,
			})
		case !oldImage.Equal(newImage):
			o, n := oldImage, newImage
			entries = append(entries, DiffEntry{
				Kind:    Updated,
				Service: service,
				Old:     &o,
				New:     &n,
			})
		}
	}

	for _, service := range old.Services() {
		if _, exists := new.Get(service); !exists {
			oldImage, _ := old.Get(service)
			o := oldImage
			entries = append(entries, DiffEntry{
				Kind:    Removed,
				Service: service,
				Old:     &o,
			})
		}
	}

	return entries
}
