// Package registry holds the declarative list of files under management.
// Entries are built once per session from the manifest and never mutated.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"refsync/internal/config"
)

// Kind distinguishes how a managed file is synchronized
type Kind string

const (
	// KindPatch files carry a managed marker block; only the text between
	// the markers is synchronized.
	KindPatch Kind = "patch"
	// KindCopy files are mirrored in their entirety.
	KindCopy Kind = "copy"
)

// ManagedFile represents one file under management
type ManagedFile struct {
	Path      string
	Kind      Kind
	Begin     string           // patch targets only
	End       string           // patch targets only
	Placement config.Placement // patch targets only
}

// ID returns a short, stable identifier for the managed path. It keys the
// file's entry in the reference store. sha256 keeps distinct paths from
// colliding within a session; collisions are still checked at build time.
func (m ManagedFile) ID() string {
	sum := sha256.Sum256([]byte(m.Path))
	return hex.EncodeToString(sum[:])[:12]
}

// Registry is the ordered set of managed files for one session
type Registry struct {
	files []ManagedFile
	byID  map[string]ManagedFile
}

// New creates an empty registry
func New() *Registry {
	return &Registry{byID: make(map[string]ManagedFile)}
}

// FromConfig builds a registry from the manifest, patches first, preserving
// manifest order.
func FromConfig(cfg *config.Config) (*Registry, error) {
	r := New()
	for _, p := range cfg.Patches {
		if err := r.RegisterPatch(p.Path, p.Begin, p.End, p.Placement); err != nil {
			return nil, err
		}
	}
	for _, c := range cfg.Copies {
		if err := r.RegisterCopy(c.Path); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RegisterPatch appends a patch target. Markers are required and must
// differ; config validation normally catches this first, but direct callers
// get the same checks.
func (r *Registry) RegisterPatch(path, begin, end string, placement config.Placement) error {
	if begin == "" || end == "" {
		return fmt.Errorf("patch %s: begin and end markers are required", path)
	}
	if begin == end {
		return fmt.Errorf("patch %s: begin and end markers must differ", path)
	}
	if placement == "" {
		placement = config.PlacementTop
	}
	switch placement {
	case config.PlacementTop, config.PlacementBottom:
		// valid
	default:
		return fmt.Errorf("patch %s: invalid placement: %s", path, placement)
	}
	return r.add(ManagedFile{
		Path:      path,
		Kind:      KindPatch,
		Begin:     begin,
		End:       end,
		Placement: placement,
	})
}

// RegisterCopy appends a copy target
func (r *Registry) RegisterCopy(path string) error {
	return r.add(ManagedFile{Path: path, Kind: KindCopy})
}

func (r *Registry) add(f ManagedFile) error {
	if f.Path == "" {
		return fmt.Errorf("managed file path is required")
	}
	id := f.ID()
	if prev, exists := r.byID[id]; exists {
		if prev.Path == f.Path {
			return fmt.Errorf("duplicate managed path: %s", f.Path)
		}
		return fmt.Errorf("identifier collision between %s and %s", prev.Path, f.Path)
	}
	r.files = append(r.files, f)
	r.byID[id] = f
	return nil
}

// Files returns all managed files in registration order
func (r *Registry) Files() []ManagedFile {
	return r.files
}

// Len returns the number of managed files
func (r *Registry) Len() int {
	return len(r.files)
}

// Lookup resolves an identifier to its managed file
func (r *Registry) Lookup(id string) (ManagedFile, bool) {
	f, ok := r.byID[id]
	return f, ok
}
