// Package university contains the static institution catalog and its
// mapping to scoring method variants. This is a pure domain layer with
// zero external dependencies; the catalog data itself is loaded by
// infrastructure at startup.
package university

import (
	"errors"
	"fmt"
	"strings"

	"github.com/admit-hub/admission-calc-bot/internal/domain/scoring"
)

// Domain errors for the university package.
var (
	ErrEmptyID          = errors.New("university: empty institution id")
	ErrDuplicateID      = errors.New("university: duplicate institution id")
	ErrUnknownMethod    = errors.New("university: unknown scoring method")
	ErrEmptyDisplayName = errors.New("university: empty display name")
)

// ID identifies an institution ("unilag", "oau", ...).
// IDs are lowercase slugs; ParseID normalizes input.
type ID string

// ParseID normalizes a raw institution identifier.
func ParseID(raw string) ID {
	return ID(strings.ToLower(strings.TrimSpace(raw)))
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return string(id)
}

// University is a single catalog entry.
type University struct {
	// ID is the stable lowercase identifier used in callback data.
	ID ID

	// Name is the display name shown on menu buttons.
	Name string

	// Method is the scoring variant this institution uses.
	Method scoring.Method
}

// Validate checks a catalog entry before it is admitted to the registry.
func (u University) Validate() error {
	if u.ID == "" {
		return ErrEmptyID
	}
	if u.Name == "" {
		return fmt.Errorf("%w: %s", ErrEmptyDisplayName, u.ID)
	}
	if !u.Method.IsValid() {
		return fmt.Errorf("%w: %s uses %q", ErrUnknownMethod, u.ID, u.Method)
	}
	return nil
}

// Registry is the closed institution -> method mapping. Lookups for
// unmapped identifiers fall back to scoring.DefaultMethod instead of
// failing; extending the mapping is a catalog change, not a code change.
type Registry struct {
	byID    map[ID]University
	ordered []University
}

// NewRegistry builds a registry from catalog entries, preserving order
// for menu pagination. Entries are validated; duplicate IDs are rejected.
func NewRegistry(entries []University) (*Registry, error) {
	r := &Registry{
		byID:    make(map[ID]University, len(entries)),
		ordered: make([]University, 0, len(entries)),
	}
	for _, u := range entries {
		if err := u.Validate(); err != nil {
			return nil, err
		}
		if _, exists := r.byID[u.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, u.ID)
		}
		r.byID[u.ID] = u
		r.ordered = append(r.ordered, u)
	}
	return r, nil
}

// Get returns the catalog entry for id.
func (r *Registry) Get(id ID) (University, bool) {
	u, ok := r.byID[id]
	return u, ok
}

// Resolve maps an institution to its scoring method. Unmapped
// identifiers (including the empty one used by the standard flow)
// resolve to the default variant.
func (r *Registry) Resolve(id ID) scoring.Method {
	if u, ok := r.byID[id]; ok {
		return u.Method
	}
	return scoring.DefaultMethod
}

// Len returns the number of catalog entries.
func (r *Registry) Len() int {
	return len(r.ordered)
}

// Page returns one page of the catalog in stable order, 1-based.
// hasMore reports whether a further page exists. Out-of-range pages
// return an empty slice.
func (r *Registry) Page(page, perPage int) (entries []University, hasMore bool) {
	if page < 1 || perPage < 1 {
		return nil, false
	}
	start := (page - 1) * perPage
	if start >= len(r.ordered) {
		return nil, false
	}
	end := start + perPage
	if end > len(r.ordered) {
		end = len(r.ordered)
	}
	return r.ordered[start:end], end < len(r.ordered)
}
