// Package backoffice holds the agency records the assistant reads and edits:
// clients, campaigns and tasks.
//
// [Store] is the persistence contract; [MemStore] is the in-process
// implementation used by tests and by deployments without PostgreSQL.
// [Loader] turns a store into a [Snapshot] and a system-prompt section the
// session appends to its instructions. [Actions] executes the assistant's
// tool calls against the store and the UI.
package backoffice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a record lookup has no match.
var ErrNotFound = errors.New("backoffice: record not found")

// ErrDuplicateID is returned when adding a record whose ID already exists.
var ErrDuplicateID = errors.New("backoffice: duplicate record id")

// Kind classifies a record.
type Kind string

const (
	KindClient   Kind = "client"
	KindCampaign Kind = "campaign"
	KindTask     Kind = "task"
)

// Kinds lists every record kind in display order.
var Kinds = []Kind{KindClient, KindCampaign, KindTask}

// ParseKind validates s (case-insensitive) as a record kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("backoffice: unknown record kind %q", s)
}

// Record is one back-office row. Fields carries the kind-specific columns
// (status, owner, budget, due date, ...) as display strings.
type Record struct {
	ID        string
	Kind      Kind
	Name      string
	Fields    map[string]string
	UpdatedAt time.Time
}

// clone returns a deep copy of r.
func (r Record) clone() Record {
	if r.Fields != nil {
		f := make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			f[k] = v
		}
		r.Fields = f
	}
	return r
}

// ListOptions filters [Store.List]. Zero values mean "no filter".
type ListOptions struct {
	Kind Kind

	// Name matches records whose name equals Name, ignoring case.
	Name string

	// Limit caps the number of results. Zero means no limit.
	Limit int
}

// Store persists back-office records. Implementations must be safe for
// concurrent use.
type Store interface {
	// Add inserts r. An empty ID is generated. Returns the stored record.
	Add(ctx context.Context, r Record) (Record, error)

	// Get returns the record with id or [ErrNotFound].
	Get(ctx context.Context, id string) (Record, error)

	// List returns records matching opts ordered by kind, then name.
	List(ctx context.Context, opts ListOptions) ([]Record, error)

	// Update replaces the stored record with the same ID or returns
	// [ErrNotFound].
	Update(ctx context.Context, r Record) (Record, error)

	// Remove deletes the record with id or returns [ErrNotFound].
	Remove(ctx context.Context, id string) error
}

// Resolve finds the record selector refers to: first by ID, then by a
// case-insensitive name match. An ambiguous name resolves to the most
// recently updated record.
func Resolve(ctx context.Context, s Store, selector string) (Record, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return Record{}, fmt.Errorf("backoffice: resolve: empty selector: %w", ErrNotFound)
	}
	r, err := s.Get(ctx, selector)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Record{}, err
	}
	matches, err := s.List(ctx, ListOptions{Name: selector})
	if err != nil {
		return Record{}, err
	}
	if len(matches) == 0 {
		return Record{}, fmt.Errorf("backoffice: resolve %q: %w", selector, ErrNotFound)
	}
	best := matches[0]
	for _, m := range matches[1:] {
		if m.UpdatedAt.After(best.UpdatedAt) {
			best = m
		}
	}
	return best, nil
}
