package backoffice

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time interface assertion.
var _ Store = (*MemStore)(nil)

// MemStore is an in-memory [Store].
// All methods are safe for concurrent use.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// MemStoreOption configures a [MemStore].
type MemStoreOption func(*MemStore)

// WithStoreClock sets the clock used to stamp UpdatedAt. Defaults to
// [time.Now].
func WithStoreClock(now func() time.Time) MemStoreOption {
	return func(m *MemStore) { m.now = now }
}

// NewMemStore returns an empty MemStore.
func NewMemStore(opts ...MemStoreOption) *MemStore {
	m := &MemStore{records: make(map[string]Record), now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Add implements [Store.Add].
func (m *MemStore) Add(_ context.Context, r Record) (Record, error) {
	if _, err := ParseKind(string(r.Kind)); err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, exists := m.records[r.ID]; exists {
		return Record{}, fmt.Errorf("%w: %q", ErrDuplicateID, r.ID)
	}
	r = r.clone()
	if r.Fields == nil {
		r.Fields = make(map[string]string)
	}
	r.UpdatedAt = m.now()
	m.records[r.ID] = r
	return r.clone(), nil
}

// Get implements [Store.Get].
func (m *MemStore) Get(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return r.clone(), nil
}

// List implements [Store.List].
func (m *MemStore) List(_ context.Context, opts ListOptions) ([]Record, error) {
	m.mu.RLock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		if matches(r, opts) {
			out = append(out, r.clone())
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b Record) int {
		if c := cmp.Compare(kindOrder(a.Kind), kindOrder(b.Kind)); c != 0 {
			return c
		}
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Update implements [Store.Update].
func (m *MemStore) Update(_ context.Context, r Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.records[r.ID]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrNotFound, r.ID)
	}
	r = r.clone()
	if r.Kind == "" {
		r.Kind = prev.Kind
	}
	if r.Fields == nil {
		r.Fields = make(map[string]string)
	}
	r.UpdatedAt = m.now()
	m.records[r.ID] = r
	return r.clone(), nil
}

// Remove implements [Store.Remove].
func (m *MemStore) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	delete(m.records, id)
	return nil
}

func matches(r Record, opts ListOptions) bool {
	if opts.Kind != "" && r.Kind != opts.Kind {
		return false
	}
	if opts.Name != "" && !strings.EqualFold(r.Name, opts.Name) {
		return false
	}
	return true
}

func kindOrder(k Kind) int {
	if i := slices.Index(Kinds, k); i >= 0 {
		return i
	}
	return len(Kinds)
}
