// Package mock provides a scriptable [backoffice.Store] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxdesk/internal/backoffice"
)

var _ backoffice.Store = (*Store)(nil)

// Store wraps a [backoffice.MemStore] and lets tests inject errors and
// count calls.
type Store struct {
	mu    sync.Mutex
	inner *backoffice.MemStore

	// AddErr, GetErr, ListErr, UpdateErr and RemoveErr are returned instead
	// of delegating when non-nil.
	AddErr    error
	GetErr    error
	ListErr   error
	UpdateErr error
	RemoveErr error

	// ListCalls records the options of every List call.
	ListCalls []backoffice.ListOptions

	// UpdateCallCount counts Update invocations.
	UpdateCallCount int
}

// New returns a Store backed by an empty in-memory store.
func New(opts ...backoffice.MemStoreOption) *Store {
	return &Store{inner: backoffice.NewMemStore(opts...)}
}

// Add implements [backoffice.Store].
func (s *Store) Add(ctx context.Context, r backoffice.Record) (backoffice.Record, error) {
	s.mu.Lock()
	err := s.AddErr
	s.mu.Unlock()
	if err != nil {
		return backoffice.Record{}, err
	}
	return s.inner.Add(ctx, r)
}

// Get implements [backoffice.Store].
func (s *Store) Get(ctx context.Context, id string) (backoffice.Record, error) {
	s.mu.Lock()
	err := s.GetErr
	s.mu.Unlock()
	if err != nil {
		return backoffice.Record{}, err
	}
	return s.inner.Get(ctx, id)
}

// List implements [backoffice.Store].
func (s *Store) List(ctx context.Context, opts backoffice.ListOptions) ([]backoffice.Record, error) {
	s.mu.Lock()
	s.ListCalls = append(s.ListCalls, opts)
	err := s.ListErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.inner.List(ctx, opts)
}

// Update implements [backoffice.Store].
func (s *Store) Update(ctx context.Context, r backoffice.Record) (backoffice.Record, error) {
	s.mu.Lock()
	s.UpdateCallCount++
	err := s.UpdateErr
	s.mu.Unlock()
	if err != nil {
		return backoffice.Record{}, err
	}
	return s.inner.Update(ctx, r)
}

// Remove implements [backoffice.Store].
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	err := s.RemoveErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.inner.Remove(ctx, id)
}

// Calls returns a copy of the recorded List options.
func (s *Store) Calls() []backoffice.ListOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backoffice.ListOptions(nil), s.ListCalls...)
}
