// Package mock provides a recording [tools.Sink] for tests.
package mock

import (
	"context"
	"maps"
	"sync"

	"github.com/MrWong99/voxdesk/internal/tools"
)

var _ tools.Sink = (*Sink)(nil)

// NavigateCall records one Navigate invocation.
type NavigateCall struct {
	Path string
}

// CreateRecordCall records one CreateRecord invocation.
type CreateRecordCall struct {
	Fields map[string]string
}

// UpdateRecordCall records one UpdateRecord invocation.
type UpdateRecordCall struct {
	Selector string
	Field    string
	Value    string
}

// Sink is a mock [tools.Sink]. Calls are recorded before the configured error
// is returned.
type Sink struct {
	mu sync.Mutex

	// NavigateResult and NavigateErr are returned by Navigate.
	NavigateResult string
	NavigateErr    error

	// CreateRecordResult and CreateRecordErr are returned by CreateRecord.
	CreateRecordResult string
	CreateRecordErr    error

	// UpdateRecordResult and UpdateRecordErr are returned by UpdateRecord.
	UpdateRecordResult string
	UpdateRecordErr    error

	// Block, when non-nil, is received from before every call returns.
	Block chan struct{}

	// Order lists the tools invoked, in call order.
	Order []tools.Name

	NavigateCalls     []NavigateCall
	CreateRecordCalls []CreateRecordCall
	UpdateRecordCalls []UpdateRecordCall
}

// Navigate implements [tools.Sink].
func (s *Sink) Navigate(_ context.Context, path string) (string, error) {
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Order = append(s.Order, tools.Navigate)
	s.NavigateCalls = append(s.NavigateCalls, NavigateCall{Path: path})
	return s.NavigateResult, s.NavigateErr
}

// CreateRecord implements [tools.Sink].
func (s *Sink) CreateRecord(_ context.Context, fields map[string]string) (string, error) {
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Order = append(s.Order, tools.CreateRecord)
	s.CreateRecordCalls = append(s.CreateRecordCalls, CreateRecordCall{Fields: maps.Clone(fields)})
	return s.CreateRecordResult, s.CreateRecordErr
}

// UpdateRecord implements [tools.Sink].
func (s *Sink) UpdateRecord(_ context.Context, selector, field, value string) (string, error) {
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Order = append(s.Order, tools.UpdateRecord)
	s.UpdateRecordCalls = append(s.UpdateRecordCalls, UpdateRecordCall{Selector: selector, Field: field, Value: value})
	return s.UpdateRecordResult, s.UpdateRecordErr
}

// CallCount returns the total number of calls across all methods.
func (s *Sink) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.NavigateCalls) + len(s.CreateRecordCalls) + len(s.UpdateRecordCalls)
}

func (s *Sink) wait() {
	if s.Block != nil {
		<-s.Block
	}
}
