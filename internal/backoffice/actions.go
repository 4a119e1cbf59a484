package backoffice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/voxdesk/internal/tools"
)

var _ tools.Sink = (*Actions)(nil)

// Navigator moves the user's UI to a route.
type Navigator interface {
	Navigate(ctx context.Context, path string) error
}

// NavigatorFunc adapts a function to [Navigator].
type NavigatorFunc func(ctx context.Context, path string) error

// Navigate implements [Navigator].
func (f NavigatorFunc) Navigate(ctx context.Context, path string) error { return f(ctx, path) }

// ActionsOption configures [Actions].
type ActionsOption func(*Actions)

// WithChangeHook registers fn to run after every record the assistant
// creates or updates.
func WithChangeHook(fn func(Record)) ActionsOption {
	return func(a *Actions) { a.onChange = fn }
}

// Actions executes the assistant's tool calls: navigation goes to the UI,
// record edits go to the store. Results are short confirmations the model
// reads back to the user.
type Actions struct {
	store    Store
	nav      Navigator
	onChange func(Record)
}

// NewActions creates Actions. nav may be nil, in which case navigation
// requests fail.
func NewActions(store Store, nav Navigator, opts ...ActionsOption) *Actions {
	a := &Actions{store: store, nav: nav}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Navigate implements [tools.Sink]. Relative paths are rooted.
func (a *Actions) Navigate(ctx context.Context, path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("backoffice: navigate: empty path")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if a.nav == nil {
		return "", errors.New("backoffice: navigate: no navigator attached")
	}
	if err := a.nav.Navigate(ctx, path); err != nil {
		return "", fmt.Errorf("backoffice: navigate %s: %w", path, err)
	}
	return "Opened " + path, nil
}

// CreateRecord implements [tools.Sink]. fields must carry "kind" and "name";
// every other entry becomes a record field.
func (a *Actions) CreateRecord(ctx context.Context, fields map[string]string) (string, error) {
	kind, err := ParseKind(fields["kind"])
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(fields["name"])
	if name == "" {
		return "", fmt.Errorf("backoffice: create %s: name is required", kind)
	}

	rec := Record{Kind: kind, Name: name, Fields: make(map[string]string, len(fields))}
	for k, v := range fields {
		if k == "kind" || k == "name" {
			continue
		}
		rec.Fields[k] = v
	}

	rec, err = a.store.Add(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("backoffice: create %s: %w", kind, err)
	}
	a.changed(rec)
	return fmt.Sprintf("Created %s %q (id %s)", rec.Kind, rec.Name, rec.ID), nil
}

// UpdateRecord implements [tools.Sink]. selector is a record ID or name.
// Setting "name" renames the record; an empty value removes a field.
func (a *Actions) UpdateRecord(ctx context.Context, selector, field, value string) (string, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return "", errors.New("backoffice: update: field is required")
	}
	rec, err := Resolve(ctx, a.store, selector)
	if err != nil {
		return "", err
	}

	switch {
	case field == "name":
		if strings.TrimSpace(value) == "" {
			return "", errors.New("backoffice: update: name cannot be empty")
		}
		rec.Name = value
	case field == "kind" || field == "id":
		return "", fmt.Errorf("backoffice: update: field %q is read-only", field)
	case value == "":
		delete(rec.Fields, field)
	default:
		if rec.Fields == nil {
			rec.Fields = make(map[string]string)
		}
		rec.Fields[field] = value
	}

	updated, err := a.store.Update(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("backoffice: update %s: %w", rec.ID, err)
	}
	rec = updated
	a.changed(rec)
	if value == "" {
		return fmt.Sprintf("Cleared %s on %s %q", field, rec.Kind, rec.Name), nil
	}
	return fmt.Sprintf("Set %s of %s %q to %s", field, rec.Kind, rec.Name, value), nil
}

func (a *Actions) changed(r Record) {
	if a.onChange != nil {
		a.onChange(r)
	}
}
