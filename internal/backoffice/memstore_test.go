package backoffice_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/voxdesk/internal/backoffice"
)

// tickClock returns a clock that advances one minute per call.
func tickClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func seed(t *testing.T, s backoffice.Store, recs ...backoffice.Record) []backoffice.Record {
	t.Helper()
	out := make([]backoffice.Record, 0, len(recs))
	for _, r := range recs {
		stored, err := s.Add(context.Background(), r)
		if err != nil {
			t.Fatalf("Add(%s): %v", r.Name, err)
		}
		out = append(out, stored)
	}
	return out
}

func TestMemStore_AddGeneratesID(t *testing.T) {
	t.Parallel()

	s := backoffice.NewMemStore()
	r, err := s.Add(context.Background(), backoffice.Record{Kind: backoffice.KindClient, Name: "Acme"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if r.ID == "" {
		t.Fatal("ID not generated")
	}
	if r.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}
	if r.Fields == nil {
		t.Error("Fields should be initialised")
	}
}

func TestMemStore_AddRejects(t *testing.T) {
	t.Parallel()

	s := backoffice.NewMemStore()
	ctx := context.Background()
	if _, err := s.Add(ctx, backoffice.Record{Kind: "invoice", Name: "x"}); err == nil {
		t.Error("unknown kind accepted")
	}
	seed(t, s, backoffice.Record{ID: "c1", Kind: backoffice.KindClient, Name: "Acme"})
	_, err := s.Add(ctx, backoffice.Record{ID: "c1", Kind: backoffice.KindClient, Name: "Other"})
	if !errors.Is(err, backoffice.ErrDuplicateID) {
		t.Errorf("err = %v, want ErrDuplicateID", err)
	}
}

func TestMemStore_GetReturnsCopy(t *testing.T) {
	t.Parallel()

	s := backoffice.NewMemStore()
	seed(t, s, backoffice.Record{ID: "c1", Kind: backoffice.KindClient, Name: "Acme", Fields: map[string]string{"owner": "Dana"}})

	r, _ := s.Get(context.Background(), "c1")
	r.Fields["owner"] = "mutated"

	again, _ := s.Get(context.Background(), "c1")
	if again.Fields["owner"] != "Dana" {
		t.Errorf("store mutated through returned record: %q", again.Fields["owner"])
	}
}

func TestMemStore_GetMissing(t *testing.T) {
	t.Parallel()

	_, err := backoffice.NewMemStore().Get(context.Background(), "nope")
	if !errors.Is(err, backoffice.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemStore_ListFiltersAndOrders(t *testing.T) {
	t.Parallel()

	s := backoffice.NewMemStore()
	seed(t, s,
		backoffice.Record{Kind: backoffice.KindTask, Name: "Draft brief"},
		backoffice.Record{Kind: backoffice.KindClient, Name: "zeta corp"},
		backoffice.Record{Kind: backoffice.KindClient, Name: "Acme"},
		backoffice.Record{Kind: backoffice.KindCampaign, Name: "Spring"},
	)
	ctx := context.Background()

	all, err := s.List(ctx, backoffice.ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var names []string
	for _, r := range all {
		names = append(names, r.Name)
	}
	want := []string{"Acme", "zeta corp", "Spring", "Draft brief"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}

	clients, _ := s.List(ctx, backoffice.ListOptions{Kind: backoffice.KindClient, Limit: 1})
	if len(clients) != 1 || clients[0].Name != "Acme" {
		t.Errorf("limited clients = %+v", clients)
	}

	byName, _ := s.List(ctx, backoffice.ListOptions{Name: "ACME"})
	if len(byName) != 1 {
		t.Errorf("case-insensitive name match returned %d records", len(byName))
	}
}

func TestMemStore_UpdateAndRemove(t *testing.T) {
	t.Parallel()

	s := backoffice.NewMemStore(backoffice.WithStoreClock(tickClock(time.Unix(0, 0))))
	ctx := context.Background()
	recs := seed(t, s, backoffice.Record{Kind: backoffice.KindCampaign, Name: "Spring"})

	r := recs[0]
	r.Kind = ""
	r.Fields["status"] = "live"
	updated, err := s.Update(ctx, r)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Kind != backoffice.KindCampaign {
		t.Errorf("kind = %q, want preserved", updated.Kind)
	}
	if !updated.UpdatedAt.After(recs[0].UpdatedAt) {
		t.Error("UpdatedAt not advanced")
	}

	if _, err := s.Update(ctx, backoffice.Record{ID: "missing"}); !errors.Is(err, backoffice.ErrNotFound) {
		t.Errorf("Update missing: %v", err)
	}
	if err := s.Remove(ctx, r.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove(ctx, r.ID); !errors.Is(err, backoffice.ErrNotFound) {
		t.Errorf("second Remove: %v", err)
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	s := backoffice.NewMemStore(backoffice.WithStoreClock(tickClock(time.Unix(0, 0))))
	seed(t, s,
		backoffice.Record{ID: "t1", Kind: backoffice.KindTask, Name: "Call Acme"},
		backoffice.Record{ID: "t2", Kind: backoffice.KindTask, Name: "call acme"},
	)
	ctx := context.Background()

	tests := []struct {
		name     string
		selector string
		wantID   string
		wantErr  bool
	}{
		{name: "by id", selector: "t1", wantID: "t1"},
		{name: "ambiguous name picks newest", selector: "CALL ACME", wantID: "t2"},
		{name: "trimmed", selector: "  t1 ", wantID: "t1"},
		{name: "unknown", selector: "nothing", wantErr: true},
		{name: "empty", selector: " ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, err := backoffice.Resolve(ctx, s, tt.selector)
			if tt.wantErr {
				if !errors.Is(err, backoffice.ErrNotFound) {
					t.Errorf("err = %v, want ErrNotFound", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if r.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", r.ID, tt.wantID)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	if k, err := backoffice.ParseKind(" Campaign "); err != nil || k != backoffice.KindCampaign {
		t.Errorf("ParseKind = %q, %v", k, err)
	}
	if _, err := backoffice.ParseKind("invoice"); err == nil {
		t.Error("unknown kind accepted")
	}
}
