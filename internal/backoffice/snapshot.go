package backoffice

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Snapshot is a point-in-time view of the records the assistant may talk
// about.
type Snapshot struct {
	Clients   []Record
	Campaigns []Record
	Tasks     []Record

	// TakenAt is when the snapshot was assembled.
	TakenAt time.Time

	// LoadDuration is how long the concurrent fetch took.
	LoadDuration time.Duration
}

// Empty reports whether the snapshot holds no records.
func (s Snapshot) Empty() bool {
	return len(s.Clients) == 0 && len(s.Campaigns) == 0 && len(s.Tasks) == 0
}

// SnapshotProvider supplies the data a session is primed with.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// LoaderOption configures a [Loader].
type LoaderOption func(*Loader)

// WithPerKindLimit caps how many records of each kind enter a snapshot.
// Zero means no limit. Default: 50.
func WithPerKindLimit(n int) LoaderOption {
	return func(l *Loader) { l.perKind = n }
}

// WithClock overrides the clock used for TakenAt and relative timestamps.
func WithClock(now func() time.Time) LoaderOption {
	return func(l *Loader) { l.now = now }
}

// Loader builds snapshots from a [Store], fetching every kind concurrently.
// It also renders the snapshot as a system-prompt section, which makes it
// usable as the session's context source.
type Loader struct {
	store   Store
	perKind int
	now     func() time.Time
}

var _ SnapshotProvider = (*Loader)(nil)

// NewLoader creates a Loader over store.
func NewLoader(store Store, opts ...LoaderOption) *Loader {
	l := &Loader{store: store, perKind: 50, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Snapshot implements [SnapshotProvider]. Any failing fetch cancels the
// others and fails the whole snapshot.
func (l *Loader) Snapshot(ctx context.Context) (Snapshot, error) {
	start := l.now()

	var clients, campaigns, tasks []Record
	eg, egCtx := errgroup.WithContext(ctx)
	fetch := func(kind Kind, dst *[]Record) {
		eg.Go(func() error {
			recs, err := l.store.List(egCtx, ListOptions{Kind: kind, Limit: l.perKind})
			if err != nil {
				return fmt.Errorf("snapshot: list %ss: %w", kind, err)
			}
			*dst = recs
			return nil
		})
	}
	fetch(KindClient, &clients)
	fetch(KindCampaign, &campaigns)
	fetch(KindTask, &tasks)

	if err := eg.Wait(); err != nil {
		return Snapshot{}, err
	}

	end := l.now()
	return Snapshot{
		Clients:      clients,
		Campaigns:    campaigns,
		Tasks:        tasks,
		TakenAt:      end,
		LoadDuration: end.Sub(start),
	}, nil
}

// BuildContext takes a snapshot and formats it for the model's system
// instructions.
func (l *Loader) BuildContext(ctx context.Context) (string, error) {
	snap, err := l.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	return FormatContext(snap, snap.TakenAt), nil
}
