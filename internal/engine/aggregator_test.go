package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tmaly1980/banked/internal/core"
	"github.com/tmaly1980/banked/internal/dates"
)

var errFetch = errors.New("connection refused")

type fakeStore struct {
	records      []core.Record
	templates    []core.Template
	recordsErr   error
	templatesErr error
	fetches      int
}

func (s *fakeStore) FetchRecords(_ context.Context, _ string, _ core.EventKind) ([]core.Record, error) {
	s.fetches++
	if s.recordsErr != nil {
		return nil, s.recordsErr
	}
	return s.records, nil
}

func (s *fakeStore) FetchTemplates(_ context.Context, _ string, _ core.EventKind) ([]core.Template, error) {
	if s.templatesErr != nil {
		return nil, s.templatesErr
	}
	return s.templates, nil
}

func testNow() time.Time {
	return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
}

func newTestAggregator(t *testing.T, store *fakeStore) *Aggregator {
	t.Helper()
	agg, err := New(Config{
		Spec:   PaycheckSpec,
		Store:  store,
		UserID: "u1",
		Codec:  dates.NewCodecIn(time.UTC),
		Now:    testNow,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return agg
}

func biweekly() core.Template {
	return core.Template{
		ID:        "tpl-1",
		UserID:    "u1",
		Kind:      core.KindPaycheck,
		Amount:    core.Money{Cents: 150000},
		StartDate: core.NewDate(2024, 1, 1),
		Unit:      core.UnitWeek,
		Interval:  2,
	}
}

func TestAggregatorPublishesMergedList(t *testing.T) {
	store := &fakeStore{
		records: []core.Record{{
			ID: "rec-1", UserID: "u1", Kind: core.KindPaycheck,
			Amount: core.Money{Cents: 150000}, Date: core.NewDate(2024, 1, 15),
		}},
		templates: []core.Template{biweekly()},
	}
	agg := newTestAggregator(t, store)

	if agg.State() != Uninitialized {
		t.Fatalf("state = %v before first refresh", agg.State())
	}
	if err := agg.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if agg.State() != Ready || agg.Loading() || agg.Stale() {
		t.Fatalf("state=%v loading=%v stale=%v", agg.State(), agg.Loading(), agg.Stale())
	}

	// Window is [2024-01-01, 2024-02-11): occurrences 01-01, 01-15,
	// 01-29 plus the actual on 01-15. No deduplication by default.
	got := agg.Instances()
	if len(got) != 4 {
		t.Fatalf("got %d instances: %+v", len(got), got)
	}
	if got[0].ID != "rec-1" || got[0].Generated {
		t.Errorf("first instance should be the actual record: %+v", got[0])
	}
	wantGenerated := []string{"tpl-1-2024-01-01", "tpl-1-2024-01-15", "tpl-1-2024-01-29"}
	for i, want := range wantGenerated {
		inst := got[i+1]
		if inst.ID != want || !inst.Generated {
			t.Errorf("instance %d = %+v, want id %s", i+1, inst, want)
		}
	}
}

func TestAggregatorKeepsLastGoodListOnFetchFailure(t *testing.T) {
	store := &fakeStore{templates: []core.Template{biweekly()}}
	agg := newTestAggregator(t, store)

	if err := agg.Refresh(context.Background()); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}
	before := agg.Instances()
	if len(before) == 0 {
		t.Fatal("expected a populated list")
	}

	store.recordsErr = errFetch
	err := agg.Refresh(context.Background())
	if !errors.Is(err, errFetch) {
		t.Fatalf("Refresh() = %v, want wrapped fetch error", err)
	}
	if !agg.Stale() {
		t.Error("expected stale after failed refresh")
	}
	if agg.State() != Ready {
		t.Errorf("state = %v, want Ready (no terminal error state)", agg.State())
	}
	after := agg.Instances()
	if len(after) != len(before) {
		t.Fatalf("published list changed on failure: %d -> %d", len(before), len(after))
	}

	// A subsequent successful refresh clears the stale flag.
	store.recordsErr = nil
	if err := agg.Refresh(context.Background()); err != nil {
		t.Fatalf("recovery refresh: %v", err)
	}
	if agg.Stale() {
		t.Error("stale should clear after a successful refresh")
	}
}

func TestAggregatorFailureBeforeFirstLoad(t *testing.T) {
	store := &fakeStore{templatesErr: errFetch, templates: []core.Template{biweekly()}}
	agg := newTestAggregator(t, store)

	if err := agg.Refresh(context.Background()); !errors.Is(err, errFetch) {
		t.Fatalf("Refresh() = %v, want fetch error", err)
	}
	if agg.State() != Uninitialized {
		t.Errorf("state = %v, want Uninitialized", agg.State())
	}
	if agg.Stale() {
		t.Error("nothing published yet, so nothing can be stale")
	}
	if got := agg.Instances(); len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}

func TestAggregatorSurfacesInvalidTemplate(t *testing.T) {
	store := &fakeStore{templates: []core.Template{biweekly()}}
	agg := newTestAggregator(t, store)

	if err := agg.Refresh(context.Background()); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}
	before := len(agg.Instances())

	bad := biweekly()
	bad.Interval = 0
	store.templates = []core.Template{bad}

	err := agg.Refresh(context.Background())
	if !errors.Is(err, core.ErrInvalidRecurrence) {
		t.Fatalf("Refresh() = %v, want ErrInvalidRecurrence (never skip silently)", err)
	}
	if got := len(agg.Instances()); got != before {
		t.Errorf("published list changed: %d -> %d", before, got)
	}
}

func TestAggregatorRecomputesOnSnapshotChange(t *testing.T) {
	store := &fakeStore{templates: []core.Template{biweekly()}}
	agg := newTestAggregator(t, store)

	if err := agg.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	before := len(agg.Instances())

	store.records = append(store.records, core.Record{
		ID: "rec-new", UserID: "u1", Kind: core.KindPaycheck,
		Amount: core.Money{Cents: 2500}, Date: core.NewDate(2024, 1, 20),
	})
	if err := agg.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := len(agg.Instances()); got != before+1 {
		t.Errorf("got %d instances, want %d", got, before+1)
	}
}

func TestAggregatorWindowTracksNow(t *testing.T) {
	store := &fakeStore{templates: []core.Template{biweekly()}}
	current := testNow()
	agg, err := New(Config{
		Spec:   PaycheckSpec,
		Store:  store,
		UserID: "u1",
		Codec:  dates.NewCodecIn(time.UTC),
		Now:    func() time.Time { return current },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := agg.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	first := agg.Instances()

	// Same snapshots, ten weeks later: the window moved, so the
	// generated set must move with it.
	current = current.AddDate(0, 0, 70)
	if err := agg.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	second := agg.Instances()

	if first[0].ID == second[0].ID {
		t.Errorf("window did not advance: %s repeated", first[0].ID)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{Spec: PaycheckSpec}); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := New(Config{Spec: PaycheckSpec, Store: &fakeStore{}, Policy: "dedupe"}); err == nil {
		t.Error("expected error for unknown merge policy")
	}
	if _, err := New(Config{Spec: KindSpec{Kind: "loan"}, Store: &fakeStore{}}); err == nil {
		t.Error("expected error for unknown kind")
	}
}
