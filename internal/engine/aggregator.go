// Package engine turns recurrence templates and recorded events into a
// single published list of calendar instances.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tmaly1980/banked/internal/core"
	"github.com/tmaly1980/banked/internal/dates"
	"github.com/tmaly1980/banked/internal/metrics"
	"github.com/tmaly1980/banked/internal/recurrence"
)

// windowDays is the span of the forward-looking window: [now, now+6 weeks).
const windowDays = 6 * 7

// State is the aggregator lifecycle. There is no terminal error state:
// a failed refresh surfaces its error to the caller while the previously
// published list stays in place.
type State int

const (
	Uninitialized State = iota
	Loading
	Ready
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Store is the persistence collaborator the engine fetches from. The
// engine is its sole caller; mutations happen elsewhere and re-enter
// through Refresh.
type Store interface {
	FetchRecords(ctx context.Context, userID string, kind core.EventKind) ([]core.Record, error)
	FetchTemplates(ctx context.Context, userID string, kind core.EventKind) ([]core.Template, error)
}

// Config assembles an Aggregator. Spec and Store are required; the rest
// default sensibly.
type Config struct {
	Spec   KindSpec
	Store  Store
	UserID string

	// Codec resolves the device timezone. Defaults to NewCodec().
	Codec *dates.Codec

	// Policy controls same-date collisions between actual and generated
	// instances. Defaults to KeepBoth.
	Policy MergePolicy

	// Now is injected so tests can pin the window. Defaults to time.Now.
	Now func() time.Time
}

// Aggregator owns the rolling window for one event kind and republishes
// the merged list whenever a snapshot changes. All recomputation is a
// pure function of the latest snapshots and "now" captured at recompute
// time; the mutex only guards snapshot swaps.
type Aggregator struct {
	spec   KindSpec
	store  Store
	userID string
	codec  *dates.Codec
	policy MergePolicy
	now    func() time.Time

	flight singleflight.Group

	mu        sync.Mutex
	state     State
	stale     bool
	issued    uint64 // refresh sequence numbers handed out
	applied   uint64 // highest sequence whose snapshots were published
	instances []core.Instance
}

func New(cfg Config) (*Aggregator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("engine: nil store")
	}
	if err := cfg.Spec.Kind.Validate(); err != nil {
		return nil, err
	}
	if cfg.Codec == nil {
		cfg.Codec = dates.NewCodec()
	}
	if cfg.Policy == "" {
		cfg.Policy = KeepBoth
	}
	if !cfg.Policy.Valid() {
		return nil, fmt.Errorf("engine: unknown merge policy %q", cfg.Policy)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Aggregator{
		spec:   cfg.Spec,
		store:  cfg.Store,
		userID: cfg.UserID,
		codec:  cfg.Codec,
		policy: cfg.Policy,
		now:    cfg.Now,
	}, nil
}

// Kind returns the event kind this aggregator serves.
func (a *Aggregator) Kind() core.EventKind {
	return a.spec.Kind
}

// Instances returns the current merged list. After a failed refresh this
// is the last-known-good list; check Stale.
func (a *Aggregator) Instances() []core.Instance {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]core.Instance, len(a.instances))
	copy(out, a.instances)
	return out
}

// Loading reports whether a refresh is in flight.
func (a *Aggregator) Loading() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == Loading
}

// State returns the lifecycle state.
func (a *Aggregator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Stale reports whether the published list predates the last refresh
// attempt because that attempt failed.
func (a *Aggregator) Stale() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stale
}

// Refresh fetches both snapshots and republishes the merged list.
// Concurrent callers are coalesced onto one in-flight fetch; a result
// that lands after a newer one has been published is discarded, so the
// published list always reflects the freshest completed refresh.
func (a *Aggregator) Refresh(ctx context.Context) error {
	_, err, _ := a.flight.Do("refresh", func() (any, error) {
		return nil, a.refresh(ctx)
	})
	metrics.ObserveRefresh(string(a.spec.Kind), err)
	return err
}

func (a *Aggregator) refresh(ctx context.Context) error {
	a.mu.Lock()
	a.state = Loading
	a.issued++
	seq := a.issued
	a.mu.Unlock()

	// The two fetches are the engine's only suspension points, awaited
	// in order: records first, then templates.
	records, err := a.store.FetchRecords(ctx, a.userID, a.spec.Kind)
	if err != nil {
		a.fail(ctx, err)
		return fmt.Errorf("fetch %s records: %w", a.spec.Kind, err)
	}
	templates, err := a.store.FetchTemplates(ctx, a.userID, a.spec.Kind)
	if err != nil {
		a.fail(ctx, err)
		return fmt.Errorf("fetch %s templates: %w", a.spec.Kind, err)
	}

	// Window boundaries use "now" captured here, not at construction, so
	// two refreshes separated by real time can legitimately differ even
	// with identical snapshots.
	now := a.now()
	merged, err := a.compute(records, templates, now)
	if err != nil {
		a.fail(ctx, err)
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if seq < a.applied {
		// A refresh issued after this one already published. Last write
		// wins by completion order; drop the stale result.
		slog.DebugContext(ctx, "discarding stale refresh result",
			"kind", a.spec.Kind, "seq", seq, "applied", a.applied)
		return nil
	}
	a.applied = seq
	a.instances = merged
	a.stale = false
	a.state = Ready

	metrics.SetPublished(string(a.spec.Kind), len(merged))
	slog.DebugContext(ctx, "published merged list",
		"kind", a.spec.Kind, "instances", len(merged),
		"records", len(records), "templates", len(templates))
	return nil
}

// compute is the pure recompute: expand every template over the rolling
// window, synthesize instances, merge with the actual records.
func (a *Aggregator) compute(records []core.Record, templates []core.Template, now time.Time) ([]core.Instance, error) {
	windowStart, err := a.codec.LocalDate(now)
	if err != nil {
		return nil, err
	}
	// Inclusive expansion bounds for the half-open [now, now+6 weeks).
	windowEnd := windowStart.AddDays(windowDays - 1)

	var generated []core.Instance
	for _, tpl := range templates {
		occurrences, err := recurrence.Expand(tpl, windowStart, windowEnd)
		if err != nil {
			return nil, err
		}
		for _, d := range occurrences {
			generated = append(generated, Synthesize(a.spec, tpl, d, now))
		}
	}
	return Merge(a.policy, records, generated), nil
}

// fail ends a refresh attempt without touching the published list.
func (a *Aggregator) fail(ctx context.Context, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stale = a.applied > 0
	if a.applied > 0 {
		a.state = Ready
	} else {
		a.state = Uninitialized
	}
	slog.WarnContext(ctx, "refresh failed, keeping last published list",
		"kind", a.spec.Kind, "error", err, "stale", a.stale)
}
