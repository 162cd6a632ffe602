package engine

import "github.com/tmaly1980/banked/internal/core"

// MergePolicy controls what happens when an actual record and a
// generated occurrence fall on the same date. Upstream never deduplicated
// and left the question open, so the choice is an explicit policy rather
// than hardcoded behavior.
type MergePolicy string

const (
	// KeepBoth publishes the actual record and the generated occurrence
	// side by side. This matches the original behavior and is the default.
	KeepBoth MergePolicy = "keep_both"

	// SuppressGenerated drops a generated occurrence when an actual
	// record already exists on the same calendar date. Actual records
	// carry no template back-reference, so the calendar date is the only
	// key available for matching.
	SuppressGenerated MergePolicy = "suppress_generated"
)

func (p MergePolicy) Valid() bool {
	return p == KeepBoth || p == SuppressGenerated
}

// Merge combines actual records with generated instances into one list:
// actuals first, mapped 1:1 with the record's own identity, then the
// generated instances in the order produced. Deterministic for identical
// inputs.
func Merge(policy MergePolicy, actuals []core.Record, generated []core.Instance) []core.Instance {
	out := make([]core.Instance, 0, len(actuals)+len(generated))

	recorded := make(map[string]bool, len(actuals))
	for _, r := range actuals {
		out = append(out, fromRecord(r))
		recorded[r.Date.String()] = true
	}

	for _, g := range generated {
		if policy == SuppressGenerated && recorded[g.Date.String()] {
			continue
		}
		out = append(out, g)
	}
	return out
}

func fromRecord(r core.Record) core.Instance {
	return core.Instance{
		ID:          r.ID,
		UserID:      r.UserID,
		DisplayName: displayName(r),
		Amount:      r.Amount,
		Date:        r.Date,
		Notes:       r.Notes,
		CreatedAt:   r.CreatedAt,
		Generated:   false,
	}
}

func displayName(r core.Record) string {
	if r.Notes != "" {
		return r.Notes
	}
	return r.Amount.String()
}
