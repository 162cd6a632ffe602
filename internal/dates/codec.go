// Package dates converts between absolute timestamps and device-local
// calendar dates. Getting this wrong is the classic source of
// off-by-one-day bugs around DST transitions, so the conversion rules
// live in one place.
package dates

import (
	"fmt"
	"time"

	"github.com/tmaly1980/banked/internal/core"
)

// fallbackZone is used when the device timezone cannot be resolved.
const fallbackZone = "America/New_York"

// Codec translates between stored timestamps and calendar dates in the
// device's current timezone. The zone is resolved once per call, not
// cached, so a device timezone change takes effect immediately.
type Codec struct {
	locate func() *time.Location
}

// NewCodec returns a codec bound to the device timezone.
func NewCodec() *Codec {
	return &Codec{locate: func() *time.Location { return time.Local }}
}

// NewCodecIn returns a codec pinned to a fixed zone. Used by tests and
// by deployments that serve a household in a known timezone regardless
// of where the server runs.
func NewCodecIn(loc *time.Location) *Codec {
	return &Codec{locate: func() *time.Location { return loc }}
}

func (c *Codec) location() *time.Location {
	if loc := c.locate(); loc != nil {
		return loc
	}
	loc, err := time.LoadLocation(fallbackZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LocalDate decodes a stored timestamp into the calendar date it falls
// on in the device timezone.
func (c *Codec) LocalDate(ts time.Time) (core.Date, error) {
	if ts.IsZero() {
		return core.Date{}, fmt.Errorf("%w: zero timestamp", core.ErrInvalidDate)
	}
	y, m, d := ts.In(c.location()).Date()
	return core.NewDate(y, int(m), d), nil
}

// Timestamp encodes a calendar date as an absolute instant, anchored at
// local noon. A midnight anchor would sit on the DST fold and could
// decode to the previous or next day under a shifted offset; noon is
// never close enough to midnight for any real UTC offset to move the
// calendar day.
func (c *Codec) Timestamp(d core.Date) (time.Time, error) {
	if err := d.Validate(); err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), time.Month(d.Month()), d.Day(), 12, 0, 0, 0, c.location()), nil
}
