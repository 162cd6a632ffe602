// Package recurrence expands recurrence templates into concrete calendar
// dates inside a bounded window.
package recurrence

import (
	"fmt"
	"time"

	"github.com/tmaly1980/banked/internal/core"
)

// stepper advances a start date by n units of one recurrence unit. Every
// candidate is computed from the original start date, never from the
// previous candidate, so month and year steps cannot accumulate drift
// across short months.
type stepper func(start core.Date, n int) core.Date

var steppers = map[core.RecurrenceUnit]stepper{
	core.UnitDay: func(start core.Date, n int) core.Date {
		return start.AddDays(n)
	},
	core.UnitWeek: func(start core.Date, n int) core.Date {
		return start.AddDays(7 * n)
	},
	core.UnitMonth: addMonths,
	core.UnitYear: func(start core.Date, n int) core.Date {
		return addMonths(start, 12*n)
	},
}

// Expand returns the ascending, inclusive set of dates at which the
// template fires inside [windowStart, windowEnd]. It is a pure function
// of its inputs. Invalid templates are reported, never skipped: silently
// dropping a recurrence would misrepresent the user's finances.
func Expand(tpl core.Template, windowStart, windowEnd core.Date) ([]core.Date, error) {
	if err := tpl.Validate(); err != nil {
		return nil, fmt.Errorf("template %s: %w", tpl.ID, err)
	}
	if windowEnd.Time.Before(windowStart.Time) {
		return nil, fmt.Errorf("%w: window end %s before start %s", core.ErrInvalidDate, windowEnd, windowStart)
	}

	step, ok := steppers[tpl.Unit]
	if !ok {
		return nil, fmt.Errorf("%w: unknown unit %q", core.ErrInvalidRecurrence, tpl.Unit)
	}

	// Whole series outside the window.
	if tpl.StartDate.Time.After(windowEnd.Time) {
		return nil, nil
	}
	if tpl.EndDate != nil && tpl.EndDate.Time.Before(windowStart.Time) {
		return nil, nil
	}

	var out []core.Date
	for n := 0; ; n++ {
		d := step(tpl.StartDate, n*tpl.Interval)
		if d.Time.After(windowEnd.Time) {
			break
		}
		if tpl.EndDate != nil && d.Time.After(tpl.EndDate.Time) {
			break
		}
		if !d.Time.Before(windowStart.Time) {
			out = append(out, d)
		}
	}
	return out, nil
}

// addMonths advances by whole calendar months, clamping to the last
// valid day of the target month. Jan 31 + 1 month is Feb 29 in a leap
// year and Feb 28 otherwise; because the clamp is recomputed from the
// original start day each step, Jan 31 + 2 months is Mar 31, not Mar 28.
func addMonths(start core.Date, months int) core.Date {
	total := start.Year()*12 + (start.Month() - 1) + months
	year, month := total/12, total%12+1

	day := start.Day()
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return core.NewDate(year, month, day)
}

// daysInMonth uses the day-zero-of-next-month trick.
func daysInMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
