package core

import (
	"errors"
	"fmt"
	"time"
)

const (
	UnitDay   RecurrenceUnit = "day"
	UnitWeek  RecurrenceUnit = "week"
	UnitMonth RecurrenceUnit = "month"
	UnitYear  RecurrenceUnit = "year"
)

const (
	KindPaycheck EventKind = "paycheck"
	KindDeposit  EventKind = "deposit"
)

// dateLayout is the canonical wire and storage form of a calendar date.
const dateLayout = "2006-01-02"

type (
	// RecurrenceUnit is the calendar unit a template advances by.
	RecurrenceUnit string

	// EventKind distinguishes the two tracked event families.
	EventKind string

	// Date is a pure calendar date. The embedded time.Time is always
	// midnight UTC; timezone handling lives in the dates package.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Template is a persisted recurrence rule: "every N units, starting
	// at StartDate, optionally until EndDate". The engine treats it as
	// immutable input; the storage layer owns mutation.
	Template struct {
		ID        string         `json:"id"`
		UserID    string         `json:"user_id"`
		Kind      EventKind      `json:"kind"`
		Amount    Money          `json:"amount"`
		StartDate Date           `json:"start_date"`
		EndDate   *Date          `json:"end_date,omitempty"`
		Unit      RecurrenceUnit `json:"unit"`
		Interval  int            `json:"interval"`
		CreatedAt time.Time      `json:"created_at"`
	}

	// Record is an event the user explicitly entered (a received paycheck,
	// a made deposit). Read-only input to the engine.
	Record struct {
		ID        string    `json:"id"`
		UserID    string    `json:"user_id"`
		Kind      EventKind `json:"kind"`
		Amount    Money     `json:"amount"`
		Date      Date      `json:"date"`
		Notes     string    `json:"notes,omitempty"`
		Paid      bool      `json:"paid"`
		CreatedAt time.Time `json:"created_at"`
	}

	// Instance is the engine's only output type: one row of the merged
	// list, either a mirrored actual record or a generated occurrence.
	// Instances are derived state, recomputed on every refresh and never
	// persisted.
	Instance struct {
		ID          string    `json:"id"`
		UserID      string    `json:"user_id"`
		DisplayName string    `json:"display_name"`
		Amount      Money     `json:"amount"`
		Date        Date      `json:"date"`
		Notes       string    `json:"notes,omitempty"`
		CreatedAt   time.Time `json:"created_at"`
		Generated   bool      `json:"generated"`
		TemplateID  string    `json:"template_id,omitempty"`
	}
)

var (
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidRecurrence = errors.New("invalid recurrence config")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrUnknownKind       = errors.New("unknown event kind")
)

// NewDate builds a calendar date. Out-of-range components normalize the
// way time.Date does; user input goes through ParseDate instead.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses the canonical YYYY-MM-DD form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// String returns the canonical YYYY-MM-DD form.
func (d Date) String() string {
	return d.Format(dateLayout)
}

// Day returns the day of the month.
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month as an int.
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year.
func (d Date) Year() int {
	return d.Time.Year()
}

// AddDays returns the date shifted by n calendar days.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("%w: %s", ErrInvalidDate, s)
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: zero date", ErrInvalidDate)
	}
	return nil
}

func (k EventKind) Validate() error {
	switch k {
	case KindPaycheck, KindDeposit:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, string(k))
	}
}

func (u RecurrenceUnit) Validate() error {
	switch u {
	case UnitDay, UnitWeek, UnitMonth, UnitYear:
		return nil
	default:
		return fmt.Errorf("%w: unknown unit %q", ErrInvalidRecurrence, string(u))
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Template) Validate() error {
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	if err := t.StartDate.Validate(); err != nil {
		return fmt.Errorf("start date: %w", err)
	}
	if t.EndDate != nil {
		if err := t.EndDate.Validate(); err != nil {
			return fmt.Errorf("end date: %w", err)
		}
		if t.EndDate.Time.Before(t.StartDate.Time) {
			return fmt.Errorf("%w: end date %s before start date %s",
				ErrInvalidRecurrence, t.EndDate, t.StartDate)
		}
	}
	if err := t.Unit.Validate(); err != nil {
		return err
	}
	if t.Interval <= 0 {
		return fmt.Errorf("%w: interval %d must be positive", ErrInvalidRecurrence, t.Interval)
	}
	return t.Amount.Validate()
}

func (r Record) Validate() error {
	if err := r.Kind.Validate(); err != nil {
		return err
	}
	if err := r.Date.Validate(); err != nil {
		return err
	}
	return r.Amount.Validate()
}
