package recurrence

import (
	"errors"
	"testing"

	"github.com/tmaly1980/banked/internal/core"
)

func tpl(start string, unit core.RecurrenceUnit, interval int) core.Template {
	d, _ := core.ParseDate(start)
	return core.Template{
		ID:        "tpl-1",
		UserID:    "u1",
		Kind:      core.KindPaycheck,
		Amount:    core.Money{Cents: 150000},
		StartDate: d,
		Unit:      unit,
		Interval:  interval,
	}
}

func withEnd(t core.Template, end string) core.Template {
	d, _ := core.ParseDate(end)
	t.EndDate = &d
	return t
}

func date(s string) core.Date {
	d, _ := core.ParseDate(s)
	return d
}

func strs(dates []core.Date) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.String()
	}
	return out
}

func TestExpand(t *testing.T) {
	cases := []struct {
		name     string
		template core.Template
		start    string
		end      string
		want     []string
	}{
		{
			name:     "biweekly across window",
			template: tpl("2024-01-01", core.UnitWeek, 2),
			start:    "2024-01-01",
			end:      "2024-02-12",
			want:     []string{"2024-01-01", "2024-01-15", "2024-01-29", "2024-02-12"},
		},
		{
			name:     "end date truncates series",
			template: withEnd(tpl("2024-01-01", core.UnitWeek, 2), "2024-01-20"),
			start:    "2024-01-01",
			end:      "2024-02-12",
			want:     []string{"2024-01-01", "2024-01-15"},
		},
		{
			name:     "daily every 10 days",
			template: tpl("2024-01-05", core.UnitDay, 10),
			start:    "2024-01-01",
			end:      "2024-01-31",
			want:     []string{"2024-01-05", "2024-01-15", "2024-01-25"},
		},
		{
			name:     "start before window",
			template: tpl("2023-12-18", core.UnitWeek, 2),
			start:    "2024-01-01",
			end:      "2024-01-31",
			want:     []string{"2024-01-01", "2024-01-15", "2024-01-29"},
		},
		{
			name:     "yearly",
			template: tpl("2023-07-04", core.UnitYear, 1),
			start:    "2024-01-01",
			end:      "2025-12-31",
			want:     []string{"2024-07-04", "2025-07-04"},
		},
		{
			name:     "start after window is empty",
			template: tpl("2024-06-01", core.UnitDay, 1),
			start:    "2024-01-01",
			end:      "2024-01-31",
			want:     nil,
		},
		{
			name:     "end before window is empty",
			template: withEnd(tpl("2023-01-01", core.UnitMonth, 1), "2023-06-01"),
			start:    "2024-01-01",
			end:      "2024-01-31",
			want:     nil,
		},
		{
			name:     "window boundaries inclusive",
			template: tpl("2024-01-01", core.UnitDay, 30),
			start:    "2024-01-01",
			end:      "2024-01-31",
			want:     []string{"2024-01-01", "2024-01-31"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Expand(tc.template, date(tc.start), date(tc.end))
			if err != nil {
				t.Fatalf("Expand() error: %v", err)
			}
			gotStrs := strs(got)
			if len(gotStrs) != len(tc.want) {
				t.Fatalf("got %v, want %v", gotStrs, tc.want)
			}
			for i := range tc.want {
				if gotStrs[i] != tc.want[i] {
					t.Fatalf("got %v, want %v", gotStrs, tc.want)
				}
			}
		})
	}
}

// Monthly advancement from a day-31 start must land on the last valid
// day of short months (clamp policy), not error or skip.
func TestExpandMonthEndClamp(t *testing.T) {
	got, err := Expand(tpl("2024-01-31", core.UnitMonth, 1), date("2024-01-01"), date("2024-04-30"))
	if err != nil {
		t.Fatalf("Expand() error: %v", err)
	}
	want := []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"}
	gotStrs := strs(got)
	if len(gotStrs) != len(want) {
		t.Fatalf("got %v, want %v", gotStrs, want)
	}
	for i := range want {
		if gotStrs[i] != want[i] {
			t.Fatalf("got %v, want %v", gotStrs, want)
		}
	}
}

func TestExpandLeapDayYearly(t *testing.T) {
	got, err := Expand(tpl("2024-02-29", core.UnitYear, 1), date("2024-01-01"), date("2026-12-31"))
	if err != nil {
		t.Fatalf("Expand() error: %v", err)
	}
	want := []string{"2024-02-29", "2025-02-28", "2026-02-28"}
	gotStrs := strs(got)
	if len(gotStrs) != len(want) {
		t.Fatalf("got %v, want %v", gotStrs, want)
	}
	for i := range want {
		if gotStrs[i] != want[i] {
			t.Fatalf("got %v, want %v", gotStrs, want)
		}
	}
}

func TestExpandAscendingWithinBounds(t *testing.T) {
	templates := []core.Template{
		tpl("2023-11-15", core.UnitDay, 3),
		tpl("2023-12-31", core.UnitWeek, 1),
		tpl("2023-01-30", core.UnitMonth, 2),
		withEnd(tpl("2023-06-01", core.UnitWeek, 4), "2024-03-01"),
	}
	ws, we := date("2024-01-01"), date("2024-06-30")

	for _, template := range templates {
		got, err := Expand(template, ws, we)
		if err != nil {
			t.Fatalf("Expand() error: %v", err)
		}
		for i, d := range got {
			if d.Time.Before(ws.Time) || d.Time.After(we.Time) {
				t.Errorf("%s outside window", d)
			}
			if d.Time.Before(template.StartDate.Time) {
				t.Errorf("%s before template start", d)
			}
			if i > 0 && !got[i-1].Time.Before(d.Time) {
				t.Errorf("not strictly ascending at %d: %v", i, strs(got))
			}
		}
	}
}

func TestExpandRejectsBadConfig(t *testing.T) {
	ws, we := date("2024-01-01"), date("2024-12-31")

	bad := tpl("2024-01-01", core.UnitWeek, 0)
	if _, err := Expand(bad, ws, we); !errors.Is(err, core.ErrInvalidRecurrence) {
		t.Errorf("zero interval: got %v, want ErrInvalidRecurrence", err)
	}

	bad = tpl("2024-01-01", "fortnight", 1)
	if _, err := Expand(bad, ws, we); !errors.Is(err, core.ErrInvalidRecurrence) {
		t.Errorf("unknown unit: got %v, want ErrInvalidRecurrence", err)
	}

	bad = withEnd(tpl("2024-06-01", core.UnitDay, 1), "2024-01-01")
	if _, err := Expand(bad, ws, we); !errors.Is(err, core.ErrInvalidRecurrence) {
		t.Errorf("end before start: got %v, want ErrInvalidRecurrence", err)
	}

	if _, err := Expand(tpl("2024-01-01", core.UnitDay, 1), we, ws); !errors.Is(err, core.ErrInvalidDate) {
		t.Errorf("inverted window: got %v, want ErrInvalidDate", err)
	}
}

func TestExpandIsPure(t *testing.T) {
	template := tpl("2024-01-01", core.UnitWeek, 2)
	ws, we := date("2024-01-01"), date("2024-03-31")

	first, err := Expand(template, ws, we)
	if err != nil {
		t.Fatalf("Expand() error: %v", err)
	}
	second, err := Expand(template, ws, we)
	if err != nil {
		t.Fatalf("Expand() error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("non-deterministic: %v vs %v", strs(first), strs(second))
	}
	for i := range first {
		if !first[i].Equal(second[i].Time) {
			t.Fatalf("non-deterministic at %d", i)
		}
	}
}
