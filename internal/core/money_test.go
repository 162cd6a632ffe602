package core

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"1500", 150000, true},
		{"1500.00", 150000, true},
		{"$1,500.00", 150000, true},
		{"12.34", 1234, true},
		{"12.345", 1234, true}, // third digit rounds half-up
		{"12.346", 1235, true},
		{"0.5", 50, true},
		{".75", 75, true},
		{"0", 0, false},
		{"0.00", 0, false},
		{"-5", 0, false},
		{"+5", 0, false},
		{"", 0, false},
		{"12.3.4", 0, false},
		{"abc", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			m, err := ParseAmount(tc.in)
			if tc.ok && err != nil {
				t.Fatalf("expected ok, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected error, got %d cents", m.Cents)
			}
			if tc.ok && m.Cents != tc.want {
				t.Errorf("got %d cents, want %d", m.Cents, tc.want)
			}
		})
	}
}

func TestMoneyString(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{150000, "$1,500.00"},
		{5, "$0.05"},
		{99, "$0.99"},
		{100, "$1.00"},
		{123456789, "$1,234,567.89"},
		{-2500, "-$25.00"},
	}
	for _, tc := range cases {
		if got := (Money{Cents: tc.cents}).String(); got != tc.want {
			t.Errorf("Money{%d}.String() = %q, want %q", tc.cents, got, tc.want)
		}
	}
}
