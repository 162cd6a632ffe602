// Money parsing and display helpers. Amounts are kept as integer cents;
// floats only appear at the display boundary.
package core

import (
	"strconv"
	"strings"
)

// ParseAmount converts a decimal dollar string to cents. It tolerates a
// leading "$" and thousands separators ("1,500.00"), rounds a third
// decimal digit half-up, and rejects non-positive amounts.
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return Money{}, ErrInvalidAmount
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if !digitsOnly(whole) || !digitsOnly(frac) {
		return Money{}, ErrInvalidAmount
	}

	dollars, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || dollars > (1<<63-1)/100 {
		return Money{}, ErrInvalidAmount
	}

	var cents int64
	switch {
	case len(frac) >= 2:
		cents = int64(frac[0]-'0')*10 + int64(frac[1]-'0')
		if len(frac) > 2 && frac[2] >= '5' {
			cents++
		}
	case len(frac) == 1:
		cents = int64(frac[0]-'0') * 10
	}

	m := Money{Cents: dollars*100 + cents}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// String formats the amount as "$1,500.00".
func (m Money) String() string {
	cents := m.Cents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := strconv.FormatInt(cents/100, 10)

	// Insert thousands separators right to left.
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	frac := strconv.FormatInt(cents%100, 10)
	if len(frac) == 1 {
		frac = "0" + frac
	}
	return sign + "$" + b.String() + "." + frac
}

// Dollars returns the dollar value as a float64 for display purposes only.
func (m Money) Dollars() float64 {
	return float64(m.Cents) / 100.0
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
