package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Period is one billing month.
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// ParsePeriod parses "MM/YYYY" (a single-digit month is accepted).
func ParsePeriod(s string) (Period, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 {
		return Period{}, eris.Errorf("model: invalid period %q", s)
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil {
		return Period{}, eris.Wrapf(err, "model: invalid period month %q", s)
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return Period{}, eris.Wrapf(err, "model: invalid period year %q", s)
	}
	p := Period{Month: month, Year: year}
	if !p.Valid() {
		return Period{}, eris.Errorf("model: invalid period %q", s)
	}
	return p, nil
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Month: int(t.Month()), Year: t.Year()}
}

// Valid reports whether the period has a month in 1..12 and a positive year.
func (p Period) Valid() bool {
	return p.Month >= 1 && p.Month <= 12 && p.Year > 0
}

// IsZero reports whether the period is unset.
func (p Period) IsZero() bool {
	return p.Month == 0 && p.Year == 0
}

func (p Period) String() string {
	return fmt.Sprintf("%02d/%04d", p.Month, p.Year)
}

// Key returns YYYYMM, which sorts chronologically.
func (p Period) Key() int {
	return p.Year*100 + p.Month
}

// Before reports whether p is strictly earlier than o.
func (p Period) Before(o Period) bool {
	return p.Key() < o.Key()
}

// Prev returns the preceding month.
func (p Period) Prev() Period {
	if p.Month == 1 {
		return Period{Month: 12, Year: p.Year - 1}
	}
	return Period{Month: p.Month - 1, Year: p.Year}
}

// FirstDay returns midnight UTC of the first day of the period.
func (p Period) FirstDay() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// LastDay returns midnight UTC of the last day of the period.
func (p Period) LastDay() time.Time {
	return p.FirstDay().AddDate(0, 1, -1)
}

// Day returns the given day of the period, clamped to the month length.
func (p Period) Day(day int) time.Time {
	last := p.LastDay().Day()
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(p.Year, time.Month(p.Month), day, 0, 0, 0, 0, time.UTC)
}

// MarshalText implements encoding.TextMarshaler.
func (p Period) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Period) UnmarshalText(b []byte) error {
	parsed, err := ParsePeriod(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
