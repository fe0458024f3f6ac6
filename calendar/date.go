/*
Package calendar provides calendar dates and inclusive date ranges.

PURPOSE:
  Payroll works in whole calendar days. Attendance, leave and runs are all
  keyed by ISO 8601 dates with no time component, so this package keeps a
  single Date type normalized to UTC midnight and a Range over it.

KEY TYPES:
  Date:  A calendar day (YYYY-MM-DD)
  Range: An inclusive [Start, End] pair of dates

USAGE:
  r, err := calendar.ParseRange("2024-01-01", "2024-01-31")
  for _, d := range r.Days() {
      key := d.String() // "2024-01-01", ...
  }

SEE ALSO:
  - payroll/units.go: Iterates a Range once per day
  - store/sqlite/sqlite.go: Stores dates as TEXT in DateLayout
*/
package calendar

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the ISO 8601 calendar date layout used on the wire and in storage.
const DateLayout = "2006-01-02"

// ErrInvalidRange is returned when a range ends before it starts.
var ErrInvalidRange = errors.New("invalid range: end before start")

// =============================================================================
// DATE
// =============================================================================

// Date is a calendar day at UTC midnight.
type Date struct {
	t time.Time
}

// NewDate returns the calendar day for year, month, day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// FromTime truncates t to its calendar day in t's own location.
func FromTime(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return Date{t: t}, nil
}

// MustParseDate is ParseDate for literals in tests and fixtures.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) Time() time.Time            { return d.t }
func (d Date) IsZero() bool                { return d.t.IsZero() }
func (d Date) Before(other Date) bool      { return d.t.Before(other.t) }
func (d Date) After(other Date) bool       { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool       { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(o Date) bool   { return !d.t.After(o.t) }
func (d Date) AfterOrEqual(o Date) bool    { return !d.t.Before(o.t) }
func (d Date) AddDays(n int) Date          { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) String() string              { return d.t.Format(DateLayout) }

// DaysBetween returns the number of days from -> to (negative if to is earlier).
func DaysBetween(from, to Date) int {
	return int(to.t.Sub(from.t).Hours() / 24)
}
