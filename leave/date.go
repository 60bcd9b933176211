package leave

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Day-granular calendar date
// =============================================================================

// Date is a calendar date at day granularity, normalized to UTC midnight.
// All engine rules (weekends, holidays, notice periods, anniversaries) use
// the server's local calendar date treated as midnight.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(o Date) bool        { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool         { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool         { return d.Time.Equal(o.Time) }
func (d Date) BeforeOrEqual(o Date) bool { return !d.After(o) }
func (d Date) AfterOrEqual(o Date) bool  { return !d.Before(o) }
func (d Date) IsZero() bool              { return d.Time.IsZero() }

// Arithmetic
func (d Date) AddDays(n int) Date   { return DateOf(d.Time.AddDate(0, 0, n)) }
func (d Date) AddMonths(n int) Date { return DateOf(d.Time.AddDate(0, n, 0)) }
func (d Date) AddYears(n int) Date  { return DateOf(d.Time.AddDate(n, 0, 0)) }

// DaysBetween returns the signed whole-day distance from one date to another.
func DaysBetween(from, to Date) int { return int(to.Time.Sub(from.Time).Hours() / 24) }

// Properties
func (d Date) Year() int             { return d.Time.Year() }
func (d Date) Month() time.Month     { return d.Time.Month() }
func (d Date) Day() int              { return d.Time.Day() }
func (d Date) Weekday() time.Weekday { return d.Time.Weekday() }

// MonthKey is the "YYYY-MM" bucket used by the monthly cap check.
func (d Date) MonthKey() string { return d.Time.Format("2006-01") }

func (d Date) String() string { return d.Time.Format("2006-01-02") }

// IsWorkday reports whether this date is a working day for the given role,
// considering the role's weekend policy and the holiday calendar. Sunday is
// never a working day; Saturday is a working day only for interns.
func (d Date) IsWorkday(role Role, cal HolidayCalendar) bool {
	switch d.Weekday() {
	case time.Sunday:
		return false
	case time.Saturday:
		if !role.WorksSaturday() {
			return false
		}
	}
	if cal != nil && cal.IsHoliday(d) {
		return false
	}
	return true
}

func StartOfYear(year int) Date { return NewDate(year, time.January, 1) }

// =============================================================================
// CLOCK - Injected "today" for deterministic tests
// =============================================================================

// Clock supplies the current calendar date. Schedulers and validation rules
// take it as a dependency instead of reading wall-clock time ambiently.
type Clock interface {
	Today() Date
}

type systemClock struct{}

func (systemClock) Today() Date { return DateOf(time.Now()) }

// SystemClock returns a Clock backed by wall-clock local time.
func SystemClock() Clock { return systemClock{} }

// FixedClock always returns the same date. For tests.
type FixedClock struct {
	Date Date
}

func (c FixedClock) Today() Date { return c.Date }
