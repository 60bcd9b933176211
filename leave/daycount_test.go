package leave_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendly/leave-engine/leave"
)

// June 2025: the 1st is a Sunday, 2-6 Mon-Fri, 7-8 weekend, 9-13 Mon-Fri.

func date(day int) leave.Date { return leave.NewDate(2025, time.June, day) }

func calendarWith(days ...leave.Date) leave.HolidayCalendar {
	var holidays []leave.Holiday
	for _, d := range days {
		holidays = append(holidays, leave.Holiday{Date: d})
	}
	return leave.NewMapCalendar(holidays)
}

// =============================================================================
// RANGE VALIDATION
// =============================================================================

func TestCountRequestedDays_StartAfterEnd_Rejected(t *testing.T) {
	_, _, err := leave.CountRequestedDays(date(10), date(9), false, false,
		leave.LeaveCasual, leave.RoleEmployee, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, leave.ErrInvalidRange)
}

func TestCountRequestedDays_SingleDayMarkerMismatch_Rejected(t *testing.T) {
	// A one-day request carries one half-day marker; disagreeing start/end
	// markers are ambiguous.
	_, _, err := leave.CountRequestedDays(date(9), date(9), true, false,
		leave.LeaveCasual, leave.RoleEmployee, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, leave.ErrInvalidRange)
}

func TestCountRequestedDays_AllWeekendRange_Rejected(t *testing.T) {
	// GIVEN: Sat 7 - Sun 8, casual leave for a weekday-role employee
	// THEN: zero billable days is an invalid range, not a free request
	_, _, err := leave.CountRequestedDays(date(7), date(8), false, false,
		leave.LeaveCasual, leave.RoleEmployee, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, leave.ErrInvalidRange)
}

// =============================================================================
// BILLABLE DAY CALCULATION
// =============================================================================

func TestCountRequestedDays_WeekendsSkipped(t *testing.T) {
	// Fri 6 through Mon 9 spans a weekend: only Friday and Monday bill.
	total, specs, err := leave.CountRequestedDays(date(6), date(9), false, false,
		leave.LeaveCasual, leave.RoleEmployee, nil)

	require.NoError(t, err)
	assert.Equal(t, 2.0, total.Float64())
	require.Len(t, specs, 2)
	assert.Equal(t, date(6), specs[0].Date)
	assert.Equal(t, date(9), specs[1].Date)
}

func TestCountRequestedDays_HolidayMidRange_NoRow(t *testing.T) {
	// GIVEN: Tue 10 is a holiday
	// WHEN: requesting Mon 9 - Wed 11
	// THEN: two rows, the holiday contributes nothing
	cal := calendarWith(date(10))

	total, specs, err := leave.CountRequestedDays(date(9), date(11), false, false,
		leave.LeaveCasual, leave.RoleEmployee, cal)

	require.NoError(t, err)
	assert.Equal(t, 2.0, total.Float64())
	require.Len(t, specs, 2)
	assert.Equal(t, date(9), specs[0].Date)
	assert.Equal(t, date(11), specs[1].Date)
}

func TestCountRequestedDays_HalfDayMarkers(t *testing.T) {
	// Half start and half end on Mon 9 - Wed 11: 0.5 + 1 + 0.5.
	total, specs, err := leave.CountRequestedDays(date(9), date(11), true, true,
		leave.LeaveCasual, leave.RoleEmployee, nil)

	require.NoError(t, err)
	assert.Equal(t, 2.0, total.Float64())
	require.Len(t, specs, 3)
	assert.Equal(t, leave.DayHalf, specs[0].Type)
	assert.Equal(t, leave.DayFull, specs[1].Type)
	assert.Equal(t, leave.DayHalf, specs[2].Type)
}

func TestCountRequestedDays_MarkerOnWeekendBoundary_MovesInward(t *testing.T) {
	// GIVEN: Sat 7 - Mon 9 with a start half-day, for a weekday role
	// WHEN: the weekend is skipped, Monday is the only billable day
	// THEN: the start marker attaches to Monday rather than vanishing
	total, specs, err := leave.CountRequestedDays(date(7), date(9), true, false,
		leave.LeaveCasual, leave.RoleEmployee, nil)

	require.NoError(t, err)
	assert.Equal(t, 0.5, total.Float64())
	require.Len(t, specs, 1)
	assert.Equal(t, date(9), specs[0].Date)
	assert.Equal(t, leave.DayHalf, specs[0].Type)
}

func TestCountRequestedDays_MarkerOnHolidayBoundary_MovesInward(t *testing.T) {
	// Fri 13 is a holiday: an end half on Wed 11 - Fri 13 discounts
	// Thursday, the last billable day.
	cal := calendarWith(date(13))

	total, specs, err := leave.CountRequestedDays(date(11), date(13), false, true,
		leave.LeaveCasual, leave.RoleEmployee, cal)

	require.NoError(t, err)
	assert.Equal(t, 1.5, total.Float64())
	require.Len(t, specs, 2)
	assert.Equal(t, leave.DayFull, specs[0].Type)
	assert.Equal(t, date(12), specs[1].Date)
	assert.Equal(t, leave.DayHalf, specs[1].Type)
}

func TestCountRequestedDays_SingleHalfDay(t *testing.T) {
	total, specs, err := leave.CountRequestedDays(date(9), date(9), true, true,
		leave.LeaveCasual, leave.RoleEmployee, nil)

	require.NoError(t, err)
	assert.Equal(t, 0.5, total.Float64())
	require.Len(t, specs, 1)
	assert.Equal(t, leave.DayHalf, specs[0].Type)
}

func TestCountRequestedDays_LOPBillsCalendarDays(t *testing.T) {
	// Loss-of-pay over Fri 6 - Mon 9 bills all four days, weekend included.
	cal := calendarWith(date(9))

	total, specs, err := leave.CountRequestedDays(date(6), date(9), false, false,
		leave.LeaveLOP, leave.RoleEmployee, cal)

	require.NoError(t, err)
	assert.Equal(t, 4.0, total.Float64())
	assert.Len(t, specs, 4)
}

func TestCountRequestedDays_InternWorksSaturday(t *testing.T) {
	// Fri 6 - Mon 9 for an intern: Saturday bills, Sunday does not.
	total, specs, err := leave.CountRequestedDays(date(6), date(9), false, false,
		leave.LeaveCasual, leave.RoleIntern, nil)

	require.NoError(t, err)
	assert.Equal(t, 3.0, total.Float64())
	require.Len(t, specs, 3)
	assert.Equal(t, date(7), specs[1].Date, "Saturday is billable for interns")
}
