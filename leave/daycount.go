/*
daycount.go - Day-requested calculator

PURPOSE:
  Pure function that turns a date range plus half-day markers into the
  fractional day total and the set of billable day rows to materialize.

RULES:
  - Loss-of-pay bills every calendar day in range, weekends and holidays
    included (full liability).
  - All other types skip weekends (per the role's weekend policy) and
    configured holidays entirely: such dates contribute zero and get NO
    day row. The range still spans them for display, but only billable
    dates require adjudication.
  - Single-day requests: only the start marker matters; the end marker
    must equal it.
  - Multi-day: the start marker discounts the first billable day and the
    end marker the last billable day. A boundary that falls on a skipped
    weekend or holiday pushes its marker inward to the nearest billable
    date. Interior days always count 1.0.
*/
package leave

// DaySpec is a billable date awaiting materialization as a LeaveDay row.
type DaySpec struct {
	Date Date
	Type DayType
}

func (s DaySpec) Weight() Days {
	if s.Type == DayHalf {
		return HalfDay()
	}
	return FullDay()
}

// CountRequestedDays computes the fractional day total for a proposed range
// and returns the billable day set. Fails with InvalidRangeError when
// start > end, when single-day markers disagree, or when the computed total
// is zero (e.g. the entire range is weekends/holidays for a non-LOP type).
func CountRequestedDays(
	start, end Date,
	startHalf, endHalf bool,
	typ LeaveType,
	role Role,
	cal HolidayCalendar,
) (Days, []DaySpec, error) {
	if start.After(end) {
		return ZeroDays(), nil, &InvalidRangeError{
			Start: start, End: end, Detail: "start date after end date",
		}
	}

	if start.Equal(end) && startHalf != endHalf {
		return ZeroDays(), nil, &InvalidRangeError{
			Start: start, End: end,
			Detail: "single-day request: end half-day marker must match start marker",
		}
	}

	var specs []DaySpec
	for d := start; d.BeforeOrEqual(end); d = d.AddDays(1) {
		if !typ.CountsCalendarDays() && !d.IsWorkday(role, cal) {
			continue // not billable, no row
		}
		specs = append(specs, DaySpec{Date: d, Type: DayFull})
	}

	if len(specs) == 0 {
		return ZeroDays(), nil, &InvalidRangeError{
			Start: start, End: end,
			Detail: "range contains no billable working days",
		}
	}

	// Markers attach to the first and last billable days, which sit
	// inside the range when a boundary lands on a skipped date.
	if startHalf {
		specs[0].Type = DayHalf
	}
	if endHalf {
		specs[len(specs)-1].Type = DayHalf
	}

	total := ZeroDays()
	for _, spec := range specs {
		total = total.Add(spec.Weight())
	}
	return total, specs, nil
}
