/*
conflict.go - Conflict detector

PURPOSE:
  Pure function consulted before admission: given the proposed billable
  day set and the employee's existing non-rejected day rows, decide
  admit or reject.

RULES:
  - A full existing day blocks any new claim on that date.
  - A half existing day blocks a new full-day claim.
  - Two half-day claims on the same date always conflict; there is no
    sub-day slot negotiation.
  - Rejected days never block: all claims on a date must be rejected for
    the date to be free again.

The database backs this check with a unique index over non-rejected
(employee, date) rows as the last line of defense against races.
*/
package leave

// CheckConflicts scans the proposed day set against existing claims.
// The caller supplies every non-rejected LeaveDay the employee owns,
// excluding the request being edited (if any). Returns a *ConflictError
// naming the first conflicting date, or nil.
func CheckConflicts(proposed []DaySpec, existing []LeaveDay) error {
	claimed := make(map[Date]LeaveDay, len(existing))
	for _, d := range existing {
		if d.Status == DayRejected {
			continue
		}
		claimed[d.Date] = d
	}

	for _, p := range proposed {
		held, ok := claimed[p.Date]
		if !ok {
			continue
		}
		// Full blocks everything; half blocks full; half+half conflicts too.
		// Every combination is a conflict, but the error names what was held.
		return &ConflictError{
			Date:              p.Date,
			ExistingRequestID: held.RequestID,
			ExistingStatus:    held.Status,
			ExistingType:      held.Type,
		}
	}
	return nil
}
