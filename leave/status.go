package leave

// =============================================================================
// HEADER STATUS REDUCER
// =============================================================================

// DeriveStatus computes the request header status from its day rows.
// The header never stores a status of its own; every read and transition
// goes through this reducer, so the header can never drift from its days.
//
// Rules:
//   - any day pending                        => pending
//   - all days approved                      => approved
//   - all days rejected                      => rejected
//   - mixed approved/rejected, none pending  => partially_approved
func DeriveStatus(days []LeaveDay) RequestStatus {
	if len(days) == 0 {
		return RequestPending
	}

	var pending, approved, rejected int
	for _, d := range days {
		switch d.Status {
		case DayPending:
			pending++
		case DayApproved:
			approved++
		case DayRejected:
			rejected++
		}
	}

	switch {
	case pending > 0:
		return RequestPending
	case rejected == 0:
		return RequestApproved
	case approved == 0:
		return RequestRejected
	default:
		return RequestPartiallyApproved
	}
}
