package leave

// =============================================================================
// PRIOR-NOTICE CHECK
// =============================================================================

// Casual notice tiers: the more days requested, the earlier the request
// must be filed.
const (
	casualTier1Days   = 2  // requests up to 2 days...
	casualTier1Notice = 3  // ...need 3 days' notice
	casualTier2Days   = 5  // up to 5 days...
	casualTier2Notice = 7  // ...need 7 days' notice
	casualTier3Notice = 30 // anything larger needs 30 days
)

// Sick leave is "already happened or imminent": the start date may be at
// most 3 days in the past or exactly 1 day in the future.
const (
	sickMaxPastDays   = 3
	sickMaxFutureDays = 1
)

// CheckPriorNotice enforces the notice-period rule for the leave type.
// Loss-of-pay has no notice requirement.
func CheckPriorNotice(typ LeaveType, today, start Date, requested Days) error {
	switch typ {
	case LeaveCasual:
		notice := DaysBetween(today, start)
		required := casualTier3Notice
		switch {
		case !requested.GreaterThan(DaysFromInt(casualTier1Days)):
			required = casualTier1Notice
		case !requested.GreaterThan(DaysFromInt(casualTier2Days)):
			required = casualTier2Notice
		}
		if notice < required {
			return &PriorNoticeViolationError{
				Type:       typ,
				StartDate:  start,
				NoticeDays: notice,
				Required:   required,
			}
		}

	case LeaveSick:
		earliest := today.AddDays(-sickMaxPastDays)
		latest := today.AddDays(sickMaxFutureDays)
		if start.Before(earliest) || start.After(latest) {
			return &PriorNoticeViolationError{
				Type:      typ,
				StartDate: start,
				Detail:    "sick leave must start at most 3 days in the past or 1 day in the future",
			}
		}
	}
	return nil
}

// =============================================================================
// MONTHLY CAP CHECK
// =============================================================================

// CheckMonthlyCap enforces the per-calendar-month cap for capped leave
// types (casual, loss-of-pay). The caller supplies the employee's existing
// non-rejected day rows OF THE SAME TYPE, excluding the request being
// replaced. A zero or negative cap means uncapped.
func CheckMonthlyCap(typ LeaveType, cap Days, proposed []DaySpec, existing []LeaveDay) error {
	if !typ.HasMonthlyCap() || !cap.IsPositive() {
		return nil
	}

	used := map[string]Days{}
	for _, d := range existing {
		if d.Status == DayRejected {
			continue
		}
		k := d.Date.MonthKey()
		used[k] = usedOrZero(used, k).Add(d.Weight())
	}

	requested := map[string]Days{}
	for _, p := range proposed {
		k := p.Date.MonthKey()
		requested[k] = usedOrZero(requested, k).Add(p.Weight())
	}

	for month, req := range requested {
		committed := usedOrZero(used, month)
		if committed.Add(req).GreaterThan(cap) {
			return &MonthlyCapExceededError{
				Type:      typ,
				Month:     month,
				Cap:       cap,
				Used:      committed,
				Requested: req,
			}
		}
	}
	return nil
}

func usedOrZero(m map[string]Days, k string) Days {
	if v, ok := m[k]; ok {
		return v
	}
	return ZeroDays()
}
