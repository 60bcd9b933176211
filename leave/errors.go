/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every error carries enough structured detail (dates, amounts, limits)
  for the caller to render a precise user-facing message.

ERROR CATEGORIES:
  1. Validation errors - business rule violations (range, notice, caps)
  2. Admission errors  - conflicts and balance shortfalls
  3. State errors      - finalized requests, self-approval
  4. Infrastructure    - retryable transient failures

USAGE:
  Structured errors unwrap to sentinels:

    if errors.Is(err, leave.ErrConflict) { ... }

    var ce *leave.ConflictError
    if errors.As(err, &ce) { render(ce.Date, ce.ExistingStatus) }
*/
package leave

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRange is returned when a date range is malformed or yields
	// zero billable days.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrConflict is returned when a proposed day overlaps an existing
	// non-rejected claim.
	ErrConflict = errors.New("conflicting leave day")

	// ErrInsufficientBalance is returned when the requested days exceed the
	// available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrMonthlyCapExceeded is returned when a calendar month's committed
	// days would exceed the policy cap.
	ErrMonthlyCapExceeded = errors.New("monthly cap exceeded")

	// ErrPriorNotice is returned when the notice-period rule for the leave
	// type is violated.
	ErrPriorNotice = errors.New("prior notice violation")

	// ErrAlreadyFinalized is returned when a decision targets a request with
	// no pending days left.
	ErrAlreadyFinalized = errors.New("request already finalized")

	// ErrSelfApproval is returned when an actor decides on their own request.
	ErrSelfApproval = errors.New("self-approval forbidden")

	// ErrTransient is a retryable infrastructure failure (lock timeout,
	// busy database). The caller may safely resubmit.
	ErrTransient = errors.New("transient failure, retry")

	// ErrForbidden is returned when the actor's role may not perform the
	// operation.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when a referenced employee, request, policy or
	// holiday does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotEditable is returned when an edit or withdrawal targets a
	// request that is no longer fully pending.
	ErrNotEditable = errors.New("request no longer editable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidRangeError details a malformed or empty date range.
type InvalidRangeError struct {
	Start  Date
	End    Date
	Detail string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range %s..%s: %s", e.Start, e.End, e.Detail)
}

func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }

// ConflictError names the date that is already claimed and the status of
// the existing claim.
type ConflictError struct {
	Date              Date
	ExistingRequestID string
	ExistingStatus    DayStatus
	ExistingType      DayType
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("leave already %s on %s (%s day, request %s)",
		e.ExistingStatus, e.Date, e.ExistingType, e.ExistingRequestID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// InsufficientBalanceError carries available vs required amounts.
type InsufficientBalanceError struct {
	Type      LeaveType
	Available Days
	Required  Days
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: available %s, required %s",
		e.Type, e.Available, e.Required)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// MonthlyCapExceededError names the month, cap, and amounts involved.
type MonthlyCapExceededError struct {
	Type      LeaveType
	Month     string // YYYY-MM
	Cap       Days
	Used      Days
	Requested Days
}

func (e *MonthlyCapExceededError) Error() string {
	return fmt.Sprintf("%s cap for %s is %s: %s already committed, %s requested",
		e.Type, e.Month, e.Cap, e.Used, e.Requested)
}

func (e *MonthlyCapExceededError) Unwrap() error { return ErrMonthlyCapExceeded }

// PriorNoticeViolationError explains which notice rule failed.
type PriorNoticeViolationError struct {
	Type        LeaveType
	StartDate   Date
	NoticeDays  int // actual notice given
	Required    int // minimum notice for the tier (casual)
	Detail      string
}

func (e *PriorNoticeViolationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s leave starting %s: %s", e.Type, e.StartDate, e.Detail)
	}
	return fmt.Sprintf("%s leave starting %s needs %d days' notice, got %d",
		e.Type, e.StartDate, e.Required, e.NoticeDays)
}

func (e *PriorNoticeViolationError) Unwrap() error { return ErrPriorNotice }

// AlreadyFinalizedError reports a decision against a resolved request.
type AlreadyFinalizedError struct {
	RequestID string
	Status    RequestStatus
}

func (e *AlreadyFinalizedError) Error() string {
	return fmt.Sprintf("request %s is already %s", e.RequestID, e.Status)
}

func (e *AlreadyFinalizedError) Unwrap() error { return ErrAlreadyFinalized }

// SelfApprovalError reports an actor deciding on their own request.
type SelfApprovalError struct {
	RequestID string
	ActorID   string
}

func (e *SelfApprovalError) Error() string {
	return fmt.Sprintf("actor %s cannot decide own request %s", e.ActorID, e.RequestID)
}

func (e *SelfApprovalError) Unwrap() error { return ErrSelfApproval }

// TransientError wraps a retryable infrastructure failure.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return ErrTransient }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool { return errors.Is(err, ErrTransient) }

// IsClientError returns true if the error is due to invalid caller input
// rather than an infrastructure fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrMonthlyCapExceeded) ||
		errors.Is(err, ErrPriorNotice) ||
		errors.Is(err, ErrAlreadyFinalized) ||
		errors.Is(err, ErrSelfApproval) ||
		errors.Is(err, ErrNotEditable)
}
