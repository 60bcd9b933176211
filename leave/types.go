/*
Package leave implements the leave accounting and approval engine.

PURPOSE:
  This package contains the domain types and algorithms for day-granular
  leave accounting: a request is a set of independently-approvable calendar
  days, balances are tracked per leave category, and every balance change
  flows through one idempotent adjustment primitive.

KEY CONCEPTS IN THIS FILE (types.go):
  - Days: a fractional day quantity (supports halves)
  - Role / LeaveType / EmploymentStatus: closed enumerations
  - LeaveRequest / LeaveDay: the request header and its per-day ledger rows
  - Balance / BalanceEntry: running balance plus its append-only entry log

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for day amounts, never float64
  2. Derived status: header status is computed from day rows, never stored
  3. Idempotency: every balance entry carries a dedupe key
  4. Closed enums: roles and leave types are typed constants, not strings

SEE ALSO:
  - status.go: the header status reducer
  - daycount.go: the day-requested calculator
  - service.go: apply/edit/withdraw/decide operations
*/
package leave

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DAYS - Fractional day quantity
// =============================================================================

// Days is a quantity of leave days. Supports halves (0.5 increments in
// practice, but any decimal is representable).
type Days struct {
	Value decimal.Decimal
}

func NewDays(v float64) Days        { return Days{Value: decimal.NewFromFloat(v)} }
func DaysFromInt(v int) Days        { return Days{Value: decimal.NewFromInt(int64(v))} }
func ZeroDays() Days                { return Days{Value: decimal.Zero} }
func HalfDay() Days                 { return NewDays(0.5) }
func FullDay() Days                 { return DaysFromInt(1) }

// DaysFromString parses a decimal day amount. Invalid input yields zero.
func DaysFromString(s string) Days {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroDays()
	}
	return Days{Value: d}
}

func (d Days) Add(o Days) Days          { return Days{Value: d.Value.Add(o.Value)} }
func (d Days) Sub(o Days) Days          { return Days{Value: d.Value.Sub(o.Value)} }
func (d Days) Neg() Days                { return Days{Value: d.Value.Neg()} }
func (d Days) Div(n int64) Days         { return Days{Value: d.Value.Div(decimal.NewFromInt(n))} }
func (d Days) IsZero() bool             { return d.Value.IsZero() }
func (d Days) IsNegative() bool         { return d.Value.IsNegative() }
func (d Days) IsPositive() bool         { return d.Value.IsPositive() }
func (d Days) GreaterThan(o Days) bool  { return d.Value.GreaterThan(o.Value) }
func (d Days) LessThan(o Days) bool     { return d.Value.LessThan(o.Value) }
func (d Days) Equal(o Days) bool        { return d.Value.Equal(o.Value) }
func (d Days) String() string           { return d.Value.String() }

func (d Days) Min(o Days) Days {
	if d.LessThan(o) {
		return d
	}
	return o
}

func (d Days) Float64() float64 {
	f, _ := d.Value.Float64()
	return f
}

// =============================================================================
// ROLES
// =============================================================================

type Role string

const (
	RoleEmployee   Role = "employee"
	RoleIntern     Role = "intern"
	RoleManager    Role = "manager"
	RoleHR         Role = "hr"
	RoleSuperAdmin Role = "super_admin"
)

var AllRoles = []Role{RoleEmployee, RoleIntern, RoleManager, RoleHR, RoleSuperAdmin}

// CanDecide reports whether this role may approve or reject requests.
func (r Role) CanDecide() bool {
	switch r {
	case RoleManager, RoleHR, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// WorksSaturday reports whether Saturday is a working day for this role.
// Interns work Saturdays; everyone else has a Saturday-Sunday weekend.
func (r Role) WorksSaturday() bool { return r == RoleIntern }

func ParseRole(s string) (Role, error) {
	for _, r := range AllRoles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

type LeaveType string

const (
	LeaveCasual LeaveType = "casual"
	LeaveSick   LeaveType = "sick"
	LeaveLOP    LeaveType = "lop" // loss of pay
)

var AllLeaveTypes = []LeaveType{LeaveCasual, LeaveSick, LeaveLOP}

// CountsCalendarDays reports whether every calendar day in range is billable
// (weekends and holidays included). True only for loss-of-pay.
func (t LeaveType) CountsCalendarDays() bool { return t == LeaveLOP }

// HasMonthlyCap reports whether the per-month cap applies to this type.
func (t LeaveType) HasMonthlyCap() bool { return t == LeaveCasual || t == LeaveLOP }

func ParseLeaveType(s string) (LeaveType, error) {
	for _, t := range AllLeaveTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown leave type %q", s)
}

// =============================================================================
// EMPLOYMENT STATUS
// =============================================================================

type EmploymentStatus string

const (
	StatusActive   EmploymentStatus = "active"
	StatusOnNotice EmploymentStatus = "on_notice"
	StatusResigned EmploymentStatus = "resigned"
	StatusInactive EmploymentStatus = "inactive"
)

// =============================================================================
// EMPLOYEE
// =============================================================================

type Employee struct {
	ID            string
	Name          string
	Email         string
	Role          Role
	Status        EmploymentStatus
	ManagerID     string // weak reference, may be empty
	DateOfJoining Date
	DateOfBirth   Date
	CreatedAt     time.Time
}

// ServiceYears returns the exact whole years of service completed on the
// given date, or 0 if the date is not a service anniversary.
func (e Employee) ServiceYears(on Date) int {
	if on.Month() != e.DateOfJoining.Month() || on.Day() != e.DateOfJoining.Day() {
		return 0
	}
	years := on.Year() - e.DateOfJoining.Year()
	if years <= 0 {
		return 0
	}
	return years
}

// =============================================================================
// POLICY CONFIG
// =============================================================================

// PolicyConfig is the per-(role, leave type) entitlement configuration.
// Multiple versions may exist; the one with the latest EffectiveFrom not
// after "today" is authoritative. Superseded rows are kept for audit.
type PolicyConfig struct {
	ID                string
	Role              Role
	LeaveType         LeaveType
	AnnualCredit      Days
	AnnualMax         Days
	CarryForwardLimit Days
	MaxPerMonth       Days // zero = uncapped
	Anniversary3Bonus Days
	Anniversary5Bonus Days
	EffectiveFrom     Date
	CreatedAt         time.Time
}

// =============================================================================
// LEAVE REQUEST + DAY LEDGER
// =============================================================================

type DayType string

const (
	DayFull DayType = "full"
	DayHalf DayType = "half"
)

type DayStatus string

const (
	DayPending  DayStatus = "pending"
	DayApproved DayStatus = "approved"
	DayRejected DayStatus = "rejected"
)

type RequestStatus string

const (
	RequestPending           RequestStatus = "pending"
	RequestApproved          RequestStatus = "approved"
	RequestRejected          RequestStatus = "rejected"
	RequestPartiallyApproved RequestStatus = "partially_approved"
)

// LeaveDay is one calendar day's adjudication unit within a request.
// Only billable dates materialize as rows: weekends and holidays inside a
// non-LOP range contribute zero and get no row.
type LeaveDay struct {
	ID           string
	RequestID    string
	EmployeeID   string
	Date         Date
	Type         DayType
	Status       DayStatus
	RejectReason string

	// LeaveType is denormalized from the owning request by store queries
	// that join across requests (monthly cap, conflict scans).
	LeaveType LeaveType
}

// Weight is the balance fraction this day represents.
func (d LeaveDay) Weight() Days {
	if d.Type == DayHalf {
		return HalfDay()
	}
	return FullDay()
}

// LeaveRequest is the request header. Its day rows are owned exclusively by
// the request and replaced as a whole set on edit.
type LeaveRequest struct {
	ID            string
	EmployeeID    string
	Type          LeaveType
	AppliedOn     Date
	StartDate     Date
	EndDate       Date
	StartHalf     bool
	EndHalf       bool
	Reason        string
	AttachmentRef string // opaque reference owned by the file collaborator

	// Revision increments on every edit; balance entry keys embed it so
	// reserve/refund pairs stay idempotent across edits.
	Revision int

	// Audit: last actor to move the request.
	DecidedBy       string
	DecidedByRole   Role
	DecisionComment string
	DecidedAt       *time.Time

	Days []LeaveDay

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Status derives the header status from the day rows. See status.go.
func (r *LeaveRequest) Status() RequestStatus { return DeriveStatus(r.Days) }

// RequestedDays sums the weights of all day rows.
func (r *LeaveRequest) RequestedDays() Days {
	total := ZeroDays()
	for _, d := range r.Days {
		total = total.Add(d.Weight())
	}
	return total
}

// PendingDays returns the day rows still awaiting a decision.
func (r *LeaveRequest) PendingDays() []LeaveDay {
	var out []LeaveDay
	for _, d := range r.Days {
		if d.Status == DayPending {
			out = append(out, d)
		}
	}
	return out
}

// AllPending reports whether every day row is still pending, which is the
// only state in which the employee may edit or withdraw the request.
func (r *LeaveRequest) AllPending() bool {
	for _, d := range r.Days {
		if d.Status != DayPending {
			return false
		}
	}
	return len(r.Days) > 0
}

// =============================================================================
// BALANCE + ENTRY LOG
// =============================================================================

// Balance is the running balance for one (employee, leave type) pair.
type Balance struct {
	EmployeeID string
	Type       LeaveType
	Value      Days
	UpdatedAt  time.Time
}

// BalanceEntry is one append-only mutation of a balance. Entries are the
// audit trail for the running value and carry the idempotency key that
// makes replays safe.
type BalanceEntry struct {
	ID             string
	EmployeeID     string
	Type           LeaveType
	Delta          Days
	Reason         string
	ReferenceID    string // request ID or scheduler job, when applicable
	IdempotencyKey string
	CreatedAt      time.Time
}

// =============================================================================
// HOLIDAYS
// =============================================================================

type Holiday struct {
	ID        string
	Date      Date
	Name      string
	CreatedAt time.Time
}

// HolidayCalendar answers whether a date is a configured holiday.
type HolidayCalendar interface {
	IsHoliday(d Date) bool
}

// MapCalendar is a HolidayCalendar backed by an in-memory set.
type MapCalendar map[Date]struct{}

func NewMapCalendar(holidays []Holiday) MapCalendar {
	m := make(MapCalendar, len(holidays))
	for _, h := range holidays {
		m[h.Date] = struct{}{}
	}
	return m
}

func (m MapCalendar) IsHoliday(d Date) bool {
	_, ok := m[d]
	return ok
}

// =============================================================================
// SCHEDULER RUNS
// =============================================================================

// SchedulerRun records one dated run of a background job. The unique
// (job, run date) pair is what keeps daily jobs from running twice.
type SchedulerRun struct {
	ID          string
	Job         string
	RunDate     Date
	Status      string // running | completed | failed
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}
