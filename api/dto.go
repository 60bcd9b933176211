/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request bodies carry go-playground/validator struct tags; handlers run
  the shared validator before touching domain logic, so malformed input
  is rejected with a 400 before any date parsing happens.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/attendly/leave-engine/leave"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

type EmployeeDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email,omitempty"`
	Role          string `json:"role"`
	Status        string `json:"status"`
	ManagerID     string `json:"manager_id,omitempty"`
	DateOfJoining string `json:"date_of_joining"`
	DateOfBirth   string `json:"date_of_birth,omitempty"`
}

type CreateEmployeeRequest struct {
	ID            string `json:"id" validate:"required"`
	Name          string `json:"name" validate:"required"`
	Email         string `json:"email" validate:"omitempty,email"`
	Role          string `json:"role" validate:"required,oneof=employee intern manager hr super_admin"`
	Status        string `json:"status" validate:"omitempty,oneof=active on_notice resigned inactive"`
	ManagerID     string `json:"manager_id"`
	DateOfJoining string `json:"date_of_joining" validate:"required,datetime=2006-01-02"`
	DateOfBirth   string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
}

func toEmployeeDTO(e leave.Employee) EmployeeDTO {
	dto := EmployeeDTO{
		ID:            e.ID,
		Name:          e.Name,
		Email:         e.Email,
		Role:          string(e.Role),
		Status:        string(e.Status),
		ManagerID:     e.ManagerID,
		DateOfJoining: e.DateOfJoining.String(),
	}
	if !e.DateOfBirth.IsZero() {
		dto.DateOfBirth = e.DateOfBirth.String()
	}
	return dto
}

// =============================================================================
// POLICIES
// =============================================================================

type PolicyDTO struct {
	ID                string  `json:"id"`
	Role              string  `json:"role"`
	LeaveType         string  `json:"leave_type"`
	AnnualCredit      float64 `json:"annual_credit"`
	AnnualMax         float64 `json:"annual_max"`
	CarryForwardLimit float64 `json:"carry_forward_limit"`
	MaxPerMonth       float64 `json:"max_per_month"`
	Anniversary3Bonus float64 `json:"anniversary_3_bonus"`
	Anniversary5Bonus float64 `json:"anniversary_5_bonus"`
	EffectiveFrom     string  `json:"effective_from"`
}

type CreatePolicyRequest struct {
	Role              string  `json:"role" validate:"required,oneof=employee intern manager hr super_admin"`
	LeaveType         string  `json:"leave_type" validate:"required,oneof=casual sick lop"`
	AnnualCredit      float64 `json:"annual_credit" validate:"gte=0"`
	AnnualMax         float64 `json:"annual_max" validate:"gte=0"`
	CarryForwardLimit float64 `json:"carry_forward_limit" validate:"gte=0"`
	MaxPerMonth       float64 `json:"max_per_month" validate:"gte=0"`
	Anniversary3Bonus float64 `json:"anniversary_3_bonus" validate:"gte=0"`
	Anniversary5Bonus float64 `json:"anniversary_5_bonus" validate:"gte=0"`
	EffectiveFrom     string  `json:"effective_from" validate:"required,datetime=2006-01-02"`
}

func toPolicyDTO(p leave.PolicyConfig) PolicyDTO {
	return PolicyDTO{
		ID:                p.ID,
		Role:              string(p.Role),
		LeaveType:         string(p.LeaveType),
		AnnualCredit:      p.AnnualCredit.Float64(),
		AnnualMax:         p.AnnualMax.Float64(),
		CarryForwardLimit: p.CarryForwardLimit.Float64(),
		MaxPerMonth:       p.MaxPerMonth.Float64(),
		Anniversary3Bonus: p.Anniversary3Bonus.Float64(),
		Anniversary5Bonus: p.Anniversary5Bonus.Float64(),
		EffectiveFrom:     p.EffectiveFrom.String(),
	}
}

// =============================================================================
// REQUESTS
// =============================================================================

type ApplyRequest struct {
	EmployeeID    string `json:"employee_id" validate:"required"`
	LeaveType     string `json:"leave_type" validate:"required,oneof=casual sick lop"`
	StartDate     string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate       string `json:"end_date" validate:"required,datetime=2006-01-02"`
	StartHalf     bool   `json:"start_half"`
	EndHalf       bool   `json:"end_half"`
	Reason        string `json:"reason"`
	AttachmentRef string `json:"attachment_ref"`
}

type EditRequest struct {
	StartDate     string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate       string `json:"end_date" validate:"required,datetime=2006-01-02"`
	StartHalf     bool   `json:"start_half"`
	EndHalf       bool   `json:"end_half"`
	Reason        string `json:"reason"`
	AttachmentRef string `json:"attachment_ref"`
}

type WithdrawRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
}

type DecideRequest struct {
	ActorID   string   `json:"actor_id" validate:"required"`
	ActorRole string   `json:"actor_role" validate:"required,oneof=employee intern manager hr super_admin"`
	Decision  string   `json:"decision" validate:"required,oneof=approve reject"`
	Dates     []string `json:"dates" validate:"omitempty,dive,datetime=2006-01-02"`
	Comment   string   `json:"comment"`
}

type LeaveDayDTO struct {
	ID           string  `json:"id"`
	Date         string  `json:"date"`
	Type         string  `json:"type"`
	Status       string  `json:"status"`
	Weight       float64 `json:"weight"`
	RejectReason string  `json:"reject_reason,omitempty"`
}

type LeaveRequestDTO struct {
	ID              string       `json:"id"`
	EmployeeID      string       `json:"employee_id"`
	LeaveType       string       `json:"leave_type"`
	Status          string       `json:"status"`
	AppliedOn       string       `json:"applied_on"`
	StartDate       string       `json:"start_date"`
	EndDate         string       `json:"end_date"`
	StartHalf       bool         `json:"start_half"`
	EndHalf         bool         `json:"end_half"`
	Reason          string       `json:"reason,omitempty"`
	AttachmentRef   string       `json:"attachment_ref,omitempty"`
	Revision        int          `json:"revision"`
	RequestedDays   float64      `json:"requested_days"`
	DecidedBy       string       `json:"decided_by,omitempty"`
	DecidedByRole   string       `json:"decided_by_role,omitempty"`
	DecisionComment string       `json:"decision_comment,omitempty"`
	Days            []LeaveDayDTO `json:"days"`
}

func toRequestDTO(r *leave.LeaveRequest) LeaveRequestDTO {
	days := make([]LeaveDayDTO, len(r.Days))
	for i, d := range r.Days {
		days[i] = LeaveDayDTO{
			ID:           d.ID,
			Date:         d.Date.String(),
			Type:         string(d.Type),
			Status:       string(d.Status),
			Weight:       d.Weight().Float64(),
			RejectReason: d.RejectReason,
		}
	}
	return LeaveRequestDTO{
		ID:              r.ID,
		EmployeeID:      r.EmployeeID,
		LeaveType:       string(r.Type),
		Status:          string(r.Status()),
		AppliedOn:       r.AppliedOn.String(),
		StartDate:       r.StartDate.String(),
		EndDate:         r.EndDate.String(),
		StartHalf:       r.StartHalf,
		EndHalf:         r.EndHalf,
		Reason:          r.Reason,
		AttachmentRef:   r.AttachmentRef,
		Revision:        r.Revision,
		RequestedDays:   r.RequestedDays().Float64(),
		DecidedBy:       r.DecidedBy,
		DecidedByRole:   string(r.DecidedByRole),
		DecisionComment: r.DecisionComment,
		Days:            days,
	}
}

// =============================================================================
// BALANCES
// =============================================================================

type BalanceDTO struct {
	LeaveType string  `json:"leave_type"`
	Value     float64 `json:"value"`
}

type BalanceEntryDTO struct {
	ID             string  `json:"id"`
	LeaveType      string  `json:"leave_type"`
	Delta          float64 `json:"delta"`
	Reason         string  `json:"reason,omitempty"`
	ReferenceID    string  `json:"reference_id,omitempty"`
	IdempotencyKey string  `json:"idempotency_key"`
	CreatedAt      string  `json:"created_at"`
}

type AdjustmentRequest struct {
	EmployeeID     string  `json:"employee_id" validate:"required"`
	LeaveType      string  `json:"leave_type" validate:"required,oneof=casual sick lop"`
	Delta          float64 `json:"delta" validate:"required"`
	Reason         string  `json:"reason" validate:"required"`
	IdempotencyKey string  `json:"idempotency_key" validate:"required"`
}

// =============================================================================
// HOLIDAYS
// =============================================================================

type HolidayDTO struct {
	ID   string `json:"id"`
	Date string `json:"date"`
	Name string `json:"name"`
}

type CreateHolidayRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Name string `json:"name" validate:"required"`
}

// =============================================================================
// SCHEDULER
// =============================================================================

type SchedulerRunDTO struct {
	ID          string `json:"id"`
	Job         string `json:"job"`
	RunDate     string `json:"run_date"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
