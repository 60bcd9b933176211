/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave accounting and approval engine via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain
  logic.

ENDPOINTS:
  Employees:
    GET    /api/employees                      List all employees
    POST   /api/employees                      Create/update employee
    GET    /api/employees/{id}                 Get employee details
    GET    /api/employees/{id}/balances        Balance per leave type
    GET    /api/employees/{id}/entries         Balance entry log
    GET    /api/employees/{id}/requests        Request history

  Requests:
    POST   /api/requests                       Apply for leave
    GET    /api/requests/{id}                  Get one request
    PUT    /api/requests/{id}                  Edit (while fully pending)
    POST   /api/requests/{id}/withdraw         Withdraw (while fully pending)
    POST   /api/requests/{id}/decide           Approve/reject days

  Policies:
    GET    /api/policies                       List all policy versions
    POST   /api/policies                       Append a policy version

  Holidays:
    GET    /api/holidays?year=YYYY             List configured holidays
    POST   /api/holidays                       Add a holiday
    DELETE /api/holidays/{id}                  Remove a holiday

  Admin:
    POST   /api/admin/adjustments              Manual balance adjustment
    POST   /api/admin/scheduler/{job}/run      Run a job now
    GET    /api/admin/scheduler/{job}/runs     Run history

ERROR HANDLING:
  Domain errors map to HTTP status by taxonomy:
  - 400: invalid range, prior-notice violation, malformed input
  - 403: forbidden actor, self-approval
  - 404: unknown request/employee
  - 409: date conflict, already-finalized request, not-editable
  - 422: insufficient balance, monthly cap exceeded
  - 503: transient failure, caller may retry

SECURITY NOTE:
  No authentication middleware. Actor identity arrives in request bodies
  and is trusted; an API gateway owns authn in deployment.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/attendly/leave-engine/leave"
	"github.com/attendly/leave-engine/scheduler"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *leave.Service
	Store   leave.TxStore
	Runner  *scheduler.Runner

	validate *validator.Validate
	log      *zap.Logger
}

func NewHandler(svc *leave.Service, store leave.TxStore, runner *scheduler.Runner, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Service:  svc,
		Store:    store,
		Runner:   runner,
		validate: validator.New(),
		log:      log,
	}
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}

	joining, err := leave.ParseDate(req.DateOfJoining)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date_of_joining", err)
		return
	}
	emp := leave.Employee{
		ID:            req.ID,
		Name:          req.Name,
		Email:         req.Email,
		Role:          leave.Role(req.Role),
		Status:        leave.StatusActive,
		ManagerID:     req.ManagerID,
		DateOfJoining: joining,
	}
	if req.Status != "" {
		emp.Status = leave.EmploymentStatus(req.Status)
	}
	if req.DateOfBirth != "" {
		emp.DateOfBirth, _ = leave.ParseDate(req.DateOfBirth)
	}

	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Service.Employee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp))
}

func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.Service.Balances(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]BalanceDTO, len(balances))
	for i, b := range balances {
		dtos[i] = BalanceDTO{LeaveType: string(b.Type), Value: b.Value.Float64()}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetBalanceEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Store.ListBalanceEntries(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]BalanceEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = BalanceEntryDTO{
			ID:             e.ID,
			LeaveType:      string(e.Type),
			Delta:          e.Delta.Float64(),
			Reason:         e.Reason,
			ReferenceID:    e.ReferenceID,
			IdempotencyKey: e.IdempotencyKey,
			CreatedAt:      e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ListEmployeeRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.Store.ListRequestsByEmployee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]LeaveRequestDTO, len(requests))
	for i := range requests {
		dtos[i] = toRequestDTO(&requests[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, end, ok := h.parseRange(w, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	created, err := h.Service.Apply(r.Context(), leave.ApplyInput{
		EmployeeID:    req.EmployeeID,
		Type:          leave.LeaveType(req.LeaveType),
		StartDate:     start,
		EndDate:       end,
		StartHalf:     req.StartHalf,
		EndHalf:       req.EndHalf,
		Reason:        req.Reason,
		AttachmentRef: req.AttachmentRef,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(created))
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Service.Request(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	var req EditRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, end, ok := h.parseRange(w, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	updated, err := h.Service.Edit(r.Context(), leave.EditInput{
		RequestID:     chi.URLParam(r, "id"),
		StartDate:     start,
		EndDate:       end,
		StartHalf:     req.StartHalf,
		EndHalf:       req.EndHalf,
		Reason:        req.Reason,
		AttachmentRef: req.AttachmentRef,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(updated))
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Service.Withdraw(r.Context(), chi.URLParam(r, "id"), req.ActorID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	var req DecideRequest
	if !h.decode(w, r, &req) {
		return
	}

	dates := make([]leave.Date, 0, len(req.Dates))
	for _, s := range req.Dates {
		d, err := leave.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date in dates", err)
			return
		}
		dates = append(dates, d)
	}

	decided, err := h.Service.Decide(r.Context(), leave.DecideInput{
		RequestID:     chi.URLParam(r, "id"),
		ActorID:       req.ActorID,
		ActorRole:     leave.Role(req.ActorRole),
		Decision:      leave.Decision(req.Decision),
		AffectedDates: dates,
		Comment:       req.Comment,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(decided))
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.Store.ListPolicies(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]PolicyDTO, len(policies))
	for i, p := range policies {
		dtos[i] = toPolicyDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req CreatePolicyRequest
	if !h.decode(w, r, &req) {
		return
	}
	effective, err := leave.ParseDate(req.EffectiveFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid effective_from", err)
		return
	}

	p := leave.PolicyConfig{
		ID:                uuid.NewString(),
		Role:              leave.Role(req.Role),
		LeaveType:         leave.LeaveType(req.LeaveType),
		AnnualCredit:      leave.NewDays(req.AnnualCredit),
		AnnualMax:         leave.NewDays(req.AnnualMax),
		CarryForwardLimit: leave.NewDays(req.CarryForwardLimit),
		MaxPerMonth:       leave.NewDays(req.MaxPerMonth),
		Anniversary3Bonus: leave.NewDays(req.Anniversary3Bonus),
		Anniversary5Bonus: leave.NewDays(req.Anniversary5Bonus),
		EffectiveFrom:     effective,
	}
	if err := h.Store.SavePolicy(r.Context(), p); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPolicyDTO(p))
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	year := h.Service.Today().Year()
	if q := r.URL.Query().Get("year"); q != "" {
		y, err := strconv.Atoi(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid year", err)
			return
		}
		year = y
	}
	holidays, err := h.Store.ListHolidays(r.Context(), year)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]HolidayDTO, len(holidays))
	for i, hol := range holidays {
		dtos[i] = HolidayDTO{ID: hol.ID, Date: hol.Date.String(), Name: hol.Name}
	}
	writeJSON(w, http.StatusOK, map[string]any{"holidays": dtos})
}

func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := leave.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return
	}
	hol := leave.Holiday{ID: uuid.NewString(), Date: date, Name: req.Name}
	if err := h.Store.SaveHoliday(r.Context(), hol); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, HolidayDTO{ID: hol.ID, Date: hol.Date.String(), Name: hol.Name})
}

func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteHoliday(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// CreateAdjustment applies a manual balance correction. The client supplies
// the idempotency key, so a retried POST moves the balance exactly once.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	var applied bool
	err := h.Store.WithEmployeeTx(r.Context(), req.EmployeeID, func(tx leave.Store) error {
		var err error
		applied, err = tx.AdjustBalance(r.Context(), leave.BalanceEntry{
			ID:             uuid.NewString(),
			EmployeeID:     req.EmployeeID,
			Type:           leave.LeaveType(req.LeaveType),
			Delta:          leave.NewDays(req.Delta),
			Reason:         req.Reason,
			IdempotencyKey: req.IdempotencyKey,
		})
		return err
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"applied": applied})
}

func (h *Handler) RunSchedulerJob(w http.ResponseWriter, r *http.Request) {
	if h.Runner == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running", nil)
		return
	}
	job := chi.URLParam(r, "job")
	if !h.Runner.RunJob(r.Context(), job) {
		writeError(w, http.StatusNotFound, "unknown job", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "triggered", "job": job})
}

func (h *Handler) ListSchedulerRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		limit, _ = strconv.Atoi(q)
	}
	runs, err := h.Store.ListRuns(r.Context(), chi.URLParam(r, "job"), limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]SchedulerRunDTO, len(runs))
	for i, run := range runs {
		dto := SchedulerRunDTO{
			ID:        run.ID,
			Job:       run.Job,
			RunDate:   run.RunDate.String(),
			Status:    run.Status,
			Error:     run.Error,
			StartedAt: run.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if run.CompletedAt != nil {
			dto.CompletedAt = run.CompletedAt.Format("2006-01-02T15:04:05Z07:00")
		}
		dtos[i] = dto
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": dtos})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode unmarshals and validates the request body. Writes the error
// response itself and returns false when the body is unusable.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed", err)
		return false
	}
	return true
}

func (h *Handler) parseRange(w http.ResponseWriter, startStr, endStr string) (leave.Date, leave.Date, bool) {
	start, err := leave.ParseDate(startStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_date", err)
		return leave.Date{}, leave.Date{}, false
	}
	end, err := leave.ParseDate(endStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_date", err)
		return leave.Date{}, leave.Date{}, false
	}
	return start, end, true
}

// writeDomainError maps the engine's error taxonomy onto HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, leave.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, leave.ErrInvalidRange),
		errors.Is(err, leave.ErrPriorNotice):
		writeError(w, http.StatusBadRequest, "invalid request", err)
	case errors.Is(err, leave.ErrSelfApproval),
		errors.Is(err, leave.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err)
	case errors.Is(err, leave.ErrConflict),
		errors.Is(err, leave.ErrAlreadyFinalized),
		errors.Is(err, leave.ErrNotEditable):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, leave.ErrInsufficientBalance),
		errors.Is(err, leave.ErrMonthlyCapExceeded):
		writeError(w, http.StatusUnprocessableEntity, "request not admissible", err)
	case errors.Is(err, leave.ErrTransient):
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable, retry", err)
	default:
		h.log.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
