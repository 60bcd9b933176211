package leave_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendly/leave-engine/leave"
	"github.com/attendly/leave-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newEngine(t *testing.T, today leave.Date) (*leave.Service, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := leave.NewService(store, leave.FixedClock{Date: today}, nil, nil)
	return svc, store
}

func addEmployee(t *testing.T, store *sqlite.Store, id string, role leave.Role) {
	t.Helper()
	err := store.SaveEmployee(context.Background(), leave.Employee{
		ID:            id,
		Name:          "Test " + id,
		Email:         id + "@example.com",
		Role:          role,
		Status:        leave.StatusActive,
		DateOfJoining: leave.NewDate(2020, time.January, 15),
	})
	require.NoError(t, err)
}

func credit(t *testing.T, store *sqlite.Store, employeeID string, typ leave.LeaveType, amount float64) {
	t.Helper()
	applied, err := store.AdjustBalance(context.Background(), leave.BalanceEntry{
		ID:             uuid.NewString(),
		EmployeeID:     employeeID,
		Type:           typ,
		Delta:          leave.NewDays(amount),
		Reason:         "test seed",
		IdempotencyKey: uuid.NewString(),
	})
	require.NoError(t, err)
	require.True(t, applied)
}

func balanceOf(t *testing.T, store *sqlite.Store, employeeID string, typ leave.LeaveType) float64 {
	t.Helper()
	b, err := store.GetBalance(context.Background(), employeeID, typ)
	require.NoError(t, err)
	return b.Float64()
}

func applyCasual(t *testing.T, svc *leave.Service, employeeID string, start, end leave.Date) *leave.LeaveRequest {
	t.Helper()
	req, err := svc.Apply(context.Background(), leave.ApplyInput{
		EmployeeID: employeeID,
		Type:       leave.LeaveCasual,
		StartDate:  start,
		EndDate:    end,
		Reason:     "vacation",
	})
	require.NoError(t, err)
	return req
}

// =============================================================================
// APPLY: RESERVATION SEMANTICS
// =============================================================================

func TestApply_ReservesBalanceImmediately(t *testing.T) {
	// GIVEN: 5.0 casual balance
	// WHEN: applying for Mon 9 - Wed 11 (3 working days)
	// THEN: the request is pending and the balance already shows 2.0
	svc, store := newEngine(t, date(2))
	addEmployee(t, store, "emp-1", leave.RoleEmployee)
	credit(t, store, "emp-1", leave.LeaveCasual, 5)

	req := applyCasual(t, svc, "emp-1", date(9), date(11))

	assert.Equal(t, leave.RequestPending, req.Status())
	assert.Len(t, req.Days, 3)
	assert.Equal(t, 3.0, req.RequestedDays().Float64())
	assert.Equal(t, 2.0, balanceOf(t, store, "emp-1", leave.LeaveCasual))
}

func TestApply_InsufficientBalance_NothingPersisted(t *testing.T) {
	svc, store := newEngine(t, date(2))
	addEmployee(t, store, "emp-1", leave.RoleEmployee)
	credit(t, store, "emp-1", leave.LeaveCasual, 1)

	_, err := svc.Apply(context.Background(), leave.ApplyInput{
		EmployeeID: "emp-1",
		Type:       leave.LeaveCasual,
		StartDate:  date(9),
		EndDate:    date(10),
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, leave.ErrInsufficientBalance)
	var ibe *leave.InsufficientBalanceError
	require.ErrorAs(t, err, &ibe)
	assert.Equal(t, 1.0, ibe.Available.Float64())
	assert.Equal(t, 2.0, ibe.Required.Float64())

	assert.Equal(t, 1.0, balanceOf(t, store, "emp-1", leave.LeaveCasual), "failed apply moves nothing")
	requests, err := store.ListRequestsByEmployee(context.Background(), "emp-1")
	require.NoError(t, err)
	assert.Empty(t, requests, "failed apply leaves no request behind")
}

func TestApply_OverlappingRequest_Conflict(t *testing.T) {
	svc, store := newEngine(t, date(2))
	addEmployee(t, store, "emp-1", leave.RoleEmployee)
	credit(t, store, "emp-1", leave.LeaveCasual, 10)

	applyCasual(t, svc, "emp-1", date(9), date(10))

	_, err := svc.Apply(context.Background(), leave.ApplyInput{
		EmployeeID: "emp-1",
		Type:       leave.LeaveCasual,
		StartDate:  date(10),
		EndDate:    date(11),
	})

	require.Error(t, err)
	var ce *leave.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, date(10), ce.Date)
}

func TestApply_ConflictAcrossLeaveTypes(t *testing.T) {
	// A sick claim on a date blocks a casual claim on the same date.
	svc, store := newEngine(t, date(2))
	addEmployee(t, store, "emp-1", leave.RoleEmployee)
	credit(t, store, "emp-1", leave.LeaveCasual, 10)
	credit(t, store, "emp-1", leave.LeaveSick, 5)

	_, err := svc.Apply(context.Background(), leave.ApplyInput{
		EmployeeID: "emp-1",
		Type:       leave.LeaveSick,
		StartDate:  date(3),
		EndDate:    date(3),
	})
	require.NoError(t, err)

	_, err = svc.Apply(context.Background(), leave.ApplyInput{
		EmployeeID: "emp-1",
		Type:       leave.LeaveLOP,
		StartDate:  date(3),
		EndDate:    date(3),
	})
	assert.ErrorIs(t, err, leave.ErrConflict)
}

func TestApply_HolidayMidRange_NotBilled(t *testing.T) {
	// GIVEN: Tue 10 is a configured holiday
	// WHEN: applying Mon 9 - Wed 11
	// THEN: only two day rows exist and only 2.0 is reserved
	svc, store := newEngine(t, date(2))
	addEmployee(t, store, "emp-1", leave.RoleEmployee)
	credit(t, store, "emp-1", leave.LeaveCasual, 5)
	require.NoError(t, store.SaveHoliday(context.Background(), leave.Holiday{
		ID: uuid.NewString(), Date: date(10), Name: "Founders Day",
	}))

	req := applyCasual(t, svc, "emp-1", date(9), date(11))

	require.Len(t, req.Days, 2)
	assert.Equal(t, date(9), req.Days[0].Date)
	assert.Equal(t, date(11), req.Days[1].Date)
	assert.Equal(t, 3.0, balanceOf(t, store, "emp-1", leave.LeaveCasual))
}

func TestApply_MonthlyCapAcrossRequests(t *testing.T) {
	svc, store := newEngine(t, date(2))
	addEmployee(t, store, "emp-1", leave.RoleEmployee)
	credit(t, store, "emp-1", leave.LeaveCasual, 10)
	require.NoError(t, store.SavePolicy(context.Background(), leave.PolicyConfig{
		ID:            uuid.NewString(),
		Role:          leave.RoleEmployee,
		LeaveType:     leave.LeaveCasual,
		AnnualCredit:  leave.NewDays(12),
		AnnualMax:     leave.NewDays(17),
		MaxPerMonth:   leave.NewDays(3),
		EffectiveFrom: leave.NewDate(2025, time.January, 1),
	}))

	applyCasual(t, svc, "emp-1", date(9), date(11)) // 3 days, cap reached for June

	_, err := svc.Apply(context.Background(), leave.ApplyInput{
		EmployeeID: "emp-1",
		Type:       leave.LeaveCasual,
		StartDate:  date(16),
		EndDate:    date(17),
	})
	assert.ErrorIs(t, err, leave.ErrMonthlyCapExceeded)
}

func TestApply_PriorNoticeEnforced(t *testing.T) {
	svc, store := newEngine(t, date(2))
	addEmployee(t, store, "emp-1", leave.RoleEmployee)
	credit(t, store, "emp-1", leave.LeaveCasual, 10)

	// Tomorrow, 2 days: tier 1 needs 3 days' notice.
	_, err := svc.Apply(context.Background(), leave.ApplyInput{
		EmployeeID: "emp-1",
		Type:       leave.LeaveCasual,
		StartDate:  date(3),
		EndDate:    date(4),
	})
	assert.ErrorIs(t, err, leave.ErrPriorNotice)
	assert.Equal(t, 10.0, balanceOf(t, store, "emp-1", leave.LeaveCasual))
}

// =============================================================================
// DECIDE: STATE MACHINE + REFUNDS
// =============================================================================

func TestDecide_RejectOneOfThree_PartialAndRefund(t *testing.T) {
	// GIVEN: a pending 3-day request reserved against a 5.0 balance
	// WHEN: the manager rejects the middle day and approves the rest
	// THEN: header derives partially_approved and the rejected day refunds
	svc, store := newEngine(t, date(2))
	addEmployee(t, store, "emp-1", leave.RoleEmployee)
	addEmployee(t, store, "mgr-1", leave.RoleManager)
	credit(t, store, "emp-1", leave.LeaveCasual, 5)

	req := applyCasual(t, svc, "emp-1", date(9), date(11))
	require.Equal(t, 2.0, balanceOf(t, store, "emp-1", leave.LeaveCasual))

	_, err := svc.Decide(context.Background(), leave.DecideInput{
		RequestID:     req.ID,
		ActorID:       "mgr-1",
		ActorRole:     leave.RoleManager,
		Decision:      leave.DecisionReject,
		AffectedDates: []leave.Date{date(10)},
		Comment:       "release day, need you around",
	})
	require.NoError(t, err)
	assert.Equal(t, 3.0, balanceOf(t, store, "emp-1", leave.LeaveCasual), "rejected day refunds immediately")

	decided, err := svc.Decide(context.Background(), leave.DecideInput{
		RequestID: req.ID,
		ActorID:   "mgr-1",
		ActorRole: leave.RoleManager,
		Decision:  leave.DecisionApprove,
	})
	require.NoError(t, err)

	assert.Equal(t, leave.RequestPartiallyApproved, decided.Status())
	assert.Equal(t, 3.0, balanceOf(t, store, "emp-1", leave.LeaveCasual), "approval moves no balance")
	assert.Equal(t, "mgr-1", decided.DecidedBy)
}

func TestDecide_SelfApproval_Forbidden(t *testing.T) {
	svc, store := newEngine(t, date(2))
	addEmployee(t, store, "mgr-1", leave.RoleManager)
	credit(t, store, "mgr-1", leave.LeaveCasual, 5)

	req := applyCasual(t, svc, "mgr-1", date(9), date(10))

	_, err := svc.Decide(context.Background(), leave.DecideInput{
		RequestID: req.ID,
		ActorID:   "mgr-1",
		ActorRole: leave.RoleManager,
		Decision:  leave.DecisionApprove,
	})
	assert.ErrorIs(t, err, leave.ErrSelfApproval)
}

func TestDecide_NonDecidingRole_Forbidden(t *testing.T) {
	svc, store := newEngine(t, date(2))
	addEmployee(t, store, "emp-1", leave.RoleEmployee)
	credit(t, store, "emp-1", leave.LeaveCasual, 5)

	req := applyCasual(t, svc, "emp-1", date(9), date(10))

	_, err := svc.Decide(context.Background(), leave.DecideInput{
		RequestID: req.ID,
		ActorID:   "emp-2",
		ActorRole: leave.RoleEmployee,
		Decision:  leave.DecisionApprove,
	})
	assert.ErrorIs(t, err, leave.ErrForbidden)
}

func TestDecide_AlreadyFinalized(t *testing.T) {
	svc, store := newEngine(t, date(2))
	addEmployee(t, store, "emp-1", leave.RoleEmployee)
	addEmployee(t, store, "mgr-1", leave.RoleManager)
	credit(t, store, "emp-1", leave.LeaveCasual, 5)

	req := applyCasual(t, svc, "emp-1", date(9), date(10))

	_, err := svc.Decide(context.Background(), leave.DecideInput{
		RequestID: req.ID, ActorID: "mgr-1", ActorRole: leave.RoleManager,
		Decision: leave.DecisionApprove,
	})
	require.NoError(t, err)

	_, err = svc.Decide(context.Background(), leave.DecideInput{
		RequestID: req.ID, ActorID: "mgr-1", ActorRole: leave.RoleManager,
		Decision: leave.DecisionReject,
	})
	assert.ErrorIs(t, err, leave.ErrAlreadyFinalized)
}

// =============================================================================
// EDIT + WITHDRAW
// =============================================================================

func TestEdit_RebalancesReservation(t *testing.T) {
	// GIVEN: a pending 2-day request (5.0 -> 3.0)
	// WHEN: editing to a 3-day range
	// THEN: old reservation returns, new one lands (5.0 -> 2.0), revision bumps
	svc, store := newEngine(t, date(2))
	addEmployee(t, store, "emp-1", leave.RoleEmployee)
	credit(t, store, "emp-1", leave.LeaveCasual, 5)

	req := applyCasual(t, svc, "emp-1", date(9), date(10))
	require.Equal(t, 3.0, balanceOf(t, store, "emp-1", leave.LeaveCasual))

	updated, err := svc.Edit(context.Background(), leave.EditInput{
		RequestID: req.ID,
		StartDate: date(9),
		EndDate:   date(11),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, updated.Revision)
	assert.Len(t, updated.Days, 3)
	assert.Equal(t, 2.0, balanceOf(t, store, "emp-1", leave.LeaveCasual))
}

func TestEdit_AfterDecision_NotEditable(t *testing.T) {
	svc, store := newEngine(t, date(2))
	addEmployee(t, store, "emp-1", leave.RoleEmployee)
	addEmployee(t, store, "mgr-1", leave.RoleManager)
	credit(t, store, "emp-1", leave.LeaveCasual, 5)

	req := applyCasual(t, svc, "emp-1", date(9), date(11))
	_, err := svc.Decide(context.Background(), leave.DecideInput{
		RequestID:     req.ID,
		ActorID:       "mgr-1",
		ActorRole:     leave.RoleManager,
		Decision:      leave.DecisionApprove,
		AffectedDates: []leave.Date{date(9)},
	})
	require.NoError(t, err)

	_, err = svc.Edit(context.Background(), leave.EditInput{
		RequestID: req.ID,
		StartDate: date(9),
		EndDate:   date(10),
	})
	assert.ErrorIs(t, err, leave.ErrNotEditable)
}

func TestWithdraw_RefundsAndDeletes(t *testing.T) {
	svc, store := newEngine(t, date(2))
	addEmployee(t, store, "emp-1", leave.RoleEmployee)
	credit(t, store, "emp-1", leave.LeaveCasual, 5)

	req := applyCasual(t, svc, "emp-1", date(9), date(10))
	require.Equal(t, 3.0, balanceOf(t, store, "emp-1", leave.LeaveCasual))

	require.NoError(t, svc.Withdraw(context.Background(), req.ID, "emp-1"))

	assert.Equal(t, 5.0, balanceOf(t, store, "emp-1", leave.LeaveCasual))
	_, err := svc.Request(context.Background(), req.ID)
	assert.ErrorIs(t, err, leave.ErrNotFound)

	// The freed dates admit a new request.
	applyCasual(t, svc, "emp-1", date(9), date(10))
}

func TestWithdraw_OnlyOwner(t *testing.T) {
	svc, store := newEngine(t, date(2))
	addEmployee(t, store, "emp-1", leave.RoleEmployee)
	credit(t, store, "emp-1", leave.LeaveCasual, 5)

	req := applyCasual(t, svc, "emp-1", date(9), date(10))

	err := svc.Withdraw(context.Background(), req.ID, "emp-2")
	assert.ErrorIs(t, err, leave.ErrForbidden)
}

// =============================================================================
// AUTO-TRANSITION
// =============================================================================

func TestAutoApproveElapsed_ApprovesStaleRequests(t *testing.T) {
	// GIVEN: a sick request whose single day (Fri May 30) has passed,
	//        still pending on Mon June 2
	// WHEN: the elapsed sweep runs
	// THEN: the request resolves approved, attributed to the system actor
	svc, store := newEngine(t, date(2))
	addEmployee(t, store, "emp-1", leave.RoleEmployee)
	credit(t, store, "emp-1", leave.LeaveSick, 5)

	req, err := svc.Apply(context.Background(), leave.ApplyInput{
		EmployeeID: "emp-1",
		Type:       leave.LeaveSick,
		StartDate:  leave.NewDate(2025, time.May, 30),
		EndDate:    leave.NewDate(2025, time.May, 30),
	})
	require.NoError(t, err)

	resolved, err := svc.AutoApproveElapsed(context.Background(), date(2))
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	decided, err := svc.Request(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.RequestApproved, decided.Status())
	assert.Equal(t, leave.SystemActorID, decided.DecidedBy)
	assert.Equal(t, leave.AutoApproveComment, decided.DecisionComment)
	assert.Equal(t, 4.0, balanceOf(t, store, "emp-1", leave.LeaveSick), "approval keeps the reservation")

	// A second sweep finds nothing.
	resolved, err = svc.AutoApproveElapsed(context.Background(), date(2))
	require.NoError(t, err)
	assert.Zero(t, resolved)
}

func TestAutoApproveElapsed_IgnoresFutureRequests(t *testing.T) {
	svc, store := newEngine(t, date(2))
	addEmployee(t, store, "emp-1", leave.RoleEmployee)
	credit(t, store, "emp-1", leave.LeaveCasual, 5)

	applyCasual(t, svc, "emp-1", date(9), date(10))

	resolved, err := svc.AutoApproveElapsed(context.Background(), date(2))
	require.NoError(t, err)
	assert.Zero(t, resolved)
}
