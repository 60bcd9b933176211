/*
store.go - Persistence interfaces for the engine

PURPOSE:
  Defines the interface between the domain logic and the database.
  The SQLite implementation lives in store/sqlite; tests may run against
  an in-memory SQLite database.

BALANCE CONTRACT:
  Balances are mutated ONLY through AdjustBalance, which appends a
  BalanceEntry and updates the running value in one database transaction.
  The entry's idempotency key makes replays no-ops: a scheduler restart
  or a client retry can resubmit the same logical credit or refund and
  the balance moves exactly once.

PER-EMPLOYEE SERIALIZATION:
  The engine's unit of atomicity is a single employee's leave state.
  WithEmployeeTx serializes writers per employee: concurrent operations
  against different employees proceed independently, while two applies
  for the same employee can never both pass the balance check against a
  stale read. Transactions carry a bounded timeout; expiry surfaces as
  TransientError and the caller may resubmit.
*/
package leave

import (
	"context"
	"time"
)

// Store is the persistence surface the engine operates on. Implementations
// must be safe for concurrent use.
type Store interface {
	// Employees
	SaveEmployee(ctx context.Context, e Employee) error
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)
	ListEmployeesByStatus(ctx context.Context, status EmploymentStatus) ([]Employee, error)

	// Policy configs (versioned, append-only from the engine's view)
	SavePolicy(ctx context.Context, p PolicyConfig) error
	ListPolicies(ctx context.Context) ([]PolicyConfig, error)
	PolicyVersions(ctx context.Context, role Role, typ LeaveType) ([]PolicyConfig, error)

	// Balances
	GetBalance(ctx context.Context, employeeID string, typ LeaveType) (Days, error)
	ListBalances(ctx context.Context, employeeID string) ([]Balance, error)
	// AdjustBalance applies an idempotent balance mutation. Returns
	// applied=false without error when the idempotency key was already
	// used (replay).
	AdjustBalance(ctx context.Context, entry BalanceEntry) (applied bool, err error)
	ListBalanceEntries(ctx context.Context, employeeID string) ([]BalanceEntry, error)

	// Requests and day rows
	InsertRequest(ctx context.Context, r *LeaveRequest) error
	GetRequest(ctx context.Context, id string) (*LeaveRequest, error)
	// ReplaceRequestDays swaps the entire day set and updates the header
	// range/markers/revision in place. Edit semantics: delete + recreate.
	ReplaceRequestDays(ctx context.Context, r *LeaveRequest) error
	DeleteRequest(ctx context.Context, id string) error
	ListRequestsByEmployee(ctx context.Context, employeeID string) ([]LeaveRequest, error)
	// ListOpenDays returns every non-rejected day row the employee owns,
	// with LeaveType filled in, optionally excluding one request.
	ListOpenDays(ctx context.Context, employeeID, excludeRequestID string) ([]LeaveDay, error)
	UpdateDayStatus(ctx context.Context, dayID string, status DayStatus, rejectReason string) error
	SetRequestAudit(ctx context.Context, requestID, actorID string, role Role, comment string, at time.Time) error
	// ListElapsedPending returns requests that still have pending days and
	// whose end date is strictly before the given date.
	ListElapsedPending(ctx context.Context, before Date) ([]LeaveRequest, error)

	// Holidays
	SaveHoliday(ctx context.Context, h Holiday) error
	ListHolidays(ctx context.Context, year int) ([]Holiday, error)
	HolidaysInRange(ctx context.Context, from, to Date) ([]Holiday, error)
	DeleteHoliday(ctx context.Context, id string) error
	DeleteHolidaysBefore(ctx context.Context, cutoff Date) (int64, error)

	// Scheduler run records
	// TryBeginRun records a run start; returns false when the (job, date)
	// pair already has a completed run or a live run in flight. Failed
	// and stale runs may be taken over.
	TryBeginRun(ctx context.Context, job string, runDate Date) (bool, error)
	CompleteRun(ctx context.Context, job string, runDate Date, runErr error) error
	ListRuns(ctx context.Context, job string, limit int) ([]SchedulerRun, error)
}

// TxStore extends Store with the per-employee transactional scope.
type TxStore interface {
	Store

	// WithEmployeeTx executes fn inside a transaction serialized on the
	// given employee. If fn returns an error the transaction is rolled
	// back and no partial writes are observable.
	WithEmployeeTx(ctx context.Context, employeeID string, fn func(Store) error) error
}

// Notifier is the external email-dispatcher collaborator. Implementations
// must not be load-bearing: the engine logs and swallows dispatch errors,
// never rolling them into the surrounding transaction.
type Notifier interface {
	Dispatch(ctx context.Context, recipient string, payload map[string]any) error
}
