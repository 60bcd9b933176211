/*
Package sqlite provides the SQLite-backed implementation of the engine's
storage interfaces.

PURPOSE:
  Implements leave.Store and leave.TxStore using SQLite. The same SQL
  patterns apply to PostgreSQL with minor dialect changes.

KEY TABLES:
  employees        Identity, role, employment status, joining date
  policies         Versioned per-(role, leave type) configuration
  balances         Running balance per (employee, leave type)
  balance_entries  Append-only mutation log with idempotency keys
  leave_requests   Request headers (status is NEVER stored here)
  leave_days       One row per billable calendar day
  holidays         Configured holiday calendar
  scheduler_runs   Dated job run records (dedupe + audit)

INVARIANT ENFORCEMENT:
  idx_unique_open_day is a partial unique index over non-rejected
  (employee, date) day rows: even if a race slips past the in-engine
  conflict detector, the database rejects a second live claim on the
  same date.

CONCURRENCY:
  WithEmployeeTx serializes writers per employee with a keyed mutex and
  runs the body in one SQL transaction with a bounded timeout. Busy and
  deadline failures surface as leave.TransientError so the caller can
  retry. SQLite is opened in WAL mode with a busy timeout.

SEE ALSO:
  - leave/store.go: interface definitions and contracts
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/attendly/leave-engine/leave"
)

const defaultTxTimeout = 5 * time.Second

// queryer abstracts *sql.DB and *sql.Tx so every store method can run
// either standalone or inside WithEmployeeTx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements leave.TxStore using SQLite.
type Store struct {
	db        *sql.DB
	q         queryer
	locks     *employeeLocks
	txTimeout time.Duration
}

// New creates a SQLite store at the given path. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection sidesteps SQLite's multi-writer contention and
	// keeps :memory: databases coherent across goroutines.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, q: db, locks: newEmployeeLocks(), txTimeout: defaultTxTimeout}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		role TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		manager_id TEXT,
		date_of_joining TEXT NOT NULL,
		date_of_birth TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_status ON employees(status);

	-- Versioned policy configuration. The engine only ever appends; the
	-- authoritative row per (role, leave_type) is resolved by effective date.
	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		annual_credit TEXT NOT NULL,
		annual_max TEXT NOT NULL,
		carry_forward_limit TEXT NOT NULL,
		max_per_month TEXT NOT NULL,
		anniversary_3_bonus TEXT NOT NULL,
		anniversary_5_bonus TEXT NOT NULL,
		effective_from TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_policies_role_type
		ON policies(role, leave_type, effective_from DESC);

	CREATE TABLE IF NOT EXISTS balances (
		employee_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, leave_type)
	);

	-- Append-only. Corrections are new entries, never updates.
	CREATE TABLE IF NOT EXISTS balance_entries (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		delta TEXT NOT NULL,
		reason TEXT,
		reference_id TEXT,
		idempotency_key TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_balance_entries_employee
		ON balance_entries(employee_id, created_at);

	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		applied_on TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		start_half INTEGER NOT NULL DEFAULT 0,
		end_half INTEGER NOT NULL DEFAULT 0,
		reason TEXT,
		attachment_ref TEXT,
		revision INTEGER NOT NULL DEFAULT 1,
		decided_by TEXT,
		decided_by_role TEXT,
		decision_comment TEXT,
		decided_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee ON leave_requests(employee_id);
	CREATE INDEX IF NOT EXISTS idx_requests_end_date ON leave_requests(end_date);

	CREATE TABLE IF NOT EXISTS leave_days (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		date TEXT NOT NULL,
		day_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		reject_reason TEXT,
		FOREIGN KEY (request_id) REFERENCES leave_requests(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_days_request ON leave_days(request_id);
	CREATE INDEX IF NOT EXISTS idx_days_employee_date ON leave_days(employee_id, date);

	-- CRITICAL: one live claim per (employee, date). Rejected rows do not
	-- count, so a date frees up only when every claim on it is rejected.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_open_day
		ON leave_days(employee_id, date)
		WHERE status != 'rejected';

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scheduler_runs (
		id TEXT PRIMARY KEY,
		job TEXT NOT NULL,
		run_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		UNIQUE (job, run_date)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, e leave.Employee) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO employees (id, name, email, role, status, manager_id, date_of_joining, date_of_birth, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			status = excluded.status,
			manager_id = excluded.manager_id,
			date_of_joining = excluded.date_of_joining,
			date_of_birth = excluded.date_of_birth
	`, e.ID, e.Name, e.Email, string(e.Role), string(e.Status), nullString(e.ManagerID),
		e.DateOfJoining.String(), dateOrNull(e.DateOfBirth), e.CreatedAt.Format(time.RFC3339))
	return wrapTransient("save employee", err)
}

func (s *Store) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, name, email, role, status, manager_id, date_of_joining, date_of_birth, created_at
		FROM employees WHERE id = ?
	`, id)
	e, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	return s.queryEmployees(ctx, `
		SELECT id, name, email, role, status, manager_id, date_of_joining, date_of_birth, created_at
		FROM employees ORDER BY name
	`)
}

func (s *Store) ListEmployeesByStatus(ctx context.Context, status leave.EmploymentStatus) ([]leave.Employee, error) {
	return s.queryEmployees(ctx, `
		SELECT id, name, email, role, status, manager_id, date_of_joining, date_of_birth, created_at
		FROM employees WHERE status = ? ORDER BY name
	`, string(status))
}

func (s *Store) queryEmployees(ctx context.Context, query string, args ...any) ([]leave.Employee, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var out []leave.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanEmployee(r rowScanner) (*leave.Employee, error) {
	var (
		e         leave.Employee
		role      string
		status    string
		email     sql.NullString
		managerID sql.NullString
		joining   string
		birth     sql.NullString
		createdAt string
	)
	if err := r.Scan(&e.ID, &e.Name, &email, &role, &status, &managerID, &joining, &birth, &createdAt); err != nil {
		return nil, err
	}
	e.Email = email.String
	e.Role = leave.Role(role)
	e.Status = leave.EmploymentStatus(status)
	e.ManagerID = managerID.String
	e.DateOfJoining, _ = leave.ParseDate(joining)
	if birth.Valid {
		e.DateOfBirth, _ = leave.ParseDate(birth.String)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &e, nil
}

// =============================================================================
// POLICIES
// =============================================================================

func (s *Store) SavePolicy(ctx context.Context, p leave.PolicyConfig) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO policies
		(id, role, leave_type, annual_credit, annual_max, carry_forward_limit,
		 max_per_month, anniversary_3_bonus, anniversary_5_bonus, effective_from, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, string(p.Role), string(p.LeaveType),
		p.AnnualCredit.String(), p.AnnualMax.String(), p.CarryForwardLimit.String(),
		p.MaxPerMonth.String(), p.Anniversary3Bonus.String(), p.Anniversary5Bonus.String(),
		p.EffectiveFrom.String(), p.CreatedAt.Format(time.RFC3339))
	return wrapTransient("save policy", err)
}

func (s *Store) ListPolicies(ctx context.Context) ([]leave.PolicyConfig, error) {
	return s.queryPolicies(ctx, `
		SELECT id, role, leave_type, annual_credit, annual_max, carry_forward_limit,
		       max_per_month, anniversary_3_bonus, anniversary_5_bonus, effective_from, created_at
		FROM policies ORDER BY role, leave_type, effective_from
	`)
}

func (s *Store) PolicyVersions(ctx context.Context, role leave.Role, typ leave.LeaveType) ([]leave.PolicyConfig, error) {
	return s.queryPolicies(ctx, `
		SELECT id, role, leave_type, annual_credit, annual_max, carry_forward_limit,
		       max_per_month, anniversary_3_bonus, anniversary_5_bonus, effective_from, created_at
		FROM policies WHERE role = ? AND leave_type = ? ORDER BY effective_from
	`, string(role), string(typ))
}

func (s *Store) queryPolicies(ctx context.Context, query string, args ...any) ([]leave.PolicyConfig, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var out []leave.PolicyConfig
	for rows.Next() {
		var (
			p                                      leave.PolicyConfig
			role, typ                              string
			credit, maxDays, carry, perMonth       string
			b3, b5                                 string
			effective, createdAt                   string
		)
		if err := rows.Scan(&p.ID, &role, &typ, &credit, &maxDays, &carry, &perMonth, &b3, &b5, &effective, &createdAt); err != nil {
			return nil, err
		}
		p.Role = leave.Role(role)
		p.LeaveType = leave.LeaveType(typ)
		p.AnnualCredit = leave.DaysFromString(credit)
		p.AnnualMax = leave.DaysFromString(maxDays)
		p.CarryForwardLimit = leave.DaysFromString(carry)
		p.MaxPerMonth = leave.DaysFromString(perMonth)
		p.Anniversary3Bonus = leave.DaysFromString(b3)
		p.Anniversary5Bonus = leave.DaysFromString(b5)
		p.EffectiveFrom, _ = leave.ParseDate(effective)
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// BALANCES
// =============================================================================

func (s *Store) GetBalance(ctx context.Context, employeeID string, typ leave.LeaveType) (leave.Days, error) {
	var value string
	err := s.q.QueryRowContext(ctx,
		`SELECT value FROM balances WHERE employee_id = ? AND leave_type = ?`,
		employeeID, string(typ)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.ZeroDays(), nil
	}
	if err != nil {
		return leave.ZeroDays(), wrapTransient("get balance", err)
	}
	return leave.DaysFromString(value), nil
}

func (s *Store) ListBalances(ctx context.Context, employeeID string) ([]leave.Balance, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT employee_id, leave_type, value, updated_at
		FROM balances WHERE employee_id = ? ORDER BY leave_type
	`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var out []leave.Balance
	for rows.Next() {
		var (
			b         leave.Balance
			typ       string
			value     string
			updatedAt string
		)
		if err := rows.Scan(&b.EmployeeID, &typ, &value, &updatedAt); err != nil {
			return nil, err
		}
		b.Type = leave.LeaveType(typ)
		b.Value = leave.DaysFromString(value)
		b.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		out = append(out, b)
	}
	return out, rows.Err()
}

// AdjustBalance appends a balance entry and moves the running value in one
// logical step. A duplicate idempotency key is a no-op (applied=false).
// The running value may never go negative.
func (s *Store) AdjustBalance(ctx context.Context, entry leave.BalanceEntry) (bool, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO balance_entries (id, employee_id, leave_type, delta, reason, reference_id, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(idempotency_key) DO NOTHING
	`, entry.ID, entry.EmployeeID, string(entry.Type), entry.Delta.String(),
		entry.Reason, nullString(entry.ReferenceID), entry.IdempotencyKey,
		entry.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return false, wrapTransient("append balance entry", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil // replay: entry already applied
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO balances (employee_id, leave_type, value, updated_at)
		VALUES (?, ?, '0', ?)
		ON CONFLICT(employee_id, leave_type) DO NOTHING
	`, entry.EmployeeID, string(entry.Type), now); err != nil {
		return false, wrapTransient("init balance", err)
	}

	current, err := s.GetBalance(ctx, entry.EmployeeID, entry.Type)
	if err != nil {
		return false, err
	}
	next := current.Add(entry.Delta)
	if next.IsNegative() {
		return false, fmt.Errorf("balance underflow for %s/%s: %s %s",
			entry.EmployeeID, entry.Type, current, entry.Delta)
	}

	if _, err := s.q.ExecContext(ctx, `
		UPDATE balances SET value = ?, updated_at = ? WHERE employee_id = ? AND leave_type = ?
	`, next.String(), now, entry.EmployeeID, string(entry.Type)); err != nil {
		return false, wrapTransient("update balance", err)
	}
	return true, nil
}

func (s *Store) ListBalanceEntries(ctx context.Context, employeeID string) ([]leave.BalanceEntry, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, employee_id, leave_type, delta, reason, reference_id, idempotency_key, created_at
		FROM balance_entries WHERE employee_id = ? ORDER BY created_at, id
	`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query balance entries: %w", err)
	}
	defer rows.Close()

	var out []leave.BalanceEntry
	for rows.Next() {
		var (
			e         leave.BalanceEntry
			typ       string
			delta     string
			reason    sql.NullString
			reference sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.EmployeeID, &typ, &delta, &reason, &reference, &e.IdempotencyKey, &createdAt); err != nil {
			return nil, err
		}
		e.Type = leave.LeaveType(typ)
		e.Delta = leave.DaysFromString(delta)
		e.Reason = reason.String
		e.ReferenceID = reference.String
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// REQUESTS + DAY ROWS
// =============================================================================

func (s *Store) InsertRequest(ctx context.Context, r *leave.LeaveRequest) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO leave_requests
		(id, employee_id, leave_type, applied_on, start_date, end_date, start_half, end_half,
		 reason, attachment_ref, revision, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.EmployeeID, string(r.Type), r.AppliedOn.String(),
		r.StartDate.String(), r.EndDate.String(), boolInt(r.StartHalf), boolInt(r.EndHalf),
		r.Reason, nullString(r.AttachmentRef), r.Revision,
		r.CreatedAt.Format(time.RFC3339), r.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return wrapTransient("insert request", err)
	}
	return s.insertDays(ctx, r.Days)
}

func (s *Store) insertDays(ctx context.Context, days []leave.LeaveDay) error {
	for _, d := range days {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO leave_days (id, request_id, employee_id, date, day_type, status, reject_reason)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, d.ID, d.RequestID, d.EmployeeID, d.Date.String(), string(d.Type), string(d.Status),
			nullString(d.RejectReason))
		if err != nil {
			if isOpenDayConstraintError(err) {
				return &leave.ConflictError{Date: d.Date, ExistingStatus: leave.DayPending, ExistingType: leave.DayFull}
			}
			return wrapTransient("insert day", err)
		}
	}
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (*leave.LeaveRequest, error) {
	reqs, err := s.queryRequests(ctx, `
		SELECT id, employee_id, leave_type, applied_on, start_date, end_date, start_half, end_half,
		       reason, attachment_ref, revision, decided_by, decided_by_role, decision_comment,
		       decided_at, created_at, updated_at
		FROM leave_requests WHERE id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, nil
	}
	return &reqs[0], nil
}

func (s *Store) ListRequestsByEmployee(ctx context.Context, employeeID string) ([]leave.LeaveRequest, error) {
	return s.queryRequests(ctx, `
		SELECT id, employee_id, leave_type, applied_on, start_date, end_date, start_half, end_half,
		       reason, attachment_ref, revision, decided_by, decided_by_role, decision_comment,
		       decided_at, created_at, updated_at
		FROM leave_requests WHERE employee_id = ? ORDER BY start_date DESC
	`, employeeID)
}

func (s *Store) ListElapsedPending(ctx context.Context, before leave.Date) ([]leave.LeaveRequest, error) {
	return s.queryRequests(ctx, `
		SELECT r.id, r.employee_id, r.leave_type, r.applied_on, r.start_date, r.end_date,
		       r.start_half, r.end_half, r.reason, r.attachment_ref, r.revision,
		       r.decided_by, r.decided_by_role, r.decision_comment, r.decided_at,
		       r.created_at, r.updated_at
		FROM leave_requests r
		WHERE r.end_date < ?
		  AND EXISTS (SELECT 1 FROM leave_days d WHERE d.request_id = r.id AND d.status = 'pending')
		ORDER BY r.end_date
	`, before.String())
}

func (s *Store) queryRequests(ctx context.Context, query string, args ...any) ([]leave.LeaveRequest, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var out []leave.LeaveRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		days, err := s.loadDays(ctx, out[i].ID, out[i].Type)
		if err != nil {
			return nil, err
		}
		out[i].Days = days
	}
	return out, nil
}

func scanRequest(r rowScanner) (*leave.LeaveRequest, error) {
	var (
		req                           leave.LeaveRequest
		typ                           string
		appliedOn, startDate, endDate string
		startHalf, endHalf            int
		reason, attachment            sql.NullString
		decidedBy, decidedRole        sql.NullString
		decisionComment, decidedAt    sql.NullString
		createdAt, updatedAt          string
	)
	if err := r.Scan(&req.ID, &req.EmployeeID, &typ, &appliedOn, &startDate, &endDate,
		&startHalf, &endHalf, &reason, &attachment, &req.Revision,
		&decidedBy, &decidedRole, &decisionComment, &decidedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	req.Type = leave.LeaveType(typ)
	req.AppliedOn, _ = leave.ParseDate(appliedOn)
	req.StartDate, _ = leave.ParseDate(startDate)
	req.EndDate, _ = leave.ParseDate(endDate)
	req.StartHalf = startHalf != 0
	req.EndHalf = endHalf != 0
	req.Reason = reason.String
	req.AttachmentRef = attachment.String
	req.DecidedBy = decidedBy.String
	req.DecidedByRole = leave.Role(decidedRole.String)
	req.DecisionComment = decisionComment.String
	if decidedAt.Valid {
		t, _ := time.Parse(time.RFC3339, decidedAt.String)
		req.DecidedAt = &t
	}
	req.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	req.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &req, nil
}

func (s *Store) loadDays(ctx context.Context, requestID string, typ leave.LeaveType) ([]leave.LeaveDay, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, request_id, employee_id, date, day_type, status, reject_reason
		FROM leave_days WHERE request_id = ? ORDER BY date
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query days: %w", err)
	}
	defer rows.Close()

	var out []leave.LeaveDay
	for rows.Next() {
		d, err := scanDay(rows)
		if err != nil {
			return nil, err
		}
		d.LeaveType = typ
		out = append(out, *d)
	}
	return out, rows.Err()
}

func scanDay(r rowScanner) (*leave.LeaveDay, error) {
	var (
		d            leave.LeaveDay
		date         string
		dayType      string
		status       string
		rejectReason sql.NullString
	)
	if err := r.Scan(&d.ID, &d.RequestID, &d.EmployeeID, &date, &dayType, &status, &rejectReason); err != nil {
		return nil, err
	}
	d.Date, _ = leave.ParseDate(date)
	d.Type = leave.DayType(dayType)
	d.Status = leave.DayStatus(status)
	d.RejectReason = rejectReason.String
	return &d, nil
}

func (s *Store) ListOpenDays(ctx context.Context, employeeID, excludeRequestID string) ([]leave.LeaveDay, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT d.id, d.request_id, d.employee_id, d.date, d.day_type, d.status, d.reject_reason, r.leave_type
		FROM leave_days d
		JOIN leave_requests r ON r.id = d.request_id
		WHERE d.employee_id = ? AND d.status != 'rejected' AND d.request_id != ?
		ORDER BY d.date
	`, employeeID, excludeRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query open days: %w", err)
	}
	defer rows.Close()

	var out []leave.LeaveDay
	for rows.Next() {
		var (
			d            leave.LeaveDay
			date         string
			dayType      string
			status       string
			rejectReason sql.NullString
			typ          string
		)
		if err := rows.Scan(&d.ID, &d.RequestID, &d.EmployeeID, &date, &dayType, &status, &rejectReason, &typ); err != nil {
			return nil, err
		}
		d.Date, _ = leave.ParseDate(date)
		d.Type = leave.DayType(dayType)
		d.Status = leave.DayStatus(status)
		d.RejectReason = rejectReason.String
		d.LeaveType = leave.LeaveType(typ)
		out = append(out, d)
	}
	return out, rows.Err()
}

// ReplaceRequestDays swaps the day set and updates the header in place.
// Edit semantics: delete + recreate inside the surrounding transaction.
func (s *Store) ReplaceRequestDays(ctx context.Context, r *leave.LeaveRequest) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM leave_days WHERE request_id = ?`, r.ID); err != nil {
		return wrapTransient("delete days", err)
	}
	if _, err := s.q.ExecContext(ctx, `
		UPDATE leave_requests
		SET start_date = ?, end_date = ?, start_half = ?, end_half = ?,
		    reason = ?, attachment_ref = ?, revision = ?, updated_at = ?
		WHERE id = ?
	`, r.StartDate.String(), r.EndDate.String(), boolInt(r.StartHalf), boolInt(r.EndHalf),
		r.Reason, nullString(r.AttachmentRef), r.Revision,
		r.UpdatedAt.Format(time.RFC3339), r.ID); err != nil {
		return wrapTransient("update request", err)
	}
	return s.insertDays(ctx, r.Days)
}

func (s *Store) DeleteRequest(ctx context.Context, id string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM leave_days WHERE request_id = ?`, id); err != nil {
		return wrapTransient("delete days", err)
	}
	_, err := s.q.ExecContext(ctx, `DELETE FROM leave_requests WHERE id = ?`, id)
	return wrapTransient("delete request", err)
}

func (s *Store) UpdateDayStatus(ctx context.Context, dayID string, status leave.DayStatus, rejectReason string) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE leave_days SET status = ?, reject_reason = ? WHERE id = ?
	`, string(status), nullString(rejectReason), dayID)
	return wrapTransient("update day status", err)
}

func (s *Store) SetRequestAudit(ctx context.Context, requestID, actorID string, role leave.Role, comment string, at time.Time) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE leave_requests
		SET decided_by = ?, decided_by_role = ?, decision_comment = ?, decided_at = ?, updated_at = ?
		WHERE id = ?
	`, actorID, string(role), comment, at.Format(time.RFC3339), at.Format(time.RFC3339), requestID)
	return wrapTransient("set request audit", err)
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (s *Store) SaveHoliday(ctx context.Context, h leave.Holiday) error {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO holidays (id, date, name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET name = excluded.name
	`, h.ID, h.Date.String(), h.Name, h.CreatedAt.Format(time.RFC3339))
	return wrapTransient("save holiday", err)
}

func (s *Store) ListHolidays(ctx context.Context, year int) ([]leave.Holiday, error) {
	return s.queryHolidays(ctx, `
		SELECT id, date, name, created_at FROM holidays
		WHERE date >= ? AND date <= ? ORDER BY date
	`, fmt.Sprintf("%04d-01-01", year), fmt.Sprintf("%04d-12-31", year))
}

func (s *Store) HolidaysInRange(ctx context.Context, from, to leave.Date) ([]leave.Holiday, error) {
	return s.queryHolidays(ctx, `
		SELECT id, date, name, created_at FROM holidays
		WHERE date >= ? AND date <= ? ORDER BY date
	`, from.String(), to.String())
}

func (s *Store) queryHolidays(ctx context.Context, query string, args ...any) ([]leave.Holiday, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var out []leave.Holiday
	for rows.Next() {
		var (
			h         leave.Holiday
			date      string
			createdAt string
		)
		if err := rows.Scan(&h.ID, &date, &h.Name, &createdAt); err != nil {
			return nil, err
		}
		h.Date, _ = leave.ParseDate(date)
		h.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM holidays WHERE id = ?`, id)
	return wrapTransient("delete holiday", err)
}

func (s *Store) DeleteHolidaysBefore(ctx context.Context, cutoff leave.Date) (int64, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM holidays WHERE date < ?`, cutoff.String())
	if err != nil {
		return 0, wrapTransient("prune holidays", err)
	}
	return res.RowsAffected()
}

// =============================================================================
// SCHEDULER RUNS
// =============================================================================

// runStaleAfter is how old a 'running' record must be before another
// claimant may assume its holder died mid-run and take it over.
const runStaleAfter = 10 * time.Minute

func (s *Store) TryBeginRun(ctx context.Context, job string, runDate leave.Date) (bool, error) {
	var status, startedAt string
	err := s.q.QueryRowContext(ctx,
		`SELECT status, started_at FROM scheduler_runs WHERE job = ? AND run_date = ?`,
		job, runDate.String()).Scan(&status, &startedAt)

	now := time.Now().UTC()
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO scheduler_runs (id, job, run_date, status, started_at)
			VALUES (?, ?, ?, 'running', ?)
		`, fmt.Sprintf("%s:%s", job, runDate), job, runDate.String(), now.Format(time.RFC3339))
		if err != nil {
			if isUniqueConstraintError(err) {
				return false, nil // another instance got there first
			}
			return false, wrapTransient("begin run", err)
		}
		return true, nil

	case err != nil:
		return false, wrapTransient("check run", err)

	case status == "completed":
		return false, nil

	case status == "running":
		if began, parseErr := time.Parse(time.RFC3339, startedAt); parseErr == nil && now.Sub(began) < runStaleAfter {
			return false, nil // a live instance holds this run
		}
	}

	// A prior run failed, or its holder went quiet long enough to be
	// presumed dead; take over.
	_, err = s.q.ExecContext(ctx, `
		UPDATE scheduler_runs SET status = 'running', error = NULL, started_at = ?, completed_at = NULL
		WHERE job = ? AND run_date = ?
	`, now.Format(time.RFC3339), job, runDate.String())
	return err == nil, wrapTransient("restart run", err)
}

func (s *Store) CompleteRun(ctx context.Context, job string, runDate leave.Date, runErr error) error {
	status := "completed"
	errMsg := ""
	if runErr != nil {
		status = "failed"
		errMsg = runErr.Error()
	}
	_, err := s.q.ExecContext(ctx, `
		UPDATE scheduler_runs SET status = ?, error = ?, completed_at = ?
		WHERE job = ? AND run_date = ?
	`, status, nullString(errMsg), time.Now().UTC().Format(time.RFC3339), job, runDate.String())
	return wrapTransient("complete run", err)
}

func (s *Store) ListRuns(ctx context.Context, job string, limit int) ([]leave.SchedulerRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, job, run_date, status, error, started_at, completed_at
		FROM scheduler_runs WHERE job = ? ORDER BY run_date DESC LIMIT ?
	`, job, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []leave.SchedulerRun
	for rows.Next() {
		var (
			r           leave.SchedulerRun
			runDate     string
			errMsg      sql.NullString
			startedAt   string
			completedAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Job, &runDate, &r.Status, &errMsg, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		r.RunDate, _ = leave.ParseDate(runDate)
		r.Error = errMsg.String
		r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if completedAt.Valid {
			t, _ := time.Parse(time.RFC3339, completedAt.String)
			r.CompletedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTIONAL SCOPE
// =============================================================================

// WithEmployeeTx serializes writers on one employee and runs fn inside a
// single SQL transaction with a bounded timeout. All-or-nothing: any error
// from fn rolls everything back.
func (s *Store) WithEmployeeTx(ctx context.Context, employeeID string, fn func(leave.Store) error) error {
	mu := s.locks.of(employeeID)
	mu.Lock()
	defer mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapTransient("begin transaction", err)
	}
	defer tx.Rollback()

	view := &Store{db: s.db, q: tx, locks: s.locks, txTimeout: s.txTimeout}
	if err := fn(view); err != nil {
		return err
	}
	return wrapTransient("commit transaction", tx.Commit())
}

// employeeLocks hands out one mutex per employee ID.
type employeeLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newEmployeeLocks() *employeeLocks {
	return &employeeLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *employeeLocks) of(employeeID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[employeeID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[employeeID] = m
	}
	return m
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func dateOrNull(d leave.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isOpenDayConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "idx_unique_open_day")
}

// wrapTransient maps infrastructure-level failures (busy database, expired
// transaction deadline) to leave.TransientError so callers can retry.
// Other errors pass through untouched.
func wrapTransient(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") {
		return &leave.TransientError{Op: op, Err: err}
	}
	return err
}
