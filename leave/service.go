/*
service.go - Engine service: wiring, queries, notification plumbing

PURPOSE:
  Service orchestrates every externally triggered operation (apply, edit,
  withdraw, decide) plus the scheduler entry points. Each operation runs
  its checks and writes inside one per-employee transaction, so no caller
  ever observes a half-committed state.

SEE ALSO:
  - apply.go:  admission pipeline (calculator, conflicts, balance, caps)
  - decide.go: approval state machine
*/
package leave

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// SystemActorID attributes automatic transitions to a designated system
// actor rather than a human.
const SystemActorID = "system"

type Service struct {
	store    TxStore
	clock    Clock
	notifier Notifier
	log      *zap.Logger
}

func NewService(store TxStore, clock Clock, notifier Notifier, log *zap.Logger) *Service {
	if clock == nil {
		clock = SystemClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, clock: clock, notifier: notifier, log: log}
}

// Store exposes the underlying store for read-only API plumbing.
func (s *Service) Store() TxStore { return s.store }

// Today returns the engine's current calendar date.
func (s *Service) Today() Date { return s.clock.Today() }

// =============================================================================
// QUERIES
// =============================================================================

func (s *Service) Request(ctx context.Context, id string) (*LeaveRequest, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	return req, nil
}

func (s *Service) Employee(ctx context.Context, id string) (*Employee, error) {
	emp, err := s.store.GetEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	if emp == nil {
		return nil, fmt.Errorf("employee %s: %w", id, ErrNotFound)
	}
	return emp, nil
}

func (s *Service) Balances(ctx context.Context, employeeID string) ([]Balance, error) {
	return s.store.ListBalances(ctx, employeeID)
}

// EffectivePolicy resolves the authoritative policy version for the role
// and leave type as of today. Returns nil when no version is effective.
func (s *Service) EffectivePolicy(ctx context.Context, role Role, typ LeaveType, asOf Date) (*PolicyConfig, error) {
	versions, err := s.store.PolicyVersions(ctx, role, typ)
	if err != nil {
		return nil, err
	}
	p, err := ResolvePolicy(versions, asOf)
	if err != nil {
		return nil, nil // no effective version: engine runs uncapped
	}
	return p, nil
}

// calendarFor loads the configured holidays covering [from, to].
func (s *Service) calendarFor(ctx context.Context, from, to Date) (HolidayCalendar, error) {
	holidays, err := s.store.HolidaysInRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return NewMapCalendar(holidays), nil
}

// =============================================================================
// BALANCE ENTRY KEYS
// =============================================================================
// Reserve/refund pairs embed the request revision so the keys stay unique
// across edits while a replay of the same logical mutation stays a no-op.

func reserveKey(requestID string, revision int) string {
	return fmt.Sprintf("reserve:%s:r%d", requestID, revision)
}

func unreserveKey(requestID string, revision int) string {
	return fmt.Sprintf("unreserve:%s:r%d", requestID, revision)
}

func withdrawKey(requestID string, revision int) string {
	return fmt.Sprintf("withdraw:%s:r%d", requestID, revision)
}

func rejectRefundKey(requestID string, revision int, d Date) string {
	return fmt.Sprintf("refund:%s:r%d:%s", requestID, revision, d)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================
// Dispatch failures are logged and swallowed. A decision or accrual never
// fails because the mail collaborator did.

func (s *Service) dispatch(ctx context.Context, recipient string, payload map[string]any) {
	if s.notifier == nil || recipient == "" {
		return
	}
	if err := s.notifier.Dispatch(ctx, recipient, payload); err != nil {
		s.log.Warn("notification dispatch failed",
			zap.String("recipient", recipient),
			zap.Error(err))
	}
}

func (s *Service) notifyApplied(ctx context.Context, emp *Employee, req *LeaveRequest) {
	recipient := ""
	if emp.ManagerID != "" {
		if mgr, err := s.store.GetEmployee(ctx, emp.ManagerID); err == nil && mgr != nil {
			recipient = mgr.Email
		}
	}
	s.dispatch(ctx, recipient, map[string]any{
		"event":      "leave_applied",
		"request_id": req.ID,
		"employee":   emp.Name,
		"leave_type": string(req.Type),
		"start":      req.StartDate.String(),
		"end":        req.EndDate.String(),
		"days":       req.RequestedDays().Float64(),
	})
}

func (s *Service) notifyDecided(ctx context.Context, req *LeaveRequest) {
	emp, err := s.store.GetEmployee(ctx, req.EmployeeID)
	if err != nil || emp == nil {
		return
	}
	s.dispatch(ctx, emp.Email, map[string]any{
		"event":      "leave_decided",
		"request_id": req.ID,
		"status":     string(req.Status()),
		"decided_by": req.DecidedBy,
		"comment":    req.DecisionComment,
	})
}

// filterByType keeps only day rows belonging to requests of one leave type.
func filterByType(days []LeaveDay, typ LeaveType) []LeaveDay {
	var out []LeaveDay
	for _, d := range days {
		if d.LeaveType == typ {
			out = append(out, d)
		}
	}
	return out
}
