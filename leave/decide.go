/*
decide.go - Approval state machine

PURPOSE:
  Day rows transition pending -> approved | rejected (terminal). The
  header status is re-derived from the day multiset on every transition,
  never patched independently.

  Approval moves no balance: the amount was reserved at apply time.
  Rejection refunds the day's reserved fraction back to the employee's
  balance for that leave type (an LOP rejection refunds the LOP
  allowance, not casual).

GUARDS:
  - An actor may not decide on their own request.
  - Only deciding roles (manager, hr, super_admin) may decide.
  - A request with zero pending days is immutable to further decisions,
    except for the auto-transition path that resolves genuinely stale
    pending requests.
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

type DecideInput struct {
	RequestID string
	ActorID   string
	ActorRole Role
	Decision  Decision

	// AffectedDates restricts the decision to specific pending days.
	// Empty means every still-pending day.
	AffectedDates []Date

	Comment string
}

// AutoApproveComment is the fixed audit comment recorded when the
// auto-transition path resolves an elapsed request.
const AutoApproveComment = "auto-approved: request window elapsed without review"

// =============================================================================
// DECIDE
// =============================================================================

// Decide applies an actor's approval or rejection to a request's pending
// days, recomputes the derived header status, and records the actor on the
// header for audit.
func (s *Service) Decide(ctx context.Context, in DecideInput) (*LeaveRequest, error) {
	if in.Decision != DecisionApprove && in.Decision != DecisionReject {
		return nil, fmt.Errorf("unknown decision %q", in.Decision)
	}
	if !in.ActorRole.CanDecide() {
		return nil, fmt.Errorf("%w: role %s may not decide requests", ErrForbidden, in.ActorRole)
	}

	req, err := s.Request(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	if req.EmployeeID == in.ActorID {
		return nil, &SelfApprovalError{RequestID: req.ID, ActorID: in.ActorID}
	}

	var decided *LeaveRequest
	err = s.store.WithEmployeeTx(ctx, req.EmployeeID, func(tx Store) error {
		cur, err := tx.GetRequest(ctx, in.RequestID)
		if err != nil {
			return err
		}
		if cur == nil {
			return fmt.Errorf("request %s: %w", in.RequestID, ErrNotFound)
		}

		decided, err = s.decideLocked(ctx, tx, cur, in.ActorID, in.ActorRole, in.Decision, in.AffectedDates, in.Comment)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("leave request decided",
		zap.String("request_id", decided.ID),
		zap.String("actor_id", in.ActorID),
		zap.String("decision", string(in.Decision)),
		zap.String("status", string(decided.Status())))

	s.notifyDecided(ctx, decided)
	return decided, nil
}

// decideLocked runs inside the per-employee transaction. The caller holds
// the employee scope; cur was read within the same transaction.
func (s *Service) decideLocked(
	ctx context.Context,
	tx Store,
	cur *LeaveRequest,
	actorID string,
	actorRole Role,
	decision Decision,
	affectedDates []Date,
	comment string,
) (*LeaveRequest, error) {
	pending := cur.PendingDays()
	if len(pending) == 0 {
		return nil, &AlreadyFinalizedError{RequestID: cur.ID, Status: cur.Status()}
	}

	targets, err := selectTargets(pending, affectedDates)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i := range targets {
		day := &targets[i]
		switch decision {
		case DecisionApprove:
			// Balance stays put: it was reserved at apply time.
			if err := tx.UpdateDayStatus(ctx, day.ID, DayApproved, ""); err != nil {
				return nil, err
			}
			day.Status = DayApproved

		case DecisionReject:
			if err := tx.UpdateDayStatus(ctx, day.ID, DayRejected, comment); err != nil {
				return nil, err
			}
			day.Status = DayRejected
			day.RejectReason = comment

			if _, err := tx.AdjustBalance(ctx, BalanceEntry{
				ID:             uuid.NewString(),
				EmployeeID:     cur.EmployeeID,
				Type:           cur.Type,
				Delta:          day.Weight(),
				Reason:         "rejection refund",
				ReferenceID:    cur.ID,
				IdempotencyKey: rejectRefundKey(cur.ID, cur.Revision, day.Date),
			}); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.SetRequestAudit(ctx, cur.ID, actorID, actorRole, comment, now); err != nil {
		return nil, err
	}

	// Re-read so the returned header reflects the committed day multiset.
	decided, err := tx.GetRequest(ctx, cur.ID)
	if err != nil {
		return nil, err
	}
	return decided, nil
}

// selectTargets narrows the pending set to the requested dates, or returns
// every pending day when no restriction was given.
func selectTargets(pending []LeaveDay, dates []Date) ([]LeaveDay, error) {
	if len(dates) == 0 {
		return pending, nil
	}

	byDate := make(map[Date]LeaveDay, len(pending))
	for _, d := range pending {
		byDate[d.Date] = d
	}

	out := make([]LeaveDay, 0, len(dates))
	for _, date := range dates {
		day, ok := byDate[date]
		if !ok {
			return nil, fmt.Errorf("%w: no pending day on %s", ErrNotFound, date)
		}
		out = append(out, day)
	}
	return out, nil
}

// =============================================================================
// AUTO-TRANSITION
// =============================================================================

// AutoApproveElapsed resolves every request still pending after its date
// range has fully elapsed: all remaining pending days are approved as the
// system actor with a fixed audit comment. Running it on already-resolved
// requests is a no-op; per-request failures are logged and the batch
// continues. Returns the number of requests resolved.
func (s *Service) AutoApproveElapsed(ctx context.Context, asOf Date) (int, error) {
	elapsed, err := s.store.ListElapsedPending(ctx, asOf)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, stale := range elapsed {
		requestID := stale.ID
		err := s.store.WithEmployeeTx(ctx, stale.EmployeeID, func(tx Store) error {
			cur, err := tx.GetRequest(ctx, requestID)
			if err != nil {
				return err
			}
			if cur == nil || len(cur.PendingDays()) == 0 {
				return nil // resolved concurrently; idempotent no-op
			}
			_, err = s.decideLocked(ctx, tx, cur, SystemActorID, RoleSuperAdmin,
				DecisionApprove, nil, AutoApproveComment)
			return err
		})
		if err != nil {
			s.log.Error("auto-transition failed for request",
				zap.String("request_id", requestID),
				zap.Error(err))
			continue
		}
		resolved++
	}

	if resolved > 0 {
		s.log.Info("auto-transition resolved elapsed requests", zap.Int("count", resolved))
	}
	return resolved, nil
}
