/*
apply.go - Admission pipeline: apply, edit, withdraw

PURPOSE:
  A request enters the engine only after the full admission pipeline
  passes inside one per-employee transaction:

    1. Day-requested calculation (daycount.go)
    2. Conflict check against existing non-rejected days (conflict.go)
    3. Balance check - balance is RESERVED (debited) at apply time, not
       at approval time, so a flood of pending requests cannot promise
       more leave than exists
    4. Monthly cap check for capped types (validate.go)
    5. Prior-notice check (validate.go)

  Edit is an atomic delete+recreate of the day set with a fresh pipeline
  run: the old reservation is returned first, so editing down or
  sideways is not penalized. Withdrawal refunds and deletes. Both are
  permitted only while every day is still pending.
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ApplyInput struct {
	EmployeeID    string
	Type          LeaveType
	StartDate     Date
	EndDate       Date
	StartHalf     bool
	EndHalf       bool
	Reason        string
	AttachmentRef string
}

type EditInput struct {
	RequestID     string
	StartDate     Date
	EndDate       Date
	StartHalf     bool
	EndHalf       bool
	Reason        string
	AttachmentRef string
}

// =============================================================================
// APPLY
// =============================================================================

// Apply admits a new leave request, materializing one day row per billable
// date and reserving the requested amount against the employee's balance.
func (s *Service) Apply(ctx context.Context, in ApplyInput) (*LeaveRequest, error) {
	emp, err := s.Employee(ctx, in.EmployeeID)
	if err != nil {
		return nil, err
	}

	today := s.clock.Today()

	cal, err := s.calendarFor(ctx, in.StartDate, in.EndDate)
	if err != nil {
		return nil, err
	}

	total, specs, err := CountRequestedDays(
		in.StartDate, in.EndDate, in.StartHalf, in.EndHalf, in.Type, emp.Role, cal)
	if err != nil {
		return nil, err
	}

	policy, err := s.EffectivePolicy(ctx, emp.Role, in.Type, today)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	req := &LeaveRequest{
		ID:            uuid.NewString(),
		EmployeeID:    emp.ID,
		Type:          in.Type,
		AppliedOn:     today,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		StartHalf:     in.StartHalf,
		EndHalf:       in.EndHalf,
		Reason:        in.Reason,
		AttachmentRef: in.AttachmentRef,
		Revision:      1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.store.WithEmployeeTx(ctx, emp.ID, func(tx Store) error {
		if err := s.runAdmissionChecks(ctx, tx, emp, in.Type, specs, total, in.StartDate, today, policy, "", ZeroDays()); err != nil {
			return err
		}

		req.Days = materializeDays(req, specs)
		if err := tx.InsertRequest(ctx, req); err != nil {
			return err
		}

		_, err := tx.AdjustBalance(ctx, BalanceEntry{
			ID:             uuid.NewString(),
			EmployeeID:     emp.ID,
			Type:           in.Type,
			Delta:          total.Neg(),
			Reason:         "reserved at apply",
			ReferenceID:    req.ID,
			IdempotencyKey: reserveKey(req.ID, req.Revision),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("leave request admitted",
		zap.String("request_id", req.ID),
		zap.String("employee_id", emp.ID),
		zap.String("leave_type", string(in.Type)),
		zap.Float64("days", total.Float64()))

	s.notifyApplied(ctx, emp, req)
	return req, nil
}

// =============================================================================
// EDIT
// =============================================================================

// Edit replaces the request's day set with a freshly validated one.
// Permitted only while every day is still pending.
func (s *Service) Edit(ctx context.Context, in EditInput) (*LeaveRequest, error) {
	existing, err := s.Request(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	emp, err := s.Employee(ctx, existing.EmployeeID)
	if err != nil {
		return nil, err
	}

	today := s.clock.Today()

	cal, err := s.calendarFor(ctx, in.StartDate, in.EndDate)
	if err != nil {
		return nil, err
	}

	total, specs, err := CountRequestedDays(
		in.StartDate, in.EndDate, in.StartHalf, in.EndHalf, existing.Type, emp.Role, cal)
	if err != nil {
		return nil, err
	}

	policy, err := s.EffectivePolicy(ctx, emp.Role, existing.Type, today)
	if err != nil {
		return nil, err
	}

	var updated *LeaveRequest
	err = s.store.WithEmployeeTx(ctx, emp.ID, func(tx Store) error {
		cur, err := tx.GetRequest(ctx, in.RequestID)
		if err != nil {
			return err
		}
		if cur == nil {
			return fmt.Errorf("request %s: %w", in.RequestID, ErrNotFound)
		}
		if !cur.AllPending() {
			return fmt.Errorf("%w: request %s is %s", ErrNotEditable, cur.ID, cur.Status())
		}

		prior := cur.RequestedDays()
		if err := s.runAdmissionChecks(ctx, tx, emp, cur.Type, specs, total, in.StartDate, today, policy, cur.ID, prior); err != nil {
			return err
		}

		// Return the old reservation, then reserve the new amount under the
		// bumped revision.
		if _, err := tx.AdjustBalance(ctx, BalanceEntry{
			ID:             uuid.NewString(),
			EmployeeID:     emp.ID,
			Type:           cur.Type,
			Delta:          prior,
			Reason:         "reservation returned on edit",
			ReferenceID:    cur.ID,
			IdempotencyKey: unreserveKey(cur.ID, cur.Revision),
		}); err != nil {
			return err
		}

		cur.StartDate = in.StartDate
		cur.EndDate = in.EndDate
		cur.StartHalf = in.StartHalf
		cur.EndHalf = in.EndHalf
		cur.Reason = in.Reason
		cur.AttachmentRef = in.AttachmentRef
		cur.Revision++
		cur.UpdatedAt = time.Now().UTC()
		cur.Days = materializeDays(cur, specs)

		if err := tx.ReplaceRequestDays(ctx, cur); err != nil {
			return err
		}

		if _, err := tx.AdjustBalance(ctx, BalanceEntry{
			ID:             uuid.NewString(),
			EmployeeID:     emp.ID,
			Type:           cur.Type,
			Delta:          total.Neg(),
			Reason:         "reserved at edit",
			ReferenceID:    cur.ID,
			IdempotencyKey: reserveKey(cur.ID, cur.Revision),
		}); err != nil {
			return err
		}

		updated = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("leave request edited",
		zap.String("request_id", updated.ID),
		zap.Int("revision", updated.Revision),
		zap.Float64("days", total.Float64()))

	return updated, nil
}

// =============================================================================
// WITHDRAW
// =============================================================================

// Withdraw deletes a fully-pending request and refunds its reservation.
// Only the requesting employee may withdraw.
func (s *Service) Withdraw(ctx context.Context, requestID, actorID string) error {
	req, err := s.Request(ctx, requestID)
	if err != nil {
		return err
	}
	if actorID != req.EmployeeID {
		return fmt.Errorf("%w: only the requesting employee may withdraw", ErrForbidden)
	}

	err = s.store.WithEmployeeTx(ctx, req.EmployeeID, func(tx Store) error {
		cur, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if cur == nil {
			return fmt.Errorf("request %s: %w", requestID, ErrNotFound)
		}
		if !cur.AllPending() {
			return fmt.Errorf("%w: request %s is %s", ErrNotEditable, cur.ID, cur.Status())
		}

		if _, err := tx.AdjustBalance(ctx, BalanceEntry{
			ID:             uuid.NewString(),
			EmployeeID:     cur.EmployeeID,
			Type:           cur.Type,
			Delta:          cur.RequestedDays(),
			Reason:         "reservation returned on withdrawal",
			ReferenceID:    cur.ID,
			IdempotencyKey: withdrawKey(cur.ID, cur.Revision),
		}); err != nil {
			return err
		}

		return tx.DeleteRequest(ctx, cur.ID)
	})
	if err != nil {
		return err
	}

	s.log.Info("leave request withdrawn", zap.String("request_id", requestID))
	return nil
}

// =============================================================================
// SHARED ADMISSION CHECKS
// =============================================================================

// runAdmissionChecks executes the conflict, balance, monthly cap, and
// prior-notice checks in order. excludeRequestID and priorReservation are
// set when editing: the request's own days are excluded from scans and its
// reservation is notionally returned before the balance comparison.
func (s *Service) runAdmissionChecks(
	ctx context.Context,
	tx Store,
	emp *Employee,
	typ LeaveType,
	specs []DaySpec,
	total Days,
	start Date,
	today Date,
	policy *PolicyConfig,
	excludeRequestID string,
	priorReservation Days,
) error {
	openDays, err := tx.ListOpenDays(ctx, emp.ID, excludeRequestID)
	if err != nil {
		return err
	}
	if err := CheckConflicts(specs, openDays); err != nil {
		return err
	}

	balance, err := tx.GetBalance(ctx, emp.ID, typ)
	if err != nil {
		return err
	}
	available := balance.Add(priorReservation)
	if !available.IsPositive() || total.GreaterThan(available) {
		return &InsufficientBalanceError{Type: typ, Available: available, Required: total}
	}

	cap := ZeroDays()
	if policy != nil {
		cap = policy.MaxPerMonth
	}
	if err := CheckMonthlyCap(typ, cap, specs, filterByType(openDays, typ)); err != nil {
		return err
	}

	return CheckPriorNotice(typ, today, start, total)
}

func materializeDays(req *LeaveRequest, specs []DaySpec) []LeaveDay {
	days := make([]LeaveDay, len(specs))
	for i, spec := range specs {
		days[i] = LeaveDay{
			ID:         uuid.NewString(),
			RequestID:  req.ID,
			EmployeeID: req.EmployeeID,
			Date:       spec.Date,
			Type:       spec.Type,
			Status:     DayPending,
			LeaveType:  req.Type,
		}
	}
	return days
}
