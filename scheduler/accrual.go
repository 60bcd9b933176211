/*
accrual.go - Balance accrual and carry-forward job

PURPOSE:
  Keeps every active employee's balances funded per policy:

    monthly credit   1st of month: annual credit / 12, clamped so the
                     balance never exceeds the annual maximum
    anniversary      exact service anniversaries divisible by 3 or 5
                     earn one bonus, credited to the casual balance;
                     the 5-year bonus wins when both divide (year 15
                     pays once, at the 5-year rate)
    carry-forward    Jan 1: balance above the carry-forward limit is
                     forfeited before the January credit lands

  Every credit and forfeiture is an idempotent balance entry, so a rerun
  of the same date (crash recovery, manual trigger) moves nothing twice.
*/
package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/attendly/leave-engine/leave"
)

const AccrualJobName = "accrual"

type AccrualJob struct {
	store    leave.TxStore
	notifier leave.Notifier
	log      *zap.Logger
}

func NewAccrualJob(store leave.TxStore, notifier leave.Notifier, log *zap.Logger) *AccrualJob {
	if log == nil {
		log = zap.NewNop()
	}
	return &AccrualJob{store: store, notifier: notifier, log: log}
}

// creditNote describes one balance credit applied during a run, for the
// per-employee notification.
type creditNote struct {
	LeaveType leave.LeaveType
	Reason    string
	Amount    leave.Days
}

func (j *AccrualJob) Name() string { return AccrualJobName }

// Due every day: anniversaries can land on any date.
func (j *AccrualJob) Due(leave.Date) bool { return true }

func (j *AccrualJob) Run(ctx context.Context, runDate leave.Date) error {
	employees, err := j.store.ListEmployeesByStatus(ctx, leave.StatusActive)
	if err != nil {
		return fmt.Errorf("list active employees: %w", err)
	}

	var firstErr error
	for _, emp := range employees {
		emp := emp
		var credits []creditNote
		err := j.store.WithEmployeeTx(ctx, emp.ID, func(tx leave.Store) error {
			var err error
			credits, err = j.accrueEmployee(ctx, tx, emp, runDate)
			return err
		})
		if err != nil {
			j.log.Error("accrual failed for employee",
				zap.String("employee_id", emp.ID),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		j.notifyCredits(ctx, emp, credits)
	}

	// Year rollover also prunes holidays older than last year; the
	// calendar only matters for ranges the engine still adjudicates.
	if isYearStart(runDate) {
		cutoff := leave.StartOfYear(runDate.Year() - 1)
		if n, err := j.store.DeleteHolidaysBefore(ctx, cutoff); err != nil {
			j.log.Warn("holiday pruning failed", zap.Error(err))
		} else if n > 0 {
			j.log.Info("pruned stale holidays", zap.Int64("count", n))
		}
	}

	return firstErr
}

// accrueEmployee applies, in order: carry-forward forfeiture (Jan 1),
// monthly credit (1st of month), anniversary bonus. All inside the
// employee's transaction. Returns the credits that actually landed.
func (j *AccrualJob) accrueEmployee(ctx context.Context, tx leave.Store, emp leave.Employee, runDate leave.Date) ([]creditNote, error) {
	var credits []creditNote
	var casual *leave.PolicyConfig
	for _, typ := range leave.AllLeaveTypes {
		versions, err := tx.PolicyVersions(ctx, emp.Role, typ)
		if err != nil {
			return nil, err
		}
		policy, err := leave.ResolvePolicy(versions, runDate)
		if err != nil {
			continue // no effective policy: nothing accrues for this type
		}
		if typ == leave.LeaveCasual {
			casual = policy
		}

		if isYearStart(runDate) {
			if err := j.carryForward(ctx, tx, emp, *policy, runDate); err != nil {
				return nil, err
			}
		}
		if runDate.Day() == 1 {
			note, err := j.monthlyCredit(ctx, tx, emp, *policy, runDate)
			if err != nil {
				return nil, err
			}
			if note != nil {
				credits = append(credits, *note)
			}
		}
	}

	// At most one anniversary bonus per run, always on the casual
	// balance. Bonus amounts configured on other leave types' policies
	// never pay out.
	if casual != nil {
		note, err := j.anniversaryBonus(ctx, tx, emp, *casual, runDate)
		if err != nil {
			return nil, err
		}
		if note != nil {
			credits = append(credits, *note)
		}
	}
	return credits, nil
}

func (j *AccrualJob) carryForward(ctx context.Context, tx leave.Store, emp leave.Employee, policy leave.PolicyConfig, runDate leave.Date) error {
	balance, err := tx.GetBalance(ctx, emp.ID, policy.LeaveType)
	if err != nil {
		return err
	}
	if !balance.GreaterThan(policy.CarryForwardLimit) {
		return nil
	}

	forfeit := balance.Sub(policy.CarryForwardLimit)
	_, err = tx.AdjustBalance(ctx, leave.BalanceEntry{
		ID:         uuid.NewString(),
		EmployeeID: emp.ID,
		Type:       policy.LeaveType,
		Delta:      forfeit.Neg(),
		Reason:     "carry-forward forfeiture",
		IdempotencyKey: fmt.Sprintf("carryover:%s:%s:%d",
			emp.ID, policy.LeaveType, runDate.Year()),
	})
	return err
}

func (j *AccrualJob) monthlyCredit(ctx context.Context, tx leave.Store, emp leave.Employee, policy leave.PolicyConfig, runDate leave.Date) (*creditNote, error) {
	if !policy.AnnualCredit.IsPositive() {
		return nil, nil
	}
	credit := policy.AnnualCredit.Div(12)

	balance, err := tx.GetBalance(ctx, emp.ID, policy.LeaveType)
	if err != nil {
		return nil, err
	}
	headroom := policy.AnnualMax.Sub(balance)
	if !headroom.IsPositive() {
		return nil, nil // already at the annual maximum
	}
	credit = credit.Min(headroom)

	applied, err := tx.AdjustBalance(ctx, leave.BalanceEntry{
		ID:         uuid.NewString(),
		EmployeeID: emp.ID,
		Type:       policy.LeaveType,
		Delta:      credit,
		Reason:     "monthly accrual",
		IdempotencyKey: fmt.Sprintf("monthly:%s:%s:%s",
			emp.ID, policy.LeaveType, runDate.MonthKey()),
	})
	if err != nil || !applied {
		return nil, err
	}
	return &creditNote{LeaveType: policy.LeaveType, Reason: "monthly accrual", Amount: credit}, nil
}

func (j *AccrualJob) anniversaryBonus(ctx context.Context, tx leave.Store, emp leave.Employee, policy leave.PolicyConfig, runDate leave.Date) (*creditNote, error) {
	years := emp.ServiceYears(runDate)
	if years == 0 {
		return nil, nil
	}

	bonus := leave.ZeroDays()
	switch {
	case years%5 == 0:
		bonus = policy.Anniversary5Bonus
	case years%3 == 0:
		bonus = policy.Anniversary3Bonus
	}
	if !bonus.IsPositive() {
		return nil, nil
	}

	reason := fmt.Sprintf("%d-year service anniversary bonus", years)
	applied, err := tx.AdjustBalance(ctx, leave.BalanceEntry{
		ID:         uuid.NewString(),
		EmployeeID: emp.ID,
		Type:       policy.LeaveType,
		Delta:      bonus,
		Reason:     reason,
		IdempotencyKey: fmt.Sprintf("anniv:%s:%s:y%d",
			emp.ID, policy.LeaveType, years),
	})
	if err != nil || !applied {
		return nil, err
	}
	j.log.Info("anniversary bonus credited",
		zap.String("employee_id", emp.ID),
		zap.String("leave_type", string(policy.LeaveType)),
		zap.Int("years", years),
		zap.Float64("bonus", bonus.Float64()))
	return &creditNote{LeaveType: policy.LeaveType, Reason: reason, Amount: bonus}, nil
}

// notifyCredits tells the employee what landed. Best-effort: a dispatch
// failure never fails the run.
func (j *AccrualJob) notifyCredits(ctx context.Context, emp leave.Employee, credits []creditNote) {
	if j.notifier == nil || emp.Email == "" || len(credits) == 0 {
		return
	}
	items := make([]map[string]any, len(credits))
	for i, c := range credits {
		items[i] = map[string]any{
			"leave_type": string(c.LeaveType),
			"reason":     c.Reason,
			"amount":     c.Amount.Float64(),
		}
	}
	if err := j.notifier.Dispatch(ctx, emp.Email, map[string]any{
		"event":   "balance_credited",
		"credits": items,
	}); err != nil {
		j.log.Warn("accrual notification failed",
			zap.String("employee_id", emp.ID),
			zap.Error(err))
	}
}

func isYearStart(d leave.Date) bool {
	return d.Month() == 1 && d.Day() == 1
}
