/*
autotransition.go - Elapsed-request resolution job

A request whose full date range has passed with days still pending is
resolved in the employee's favor: the remaining pending days are approved
by the system actor. The balance was reserved at apply time, so approval
moves nothing; the day rows flip and the audit trail names the system.
*/
package scheduler

import (
	"context"

	"go.uber.org/zap"

	"github.com/attendly/leave-engine/leave"
)

const AutoTransitionJobName = "auto_transition"

type AutoTransitionJob struct {
	svc *leave.Service
	log *zap.Logger
}

func NewAutoTransitionJob(svc *leave.Service, log *zap.Logger) *AutoTransitionJob {
	if log == nil {
		log = zap.NewNop()
	}
	return &AutoTransitionJob{svc: svc, log: log}
}

func (j *AutoTransitionJob) Name() string { return AutoTransitionJobName }

func (j *AutoTransitionJob) Due(leave.Date) bool { return true }

func (j *AutoTransitionJob) Run(ctx context.Context, runDate leave.Date) error {
	resolved, err := j.svc.AutoApproveElapsed(ctx, runDate)
	if err != nil {
		return err
	}
	if resolved > 0 {
		j.log.Info("elapsed requests auto-approved",
			zap.String("run_date", runDate.String()),
			zap.Int("count", resolved))
	}
	return nil
}
