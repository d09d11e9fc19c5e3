package rewards

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/projectai397/sakshi-platform-sub002/src/utils"
)

// Scheduler runs the payout batch on the cron schedule of the settings and
// keeps confirming its transactions until they are settled
type Scheduler struct {
	Svc       *Service
	Cron      string
	RetryWait time.Duration
}

func NewScheduler(svc *Service) *Scheduler {
	return &Scheduler{Svc: svc, Cron: svc.Settings.PayCronSchedule, RetryWait: time.Hour}
}

// Run blocks until ctx is cancelled. A batch that was due while the
// process was down runs immediately.
func (sc *Scheduler) Run(ctx context.Context) error {
	if !utils.IsValidPaymentSchedule(sc.Cron) {
		return errors.Errorf("invalid payment schedule %q", sc.Cron)
	}
	last, _, err := sc.Svc.Store.BatchState(ctx)
	if err != nil {
		return err
	}
	prev := utils.PrevPaymentSchedule(sc.Cron)
	if !prev.IsZero() && last.Before(prev) {
		zap.L().Info("payout batch overdue, running now", zap.Time("last", last), zap.Time("due", prev))
		sc.RunOnce(ctx)
	} else {
		sc.confirmUntilSettled(ctx)
	}
	for {
		next := utils.NextPaymentSchedule(sc.Cron)
		zap.L().Info("next payout batch", zap.Time("at", next))
		if !sleepCtx(ctx, time.Until(next)) {
			return nil
		}
		sc.RunOnce(ctx)
	}
}

// RunOnce syncs on-chain transfers, pays out and confirms
func (sc *Scheduler) RunOnce(ctx context.Context) {
	if _, err := sc.Svc.SyncTransfers(ctx); err != nil {
		zap.L().Warn("sync transfers", zap.Error(err))
	}
	if _, err := sc.Svc.ProcessPayouts(ctx); err != nil {
		zap.L().Error("process payouts", zap.Error(err))
	}
	sc.confirmUntilSettled(ctx)
}

func (sc *Scheduler) confirmUntilSettled(ctx context.Context) {
	for {
		rep, err := sc.Svc.ConfirmPayments(ctx)
		if err != nil {
			if !errors.Is(err, ErrDisabled) {
				zap.L().Error("confirm payments", zap.Error(err))
			}
			return
		}
		if !rep.Retry() {
			return
		}
		zap.L().Info("re-scheduling payment confirmation", zap.Duration("in", sc.RetryWait))
		if !sleepCtx(ctx, sc.RetryWait) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
