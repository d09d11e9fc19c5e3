package utils

import (
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"
)

// IsValidPaymentSchedule checks the cron expression, e.g. "0 14 * * 2"
func IsValidPaymentSchedule(expr string) bool {
	g := gronx.New()
	return g.IsValid(expr)
}

// NextPaymentSchedule returns the next tick of the schedule after now
func NextPaymentSchedule(expr string) time.Time {
	return NextPaymentScheduleAfter(expr, time.Now())
}

func NextPaymentScheduleAfter(expr string, ref time.Time) time.Time {
	t, err := gronx.NextTickAfter(expr, ref, false)
	if err != nil {
		zap.L().Error("invalid payment schedule", zap.String("expr", expr), zap.Error(err))
		return time.Time{}
	}
	return t
}

// PrevPaymentSchedule returns the latest tick of the schedule before now
func PrevPaymentSchedule(expr string) time.Time {
	t, err := gronx.PrevTickBefore(expr, time.Now(), true)
	if err != nil {
		zap.L().Error("invalid payment schedule", zap.String("expr", expr), zap.Error(err))
		return time.Time{}
	}
	return t
}
