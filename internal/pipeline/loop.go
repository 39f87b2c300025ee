package pipeline

import (
	"context"
	"errors"
	"time"

	"clipmerge/internal/logging"
)

// Run performs a startup cycle, then, if notify is non-nil, one cycle per
// settled burst of notifications until ctx is done. In one-shot mode the
// startup cycle's error is returned; in watch mode cycle errors are logged
// and the loop keeps waiting.
func (r *Runner) Run(ctx context.Context, scope string, notify <-chan struct{}) error {
	_, err := r.RunCycle(ctx, TriggerStartup, scope)
	if notify == nil {
		return err
	}
	r.logCycleError(err)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-notify:
		}
		if !r.settle(ctx, notify) {
			return nil
		}
		_, err := r.RunCycle(ctx, TriggerWatch, scope)
		r.logCycleError(err)
	}
}

// settle waits until no notification has arrived for the settle delay.
func (r *Runner) settle(ctx context.Context, notify <-chan struct{}) bool {
	delay := r.cfg.SettleDelay()
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-notify:
			timer.Reset(delay)
		case <-timer.C:
			return true
		}
	}
}

func (r *Runner) logCycleError(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	logging.ErrorWithContext(r.logger, "cycle failed", "cycle_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check that the highlights root and state directory are readable"),
	)
}
