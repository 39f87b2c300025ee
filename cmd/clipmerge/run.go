package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"clipmerge/internal/history"
	"clipmerge/internal/lock"
	"clipmerge/internal/logging"
	"clipmerge/internal/metrics"
	"clipmerge/internal/pipeline"
	"clipmerge/internal/preflight"
	"clipmerge/internal/watch"
)

// runConsolidate holds the instance lock for the whole run. Batch failures
// are logged and journaled but never fail the command.
func runConsolidate(cmd *cobra.Command, cc *commandContext, scope string, watchOverride *bool) error {
	cfg, err := cc.ensureConfig()
	if err != nil {
		return err
	}
	watchEnabled := cfg.Watch.Enabled
	if watchOverride != nil {
		watchEnabled = *watchOverride
	}

	logger, err := logging.NewFromConfig(cfg, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	instance, err := lock.Acquire(ctx, cfg.LockPath(), cfg.LockTimeout())
	if err != nil {
		return err
	}
	defer func() {
		if err := instance.Release(); err != nil {
			logger.Warn("failed to release instance lock", logging.Error(err))
		}
	}()

	if failed := preflight.Failed(preflight.RunAll(ctx, cfg)); len(failed) > 0 {
		return fmt.Errorf("preflight failed: %s (run 'clipmerge doctor' for details)", preflight.Summary(failed))
	}

	ledger, err := history.Open(cfg)
	if err != nil {
		return err
	}
	defer ledger.Close()

	recorder := metrics.NewRecorder()
	runner := pipeline.New(cfg, ledger, logger, pipeline.WithObserver(recorder))

	server := metrics.NewServer(cfg.Metrics.Bind, runner, logger)
	if err := server.Start(ctx); err != nil {
		return err
	}
	defer server.Stop()

	var notify <-chan struct{}
	if watchEnabled {
		watcher, err := watch.New(cfg, logger, watch.WithObserver(recorder))
		if err != nil {
			return err
		}
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("watcher stopped", logging.Error(err))
			}
		}()
		notify = watcher.Notifications()
	}

	logger.Info("clipmerge started",
		logging.String("root", cfg.Paths.Root),
		logging.String("scope", scope),
		logging.Bool("watch", watchEnabled),
		logging.String("lock", instance.Path()),
	)
	err = runner.Run(ctx, scope, notify)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if last := runner.LastCycle(); last != nil && !watchEnabled {
		logger.Info("run finished",
			logging.Int("committed", last.Count(pipeline.OutcomeCommitted)),
			logging.Int("failed", last.Count(pipeline.OutcomeFailed)),
			logging.Int("blocked", last.Count(pipeline.OutcomeBlocked)),
			logging.Int("deferred", last.Count(pipeline.OutcomeDeferred)),
		)
	}
	return err
}
