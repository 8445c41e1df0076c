package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Check due sites continuously until interrupted",
		Long: `Run checks every site that is due immediately, then looks for due sites
once a minute. A site is due when its own interval (or CHECK_INTERVAL_MINUTES)
has passed since its last check attempt.

When TELEGRAM_BOT_TOKEN is set, the Telegram command bot runs alongside the
scheduler and change notifications are posted to TELEGRAM_CHAT_ID.`,
		Args: cobra.NoArgs,
		RunE: runRun,
	}
}

func runRun(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.withMonitor(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.log.Info("starting pagewatch",
		"interval_min", a.cfg.CheckIntervalMinutes,
		"concurrency", a.cfg.Concurrency,
		"telegram", a.bot != nil,
		"rules_file", a.cfg.RulesFile,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.scheduler.Run(ctx)
		return nil
	})
	if a.bot != nil {
		g.Go(func() error {
			a.bot.Run(ctx)
			return nil
		})
	}
	err = g.Wait()

	a.log.Info("pagewatch stopped")
	return err
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
