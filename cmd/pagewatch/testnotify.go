package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pagewatch/internal/model"
)

// NewTestNotifyCmd creates the test-notify command.
func NewTestNotifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification through every configured sink",
		Args:  cobra.NoArgs,
		RunE:  runTestNotify,
	}
}

func runTestNotify(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.withMonitor(); err != nil {
		return err
	}

	now := time.Now().UTC()
	snap := &model.Snapshot{URL: "https://example.com", CapturedAt: now}
	ev := model.ChangeEvent{
		Site:     model.Site{Name: "Test notification", URL: snap.URL},
		Previous: snap,
		Current:  snap,
		Diff:     "ADDED: If you received this, notifications are working!",
	}
	if err := a.sink.NotifyChange(commandContext(cmd), ev); err != nil {
		return fmt.Errorf("send test notification: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent.")
	return nil
}
