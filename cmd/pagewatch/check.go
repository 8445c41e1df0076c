package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pagewatch/internal/model"
	"pagewatch/internal/notify"
)

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [url...]",
		Short: "Check sites once and print the results",
		Long: `Check fetches the given sites, or every site when no URL is given, once
and regardless of their schedule. Changes and errors are notified exactly as
in run.`,
		RunE: runCheck,
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx := commandContext(cmd)
	var sites []model.Site
	if len(args) == 0 {
		if sites, err = a.registry.List(ctx); err != nil {
			return err
		}
	} else {
		for _, u := range args {
			site, err := a.registry.Get(ctx, u)
			if err != nil {
				return fmt.Errorf("%s: %w", u, err)
			}
			sites = append(sites, *site)
		}
	}

	if err := a.withMonitor(); err != nil {
		return err
	}

	outcomes := a.scheduler.CheckSites(ctx, sites)
	fmt.Fprintln(cmd.OutOrStdout(), notify.FormatOutcomes(outcomes))
	return nil
}
