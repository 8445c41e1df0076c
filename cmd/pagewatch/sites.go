package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pagewatch/internal/notify"
	"pagewatch/internal/registry"
)

// NewAddCmd creates the add command.
func NewAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Start watching a page",
		Long: `Add registers a page for monitoring. Its first check records a baseline
snapshot; later checks compare against it.

Examples:
  # Watch a whole page
  pagewatch add https://example.com/news

  # Watch only the release list, every 15 minutes
  pagewatch add https://example.com/releases --selector "ul.releases" --interval 15`,
		Args: cobra.ExactArgs(1),
		RunE: runAdd,
	}

	cmd.Flags().StringP("name", "n", "", "Display name (defaults to the URL)")
	cmd.Flags().StringP("selector", "s", "", "CSS selector limiting the watched content")
	cmd.Flags().IntP("interval", "i", 0, "Check interval in minutes (0 uses CHECK_INTERVAL_MINUTES)")

	return cmd
}

func runAdd(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	selector, _ := cmd.Flags().GetString("selector")
	interval, _ := cmd.Flags().GetInt("interval")

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	site, err := a.registry.Add(commandContext(cmd), registry.AddRequest{
		URL:             args[0],
		Name:            name,
		Selector:        selector,
		IntervalMinutes: interval,
	})
	if errors.Is(err, registry.ErrDuplicateSite) {
		return fmt.Errorf("%s is already being watched", args[0])
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Added #%d %s\n", site.ID, site.URL)
	return nil
}

// NewRemoveCmd creates the remove command.
func NewRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <url>",
		Short: "Stop watching a page and delete its snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  runRemove,
	}
}

func runRemove(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	removed, err := a.registry.Remove(commandContext(cmd), args[0])
	if err != nil {
		return err
	}
	if !removed {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is not being watched\n", args[0])
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
	return nil
}

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List watched pages",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
}

func runList(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	sites, err := a.registry.List(commandContext(cmd))
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), notify.FormatSiteList(sites, a.cfg.CheckIntervalMinutes))
	return nil
}
