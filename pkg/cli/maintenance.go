package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/platinummonkey/stockroom/pkg/audit"
)

func newAuditRecentCommand(app *App) *Command {
	cmd := &Command{
		Name:        "audit-recent",
		Description: "Show the most recent audit entries",
		Flags:       flag.NewFlagSet("audit-recent", flag.ContinueOnError),
	}

	limit := cmd.Flags.Int("limit", audit.DefaultRecentLimit, "Number of entries to show")
	asJSON := cmd.Flags.Bool("json", false, "Print JSON instead of a table")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *limit <= 0 {
			return fmt.Errorf("-limit must be positive")
		}

		entries, err := app.Audit.Recent(ctx, *limit)
		if err != nil {
			return fmt.Errorf("failed to read audit log: %w", err)
		}

		if *asJSON {
			enc := json.NewEncoder(app.Out)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}

		tw := tabwriter.NewWriter(app.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tACTOR\tACTION\tMETHOD\tENDPOINT")
		for _, e := range entries {
			actor := "-"
			if e.UserID != nil {
				actor = *e.UserID
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				e.Timestamp.Format(time.RFC3339), actor, e.Action, e.Method, e.Endpoint)
		}
		return tw.Flush()
	}

	return cmd
}

func newPurgeSessionsCommand(app *App) *Command {
	cmd := &Command{
		Name:        "purge-sessions",
		Description: "Delete expired sessions now",
		Flags:       flag.NewFlagSet("purge-sessions", flag.ContinueOnError),
	}

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if app.Sessions == nil {
			return fmt.Errorf("no persistent session store is configured")
		}

		n, err := app.Sessions.DeleteExpired(ctx, app.Now())
		if err != nil {
			return fmt.Errorf("failed to purge sessions: %w", err)
		}
		app.Logger.WithField("purged", n).Info("Expired sessions purged")
		fmt.Fprintf(app.Out, "purged %d expired sessions\n", n)
		return nil
	}

	return cmd
}
