package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/stockroom/pkg/audit"
	"github.com/platinummonkey/stockroom/pkg/session"
	"github.com/platinummonkey/stockroom/pkg/users"
)

// App carries the stores the operator commands work against. Sessions may be
// nil when the deployment keeps sessions in memory.
type App struct {
	Directory users.Directory
	Audit     audit.Logger
	Sessions  session.Store
	Logger    *logrus.Logger
	Out       io.Writer
	Now       func() time.Time
}

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// NewRootCommand creates the root command
func NewRootCommand(app *App) *Command {
	if app.Now == nil {
		app.Now = time.Now
	}
	if app.Logger == nil {
		app.Logger = logrus.New()
	}

	root := &Command{
		Name:        "stockroom-admin",
		Description: "Stockroom operator tooling",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("stockroom-admin", flag.ContinueOnError),
	}

	// Add subcommands
	for _, cmd := range []*Command{
		newGrantRoleCommand(app),
		newListUsersCommand(app),
		newAuditRecentCommand(app),
		newPurgeSessionsCommand(app),
	} {
		cmd.Flags.SetOutput(app.Out)
		root.Subcommands[cmd.Name] = cmd
	}
	root.Flags.SetOutput(app.Out)

	return root
}

// Execute runs the subcommand named by args[0]
func (c *Command) Execute(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return c.usage(out)
	}

	// Check for help flag
	if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		return c.usage(out)
	}

	// Check for subcommand
	if subcmd, ok := c.Subcommands[args[0]]; ok {
		subcmd.resetFlags()
		return subcmd.Run(ctx, args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// resetFlags restores every flag to its default so values from an earlier run
// do not leak into the next one
func (c *Command) resetFlags() {
	if c.Flags == nil {
		return
	}
	c.Flags.VisitAll(func(f *flag.Flag) {
		_ = f.Value.Set(f.DefValue)
	})
}

// usage prints the command usage
func (c *Command) usage(out io.Writer) error {
	fmt.Fprintf(out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(out, "Commands:\n")
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}
