// Command waypoint manages the local place collection and its remote backup.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/Waypoint/internal/app"
	"github.com/dharsanguruparan/Waypoint/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "waypoint: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out, logOut io.Writer) error {
	c := &cli{logOut: logOut}
	defer c.close()
	cmd := newRootCommand(c)
	cmd.SetArgs(args)
	cmd.SetOut(out)
	return cmd.ExecuteContext(ctx)
}

// cli carries the application opened for the running command.
type cli struct {
	app    *app.App
	logOut io.Writer
}

func newRootCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "waypoint",
		Short: "Waypoint place collection CLI",
		Long: `Waypoint keeps a collection of visited places with their photos on this device
and backs the whole collection up to, or restores it from, a remote store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.app, err = app.New(cmd.Context(), cfg, c.logOut)
			return err
		},
	}
	cmd.AddCommand(
		newRecordCmd(c),
		newOptionsCmd(c),
		newBackupCmd(c),
		newRestoreCmd(c),
		newStatusCmd(c),
	)
	return cmd
}

func (c *cli) close() {
	if c.app != nil {
		_ = c.app.Close()
		c.app = nil
	}
}
