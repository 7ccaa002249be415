package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/Waypoint/internal/backup"
	"github.com/dharsanguruparan/Waypoint/internal/queue"
)

var errNoQueue = errors.New("no queue configured; set WAYPOINT_REDIS_ADDR")

func newBackupCmd(c *cli) *cobra.Command {
	var async bool
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Upload the collection and its photos to the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if async {
				if c.app.Queue == nil {
					return errNoQueue
				}
				id, err := c.app.Queue.EnqueueUpload(ctx)
				if err != nil {
					return err
				}
				success(out, "queued backup task %s\n", id)
				return nil
			}
			files, err := c.app.Backup.Upload(ctx)
			if err != nil {
				return err
			}
			success(out, "backup complete\n")
			printInfo(out, backup.Describe(files))
			return nil
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "Hand the upload to the worker instead of running it here")
	return cmd
}

func newRestoreCmd(c *cli) *cobra.Command {
	var async bool
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace the local collection with the remote backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if async {
				if c.app.Queue == nil {
					return errNoQueue
				}
				id, err := c.app.Queue.EnqueueDownload(ctx, queue.DownloadPayload{})
				if err != nil {
					return err
				}
				success(out, "queued restore task %s\n", id)
				return nil
			}
			files, err := c.app.Backup.List(ctx)
			if err != nil {
				return err
			}
			snap, err := c.app.Backup.Restore(ctx, files)
			if err != nil {
				return err
			}
			success(out, "restored %d records\n", len(snap.Collection.Records))
			return nil
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "Hand the restore to the worker instead of running it here")
	return cmd
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Describe the remote backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := c.app.Backup.List(cmd.Context())
			if err != nil {
				return err
			}
			printInfo(cmd.OutOrStdout(), backup.Describe(files))
			return nil
		},
	}
}
