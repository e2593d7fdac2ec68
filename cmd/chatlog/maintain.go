package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/johns/chatlog/internal/catalog"
	"github.com/johns/chatlog/internal/check"
	"github.com/johns/chatlog/internal/config"
	"github.com/johns/chatlog/internal/manager"
)

func (d *deps) manager() *manager.Manager {
	return &manager.Manager{
		Dir:         d.sessionDir,
		ArchiveDir:  d.archiveDir,
		ProjectHash: d.projectHash,
		Cache:       d.cache,
		Log:         d.log,
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session>",
		Short: "Permanently delete a session log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps()
			if err != nil {
				return err
			}
			defer d.close()

			if err := d.manager().Delete(args[0]); err != nil {
				return err
			}
			fmt.Println("deleted", args[0])
			return nil
		},
	}
}

func newArchiveCmd() *cobra.Command {
	var olderThanDays int

	cmd := &cobra.Command{
		Use:   "archive [session]",
		Short: "Compress a session into the archive",
		Long:  "Compress a session into the archive. With --older-than, archives every unlocked session idle for at least that many days instead.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps()
			if err != nil {
				return err
			}
			defer d.close()

			if olderThanDays > 0 {
				count, err := d.manager().ArchiveOlderThan(time.Duration(olderThanDays) * 24 * time.Hour)
				if err != nil {
					return err
				}
				fmt.Printf("archived %d session(s)\n", count)
				return nil
			}

			if len(args) != 1 {
				return fmt.Errorf("a session reference or --older-than is required")
			}
			path, err := d.manager().ArchiveSession(args[0])
			if err != nil {
				return err
			}
			fmt.Println("archived to", path)
			return nil
		},
	}

	cmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Archive all sessions idle for at least this many days")
	return cmd
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <session-id>",
		Short: "Restore an archived session into the live store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps()
			if err != nil {
				return err
			}
			defer d.close()

			path, err := d.manager().Restore(args[0])
			if err != nil {
				return err
			}
			fmt.Println("restored to", path)
			return nil
		},
	}
}

func newCleanupLocksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-locks",
		Short: "Remove stale lock files left by dead processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps()
			if err != nil {
				return err
			}
			defer d.close()

			removed, err := d.manager().CleanupLocks()
			if err != nil {
				return err
			}
			fmt.Printf("removed %d stale lock(s)\n", removed)
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the session directory and report changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps()
			if err != nil {
				return err
			}
			defer d.close()

			if err := os.MkdirAll(d.sessionDir, 0o755); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			changes, err := catalog.Watch(ctx, d.sessionDir, d.log)
			if err != nil {
				return err
			}
			for change := range changes {
				fmt.Printf("%s  %s\n", change.Op, change.SessionID)
			}
			return nil
		},
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the store, locks, cache, and archive are healthy",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps()
			if err != nil {
				return err
			}
			defer d.close()

			report := check.Run(d.cfg, d.projectHash)
			fmt.Print(report.Format())
			if report.HasFailures() {
				os.Exit(1)
			}
			return nil
		},
	}
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file if none exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			path, err := config.WriteDefault(cfg.StorePath)
			if err != nil {
				return err
			}
			fmt.Println("config:", path)
			return nil
		},
	}
}
