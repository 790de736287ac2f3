// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/clocksync/internal/models"
)

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "clocksync",
		Short:         "Synchronize BioTime punch records into a local attendance store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: first of the standard paths)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run scheduled sync and the trigger API",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd.Context(), configPath, func(ctx context.Context, a *app) error {
					return a.serve(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "sync",
			Short: "Run one sync cycle",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd.Context(), configPath, func(ctx context.Context, a *app) error {
					out, err := a.manager.RunCycle(ctx, models.Trigger{Kind: models.TriggerManual})
					if perr := printJSON(cmd.OutOrStdout(), out); perr != nil {
						return perr
					}
					return err
				})
			},
		},
		newBackfillCommand(&configPath),
		&cobra.Command{
			Use:   "discover",
			Short: "Import the terminal list from BioTime",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd.Context(), configPath, func(ctx context.Context, a *app) error {
					res, err := a.manager.DiscoverDevices(ctx)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), res)
				})
			},
		},
		newReconcileCommand(&configPath),
	)
	return root
}

func newBackfillCommand(configPath *string) *cobra.Command {
	var (
		device     string
		start, end string
		reset      bool
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Sync an explicit window on one device without moving the checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			trigger, err := backfillTrigger(device, start, end, reset)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), *configPath, func(ctx context.Context, a *app) error {
				out, err := a.manager.RunCycle(ctx, trigger)
				if perr := printJSON(cmd.OutOrStdout(), out); perr != nil {
					return perr
				}
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&device, "device", "d", "", "device alias")
	cmd.Flags().StringVar(&start, "start", "", "window start (RFC 3339)")
	cmd.Flags().StringVar(&end, "end", "", "window end (RFC 3339)")
	cmd.Flags().BoolVar(&reset, "reset", false, "reset the connector checkpoint first")
	_ = cmd.MarkFlagRequired("device")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newReconcileCommand(configPath *string) *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Resolve stored orphans against the employee directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if batch < 1 {
				return fmt.Errorf("--batch must be positive, got %d", batch)
			}
			return withApp(cmd.Context(), *configPath, func(ctx context.Context, a *app) error {
				res, err := a.manager.ReconcileOrphans(ctx, batch)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 500, "orphans examined per pass")
	return cmd
}

// backfillTrigger parses the backfill flags.
func backfillTrigger(device, start, end string, reset bool) (models.Trigger, error) {
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return models.Trigger{}, fmt.Errorf("invalid --start: %w", err)
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return models.Trigger{}, fmt.Errorf("invalid --end: %w", err)
	}
	t := models.Trigger{
		Kind:            models.TriggerBackfill,
		Start:           s,
		End:             e,
		DeviceAlias:     device,
		ResetCheckpoint: reset,
	}
	return t, t.Validate()
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
