// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/clocksync/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		logging.Error().Err(err).Msg("clocksync failed")
		stop()
		os.Exit(1)
	}
}
