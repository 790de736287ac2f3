// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/tomtom215/clocksync/internal/biotime"
	"github.com/tomtom215/clocksync/internal/logging"
	"github.com/tomtom215/clocksync/internal/metrics"
)

// RetryPolicy retries transient remote failures with exponential backoff.
// Every other error ends the retry loop immediately.
type RetryPolicy struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultRetryPolicy is 3 attempts, 1s initial delay, 30s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, InitialDelay: time.Second, MaxDelay: 30 * time.Second}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.Attempts < 1 {
		p.Attempts = d.Attempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = d.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	return p
}

// retryable reports whether err is worth another attempt. Credential
// failures never are, whatever caused them.
func retryable(err error) bool {
	return biotime.IsTransient(err) && !biotime.IsAuthentication(err)
}

// Run calls fn until it succeeds, returns a non-transient error, the attempt
// budget is spent, or ctx is done. fn receives the 1-based attempt number.
func (p RetryPolicy) Run(ctx context.Context, what string, fn func(attempt int) error) error {
	p = p.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.1

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := fn(attempt)
		if err != nil && !retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.Attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			metrics.SyncRetries.Inc()
			logging.Ctx(ctx).Warn().Err(err).
				Str("operation", what).
				Int("attempt", attempt).
				Int("max_attempts", p.Attempts).
				Dur("delay", wait).
				Msg("Retry attempt")
			if p.OnRetry != nil {
				p.OnRetry(attempt, err, wait)
			}
		}),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	if err != nil && retryable(err) && attempt >= p.Attempts {
		return fmt.Errorf("%s: gave up after %d attempts: %w", what, attempt, err)
	}
	return err
}
