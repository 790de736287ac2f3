// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

/*
Package biotime is the HTTP client for the BioTime time-clock service.

It owns three concerns:

  - Credentials: EnsureValidToken probes the terminals endpoint with the
    current JWT and exchanges username/password for a new one on 401.
  - Transactions: three pagination strategies over /iclock/api/transactions/
    (FetchWindow, FetchByID, FetchPageCursor).
  - Terminals: ListTerminals and GetTerminal for device discovery.

# Resilience

Every request passes through a token-bucket rate limiter (golang.org/x/time/rate)
and a circuit breaker (sony/gobreaker). Only transient failures (network
errors, timeouts, 5xx, 429) count against the breaker. Transient page
failures are retried up to Config.FetchRetries times with exponential backoff
before ErrRemoteUnavailable is returned.

A 401 on any page triggers exactly one token refresh and one retry of that
page. The refreshed token is returned in FetchResult.Token so the caller can
persist it.

# Errors

All failures are *APIError values whose Kind is one of ErrAuthentication,
ErrRemoteUnavailable, ErrMalformedResponse or ErrFatal. Use errors.Is:

	if errors.Is(err, biotime.ErrAuthentication) {
	    // credentials are wrong, do not retry
	}

Fetch methods return the records gathered before a failure together with
the error, so nothing fetched is silently dropped.
*/
package biotime
