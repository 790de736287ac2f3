// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

/*
Package sync moves attendance punches from a BioTime server into the local
check-in store.

A cycle runs through these stages:

 1. Acquire token: validate or refresh the connector's bearer token.
 2. Fetch: walk the transactions endpoint with the connector's cursor
    strategy (date window per device, numeric id, or page cursor).
 3. Classify: map each raw punch to a resolved check-in (known employee)
    or an orphan (unknown device code), with a binary IN/OUT direction.
 4. Persist: insert what is not already stored, keyed by
    (identity, time, direction); failures go to the dead-letter table.
 5. Commit: advance the checkpoint only after persistence succeeded.

Key Components:

  - Manager: runs cycles on a schedule or on demand, one at a time per
    connector, and keeps the last outcome for the status API
  - Classifier: pure mapping from raw transaction to classified record
  - CachedIdentity: LRU cache in front of the employee directory
  - Sink: dedup and insert, with event publishing on success
  - RetryPolicy: exponential backoff for transient remote failures
  - LockRegistry: per-connector cycle lock

Recovery:

Partial results are persisted and checkpointed before an error is returned,
so a retry (or the next scheduled cycle) resumes where the last one stopped.
Re-fetching records that were already stored is harmless; the sink skips
them.

Thread Safety:

Manager methods are safe for concurrent use. Cycles for the same connector
are serialized by the lock registry.
*/
package sync
