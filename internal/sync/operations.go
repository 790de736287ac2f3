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

	"github.com/google/uuid"

	"github.com/tomtom215/clocksync/internal/biotime"
	"github.com/tomtom215/clocksync/internal/database"
	"github.com/tomtom215/clocksync/internal/logging"
	"github.com/tomtom215/clocksync/internal/models"
)

const defaultReconcileBatch = 500

// withConnector runs fn as a cycle of its own: connector loaded, lock held,
// token validated under the retry policy, refreshed token persisted after.
func (m *Manager) withConnector(ctx context.Context, what string, fn func(ctx context.Context, c *cycle) error) error {
	conn, err := m.loadConnector(ctx)
	if err != nil {
		return err
	}
	release, err := m.locks.Acquire(ctx, conn.ID)
	if err != nil {
		return err
	}
	defer release()

	out := &models.CycleOutcome{CycleID: uuid.NewString(), ConnectorID: conn.ID, Trigger: models.TriggerManual, StartedAt: m.now()}
	ctx = logging.ContextWithCorrelationID(ctx, out.CycleID)
	c := m.newCycle(conn, out)
	defer c.persistToken(ctx)
	defer m.setState(models.StateIdle)

	return m.retry.Run(ctx, what, func(int) error {
		if err := c.acquireToken(ctx); err != nil {
			return err
		}
		return fn(ctx, c)
	})
}

// DiscoverDevices lists the server's terminals and upserts them into the
// device table.
func (m *Manager) DiscoverDevices(ctx context.Context) (*models.DiscoveryResult, error) {
	var res *models.DiscoveryResult
	err := m.withConnector(ctx, "device discovery", func(ctx context.Context, c *cycle) error {
		var err error
		res, err = c.discover(ctx)
		return err
	})
	return res, err
}

func (c *cycle) discover(ctx context.Context) (*models.DiscoveryResult, error) {
	c.setState(models.StateFetching)
	terminals, tok, err := c.client.ListTerminals(ctx, c.token.Token)
	c.absorbToken(tok)
	if err != nil {
		return nil, fmt.Errorf("list terminals: %w", err)
	}

	now := c.m.now()
	res := &models.DiscoveryResult{Discovered: len(terminals), Devices: make([]models.Device, 0, len(terminals))}
	c.setState(models.StatePersisting)
	for i := range terminals {
		d := terminals[i].ToDevice(c.client.Location(), now)
		created, err := c.m.store.UpsertDevice(ctx, &d)
		if err != nil {
			return res, fmt.Errorf("%w: upsert device %s: %w", ErrPersistence, d.Alias, err)
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
		res.Devices = append(res.Devices, d)
	}

	logging.Ctx(ctx).Info().
		Int("discovered", res.Discovered).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Msg("Terminal discovery complete")
	return res, nil
}

// ReconcileOrphans re-resolves stored orphans against the employee
// directory. Orphans that now resolve move to the employee check-ins.
func (m *Manager) ReconcileOrphans(ctx context.Context, batch int) (*models.ReconcileResult, error) {
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	m.identity.Purge()

	res := &models.ReconcileResult{}
	offset := 0
	for {
		orphans, err := m.store.ListOrphans(ctx, batch, offset)
		if err != nil {
			return res, fmt.Errorf("%w: list orphans: %w", ErrPersistence, err)
		}
		for i := range orphans {
			o := &orphans[i]
			res.Examined++

			id, name, found, err := m.identity.FindInternalID(ctx, o.EmployeeCode)
			if err != nil {
				res.Failed++
				offset++
				logging.Ctx(ctx).Warn().Err(err).Int64("orphan_id", o.ID).Msg("Identity lookup failed during reconcile")
				continue
			}
			if !found {
				res.Skipped++
				offset++
				continue
			}
			if name == "" {
				name = o.EmployeeName
			}

			inserted, err := m.store.MoveOrphanToResolved(ctx, o.ID, id, name)
			if errors.Is(err, database.ErrOrphanNotFound) {
				// Removed since it was listed; the page already shifted.
				logging.Ctx(ctx).Debug().Int64("orphan_id", o.ID).Msg("Orphan check-in vanished during reconcile")
				continue
			}
			if err != nil {
				res.Failed++
				offset++
				logging.Ctx(ctx).Warn().Err(err).Int64("orphan_id", o.ID).Msg("Failed to move orphan check-in")
				continue
			}
			res.Resolved++
			if inserted {
				m.publishReconciled(ctx, o, id, name)
			}
		}
		if len(orphans) < batch {
			break
		}
	}

	logging.Ctx(ctx).Info().
		Int("examined", res.Examined).
		Int("resolved", res.Resolved).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("Orphan reconcile complete")
	return res, nil
}

func (m *Manager) publishReconciled(ctx context.Context, o *models.StoredOrphan, id, name string) {
	if m.publisher == nil {
		return
	}
	rec := models.ClassifiedRecord{Resolved: &models.ResolvedCheckin{
		EmployeeID:   id,
		EmployeeName: name,
		Direction:    o.Direction,
		Time:         o.Time,
		DeviceLabel:  o.DeviceLabel,
		RemoteID:     o.RemoteID,
	}}
	ev := models.NewCheckinEvent(rec, "reconcile", "")
	ev.PublishedAt = time.Now().UTC()
	if err := m.publisher.PublishCheckin(ctx, &ev); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("event_id", ev.EventID).Msg("Failed to publish reconciled check-in")
	}
}

// RepairDeviceLabels re-fetches a window and rewrites the device label on
// stored check-ins whose terminal was renamed or moved since they were
// synced.
func (m *Manager) RepairDeviceLabels(ctx context.Context, req models.RepairRequest) (*models.RepairResult, error) {
	if !req.End.After(req.Start) {
		return nil, fmt.Errorf("%w: repair requires start before end", ErrConfiguration)
	}

	res := &models.RepairResult{}
	err := m.withConnector(ctx, "device label repair", func(ctx context.Context, c *cycle) error {
		c.setState(models.StateFetching)
		fr, err := c.client.FetchWindow(ctx, c.token.Token, biotime.WindowQuery{
			Start:         req.Start,
			End:           req.End,
			TerminalAlias: req.DeviceAlias,
		})
		records := c.absorbFetch(fr)
		if err != nil {
			return err
		}

		*res = models.RepairResult{}
		c.setState(models.StatePersisting)
		for i := range records {
			raw := &records[i]
			res.Examined++
			rec, err := c.classifier.Classify(ctx, raw)
			if errors.Is(err, ErrUnparseableTime) {
				res.Failed++
				continue
			}
			if err != nil {
				return err
			}
			changed, err := m.store.UpdateCheckinDeviceLabel(ctx, rec.Key(), raw.DeviceLabel())
			if err != nil {
				return fmt.Errorf("%w: relabel %s: %w", ErrPersistence, rec.Key(), err)
			}
			if changed {
				res.Relabeled++
			} else {
				res.Unchanged++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Ctx(ctx).Info().
		Int("examined", res.Examined).
		Int("relabeled", res.Relabeled).
		Int("unchanged", res.Unchanged).
		Msg("Device label repair complete")
	return res, nil
}

// ImportEmployees upserts directory entries and drops cached lookups so
// the next cycle resolves against the new directory.
func (m *Manager) ImportEmployees(ctx context.Context, employees []models.Employee) (int, error) {
	n, err := m.store.UpsertEmployees(ctx, employees)
	if err != nil {
		return n, fmt.Errorf("%w: import employees: %w", ErrPersistence, err)
	}
	m.identity.Purge()
	logging.Ctx(ctx).Info().Int("employees", n).Msg("Employee directory updated")
	return n, nil
}
