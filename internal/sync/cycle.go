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

	"github.com/tomtom215/clocksync/internal/biotime"
	"github.com/tomtom215/clocksync/internal/logging"
	"github.com/tomtom215/clocksync/internal/metrics"
	"github.com/tomtom215/clocksync/internal/models"
)

// cycle holds the working state of one run against one connector.
type cycle struct {
	m          *Manager
	conn       models.ConnectorConfig
	client     RemoteClient
	classifier *Classifier
	sink       *Sink
	out        *models.CycleOutcome
	token      models.TokenState
	checkpoint models.SyncCheckpoint
	budget     int
}

func (m *Manager) newCycle(conn models.ConnectorConfig, out *models.CycleOutcome) *cycle {
	client := m.clientFor(conn)
	budget := m.cfg.Sync.MaxRecordsPerCycle
	if budget <= 0 {
		budget = 10000
	}
	return &cycle{
		m:          m,
		conn:       conn,
		client:     client,
		classifier: NewClassifier(m.identity, client.Location()),
		sink:       NewSink(m.store, m.publisher, out.CycleID, conn.ID),
		out:        out,
		token:      models.TokenState{Token: conn.BearerToken},
		budget:     budget,
	}
}

func (c *cycle) setState(s models.CycleState) {
	c.out.State = s
	c.m.setState(s)
}

func (c *cycle) acquireToken(ctx context.Context) error {
	c.setState(models.StateAcquiringToken)
	tok, err := c.client.EnsureValidToken(ctx, c.token.Token)
	if err != nil {
		return err
	}
	c.absorbToken(tok)
	return nil
}

// absorbToken records a token handed back by the client. A changed token
// is marked for persistence at the end of the cycle.
func (c *cycle) absorbToken(t models.TokenState) {
	if t.Token == "" || t.Token == c.token.Token {
		return
	}
	c.token = models.TokenState{Token: t.Token, Refreshed: true}
	c.out.TokenRefreshed = true
}

// persistToken writes a refreshed token back to the connector row, once,
// even if the cycle was canceled.
func (c *cycle) persistToken(ctx context.Context) {
	if !c.token.Refreshed || c.token.Token == c.conn.BearerToken {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := c.m.store.SaveConnectorToken(ctx, c.conn.ID, c.token.Token); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("connector", c.conn.ID).Msg("Failed to persist refreshed token")
		return
	}
	c.conn.BearerToken = c.token.Token
	logging.Ctx(ctx).Info().Str("connector", c.conn.ID).Msg("Persisted refreshed token")
}

func (c *cycle) budgetLeft() int {
	return c.budget - c.out.Fetched
}

// absorbFetch folds a fetch result's side channels into the cycle and
// returns its records. res may be nil.
func (c *cycle) absorbFetch(res *biotime.FetchResult) []models.RawTransaction {
	if res == nil {
		return nil
	}
	c.absorbToken(res.Token)
	c.out.MalformedPages += res.MalformedPages
	return res.Records
}

// process classifies and persists raw records. Records with a bad punch
// time are dead-lettered. An error means the store failed and nothing
// about this batch may be committed.
func (c *cycle) process(ctx context.Context, raws []models.RawTransaction) error {
	c.out.Fetched += len(raws)
	c.setState(models.StateClassifying)

	records := make([]models.ClassifiedRecord, 0, len(raws))
	var failed, resolved, orphaned int
	for i := range raws {
		rec, err := c.classifier.Classify(ctx, &raws[i])
		if errors.Is(err, ErrUnparseableTime) {
			if err := c.sink.RecordFailure(ctx, &raws[i], err); err != nil {
				return err
			}
			failed++
			continue
		}
		if err != nil {
			return err
		}
		if rec.IsOrphan() {
			orphaned++
		} else {
			resolved++
		}
		records = append(records, rec)
	}
	c.out.Resolved += resolved
	c.out.Orphaned += orphaned
	c.out.Failed += failed
	metrics.RecordPipeline(len(raws), resolved, orphaned)

	c.setState(models.StatePersisting)
	res, err := c.sink.Persist(ctx, records)
	c.out.AddSink(res)
	return err
}

func (c *cycle) commit(ctx context.Context, cp models.SyncCheckpoint) error {
	c.setState(models.StateCommittingCheckpoint)
	cp.ConnectorID = c.conn.ID
	cp.Strategy = c.conn.Strategy
	if err := c.m.checkpoints.Commit(ctx, c.conn.ID, cp); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	c.checkpoint = cp
	c.out.Checkpoint = cp
	return nil
}

func (c *cycle) run(ctx context.Context, trigger models.Trigger) error {
	if trigger.Kind == models.TriggerBackfill {
		return c.runBackfill(ctx, trigger)
	}
	switch c.conn.Strategy {
	case models.StrategyDateWindow:
		return c.runDateWindow(ctx)
	case models.StrategyNumericID:
		return c.runNumericID(ctx)
	case models.StrategyPageCursor:
		return c.runPageCursor(ctx)
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrConfiguration, c.conn.Strategy)
	}
}

// runDateWindow syncs every registered device in alias order. With no
// devices registered, terminals are discovered first.
func (c *cycle) runDateWindow(ctx context.Context) error {
	devices, err := c.m.store.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("%w: list devices: %w", ErrPersistence, err)
	}
	if len(devices) == 0 {
		logging.Ctx(ctx).Warn().Msg("No devices registered, running terminal discovery")
		res, err := c.discover(ctx)
		if err != nil {
			return err
		}
		devices = res.Devices
	}

	for i := range devices {
		if c.budgetLeft() <= 0 {
			logging.Ctx(ctx).Info().Int("max_records", c.budget).Msg("Record budget reached, remaining devices wait for the next cycle")
			return nil
		}
		if err := c.syncDevice(ctx, &devices[i]); err != nil {
			return fmt.Errorf("device %s: %w", devices[i].Alias, err)
		}
	}
	return nil
}

// windowStart picks where a device's next window begins: its committed
// window end, then its newest stored check-in, then its last activity,
// then the default lookback.
func (c *cycle) windowStart(ctx context.Context, d *models.Device) (time.Time, string, error) {
	if t, ok := c.checkpoint.DeviceWindow(d.Alias); ok {
		return t, "checkpoint", nil
	}
	t, ok, err := c.m.store.LastCheckinTime(ctx, d.Alias)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: last check-in for %s: %w", ErrPersistence, d.Alias, err)
	}
	if ok {
		return t, "last_checkin", nil
	}
	if d.LastActivity != nil && !d.LastActivity.IsZero() {
		return *d.LastActivity, "last_activity", nil
	}
	lookback := c.m.cfg.Sync.DefaultLookback
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return c.m.now().Add(-lookback), "default_lookback", nil
}

func (c *cycle) windowBounds() (initial, maximum time.Duration) {
	initial, maximum = c.m.cfg.Sync.InitialWindow, c.m.cfg.Sync.MaxWindow
	if initial <= 0 {
		initial = 2 * time.Hour
	}
	if maximum < initial {
		maximum = 24 * time.Hour
		if maximum < initial {
			maximum = initial
		}
	}
	return initial, maximum
}

// syncDevice walks forward from the device's start in windows, doubling an
// empty window up to the maximum width before moving past it. A window that
// ends at "now" commits only up to the newest punch seen, so punches
// uploaded late are picked up next time.
func (c *cycle) syncDevice(ctx context.Context, d *models.Device) error {
	start, source, err := c.windowStart(ctx, d)
	if err != nil {
		return err
	}
	initial, maximum := c.windowBounds()
	log := logging.Ctx(ctx).With().Str("device", d.Alias).Logger()
	log.Debug().Time("start", start).Str("source", source).Msg("Device window start")

	width := initial
	synced := 0
	for c.budgetLeft() > 0 {
		now := c.m.now()
		if !start.Before(now) {
			break
		}
		end, clamped := start.Add(width), false
		if !end.Before(now) {
			end, clamped = now, true
		}

		c.setState(models.StateFetching)
		res, fetchErr := c.client.FetchWindow(ctx, c.token.Token, biotime.WindowQuery{
			Start:         start,
			End:           end,
			TerminalAlias: d.Alias,
		})
		records := c.absorbFetch(res)
		if len(records) > 0 {
			if err := c.process(ctx, records); err != nil {
				return err
			}
			synced += len(records)
		}
		if fetchErr != nil {
			return fetchErr
		}

		if len(records) == 0 && width < maximum && !clamped {
			width = min(width*2, maximum)
			log.Debug().Dur("window", width).Msg("No check-ins found, widening window")
			continue
		}

		next := end
		if clamped {
			next = c.latestPunch(records, start)
		}
		if next.After(start) {
			if err := c.commit(ctx, c.checkpoint.WithDeviceWindow(d.Alias, next)); err != nil {
				return err
			}
		}
		if clamped {
			break
		}
		start = next
		if len(records) > 0 {
			width = initial
		}
	}

	if synced > 0 {
		if err := c.m.store.UpdateDeviceSyncRequest(ctx, d.Alias, c.m.now()); err != nil {
			log.Warn().Err(err).Msg("Failed to update device sync timestamp")
		}
	}
	log.Info().Int("records", synced).Msg("Device synced")
	return nil
}

// latestPunch returns the newest parseable punch time in records, or floor
// if none is later.
func (c *cycle) latestPunch(records []models.RawTransaction, floor time.Time) time.Time {
	latest := floor
	for i := range records {
		t, err := biotime.ParseTime(records[i].PunchTime, c.client.Location())
		if err == nil && t.After(latest) {
			latest = t
		}
	}
	return latest
}

// runBackfill fetches one explicit window for one device. It never moves
// the checkpoint.
func (c *cycle) runBackfill(ctx context.Context, t models.Trigger) error {
	c.setState(models.StateFetching)
	res, err := c.client.FetchWindow(ctx, c.token.Token, biotime.WindowQuery{
		Start:         t.Start,
		End:           t.End,
		TerminalAlias: t.DeviceAlias,
	})
	if records := c.absorbFetch(res); len(records) > 0 {
		if perr := c.process(ctx, records); perr != nil {
			return perr
		}
	}
	return err
}

// runNumericID fetches by id until nothing new appears, the server reports
// no more pages, or the record budget is spent. Each batch is persisted and
// committed before the next fetch.
func (c *cycle) runNumericID(ctx context.Context) error {
	for c.budgetLeft() > 0 {
		c.setState(models.StateFetching)
		res, err := c.client.FetchByID(ctx, c.token.Token, c.checkpoint.LastSeenID)
		records := c.absorbFetch(res)
		if len(records) > 0 {
			if perr := c.process(ctx, records); perr != nil {
				return perr
			}
			cp := c.checkpoint.Clone()
			cp.LastSeenID = max(cp.LastSeenID, maxID(records))
			if res.Next.Page > 0 {
				cp.LastPage = res.Next.Page
			}
			if cerr := c.commit(ctx, cp); cerr != nil {
				return cerr
			}
		}
		if err != nil {
			return err
		}
		if res == nil || !res.HasMore || len(records) == 0 {
			return nil
		}
	}
	logging.Ctx(ctx).Info().Int("max_records", c.budget).Msg("Record budget reached")
	return nil
}

// runPageCursor makes one capped page-cursor fetch, then persists and
// commits what it returned.
func (c *cycle) runPageCursor(ctx context.Context) error {
	cursor := biotime.Cursor{Page: max(c.checkpoint.LastPage, 1), LastID: c.checkpoint.LastSeenID}

	c.setState(models.StateFetching)
	res, err := c.client.FetchPageCursor(ctx, c.token.Token, cursor, c.budgetLeft())
	records := c.absorbFetch(res)
	if len(records) > 0 {
		if perr := c.process(ctx, records); perr != nil {
			return perr
		}
		cp := c.checkpoint.Clone()
		cp.LastSeenID = max(cp.LastSeenID, res.Next.LastID, maxID(records))
		if res.Next.Page > 0 {
			cp.LastPage = res.Next.Page
		}
		if cerr := c.commit(ctx, cp); cerr != nil {
			return cerr
		}
	}
	if err == nil && res != nil && res.HasMore {
		logging.Ctx(ctx).Info().Int("page", res.Next.Page).Int64("last_id", res.Next.LastID).Msg("More transactions pending, continuing next cycle")
	}
	return err
}

func maxID(records []models.RawTransaction) int64 {
	var m int64
	for i := range records {
		if records[i].ID > m {
			m = records[i].ID
		}
	}
	return m
}
