// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

/*
manager.go - Sync Manager Lifecycle and Orchestration

This file contains the sync manager struct, initialization, lifecycle
methods, and the cycle driver.

Manager Components:
  - Store: connectors, devices, check-ins, employee directory (DuckDB)
  - CheckpointStore: committed cursors per connector (BadgerDB)
  - ClientFactory: builds a BioTime client for the enabled connector
  - EventPublisher: optional sink for check-in events

Lifecycle Methods:
  - NewManager(): Initialize manager with configuration and dependencies
  - Start(): Begin the scheduled sync loop
  - Stop(): Cancel the running cycle and wait for the loop to exit
  - RunCycle(): Run one cycle now (scheduled, manual, or backfill)
  - LastOutcome(): Result of the most recent cycle

Thread Safety:
  - LockRegistry: at most one cycle per connector
  - mu: protects running, state, and outcome fields
  - clientMu: protects the cached remote client
*/

//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/clocksync/internal/biotime"
	"github.com/tomtom215/clocksync/internal/config"
	"github.com/tomtom215/clocksync/internal/database"
	"github.com/tomtom215/clocksync/internal/logging"
	"github.com/tomtom215/clocksync/internal/metrics"
	"github.com/tomtom215/clocksync/internal/models"
)

// Store is what the manager needs from the local database.
type Store interface {
	CheckinStore
	EmployeeFinder

	GetEnabledConnector(ctx context.Context) (*models.ConnectorConfig, error)
	SaveConnectorToken(ctx context.Context, id, token string) error

	ListDevices(ctx context.Context) ([]models.Device, error)
	UpsertDevice(ctx context.Context, d *models.Device) (bool, error)
	UpdateDeviceSyncRequest(ctx context.Context, alias string, at time.Time) error
	LastCheckinTime(ctx context.Context, alias string) (time.Time, bool, error)

	ListOrphans(ctx context.Context, limit, offset int) ([]models.StoredOrphan, error)
	MoveOrphanToResolved(ctx context.Context, orphanID int64, employeeID, employeeName string) (bool, error)
	UpdateCheckinDeviceLabel(ctx context.Context, key models.NaturalKey, label string) (bool, error)
	UpsertEmployees(ctx context.Context, employees []models.Employee) (int, error)
}

// CheckpointStore persists the per-connector cursor.
type CheckpointStore interface {
	Load(ctx context.Context, connectorID string) (models.SyncCheckpoint, error)
	Commit(ctx context.Context, connectorID string, cp models.SyncCheckpoint) error
	Reset(ctx context.Context, connectorID string) error
}

// RemoteClient is the subset of *biotime.Client the manager drives.
type RemoteClient interface {
	EnsureValidToken(ctx context.Context, token string) (models.TokenState, error)
	FetchWindow(ctx context.Context, token string, w biotime.WindowQuery) (*biotime.FetchResult, error)
	FetchByID(ctx context.Context, token string, lastID int64) (*biotime.FetchResult, error)
	FetchPageCursor(ctx context.Context, token string, cursor biotime.Cursor, maxRecords int) (*biotime.FetchResult, error)
	ListTerminals(ctx context.Context, token string) ([]biotime.Terminal, models.TokenState, error)
	Location() *time.Location
}

// ClientFactory builds a remote client for a connector.
type ClientFactory func(conn models.ConnectorConfig) RemoteClient

// NewBioTimeClientFactory returns a factory that builds *biotime.Client
// values from the connector row plus the transport settings in cfg.
func NewBioTimeClientFactory(cfg config.BioTimeConfig, loc *time.Location) ClientFactory {
	return func(conn models.ConnectorConfig) RemoteClient {
		return biotime.NewClient(biotime.Config{
			BaseURL:           conn.BaseURL,
			Username:          conn.Username,
			Password:          conn.Secret,
			PageSize:          conn.PageSize,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             cfg.Burst,
			FetchRetries:      cfg.FetchRetries,
			Location:          loc,
		})
	}
}

// Manager runs sync cycles.
type Manager struct {
	store       Store
	checkpoints CheckpointStore
	publisher   EventPublisher
	newClient   ClientFactory
	identity    *CachedIdentity
	locks       *LockRegistry
	cfg         *config.Config
	retry       RetryPolicy
	now         func() time.Time

	clientMu  sync.Mutex
	client    RemoteClient
	clientKey string

	mu               sync.RWMutex
	running          bool
	state            models.CycleState
	lastOutcome      *models.CycleOutcome
	lastSuccess      time.Time
	stopChan         chan struct{}
	cancel           context.CancelFunc
	wg               sync.WaitGroup
	onCycleCompleted func(out *models.CycleOutcome)
}

// NewManager creates a manager. publisher may be nil.
func NewManager(store Store, checkpoints CheckpointStore, publisher EventPublisher, newClient ClientFactory, cfg *config.Config) *Manager {
	return &Manager{
		store:       store,
		checkpoints: checkpoints,
		publisher:   publisher,
		newClient:   newClient,
		identity:    NewCachedIdentity(store, cfg.Sync.IdentityCacheSize, cfg.Sync.IdentityCacheTTL),
		locks:       NewLockRegistry(),
		cfg:         cfg,
		retry: RetryPolicy{
			Attempts:     cfg.Sync.RetryAttempts,
			InitialDelay: cfg.Sync.RetryInitialDelay,
			MaxDelay:     cfg.Sync.RetryMaxDelay,
		},
		now:      time.Now,
		state:    models.StateIdle,
		stopChan: make(chan struct{}),
	}
}

// SetOnCycleCompleted registers a callback run after every cycle.
func (m *Manager) SetOnCycleCompleted(fn func(out *models.CycleOutcome)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCycleCompleted = fn
}

// Start begins the scheduled loop. It returns immediately.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("sync manager already running")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.stopChan = make(chan struct{})
	stop := m.stopChan
	m.mu.Unlock()

	m.wg.Add(1)
	go m.syncLoop(loopCtx, stop)

	logging.Info().Dur("interval", m.interval()).Bool("sync_on_startup", m.cfg.Sync.SyncOnStartup).Msg("Sync manager started")
	return nil
}

// Stop cancels any running cycle and waits for the loop to exit.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	close(m.stopChan)
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	logging.Info().Msg("Sync manager stopped")
	return nil
}

// Serve runs the scheduled loop until ctx is canceled.
func (m *Manager) Serve(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	if err := m.Stop(); err != nil {
		return err
	}
	return ctx.Err()
}

func (m *Manager) interval() time.Duration {
	if m.cfg.Sync.Interval <= 0 {
		return time.Hour
	}
	return m.cfg.Sync.Interval
}

func (m *Manager) syncLoop(ctx context.Context, stop <-chan struct{}) {
	defer m.wg.Done()

	if m.cfg.Sync.SyncOnStartup {
		m.runScheduled(ctx)
	}

	ticker := time.NewTicker(m.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			m.runScheduled(ctx)
		}
	}
}

func (m *Manager) runScheduled(ctx context.Context) {
	// Errors are already logged and kept in LastOutcome.
	_, _ = m.RunCycle(ctx, models.Trigger{Kind: models.TriggerScheduled})
}

// RunCycle runs one cycle for the enabled connector and returns its outcome.
// The outcome is never nil. A non-nil error means the cycle failed; the
// committed checkpoint still reflects everything that was persisted.
func (m *Manager) RunCycle(ctx context.Context, trigger models.Trigger) (*models.CycleOutcome, error) {
	if trigger.Kind == "" {
		trigger.Kind = models.TriggerManual
	}
	out := &models.CycleOutcome{
		CycleID:   uuid.NewString(),
		Trigger:   trigger.Kind,
		State:     models.StateIdle,
		StartedAt: m.now(),
	}
	ctx = logging.ContextWithCorrelationID(ctx, out.CycleID)

	err := m.runCycle(ctx, trigger, out)
	m.finish(ctx, out, err)
	return out, err
}

func (m *Manager) runCycle(ctx context.Context, trigger models.Trigger, out *models.CycleOutcome) error {
	if err := trigger.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	conn, err := m.loadConnector(ctx)
	if err != nil {
		return err
	}
	out.ConnectorID = conn.ID
	out.Strategy = conn.Strategy
	if trigger.Kind == models.TriggerBackfill {
		out.Strategy = models.StrategyDateWindow
	}

	release, err := m.locks.Acquire(ctx, conn.ID)
	if err != nil {
		return err
	}
	defer release()

	c := m.newCycle(conn, out)
	defer c.persistToken(ctx)

	if trigger.Kind == models.TriggerBackfill && trigger.ResetCheckpoint {
		if err := m.checkpoints.Reset(ctx, conn.ID); err != nil {
			return fmt.Errorf("reset checkpoint: %w", err)
		}
		logging.Ctx(ctx).Warn().Str("connector", conn.ID).Msg("Checkpoint reset before backfill")
	}

	cp, err := m.checkpoints.Load(ctx, conn.ID)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	c.checkpoint = cp
	out.Checkpoint = cp

	logging.Ctx(ctx).Info().
		Str("connector", conn.ID).
		Str("trigger", string(trigger.Kind)).
		Str("strategy", string(out.Strategy)).
		Msg("Sync cycle starting")

	err = m.retry.Run(ctx, "sync cycle", func(attempt int) error {
		out.Attempts = attempt
		if attempt > 1 {
			c.setState(models.StateRetrying)
		}
		if err := c.acquireToken(ctx); err != nil {
			return err
		}
		return c.run(ctx, trigger)
	})
	out.Checkpoint = c.checkpoint
	return err
}

func (m *Manager) finish(ctx context.Context, out *models.CycleOutcome, err error) {
	out.FinishedAt = m.now()
	if err != nil {
		out.State = models.StateFailed
		out.Err = err
		out.Error = err.Error()
	} else {
		out.State = models.StateIdle
	}

	metrics.RecordSyncCycle(string(out.Trigger), string(out.Strategy), out.Duration(), err == nil, errorType(err))

	event := logging.Ctx(ctx).Info()
	if err != nil {
		event = logging.Ctx(ctx).Error().Err(err).Str("error_type", errorType(err))
	}
	event.
		Str("connector", out.ConnectorID).
		Str("trigger", string(out.Trigger)).
		Str("strategy", string(out.Strategy)).
		Int("fetched", out.Fetched).
		Int("resolved", out.Resolved).
		Int("orphaned", out.Orphaned).
		Int("inserted", out.Inserted).
		Int("skipped", out.Skipped).
		Int("failed", out.Failed).
		Int("malformed_pages", out.MalformedPages).
		Int("attempts", out.Attempts).
		Bool("token_refreshed", out.TokenRefreshed).
		Dur("duration", out.Duration()).
		Msg("Sync cycle finished")

	snapshot := *out
	m.mu.Lock()
	m.state = out.State
	m.lastOutcome = &snapshot
	if err == nil {
		m.lastSuccess = out.FinishedAt
	}
	callback := m.onCycleCompleted
	m.mu.Unlock()

	if callback != nil {
		callback(&snapshot)
	}
}

// loadConnector returns the single enabled connector by value.
func (m *Manager) loadConnector(ctx context.Context) (models.ConnectorConfig, error) {
	conn, err := m.store.GetEnabledConnector(ctx)
	switch {
	case errors.Is(err, database.ErrNoEnabledConnector), errors.Is(err, database.ErrMultipleEnabledConnectors):
		return models.ConnectorConfig{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	case err != nil:
		return models.ConnectorConfig{}, fmt.Errorf("%w: load connector: %w", ErrPersistence, err)
	}
	if conn.Strategy == "" {
		conn.Strategy = models.StrategyDateWindow
	}
	return *conn, nil
}

// clientFor returns a client for conn, reusing the previous one while the
// endpoint and credentials are unchanged so breaker state carries over.
func (m *Manager) clientFor(conn models.ConnectorConfig) RemoteClient {
	key := fmt.Sprintf("%s|%s|%s|%s|%d", conn.ID, conn.BaseURL, conn.Username, conn.Secret, conn.PageSize)

	m.clientMu.Lock()
	defer m.clientMu.Unlock()
	if m.client == nil || m.clientKey != key {
		m.client = m.newClient(conn)
		m.clientKey = key
	}
	return m.client
}

func (m *Manager) setState(s models.CycleState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// State returns the state of the current or most recent cycle.
func (m *Manager) State() models.CycleState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// LastOutcome returns a copy of the most recent cycle outcome, or nil.
func (m *Manager) LastOutcome() *models.CycleOutcome {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastOutcome == nil {
		return nil
	}
	out := *m.lastOutcome
	return &out
}

// LastSuccess returns when the last successful cycle finished.
func (m *Manager) LastSuccess() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSuccess
}

// Status reports the enabled connector, whether a cycle is running, the
// last outcome, and the committed checkpoint.
func (m *Manager) Status(ctx context.Context) (*models.SyncStatus, error) {
	conn, err := m.loadConnector(ctx)
	if err != nil {
		return nil, err
	}
	cp, err := m.checkpoints.Load(ctx, conn.ID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return &models.SyncStatus{
		ConnectorID: conn.ID,
		Strategy:    conn.Strategy,
		Running:     m.locks.Held(conn.ID),
		LastOutcome: m.LastOutcome(),
		Checkpoint:  &cp,
	}, nil
}
