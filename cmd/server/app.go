// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tomtom215/clocksync/internal/api"
	"github.com/tomtom215/clocksync/internal/checkpoint"
	"github.com/tomtom215/clocksync/internal/config"
	"github.com/tomtom215/clocksync/internal/database"
	"github.com/tomtom215/clocksync/internal/events"
	"github.com/tomtom215/clocksync/internal/logging"
	"github.com/tomtom215/clocksync/internal/models"
	"github.com/tomtom215/clocksync/internal/supervisor"
	"github.com/tomtom215/clocksync/internal/supervisor/services"
	"github.com/tomtom215/clocksync/internal/sync"
)

// app holds the components every command needs.
type app struct {
	cfg         *config.Config
	db          *database.DB
	checkpoints *checkpoint.Store
	publisher   *events.Publisher
	manager     *sync.Manager
}

// withApp builds the app, runs fn, and closes everything.
func withApp(ctx context.Context, configPath string, fn func(ctx context.Context, a *app) error) (err error) {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, a)
}

func newApp(ctx context.Context, configPath string) (_ *app, err error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()

	a.db, err = database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.Security.EncryptionKey != "" {
		enc, err := config.NewCredentialEncryptor(cfg.Security.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("credential encryption: %w", err)
		}
		a.db.SetEncryptor(enc)
	}
	logging.Info().Str("path", a.db.GetDatabasePath()).Msg("Database opened")

	a.checkpoints, err = checkpoint.Open(cfg.Checkpoint)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}

	if err := seedConnector(ctx, a.db, cfg.BioTime, cfg.Sync.Strategy); err != nil {
		return nil, err
	}

	a.publisher, err = events.NewPublisher(ctx, cfg.NATS)
	if err != nil {
		return nil, fmt.Errorf("event publisher: %w", err)
	}

	a.manager = sync.NewManager(a.db, a.checkpoints, a.publisher, sync.NewBioTimeClientFactory(cfg.BioTime, loc), cfg)
	return a, nil
}

// connectorStore is the part of the database seedConnector writes.
type connectorStore interface {
	UpsertConnector(ctx context.Context, c *models.ConnectorConfig) error
	DisableOtherConnectors(ctx context.Context, keepID string) (int64, error)
}

// seedConnector writes the configured connector and makes it the only
// enabled one. A stored bearer token survives the upsert.
func seedConnector(ctx context.Context, store connectorStore, bt config.BioTimeConfig, strategy string) error {
	s, err := models.ParseCursorStrategy(strategy)
	if err != nil {
		return fmt.Errorf("%w: %w", sync.ErrConfiguration, err)
	}
	conn := &models.ConnectorConfig{
		ID:       bt.ConnectorID,
		BaseURL:  bt.URL,
		Username: bt.Username,
		Secret:   bt.Password,
		Enabled:  true,
		Strategy: s,
		PageSize: bt.PageSize,
	}
	if err := store.UpsertConnector(ctx, conn); err != nil {
		return fmt.Errorf("seed connector: %w", err)
	}
	disabled, err := store.DisableOtherConnectors(ctx, conn.ID)
	if err != nil {
		return fmt.Errorf("disable other connectors: %w", err)
	}
	logging.Info().
		Str("connector", conn.ID).
		Str("strategy", string(s)).
		Int64("disabled_others", disabled).
		Msg("Connector configured")
	return nil
}

// serve runs the supervisor tree until ctx is canceled.
func (a *app) serve(ctx context.Context) error {
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.TreeConfig{
		ShutdownTimeout: a.cfg.Server.Timeout,
	})
	if err != nil {
		return fmt.Errorf("supervisor tree: %w", err)
	}

	tree.AddStorageService(services.NewCheckpointGCService(a.checkpoints, 0, 0))

	if a.cfg.Sync.Enabled {
		tree.AddSyncService(services.NewSyncService(a.manager))
	} else {
		logging.Warn().Msg("Scheduled sync disabled; cycles run only on demand")
	}
	if a.publisher.Local() {
		tree.AddSyncService(events.NewTap(a.publisher))
	}

	server := &http.Server{
		Addr:              a.cfg.Server.Addr(),
		Handler:           api.NewRouter(api.NewHandler(a.manager, a.db), a.cfg.Server),
		ReadHeaderTimeout: a.cfg.Server.Timeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, a.cfg.Server.Timeout))

	logging.Info().Str("addr", server.Addr).Msg("Starting clocksync")
	err = tree.Serve(ctx)
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		logging.Warn().Int("count", len(report)).Msg("Services did not stop within the shutdown timeout")
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// close releases resources in reverse order of creation.
func (a *app) close() error {
	var errs []error
	if a.manager != nil {
		if err := a.manager.Stop(); err != nil {
			logging.Debug().Err(err).Msg("Sync manager stop")
		}
	}
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.checkpoints != nil {
		errs = append(errs, a.checkpoints.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
