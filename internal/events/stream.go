// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/clocksync/internal/config"
	"github.com/tomtom215/clocksync/internal/logging"
)

// JetStreamContext is the subset of jetstream.JetStream used to manage the
// events stream.
type JetStreamContext interface {
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	UpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// StreamInitializer creates or updates the check-in events stream.
type StreamInitializer struct {
	js  JetStreamContext
	cfg jetstream.StreamConfig
}

// NewStreamInitializer builds the stream definition from cfg.
func NewStreamInitializer(js JetStreamContext, cfg config.NATSConfig) (*StreamInitializer, error) {
	if js == nil {
		return nil, fmt.Errorf("JetStream context required")
	}
	if cfg.Stream == "" || cfg.Topic == "" {
		return nil, fmt.Errorf("stream name and topic required")
	}
	window := cfg.DuplicateWindow
	if window <= 0 {
		window = 2 * time.Minute
	}
	return &StreamInitializer{
		js: js,
		cfg: jetstream.StreamConfig{
			Name:       cfg.Stream,
			Subjects:   []string{cfg.Topic},
			Retention:  jetstream.LimitsPolicy,
			MaxAge:     cfg.MaxAge,
			Duplicates: window,
			Storage:    jetstream.FileStorage,
			Discard:    jetstream.DiscardOld,
		},
	}, nil
}

// Config returns the stream definition.
func (s *StreamInitializer) Config() jetstream.StreamConfig {
	return s.cfg
}

// EnsureStream creates the stream, or updates it if it already exists.
func (s *StreamInitializer) EnsureStream(ctx context.Context) error {
	_, err := s.js.Stream(ctx, s.cfg.Name)
	switch {
	case err == nil:
		if _, err := s.js.UpdateStream(ctx, s.cfg); err != nil {
			return fmt.Errorf("update stream %s: %w", s.cfg.Name, err)
		}
		logging.Ctx(ctx).Debug().Str("stream", s.cfg.Name).Msg("JetStream stream updated")
		return nil
	case errors.Is(err, jetstream.ErrStreamNotFound):
		if _, err := s.js.CreateStream(ctx, s.cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", s.cfg.Name, err)
		}
		logging.Ctx(ctx).Info().Str("stream", s.cfg.Name).Strs("subjects", s.cfg.Subjects).Msg("JetStream stream created")
		return nil
	default:
		return fmt.Errorf("check stream %s: %w", s.cfg.Name, err)
	}
}

// EnsureStream connects to cfg.URL and ensures the events stream exists.
func EnsureStream(ctx context.Context, cfg config.NATSConfig) error {
	nc, err := natsgo.Connect(cfg.URL, natsgo.Timeout(10*time.Second))
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	si, err := NewStreamInitializer(js, cfg)
	if err != nil {
		return err
	}
	return si.EnsureStream(ctx)
}
