// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/clocksync/internal/config"
	"github.com/tomtom215/clocksync/internal/logging"
	"github.com/tomtom215/clocksync/internal/metrics"
	"github.com/tomtom215/clocksync/internal/models"
)

const breakerName = "event_bus"

// ErrPublisherClosed is returned after Close.
var ErrPublisherClosed = errors.New("publisher is closed")

// ErrNoLocalBus is returned by Subscribe on a NATS-backed publisher.
var ErrNoLocalBus = errors.New("subscribe requires the in-process bus")

// Publisher sends check-in events to one topic through a circuit breaker.
type Publisher struct {
	publisher message.Publisher
	local     *gochannel.GoChannel
	topic     string
	breaker   *gobreaker.CircuitBreaker[struct{}]

	mu     sync.RWMutex
	closed bool
}

// NewPublisher returns a JetStream publisher when cfg.Enabled, otherwise an
// in-process one. The JetStream stream is ensured before the first publish.
func NewPublisher(ctx context.Context, cfg config.NATSConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return NewChannelPublisher(cfg.Topic), nil
	}

	logger := watermill.NewSlogLogger(logging.NewSlogLogger("watermill"))

	if err := EnsureStream(ctx, cfg); err != nil {
		return nil, err
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	logging.Info().Str("url", cfg.URL).Str("topic", cfg.Topic).Msg("Publishing check-in events to NATS JetStream")
	return newPublisher(pub, nil, cfg.Topic), nil
}

// NewChannelPublisher returns a publisher backed by an in-process channel.
func NewChannelPublisher(topic string) *Publisher {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, watermill.NewSlogLogger(logging.NewSlogLogger("watermill")))
	return newPublisher(ch, ch, topic)
}

func newPublisher(pub message.Publisher, local *gochannel.GoChannel, topic string) *Publisher {
	if topic == "" {
		topic = "clocksync.checkins"
	}
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	return &Publisher{
		publisher: pub,
		local:     local,
		topic:     topic,
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        breakerName,
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state transition")
				metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
				metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			},
		}),
	}
}

// Topic returns the topic events are published to.
func (p *Publisher) Topic() string {
	return p.topic
}

// PublishCheckin encodes ev and publishes it with its event ID as the
// JetStream deduplication key.
func (p *Publisher) PublishCheckin(ctx context.Context, ev *models.CheckinEvent) (err error) {
	defer func() { metrics.RecordEventPublish(err) }()

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrPublisherClosed
	}

	data, err := Marshal(ev)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(natsgo.MsgIdHdr, ev.EventID)
	msg.Metadata.Set("kind", ev.Kind)
	msg.Metadata.Set("connector_id", ev.ConnectorID)
	msg.Metadata.Set("cycle_id", ev.CycleID)
	msg.SetContext(ctx)

	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.publisher.Publish(p.topic, msg)
	})
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
		return fmt.Errorf("publish %s: %w", ev.EventID, err)
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
		return fmt.Errorf("publish %s: %w", ev.EventID, err)
	}
	return nil
}

// Subscribe returns the event stream of an in-process publisher.
func (p *Publisher) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	if p.local == nil {
		return nil, ErrNoLocalBus
	}
	return p.local.Subscribe(ctx, p.topic)
}

// Local reports whether events stay in-process.
func (p *Publisher) Local() bool {
	return p.local != nil
}

// Close shuts the publisher down. It is safe to call more than once.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
