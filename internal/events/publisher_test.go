// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/clocksync/internal/config"
	"github.com/tomtom215/clocksync/internal/models"
)

func testEvent() *models.CheckinEvent {
	rec := models.ClassifiedRecord{Resolved: &models.ResolvedCheckin{
		EmployeeID:   "EMP-1",
		EmployeeName: "Ada",
		Direction:    models.DirectionIn,
		Time:         time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		DeviceLabel:  "SN-1 - Gate",
		RemoteID:     7,
	}}
	ev := models.NewCheckinEvent(rec, "cycle-1", "default")
	return &ev
}

// failingPublisher rejects every message.
type failingPublisher struct {
	calls atomic.Int32
}

func (f *failingPublisher) Publish(string, ...*message.Message) error {
	f.calls.Add(1)
	return errors.New("connection refused")
}

func (f *failingPublisher) Close() error { return nil }

func TestPublisher_ChannelRoundTrip(t *testing.T) {
	t.Parallel()

	pub := NewChannelPublisher("test.checkins")
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msgs, err := pub.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	ev := testEvent()
	if err := pub.PublishCheckin(ctx, ev); err != nil {
		t.Fatalf("PublishCheckin() error = %v", err)
	}

	select {
	case msg := <-msgs:
		defer msg.Ack()
		if got := msg.Metadata.Get(natsgo.MsgIdHdr); got != ev.EventID {
			t.Errorf("Nats-Msg-Id = %q, want %q", got, ev.EventID)
		}
		if msg.Metadata.Get("kind") != models.EventKindResolved || msg.Metadata.Get("cycle_id") != "cycle-1" {
			t.Errorf("metadata = %v", msg.Metadata)
		}
		got, err := Unmarshal(msg.Payload)
		if err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if got.EventID != ev.EventID || got.EmployeeID != "EMP-1" || !got.Time.Equal(ev.Time) {
			t.Errorf("event = %+v", got)
		}
	case <-ctx.Done():
		t.Fatal("event not delivered")
	}
}

func TestPublisher_Topic(t *testing.T) {
	t.Parallel()

	if got := NewChannelPublisher("").Topic(); got != "clocksync.checkins" {
		t.Errorf("Topic() = %q, want default", got)
	}
	pub, err := NewPublisher(context.Background(), config.NATSConfig{Topic: "x.y"})
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	if pub.Topic() != "x.y" || !pub.Local() {
		t.Errorf("disabled NATS should give a local publisher on x.y")
	}
}

func TestPublisher_RejectsInvalidEvent(t *testing.T) {
	t.Parallel()

	pub := NewChannelPublisher("t")
	ev := testEvent()
	ev.EventID = ""
	if err := pub.PublishCheckin(context.Background(), ev); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("PublishCheckin() error = %v, want ErrInvalidEvent", err)
	}
}

func TestPublisher_Closed(t *testing.T) {
	t.Parallel()

	pub := NewChannelPublisher("t")
	if err := pub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := pub.PublishCheckin(context.Background(), testEvent()); !errors.Is(err, ErrPublisherClosed) {
		t.Errorf("PublishCheckin() error = %v, want ErrPublisherClosed", err)
	}
}

func TestPublisher_BreakerOpensAfterFailures(t *testing.T) {
	t.Parallel()

	backend := &failingPublisher{}
	pub := newPublisher(backend, nil, "t")

	for i := 0; i < 5; i++ {
		if err := pub.PublishCheckin(context.Background(), testEvent()); err == nil {
			t.Fatalf("publish %d succeeded against a failing backend", i)
		}
	}
	err := pub.PublishCheckin(context.Background(), testEvent())
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("PublishCheckin() error = %v, want open breaker", err)
	}
	if backend.calls.Load() != 5 {
		t.Errorf("backend calls = %d, want 5", backend.calls.Load())
	}
}

func TestPublisher_SubscribeRequiresLocalBus(t *testing.T) {
	t.Parallel()

	pub := newPublisher(&failingPublisher{}, nil, "t")
	if _, err := pub.Subscribe(context.Background()); !errors.Is(err, ErrNoLocalBus) {
		t.Errorf("Subscribe() error = %v, want ErrNoLocalBus", err)
	}
}

func TestTap(t *testing.T) {
	t.Parallel()

	pub := NewChannelPublisher("t")
	defer pub.Close()
	tap := NewTap(pub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tap.Serve(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for tap.Seen() < 2 && time.Now().Before(deadline) {
		// The subscription may not exist yet; gochannel drops messages
		// published before it.
		_ = pub.PublishCheckin(ctx, testEvent())
		time.Sleep(10 * time.Millisecond)
	}
	if tap.Seen() < 2 {
		t.Fatalf("Seen() = %d, want at least 2", tap.Seen())
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return")
	}
	if tap.String() != "event-tap" {
		t.Errorf("String() = %q", tap.String())
	}
}
