// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package events

import (
	"context"
	"sync/atomic"

	"github.com/tomtom215/clocksync/internal/logging"
)

// Tap drains the in-process bus and logs each event. It implements
// suture.Service.
type Tap struct {
	pub  *Publisher
	seen atomic.Int64
}

// NewTap returns a tap on pub's in-process bus.
func NewTap(pub *Publisher) *Tap {
	return &Tap{pub: pub}
}

// Serve consumes until ctx is canceled.
func (t *Tap) Serve(ctx context.Context) error {
	msgs, err := t.pub.Subscribe(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return ctx.Err()
			}
			ev, err := Unmarshal(msg.Payload)
			if err != nil {
				logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping undecodable check-in event")
				msg.Ack()
				continue
			}
			t.seen.Add(1)
			logging.Debug().
				Str("event_id", ev.EventID).
				Str("kind", ev.Kind).
				Str("employee_id", ev.EmployeeID).
				Str("employee_code", ev.EmployeeCode).
				Str("direction", string(ev.Direction)).
				Time("time", ev.Time).
				Msg("Check-in event")
			msg.Ack()
		}
	}
}

// Seen returns the number of events consumed.
func (t *Tap) Seen() int64 {
	return t.seen.Load()
}

func (t *Tap) String() string {
	return "event-tap"
}
