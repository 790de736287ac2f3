// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package biotime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tomtom215/clocksync/internal/models"
)

// Terminal is a device record from /iclock/api/terminals/.
type Terminal struct {
	ID           int64  `json:"id"`
	SN           string `json:"sn"`
	Alias        string `json:"alias"`
	TerminalName string `json:"terminal_name"`
	IPAddress    string `json:"ip_address"`
	LastActivity string `json:"last_activity"`
	Area         struct {
		AreaCode string `json:"area_code"`
		AreaName string `json:"area_name"`
	} `json:"area"`
}

type terminalPage struct {
	Next *string    `json:"next"`
	Data []Terminal `json:"data"`
}

// ToDevice converts a terminal into the stored device shape.
func (t *Terminal) ToDevice(loc *time.Location, now time.Time) models.Device {
	d := models.Device{
		RemoteID:        t.ID,
		Name:            t.TerminalName,
		SerialNumber:    t.SN,
		Alias:           t.Alias,
		IPAddress:       t.IPAddress,
		LastSyncRequest: &now,
	}
	if t.Area.AreaName != "" || t.Area.AreaCode != "" {
		d.AreaLabel = fmt.Sprintf("%s - %s", t.Area.AreaName, t.Area.AreaCode)
	}
	if t.LastActivity != "" {
		if la, err := ParseTime(t.LastActivity, loc); err == nil {
			d.LastActivity = &la
		}
	}
	return d
}

// ListTerminals returns every terminal, following pagination.
func (c *Client) ListTerminals(ctx context.Context, token string) ([]Terminal, models.TokenState, error) {
	const endpoint = "terminals"
	s := &session{token: models.TokenState{Token: token}}

	var all []Terminal
	for page := 1; ; {
		q := c.baseQuery(page)
		var out terminalPage
		if err := c.getWithRefresh(ctx, s, terminalsPath, q, endpoint, &out); err != nil {
			return all, s.token, err
		}
		all = append(all, out.Data...)
		if out.Next == nil || *out.Next == "" || len(out.Data) == 0 {
			return all, s.token, nil
		}
		page = nextPageFromURL(*out.Next, page)
	}
}

// GetTerminal returns a single terminal by remote id.
func (c *Client) GetTerminal(ctx context.Context, token string, id int64) (*Terminal, models.TokenState, error) {
	s := &session{token: models.TokenState{Token: token}}
	var out Terminal
	path := fmt.Sprintf("%s%d/", terminalsPath, id)
	if err := c.getWithRefresh(ctx, s, path, nil, "terminal", &out); err != nil {
		return nil, s.token, err
	}
	return &out, s.token, nil
}

// getWithRefresh performs a GET with the same one-refresh-on-401 and
// transient retry rules as transaction pages.
func (c *Client) getWithRefresh(ctx context.Context, s *session, path string, query url.Values, endpoint string, out any) error {
	refreshed := false
	return c.withRetries(ctx, endpoint, func() error {
		for {
			resp, err := c.send(ctx, http.MethodGet, path, query, s.token.Token, nil)
			if err != nil {
				return err
			}
			if resp.StatusCode == http.StatusUnauthorized && !refreshed {
				closeBody(resp)
				refreshed = true
				tok, err := c.RefreshToken(ctx)
				if err != nil {
					return err
				}
				s.token = tok
				continue
			}
			if err := checkStatus(resp, endpoint); err != nil {
				return err
			}
			return decodeJSON(resp, endpoint, out)
		}
	})
}
