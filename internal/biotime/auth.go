// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package biotime

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/tomtom215/clocksync/internal/logging"
	"github.com/tomtom215/clocksync/internal/metrics"
	"github.com/tomtom215/clocksync/internal/models"
)

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// EnsureValidToken checks token with a one-record terminals probe.
//
//   - 200: the token is returned unchanged.
//   - 401 (or no token at all): RefreshToken is called.
//   - anything else: classified per statusError; nothing is refreshed.
func (c *Client) EnsureValidToken(ctx context.Context, token string) (models.TokenState, error) {
	if token == "" {
		return c.RefreshToken(ctx)
	}

	var status int
	err := c.withRetries(ctx, "token probe", func() error {
		resp, err := c.send(ctx, http.MethodGet, terminalsPath, url.Values{"page_size": {"1"}}, token, nil)
		if err != nil {
			return err
		}
		status = resp.StatusCode
		if status == http.StatusUnauthorized {
			closeBody(resp)
			return nil
		}
		if err := checkStatus(resp, "token probe"); err != nil {
			return err
		}
		closeBody(resp)
		return nil
	})
	if err != nil {
		return models.TokenState{}, err
	}

	if status == http.StatusUnauthorized {
		logging.Ctx(ctx).Info().Msg("BioTime token rejected, refreshing")
		return c.RefreshToken(ctx)
	}
	return models.TokenState{Token: token}, nil
}

// RefreshToken exchanges username and password for a new JWT. Any failure,
// including an unreachable server, is reported as ErrAuthentication only;
// the cause is kept in the message but not in the error chain, so callers
// never retry a failed refresh. Caller cancellation is returned unchanged.
func (c *Client) RefreshToken(ctx context.Context) (models.TokenState, error) {
	const endpoint = "jwt-api-token-auth"

	tok, err := c.requestToken(ctx)
	metrics.RecordTokenRefresh(err == nil)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("BioTime token refresh failed")
		if IsAuthentication(err) || ctx.Err() != nil {
			return models.TokenState{}, err
		}
		return models.TokenState{}, &APIError{Kind: ErrAuthentication, Endpoint: endpoint, Body: err.Error()}
	}
	return models.TokenState{Token: tok, Refreshed: true}, nil
}

func (c *Client) requestToken(ctx context.Context) (string, error) {
	const endpoint = "jwt-api-token-auth"

	if c.username == "" || c.password == "" {
		return "", &APIError{Kind: ErrAuthentication, Endpoint: endpoint, Body: "username and password are required"}
	}

	var out tokenResponse
	err := c.withRetries(ctx, "token refresh", func() error {
		resp, err := c.send(ctx, http.MethodPost, tokenAuthPath, nil, "", tokenRequest{Username: c.username, Password: c.password})
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusBadRequest {
			// BioTime answers bad credentials with 400 non_field_errors.
			e := statusError(endpoint, resp.StatusCode, readBodyForError(resp.Body))
			closeBody(resp)
			e.Kind = ErrAuthentication
			return e
		}
		if err := checkStatus(resp, endpoint); err != nil {
			return err
		}
		return decodeJSON(resp, endpoint, &out)
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Token) == "" {
		return "", &APIError{Kind: ErrAuthentication, Endpoint: endpoint, Body: "response did not contain a token"}
	}
	return out.Token, nil
}
