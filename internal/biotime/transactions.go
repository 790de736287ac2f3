// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package biotime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tomtom215/clocksync/internal/logging"
	"github.com/tomtom215/clocksync/internal/metrics"
	"github.com/tomtom215/clocksync/internal/models"
)

// transactionPage is one page of /iclock/api/transactions/.
type transactionPage struct {
	Count    int                      `json:"count"`
	Next     *string                  `json:"next"`
	Previous *string                  `json:"previous"`
	Data     *[]models.RawTransaction `json:"data"`
}

func (p *transactionPage) records() []models.RawTransaction {
	if p.Data == nil {
		return nil
	}
	return *p.Data
}

func (p *transactionPage) hasNext() bool {
	return p.Next != nil && *p.Next != ""
}

// Cursor is the resumable position returned by a fetch.
type Cursor struct {
	Page   int
	LastID int64
}

// FetchResult is what every strategy returns. On error, Records still holds
// everything fetched before the failure.
type FetchResult struct {
	Records        []models.RawTransaction
	Next           Cursor
	HasMore        bool
	MalformedPages int
	Token          models.TokenState
}

// WindowQuery selects transactions whose punch_time falls in [Start, End].
type WindowQuery struct {
	Start         time.Time
	End           time.Time
	TerminalAlias string
	TerminalSN    string
	EmpCode       string
}

// session tracks the token across the pages of one fetch.
type session struct {
	token models.TokenState
}

// fetchPage fetches a single page. A 401 triggers one refresh and one
// retry; transient failures are retried up to FetchRetries. A 404 on a page
// past the first is reported as an empty last page.
func (c *Client) fetchPage(ctx context.Context, s *session, query url.Values) (*transactionPage, error) {
	const endpoint = "transactions"

	page, _ := strconv.Atoi(query.Get("page"))
	refreshed := false
	var out *transactionPage

	err := c.withRetries(ctx, fmt.Sprintf("transactions page %d", page), func() error {
		for {
			resp, err := c.send(ctx, http.MethodGet, transactionsPath, query, s.token.Token, nil)
			if err != nil {
				return err
			}

			switch {
			case resp.StatusCode == http.StatusUnauthorized && !refreshed:
				closeBody(resp)
				refreshed = true
				logging.Ctx(ctx).Info().Int("page", page).Msg("Token expired mid-fetch, refreshing")
				tok, err := c.RefreshToken(ctx)
				if err != nil {
					return err
				}
				s.token = tok
				continue
			case resp.StatusCode == http.StatusNotFound && page > 1:
				closeBody(resp)
				out = &transactionPage{}
				return nil
			}

			if err := checkStatus(resp, endpoint); err != nil {
				return err
			}
			var p transactionPage
			if err := decodeJSON(resp, endpoint, &p); err != nil {
				return err
			}
			if p.Data == nil {
				return malformedError(endpoint, errors.New(`response has no "data" field`))
			}
			out = &p
			return nil
		}
	})
	return out, err
}

func (c *Client) baseQuery(page int) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(c.pageSize))
	return q
}

// nextPageFromURL extracts the page parameter from a "next" link. It falls
// back to current+1 when the link has no usable page number.
func nextPageFromURL(next string, current int) int {
	if u, err := url.Parse(next); err == nil {
		if p, err := strconv.Atoi(u.Query().Get("page")); err == nil && p > current {
			return p
		}
	}
	return current + 1
}

// FetchWindow returns every transaction in the window, walking pages until
// the server reports no next page. A malformed page is logged and skipped.
func (c *Client) FetchWindow(ctx context.Context, token string, w WindowQuery) (*FetchResult, error) {
	s := &session{token: models.TokenState{Token: token}}
	res := &FetchResult{}

	page, streak := 1, 0
	for {
		q := c.baseQuery(page)
		q.Set("start_time", c.FormatTime(w.Start))
		q.Set("end_time", c.FormatTime(w.End))
		if w.TerminalAlias != "" {
			q.Set("terminal_alias", w.TerminalAlias)
		}
		if w.TerminalSN != "" {
			q.Set("terminal_sn", w.TerminalSN)
		}
		if w.EmpCode != "" {
			q.Set("emp_code", w.EmpCode)
		}

		p, err := c.fetchPage(ctx, s, q)
		res.Token = s.token
		if errors.Is(err, ErrMalformedResponse) {
			if err = c.skipMalformed(ctx, res, page, err, &streak); err == nil {
				page++
				continue
			}
		}
		if err != nil {
			res.Next = Cursor{Page: page}
			return res, err
		}
		streak = 0

		res.Records = append(res.Records, p.records()...)
		if !p.hasNext() || len(p.records()) == 0 {
			res.Next = Cursor{Page: page}
			return res, nil
		}
		page = nextPageFromURL(*p.Next, page)
	}
}

// FetchByID returns transactions with id > lastID from the page that
// should contain them, computed as lastID/pageSize+1.
//
// When ids have gaps the computed page overshoots. If that page is empty or
// starts above lastID, earlier pages are checked (up to maxRewindPages) so
// nothing between lastID and the page start is skipped. If the located page
// holds nothing new, following pages are read until new records appear.
func (c *Client) FetchByID(ctx context.Context, token string, lastID int64) (*FetchResult, error) {
	s := &session{token: models.TokenState{Token: token}}
	res := &FetchResult{Next: Cursor{LastID: lastID}}

	streak := 0
	start := int(lastID/int64(c.pageSize)) + 1
	page, p, err := c.locatePage(ctx, s, start, lastID, res, &streak)
	res.Token = s.token
	if err != nil {
		res.Next.Page = page
		return res, err
	}

	for {
		if p != nil {
			records := sortByID(p.records())
			fresh := records[skipSeen(records, lastID):]
			res.Records = append(res.Records, fresh...)
			res.Next.Page = page
			if n := len(fresh); n > 0 {
				res.Next.LastID = fresh[n-1].ID
				res.HasMore = p.hasNext()
				return res, nil
			}
			if !p.hasNext() || len(records) == 0 {
				return res, nil
			}
			page = nextPageFromURL(*p.Next, page)
		} else {
			page++
		}

		p, err = c.fetchPage(ctx, s, c.baseQuery(page))
		res.Token = s.token
		if errors.Is(err, ErrMalformedResponse) {
			if err = c.skipMalformed(ctx, res, page, err, &streak); err == nil {
				p = nil
				continue
			}
		}
		if err != nil {
			res.Next.Page = page
			return res, err
		}
		streak = 0
	}
}

// maxRewindPages bounds how far locatePage walks back from an estimate.
const maxRewindPages = 10

// locatePage fetches page start, stepping back while the page is empty or
// its smallest id is above lastID. A nil page with a nil error means the
// located page was malformed and skipped.
func (c *Client) locatePage(ctx context.Context, s *session, start int, lastID int64, res *FetchResult, streak *int) (int, *transactionPage, error) {
	if start < 1 {
		start = 1
	}
	page := start
	for step := 0; ; step++ {
		p, err := c.fetchPage(ctx, s, c.baseQuery(page))
		if errors.Is(err, ErrMalformedResponse) {
			if err = c.skipMalformed(ctx, res, page, err, streak); err == nil {
				return page, nil, nil
			}
		}
		if err != nil {
			return page, nil, err
		}

		records := p.records()
		aboveCursor := len(records) == 0 || minID(records) > lastID
		if page == 1 || !aboveCursor || lastID == 0 {
			return page, p, nil
		}
		if step == maxRewindPages {
			logging.Ctx(ctx).Warn().Int("page", page).Int64("last_id", lastID).Msg("Stopped rewinding pages; records between cursor and page start may be missed")
			return page, p, nil
		}
		page--
	}
}

// maxMalformedStreak ends a fetch when this many pages in a row are malformed.
const maxMalformedStreak = 3

// skipMalformed records a skipped page. It returns err once the streak
// limit is reached so that a server returning garbage cannot loop forever.
func (c *Client) skipMalformed(ctx context.Context, res *FetchResult, page int, err error, streak *int) error {
	res.MalformedPages++
	metrics.MalformedPages.Inc()
	*streak++
	if *streak >= maxMalformedStreak {
		logging.Ctx(ctx).Error().Err(err).Int("page", page).Int("streak", *streak).Msg("Too many malformed pages in a row")
		return err
	}
	logging.Ctx(ctx).Warn().Err(err).Int("page", page).Msg("Skipping malformed transactions page")
	return nil
}

func minID(records []models.RawTransaction) int64 {
	m := records[0].ID
	for _, r := range records[1:] {
		if r.ID < m {
			m = r.ID
		}
	}
	return m
}
