// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package biotime

import (
	"context"
	"errors"
	"sort"

	"github.com/tomtom215/clocksync/internal/logging"
	"github.com/tomtom215/clocksync/internal/metrics"
	"github.com/tomtom215/clocksync/internal/models"
)

// FetchPageCursor resumes at cursor.Page and returns records with
// id > cursor.LastID, following "next" links until a page is empty, there is
// no next page, or maxRecords new records have been collected.
//
// When the cap is hit mid-page, Next points at that page with LastID set to
// the last record returned, so the following call re-reads the page and
// skips what was already taken.
func (c *Client) FetchPageCursor(ctx context.Context, token string, cursor Cursor, maxRecords int) (*FetchResult, error) {
	s := &session{token: models.TokenState{Token: token}}
	res := &FetchResult{Next: cursor}
	if maxRecords < 1 {
		maxRecords = 1
	}

	streak := 0
	lastID := cursor.LastID
	page, p, err := c.locatePage(ctx, s, cursor.Page, lastID, res, &streak)
	res.Token = s.token
	if err != nil {
		return res, err
	}

	for {
		if p != nil {
			records := sortByID(p.records())
			fresh := records[skipSeen(records, lastID):]

			if room := maxRecords - len(res.Records); len(fresh) >= room {
				res.Records = append(res.Records, fresh[:room]...)
				lastID = fresh[room-1].ID
				res.Next = Cursor{Page: page, LastID: lastID}
				res.HasMore = len(fresh) > room || p.hasNext()
				return res, nil
			}

			res.Records = append(res.Records, fresh...)
			if n := len(fresh); n > 0 {
				lastID = fresh[n-1].ID
			}
			if len(records) > 0 {
				res.Next = Cursor{Page: page, LastID: lastID}
			}
			if len(records) == 0 || !p.hasNext() {
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
			res.Next.LastID = lastID
			return res, err
		}
		streak = 0
	}
}

// skipSeen returns the index of the first record with ID > lastID in an
// id-sorted slice.
func skipSeen(records []models.RawTransaction, lastID int64) int {
	return sort.Search(len(records), func(i int) bool {
		return records[i].ID > lastID
	})
}

// sortByID returns records in ascending id order. Pages are expected to be
// sorted already; anything else is counted and logged because the id
// cursors rely on ids increasing across the whole feed.
func sortByID(records []models.RawTransaction) []models.RawTransaction {
	if sort.SliceIsSorted(records, func(i, j int) bool { return records[i].ID < records[j].ID }) {
		return records
	}
	metrics.OutOfOrderIDs.Inc()
	logging.Warn().Int("records", len(records)).Msg("Transaction page ids out of order; sorting locally")

	sorted := make([]models.RawTransaction, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return sorted
}
