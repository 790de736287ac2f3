// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package biotime

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/clocksync/internal/models"
)

// fakeBioTime is an in-memory stand-in for the BioTime REST API.
type fakeBioTime struct {
	mu sync.Mutex

	username string
	password string
	token    string
	issued   int

	records   []models.RawTransaction
	terminals []Terminal

	refreshCalls int
	txCalls      int

	// expireAtTx invalidates the token when the Nth transaction request arrives.
	expireAtTx int
	// failTx makes the next N transaction requests return failStatus.
	failTx     int
	failStatus int
	// failAfterPages lets that many transaction pages succeed before failTx applies.
	failAfterPages int
	// malformed lists pages whose body is not JSON.
	malformed map[int]bool

	server *httptest.Server
}

func newFakeBioTime(t *testing.T) *fakeBioTime {
	t.Helper()
	f := &fakeBioTime{
		username:   "sync",
		password:   "secret",
		token:      "tok-0",
		failStatus: http.StatusServiceUnavailable,
		malformed:  map[int]bool{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/jwt-api-token-auth/", f.handleToken)
	mux.HandleFunc("/iclock/api/terminals/", f.handleTerminals)
	mux.HandleFunc("/iclock/api/transactions/", f.handleTransactions)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeBioTime) client(t *testing.T, pageSize int) *Client {
	t.Helper()
	return NewClient(Config{
		BaseURL:           f.server.URL,
		Username:          f.username,
		Password:          f.password,
		PageSize:          pageSize,
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             1000,
		FetchRetries:      3,
		RetryBaseDelay:    time.Millisecond,
		Location:          time.UTC,
	})
}

// seedIDs adds one record per id, a minute apart, on terminal "Gate".
func (f *fakeBioTime) seedIDs(ids ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	for _, id := range ids {
		f.records = append(f.records, models.RawTransaction{
			ID:                id,
			EmpCode:           fmt.Sprintf("%d", 1000+id%3),
			FirstName:         "Emp",
			LastName:          strconv.FormatInt(id, 10),
			TerminalSN:        "SN1",
			TerminalAlias:     "Gate",
			PunchTime:         base.Add(time.Duration(id) * time.Minute).Format(timeLayout),
			PunchStateDisplay: "Check In",
		})
	}
}

func seq(from, to int64) []int64 {
	out := make([]int64, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func (f *fakeBioTime) expire() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = "expired"
}

func (f *fakeBioTime) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "JWT "+f.token
}

func (f *fakeBioTime) handleToken(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++

	var req tokenRequest
	if r.Method != http.MethodPost || json.NewDecoder(r.Body).Decode(&req) != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.Username != f.username || req.Password != f.password {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"non_field_errors":["Unable to log in with provided credentials."]}`))
		return
	}
	f.issued++
	f.token = fmt.Sprintf("tok-%d", f.issued)
	_ = json.NewEncoder(w).Encode(tokenResponse{Token: f.token})
}

func (f *fakeBioTime) handleTerminals(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if rest := strings.TrimPrefix(r.URL.Path, terminalsPath); rest != "" {
		id, _ := strconv.ParseInt(strings.Trim(rest, "/"), 10, 64)
		for _, term := range f.terminals {
			if term.ID == id {
				_ = json.NewEncoder(w).Encode(term)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"next": nil, "data": f.terminals})
}

func (f *fakeBioTime) handleTransactions(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCalls++

	if f.expireAtTx > 0 && f.txCalls == f.expireAtTx {
		f.token = "expired"
	}
	if !f.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if f.failTx > 0 {
		if f.failAfterPages > 0 {
			f.failAfterPages--
		} else {
			f.failTx--
			w.WriteHeader(f.failStatus)
			return
		}
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(q.Get("page_size"))
	if size < 1 {
		size = 10
	}

	var matched []models.RawTransaction
	start, _ := time.ParseInLocation(timeLayout, q.Get("start_time"), time.UTC)
	end, _ := time.ParseInLocation(timeLayout, q.Get("end_time"), time.UTC)
	for _, rec := range f.records {
		ts, _ := time.ParseInLocation(timeLayout, rec.PunchTime, time.UTC)
		if q.Get("start_time") != "" && ts.Before(start) {
			continue
		}
		if q.Get("end_time") != "" && ts.After(end) {
			continue
		}
		if alias := q.Get("terminal_alias"); alias != "" && rec.TerminalAlias != alias {
			continue
		}
		matched = append(matched, rec)
	}

	from := (page - 1) * size
	if from >= len(matched) && page > 1 {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Invalid page."}`))
		return
	}
	if f.malformed[page] {
		_, _ = w.Write([]byte(`<html>proxy error</html>`))
		return
	}
	to := from + size
	if to > len(matched) {
		to = len(matched)
	}

	var next *string
	if to < len(matched) {
		nq := r.URL.Query()
		nq.Set("page", strconv.Itoa(page+1))
		u := f.server.URL + transactionsPath + "?" + nq.Encode()
		next = &u
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"count": len(matched),
		"next":  next,
		"data":  matched[from:to],
	})
}

func ids(records []models.RawTransaction) []int64 {
	out := make([]int64, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (f *fakeBioTime) refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

func (f *fakeBioTime) txRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txCalls
}

func (f *fakeBioTime) configure(fn func(f *fakeBioTime)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}
