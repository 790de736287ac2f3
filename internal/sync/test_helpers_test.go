// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package sync

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/clocksync/internal/biotime"
	"github.com/tomtom215/clocksync/internal/checkpoint"
	"github.com/tomtom215/clocksync/internal/config"
	"github.com/tomtom215/clocksync/internal/database"
	"github.com/tomtom215/clocksync/internal/models"
)

// testNow is the fixed clock used by manager tests.
var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

// newTestConfig returns a config with fast retries for tests.
func newTestConfig() *config.Config {
	return &config.Config{
		BioTime: config.BioTimeConfig{
			ConnectorID: "default",
			URL:         "http://biotime.test",
			Username:    "sync",
			Password:    "secret",
			PageSize:    5,
		},
		Sync: config.SyncConfig{
			Interval:           time.Hour,
			Strategy:           config.StrategyNumericID,
			RetryAttempts:      3,
			RetryInitialDelay:  time.Millisecond,
			RetryMaxDelay:      2 * time.Millisecond,
			MaxRecordsPerCycle: 1000,
			InitialWindow:      2 * time.Hour,
			MaxWindow:          24 * time.Hour,
			DefaultLookback:    24 * time.Hour,
			IdentityCacheSize:  64,
			IdentityCacheTTL:   time.Minute,
		},
	}
}

// memStore is an in-memory Store.
type memStore struct {
	mu sync.Mutex

	connector   *models.ConnectorConfig
	connErr     error
	devices     map[string]models.Device
	employees   []models.Employee
	resolved    map[string]models.ResolvedCheckin
	orphans     []models.StoredOrphan
	nextOrphan  int64
	failed      []models.FailedCheckin
	savedTokens []string
	syncedAt    map[string]time.Time

	existsErr error
	insertErr func(key models.NaturalKey) error
	dlqErr    error
	lookupErr error
	findCalls int

	// vanish lists orphan ids deleted by someone else just before a move.
	vanish map[int64]bool
}

func newMemStore(strategy models.CursorStrategy) *memStore {
	return &memStore{
		connector: &models.ConnectorConfig{
			ID:          "default",
			BaseURL:     "http://biotime.test",
			Username:    "sync",
			Secret:      "secret",
			BearerToken: "tok-0",
			Enabled:     true,
			Strategy:    strategy,
			PageSize:    5,
		},
		devices:  make(map[string]models.Device),
		resolved: make(map[string]models.ResolvedCheckin),
		syncedAt: make(map[string]time.Time),
	}
}

func (s *memStore) addEmployee(id, name, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees = append(s.employees, models.Employee{EmployeeID: id, EmployeeName: name, DeviceCode: code, Active: true})
}

func (s *memStore) addDevice(d models.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.Alias] = d
}

func (s *memStore) GetEnabledConnector(context.Context) (*models.ConnectorConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connErr != nil {
		return nil, s.connErr
	}
	if s.connector == nil {
		return nil, database.ErrNoEnabledConnector
	}
	c := *s.connector
	return &c, nil
}

func (s *memStore) SaveConnectorToken(_ context.Context, _ string, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savedTokens = append(s.savedTokens, token)
	s.connector.BearerToken = token
	return nil
}

func (s *memStore) ListDevices(context.Context) ([]models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out, nil
}

func (s *memStore) UpsertDevice(_ context.Context, d *models.Device) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.devices[d.Alias]
	s.devices[d.Alias] = *d
	return !existed, nil
}

func (s *memStore) UpdateDeviceSyncRequest(_ context.Context, alias string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncedAt[alias] = at
	return nil
}

func (s *memStore) LastCheckinTime(_ context.Context, alias string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest time.Time
	suffix := " - " + alias
	for _, c := range s.resolved {
		if strings.HasSuffix(c.DeviceLabel, suffix) && c.Time.After(latest) {
			latest = c.Time
		}
	}
	for _, o := range s.orphans {
		if strings.HasSuffix(o.DeviceLabel, suffix) && o.Time.After(latest) {
			latest = o.Time
		}
	}
	return latest, !latest.IsZero(), nil
}

func (s *memStore) FindEmployee(_ context.Context, code string) (string, string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if s.lookupErr != nil {
		return "", "", false, s.lookupErr
	}
	for _, e := range s.employees {
		if e.Active && e.DeviceCode == code {
			return e.EmployeeID, e.EmployeeName, true, nil
		}
	}
	norm := models.NormalizeDeviceCode(code)
	if norm == "" {
		return "", "", false, nil
	}
	for _, e := range s.employees {
		if e.Active && models.NormalizeDeviceCode(e.DeviceCode) == norm {
			return e.EmployeeID, e.EmployeeName, true, nil
		}
	}
	return "", "", false, nil
}

// FindInternalID lets memStore serve as an uncached IdentityResolver.
func (s *memStore) FindInternalID(ctx context.Context, code string) (string, string, bool, error) {
	return s.FindEmployee(ctx, code)
}

func (s *memStore) UpsertEmployees(_ context.Context, employees []models.Employee) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees = append(s.employees, employees...)
	return len(employees), nil
}

func (s *memStore) CheckinExists(_ context.Context, key models.NaturalKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.existsLocked(key), nil
}

func (s *memStore) existsLocked(key models.NaturalKey) bool {
	if !key.Orphan {
		_, ok := s.resolved[key.String()]
		return ok
	}
	for _, o := range s.orphans {
		if (models.ClassifiedRecord{Orphan: &o.OrphanCheckin}).Key() == key {
			return true
		}
	}
	return false
}

func (s *memStore) InsertCheckin(_ context.Context, c *models.ResolvedCheckin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.ClassifiedRecord{Resolved: c}.Key()
	if s.insertErr != nil {
		if err := s.insertErr(key); err != nil {
			return err
		}
	}
	if s.existsLocked(key) {
		return database.ErrDuplicateCheckin
	}
	s.resolved[key.String()] = *c
	return nil
}

func (s *memStore) InsertOrphan(_ context.Context, o *models.OrphanCheckin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.ClassifiedRecord{Orphan: o}.Key()
	if s.insertErr != nil {
		if err := s.insertErr(key); err != nil {
			return err
		}
	}
	if s.existsLocked(key) {
		return database.ErrDuplicateCheckin
	}
	s.nextOrphan++
	s.orphans = append(s.orphans, models.StoredOrphan{ID: s.nextOrphan, OrphanCheckin: *o, CreatedAt: testNow})
	return nil
}

func (s *memStore) InsertFailedCheckin(_ context.Context, f *models.FailedCheckin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dlqErr != nil {
		return s.dlqErr
	}
	f.ID = int64(len(s.failed) + 1)
	s.failed = append(s.failed, *f)
	return nil
}

func (s *memStore) ListOrphans(_ context.Context, limit, offset int) ([]models.StoredOrphan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if offset >= len(s.orphans) {
		return nil, nil
	}
	end := min(offset+limit, len(s.orphans))
	out := make([]models.StoredOrphan, end-offset)
	copy(out, s.orphans[offset:end])
	return out, nil
}

func (s *memStore) MoveOrphanToResolved(_ context.Context, orphanID int64, employeeID, employeeName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vanish[orphanID] {
		for i, o := range s.orphans {
			if o.ID == orphanID {
				s.orphans = append(s.orphans[:i], s.orphans[i+1:]...)
				break
			}
		}
		return false, database.ErrOrphanNotFound
	}
	for i, o := range s.orphans {
		if o.ID != orphanID {
			continue
		}
		c := models.ResolvedCheckin{
			EmployeeID:   employeeID,
			EmployeeName: employeeName,
			Direction:    o.Direction,
			Time:         o.Time,
			DeviceLabel:  o.DeviceLabel,
			RemoteID:     o.RemoteID,
		}
		key := models.ClassifiedRecord{Resolved: &c}.Key().String()
		_, exists := s.resolved[key]
		if !exists {
			s.resolved[key] = c
		}
		s.orphans = append(s.orphans[:i], s.orphans[i+1:]...)
		return !exists, nil
	}
	return false, database.ErrOrphanNotFound
}

func (s *memStore) UpdateCheckinDeviceLabel(_ context.Context, key models.NaturalKey, label string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key.Orphan {
		for i := range s.orphans {
			o := &s.orphans[i]
			if (models.ClassifiedRecord{Orphan: &o.OrphanCheckin}).Key() == key && o.DeviceLabel != label {
				o.DeviceLabel = label
				return true, nil
			}
		}
		return false, nil
	}
	c, ok := s.resolved[key.String()]
	if !ok || c.DeviceLabel == label {
		return false, nil
	}
	c.DeviceLabel = label
	s.resolved[key.String()] = c
	return true, nil
}

func (s *memStore) counts() (resolved, orphans, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.resolved), len(s.orphans), len(s.failed)
}

func (s *memStore) tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.savedTokens...)
}

// mockRemote is a RemoteClient with overridable behavior.
type mockRemote struct {
	mu sync.Mutex

	records []models.RawTransaction

	ensureToken     func(ctx context.Context, token string) (models.TokenState, error)
	fetchWindow     func(ctx context.Context, token string, w biotime.WindowQuery) (*biotime.FetchResult, error)
	fetchByID       func(ctx context.Context, token string, lastID int64) (*biotime.FetchResult, error)
	fetchPageCursor func(ctx context.Context, token string, cursor biotime.Cursor, maxRecords int) (*biotime.FetchResult, error)
	listTerminals   func(ctx context.Context, token string) ([]biotime.Terminal, models.TokenState, error)

	windows   []biotime.WindowQuery
	byIDCalls []int64
	cursors   []biotime.Cursor
	tokensIn  []string
}

func (r *mockRemote) Location() *time.Location { return time.UTC }

func (r *mockRemote) EnsureValidToken(ctx context.Context, token string) (models.TokenState, error) {
	r.mu.Lock()
	r.tokensIn = append(r.tokensIn, token)
	fn := r.ensureToken
	r.mu.Unlock()
	if fn != nil {
		return fn(ctx, token)
	}
	return models.TokenState{Token: token}, nil
}

func (r *mockRemote) FetchWindow(ctx context.Context, token string, w biotime.WindowQuery) (*biotime.FetchResult, error) {
	r.mu.Lock()
	r.windows = append(r.windows, w)
	fn := r.fetchWindow
	r.mu.Unlock()
	if fn != nil {
		return fn(ctx, token, w)
	}
	return r.window(w), nil
}

// window filters the canned records by punch time and alias.
func (r *mockRemote) window(w biotime.WindowQuery) *biotime.FetchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := &biotime.FetchResult{}
	for _, rec := range r.records {
		ts, err := biotime.ParseTime(rec.PunchTime, time.UTC)
		if err != nil || ts.Before(w.Start) || ts.After(w.End) {
			continue
		}
		if w.TerminalAlias != "" && rec.TerminalAlias != w.TerminalAlias {
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res
}

func (r *mockRemote) FetchByID(ctx context.Context, token string, lastID int64) (*biotime.FetchResult, error) {
	r.mu.Lock()
	r.byIDCalls = append(r.byIDCalls, lastID)
	fn := r.fetchByID
	r.mu.Unlock()
	if fn != nil {
		return fn(ctx, token, lastID)
	}
	return r.afterID(lastID, 1<<30), nil
}

// afterID returns up to limit records with id > lastID, in id order.
func (r *mockRemote) afterID(lastID int64, limit int) *biotime.FetchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := &biotime.FetchResult{Next: biotime.Cursor{LastID: lastID}}
	for _, rec := range r.records {
		if rec.ID <= lastID {
			continue
		}
		if len(res.Records) == limit {
			res.HasMore = true
			break
		}
		res.Records = append(res.Records, rec)
		res.Next.LastID = rec.ID
	}
	return res
}

func (r *mockRemote) FetchPageCursor(ctx context.Context, token string, cursor biotime.Cursor, maxRecords int) (*biotime.FetchResult, error) {
	r.mu.Lock()
	r.cursors = append(r.cursors, cursor)
	fn := r.fetchPageCursor
	r.mu.Unlock()
	if fn != nil {
		return fn(ctx, token, cursor, maxRecords)
	}
	res := r.afterID(cursor.LastID, maxRecords)
	res.Next.Page = cursor.Page + 1
	return res, nil
}

func (r *mockRemote) ListTerminals(ctx context.Context, token string) ([]biotime.Terminal, models.TokenState, error) {
	r.mu.Lock()
	fn := r.listTerminals
	r.mu.Unlock()
	if fn != nil {
		return fn(ctx, token)
	}
	return nil, models.TokenState{Token: token}, nil
}

func (r *mockRemote) windowCalls() []biotime.WindowQuery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]biotime.WindowQuery(nil), r.windows...)
}

// punch builds a raw transaction at base + offset.
func punch(id int64, code, label, alias string, at time.Time) models.RawTransaction {
	return models.RawTransaction{
		ID:                id,
		EmpCode:           code,
		FirstName:         "Emp",
		LastName:          code,
		TerminalSN:        "SN-" + alias,
		TerminalAlias:     alias,
		PunchTime:         at.UTC().Format("2006-01-02 15:04:05"),
		PunchStateDisplay: label,
	}
}

// newTestManager wires a manager around store and remote with an in-memory
// checkpoint store and a fixed clock.
func newTestManager(t *testing.T, store *memStore, remote *mockRemote, publisher EventPublisher) (*Manager, *checkpoint.Store) {
	t.Helper()
	cps, err := checkpoint.Open(config.CheckpointConfig{InMemory: true})
	if err != nil {
		t.Fatalf("checkpoint.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = cps.Close() })

	m := NewManager(store, cps, publisher, func(models.ConnectorConfig) RemoteClient { return remote }, newTestConfig())
	m.now = func() time.Time { return testNow }
	return m, cps
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.CheckinEvent
	err    error
}

func (p *recordingPublisher) PublishCheckin(_ context.Context, ev *models.CheckinEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, *ev)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func transientErr(msg string) error {
	return &biotime.APIError{Kind: biotime.ErrRemoteUnavailable, Endpoint: "transactions", StatusCode: 503, Body: msg}
}

func fatalErr(status int) error {
	return &biotime.APIError{Kind: biotime.ErrFatal, Endpoint: "transactions", StatusCode: status, Body: fmt.Sprintf("status %d", status)}
}
