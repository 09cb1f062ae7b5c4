package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunterjsb/doorknock/internal/domain"
	"github.com/hunterjsb/doorknock/internal/ledger"
	"github.com/hunterjsb/doorknock/internal/metrics"
)

type fakeDB struct{ err error }

func (f fakeDB) Ping(context.Context) error { return f.err }

type fakeLeaderboard struct {
	window domain.Window
	asOf   time.Time
}

func (f *fakeLeaderboard) Rank(_ context.Context, w domain.Window, asOf time.Time) (ledger.Ranking, error) {
	f.window, f.asOf = w, asOf
	return ledger.Ranking{
		Window:  w,
		AsOf:    asOf,
		Entries: []domain.LeaderboardEntry{{UserID: "u1", Points: 4, Rank: 1}},
		Skipped: []*domain.DataIntegrityError{{Table: "deals", Key: "x", Reason: "bad"}},
	}, nil
}

type fakeSnapshots struct{ snap *domain.Snapshot }

func (f fakeSnapshots) LatestSnapshotBefore(context.Context, domain.Window, time.Time) (*domain.Snapshot, error) {
	if f.snap == nil {
		return nil, domain.ErrNotFound
	}
	return f.snap, nil
}

func (f fakeSnapshots) GetSnapshot(_ context.Context, id string) (*domain.Snapshot, error) {
	if f.snap == nil || f.snap.ID != id {
		return nil, domain.ErrNotFound
	}
	return f.snap, nil
}

func newTestServer(db fakeDB, lb *fakeLeaderboard, snaps fakeSnapshots) (*Server, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return New(Config{Log: zerolog.Nop(), DB: db, Leaderboard: lb, Snapshots: snaps, Gatherer: reg}), reg
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(fakeDB{}, &fakeLeaderboard{}, fakeSnapshots{})
	rec := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])

	s, _ = newTestServer(fakeDB{err: errors.New("locked")}, &fakeLeaderboard{}, fakeSnapshots{})
	rec = get(t, s, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLeaderboard(t *testing.T) {
	lb := &fakeLeaderboard{}
	s, _ := newTestServer(fakeDB{}, lb, fakeSnapshots{})

	rec := get(t, s, "/api/leaderboard/monthly?as_of=2026-10-14T12:00:00Z")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.Monthly, lb.window)
	assert.Equal(t, time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC), lb.asOf.UTC())

	var body leaderboardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Entries, 1)
	assert.Equal(t, 4, body.Entries[0].Points)
	assert.Equal(t, 1, body.Skipped)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/leaderboard/yearly").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/leaderboard/weekly?as_of=yesterday").Code)
}

func TestLatestSnapshot(t *testing.T) {
	s, _ := newTestServer(fakeDB{}, &fakeLeaderboard{}, fakeSnapshots{})
	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/snapshots/weekly/latest").Code)

	snap := &domain.Snapshot{ID: "s1", Window: domain.Weekly, Entries: []domain.LeaderboardEntry{{UserID: "u1", Rank: 1}}}
	s, _ = newTestServer(fakeDB{}, &fakeLeaderboard{}, fakeSnapshots{snap: snap})
	rec := get(t, s, "/api/snapshots/weekly/latest")
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "s1", got.ID)

	assert.Equal(t, http.StatusOK, get(t, s, "/api/snapshot/s1").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/snapshot/nope").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, reg := newTestServer(fakeDB{}, &fakeLeaderboard{}, fakeSnapshots{})
	m := metrics.MustNewMetrics(reg)
	m.SessionStarted()

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "doorknock_practice_sessions_started_total 1")
}
