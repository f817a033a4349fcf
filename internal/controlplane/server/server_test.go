package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/skinscan/internal/audit"
	"github.com/betbot/skinscan/internal/domain"
	"github.com/betbot/skinscan/internal/signal"
	"github.com/betbot/skinscan/internal/source"
	"github.com/betbot/skinscan/internal/whitelist"
)

type staticSource struct{ st source.Status }

func (s staticSource) Status() source.Status { return s.st }

type fixture struct {
	srv     *httptest.Server
	wl      *whitelist.Store
	journal *signal.Journal
	audit   *audit.Store
}

func newFixture(t *testing.T, src SourceStatus) *fixture {
	t.Helper()
	dir := t.TempDir()
	j, err := signal.NewJournal(filepath.Join(dir, "signals"))
	require.NoError(t, err)
	a, err := audit.Open(filepath.Join(dir, "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	wl := whitelist.NewStore(filepath.Join(dir, "whitelist.json"))

	s, err := New(Config{Whitelist: wl, Signals: j, Audit: a, Source: src})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return &fixture{srv: ts, wl: wl, journal: j, audit: a}
}

func (f *fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthzAndMetrics(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusOK, f.get(t, "/healthz", nil))

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWhitelistEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	var errBody map[string]string
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/whitelist", &errBody))
	assert.NotEmpty(t, errBody["error"])

	require.NoError(t, f.wl.Save(whitelist.Document{
		BatchID: "b1",
		Total:   2,
		Items: []whitelist.Entry{
			{ID: "1", Name: "AK", Tier: domain.TierS, BuyLimit: decimal.NewFromInt(180)},
			{ID: "2", Name: "M4", Tier: domain.TierC, BuyLimit: decimal.NewFromInt(90)},
		},
	}))

	var doc whitelist.Document
	require.Equal(t, http.StatusOK, f.get(t, "/api/whitelist", &doc))
	assert.Equal(t, "b1", doc.BatchID)
	assert.Len(t, doc.Items, 2)

	require.Equal(t, http.StatusOK, f.get(t, "/api/whitelist?tier=s", &doc))
	require.Len(t, doc.Items, 1)
	assert.Equal(t, "1", doc.Items[0].ID)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/whitelist?tier=X", nil))
}

func TestSignalsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	at := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	require.NoError(t, f.journal.Append(domain.Signal{
		ID: "s1", ItemID: "1", Name: "AK", TargetPrice: decimal.RequireFromString("180.00"), Tier: domain.TierA, CreatedAt: at,
	}))

	var body struct {
		Day     string          `json:"day"`
		Total   int             `json:"total"`
		Signals []domain.Signal `json:"signals"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/signals?day=2026-10-15", &body))
	assert.Equal(t, 1, body.Total)
	assert.Equal(t, "s1", body.Signals[0].ID)

	require.Equal(t, http.StatusOK, f.get(t, "/api/signals?day=2026-10-14", &body))
	assert.Equal(t, 0, body.Total)
	assert.NotNil(t, body.Signals)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/signals?day=15-10-2026", nil))

	var days []string
	require.Equal(t, http.StatusOK, f.get(t, "/api/signals/days", &days))
	assert.Equal(t, []string{"2026-10-15"}, days)
}

func TestScansEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, f.audit.RecordBatch(ctx, audit.Batch{BatchID: "b1", StartedAt: now, FinishedAt: now, Total: 2, Accepted: 1}, []domain.Candidate{
		domain.NewCandidate(domain.RawMarketRecord{ID: "1", Name: "AK"}).WithTier(domain.TierB, 1),
		domain.NewCandidate(domain.RawMarketRecord{ID: "2", Name: "M4"}).Reject("liquidity", "出租数 3 低于下限 30"),
	}))

	var batches []audit.Batch
	require.Equal(t, http.StatusOK, f.get(t, "/api/scans", &batches))
	require.Len(t, batches, 1)
	assert.Equal(t, "b1", batches[0].BatchID)

	var detail struct {
		Rejections map[string]int  `json:"rejections"`
		Outcomes   []audit.Outcome `json:"outcomes"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/scans/b1", &detail))
	assert.Equal(t, map[string]int{"liquidity": 1}, detail.Rejections)
	assert.Len(t, detail.Outcomes, 2)

	require.Equal(t, http.StatusOK, f.get(t, "/api/scans/b1?stage=liquidity", &detail))
	require.Len(t, detail.Outcomes, 1)
	assert.Equal(t, "2", detail.Outcomes[0].ItemID)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/scans/nope", nil))
}

func TestSourceAndSchedulerEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/api/source", nil))
	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/api/scheduler", nil))

	f = newFixture(t, staticSource{st: source.Status{State: "bound", BoundIP: "10.0.0.1"}})
	var st source.Status
	require.Equal(t, http.StatusOK, f.get(t, "/api/source", &st))
	assert.Equal(t, "bound", st.State)
	assert.Equal(t, "10.0.0.1", st.BoundIP)
}
