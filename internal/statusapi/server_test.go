package statusapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/crossarb/internal/domain"
	"github.com/betbot/crossarb/internal/ledger"
)

type fakeSource struct {
	pairs []PairStatus
}

func (f *fakeSource) Pairs() []PairStatus { return f.pairs }

func testServer(t *testing.T) (*Server, *ledger.Ledger, *fakeSource) {
	t.Helper()
	lgr, err := ledger.Open(filepath.Join(t.TempDir(), "status.db"))
	require.NoError(t, err)
	t.Cleanup(func() { lgr.Close() })
	src := &fakeSource{}
	return New(src, lgr), lgr, src
}

func TestPairsEndpoint(t *testing.T) {
	s, _, src := testServer(t)
	src.pairs = []PairStatus{{
		Symbol:    "btc",
		Slug15m:   "btc-updown-15m-1700000000",
		Slug5m:    "btc-updown-5m-1700000600",
		InOverlap: true,
		SumUpDown: "0.97",
	}}

	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/pairs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Pairs []PairStatus `json:"pairs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Pairs, 1)
	assert.Equal(t, "btc", body.Pairs[0].Symbol)
	assert.True(t, body.Pairs[0].InOverlap)
}

func TestPositionsEndpoint(t *testing.T) {
	s, lgr, _ := testServer(t)
	require.NoError(t, lgr.RecordPosition(context.Background(), domain.Position{
		AssetID:     "a15u",
		ConditionID: "0xc15",
		MarketSlug:  "btc-updown-15m-1700000000",
		Side:        domain.TokenTypeUp,
		Size:        10,
		AvgPrice:    domain.PriceFromDecimal(0.48),
		AcquiredAt:  time.Unix(1700000500, 0),
	}))

	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/positions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "a15u")
}

func TestStatsEndpointEmptyLedger(t *testing.T) {
	s, _, _ := testServer(t)

	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 0, body["completed"])
}

func TestHealthz(t *testing.T) {
	s, _, _ := testServer(t)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
