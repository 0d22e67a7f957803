package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/lorekeeper/extractor/internal/app"
	"github.com/lorekeeper/extractor/internal/common"
	"github.com/lorekeeper/extractor/internal/core/types"
	"github.com/lorekeeper/extractor/internal/storage/sqlite"
)

func testApp(t *testing.T) *app.App {
	t.Helper()
	cfg := common.DefaultConfig()
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "test.db")

	logger := arbor.NewLogger()
	db, err := sqlite.Open(cfg.Storage.SQLitePath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &app.App{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Selectors: sqlite.NewSelectorStore(db),
		Decisions: sqlite.NewDecisionLogStore(db),
		CostStore: sqlite.NewCostMeterStore(db),
	}
}

func TestHandleHealthz_OKWhenDBReachable(t *testing.T) {
	srv := New(testApp(t))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleCost_ReturnsSummaryJSON(t *testing.T) {
	application := testApp(t)
	require.NoError(t, application.CostStore.Append(context.Background(), &types.CostMetric{
		Provider: "claude", Model: "m", TotalCost: 0.05,
	}))

	srv := New(application)
	req := httptest.NewRequest(http.MethodGet, "/cost", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var summary map[string]float64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.InDelta(t, 0.05, summary["claude"], 1e-9)
}

func TestHandleCost_RejectsNonGET(t *testing.T) {
	srv := New(testApp(t))
	req := httptest.NewRequest(http.MethodPost, "/cost", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleDecisions_RequiresSiteParam(t *testing.T) {
	srv := New(testApp(t))
	req := httptest.NewRequest(http.MethodGet, "/decisions", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleDecisions_ReturnsEntriesForSite(t *testing.T) {
	application := testApp(t)
	require.NoError(t, application.Decisions.Append(context.Background(), &types.DecisionLogEntry{
		URL: "https://example.test/a", Site: "example.test", UseCase: types.UseCaseUC2,
		ConsensusTier: types.TierHigh, FinalAction: types.ActionAccept,
	}))

	srv := New(application)
	req := httptest.NewRequest(http.MethodGet, "/decisions?site=example.test", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var entries []types.DecisionLogEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "example.test", entries[0].Site)
}

func TestHandleExtract_RejectsMissingURL(t *testing.T) {
	srv := New(testApp(t))
	req := httptest.NewRequest(http.MethodPost, "/extract", strings.NewReader(`{"site":"example.test"}`))
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleExtract_RejectsMalformedBody(t *testing.T) {
	srv := New(testApp(t))
	req := httptest.NewRequest(http.MethodPost, "/extract", strings.NewReader(`not json`))
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleExtract_RejectsNonPOST(t *testing.T) {
	srv := New(testApp(t))
	req := httptest.NewRequest(http.MethodGet, "/extract", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
