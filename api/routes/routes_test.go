package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/review-automation/api/handlers"
	"github.com/feichai0017/review-automation/internal/models"
	"github.com/feichai0017/review-automation/internal/service/review"
	"github.com/feichai0017/review-automation/pkg/logger"
	"github.com/feichai0017/review-automation/pkg/report"
)

func newRouter(t *testing.T) (*gin.Engine, *review.Tracker, *report.Writer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tracker := review.NewTracker()
	reports := report.NewWriter(filepath.Join(t.TempDir(), report.FileName), logger.NewNop())

	r := gin.New()
	SetupRoutes(r, handlers.NewHandlers(tracker, reports, logger.NewNop()))
	return r, tracker, reports
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Origin", "http://dashboard.local")
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r, _, _ := newRouter(t)

	w := get(r, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestBatchStatus(t *testing.T) {
	r, tracker, _ := newRouter(t)
	tracker.Start("run-1", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), []string{"a.pdf", "b.pdf"})
	tracker.Set("a.pdf", models.StateInFlight)

	w := get(r, "/api/v1/batch/status")
	require.Equal(t, http.StatusOK, w.Code)

	var snap review.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "run-1", snap.RunID)
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, []string{"a.pdf"}, snap.InFlight)
	assert.Equal(t, []string{"b.pdf"}, snap.Pending)
	assert.False(t, snap.Done)
}

func TestBatchProcessed(t *testing.T) {
	r, _, reports := newRouter(t)
	now := time.Now()
	reports.Append(report.Entry{FileName: "b.pdf", Start: now, End: now})
	reports.Append(report.Entry{FileName: "a.pdf", Start: now, End: now})

	w := get(r, "/api/v1/batch/processed")
	require.Equal(t, http.StatusOK, w.Code)

	var resp handlers.ProcessedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, resp.Files)
	assert.Equal(t, reports.Path(), resp.Report)
}

func TestUnknownRoute(t *testing.T) {
	r, _, _ := newRouter(t)
	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/documents/process").Code)
}
