package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/review-automation/internal/service/review"
	"github.com/feichai0017/review-automation/pkg/logger"
)

// reportFile only knows where the report is; it has no lock to take.
type reportFile string

func (r reportFile) Path() string { return string(r) }

func TestListProcessedReadsReportFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "review_log.txt")
	require.NoError(t, os.WriteFile(path, []byte(
		"File Name: b.pdf\nRetries: 0\n\nFile Name: a.pdf\nFile Name: b.pdf\n"), 0o644))

	h := NewStatusHandler(review.NewTracker(), reportFile(path), logger.NewNop())
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/batch/processed", nil)

	h.ListProcessed(c)

	require.Equal(t, http.StatusOK, w.Code)
	var resp ProcessedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ProcessedResponse{Report: path, Count: 2, Files: []string{"a.pdf", "b.pdf"}}, resp)
}

func TestListProcessedMissingReport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "none.txt")
	h := NewStatusHandler(review.NewTracker(), reportFile(path), logger.NewNop())
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/batch/processed", nil)

	h.ListProcessed(c)

	require.Equal(t, http.StatusOK, w.Code)
	var resp ProcessedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Zero(t, resp.Count)
	assert.Empty(t, resp.Files)
}
