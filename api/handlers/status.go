package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/review-automation/internal/service/review"
	"github.com/feichai0017/review-automation/pkg/logger"
	"github.com/feichai0017/review-automation/pkg/report"
)

// SnapshotSource 当前批次的进度来源
type SnapshotSource interface {
	Snapshot() review.Snapshot
}

// ProcessedSource 报告文件位置
type ProcessedSource interface {
	Path() string
}

type StatusHandler struct {
	tracker SnapshotSource
	reports ProcessedSource
	logger  logger.Logger
}

// ProcessedResponse 已处理文档响应
type ProcessedResponse struct {
	Report string   `json:"report"`
	Count  int      `json:"count"`
	Files  []string `json:"files"`
}

func NewStatusHandler(tracker SnapshotSource, reports ProcessedSource, logger logger.Logger) *StatusHandler {
	return &StatusHandler{
		tracker: tracker,
		reports: reports,
		logger:  logger,
	}
}

// Health 健康检查
func (h *StatusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetStatus 获取当前批次状态
func (h *StatusHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.tracker.Snapshot())
}

// ListProcessed 列出报告中已处理的文档
// Reads the file without the writer lock so workers appending blocks are
// never stalled by a status request.
func (h *StatusHandler) ListProcessed(c *gin.Context) {
	processed := report.ListProcessed(h.reports.Path(), h.logger)
	files := make([]string, 0, len(processed))
	for name := range processed {
		files = append(files, name)
	}
	sort.Strings(files)

	h.logger.Debug("Listed processed documents",
		logger.String("path", c.Request.URL.Path),
		logger.Int("count", len(files)),
	)
	c.JSON(http.StatusOK, ProcessedResponse{
		Report: h.reports.Path(),
		Count:  len(files),
		Files:  files,
	})
}
