package handlers

import (
	"github.com/feichai0017/review-automation/pkg/logger"
)

type Handlers struct {
	Status *StatusHandler
}

func NewHandlers(
	tracker SnapshotSource,
	reports ProcessedSource,
	logger logger.Logger,
) *Handlers {
	return &Handlers{
		Status: NewStatusHandler(tracker, reports, logger),
	}
}
