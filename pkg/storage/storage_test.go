package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	cfg "github.com/feichai0017/review-automation/config"
	"github.com/feichai0017/review-automation/pkg/logger"
)

func TestNewStorageRejectsUnknownType(t *testing.T) {
	_, err := NewStorage(context.Background(), cfg.ArchiveConfig{Type: "gcs"}, logger.NewNop())
	assert.ErrorContains(t, err, "unsupported storage type: gcs")
}
