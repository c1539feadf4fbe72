package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	cfg "github.com/feichai0017/review-automation/config"
	"github.com/feichai0017/review-automation/pkg/logger"
	"github.com/feichai0017/review-automation/pkg/storage/minio"
	"github.com/feichai0017/review-automation/pkg/storage/s3"
)

// StorageType 定义存储类型
type StorageType string

const (
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
)

// Storage is an object store that finished runs are archived to.
type Storage interface {
	// Store writes reader under key and returns the stored key.
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	// Delete removes key.
	Delete(ctx context.Context, key string) error
	// CleanupBefore removes every object under prefix last modified before
	// threshold. Objects outside prefix are never touched.
	CleanupBefore(ctx context.Context, prefix string, threshold time.Time) error
}

// NewStorage 创建存储实例的工厂方法
func NewStorage(ctx context.Context, archive cfg.ArchiveConfig, log logger.Logger) (Storage, error) {
	switch StorageType(archive.Type) {
	case StorageTypeS3:
		return s3.NewS3Storage(ctx, archive.S3, log)
	case StorageTypeMinio:
		return minio.NewMinioStorage(ctx, archive.Minio, log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", archive.Type)
	}
}
