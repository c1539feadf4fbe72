package review

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/feichai0017/review-automation/pkg/logger"
	"github.com/feichai0017/review-automation/pkg/storage"
)

// Archiver copies the artifacts of a finished run to object storage under
// <prefix>/<run id>/.
type Archiver struct {
	store     storage.Storage
	prefix    string
	retention time.Duration
	logger    logger.Logger
	now       func() time.Time
}

func NewArchiver(store storage.Storage, prefix string, retention time.Duration, log logger.Logger) *Archiver {
	return &Archiver{
		store:     store,
		prefix:    strings.Trim(prefix, "/"),
		retention: retention,
		logger:    log,
		now:       time.Now,
	}
}

// Archive uploads every file in files plus the documents the run moved, then
// expires objects older than the retention period. Failures are logged and
// the number of uploaded objects is returned.
func (a *Archiver) Archive(ctx context.Context, s *Summary, sourceDir string, files ...string) int {
	base := path.Join(a.prefix, s.RunID)
	uploaded := 0

	upload := func(local, key string) {
		if err := a.upload(ctx, local, key); err != nil {
			a.logger.Error("Failed to archive file", logger.String("key", key), logger.Error(err))
			return
		}
		uploaded++
	}

	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		upload(f, path.Join(base, filepath.Base(f)))
	}
	for _, name := range s.Succeeded {
		upload(filepath.Join(sourceDir, ProcessedDir, name), path.Join(base, ProcessedDir, name))
	}
	for _, name := range s.Failed {
		upload(filepath.Join(sourceDir, FailedDir, name), path.Join(base, FailedDir, name))
	}

	if a.retention > 0 {
		a.expire(ctx)
	}

	a.logger.Info("Run archived", logger.String("prefix", base), logger.Int("objects", uploaded))
	return uploaded
}

// expire deletes runs older than the retention period. Only keys under the
// archive prefix are swept; without a prefix nothing is deleted.
func (a *Archiver) expire(ctx context.Context) {
	if a.prefix == "" {
		a.logger.Warn("Archive retention needs a prefix, skipping expiry")
		return
	}
	if err := a.store.CleanupBefore(ctx, a.prefix+"/", a.now().Add(-a.retention)); err != nil {
		a.logger.Warn("Failed to expire archived runs", logger.Error(err))
	}
}

func (a *Archiver) upload(ctx context.Context, local, key string) error {
	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", local, err)
	}
	defer f.Close()

	if _, err := a.store.Store(ctx, f, key); err != nil {
		return err
	}
	return nil
}
