package review

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/feichai0017/review-automation/internal/agent/navigator"
	"github.com/feichai0017/review-automation/internal/browser"
	"github.com/feichai0017/review-automation/pkg/logger"
)

const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// ErrTaskTimeout is the cancellation cause of an attempt that ran past its
// wall-clock budget.
var ErrTaskTimeout = errors.New("task timed out")

// Navigator is the part of navigator.Navigator a Task drives.
type Navigator interface {
	Login(ctx context.Context, sess browser.Session, endpoint string, creds navigator.Credentials) error
	Review(ctx context.Context, sess browser.Session, path string) error
	Logout(ctx context.Context, sess browser.Session) error
}

// Preflighter rejects documents before any session is opened.
type Preflighter interface {
	Preflight(path string) error
}

// TaskConfig 单个文档任务配置
type TaskConfig struct {
	SourceDir   string
	Endpoint    string
	Credentials navigator.Credentials
	Timeout     time.Duration
	MaxRetries  int
}

// Outcome is the terminal result of one document.
type Outcome struct {
	Name      string
	Succeeded bool
	Attempts  int
	Err       error
}

// Task owns the lifecycle of single documents: session, login, review,
// timeout retry and the final file move.
type Task struct {
	config    *TaskConfig
	opener    browser.Opener
	nav       Navigator
	preflight Preflighter
	logger    logger.Logger
}

func NewTask(cfg *TaskConfig, opener browser.Opener, nav Navigator, log logger.Logger) *Task {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1200 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Task{
		config: cfg,
		opener: opener,
		nav:    nav,
		logger: log,
	}
}

// WithPreflight sets a validator run once before the first attempt.
func (t *Task) WithPreflight(p Preflighter) *Task {
	t.preflight = p
	return t
}

// Process runs name to a terminal state. Only timeouts are retried; any
// other failure ends the document immediately. The file ends up in exactly
// one of the processed or failed directories.
func (t *Task) Process(ctx context.Context, name string) Outcome {
	path := filepath.Join(t.config.SourceDir, name)
	log := t.logger.With(logger.String("file", name))
	out := Outcome{Name: name}

	log.Debug("Starting processing")

	if t.preflight != nil {
		if err := t.preflight.Preflight(path); err != nil {
			log.Error("Document rejected by preflight", logger.Error(err))
			out.Err = err
			t.moveToFailed(path, log)
			return out
		}
	}

	attempts := t.config.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		out.Attempts = attempt + 1
		err := t.attempt(ctx, path, log)
		if err == nil {
			out.Succeeded = true
			out.Err = nil
			break
		}

		out.Err = err
		log.Error("Error processing document", logger.Int("attempt", attempt+1), logger.Error(err))
		if !errors.Is(err, ErrTaskTimeout) {
			break
		}
		if attempt == attempts-1 {
			log.Error("Max retries reached due to timeout")
			break
		}
		if ctx.Err() != nil {
			break
		}
		log.Info("Timeout occurred, retrying",
			logger.Int("attempt", attempt+2),
			logger.Int("max_attempts", attempts),
		)
	}

	if !out.Succeeded {
		t.moveToFailed(path, log)
	}
	return out
}

// attempt runs one session from open to quit. The session is torn down when
// the attempt budget expires, which unblocks any wait in progress.
func (t *Task) attempt(ctx context.Context, path string, log logger.Logger) error {
	attemptCtx, cancel := context.WithTimeoutCause(ctx, t.config.Timeout, ErrTaskTimeout)
	defer cancel()

	sess, err := t.opener.Open(attemptCtx)
	if err != nil {
		return classify(attemptCtx, fmt.Errorf("failed to open browser session: %w", err))
	}

	stop := context.AfterFunc(attemptCtx, func() {
		if timedOut(attemptCtx) {
			log.Warn("Task timed out, terminating session", logger.Duration("timeout", t.config.Timeout))
		}
		_ = sess.Quit()
	})
	defer func() {
		stop()
		if err := sess.Quit(); err != nil {
			log.Warn("Failed to quit browser session", logger.Error(err))
		}
	}()

	if err := t.nav.Login(attemptCtx, sess, t.config.Endpoint, t.config.Credentials); err != nil {
		return classify(attemptCtx, fmt.Errorf("failed to log in: %w", err))
	}

	err = t.nav.Review(attemptCtx, sess, path)
	// The budget may expire after Review returned; that still counts.
	if timedOut(attemptCtx) {
		return fmt.Errorf("%w during processing", ErrTaskTimeout)
	}
	if err != nil {
		return err
	}

	if dst, err := moveFile(path, filepath.Join(t.config.SourceDir, ProcessedDir)); err != nil {
		log.Error("Failed to move file to processed directory", logger.Error(err))
	} else {
		log.Info("Moved file", logger.String("to", dst))
	}

	if err := t.nav.Logout(attemptCtx, sess); err != nil {
		log.Warn("Logout failed", logger.Error(err))
	} else {
		log.Info("Logout successful")
	}
	return nil
}

func (t *Task) moveToFailed(path string, log logger.Logger) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	dst, err := moveFile(path, filepath.Join(t.config.SourceDir, FailedDir))
	if err != nil {
		log.Error("Failed to move file to failed directory", logger.Error(err))
		return
	}
	log.Info("Moved file", logger.String("to", dst))
}

func timedOut(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrTaskTimeout)
}

func classify(ctx context.Context, err error) error {
	if timedOut(ctx) && !errors.Is(err, ErrTaskTimeout) {
		return fmt.Errorf("%w: %v", ErrTaskTimeout, err)
	}
	return err
}
