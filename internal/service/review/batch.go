// Package review runs batches of documents through the remote review
// application: discovery, per-document tasks, aggregation and notification.
package review

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/review-automation/internal/models"
	"github.com/feichai0017/review-automation/pkg/claim"
	"github.com/feichai0017/review-automation/pkg/logger"
	"github.com/feichai0017/review-automation/pkg/worker"
)

// ErrSourceDirMissing is returned when the configured document directory
// does not exist.
var ErrSourceDirMissing = errors.New("source directory does not exist")

// Processor runs one document to a terminal state.
type Processor interface {
	Process(ctx context.Context, name string) Outcome
}

// ProcessedLister exposes the shared report.
type ProcessedLister interface {
	Processed() map[string]struct{}
	Path() string
}

// Notifier delivers the end-of-batch summary.
type Notifier interface {
	Send(ctx context.Context, subject, body, attachment string)
}

// BatchConfig 批处理配置
type BatchConfig struct {
	SourceDir string
	Workers   int
	// ArchiveFiles are uploaded with every archived run.
	ArchiveFiles []string
}

// Summary is the aggregate result of one Run.
type Summary struct {
	RunID       string
	Total       int
	Skipped     int
	Succeeded   []string
	Failed      []string
	Duration    time.Duration
	NothingToDo bool
	Interrupted bool
	Cause       error
}

type Batch struct {
	config   *BatchConfig
	proc     Processor
	reports  ProcessedLister
	notifier Notifier
	claims   claim.Claimer
	archiver *Archiver
	tracker  *Tracker
	logger   logger.Logger
	now      func() time.Time
}

type BatchOption func(*Batch)

func WithNotifier(n Notifier) BatchOption {
	return func(b *Batch) { b.notifier = n }
}

func WithClaimer(c claim.Claimer) BatchOption {
	return func(b *Batch) { b.claims = c }
}

func WithArchiver(a *Archiver) BatchOption {
	return func(b *Batch) { b.archiver = a }
}

func WithTracker(t *Tracker) BatchOption {
	return func(b *Batch) { b.tracker = t }
}

func NewBatch(cfg *BatchConfig, proc Processor, reports ProcessedLister, log logger.Logger, opts ...BatchOption) *Batch {
	b := &Batch{
		config:  cfg,
		proc:    proc,
		reports: reports,
		claims:  claim.Local{},
		tracker: NewTracker(),
		logger:  log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Tracker returns the progress tracker of the batch.
func (b *Batch) Tracker() *Tracker {
	return b.tracker
}

// Run processes every new document of the source directory once. A nil
// error with Summary.Interrupted set means ctx ended before all documents
// were submitted.
func (b *Batch) Run(ctx context.Context) (*Summary, error) {
	dir := b.config.SourceDir
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		b.logger.Error("PDF directory not found", logger.String("dir", dir))
		return nil, fmt.Errorf("%w: %s", ErrSourceDirMissing, dir)
	}

	all, err := discover(dir)
	if err != nil {
		return nil, err
	}

	processed := b.reports.Processed()
	todo := make([]string, 0, len(all))
	for _, name := range all {
		if _, done := processed[name]; !done {
			todo = append(todo, name)
		}
	}

	summary := &Summary{
		RunID:   uuid.NewString(),
		Skipped: len(all) - len(todo),
	}
	if summary.Skipped > 0 {
		b.logger.Info(fmt.Sprintf("Skipping %d files already present in %s", summary.Skipped, b.reports.Path()))
	}

	todo = b.claim(ctx, todo)
	if len(todo) == 0 {
		b.logger.Info("No new PDF files to process in directory: " + dir)
		summary.NothingToDo = true
		return summary, nil
	}

	summary.Total = len(todo)
	b.logger.Info(fmt.Sprintf("Found %d PDF(s) to process in '%s'", len(todo), dir), logger.String("run_id", summary.RunID))
	for _, name := range todo {
		b.logger.Info("- " + name)
	}

	start := b.now()
	b.tracker.Start(summary.RunID, start, todo)

	pool := worker.NewPool[Outcome](&worker.Config{Concurrency: b.config.Workers}, b.handle, panicked, b.logger)
	b.logger.Info(fmt.Sprintf("Starting parallel processing with %d workers...", pool.Concurrency()))

	finished := make(map[string]bool, len(todo))
	for out := range pool.Run(ctx, todo) {
		finished[out.Name] = true
		if out.Succeeded {
			summary.Succeeded = append(summary.Succeeded, out.Name)
			b.tracker.Set(out.Name, models.StateSucceeded)
		} else {
			summary.Failed = append(summary.Failed, out.Name)
			b.tracker.Set(out.Name, models.StateFailed)
		}
		b.release(ctx, out.Name)
	}
	// Documents the pool never started must not stay claimed until the TTL.
	for _, name := range todo {
		if !finished[name] {
			b.release(ctx, name)
		}
	}

	summary.Duration = b.now().Sub(start)
	if ctx.Err() != nil {
		summary.Interrupted = true
		summary.Cause = context.Cause(ctx)
		b.logger.Error("Critical error in batch execution", logger.Error(summary.Cause))
	}
	b.tracker.Finish()

	// The run's own context may be gone; follow-up work still gets a bounded window.
	after, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Minute)
	defer cancel()

	if b.archiver != nil {
		files := append([]string{b.reports.Path()}, b.config.ArchiveFiles...)
		b.archiver.Archive(after, summary, dir, files...)
	}
	if b.notifier != nil {
		subject, body := SummaryMail(summary)
		b.notifier.Send(after, subject, body, b.reports.Path())
	}

	b.logger.Info("All reviews complete.",
		logger.Int("succeeded", len(summary.Succeeded)),
		logger.Int("failed", len(summary.Failed)),
		logger.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (b *Batch) handle(ctx context.Context, name string) Outcome {
	b.tracker.Set(name, models.StateInFlight)
	return b.proc.Process(ctx, name)
}

func panicked(name string, err error) Outcome {
	return Outcome{Name: name, Err: err}
}

// claim drops documents another runner owns. Claim errors are logged and the
// document is kept.
func (b *Batch) claim(ctx context.Context, names []string) []string {
	kept := names[:0]
	for _, name := range names {
		ok, err := b.claims.Claim(ctx, name)
		if err != nil {
			b.logger.Warn("Failed to claim document, processing anyway", logger.String("file", name), logger.Error(err))
			ok = true
		}
		if ok {
			kept = append(kept, name)
		}
	}
	return kept
}

func (b *Batch) release(ctx context.Context, name string) {
	if err := b.claims.Release(context.WithoutCancel(ctx), name); err != nil {
		b.logger.Warn("Failed to release claim", logger.String("file", name), logger.Error(err))
	}
}

// SummaryMail renders the end-of-batch email.
func SummaryMail(s *Summary) (subject, body string) {
	if s.Interrupted {
		return "Critical Error in Batch Processing",
			fmt.Sprintf("The batch run encountered a critical error and stopped.\nError: %v", s.Cause)
	}

	var sb strings.Builder
	sb.WriteString("Batch Processing Report\n")
	sb.WriteString("=======================\n\n")
	fmt.Fprintf(&sb, "Total Files: %d\n", s.Total)
	fmt.Fprintf(&sb, "Duration: %s\n", s.Duration.Round(time.Second))
	fmt.Fprintf(&sb, "Successful: %d\n", len(s.Succeeded))
	fmt.Fprintf(&sb, "Failed: %d\n\n", len(s.Failed))
	if len(s.Failed) > 0 {
		sb.WriteString("Failed Files:\n")
		for _, f := range s.Failed {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
	} else {
		sb.WriteString("All files processed successfully.\n")
	}

	return fmt.Sprintf("Batch Processing Complete - %d/%d Success", len(s.Succeeded), s.Total), sb.String()
}
