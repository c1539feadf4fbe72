// Package dataset appends training samples captured during reviews to
// JSON-lines files.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/feichai0017/review-automation/pkg/converters"
	"github.com/feichai0017/review-automation/pkg/logger"
)

const (
	ValidationFile = "validation_dataset.jsonl"
	AnalysisFile   = "analysis_dataset.jsonl"
)

// Writer owns the two dataset files. Appends are serialized explicitly;
// O_APPEND atomicity is not relied upon.
type Writer struct {
	mu     sync.Mutex
	dir    string
	logger logger.Logger
	now    func() time.Time
}

func NewWriter(dir string, log logger.Logger) *Writer {
	return &Writer{dir: dir, logger: log, now: time.Now}
}

// ValidationPath returns the validation dataset file path.
func (w *Writer) ValidationPath() string {
	return filepath.Join(w.dir, ValidationFile)
}

// AnalysisPath returns the analysis dataset file path.
func (w *Writer) AnalysisPath() string {
	return filepath.Join(w.dir, AnalysisFile)
}

// SaveValidation records one validation message.
func (w *Writer) SaveValidation(pdf, section, message string) {
	rec := converters.NewValidationRecord(pdf, section, message, w.now())
	if err := w.appendJSON(w.ValidationPath(), rec); err != nil {
		w.logger.Error("Failed to save validation sample",
			logger.String("pdf", rec.PDF),
			logger.String("section", section),
			logger.Error(err),
		)
	}
}

// SaveAnalysis records one custom analysis prompt and its output.
func (w *Writer) SaveAnalysis(pdf, prompt, output string) {
	rec := converters.NewAnalysisRecord(pdf, prompt, output)
	if err := w.appendJSON(w.AnalysisPath(), rec); err != nil {
		w.logger.Error("Failed to save analysis sample",
			logger.String("pdf", filepath.Base(pdf)),
			logger.Error(err),
		)
	}
}

func (w *Writer) appendJSON(path string, v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create dataset directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open dataset: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write dataset: %w", err)
	}
	return f.Close()
}
