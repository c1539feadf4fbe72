// Package report appends human-readable review blocks to the shared report
// file and reads back which documents it already covers.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/feichai0017/review-automation/internal/models"
	"github.com/feichai0017/review-automation/pkg/logger"
)

const (
	// FileName is the report file name inside the report directory.
	FileName = "review_log.txt"

	fileNamePrefix = "File Name: "
	timeLayout     = "2006-01-02 15:04:05"
	clockLayout    = "15:04:05"
	noMessages     = "- No validation messages captured."
)

// Entry is one report block.
type Entry struct {
	FileName string
	Start    time.Time
	End      time.Time
	Retries  int
	Sections []models.SectionLog
}

// Writer serializes appends to a single report file.
type Writer struct {
	mu     sync.Mutex
	path   string
	logger logger.Logger
}

func NewWriter(path string, log logger.Logger) *Writer {
	return &Writer{path: path, logger: log}
}

// Path returns the report file path.
func (w *Writer) Path() string {
	return w.path
}

// Append writes entry as one block. Errors are logged, never returned.
func (w *Writer) Append(entry Entry) {
	if err := w.append(entry); err != nil {
		w.logger.Error("Error creating log report",
			logger.String("path", w.path),
			logger.String("file", entry.FileName),
			logger.Error(err),
		)
		return
	}
	w.logger.Debug("Log report appended", logger.String("path", w.path))
}

func (w *Writer) append(entry Entry) error {
	block := Format(entry)

	w.mu.Lock()
	defer w.mu.Unlock()

	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open report: %w", err)
	}
	if _, err := f.WriteString(block); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}

// Processed lists the documents recorded so far. It takes the append lock so
// it observes every block appended before the call.
func (w *Writer) Processed() map[string]struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ListProcessed(w.path, w.logger)
}

// Format renders entry in the report block layout.
func Format(entry Entry) string {
	var b strings.Builder
	b.WriteString("\n" + strings.Repeat("=", 80) + "\n\n")
	b.WriteString("Appraisal Review Log Report\n")
	b.WriteString(strings.Repeat("=", 30) + "\n\n")
	fmt.Fprintf(&b, "%s%s\n", fileNamePrefix, filepath.Base(entry.FileName))
	fmt.Fprintf(&b, "Start Time: %s\n", entry.Start.Format(timeLayout))
	fmt.Fprintf(&b, "End Time: %s\n", entry.End.Format(timeLayout))
	fmt.Fprintf(&b, "Retries: %d\n\n", entry.Retries)
	for _, section := range entry.Sections {
		fmt.Fprintf(&b, "--- %s ---\n", section.Name)
		if len(section.Messages) == 0 {
			b.WriteString(noMessages + "\n")
		}
		for _, m := range section.Messages {
			fmt.Fprintf(&b, "[%s] - %s\n", m.At.Format(clockLayout), m.Text)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ListProcessed returns the file names recorded in the report at path.
// A missing file yields an empty set; unreadable content is logged.
func ListProcessed(path string, log logger.Logger) map[string]struct{} {
	processed := make(map[string]struct{})

	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Error("Error reading report file", logger.String("path", path), logger.Error(err))
		}
		return processed
	}
	defer f.Close()

	// bufio.Reader rather than Scanner: a single huge line must not stop the scan.
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if name, ok := parseFileName(line); ok {
			processed[name] = struct{}{}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Error("Error reading report file", logger.String("path", path), logger.Error(err))
			}
			break
		}
	}
	return processed
}

func parseFileName(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, fileNamePrefix) {
		return "", false
	}
	name := strings.TrimSpace(strings.TrimPrefix(line, fileNamePrefix))
	if name == "" {
		return "", false
	}
	return name, true
}
