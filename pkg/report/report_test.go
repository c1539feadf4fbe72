package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/review-automation/internal/models"
	"github.com/feichai0017/review-automation/pkg/logger"
)

func sampleEntry(name string) Entry {
	at := time.Date(2024, 3, 1, 9, 30, 5, 0, time.Local)
	return Entry{
		FileName: filepath.Join("/data/pdfs", name),
		Start:    at,
		End:      at.Add(90 * time.Second),
		Retries:  2,
		Sections: []models.SectionLog{
			{Name: "Subject", Messages: []models.Message{{At: at, Text: "APN missing"}}},
			{Name: "Contract", Messages: []models.Message{}},
		},
	}
}

func TestFormat(t *testing.T) {
	want := "\n" + strings.Repeat("=", 80) + "\n\n" +
		"Appraisal Review Log Report\n" +
		strings.Repeat("=", 30) + "\n\n" +
		"File Name: a.pdf\n" +
		"Start Time: 2024-03-01 09:30:05\n" +
		"End Time: 2024-03-01 09:31:35\n" +
		"Retries: 2\n\n" +
		"--- Subject ---\n" +
		"[09:30:05] - APN missing\n\n" +
		"--- Contract ---\n" +
		"- No validation messages captured.\n\n"

	assert.Equal(t, want, Format(sampleEntry("a.pdf")))
}

func TestAppendCreatesDirectoryAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "reports", FileName)
	w := NewWriter(path, logger.NewNop())

	w.Append(sampleEntry("a.pdf"))
	w.Append(sampleEntry("b.pdf"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Format(sampleEntry("a.pdf"))+Format(sampleEntry("b.pdf")), string(data))
	assert.Equal(t, map[string]struct{}{"a.pdf": {}, "b.pdf": {}}, w.Processed())
}

func TestAppendFailureIsLogged(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	log := logger.NewTestLogger()
	w := NewWriter(filepath.Join(blocker, FileName), log)

	assert.NotPanics(t, func() { w.Append(sampleEntry("a.pdf")) })
	assert.True(t, log.Contains("ERROR", "Error creating log report"))
}

func TestConcurrentAppendsAreNotInterleaved(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	w := NewWriter(path, logger.NewNop())

	const writers = 32
	sections := []string{"Subject", "Base Info", "Contract", "Neighborhood", "Custom Analysis"}

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry := Entry{FileName: fmt.Sprintf("doc-%02d.pdf", i), Start: time.Now(), End: time.Now()}
			for _, name := range sections {
				msgs := make([]models.Message, 0, 20)
				for j := 0; j < 20; j++ {
					msgs = append(msgs, models.Message{At: time.Now(), Text: fmt.Sprintf("doc-%02d %s message %d", i, name, j)})
				}
				entry.Sections = append(entry.Sections, models.SectionLog{Name: name, Messages: msgs})
			}
			w.Append(entry)
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	rule := "\n" + strings.Repeat("=", 80) + "\n\n"
	blocks := strings.Split(string(data), rule)
	require.Equal(t, "", blocks[0])
	blocks = blocks[1:]
	require.Len(t, blocks, writers)

	for _, block := range blocks {
		name, ok := "", false
		for _, line := range strings.Split(block, "\n") {
			if name, ok = parseFileName(line); ok {
				break
			}
		}
		require.True(t, ok, "block without file name: %q", block)
		doc := strings.TrimSuffix(name, ".pdf")
		for _, section := range sections {
			assert.Contains(t, block, "--- "+section+" ---")
		}
		// every message line in the block belongs to the block's own document
		for _, line := range strings.Split(block, "\n") {
			if strings.HasPrefix(line, "[") {
				assert.Contains(t, line, doc+" ")
			}
		}
	}
	assert.Len(t, ListProcessed(path, logger.NewNop()), writers)
}

func TestListProcessed(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		log := logger.NewTestLogger()
		assert.Empty(t, ListProcessed(filepath.Join(dir, "absent.txt"), log))
		assert.Empty(t, log.GetEntries())
	})

	t.Run("garbled content", func(t *testing.T) {
		path := filepath.Join(dir, "garbled.txt")
		content := "File Name: a.pdf\n" +
			"\x00\xff\xfe broken bytes\n" +
			"File Name:\n" +
			"   File Name: b.pdf   \n" +
			strings.Repeat("x", 200*1024) + "\n" +
			"Some File Name: c.pdf\n" +
			"File Name: d.pdf"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		got := ListProcessed(path, logger.NewNop())
		assert.Equal(t, map[string]struct{}{"a.pdf": {}, "b.pdf": {}, "d.pdf": {}}, got)
	})
}
