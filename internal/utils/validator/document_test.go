package validator

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/review-automation/pkg/logger"
)

// minimalPDF builds a valid PDF with the given number of empty pages.
func minimalPDF(pages int) []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
	}
	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	objects = append(objects, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		objects = append(objects, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestValidateFileAcceptsPDF(t *testing.T) {
	v := NewDocumentValidator(logger.NewNop(), nil)

	result, err := v.ValidateFile(writeFile(t, "report.pdf", minimalPDF(2)))
	require.NoError(t, err)

	assert.True(t, result.IsValid, "%v", result.Errors)
	assert.Equal(t, "report.pdf", result.FileInfo.Filename)
	assert.Equal(t, "application/pdf", result.FileInfo.MimeType)
	assert.Equal(t, 2, result.FileInfo.Pages)
	assert.Len(t, result.FileInfo.Hash, 64)
}

func TestPreflight(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		data     []byte
		config   *ValidatorConfig
		wantCode string
	}{
		{name: "valid", file: "a.pdf", data: minimalPDF(1)},
		{name: "empty", file: "a.pdf", data: nil, wantCode: "EMPTY_FILE"},
		{name: "not a pdf", file: "a.pdf", data: []byte("hello, plain text"), wantCode: "INVALID_MIME_TYPE"},
		{name: "wrong extension", file: "a.txt", data: minimalPDF(1), wantCode: "INVALID_FILE_TYPE"},
		{name: "truncated", file: "a.pdf", data: minimalPDF(1)[:40], wantCode: "CORRUPT_PDF"},
		{
			name:     "too many pages",
			file:     "a.pdf",
			data:     minimalPDF(3),
			config:   &ValidatorConfig{AllowedTypes: DefaultConfig().AllowedTypes, MaxPageCount: 2},
			wantCode: "TOO_MANY_PAGES",
		},
		{
			name:     "too large",
			file:     "a.pdf",
			data:     minimalPDF(1),
			config:   &ValidatorConfig{AllowedTypes: DefaultConfig().AllowedTypes, MaxFileSize: 10},
			wantCode: "FILE_TOO_LARGE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewDocumentValidator(logger.NewNop(), tt.config)
			err := v.Preflight(writeFile(t, tt.file, tt.data))
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantCode)
		})
	}
}

func TestPreflightMissingFile(t *testing.T) {
	v := NewDocumentValidator(logger.NewNop(), nil)
	assert.Error(t, v.Preflight(filepath.Join(t.TempDir(), "missing.pdf")))
}
