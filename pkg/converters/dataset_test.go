package converters

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParsePromptMessage(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantName   string
		wantOutput string
		wantOK     bool
	}{
		{"well formed", "Prompt 'Zoning': Residential R-1 confirmed", "Zoning", "Residential R-1 confirmed", true},
		{"colon in output", "Prompt 'Dates': effective 2024-01-01: ok", "Dates", "effective 2024-01-01: ok", true},
		{"empty output", "Prompt 'GLA':", "GLA", "", true},
		{"no separator", "Prompt 'GLA' produced nothing", "", "", false},
		{"not a prompt", "Subject address missing: unit", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, output, ok := ParsePromptMessage(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantOutput, output)
		})
	}
}

func TestNewValidationRecord(t *testing.T) {
	now := time.Date(2024, 5, 2, 10, 4, 5, 123456000, time.UTC)
	rec := NewValidationRecord("/in/pdfs/a.pdf", "Subject", "APN missing", now)

	assert.Equal(t, ValidationRecord{
		PDF:       "a.pdf",
		Section:   "Subject",
		Text:      "APN missing",
		Label:     "APN missing",
		CreatedAt: "2024-05-02T10:04:05.123456",
	}, rec)
}

func TestNewAnalysisRecord(t *testing.T) {
	rec := NewAnalysisRecord("/in/pdfs/a.pdf", AnalysisInstruction("Zoning"), "R-1")
	assert.Equal(t, "Analyze the appraisal report for the following: Zoning", rec.Instruction)
	assert.Equal(t, "PDF: a.pdf", rec.Input)
	assert.Equal(t, "R-1", rec.Output)
}
