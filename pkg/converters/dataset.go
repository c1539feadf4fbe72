package converters

import (
	"path/filepath"
	"strings"
	"time"
)

const (
	promptPrefix      = "Prompt '"
	instructionPrefix = "Analyze the appraisal report for the following: "
	// createdAtLayout matches an ISO-8601 timestamp with microseconds and no zone.
	createdAtLayout = "2006-01-02T15:04:05.000000"
)

// ValidationRecord is one validation-classification training sample.
type ValidationRecord struct {
	PDF       string `json:"pdf"`
	Section   string `json:"section"`
	Text      string `json:"text"`
	Label     string `json:"label"`
	CreatedAt string `json:"created_at"`
}

// AnalysisRecord is one instruction-tuning sample built from a custom analysis prompt.
type AnalysisRecord struct {
	Instruction string `json:"instruction"`
	Input       string `json:"input"`
	Output      string `json:"output"`
}

// NewValidationRecord converts a captured validation message. The label
// starts out equal to the text and is refined offline.
func NewValidationRecord(pdf, section, message string, now time.Time) ValidationRecord {
	return ValidationRecord{
		PDF:       filepath.Base(pdf),
		Section:   section,
		Text:      message,
		Label:     message,
		CreatedAt: now.UTC().Format(createdAtLayout),
	}
}

// NewAnalysisRecord converts a parsed prompt result.
func NewAnalysisRecord(pdf, instruction, output string) AnalysisRecord {
	return AnalysisRecord{
		Instruction: instruction,
		Input:       "PDF: " + filepath.Base(pdf),
		Output:      output,
	}
}

// AnalysisInstruction is the instruction text recorded for a prompt name.
func AnalysisInstruction(promptName string) string {
	return instructionPrefix + promptName
}

// IsPromptMessage reports whether text looks like a custom analysis result.
func IsPromptMessage(text string) bool {
	return strings.HasPrefix(text, promptPrefix)
}

// ParsePromptMessage splits "Prompt '<name>': <output>" into its parts.
// ok is false when text is not a prompt message or has no ':' separator.
func ParsePromptMessage(text string) (name, output string, ok bool) {
	if !IsPromptMessage(text) {
		return "", "", false
	}
	head, tail, found := strings.Cut(text, ":")
	if !found {
		return "", "", false
	}
	name = strings.ReplaceAll(strings.TrimPrefix(head, promptPrefix), "'", "")
	return name, strings.TrimSpace(tail), true
}
