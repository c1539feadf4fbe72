package models

import (
	"time"
)

// DocumentState is the lifecycle of one document in a batch.
type DocumentState string

const (
	StatePending   DocumentState = "pending"
	StateInFlight  DocumentState = "in_flight"
	StateSucceeded DocumentState = "succeeded"
	StateFailed    DocumentState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s DocumentState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Section is one named stage of the remote review workflow.
type Section struct {
	Name string `json:"name" mapstructure:"name" yaml:"name"`
	Key  string `json:"key" mapstructure:"key" yaml:"key"`
}

// SectionKeyCustomAnalysis marks the section that runs the prompt sub-loop.
const SectionKeyCustomAnalysis = "custom_analysis"

// IsCustomAnalysis reports whether the section runs analysis prompts.
func (s Section) IsCustomAnalysis() bool {
	return s.Key == SectionKeyCustomAnalysis
}

// DefaultSections is the navigation order used when none is configured.
func DefaultSections() []Section {
	return []Section{
		{Name: "Subject", Key: "subject"},
		{Name: "Base Info", Key: "base_info"},
		{Name: "Contract", Key: "contract"},
		{Name: "Neighborhood", Key: "neighborhood"},
		{Name: "Custom Analysis", Key: SectionKeyCustomAnalysis},
	}
}

// Message is a validation message captured from the remote application.
type Message struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// SectionLog holds the messages captured for one section, in capture order.
type SectionLog struct {
	Name     string    `json:"name"`
	Messages []Message `json:"messages"`
}

// ReviewLog accumulates section logs for one document in navigation order.
// It is owned by a single goroutine.
type ReviewLog struct {
	sections []SectionLog
	index    map[string]int
}

// Begin registers a section; messages for it are appended afterwards.
func (l *ReviewLog) Begin(name string) {
	if l.index == nil {
		l.index = make(map[string]int)
	}
	if _, ok := l.index[name]; ok {
		return
	}
	l.index[name] = len(l.sections)
	l.sections = append(l.sections, SectionLog{Name: name, Messages: []Message{}})
}

// Add appends a message to a section, registering the section if needed.
func (l *ReviewLog) Add(name string, at time.Time, text string) {
	l.Begin(name)
	i := l.index[name]
	l.sections[i].Messages = append(l.sections[i].Messages, Message{At: at, Text: text})
}

// Sections returns the section logs in the order they were begun.
func (l *ReviewLog) Sections() []SectionLog {
	out := make([]SectionLog, len(l.sections))
	copy(out, l.sections)
	return out
}

// Empty reports whether no section was begun.
func (l *ReviewLog) Empty() bool {
	return len(l.sections) == 0
}
