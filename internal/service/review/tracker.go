package review

import (
	"sync"
	"time"

	"github.com/feichai0017/review-automation/internal/models"
)

// Snapshot is a point-in-time view of a batch run.
type Snapshot struct {
	RunID     string    `json:"runId"`
	StartedAt time.Time `json:"startedAt"`
	Total     int       `json:"total"`
	Pending   []string  `json:"pending"`
	InFlight  []string  `json:"inFlight"`
	Succeeded []string  `json:"succeeded"`
	Failed    []string  `json:"failed"`
	Done      bool      `json:"done"`
}

// Tracker records the state of every document of the current run. It is
// safe for concurrent use.
type Tracker struct {
	mu        sync.RWMutex
	runID     string
	startedAt time.Time
	order     []string
	states    map[string]models.DocumentState
	done      bool
}

func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]models.DocumentState)}
}

// Start resets the tracker for a new run.
func (t *Tracker) Start(runID string, startedAt time.Time, names []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runID = runID
	t.startedAt = startedAt
	t.done = false
	t.order = append([]string(nil), names...)
	t.states = make(map[string]models.DocumentState, len(names))
	for _, n := range names {
		t.states[n] = models.StatePending
	}
}

// Set moves name to state. Terminal states are never left.
func (t *Tracker) Set(name string, state models.DocumentState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.states[name]
	if !ok || cur.Terminal() {
		return
	}
	t.states[name] = state
}

// Finish marks the run complete.
func (t *Tracker) Finish() {
	t.mu.Lock()
	t.done = true
	t.mu.Unlock()
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Snapshot{
		RunID:     t.runID,
		StartedAt: t.startedAt,
		Total:     len(t.order),
		Pending:   []string{},
		InFlight:  []string{},
		Succeeded: []string{},
		Failed:    []string{},
		Done:      t.done,
	}
	for _, n := range t.order {
		switch t.states[n] {
		case models.StatePending:
			s.Pending = append(s.Pending, n)
		case models.StateInFlight:
			s.InFlight = append(s.InFlight, n)
		case models.StateSucceeded:
			s.Succeeded = append(s.Succeeded, n)
		case models.StateFailed:
			s.Failed = append(s.Failed, n)
		}
	}
	return s
}
