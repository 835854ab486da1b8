package activity

import (
	"sync"
	"time"
)

// Import statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusError     = "error"
)

const defaultMaxRecent = 20

// ImportActivity represents the state of one calendar import.
type ImportActivity struct {
	OwnerID     string     `json:"-"`
	Status      string     `json:"status"`
	Total       int        `json:"total"`
	Created     int        `json:"created"`
	Skipped     int        `json:"skipped"`
	Failed      int        `json:"failed"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Duration    string     `json:"duration,omitempty"`
	Message     string     `json:"message,omitempty"`
}

// Tracker tracks calendar imports per owner. One import per owner runs at a time.
type Tracker struct {
	mu        sync.RWMutex
	active    map[string]*ImportActivity // ownerID -> running import
	recent    []*ImportActivity          // newest first
	maxRecent int
	now       func() time.Time
}

// NewTracker creates a new activity tracker.
func NewTracker() *Tracker {
	return &Tracker{
		active:    make(map[string]*ImportActivity),
		recent:    make([]*ImportActivity, 0),
		maxRecent: defaultMaxRecent,
		now:       time.Now,
	}
}

// StartImport begins tracking an import for ownerID. It returns false when
// the owner already has one running.
func (t *Tracker) StartImport(ownerID string, total, skipped int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, running := t.active[ownerID]; running {
		return false
	}
	t.active[ownerID] = &ImportActivity{
		OwnerID:   ownerID,
		Status:    StatusRunning,
		Total:     total,
		Skipped:   skipped,
		StartedAt: t.now(),
	}
	return true
}

// IncrementProgress adds created records and failed entries to the running import.
func (t *Tracker) IncrementProgress(ownerID string, created, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if a, exists := t.active[ownerID]; exists {
		a.Created += created
		a.Failed += failed
	}
}

// FinishImport marks the owner's import as done and moves it to recent.
func (t *Tracker) FinishImport(ownerID string, success bool, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, exists := t.active[ownerID]
	if !exists {
		return
	}

	now := t.now()
	a.CompletedAt = &now
	a.Duration = now.Sub(a.StartedAt).Round(time.Millisecond).String()
	a.Message = message

	switch {
	case !success:
		a.Status = StatusError
	case a.Failed > 0:
		a.Status = StatusPartial
	default:
		a.Status = StatusCompleted
	}

	t.recent = append([]*ImportActivity{a}, t.recent...)
	if len(t.recent) > t.maxRecent {
		t.recent = t.recent[:t.maxRecent]
	}
	delete(t.active, ownerID)
}

// IsImporting returns true if ownerID has an import running.
func (t *Tracker) IsImporting(ownerID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, exists := t.active[ownerID]
	return exists
}

// ForOwner returns the owner's running import, if any, followed by its
// recently finished ones.
func (t *Tracker) ForOwner(ownerID string) []*ImportActivity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]*ImportActivity, 0)
	if a, exists := t.active[ownerID]; exists {
		c := *a
		c.Duration = t.now().Sub(a.StartedAt).Round(time.Millisecond).String()
		result = append(result, &c)
	}
	for _, a := range t.recent {
		if a.OwnerID == ownerID {
			c := *a
			result = append(result, &c)
		}
	}
	return result
}
