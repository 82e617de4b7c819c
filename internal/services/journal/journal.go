// Package journal keeps the rolling detection log shown to the operator.
package journal

import (
	"sync"
	"time"

	"platestation/internal/models"
)

// DefaultCapacity is how many lines the operator view keeps.
const DefaultCapacity = 50

// Journal is a bounded, append-only log. Once full, the oldest entries go first.
type Journal struct {
	mu       sync.Mutex
	entries  []models.LogEntry
	capacity int
	now      func() time.Time
	onAppend func(models.LogEntry)
}

// New creates a journal holding at most capacity entries.
func New(capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Journal{
		entries:  make([]models.LogEntry, 0, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

// OnAppend registers a callback invoked with every new entry, after it is stored.
func (j *Journal) OnAppend(fn func(models.LogEntry)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.onAppend = fn
}

// Record appends a plate line when confidence is given, or a plain note otherwise.
func (j *Journal) Record(message string, confidence *float64) models.LogEntry {
	j.mu.Lock()
	entry := models.LogEntry{Timestamp: j.now(), Message: message}
	if confidence != nil {
		c := *confidence
		entry.Confidence = &c
	}

	j.entries = append(j.entries, entry)
	if over := len(j.entries) - j.capacity; over > 0 {
		j.entries = append(j.entries[:0], j.entries[over:]...)
	}
	notify := j.onAppend
	j.mu.Unlock()

	if notify != nil {
		notify(entry)
	}
	return entry
}

// Note appends a plain message.
func (j *Journal) Note(message string) models.LogEntry {
	return j.Record(message, nil)
}

// Plate appends a detection line.
func (j *Journal) Plate(text string, confidence float64) models.LogEntry {
	return j.Record(text, &confidence)
}

// Entries returns the current contents, oldest first.
func (j *Journal) Entries() []models.LogEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]models.LogEntry(nil), j.entries...)
}

// Lines renders the current contents for display.
func (j *Journal) Lines() []string {
	entries := j.Entries()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Line()
	}
	return lines
}

// Len returns the number of stored entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}
