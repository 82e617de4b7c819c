package models

import (
	"fmt"
	"time"
)

// LogEntry is one line of the detection log.
type LogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Message    string    `json:"message"`
	Confidence *float64  `json:"confidence,omitempty"`
}

// Line renders the entry the way the operator view shows it.
func (e LogEntry) Line() string {
	ts := e.Timestamp.Format("15:04:05")
	if e.Confidence != nil {
		return fmt.Sprintf("[%s] 🚗 %s (Confidence: %.2f)", ts, e.Message, *e.Confidence)
	}
	return fmt.Sprintf("[%s] 📝 %s", ts, e.Message)
}
