// Package models holds the records frouter persists
package models

import (
	"path/filepath"
	"time"
)

// TimestampLayout is the local-time format stored with every move
const TimestampLayout = "2006-01-02 15:04:05"

// MoveRecord describes one completed move. It is the unit appended to the
// event log.
type MoveRecord struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Filename    string `json:"filename"`
	Timestamp   string `json:"timestamp"`
	Digest      string `json:"filehash"`
	BatchID     string `json:"batch_id,omitempty"`
}

// NewMoveRecord creates a record for a move of source to destination
// completed at t.
func NewMoveRecord(source, destination, digest string, t time.Time) MoveRecord {
	return MoveRecord{
		Source:      source,
		Destination: destination,
		Filename:    filepath.Base(source),
		Timestamp:   t.Local().Format(TimestampLayout),
		Digest:      digest,
	}
}

// Time parses the stored timestamp back into local time
func (r MoveRecord) Time() (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, r.Timestamp, time.Local)
}
