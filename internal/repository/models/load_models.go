package models

import "time"

// LoadRun is one reload of the export directory.
type LoadRun struct {
	ID         string
	Generation uint64
	StartedAt  time.Time
	Duration   time.Duration
	Rows       int
	Files      []LoadFile
}

// LoadFile is the outcome for one export within a run. Error is empty on
// success.
type LoadFile struct {
	RunID string
	Name  string
	Rows  int
	Error string
}

// FileLoadStats summarizes every run that saw a given export.
type FileLoadStats struct {
	Name     string
	Loads    int
	Failures int
	LastRows int
	LastSeen time.Time
}
