package storage

import (
	"errors"
	"time"
	"unicode/utf8"
)

var ErrDisabled = errors.New("storage disabled")

// TailChars bounds the stdout/stderr excerpts stored per record.
const TailChars = 400

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines at <path without ext>.audit.jsonl
//   - "sqlite": SQLite database file at Path
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord is one terminal outcome of a task. Keep it schema-stable: the
// JSON form is the audit line format.
type RunRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	RunID      string    `json:"run_id,omitempty"`
	Script     string    `json:"script"`
	Origin     string    `json:"origin,omitempty"`
	Status     string    `json:"status"`
	Duration   float64   `json:"duration"` // seconds
	ReturnCode int       `json:"returncode"`
	Attempts   int       `json:"attempts"`
	StdoutTail string    `json:"stdout_tail"`
	StderrTail string    `json:"stderr_tail"`
}

// Tail returns the last n characters of s (whole runes).
func Tail(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := len(s) - n
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return s[cut:]
}
