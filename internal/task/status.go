package task

import (
	"fmt"
	"strings"
)

// Status is the closed set of task outcomes.
type Status int

const (
	StatusNotRun Status = iota
	StatusSuccess
	StatusSuccessWithWarnings
	StatusFailure
	StatusRetrying

	// StatusNone only appears in notification policies ("notify on none").
	// A task never ends in it.
	StatusNone
)

func (s Status) String() string {
	switch s {
	case StatusNotRun:
		return "not_run"
	case StatusSuccess:
		return "success"
	case StatusSuccessWithWarnings:
		return "success_with_warnings"
	case StatusFailure:
		return "failure"
	case StatusRetrying:
		return "retry"
	case StatusNone:
		return "none"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether no further transition follows s.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusSuccessWithWarnings, StatusFailure:
		return true
	default:
		return false
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseStatus accepts the names used in task documents and audit records.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success":
		return StatusSuccess, nil
	case "success_with_warnings":
		return StatusSuccessWithWarnings, nil
	case "failure":
		return StatusFailure, nil
	case "retry", "retrying":
		return StatusRetrying, nil
	case "none":
		return StatusNone, nil
	case "not_run", "":
		return StatusNotRun, nil
	default:
		return StatusNotRun, fmt.Errorf("unknown status %q", raw)
	}
}

// State is the lifecycle position of a Task within one invocation.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateRetrying
	StateSuccess
	StateFailure
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateRetrying:
		return "retrying"
	case StateSuccess:
		return "success"
	case StateFailure:
		return "failure"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
