package task

import (
	"path/filepath"
	"time"

	"cronboss/internal/cleanup"
	"cronboss/internal/schedule"
)

// Kind selects how a script is launched.
type Kind string

const (
	KindPython Kind = "python"
	KindBash   Kind = "bash"
)

// TimeoutMode controls what happens once Timeout is exceeded.
type TimeoutMode string

const (
	// TimeoutStrict terminates the process group and fails the task.
	TimeoutStrict TimeoutMode = "strict"
	// TimeoutSoft only logs a warning and lets the process run.
	TimeoutSoft TimeoutMode = "soft"
)

// NotifyPolicy selects which outcomes of a task are notified.
//
// A nil On means "use the process-wide default". Channels restricts delivery
// to the named transports; empty means all of them.
type NotifyPolicy struct {
	On       []Status
	Channels []string
}

// Definition is one normalized task entry. Immutable once loaded.
type Definition struct {
	Kind        Kind
	Script      string
	Args        string
	Interpreter string
	WorkDir     string

	Schedule schedule.Spec

	Enabled   bool
	Exclusive bool

	Retries     int
	RetryDelay  time.Duration
	Timeout     time.Duration
	TimeoutMode TimeoutMode

	Cleanup *cleanup.Directive
	Notify  NotifyPolicy

	// Origin identifies the defining document (file stem).
	Origin string
}

// Name is the short display name of the task.
func (d Definition) Name() string {
	return filepath.Base(d.Script)
}
