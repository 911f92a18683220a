package notifier

import (
	"context"
	"time"

	"cronboss/internal/task"
)

// Config controls policy defaults and delivery behavior.
type Config struct {
	// DefaultNotifyOn applies to tasks without their own notify-on set.
	DefaultNotifyOn []task.Status
	// SummaryEnabled gates DispatchSummary.
	SummaryEnabled bool

	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	// SendTimeout bounds one transport call.
	SendTimeout time.Duration
}

// Event is one task outcome to announce.
type Event struct {
	Script   string
	Origin   string
	Status   task.Status
	Attempt  int
	Retries  int
	Duration time.Duration
	ExitCode int
	Stderr   string
	Policy   task.NotifyPolicy
	At       time.Time
}

// Name is the script's base name.
func (e Event) Name() string { return task.Definition{Script: e.Script}.Name() }

// Summary aggregates one invocation.
type Summary struct {
	RunID               string
	Launched            int
	Success             int
	SuccessWithWarnings int
	Failure             int
	TotalDuration       time.Duration
}

// Notifier is one delivery transport.
type Notifier interface {
	Name() string
	Send(ctx context.Context, ev Event) error
	SendSummary(ctx context.Context, s Summary) error
}
