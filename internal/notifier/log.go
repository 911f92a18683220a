package notifier

import (
	"context"

	"cronboss/internal/task"
	logx "cronboss/pkg/logx"
)

// Log writes notifications to the structured log. It is always available,
// which keeps outcomes visible when no remote transport is configured.
type Log struct {
	log logx.Logger
}

func NewLog(log logx.Logger) *Log {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Log{log: log.With(logx.String("notifier", "log"))}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Send(_ context.Context, ev Event) error {
	fields := []logx.Field{
		logx.String("script", ev.Script),
		logx.String("status", ev.Status.String()),
		logx.Int("attempt", ev.Attempt),
		logx.Int("code", ev.ExitCode),
		logx.Duration("duration", ev.Duration),
	}
	if ev.Status == task.StatusFailure || ev.Status == task.StatusRetrying {
		fields = append(fields, logx.String("stderr", excerpt(ev.Stderr, stderrExcerpt)))
		l.log.Warn("task notification", fields...)
		return nil
	}
	l.log.Info("task notification", fields...)
	return nil
}

func (l *Log) SendSummary(_ context.Context, s Summary) error {
	l.log.Info("run summary",
		logx.String("run_id", s.RunID),
		logx.Int("launched", s.Launched),
		logx.Int("success", s.Success),
		logx.Int("success_with_warnings", s.SuccessWithWarnings),
		logx.Int("failure", s.Failure),
		logx.Duration("total_duration", s.TotalDuration),
	)
	return nil
}
