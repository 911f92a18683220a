package notifier

import (
	"context"
	"fmt"
	"math/rand"
	"runtime/debug"
	"strings"
	"time"

	"cronboss/internal/task"
	logx "cronboss/pkg/logx"
)

// Manager applies the notification policy and fans out to transports.
type Manager struct {
	cfg       Config
	log       logx.Logger
	notifiers []Notifier
}

func NewManager(cfg Config, log logx.Logger, notifiers ...Notifier) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.DefaultNotifyOn == nil {
		cfg.DefaultNotifyOn = []task.Status{task.StatusFailure}
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	var ns []Notifier
	for _, n := range notifiers {
		if n != nil {
			ns = append(ns, n)
		}
	}
	return &Manager{
		cfg:       cfg,
		log:       log.With(logx.String("comp", "notifier")),
		notifiers: ns,
	}
}

// Names lists the configured transports.
func (m *Manager) Names() []string {
	out := make([]string, 0, len(m.notifiers))
	for _, n := range m.notifiers {
		out = append(out, n.Name())
	}
	return out
}

// Dispatch announces ev on every selected transport if the policy allows it.
// It returns the number of transports that accepted the event.
func (m *Manager) Dispatch(ctx context.Context, ev Event) int {
	on := ev.Policy.On
	if on == nil {
		on = m.cfg.DefaultNotifyOn
	}
	if !ShouldNotify(on, ev.Status) {
		m.log.Debug("notification suppressed",
			logx.String("script", ev.Script),
			logx.String("status", ev.Status.String()),
		)
		return 0
	}

	sent := 0
	for _, n := range m.notifiers {
		if !selected(ev.Policy.Channels, n.Name()) {
			continue
		}
		err := m.deliver(ctx, n, "event", func(c context.Context) error { return n.Send(c, ev) })
		if err != nil {
			m.log.Error("notification failed",
				logx.String("notifier", n.Name()),
				logx.String("script", ev.Script),
				logx.String("status", ev.Status.String()),
				logx.Err(err),
			)
			continue
		}
		sent++
	}
	return sent
}

// DispatchSummary sends s to every transport when summaries are enabled.
func (m *Manager) DispatchSummary(ctx context.Context, s Summary) int {
	if !m.cfg.SummaryEnabled {
		return 0
	}
	sent := 0
	for _, n := range m.notifiers {
		err := m.deliver(ctx, n, "summary", func(c context.Context) error { return n.SendSummary(c, s) })
		if err != nil {
			m.log.Error("summary notification failed", logx.String("notifier", n.Name()), logx.Err(err))
			continue
		}
		sent++
	}
	return sent
}

func selected(channels []string, name string) bool {
	if len(channels) == 0 {
		return true
	}
	for _, c := range channels {
		if strings.EqualFold(strings.TrimSpace(c), name) {
			return true
		}
	}
	return false
}

// deliver runs send with retries. Panics are converted into errors.
func (m *Manager) deliver(ctx context.Context, n Notifier, kind string, send func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	maxAttempts := 1 + m.cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, m.cfg.SendTimeout)
		err := safeCall(callCtx, send)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		m.log.Debug("notify send failed",
			logx.String("notifier", n.Name()),
			logx.String("kind", kind),
			logx.Int("attempt", attempt),
			logx.Int("max", maxAttempts),
			logx.Err(err),
		)
		if attempt >= maxAttempts {
			break
		}

		t := time.NewTimer(m.retryDelay(attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}

func safeCall(ctx context.Context, send func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return send(ctx)
}

// retryDelay is base * 2^(attempt-1), capped, with 0.7..1.3 jitter.
func (m *Manager) retryDelay(attempt int) time.Duration {
	d := m.cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= m.cfg.RetryMaxDelay {
			d = m.cfg.RetryMaxDelay
			break
		}
	}
	j := 0.7 + rand.Float64()*0.6
	return time.Duration(float64(d) * j)
}
