package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cronboss/internal/cleanup"
	"cronboss/internal/lock"
	"cronboss/internal/notifier"
	"cronboss/internal/schedule"
	"cronboss/internal/storage"
	"cronboss/internal/task"
	logx "cronboss/pkg/logx"
)

// ErrAborted marks an invocation that could not run (or was interrupted).
var ErrAborted = errors.New("invocation aborted")

const defaultPollInterval = 2 * time.Second

type DefinitionSource interface {
	Load(ctx context.Context) ([]task.Definition, error)
}

type Launcher interface {
	Launch(ctx context.Context, def task.Definition) (task.Handle, error)
}

type Locks interface {
	task.Locker
	Prepare() error
}

type Cleaner interface {
	Clean(ctx context.Context, paths []string, rule cleanup.Rule) (cleanup.Report, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, ev notifier.Event) int
	DispatchSummary(ctx context.Context, s notifier.Summary) int
}

// Deps are the collaborators of a Runner. Store and Cleaner may be nil.
type Deps struct {
	Definitions DefinitionSource
	Launcher    Launcher
	Locks       Locks
	Notifier    Dispatcher
	Store       storage.Store
	Cleaner     Cleaner
}

type Options struct {
	// TickMinutes is the external invocation interval used by the
	// schedule's trailing minute window.
	TickMinutes       int
	PollInterval      time.Duration
	WarningsAsFailure bool
	TailLines         int
	KillGrace         time.Duration
	Now               func() time.Time
}

type Runner struct {
	deps Deps
	opts Options
	log  logx.Logger
}

func New(deps Deps, opts Options, log logx.Logger) *Runner {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{deps: deps, opts: opts, log: log}
}

// pass is the state of one Run call.
type pass struct {
	id       string
	launched []*task.Task
	running  []*task.Task
}

// Run performs one pass evaluated at now. The error is non-nil only when
// the pass was aborted (definitions or lock dir unusable, or ctx cancelled).
func (r *Runner) Run(ctx context.Context, now time.Time) (notifier.Summary, error) {
	p := &pass{id: uuid.NewString()}
	log := r.log.With(logx.String("run_id", p.id))
	log.Info("cronboss tick", logx.Time("now", now), logx.Int("tick_minutes", r.opts.TickMinutes))

	defs, err := r.deps.Definitions.Load(ctx)
	if err != nil {
		return notifier.Summary{RunID: p.id}, fmt.Errorf("%w: load definitions: %w", ErrAborted, err)
	}
	if needsLocks(defs) {
		if r.deps.Locks == nil {
			return notifier.Summary{RunID: p.id}, fmt.Errorf("%w: exclusive tasks need a lock manager", ErrAborted)
		}
		if err := r.deps.Locks.Prepare(); err != nil {
			return notifier.Summary{RunID: p.id}, fmt.Errorf("%w: %w", ErrAborted, err)
		}
	}

	topts := task.Options{
		WarningsAsFailure: r.opts.WarningsAsFailure,
		TailLines:         r.opts.TailLines,
		KillGrace:         r.opts.KillGrace,
		Now:               r.opts.Now,
	}
	var locker task.Locker
	if r.deps.Locks != nil {
		locker = r.deps.Locks
	}

	for _, def := range defs {
		t := task.New(def, locker, log, topts)
		if def.Enabled && schedule.Due(def.Schedule, now, r.opts.TickMinutes) {
			r.launch(ctx, p, t)
		}
		if def.Enabled && def.Cleanup != nil && r.deps.Cleaner != nil {
			if _, err := r.deps.Cleaner.Clean(ctx, def.Cleanup.Paths, def.Cleanup.Rule); err != nil {
				log.Warn("cleanup failed", logx.String("script", def.Script), logx.Err(err))
			}
		}
	}

	interrupted := r.monitor(ctx, p)

	sum := r.summarize(p)
	if len(defs) > 0 {
		r.deps.Notifier.DispatchSummary(context.WithoutCancel(ctx), sum)
	}
	log.Info("cronboss done",
		logx.Int("launched", sum.Launched),
		logx.Int("success", sum.Success),
		logx.Int("success_with_warnings", sum.SuccessWithWarnings),
		logx.Int("failure", sum.Failure),
		logx.Duration("total_duration", sum.TotalDuration),
	)
	if interrupted != nil {
		return sum, fmt.Errorf("%w: %w", ErrAborted, interrupted)
	}
	return sum, nil
}

func needsLocks(defs []task.Definition) bool {
	for _, d := range defs {
		if d.Enabled && d.Exclusive {
			return true
		}
	}
	return false
}

func (r *Runner) launch(ctx context.Context, p *pass, t *task.Task) {
	if !t.CanStart() {
		if err := t.LockErr(); err != nil && !errors.Is(err, lock.ErrLocked) {
			p.launched = append(p.launched, t)
			t.Abort(err)
			r.complete(ctx, p, t)
		}
		return
	}
	p.launched = append(p.launched, t)
	h, err := r.deps.Launcher.Launch(ctx, t.Definition())
	if err != nil {
		t.Abort(err)
		r.complete(ctx, p, t)
		return
	}
	t.Start(h)
	p.running = append(p.running, t)
}

// monitor polls until every running task is terminal. It returns the
// context error when the pass was interrupted.
func (r *Runner) monitor(ctx context.Context, p *pass) error {
	for len(p.running) > 0 {
		if err := ctx.Err(); err != nil {
			for _, t := range p.running {
				t.Cancel("invocation cancelled")
				r.complete(ctx, p, t)
			}
			p.running = nil
			return err
		}

		next := p.running[:0]
		for _, t := range p.running {
			st, done := t.Poll()
			if !done {
				next = append(next, t)
				continue
			}
			if st == task.StatusRetrying {
				if r.retry(ctx, p, t) {
					next = append(next, t)
				}
				continue
			}
			r.complete(ctx, p, t)
		}
		p.running = next

		if len(p.running) > 0 {
			_ = sleepCtx(ctx, r.opts.PollInterval)
		}
	}
	return ctx.Err()
}

// retry finishes the failed attempt, announces it, waits the retry delay
// and relaunches. The lock stays held throughout. It reports whether the
// task is running again.
func (r *Runner) retry(ctx context.Context, p *pass, t *task.Task) bool {
	t.Finish()
	def := t.Definition()
	code, _ := t.ExitCode()
	r.deps.Notifier.Dispatch(context.WithoutCancel(ctx), r.event(t, task.StatusRetrying, code))

	r.log.Warn("retrying task",
		logx.String("script", def.Script),
		logx.Int("attempt", t.Attempts()),
		logx.Int("retries", def.Retries),
		logx.Duration("delay", def.RetryDelay),
	)
	if err := sleepCtx(ctx, def.RetryDelay); err != nil {
		t.Abort(fmt.Errorf("retry cancelled: %w", err))
		r.complete(ctx, p, t)
		return false
	}
	h, err := r.deps.Launcher.Launch(ctx, def)
	if err != nil {
		t.Abort(err)
		r.complete(ctx, p, t)
		return false
	}
	t.Start(h)
	return true
}

// complete finalizes a terminal task: join, classify, audit, notify.
func (r *Runner) complete(ctx context.Context, p *pass, t *task.Task) {
	t.Finish()
	st := t.ClassifyStatus()
	code, _ := t.ExitCode()
	def := t.Definition()

	if st == task.StatusFailure {
		r.log.Error("task failed",
			logx.String("script", def.Script),
			logx.Int("code", code),
			logx.Int("attempts", t.Attempts()),
			logx.Duration("duration", t.Duration()),
		)
	} else {
		r.log.Info("task finished",
			logx.String("script", def.Script),
			logx.String("status", st.String()),
			logx.Duration("duration", t.Duration()),
		)
	}

	bg := context.WithoutCancel(ctx)
	if r.deps.Store != nil {
		rec := storage.RunRecord{
			Timestamp:  r.opts.Now(),
			RunID:      p.id,
			Script:     def.Script,
			Origin:     def.Origin,
			Status:     st.String(),
			Duration:   t.Duration().Seconds(),
			ReturnCode: code,
			Attempts:   t.Attempts(),
			StdoutTail: storage.Tail(t.Stdout(), storage.TailChars),
			StderrTail: storage.Tail(t.Stderr(), storage.TailChars),
		}
		if err := r.deps.Store.AppendRun(bg, rec); err != nil {
			r.log.Error("audit append failed", logx.String("script", def.Script), logx.Err(err))
		}
	}
	r.deps.Notifier.Dispatch(bg, r.event(t, st, code))
}

func (r *Runner) event(t *task.Task, st task.Status, code int) notifier.Event {
	def := t.Definition()
	return notifier.Event{
		Script:   def.Script,
		Origin:   def.Origin,
		Status:   st,
		Attempt:  t.Attempts(),
		Retries:  def.Retries,
		Duration: t.Duration(),
		ExitCode: code,
		Stderr:   t.Stderr(),
		Policy:   def.Notify,
		At:       r.opts.Now(),
	}
}

func (r *Runner) summarize(p *pass) notifier.Summary {
	s := notifier.Summary{RunID: p.id, Launched: len(p.launched)}
	for _, t := range p.launched {
		switch t.ClassifyStatus() {
		case task.StatusSuccess:
			s.Success++
		case task.StatusSuccessWithWarnings:
			s.SuccessWithWarnings++
		case task.StatusFailure:
			s.Failure++
		}
		s.TotalDuration += t.Duration()
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
