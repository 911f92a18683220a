package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"time"

	"cronboss/internal/lock"
	"cronboss/internal/runtime/supervisor"
	logx "cronboss/pkg/logx"
)

const defaultKillGrace = 5 * time.Second

// Locker hands out exclusive per-script locks.
type Locker interface {
	TryAcquire(script string) (*lock.Handle, error)
}

type Options struct {
	// WarningsAsFailure promotes success_with_warnings to failure.
	WarningsAsFailure bool
	// TailLines bounds each captured stream (default 200).
	TailLines int
	// KillGrace bounds how long Finish waits for output drains
	// before force-killing the process group.
	KillGrace time.Duration
	Now       func() time.Time
}

type exitResult struct {
	code int
	err  error
	at   time.Time
}

// Task is the runtime state of one definition within one invocation.
//
// A Task is driven by a single goroutine (the orchestrator); only the output
// tails are written concurrently, by the drain goroutines.
type Task struct {
	def   Definition
	locks Locker
	log   logx.Logger
	opts  Options

	state    State
	last     Status
	attempts int

	handle  *Handle
	started time.Time
	sup     *supervisor.Supervisor
	waitCh  chan exitResult
	exit    *exitResult

	stdoutTail *tailBuffer
	stderrTail *tailBuffer
	stdout     string
	stderr     string
	duration   time.Duration

	timedOut   bool
	softWarned bool

	lockH    *lock.Handle
	lockErr  error
	abortErr error
}

func New(def Definition, locks Locker, log logx.Logger, opts Options) *Task {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = defaultKillGrace
	}
	if opts.TailLines <= 0 {
		opts.TailLines = defaultTailLines
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Task{
		def:   def,
		locks: locks,
		log:   log.With(logx.String("script", def.Script)),
		opts:  opts,
		last:  StatusNotRun,
	}
}

func (t *Task) Definition() Definition  { return t.def }
func (t *Task) Name() string            { return t.def.Name() }
func (t *Task) State() State            { return t.state }
func (t *Task) Attempts() int           { return t.attempts }
func (t *Task) Duration() time.Duration { return t.duration }
func (t *Task) Stdout() string          { return t.stdout }
func (t *Task) Stderr() string          { return t.stderr }
func (t *Task) TimedOut() bool          { return t.timedOut }
func (t *Task) LockHeld() bool          { return t.lockH.Held() }

// LockErr is the last lock acquisition error seen by CanStart.
func (t *Task) LockErr() error { return t.lockErr }

// Err is the launch error recorded by Abort, if any.
func (t *Task) Err() error { return t.abortErr }

// Handle returns the handle of the current or last attempt.
func (t *Task) Handle() (Handle, bool) {
	if t.handle == nil {
		return Handle{}, false
	}
	return *t.handle, true
}

// ExitCode returns the exit code of the last attempt, if it has one.
func (t *Task) ExitCode() (int, bool) {
	if t.abortErr != nil {
		return -1, true
	}
	if t.exit == nil {
		return 0, false
	}
	return t.exit.code, true
}

func (t *Task) setState(next State) {
	if t.state == next {
		return
	}
	t.log.Debug("task state",
		logx.String("from", t.state.String()),
		logx.String("state", next.String()),
		logx.Int("attempt", t.attempts),
	)
	t.state = next
}

// CanStart reports whether the task may be launched now. For exclusive tasks
// it acquires the script lock on first success and keeps it.
func (t *Task) CanStart() bool {
	if !t.def.Enabled {
		return false
	}
	if !t.def.Exclusive {
		return true
	}
	if t.alive() {
		t.log.Info("skipped: previous attempt still running")
		return false
	}
	if t.lockH.Held() {
		return true
	}
	if t.locks == nil {
		t.lockErr = errors.New("no lock manager for exclusive task")
		t.log.Error("cannot lock task", logx.Err(t.lockErr))
		return false
	}
	h, err := t.locks.TryAcquire(t.def.Script)
	if err != nil {
		t.lockErr = err
		if errors.Is(err, lock.ErrLocked) {
			t.log.Info("skipped: already running elsewhere")
		} else {
			t.log.Error("lock acquisition failed", logx.Err(err))
		}
		return false
	}
	t.lockErr = nil
	t.lockH = h
	return true
}

// Start binds a freshly launched process to the task.
func (t *Task) Start(h Handle) {
	t.setState(StateStarting)

	t.attempts++
	t.handle = &h
	t.started = t.opts.Now()
	t.exit = nil
	t.timedOut = false
	t.softWarned = false
	t.stdout, t.stderr = "", ""
	t.duration = 0
	t.last = StatusNotRun
	t.stdoutTail = newTailBuffer(t.opts.TailLines)
	t.stderrTail = newTailBuffer(t.opts.TailLines)

	waitCh := make(chan exitResult, 1)
	t.waitCh = waitCh
	sup := supervisor.New(supervisor.WithLogger(t.log))
	t.sup = sup

	proc := h.Proc
	outTail, errTail := t.stdoutTail, t.stderrTail
	now := t.opts.Now
	sup.Go("drain.stdout", func() error { drain(proc.Stdout(), outTail); return nil })
	sup.Go("drain.stderr", func() error { drain(proc.Stderr(), errTail); return nil })
	sup.Go("wait", func() error {
		code, err := proc.Wait()
		waitCh <- exitResult{code: code, err: err, at: now()}
		return nil
	})

	t.setState(StateRunning)
	t.log.Info("task started",
		logx.Int("attempt", t.attempts),
		logx.Int("pid", proc.Pid()),
		logx.Strings("cmd", h.CommandLine),
	)
}

// collect picks up the exit result without blocking.
func (t *Task) collect() bool {
	if t.exit != nil {
		return true
	}
	if t.waitCh == nil {
		return false
	}
	select {
	case res := <-t.waitCh:
		t.exit = &res
		return true
	default:
		return false
	}
}

func (t *Task) alive() bool {
	return t.handle != nil && t.waitCh != nil && !t.collect()
}

// Poll reports the current status without blocking. done is false while the
// process is still running.
func (t *Task) Poll() (Status, bool) {
	if t.state != StateRunning {
		return t.last, t.last != StatusNotRun || t.handle == nil
	}

	if !t.collect() {
		if t.def.Timeout > 0 && t.opts.Now().Sub(t.started) > t.def.Timeout {
			if t.def.TimeoutMode == TimeoutSoft {
				if !t.softWarned {
					t.softWarned = true
					t.log.Warn("timeout exceeded, still running",
						logx.Duration("timeout", t.def.Timeout),
						logx.Int("attempt", t.attempts),
					)
				}
				return StatusNotRun, false
			}
			t.terminate(fmt.Sprintf("timeout exceeded (%s)", t.def.Timeout))
			return t.last, true
		}
		return StatusNotRun, false
	}

	switch {
	case t.exit.code == 0:
		t.last = StatusSuccess
		t.setState(StateSuccess)
	case t.attempts <= t.def.Retries:
		t.last = StatusRetrying
		t.setState(StateRetrying)
	default:
		t.last = StatusFailure
		t.setState(StateFailure)
	}
	t.log.Info("task exited",
		logx.Int("attempt", t.attempts),
		logx.Int("code", t.exit.code),
		logx.String("status", t.last.String()),
	)
	return t.last, true
}

// Cancel ends the current attempt without any retry. A live process is
// terminated like a strict timeout; an already exited one keeps its exit
// code.
func (t *Task) Cancel(reason string) {
	if t.state != StateRunning {
		return
	}
	if !t.collect() {
		t.terminate(reason)
		return
	}
	if t.exit.code == 0 {
		t.last = StatusSuccess
		t.setState(StateSuccess)
		return
	}
	t.last = StatusFailure
	t.setState(StateFailure)
}

func (t *Task) terminate(reason string) {
	proc := t.handle.Proc
	if err := proc.SignalGroup(syscall.SIGTERM); err != nil {
		t.log.Debug("signal group failed", logx.Err(err))
	}
	if err := proc.Kill(); err != nil {
		t.log.Debug("kill failed", logx.Err(err))
	}
	t.timedOut = true
	t.exit = &exitResult{code: -1, at: t.opts.Now()}
	t.stderrTail.append(reason)
	t.last = StatusFailure
	t.setState(StateFailure)
	t.log.Warn("task terminated",
		logx.String("reason", reason),
		logx.Int("attempt", t.attempts),
	)
}

// Finish joins the process and its output drains and freezes the captured
// output. A terminal outcome releases the lock; a retry keeps it.
func (t *Task) Finish() {
	if t.sup == nil {
		return
	}
	sup := t.sup
	t.sup = nil

	// Reap the child. After a strict timeout the leader was killed, so this
	// returns promptly; the recorded exit stays -1.
	if t.timedOut {
		select {
		case <-t.waitCh:
		case <-time.After(t.opts.KillGrace):
		}
	} else if t.exit == nil {
		res := <-t.waitCh
		t.exit = &res
	}

	if err := t.joinDrains(sup); err != nil {
		t.log.Warn("output drains did not finish", logx.Err(err))
	}
	t.closeStreams()

	t.stdout = t.stdoutTail.String()
	t.stderr = t.stderrTail.String()
	t.duration = t.exit.at.Sub(t.started)
	if t.duration < 0 {
		t.duration = 0
	}

	if t.last.Terminal() {
		t.release()
		t.setState(StateFinished)
	}
}

// joinDrains waits for the drain goroutines. Descendants that inherited the
// pipes can keep them open; those are killed with the group, and as a last
// resort the read ends are closed.
func (t *Task) joinDrains(sup *supervisor.Supervisor) error {
	grace := t.opts.KillGrace
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	err := sup.Wait(ctx)
	cancel()
	if err == nil || !errors.Is(err, context.DeadlineExceeded) {
		return nil
	}

	proc := t.handle.Proc
	t.log.Warn("output still open after exit, killing process group",
		logx.Strings("pending", sup.Running()),
		logx.Duration("grace", grace),
	)
	_ = proc.SignalGroup(syscall.SIGKILL)
	ctx, cancel = context.WithTimeout(context.Background(), grace)
	err = sup.Wait(ctx)
	cancel()
	if err == nil || !errors.Is(err, context.DeadlineExceeded) {
		return nil
	}

	t.closeStreams()
	ctx, cancel = context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := sup.Wait(ctx); errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: pending %v", err, sup.Running())
	}
	return nil
}

// closeStreams releases the read ends of the output pipes. Closing twice is
// harmless.
func (t *Task) closeStreams() {
	proc := t.handle.Proc
	if r := proc.Stdout(); r != nil {
		_ = r.Close()
	}
	if r := proc.Stderr(); r != nil {
		_ = r.Close()
	}
}

// Abort records a launch failure. The task ends as a failure and its lock is
// released.
func (t *Task) Abort(err error) {
	if err == nil {
		err = errors.New("launch aborted")
	}
	t.abortErr = err
	t.last = StatusFailure
	t.setState(StateFailure)
	t.stdout = ""
	t.stderr = err.Error()
	t.duration = 0
	t.log.Error("launch failed", logx.Int("attempt", t.attempts), logx.Err(err))
	t.release()
	t.setState(StateFinished)
}

func (t *Task) release() {
	if t.lockH == nil {
		return
	}
	t.lockH.Release()
	t.lockH = nil
	t.log.Debug("lock released")
}

// ClassifyStatus derives the final status from the exit code and the
// captured stderr.
func (t *Task) ClassifyStatus() Status {
	code, ok := t.ExitCode()
	if !ok {
		return StatusNotRun
	}
	return Classify(code, t.stderr, t.opts.WarningsAsFailure)
}

// Classify is the pure form of ClassifyStatus.
func Classify(code int, stderr string, warningsAsFailure bool) Status {
	if code != 0 {
		return StatusFailure
	}
	lower := strings.ToLower(stderr)
	if strings.Contains(lower, "warning") || strings.Contains(lower, "error") {
		if warningsAsFailure {
			return StatusFailure
		}
		return StatusSuccessWithWarnings
	}
	return StatusSuccess
}
