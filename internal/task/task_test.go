package task

import (
	"errors"
	"io"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"cronboss/internal/lock"
	logx "cronboss/pkg/logx"
)

type fakeProc struct {
	outR, errR *io.PipeReader
	outW, errW *io.PipeWriter

	exitCh chan int
	once   sync.Once

	mu      sync.Mutex
	signals []syscall.Signal
	killed  bool
}

func newFakeProc() *fakeProc {
	or, ow := io.Pipe()
	er, ew := io.Pipe()
	return &fakeProc{outR: or, outW: ow, errR: er, errW: ew, exitCh: make(chan int, 1)}
}

func (p *fakeProc) Pid() int              { return 4242 }
func (p *fakeProc) Stdout() io.ReadCloser { return p.outR }
func (p *fakeProc) Stderr() io.ReadCloser { return p.errR }
func (p *fakeProc) Wait() (int, error)    { return <-p.exitCh, nil }

func (p *fakeProc) SignalGroup(sig syscall.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	p.mu.Unlock()
	p.exit(-1, "", "")
	return nil
}

func (p *fakeProc) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.exit(-1, "", "")
	return nil
}

// exit writes the given output, closes both streams and reports code.
func (p *fakeProc) exit(code int, stdout, stderr string) {
	p.once.Do(func() {
		if stdout != "" {
			_, _ = io.WriteString(p.outW, stdout)
		}
		if stderr != "" {
			_, _ = io.WriteString(p.errW, stderr)
		}
		_ = p.outW.Close()
		_ = p.errW.Close()
		p.exitCh <- code
	})
}

func (p *fakeProc) gotSignal(sig syscall.Signal) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.signals {
		if s == sig {
			return true
		}
	}
	return false
}

func pollUntilDone(t *testing.T, tk *Task) Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st, done := tk.Poll(); done {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task did not finish")
	return StatusNotRun
}

func testDef(script string) Definition {
	return Definition{
		Kind:        KindBash,
		Script:      script,
		Enabled:     true,
		Exclusive:   true,
		TimeoutMode: TimeoutStrict,
	}
}

func TestTask_SuccessCapturesOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	locks := lock.New(dir)
	tk := New(testDef(filepath.Join(dir, "ok.sh")), locks, logx.Nop(), Options{})

	if !tk.CanStart() {
		t.Fatalf("CanStart=false on a free lock")
	}
	p := newFakeProc()
	tk.Start(Handle{Proc: p})
	if tk.Attempts() != 1 {
		t.Fatalf("attempts=%d want 1", tk.Attempts())
	}
	if st, done := tk.Poll(); done {
		t.Fatalf("Poll before exit = (%v, true)", st)
	}

	p.exit(0, "hello\nworld\n", "")
	if st := pollUntilDone(t, tk); st != StatusSuccess {
		t.Fatalf("status=%v want success", st)
	}
	tk.Finish()

	if tk.Stdout() != "hello\nworld" {
		t.Fatalf("stdout=%q", tk.Stdout())
	}
	if got := tk.ClassifyStatus(); got != StatusSuccess {
		t.Fatalf("ClassifyStatus=%v", got)
	}
	if tk.LockHeld() {
		t.Fatalf("lock still held after terminal finish")
	}
	if tk.State() != StateFinished {
		t.Fatalf("state=%v want finished", tk.State())
	}
	for name, r := range map[string]*io.PipeReader{"stdout": p.outR, "stderr": p.errR} {
		if _, err := r.Read(make([]byte, 1)); !errors.Is(err, io.ErrClosedPipe) {
			t.Fatalf("%s read end still open after Finish: err=%v", name, err)
		}
	}
}

func TestTask_RetriesKeepLockUntilTerminal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	locks := lock.New(dir)
	def := testDef(filepath.Join(dir, "flaky.sh"))
	def.Retries = 2
	tk := New(def, locks, logx.Nop(), Options{})

	want := []Status{StatusRetrying, StatusRetrying, StatusFailure}
	for i, w := range want {
		if !tk.CanStart() {
			t.Fatalf("attempt %d: CanStart=false", i+1)
		}
		p := newFakeProc()
		tk.Start(Handle{Proc: p})
		if tk.Attempts() != i+1 {
			t.Fatalf("attempts=%d want %d", tk.Attempts(), i+1)
		}
		p.exit(3, "", "boom\n")
		if st := pollUntilDone(t, tk); st != w {
			t.Fatalf("attempt %d: status=%v want %v", i+1, st, w)
		}
		tk.Finish()

		// A competing acquisition must fail while the task still owns the script.
		if w == StatusRetrying {
			if !tk.LockHeld() {
				t.Fatalf("attempt %d: lock released before terminal outcome", i+1)
			}
			if _, err := locks.TryAcquire(def.Script); !errors.Is(err, lock.ErrLocked) {
				t.Fatalf("attempt %d: competing TryAcquire err=%v", i+1, err)
			}
		}
	}

	if tk.LockHeld() {
		t.Fatalf("lock held after final failure")
	}
	h, err := locks.TryAcquire(def.Script)
	if err != nil {
		t.Fatalf("lock not free after final failure: %v", err)
	}
	h.Release()

	code, ok := tk.ExitCode()
	if !ok || code != 3 {
		t.Fatalf("exit code=(%d,%v)", code, ok)
	}
	if got := tk.ClassifyStatus(); got != StatusFailure {
		t.Fatalf("ClassifyStatus=%v", got)
	}
}

func TestTask_StrictTimeoutIsTerminal(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	dir := t.TempDir()
	def := testDef(filepath.Join(dir, "slow.sh"))
	def.Retries = 5
	def.Timeout = 2 * time.Second
	tk := New(def, lock.New(dir), logx.Nop(), Options{Now: clock, KillGrace: time.Second})

	if !tk.CanStart() {
		t.Fatalf("CanStart=false")
	}
	p := newFakeProc()
	tk.Start(Handle{Proc: p})

	advance(time.Second)
	if _, done := tk.Poll(); done {
		t.Fatalf("done before timeout")
	}
	advance(3 * time.Second)
	st, done := tk.Poll()
	if !done || st != StatusFailure {
		t.Fatalf("Poll after timeout = (%v,%v), want (failure,true)", st, done)
	}
	if !p.gotSignal(syscall.SIGTERM) {
		t.Fatalf("process group not terminated")
	}
	tk.Finish()

	code, _ := tk.ExitCode()
	if code != -1 {
		t.Fatalf("exit code=%d want -1", code)
	}
	if !tk.TimedOut() {
		t.Fatalf("TimedOut=false")
	}
	if tk.Attempts() != 1 {
		t.Fatalf("timeout was retried: attempts=%d", tk.Attempts())
	}
	if tk.LockHeld() {
		t.Fatalf("lock held after timeout")
	}
}

func TestTask_SoftTimeoutKeepsRunning(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	def := testDef("/tmp/soft.sh")
	def.Exclusive = false
	def.Timeout = time.Second
	def.TimeoutMode = TimeoutSoft
	tk := New(def, nil, logx.Nop(), Options{Now: clock})

	p := newFakeProc()
	tk.Start(Handle{Proc: p})
	mu.Lock()
	now = now.Add(time.Minute)
	mu.Unlock()

	for i := 0; i < 3; i++ {
		if _, done := tk.Poll(); done {
			t.Fatalf("soft timeout finished the task")
		}
	}
	if p.gotSignal(syscall.SIGTERM) {
		t.Fatalf("soft timeout signalled the process")
	}
	p.exit(0, "", "")
	if st := pollUntilDone(t, tk); st != StatusSuccess {
		t.Fatalf("status=%v", st)
	}
	tk.Finish()
}

func TestTask_WarningsInStderr(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name  string
		asErr bool
		want  Status
	}{
		{"tolerated", false, StatusSuccessWithWarnings},
		{"promoted", true, StatusFailure},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			def := testDef("/tmp/warn.sh")
			def.Exclusive = false
			tk := New(def, nil, logx.Nop(), Options{WarningsAsFailure: tc.asErr})
			p := newFakeProc()
			tk.Start(Handle{Proc: p})
			p.exit(0, "done\n", "WARNING: disk at 91%\n")
			if st := pollUntilDone(t, tk); st != StatusSuccess {
				t.Fatalf("polled status=%v want success", st)
			}
			tk.Finish()
			if got := tk.ClassifyStatus(); got != tc.want {
				t.Fatalf("ClassifyStatus=%v want %v", got, tc.want)
			}
		})
	}
}

func TestTask_ExclusiveSkipWhenLockedElsewhere(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	locks := lock.New(dir)
	script := filepath.Join(dir, "busy.sh")

	other, err := locks.TryAcquire(script)
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	defer other.Release()

	tk := New(testDef(script), locks, logx.Nop(), Options{})
	if tk.CanStart() {
		t.Fatalf("CanStart=true while another holder owns the lock")
	}
	if !errors.Is(tk.LockErr(), lock.ErrLocked) {
		t.Fatalf("LockErr=%v want ErrLocked", tk.LockErr())
	}
	if tk.Attempts() != 0 {
		t.Fatalf("attempts=%d", tk.Attempts())
	}
}

func TestTask_DisabledNeverStarts(t *testing.T) {
	t.Parallel()

	def := testDef("/tmp/off.sh")
	def.Enabled = false
	tk := New(def, lock.New(t.TempDir()), logx.Nop(), Options{})
	if tk.CanStart() {
		t.Fatalf("disabled task can start")
	}
}

func TestTask_AbortReleasesLock(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	locks := lock.New(dir)
	script := filepath.Join(dir, "missing.sh")
	tk := New(testDef(script), locks, logx.Nop(), Options{})
	if !tk.CanStart() {
		t.Fatalf("CanStart=false")
	}
	tk.Abort(errors.New("exec: no such file"))

	if tk.State() != StateFinished {
		t.Fatalf("state=%v", tk.State())
	}
	if got := tk.ClassifyStatus(); got != StatusFailure {
		t.Fatalf("ClassifyStatus=%v", got)
	}
	h, err := locks.TryAcquire(script)
	if err != nil {
		t.Fatalf("lock not released by Abort: %v", err)
	}
	h.Release()
}

func TestTask_ClassifyBeforeExit(t *testing.T) {
	t.Parallel()

	tk := New(testDef("/tmp/x.sh"), nil, logx.Nop(), Options{})
	if got := tk.ClassifyStatus(); got != StatusNotRun {
		t.Fatalf("ClassifyStatus=%v want not_run", got)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code   int
		stderr string
		strict bool
		want   Status
	}{
		{0, "", false, StatusSuccess},
		{0, "some Error happened", false, StatusSuccessWithWarnings},
		{0, "deprecation warning", true, StatusFailure},
		{1, "", false, StatusFailure},
		{-1, "timeout exceeded", false, StatusFailure},
		{0, "all fine", false, StatusSuccess},
	}
	for _, c := range cases {
		if got := Classify(c.code, c.stderr, c.strict); got != c.want {
			t.Fatalf("Classify(%d,%q,%v)=%v want %v", c.code, c.stderr, c.strict, got, c.want)
		}
	}
}
