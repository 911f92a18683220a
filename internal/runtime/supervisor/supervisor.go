package supervisor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"

	logx "cronboss/pkg/logx"
)

// Supervisor owns the goroutines of one process attempt: the two output
// drains and the exit waiter. Goroutines are named so a stuck join can say
// which one is still blocked.
type Supervisor struct {
	log logx.Logger

	started uint64
	panics  uint64

	mu      sync.Mutex
	running map[string]int
	err     error

	wg       sync.WaitGroup
	doneOnce sync.Once
	doneCh   chan struct{}
}

type Option func(*Supervisor)

// Counters are best-effort operational numbers, not a sync primitive.
type Counters struct {
	Started uint64
	Active  int
	Panics  uint64
}

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		running: make(map[string]int),
		doneCh:  make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

// Go runs fn in a named goroutine. A panic is recovered and reported by Wait
// as the first error.
func (s *Supervisor) Go(name string, fn func() error) {
	if fn == nil {
		return
	}
	atomic.AddUint64(&s.started, 1)
	s.mu.Lock()
	s.running[name]++
	s.mu.Unlock()
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer s.exit(name)
		defer func() {
			if r := recover(); r != nil {
				atomic.AddUint64(&s.panics, 1)
				s.log.Error("goroutine panicked",
					logx.String("name", name),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
				s.setErr(fmt.Errorf("panic in %s: %v", name, r))
			}
		}()
		if err := fn(); err != nil {
			s.setErr(fmt.Errorf("%s: %w", name, err))
		}
	}()
}

func (s *Supervisor) exit(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[name] <= 1 {
		delete(s.running, name)
		return
	}
	s.running[name]--
}

func (s *Supervisor) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Err is the first goroutine error or recovered panic.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Running lists the goroutines that have not returned yet, sorted.
func (s *Supervisor) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.running))
	for name := range s.running {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *Supervisor) Counters() Counters {
	s.mu.Lock()
	active := 0
	for _, n := range s.running {
		active += n
	}
	s.mu.Unlock()
	return Counters{
		Started: atomic.LoadUint64(&s.started),
		Active:  active,
		Panics:  atomic.LoadUint64(&s.panics),
	}
}

// Done is closed once every goroutine started so far has returned.
func (s *Supervisor) Done() <-chan struct{} {
	s.doneOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.doneCh)
		}()
	})
	return s.doneCh
}

// Wait blocks until every goroutine returned or ctx is done. It may be
// called more than once.
func (s *Supervisor) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.Done():
		return s.Err()
	}
}
