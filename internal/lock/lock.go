// Package lock provides cross-process exclusivity for task scripts.
//
// Locks are advisory flock(2) locks on files in a shared directory, keyed by a
// hash of the absolute script path. Acquisition never blocks: a losing
// contender gets ErrLocked and skips this tick.
package lock

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"
)

var (
	// ErrLocked means another holder owns the script. It is a skip signal, not a failure.
	ErrLocked = errors.New("lock held by another instance")
	// ErrLockDir means the lock directory cannot be created or written.
	ErrLockDir = errors.New("lock directory unusable")
)

type Manager struct {
	dir string
}

func New(dir string) *Manager {
	return &Manager{dir: dir}
}

func (m *Manager) Dir() string { return m.dir }

// Prepare creates the lock directory and checks that it is writable.
func (m *Manager) Prepare() error {
	if m.dir == "" {
		return fmt.Errorf("%w: no directory configured", ErrLockDir)
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrLockDir, err)
	}
	if err := unix.Access(m.dir, unix.W_OK); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrLockDir, m.dir, err)
	}
	return nil
}

// Key derives the stable lock key of a script path.
func Key(script string) string {
	abs, err := filepath.Abs(script)
	if err != nil {
		abs = filepath.Clean(script)
	}
	sum := sha1.Sum([]byte(abs))
	return hex.EncodeToString(sum[:])
}

// Path returns the lock file used for script.
func (m *Manager) Path(script string) string {
	return filepath.Join(m.dir, Key(script)+".lock")
}

// TryAcquire takes the exclusive lock for script without blocking.
func (m *Manager) TryAcquire(script string) (*Handle, error) {
	path := m.Path(script)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", ErrLockDir, err)
		}
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	// Owner pid is diagnostics only; a failed write does not void the lock.
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &Handle{f: f, path: path, script: script}, nil
}

// Release is a nil-safe alias for h.Release().
func (m *Manager) Release(h *Handle) {
	h.Release()
}

// Handle is an acquired lock. Only its owner may release it.
type Handle struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	script string
}

func (h *Handle) Path() string {
	if h == nil {
		return ""
	}
	return h.path
}

// Held reports whether the lock is still owned.
func (h *Handle) Held() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.f != nil
}

// Release unlocks and closes the lock file. Idempotent.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.mu.Lock()
	f := h.f
	h.f = nil
	h.mu.Unlock()
	if f == nil {
		return
	}
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	_ = f.Close()
}
