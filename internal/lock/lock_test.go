package lock

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestTryAcquireExclusive(t *testing.T) {
	m := New(t.TempDir())
	if err := m.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	h1, err := m.TryAcquire("/opt/jobs/backup.sh")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := m.TryAcquire("/opt/jobs/backup.sh"); !errors.Is(err, ErrLocked) {
		t.Fatalf("second acquire err = %v, want ErrLocked", err)
	}

	b, err := os.ReadFile(h1.Path())
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if strings.TrimSpace(string(b)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("lock file content = %q, want pid", b)
	}

	h1.Release()
	h1.Release()
	if h1.Held() {
		t.Fatal("expected handle released")
	}

	h2, err := m.TryAcquire("/opt/jobs/backup.sh")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	m.Release(h2)
}

func TestKeyUsesAbsolutePath(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	rel := filepath.Join("scripts", "job.py")
	if Key(rel) != Key(filepath.Join(wd, rel)) {
		t.Fatal("relative and absolute spellings must share a key")
	}
	if Key("/a/job.py") == Key("/b/job.py") {
		t.Fatal("different scripts must not collide")
	}
}

func TestReleaseNilIsNoop(t *testing.T) {
	var h *Handle
	h.Release()
	New(t.TempDir()).Release(nil)
	if h.Held() {
		t.Fatal("nil handle cannot be held")
	}
}

func TestPrepareFailsOnFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	err := New(filepath.Join(blocker, "locks")).Prepare()
	if !errors.Is(err, ErrLockDir) {
		t.Fatalf("Prepare err = %v, want ErrLockDir", err)
	}
}

// The lock must also hold against a different process.
func TestLockedAgainstOtherProcess(t *testing.T) {
	if _, err := exec.LookPath("flock"); err != nil {
		t.Skip("flock(1) not available")
	}
	m := New(t.TempDir())
	if err := m.Prepare(); err != nil {
		t.Fatal(err)
	}
	h, err := m.TryAcquire("/srv/report.py")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer h.Release()

	cmd := exec.Command("flock", "-n", h.Path(), "true")
	if err := cmd.Run(); err == nil {
		t.Fatal("expected other process to fail acquiring the lock")
	}
}
