package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	logx "cronboss/pkg/logx"
)

func touch(t *testing.T, path string, age time.Duration, now time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	mt := now.Add(-age)
	if err := os.Chtimes(path, mt, mt); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func intp(v int) *int { return &v }

func TestClean_KeepLast(t *testing.T) {
	t.Parallel()

	now := time.Now()
	dir := t.TempDir()
	for i, name := range []string{"a.log", "b.log", "c.log", "d.log"} {
		touch(t, filepath.Join(dir, name), time.Duration(i+1)*time.Hour, now)
	}
	touch(t, filepath.Join(dir, "keep.txt"), 100*time.Hour, now)

	c := New(logx.Nop())
	rep, err := c.Clean(context.Background(), []string{dir}, Rule{KeepLast: intp(2)})
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	sort.Strings(rep.Deleted)
	want := []string{filepath.Join(dir, "c.log"), filepath.Join(dir, "d.log")}
	if len(rep.Deleted) != 2 || rep.Deleted[0] != want[0] || rep.Deleted[1] != want[1] {
		t.Fatalf("deleted=%v want %v", rep.Deleted, want)
	}
	if !exists(filepath.Join(dir, "a.log")) || !exists(filepath.Join(dir, "keep.txt")) {
		t.Fatalf("kept files were removed")
	}
}

func TestClean_KeepLastWinsOverKeepDays(t *testing.T) {
	t.Parallel()

	now := time.Now()
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "old.log"), 30*24*time.Hour, now)

	c := New(logx.Nop())
	rep, err := c.Clean(context.Background(), []string{dir}, Rule{KeepLast: intp(5), KeepDays: intp(1)})
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if len(rep.Deleted) != 0 {
		t.Fatalf("deleted=%v, keep_last should have applied", rep.Deleted)
	}
}

func TestClean_KeepDaysRecursiveDryRun(t *testing.T) {
	t.Parallel()

	now := time.Now()
	dir := t.TempDir()
	old := filepath.Join(dir, "sub", "old.gz")
	fresh := filepath.Join(dir, "fresh.gz")
	touch(t, old, 10*24*time.Hour, now)
	touch(t, fresh, time.Hour, now)

	c := New(logx.Nop())
	rule := Rule{KeepDays: intp(7), Extensions: []string{"gz"}, Recursive: true, DryRun: true}
	rep, err := c.Clean(context.Background(), []string{dir}, rule)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if len(rep.Planned) != 1 || rep.Planned[0] != old {
		t.Fatalf("planned=%v", rep.Planned)
	}
	if len(rep.Deleted) != 0 || !exists(old) {
		t.Fatalf("dry run deleted files")
	}

	rule.DryRun = false
	rep, err = c.Clean(context.Background(), []string{dir}, rule)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if exists(old) || !exists(fresh) {
		t.Fatalf("old=%v fresh=%v after cleanup", exists(old), exists(fresh))
	}
}

func TestClean_NoRuleAndMissingPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.log"), 100*24*time.Hour, time.Now())
	c := New(logx.Nop())

	rep, err := c.Clean(context.Background(), []string{dir}, Rule{})
	if err != nil || rep.Scanned != 0 {
		t.Fatalf("no rule: rep=%+v err=%v", rep, err)
	}
	rep, err = c.Clean(context.Background(), []string{filepath.Join(dir, "missing")}, Rule{KeepDays: intp(1)})
	if err != nil || len(rep.Deleted) != 0 {
		t.Fatalf("missing path: rep=%+v err=%v", rep, err)
	}
}

func TestNormalizeExtensions(t *testing.T) {
	t.Parallel()

	if got := normalizeExtensions([]string{"log", ".gz", ""}); len(got) != 2 || got[0] != ".log" || got[1] != ".gz" {
		t.Fatalf("normalize=%v", got)
	}
	if got := normalizeExtensions(AllExtensions); got != nil {
		t.Fatalf("all=%v want nil", got)
	}
	if got := normalizeExtensions(nil); len(got) != 1 || got[0] != ".log" {
		t.Fatalf("default=%v", got)
	}
}
