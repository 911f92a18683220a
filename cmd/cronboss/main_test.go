package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRun_UsageAndUnknownCommand(t *testing.T) {
	t.Parallel()

	var out, errb bytes.Buffer
	if code := run([]string{"help"}, &out, &errb); code != 0 || !strings.Contains(out.String(), "commands:") {
		t.Fatalf("help: code=%d out=%q", code, out.String())
	}
	out.Reset()
	if code := run([]string{"frobnicate"}, &out, &errb); code != 2 {
		t.Fatalf("unknown command: code=%d", code)
	}
}

func TestRun_CheckReportsProblems(t *testing.T) {
	dir := t.TempDir()
	tasks := filepath.Join(dir, "tasks")
	if err := os.MkdirAll(tasks, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tasks, "bad.yaml"), []byte("- type: bash\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := filepath.Join(dir, "cronboss.json")
	body := `{"tasks_dir":"` + tasks + `","lock_dir":"` + filepath.Join(dir, "locks") + `","logging":{"level":"error","console":true}}`
	if err := os.WriteFile(cfg, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out, errb bytes.Buffer
	code := run([]string{"-config", cfg, "check"}, &out, &errb)
	if code != 1 {
		t.Fatalf("code=%d out=%q err=%q", code, out.String(), errb.String())
	}
	if !strings.Contains(out.String(), "lock dir: "+filepath.Join(dir, "locks")) {
		t.Fatalf("lock dir missing: %q", out.String())
	}
	if !strings.Contains(out.String(), "definition:") {
		t.Fatalf("out=%q", out.String())
	}
}
