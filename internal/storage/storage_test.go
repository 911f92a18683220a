package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "cronboss/pkg/logx"
)

func sampleRecord(i int) RunRecord {
	return RunRecord{
		Timestamp:  time.Date(2026, 10, 19, 3, i, 0, 0, time.UTC),
		RunID:      "run-1",
		Script:     fmt.Sprintf("/srv/job%d.sh", i),
		Origin:     "nightly",
		Status:     "success",
		Duration:   1.5,
		ReturnCode: 0,
		Attempts:   1,
		StdoutTail: "ok",
	}
}

func TestOpen_Disabled(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("driver %q: (%v,%v) want (nil,nil)", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatalf("unknown driver accepted")
	}
}

func TestFileStore_AppendAndRecent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "cronboss.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := st.AppendRun(ctx, sampleRecord(i)); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
	}

	// One JSON object per line.
	f, err := os.Open(filepath.Join(dir, "cronboss.audit.jsonl"))
	if err != nil {
		t.Fatalf("open audit: %v", err)
	}
	defer f.Close()
	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %d not JSON: %v", lines, err)
		}
		for _, k := range []string{"timestamp", "script", "status", "duration", "returncode", "origin", "stdout_tail", "stderr_tail"} {
			if _, ok := m[k]; !ok {
				t.Fatalf("line %d missing %q", lines, k)
			}
		}
		lines++
	}
	if lines != 5 {
		t.Fatalf("lines=%d want 5", lines)
	}

	recent, err := st.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 3 || recent[0].Script != "/srv/job2.sh" || recent[2].Script != "/srv/job4.sh" {
		t.Fatalf("recent=%+v", recent)
	}
}

func TestSQLiteStore_AppendAndRecent(t *testing.T) {
	t.Parallel()

	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "runs.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		r := sampleRecord(i)
		if i == 3 {
			r.Status, r.ReturnCode, r.StderrTail = "failure", 2, "boom"
		}
		if err := st.AppendRun(ctx, r); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
	}
	recent, err := st.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("recent=%d want 2", len(recent))
	}
	last := recent[1]
	if last.Script != "/srv/job3.sh" || last.Status != "failure" || last.ReturnCode != 2 || last.StderrTail != "boom" {
		t.Fatalf("last=%+v", last)
	}
	if !last.Timestamp.Equal(sampleRecord(3).Timestamp) {
		t.Fatalf("timestamp=%s", last.Timestamp)
	}
}

func TestTail(t *testing.T) {
	t.Parallel()

	if got := Tail("abcdef", 3); got != "def" {
		t.Fatalf("Tail=%q", got)
	}
	if got := Tail("short", 400); got != "short" {
		t.Fatalf("Tail=%q", got)
	}
	// Never splits a multi-byte rune.
	if got := Tail("xxé", 1); got != "" && got != "é" {
		t.Fatalf("Tail split a rune: %q", got)
	}
}
