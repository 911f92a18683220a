package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "cronboss/pkg/logx"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ts          TEXT    NOT NULL,
	run_id      TEXT,
	script      TEXT    NOT NULL,
	origin      TEXT,
	status      TEXT    NOT NULL,
	duration    REAL    NOT NULL,
	returncode  INTEGER NOT NULL,
	attempts    INTEGER NOT NULL,
	stdout_tail TEXT,
	stderr_tail TEXT
);
CREATE INDEX IF NOT EXISTS runs_script_ts ON runs(script, ts);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		// Overlapping invocations write to the same file.
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendRun(ctx context.Context, r RunRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(ts, run_id, script, origin, status, duration, returncode, attempts, stdout_tail, stderr_tail)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		r.Timestamp.Format(time.RFC3339Nano), nullStr(r.RunID), r.Script, nullStr(r.Origin), r.Status,
		r.Duration, r.ReturnCode, r.Attempts, nullStr(r.StdoutTail), nullStr(r.StderrTail),
	)
	return err
}

func (s *sqliteStore) Recent(ctx context.Context, n int) ([]RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, run_id, script, origin, status, duration, returncode, attempts, stdout_tail, stderr_tail
		 FROM runs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r                         RunRecord
			ts                        string
			runID, origin, sout, serr sql.NullString
		)
		if err := rows.Scan(&ts, &runID, &r.Script, &origin, &r.Status, &r.Duration, &r.ReturnCode, &r.Attempts, &sout, &serr); err != nil {
			return nil, err
		}
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		r.RunID, r.Origin = runID.String, origin.String
		r.StdoutTail, r.StderrTail = sout.String, serr.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
