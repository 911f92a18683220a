package storage

import (
	"context"
	"errors"
	"strings"

	logx "cronboss/pkg/logx"
)

// Store is the audit sink used by the runner and the history command.
type Store interface {
	AppendRun(ctx context.Context, r RunRecord) error
	// Recent returns up to n records, oldest first.
	Recent(ctx context.Context, n int) ([]RunRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file", "jsonl":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
