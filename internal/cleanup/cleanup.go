// Package cleanup prunes old files (typically task logs) from directories.
package cleanup

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	logx "cronboss/pkg/logx"
)

// Rule selects which files to delete. KeepLast wins over KeepDays; with
// neither set nothing is deleted.
type Rule struct {
	KeepLast *int
	KeepDays *int
	// Extensions filters by suffix (dot optional). Nil means [".log"];
	// AllExtensions matches every file.
	Extensions []string
	Recursive  bool
	DryRun     bool
}

// AllExtensions is the Extensions value matching every file.
var AllExtensions = []string{"*"}

// Directive is the cleanup block attached to a task definition.
type Directive struct {
	Paths []string
	Rule  Rule
}

// Report summarizes one Clean call.
type Report struct {
	Scanned int
	Deleted []string
	// Planned lists files a dry run would have deleted.
	Planned []string
	Failed  int
}

type Cleaner struct {
	log logx.Logger
	now func() time.Time
}

func New(log logx.Logger) *Cleaner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Cleaner{log: log, now: time.Now}
}

type candidate struct {
	path  string
	mtime time.Time
}

// Clean applies rule to every directory in paths. Missing or non-directory
// paths are skipped with a warning. Per-file delete errors are counted, not
// returned.
func (c *Cleaner) Clean(ctx context.Context, paths []string, rule Rule) (Report, error) {
	var rep Report
	if rule.KeepLast == nil && rule.KeepDays == nil {
		c.log.Info("cleanup: no keep_last/keep_days rule, nothing to do")
		return rep, nil
	}
	exts := normalizeExtensions(rule.Extensions)

	for _, base := range paths {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		st, err := os.Stat(base)
		if err != nil || !st.IsDir() {
			c.log.Warn("cleanup: path skipped", logx.String("path", base), logx.Err(err))
			continue
		}

		files, err := collect(base, rule.Recursive, exts)
		if err != nil {
			c.log.Warn("cleanup: scan failed", logx.String("path", base), logx.Err(err))
			continue
		}
		rep.Scanned += len(files)

		victims := c.pick(files, rule)
		c.log.Info("cleanup: scanned",
			logx.String("path", base),
			logx.Int("files", len(files)),
			logx.Int("delete", len(victims)),
			logx.Bool("dry_run", rule.DryRun),
		)
		for _, f := range victims {
			if rule.DryRun {
				rep.Planned = append(rep.Planned, f.path)
				c.log.Debug("cleanup: would delete", logx.String("file", f.path))
				continue
			}
			if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				rep.Failed++
				c.log.Warn("cleanup: delete failed", logx.String("file", f.path), logx.Err(err))
				continue
			}
			rep.Deleted = append(rep.Deleted, f.path)
		}
	}
	return rep, nil
}

func (c *Cleaner) pick(files []candidate, rule Rule) []candidate {
	if rule.KeepLast != nil {
		n := *rule.KeepLast
		if n < 0 || len(files) <= n {
			return nil
		}
		sort.SliceStable(files, func(i, j int) bool { return files[i].mtime.After(files[j].mtime) })
		return files[n:]
	}
	days := *rule.KeepDays
	if days < 0 {
		return nil
	}
	cutoff := c.now().Add(-time.Duration(days) * 24 * time.Hour)
	var out []candidate
	for _, f := range files {
		if f.mtime.Before(cutoff) {
			out = append(out, f)
		}
	}
	return out
}

func collect(base string, recursive bool, exts []string) ([]candidate, error) {
	var out []candidate
	add := func(path string, d fs.DirEntry) {
		if !d.Type().IsRegular() || !matchExt(d.Name(), exts) {
			return
		}
		info, err := d.Info()
		if err != nil {
			return
		}
		out = append(out, candidate{path: path, mtime: info.ModTime()})
	}

	if !recursive {
		entries, err := os.ReadDir(base)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			add(filepath.Join(base, e.Name()), e)
		}
		return out, nil
	}

	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped.
			if d != nil && d.IsDir() && path != base {
				return fs.SkipDir
			}
			return err
		}
		add(path, d)
		return nil
	})
	return out, err
}

func normalizeExtensions(in []string) []string {
	if in == nil {
		return []string{".log"}
	}
	out := make([]string, 0, len(in))
	for _, e := range in {
		e = strings.TrimSpace(e)
		switch {
		case e == "":
			continue
		case e == "*" || strings.EqualFold(e, "all"):
			return nil
		case !strings.HasPrefix(e, "."):
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

// matchExt with nil exts matches everything.
func matchExt(name string, exts []string) bool {
	if exts == nil {
		return true
	}
	for _, e := range exts {
		if strings.HasSuffix(name, e) {
			return true
		}
	}
	return false
}
