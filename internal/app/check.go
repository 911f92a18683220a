package app

import (
	"context"
	"os/exec"

	"cronboss/internal/launcher"
	"cronboss/internal/schedule"
	"cronboss/internal/task"
	logx "cronboss/pkg/logx"
)

// InterpreterIssue is a python task whose interpreter is not mapped or
// cannot be found.
type InterpreterIssue struct {
	Script      string
	Origin      string
	Interpreter string
	Source      launcher.Source
	// Err is set when the interpreter is not executable.
	Err error
}

// Report is the outcome of Check.
type Report struct {
	// LockDir is where exclusive tasks take their locks.
	LockDir  string
	Tasks    int
	Enabled  int
	DueNow   int
	Problems []error
	Issues   []InterpreterIssue
}

func (r Report) OK() bool { return len(r.Problems) == 0 && len(r.Issues) == 0 }

// Check loads every definition without launching anything. It reports
// definition errors and python tasks that fall through to the default
// interpreter or whose interpreter cannot be found.
func (a *App) Check(ctx context.Context) (Report, error) {
	set, err := a.defs.LoadSet(ctx)
	if err != nil {
		return Report{}, err
	}
	now := a.Now()
	r := Report{LockDir: a.locks.Dir(), Tasks: len(set.Definitions), Problems: set.Problems}
	for _, def := range set.Definitions {
		if def.Enabled {
			r.Enabled++
			if schedule.Due(def.Schedule, now, a.cfg.TickMinutes) {
				r.DueNow++
			}
		}
		if def.Kind == task.KindBash {
			continue
		}
		interp, src := a.resolver.Resolve(def)
		issue := InterpreterIssue{Script: def.Script, Origin: def.Origin, Interpreter: interp, Source: src}
		if _, err := exec.LookPath(interp); err != nil {
			issue.Err = err
		}
		if issue.Err != nil || src == launcher.SourceDefault || src == launcher.SourceFallback {
			r.Issues = append(r.Issues, issue)
		}
	}
	a.log.Info("check finished",
		logx.Int("tasks", r.Tasks),
		logx.Int("problems", len(r.Problems)),
		logx.Int("interpreter_issues", len(r.Issues)),
	)
	return r, nil
}
