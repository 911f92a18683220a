package definition

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	yaml "go.yaml.in/yaml/v3"

	"cronboss/internal/task"
	logx "cronboss/pkg/logx"
)

// Set is the outcome of one directory load.
type Set struct {
	Definitions []task.Definition
	// Problems holds one *DefinitionError per skipped record or file.
	Problems []error
}

type Loader struct {
	dir string
	log logx.Logger
}

func NewLoader(dir string, log logx.Logger) *Loader {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Loader{dir: dir, log: log}
}

func (l *Loader) Dir() string { return l.dir }

// Load returns the definitions in file-name then record order. Problems are
// logged and dropped.
func (l *Loader) Load(ctx context.Context) ([]task.Definition, error) {
	set, err := l.LoadSet(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range set.Problems {
		l.log.Error("task definition skipped", logx.Err(p))
	}
	return set.Definitions, nil
}

// LoadSet is Load with the problems returned to the caller.
func (l *Loader) LoadSet(ctx context.Context) (Set, error) {
	var set Set
	files, err := l.files()
	if err != nil {
		return set, err
	}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return set, err
		}
		defs, problems := l.loadFile(path)
		set.Definitions = append(set.Definitions, defs...)
		set.Problems = append(set.Problems, problems...)
	}
	l.log.Debug("definitions loaded",
		logx.String("dir", l.dir),
		logx.Int("files", len(files)),
		logx.Int("tasks", len(set.Definitions)),
		logx.Int("skipped", len(set.Problems)),
	)
	return set, nil
}

func (l *Loader) files() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoTasksDir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			out = append(out, filepath.Join(l.dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (l *Loader) loadFile(path string) ([]task.Definition, []error) {
	name := filepath.Base(path)
	origin := strings.TrimSuffix(name, filepath.Ext(name))

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{&DefinitionError{File: name, Index: -1, Err: err}}
	}
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, []error{&DefinitionError{File: name, Index: -1, Err: err}}
	}
	if doc == nil {
		return nil, nil
	}
	list, ok := normalizeYAML(doc).([]any)
	if !ok {
		return nil, []error{&DefinitionError{File: name, Index: -1, Err: fmt.Errorf("expected a list of tasks, got %T", doc)}}
	}

	var (
		defs     []task.Definition
		problems []error
	)
	for i, item := range list {
		raw, ok := item.(map[string]any)
		if !ok {
			problems = append(problems, &DefinitionError{File: name, Index: i, Err: fmt.Errorf("expected a mapping, got %T", item)})
			continue
		}
		script, _ := raw["script"].(string)
		log := l.log.With(logx.String("file", name), logx.Int("index", i), logx.String("script", script))
		warn := func(format string, args ...any) {
			log.Warn(fmt.Sprintf(format, args...))
		}
		def, err := Normalize(raw, origin, warn)
		if err != nil {
			problems = append(problems, &DefinitionError{File: name, Index: i, Script: script, Err: err})
			continue
		}
		defs = append(defs, def)
	}
	return defs, problems
}

// normalizeYAML makes every mapping key a string.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = normalizeYAML(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}
