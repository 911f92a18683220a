package launcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"cronboss/internal/task"
)

const fallbackPython = "python3"

// DefaultRootMarkers are the folders after which the project name follows,
// e.g. /home/me/dev/<project>/scripts/job.py.
var DefaultRootMarkers = []string{"dev", "bin"}

// Interpreters maps project names to python executables. It is loaded once
// and only read afterwards.
type Interpreters map[string]string

// LoadInterpreters reads a YAML mapping of project name to interpreter path.
// A missing file yields an empty map. Non-string entries are ignored.
func LoadInterpreters(path string) (Interpreters, error) {
	if strings.TrimSpace(path) == "" {
		return Interpreters{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Interpreters{}, nil
		}
		return nil, fmt.Errorf("read interpreters %s: %w", path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse interpreters %s: %w", path, err)
	}
	out := make(Interpreters, len(raw))
	for k, v := range raw {
		s, ok := v.(string)
		if !ok || k == "" || strings.TrimSpace(s) == "" {
			continue
		}
		out[k] = strings.TrimSpace(s)
	}
	return out, nil
}

// Resolver picks the interpreter of python tasks.
type Resolver struct {
	Map     Interpreters
	Default string
	Markers []string
}

// Source says which rule produced an interpreter.
type Source string

const (
	SourceExplicit Source = "explicit"
	SourceOrigin   Source = "origin"
	SourceProject  Source = "project"
	SourceDefault  Source = "default"
	SourceFallback Source = "fallback"
)

// Resolve applies: explicit interpreter, map entry for the origin document,
// map entry for the project detected from the script path, the configured
// default, then python3.
func (r Resolver) Resolve(def task.Definition) (string, Source) {
	if def.Interpreter != "" {
		return def.Interpreter, SourceExplicit
	}
	if def.Origin != "" {
		if p, ok := r.Map[def.Origin]; ok {
			return p, SourceOrigin
		}
	}
	if project := DetectProject(def.Script, r.markers()); project != "" {
		if p, ok := r.Map[project]; ok {
			return p, SourceProject
		}
	}
	if r.Default != "" {
		return r.Default, SourceDefault
	}
	return fallbackPython, SourceFallback
}

func (r Resolver) markers() []string {
	if len(r.Markers) == 0 {
		return DefaultRootMarkers
	}
	return r.Markers
}

// DetectProject returns the path element that follows the first marker
// folder found in script, or "".
func DetectProject(script string, markers []string) string {
	parts := strings.Split(filepath.ToSlash(filepath.Clean(script)), "/")
	for _, m := range markers {
		for i, p := range parts {
			if p == m && i+1 < len(parts) && parts[i+1] != "" {
				return parts[i+1]
			}
		}
	}
	return ""
}

// ProjectRoot is the nearest parent named marker, else the script's
// grandparent directory.
func ProjectRoot(script, marker string) string {
	dir := filepath.Dir(script)
	if marker != "" {
		for d := dir; ; {
			if filepath.Base(d) == marker {
				return d
			}
			parent := filepath.Dir(d)
			if parent == d {
				break
			}
			d = parent
		}
	}
	return filepath.Dir(dir)
}
