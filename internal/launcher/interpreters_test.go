package launcher

import (
	"os"
	"path/filepath"
	"testing"

	"cronboss/internal/task"
)

func TestResolver_Order(t *testing.T) {
	t.Parallel()

	r := Resolver{
		Map: Interpreters{
			"nightly":  "/venv/nightly/bin/python",
			"mixonaut": "/venv/mixonaut/bin/python",
		},
		Default: "/venv/default/bin/python",
	}
	cases := []struct {
		name string
		def  task.Definition
		want string
		src  Source
	}{
		{"explicit", task.Definition{Interpreter: "/usr/bin/python3.12", Origin: "nightly"}, "/usr/bin/python3.12", SourceExplicit},
		{"origin", task.Definition{Origin: "nightly", Script: "/home/me/dev/mixonaut/a.py"}, "/venv/nightly/bin/python", SourceOrigin},
		{"project", task.Definition{Origin: "other", Script: "/home/me/dev/mixonaut/mixonaut/a.py"}, "/venv/mixonaut/bin/python", SourceProject},
		{"default", task.Definition{Origin: "other", Script: "/srv/a.py"}, "/venv/default/bin/python", SourceDefault},
	}
	for _, c := range cases {
		got, src := r.Resolve(c.def)
		if got != c.want || src != c.src {
			t.Fatalf("%s: Resolve=(%q,%s) want (%q,%s)", c.name, got, src, c.want, c.src)
		}
	}

	if got, src := (Resolver{}).Resolve(task.Definition{Script: "/srv/a.py"}); got != "python3" || src != SourceFallback {
		t.Fatalf("empty resolver: (%q,%s)", got, src)
	}
}

func TestDetectProject(t *testing.T) {
	t.Parallel()

	if got := DetectProject("/home/me/dev/mixonaut/scripts/a.py", DefaultRootMarkers); got != "mixonaut" {
		t.Fatalf("DetectProject=%q", got)
	}
	if got := DetectProject("/srv/jobs/a.py", DefaultRootMarkers); got != "" {
		t.Fatalf("DetectProject=%q want empty", got)
	}
}

func TestProjectRoot(t *testing.T) {
	t.Parallel()

	if got := ProjectRoot("/home/me/brainops/tools/x/a.py", "brainops"); got != "/home/me/brainops" {
		t.Fatalf("marker root=%q", got)
	}
	if got := ProjectRoot("/srv/app/scripts/a.py", "brainops"); got != "/srv/app" {
		t.Fatalf("grandparent root=%q", got)
	}
}

func TestLoadInterpreters(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := filepath.Join(dir, "venvs.yaml")
	body := "mixonaut: /venv/mixonaut/bin/python\nbroken: 12\nempty: \"\"\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := LoadInterpreters(p)
	if err != nil {
		t.Fatalf("LoadInterpreters: %v", err)
	}
	if len(m) != 1 || m["mixonaut"] != "/venv/mixonaut/bin/python" {
		t.Fatalf("map=%v", m)
	}

	m, err = LoadInterpreters(filepath.Join(dir, "missing.yaml"))
	if err != nil || len(m) != 0 {
		t.Fatalf("missing file: (%v,%v)", m, err)
	}
}
