package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mattn/go-shellwords"
	"golang.org/x/sys/unix"

	"cronboss/internal/task"
	logx "cronboss/pkg/logx"
)

// LaunchError wraps any failure to spawn a task.
type LaunchError struct {
	Script string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Script, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

type Config struct {
	Resolver Resolver
	// ProjectRootMarker names the folder prepended to PYTHONPATH.
	ProjectRootMarker string
	// Shell runs bash tasks (default "bash").
	Shell string
	// Env is the base environment (default os.Environ()).
	Env []string
}

type Launcher struct {
	cfg Config
	log logx.Logger
}

func New(cfg Config, log logx.Logger) *Launcher {
	if cfg.Shell == "" {
		cfg.Shell = "bash"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Launcher{cfg: cfg, log: log}
}

// CommandLine builds argv for def without starting anything.
func (l *Launcher) CommandLine(def task.Definition) ([]string, error) {
	script, err := filepath.Abs(def.Script)
	if err != nil {
		return nil, err
	}
	args, err := shellwords.Parse(def.Args)
	if err != nil {
		return nil, fmt.Errorf("args %q: %w", def.Args, err)
	}

	var argv []string
	switch def.Kind {
	case task.KindBash:
		argv = append(argv, l.cfg.Shell, script)
	case task.KindPython, "":
		interp, _ := l.cfg.Resolver.Resolve(def)
		argv = append(argv, interp, script)
	default:
		return nil, fmt.Errorf("unsupported task type %q", def.Kind)
	}
	return append(argv, args...), nil
}

func (l *Launcher) environ(def task.Definition, script string) []string {
	env := l.cfg.Env
	if env == nil {
		env = os.Environ()
	}
	env = append([]string(nil), env...)
	if def.Kind == task.KindBash {
		return env
	}

	root := ProjectRoot(script, l.cfg.ProjectRootMarker)
	for i, kv := range env {
		if v, ok := strings.CutPrefix(kv, "PYTHONPATH="); ok {
			if v != "" {
				env[i] = "PYTHONPATH=" + root + string(os.PathListSeparator) + v
			} else {
				env[i] = "PYTHONPATH=" + root
			}
			return env
		}
	}
	return append(env, "PYTHONPATH="+root)
}

// Launch starts one attempt of def. The child runs in its own process group
// with stdin from /dev/null.
func (l *Launcher) Launch(ctx context.Context, def task.Definition) (task.Handle, error) {
	if err := ctx.Err(); err != nil {
		return task.Handle{}, &LaunchError{Script: def.Script, Err: err}
	}
	argv, err := l.CommandLine(def)
	if err != nil {
		return task.Handle{}, &LaunchError{Script: def.Script, Err: err}
	}
	script := argv[1]
	if _, err := os.Stat(script); err != nil {
		return task.Handle{}, &LaunchError{Script: def.Script, Err: err}
	}

	workDir := def.WorkDir
	if workDir == "" {
		workDir = filepath.Dir(script)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = workDir
	cmd.Env = l.environ(def, script)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	outR, outW, err := os.Pipe()
	if err != nil {
		return task.Handle{}, &LaunchError{Script: def.Script, Err: err}
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		_ = outR.Close()
		_ = outW.Close()
		return task.Handle{}, &LaunchError{Script: def.Script, Err: err}
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	startErr := cmd.Start()
	// The child holds its own copies of the write ends.
	_ = outW.Close()
	_ = errW.Close()
	if startErr != nil {
		_ = outR.Close()
		_ = errR.Close()
		return task.Handle{}, &LaunchError{Script: def.Script, Err: startErr}
	}

	l.log.Info("launched",
		logx.String("script", script),
		logx.String("kind", string(def.Kind)),
		logx.Int("pid", cmd.Process.Pid),
		logx.String("cwd", workDir),
		logx.Strings("cmd", argv),
	)
	return task.Handle{
		Proc:        &process{cmd: cmd, stdout: outR, stderr: errR},
		CommandLine: argv,
		ScriptPath:  script,
	}, nil
}

type process struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File
}

func (p *process) Pid() int              { return p.cmd.Process.Pid }
func (p *process) Stdout() io.ReadCloser { return p.stdout }
func (p *process) Stderr() io.ReadCloser { return p.stderr }

func (p *process) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// SignalGroup signals the process group led by the child. A group that is
// already gone is not an error.
func (p *process) SignalGroup(sig syscall.Signal) error {
	err := unix.Kill(-p.cmd.Process.Pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

func (p *process) Kill() error {
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
