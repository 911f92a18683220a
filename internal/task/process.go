package task

import (
	"io"
	"syscall"
)

// Process is a spawned child as seen by a Task.
//
// Stdout and Stderr must be drained concurrently with Wait; closing them
// unblocks a pending read.
type Process interface {
	Pid() int
	Stdout() io.ReadCloser
	Stderr() io.ReadCloser
	// Wait blocks until the child exits and returns its exit code
	// (-1 when it was terminated by a signal).
	Wait() (int, error)
	// SignalGroup delivers sig to the child's whole process group.
	SignalGroup(sig syscall.Signal) error
	// Kill force-kills the group leader.
	Kill() error
}

// Handle is what a launcher returns for one attempt.
type Handle struct {
	Proc        Process
	CommandLine []string
	ScriptPath  string
}
