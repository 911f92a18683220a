package definition

import (
	"errors"
	"fmt"
)

// ErrNoTasksDir is returned when the tasks directory cannot be listed.
var ErrNoTasksDir = errors.New("tasks directory unreadable")

// DefinitionError describes one rejected record (or file, when Index < 0).
type DefinitionError struct {
	File   string
	Index  int
	Script string
	Err    error
}

func (e *DefinitionError) Error() string {
	switch {
	case e.Index < 0:
		return fmt.Sprintf("%s: %v", e.File, e.Err)
	case e.Script != "":
		return fmt.Sprintf("%s[%d] (%s): %v", e.File, e.Index, e.Script, e.Err)
	default:
		return fmt.Sprintf("%s[%d]: %v", e.File, e.Index, e.Err)
	}
}

func (e *DefinitionError) Unwrap() error { return e.Err }
