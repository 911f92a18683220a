// Package launcher spawns task scripts as child processes.
//
// Every child leads its own process group so a timeout can signal the whole
// tree. Output goes through OS pipes whose write ends are closed in the parent
// right after start; the returned task.Process can be waited on independently
// of draining.
package launcher
