// Package schedule decides whether a task is due at a given instant.
//
// A Spec is either the hours/minutes/days triad of a task definition or a
// standard cron expression. The engine is invoked once per external tick, so
// minute matching accepts any configured minute that fell inside the trailing
// tick window ending at the current minute.
package schedule
