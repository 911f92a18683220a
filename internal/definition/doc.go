// Package definition loads task documents from a directory.
//
// Each *.yaml / *.yml file holds a list of task records; the file stem is
// the origin of its tasks. Records are normalized leniently: a broken record
// becomes a DefinitionError and is skipped, a broken file is skipped as a
// whole, and only an unreadable directory fails the load.
package definition
