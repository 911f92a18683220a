// Package runner performs one scheduling pass: it loads task definitions,
// launches the ones due at the given time, supervises them until every
// launched task reached a terminal outcome, then records and announces the
// results.
//
// The pass is a single cooperative loop. Child processes run concurrently at
// the OS level; retries are serialized and the retry delay blocks the loop.
package runner
