// Package sqlite implements the store on a single SQLite file using the
// pure-Go modernc.org/sqlite driver. SQLite serializes writers, so each
// transition is one UPDATE … RETURNING statement. Timestamps are stored as
// unix milliseconds.
package sqlite
