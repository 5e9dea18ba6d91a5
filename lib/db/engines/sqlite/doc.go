// Package sqlite implements db.KVDB on top of a single SQLite table using the
// pure Go modernc.org/sqlite driver.
//
// Files are opened in WAL mode with a busy timeout. Snapshots (Save/Load) use a
// streaming format so the entry count does not have to be known up front.
package sqlite
