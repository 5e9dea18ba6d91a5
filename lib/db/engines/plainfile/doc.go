// Package plainfile implements db.KVDB with one file per key.
//
// Keys are path-escaped and stored as <key>.pt in a single directory. Each
// rewrite keeps the previous file as <key>.pt.bak until the new content is
// complete, so a process that dies mid-write leaves a backup behind. The next
// read of that key restores the backup and the half-written file is discarded.
//
// Concurrent access is serialized per key through a fixed set of lock stripes.
// Two engines must never share a directory.
package plainfile
