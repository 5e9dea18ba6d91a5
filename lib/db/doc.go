// Package db provides a standardized interface for the key-value engines a book is stored in.
// It defines the KVDB interface that allows for consistent interaction with various
// database backends while abstracting implementation details.
//
// Key Components:
//
//   - KVDB Interface: The core interface that all engines must satisfy.
//     It provides methods for basic operations (Set, Get, Has, Delete, Clear),
//     metadata retrieval (GetInfo) and persistence operations (Save, Load).
//     Unlike values on the book level, all values are plain byte slices.
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     can advertise through the SupportsFeature method. This allows the store layer to
//     reject unsupported operations with a proper error instead of failing silently.
//
//   - Database Information: The DatabaseInfo structure reports size, key count,
//     implementation type and implementation-specific metadata. For most engines
//     these values are estimates.
//
// Engines:
//
//   - maple (lib/db/engines/maple): sharded in-memory engine with binary snapshots.
//   - plainfile (lib/db/engines/plainfile): one file per key below a directory.
//   - sqlite (lib/db/engines/sqlite): a single table in an SQLite database.
//
// Concurrency: every engine must be safe for concurrent use. The layers above a KVDB
// perform no locking of their own.
//
// The testing package (lib/db/testing) provides a shared test suite every engine runs.
package db
