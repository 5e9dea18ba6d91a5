// Package store provides the synchronous storage capability that books are built on.
// It is an abstraction layer over the lower-level db.KVDB implementations with
// feature detection and unified error reporting.
//
// Key Components:
//
//   - IStore Interface: Set, Get, Has, Delete and Clear on byte values. Every
//     implementation must be safe for concurrent use because books run storage
//     operations from several worker goroutines without locking.
//
//   - Error System: *Error carries a RetCode, a message and optionally the error
//     that caused it. errors.Is and errors.As see through it.
//
//   - DBFactory: A function type that abstracts the creation of underlying db.KVDB
//     instances, providing dependency injection and flexible configuration of
//     storage backends.
//
// Implementations:
//
//   - lstore: local, single node, directly on a db.KVDB.
//   - dstore: replicated through Dragonboat RAFT.
//   - instrumented: decorator around any IStore that records per-operation metrics.
package store
