// Package lstore implements a local, single-node key-value store based on the
// store.IStore interface. It is a thin wrapper around any db.KVDB implementation.
//
// Key Features:
//   - Direct integration with db.KVDB implementations
//   - Feature detection to handle unsupported operations gracefully
//   - Engine errors are reported as *store.Error with a matching RetCode
//
// Implementation Details:
//
//   - Feature Detection: Before executing operations, the store checks if the underlying
//     db.KVDB implementation supports the requested feature through the SupportsFeature
//     method. Unsupported operations return RetCUnsupportedOperation rather than failing
//     silently or producing undefined behavior.
//
//   - Composition Architecture: The store.DBFactory injects the underlying db.KVDB
//     implementation. Persistence therefore depends on the engine: maple keeps data in
//     memory, plainfile and sqlite write to disk.
//
// Thread Safety:
//
//	The store adds no locking of its own. Every db.KVDB implementation is required
//	to be safe for concurrent use.
//
// Usage Example:
//
//	factory := func() (db.KVDB, error) { return maple.NewMapleDB(nil), nil }
//	s, err := lstore.NewLocalStore(factory)
//
//	err = s.Set("session:123", sessionData)
//	value, exists, err := s.Get("session:123")
//
// For distributed scenarios requiring consensus across multiple nodes, consider
// using the dstore package instead, which provides a RAFT-based implementation
// of the same interface with strong consistency guarantees.
package lstore
