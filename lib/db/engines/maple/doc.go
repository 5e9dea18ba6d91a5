// Package maple implements the in-memory engine of paperKV. It provides a complete
// implementation of the db.KVDB interface with a focus on thread safety and
// predictable memory usage.
//
// Key Components:
//
//   - mapleImpl: The central database structure implementing db.KVDB. It owns a fixed
//     number of shards and routes every key to one shard with a seeded FNV-1a hash.
//
//   - Shard: A partition of the database that manages a subset of the key space.
//     Each shard is an xsync.MapOf, a concurrent map that is itself internally
//     striped. Splitting the key space once more keeps Range operations (Save, GetInfo)
//     short and lets them run shard by shard without blocking writers.
//
// Value Ownership:
//
//	Values are copied on Set and on Get. A caller can never observe or corrupt the
//	bytes held by the database, which is what allows the book layer to hand decoded
//	values back to callers without further copies.
//
// Persistence:
//
//	maple keeps everything in memory. Save writes a fuzzy snapshot in a small binary
//	format (magic number, version, seed, length-prefixed keys and values) and Load
//	replaces the content with such a snapshot. The replicated store (lib/store/dstore)
//	uses these two operations for raft snapshots.
//
// Usage Example:
//
//	database := maple.NewMapleDB(nil) // shards = number of CPUs
//	_ = database.Set("user:1", []byte(`{"name":"ada"}`))
//	value, found, _ := database.Get("user:1")
package maple
