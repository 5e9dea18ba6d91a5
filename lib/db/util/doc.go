// Package util provides utility components for the engines and the worker pool.
//
// The package contains:
//   - functions: seed generation, the FNV-1a string hash and key striping used by the
//     maple shards and the plainfile lock stripes
//   - statistics: distribution statistics reported in db.DatabaseInfo metadata
//   - lockfreempsc: a lock-free Multi-Producer Single-Consumer (MPSC) queue, the task queue
//     of the pool package
package util
