// Package instrumented provides a store.IStore decorator that records the number
// of calls, errors and the latency of every operation in a VictoriaMetrics set.
// Reads additionally count hits and misses.
//
// Series are named paperkv_store_* and labelled with the book name, e.g.
//
//	paperkv_store_ops_total{book="users",op="set"}
//	paperkv_store_op_duration_seconds_bucket{book="users",op="get",vmrange="..."}
//
// The decorator adds no locking. It is as safe for concurrent use as the store it wraps.
package instrumented
