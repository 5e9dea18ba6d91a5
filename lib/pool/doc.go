// Package pool provides a fixed size worker pool on top of the lock-free MPSC
// queue from lib/db/util.
//
// Submit appends to the queue and returns immediately, no matter how many jobs
// are waiting. The queue's consumer hands jobs to the workers through an
// unbuffered channel, so at most Workers jobs run at the same time. Jobs of a
// single submitting goroutine are dequeued in submission order, but any of the
// workers may pick them up, so neither start nor completion order is
// guaranteed.
//
// Close stops accepting jobs, lets the workers finish everything that was
// accepted and then returns. A job that panics is recovered and counted, its
// worker keeps running.
//
// Metrics (rcrowley/go-metrics, prefix "pool.<name>."):
//
//	submitted, completed, panicked   counters
//	pending, active                  gauges
//	queue_wait, run                  timers
package pool
