package pool

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/paperKV/lib/db/util"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

var log = logger.GetLogger("pool")

// DefaultWorkers is the number of workers a pool gets if none are configured
const DefaultWorkers = 10

var (
	// ErrPoolClosed is returned by Submit once Close was called
	ErrPoolClosed = errors.New("pool is closed")
	// ErrNilJob is returned by Submit for a nil function
	ErrNilJob = errors.New("job must not be nil")
)

// job is one queued function together with the time it was queued
type job struct {
	fn       func()
	enqueued time.Time
}

// Pool runs submitted functions on a fixed number of worker goroutines.
// Jobs wait in an unbounded lock-free queue, so Submit never blocks.
type Pool struct {
	name    string
	size    int
	queue   *util.LockFreeMPSC[job]
	workers sync.WaitGroup

	// Submit holds mu shared, Close exclusively. Every job accepted before
	// Close is therefore in the queue when the queue gets closed.
	mu     sync.RWMutex
	closed bool

	pending atomic.Int64
	active  atomic.Int64

	registry  gometrics.Registry
	prefix    string
	submitted gometrics.Counter
	completed gometrics.Counter
	panicked  gometrics.Counter
	waitTimer gometrics.Timer
	runTimer  gometrics.Timer
}

// Stats is a point in time view of a pool
type Stats struct {
	Name      string `json:"name"`
	Workers   int    `json:"workers"`
	Submitted int64  `json:"submitted"`
	Completed int64  `json:"completed"`
	Panicked  int64  `json:"panicked"`
	Pending   int64  `json:"pending"`
	Active    int64  `json:"active"`
	Closed    bool   `json:"closed"`
}

// New starts a pool with the given number of workers (DefaultWorkers if < 1).
// Metrics are registered in registry under "pool.<name>.*"; a nil registry gets a private one.
func New(name string, workers int, registry gometrics.Registry) *Pool {
	if workers < 1 {
		workers = DefaultWorkers
	}
	if registry == nil {
		registry = gometrics.NewRegistry()
	}

	prefix := fmt.Sprintf("pool.%s.", name)
	p := &Pool{
		name:      name,
		size:      workers,
		queue:     util.NewLockFreeMPSC[job](),
		registry:  registry,
		prefix:    prefix,
		submitted: gometrics.GetOrRegisterCounter(prefix+"submitted", registry),
		completed: gometrics.GetOrRegisterCounter(prefix+"completed", registry),
		panicked:  gometrics.GetOrRegisterCounter(prefix+"panicked", registry),
		waitTimer: gometrics.GetOrRegisterTimer(prefix+"queue_wait", registry),
		runTimer:  gometrics.GetOrRegisterTimer(prefix+"run", registry),
	}

	// gauges read this pool's state, a previous pool with the same name must not shadow them
	registry.Unregister(prefix + "pending")
	registry.Unregister(prefix + "active")
	gometrics.NewRegisteredFunctionalGauge(prefix+"pending", registry, p.pending.Load)
	gometrics.NewRegisteredFunctionalGauge(prefix+"active", registry, p.active.Load)

	p.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}

	log.Debugf("pool %s started with %d workers", name, workers)
	return p
}

// work runs jobs until the queue is closed and drained
func (p *Pool) work() {
	defer p.workers.Done()
	for j := range p.queue.Recv() {
		p.run(j)
	}
}

// run executes a single job. A panic is recovered so the worker survives it.
func (p *Pool) run(j *job) {
	p.pending.Add(-1)
	p.active.Add(1)
	p.waitTimer.UpdateSince(j.enqueued)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			p.panicked.Inc(1)
			log.Errorf("pool %s: job panicked: %v\n%s", p.name, r, debug.Stack())
		}
		p.runTimer.UpdateSince(start)
		p.active.Add(-1)
		p.completed.Inc(1)
	}()

	j.fn()
}

// Submit queues fn for execution on one of the workers. It never blocks.
// After Close it returns ErrPoolClosed and fn is not run.
func (p *Pool) Submit(fn func()) error {
	if fn == nil {
		return ErrNilJob
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	p.pending.Add(1)
	p.submitted.Inc(1)
	if !p.queue.Push(&job{fn: fn, enqueued: time.Now()}) {
		p.pending.Add(-1)
		p.submitted.Dec(1)
		return ErrPoolClosed
	}
	return nil
}

// Close stops accepting jobs, runs every job that is already queued and waits
// for the workers to exit. Calling Close more than once is safe.
//
// Close must not be called from inside a job, it would wait for itself.
func (p *Pool) Close() {
	p.mu.Lock()
	first := !p.closed
	if first {
		p.closed = true
		p.queue.Close()
	}
	p.mu.Unlock()

	p.workers.Wait()

	if first {
		p.registry.Unregister(p.prefix + "pending")
		p.registry.Unregister(p.prefix + "active")
		log.Debugf("pool %s closed after %d jobs", p.name, p.completed.Count())
	}
}

// Name returns the name the pool was created with
func (p *Pool) Name() string {
	return p.name
}

// Registry returns the registry holding the pool metrics
func (p *Pool) Registry() gometrics.Registry {
	return p.registry
}

// Stats returns the current counters of the pool
func (p *Pool) Stats() Stats {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()

	return Stats{
		Name:      p.name,
		Workers:   p.size,
		Submitted: p.submitted.Count(),
		Completed: p.completed.Count(),
		Panicked:  p.panicked.Count(),
		Pending:   p.pending.Load(),
		Active:    p.active.Load(),
		Closed:    closed,
	}
}
