package pool

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

func TestRunsAllJobs(t *testing.T) {
	p := New("all", 4, nil)

	const numJobs = 1000
	var ran atomic.Int64
	var wg sync.WaitGroup
	wg.Add(numJobs)

	for i := 0; i < numJobs; i++ {
		if err := p.Submit(func() {
			defer wg.Done()
			ran.Add(1)
		}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	wg.Wait()
	p.Close()

	if got := ran.Load(); got != numJobs {
		t.Errorf("expected %d jobs to run, got %d", numJobs, got)
	}
	stats := p.Stats()
	if stats.Submitted != numJobs || stats.Completed != numJobs || stats.Pending != 0 || stats.Active != 0 {
		t.Errorf("unexpected stats after drain: %+v", stats)
	}
	if !stats.Closed || stats.Workers != 4 || stats.Name != "all" {
		t.Errorf("unexpected stats header: %+v", stats)
	}
}

func TestDefaultWorkers(t *testing.T) {
	p := New("default", 0, nil)
	defer p.Close()
	if got := p.Stats().Workers; got != DefaultWorkers {
		t.Errorf("expected %d workers, got %d", DefaultWorkers, got)
	}
}

func TestConcurrencyIsBounded(t *testing.T) {
	const workers = 3
	p := New("bounded", workers, nil)

	var current, peak atomic.Int64
	release := make(chan struct{})
	var wg sync.WaitGroup

	const numJobs = 20
	wg.Add(numJobs)
	for i := 0; i < numJobs; i++ {
		_ = p.Submit(func() {
			defer wg.Done()
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			current.Add(-1)
		})
	}

	// wait until all workers are busy
	deadline := time.Now().Add(5 * time.Second)
	for p.Stats().Active < workers {
		if time.Now().After(deadline) {
			t.Fatalf("workers did not pick up jobs, stats: %+v", p.Stats())
		}
		time.Sleep(time.Millisecond)
	}

	if pending := p.Stats().Pending; pending != numJobs-workers {
		t.Errorf("expected %d pending jobs, got %d", numJobs-workers, pending)
	}

	close(release)
	wg.Wait()
	p.Close()

	if got := peak.Load(); got != workers {
		t.Errorf("expected peak concurrency %d, got %d", workers, got)
	}
}

func TestSubmitDoesNotBlock(t *testing.T) {
	p := New("nonblocking", 1, nil)
	block := make(chan struct{})
	_ = p.Submit(func() { <-block })

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10_000; i++ {
			_ = p.Submit(func() {})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Submit blocked while the only worker was busy")
	}

	close(block)
	p.Close()
	if stats := p.Stats(); stats.Completed != 10_001 {
		t.Errorf("expected all jobs to complete on Close, got %+v", stats)
	}
}

func TestCloseDrainsQueue(t *testing.T) {
	p := New("drain", 2, nil)

	var ran atomic.Int64
	for i := 0; i < 500; i++ {
		_ = p.Submit(func() {
			time.Sleep(10 * time.Microsecond)
			ran.Add(1)
		})
	}

	p.Close()

	if got := ran.Load(); got != 500 {
		t.Errorf("Close returned before draining: %d of 500 jobs ran", got)
	}
}

// TestDequeueOrder uses a single worker, so jobs start in the order they leave the queue
func TestDequeueOrder(t *testing.T) {
	p := New("order", 1, nil)

	var order []int
	for i := 0; i < 200; i++ {
		_ = p.Submit(func() {
			order = append(order, i)
		})
	}
	p.Close()

	if len(order) != 200 {
		t.Fatalf("expected 200 jobs, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("job %d ran at position %d", v, i)
		}
	}
}

func TestSubmitAfterClose(t *testing.T) {
	p := New("closed", 2, nil)
	p.Close()
	p.Close()

	if err := p.Submit(func() { t.Errorf("job ran after Close") }); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed, got %v", err)
	}
	if err := p.Submit(nil); !errors.Is(err, ErrNilJob) {
		t.Errorf("expected ErrNilJob, got %v", err)
	}
}

// Every job accepted while Close runs concurrently must still execute.
func TestSubmitRacingClose(t *testing.T) {
	for round := 0; round < 20; round++ {
		p := New("race", 4, nil)

		var accepted, ran atomic.Int64
		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 200; i++ {
					if p.Submit(func() { ran.Add(1) }) == nil {
						accepted.Add(1)
					}
				}
			}()
		}

		time.Sleep(time.Duration(round) * 50 * time.Microsecond)
		p.Close()
		wg.Wait()

		if accepted.Load() != ran.Load() {
			t.Fatalf("round %d: %d jobs accepted but %d ran", round, accepted.Load(), ran.Load())
		}
	}
}

func TestPanicIsRecovered(t *testing.T) {
	p := New("panic", 1, nil)

	_ = p.Submit(func() { panic("boom") })

	done := make(chan struct{})
	_ = p.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("worker did not survive a panicking job")
	}

	p.Close()
	if stats := p.Stats(); stats.Panicked != 1 || stats.Completed != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestMetricsRegistry(t *testing.T) {
	registry := gometrics.NewRegistry()
	p := New("metrics", 2, registry)

	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		_ = p.Submit(wg.Done)
	}
	wg.Wait()

	for _, name := range []string{
		"pool.metrics.submitted", "pool.metrics.completed", "pool.metrics.panicked",
		"pool.metrics.pending", "pool.metrics.active", "pool.metrics.queue_wait", "pool.metrics.run",
	} {
		if registry.Get(name) == nil {
			t.Errorf("metric %s not registered", name)
		}
	}
	if c, ok := registry.Get("pool.metrics.submitted").(gometrics.Counter); !ok || c.Count() != 10 {
		t.Errorf("expected submitted counter to be 10")
	}

	var buf bytes.Buffer
	gometrics.WriteJSONOnce(registry, &buf)
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("registry does not export valid JSON: %v", err)
	}
	if _, ok := decoded["pool.metrics.run"]; !ok {
		t.Errorf("timer missing from JSON export")
	}

	p.Close()
	if registry.Get("pool.metrics.pending") != nil {
		t.Errorf("gauges must be unregistered on Close")
	}
}
