package book

import (
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Result and Callback
// --------------------------------------------------------------------------

// Result is the outcome of an asynchronous operation. Exactly one of Value and
// Err is meaningful: Err == nil means success and Value holds the payload.
type Result[R any] struct {
	Value R
	Err   error
}

// Ok reports whether the operation succeeded
func (r Result[R]) Ok() bool {
	return r.Err == nil
}

// Unwrap returns the payload and the error
func (r Result[R]) Unwrap() (R, error) {
	return r.Value, r.Err
}

// Callback receives the Result of an asynchronous operation. It runs on the
// worker goroutine that executed the operation, exactly once per task.
type Callback[R any] func(Result[R])

// Handler is the two method form of a callback
type Handler[R any] interface {
	OnSuccess(value R)
	OnFailure(err error)
}

// Callbacks builds a Callback from a success and a failure function. Either may be nil.
func Callbacks[R any](onSuccess func(R), onFailure func(error)) Callback[R] {
	return func(res Result[R]) {
		if res.Err != nil {
			if onFailure != nil {
				onFailure(res.Err)
			}
			return
		}
		if onSuccess != nil {
			onSuccess(res.Value)
		}
	}
}

// FromHandler adapts a Handler to a Callback
func FromHandler[R any](h Handler[R]) Callback[R] {
	if h == nil {
		return nil
	}
	return func(res Result[R]) {
		if res.Err != nil {
			h.OnFailure(res.Err)
			return
		}
		h.OnSuccess(res.Value)
	}
}

// --------------------------------------------------------------------------
// Task
// --------------------------------------------------------------------------

// TaskState is the lifecycle state of a Task
type TaskState int32

const (
	TaskCreated   TaskState = iota // Submitted, waiting for a worker
	TaskRunning                    // A worker executes the operation
	TaskSucceeded                  // Finished without error
	TaskFailed                     // Finished with an error
)

func (s TaskState) String() string {
	switch s {
	case TaskCreated:
		return "Created"
	case TaskRunning:
		return "Running"
	case TaskSucceeded:
		return "Succeeded"
	case TaskFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", int32(s))
	}
}

// Task is the handle of one asynchronous operation. It resolves after the
// callback of the operation has returned.
type Task[R any] struct {
	id       uuid.UUID
	book     string
	state    atomic.Int32
	resolved atomic.Bool
	done     chan struct{}
	result   Result[R]
}

func newTask[R any](book string) *Task[R] {
	return &Task[R]{
		id:   uuid.New(),
		book: book,
		done: make(chan struct{}),
	}
}

// ID returns the unique id of the task
func (t *Task[R]) ID() uuid.UUID {
	return t.id
}

// State returns the current state of the task
func (t *Task[R]) State() TaskState {
	return TaskState(t.state.Load())
}

// Done returns a channel that is closed once the task is resolved
func (t *Task[R]) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task is resolved and returns its outcome
func (t *Task[R]) Wait() (R, error) {
	<-t.done
	return t.result.Value, t.result.Err
}

// Result blocks until the task is resolved and returns its outcome
func (t *Task[R]) Result() Result[R] {
	<-t.done
	return t.result
}

// run executes op on the current goroutine and resolves the task with its outcome
func (t *Task[R]) run(op func() (R, error), cb Callback[R]) {
	t.state.Store(int32(TaskRunning))
	t.resolve(call(op), cb)
}

// call runs op and turns a panic into a *PanicError
func call[R any](op func() (R, error)) (res Result[R]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[R]{Err: &PanicError{Value: r, Stack: debug.Stack()}}
		}
	}()
	value, err := op()
	if err != nil {
		return Result[R]{Err: err}
	}
	return Result[R]{Value: value}
}

// resolve stores the outcome, invokes the callback and releases waiters.
// Only the first call has an effect.
func (t *Task[R]) resolve(res Result[R], cb Callback[R]) {
	if !t.resolved.CompareAndSwap(false, true) {
		log.Errorf("book %s: task %s resolved twice, second outcome dropped", t.book, t.id)
		return
	}

	t.result = res
	if res.Err != nil {
		t.state.Store(int32(TaskFailed))
	} else {
		t.state.Store(int32(TaskSucceeded))
	}

	defer close(t.done)
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("book %s: callback of task %s panicked: %v\n%s", t.book, t.id, r, debug.Stack())
		}
	}()
	cb(res)
}
