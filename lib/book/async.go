package book

import "fmt"

// submit runs op on the pool of b and returns the handle of the new task.
// If the book is closed the callback receives ErrClosed right away, on the calling goroutine.
func submit[T, R any](b *Book[T], op func() (R, error), cb Callback[R]) *Task[R] {
	task := newTask[R](b.name)

	if b.closed.Load() {
		task.resolve(Result[R]{Err: ErrClosed}, cb)
		return task
	}

	if err := b.pool.Submit(func() { task.run(op, cb) }); err != nil {
		// lost the race against Close
		task.resolve(Result[R]{Err: fmt.Errorf("%w: %w", ErrClosed, err)}, cb)
	}
	return task
}

// WriteAsync is the asynchronous form of Write. On success the callback receives the book.
func (b *Book[T]) WriteAsync(key string, value T, cb Callback[*Book[T]]) *Task[*Book[T]] {
	return submit(b, func() (*Book[T], error) {
		return b, b.write(key, value)
	}, cb)
}

// ReadAsync is the asynchronous form of Read
func (b *Book[T]) ReadAsync(key string, cb Callback[Entry[T]]) *Task[Entry[T]] {
	return submit(b, func() (Entry[T], error) {
		value, found, err := b.read(key)
		return Entry[T]{Value: value, Found: found}, err
	}, cb)
}

// ReadOrAsync is the asynchronous form of ReadOr
func (b *Book[T]) ReadOrAsync(key string, def T, cb Callback[T]) *Task[T] {
	return submit(b, func() (T, error) {
		return b.readOr(key, def)
	}, cb)
}

// ExistAsync is the asynchronous form of Exist
func (b *Book[T]) ExistAsync(key string, cb Callback[bool]) *Task[bool] {
	return submit(b, func() (bool, error) {
		return b.exist(key)
	}, cb)
}

// DeleteAsync is the asynchronous form of Delete
func (b *Book[T]) DeleteAsync(key string, cb Callback[Void]) *Task[Void] {
	return submit(b, func() (Void, error) {
		return Void{}, b.delete(key)
	}, cb)
}

// DestroyAsync is the asynchronous form of Destroy
func (b *Book[T]) DestroyAsync(cb Callback[Void]) *Task[Void] {
	return submit(b, func() (Void, error) {
		return Void{}, b.destroy()
	}, cb)
}
