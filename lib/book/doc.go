// Package book provides Book, a typed key-value facade with a synchronous and an
// asynchronous form of every operation.
//
// A Book[T] owns one store.IStore and one worker pool. Values are encoded with a
// codec (JSON unless WithCodec is given) before they reach the store; writing a
// nil value deletes the key.
//
// Synchronous methods (Write, Read, ReadOr, Exist, Delete, Destroy) run on the
// caller's goroutine and return errors directly. Their asynchronous forms
// (WriteAsync, ReadAsync, ...) return immediately with a *Task handle and run the
// same code on one of the pool's workers (10 by default).
//
// Completion contract:
//
//   - The callback of every asynchronous call runs exactly once, with either a
//     value or an error, never both. This includes calls made after Close (they
//     fail with ErrClosed) and operations that panic (they fail with *PanicError).
//   - Callbacks run on the worker goroutine. Calls made after Close are the
//     exception: their callback runs on the calling goroutine before the call
//     returns. A callback may be nil, the outcome is then only available
//     through the Task.
//   - The Task resolves after the callback returned, so Task.Wait observes every
//     side effect of the callback.
//   - Calls from one goroutine are dequeued in submission order, but the
//     workers may start them in any order. Completion order is not guaranteed,
//     not even for the same key.
//   - There is no cancellation, a submitted task always runs to completion.
//
// Example:
//
//	b := book.New[User]("users", s)
//	defer b.Close()
//
//	b.WriteAsync("42", User{Name: "Ada"}, book.Callbacks(
//		func(*book.Book[User]) { fmt.Println("saved") },
//		func(err error) { fmt.Println("failed:", err) },
//	))
//
//	user, err := b.ReadOrAsync("42", User{}, nil).Wait()
package book
