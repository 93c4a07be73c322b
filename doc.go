// Package promise implements a deferred-value graph: a Promise/A+-style
// asynchronous composition library with a dynamic, type-preserving value
// channel in place of a single erased error type.
//
// # Architecture
//
// The graph is built from a small set of cooperating types: [PromiseHolder]
// holds the shared state of a deferred computation (its [PromiseState], its
// settled [Value], and the FIFO queue of [Task] continuations waiting on
// it); [Promise] is the value-type handle application code holds; [Defer]
// is the single-use resolver handed to the function passed to [New]; and
// [DeferLoop] is the iteration-scoped resolver used by [DoWhile].
//
// Values flow through the graph inside a [Value] envelope: a type-erased
// single-slot container that remembers the exact type it holds, supports
// [Value.Cast] (exact-type extraction, never an implicit conversion), and
// treats N>1 resolved values as an ordered [Value] sequence. The argument
// adapter ([adapt]) unpacks that sequence to match a handler's declared
// parameter list using reflection ([CallInfo]) rather than hand-written
// per-arity wrappers.
//
// # Thread Safety
//
// Every [PromiseHolder] owns its own mutex and condition variable. All
// mutation of state, value, pending-task queue, and owner set happens
// under that lock. The library does not use a re-entrant mutex: the task
// driver ([call]) pops the front task and snapshots its handler while
// holding the lock, releases the lock before invoking the handler, and
// relocks only to commit the result. This lets a handler call back into
// the same holder (e.g. attach another `Then` or resolve a promise it
// closed over) without deadlocking itself.
//
// # Execution Model
//
// The graph is passive: it has no scheduler, no worker pool, and no event
// loop of its own. Whichever goroutine calls [Defer.Resolve] or
// [Defer.Reject] runs the chain of attached continuations synchronously,
// until the queue is drained or a handler returns a still-pending promise
// (in which case the two holders are joined, see [join], and later
// resolution of the returned promise resumes the chain).
//
// # Usage
//
//	p := promise.Resolve(3, 5, 6).Then(func(a, b, c int) int {
//	    return a + b + c
//	}, nil)
//	v, err := p.Await(context.Background())
//
//	outer := promise.New(func(d *promise.Defer) {
//	    go func() {
//	        time.Sleep(10 * time.Millisecond)
//	        d.Resolve(42)
//	    }()
//	})
//
// # Error Types
//
// The package provides a small error taxonomy for the kinds of failure
// that can arise while driving the graph itself (as opposed to the
// arbitrary, application-defined rejection reasons that flow through it):
//   - [BadCastError]: a handler's declared parameter type did not match
//     the available value.
//   - [PanicError]: wraps a recovered panic from inside a handler.
//   - [AggregateError]: multiple rejection reasons collected by [Any].
//   - [StoppedError]: the error kind collaborators (timers, reactors) use
//     to reject in-flight promises when they are stopped; the core never
//     constructs it itself.
//
// All error types implement [error] and are usable with [errors.Is] /
// [errors.As]; [PanicError] and [AggregateError] also expose their causes
// through Unwrap, while [BadCastError] and [StoppedError] wrap nothing.
package promise
