package promise

import (
	"context"
	"fmt"
	"runtime"
	"strings"
)

// Promise is the public value-type handle of §3: internally it stores
// one SharedPromise. Promises created via New or NewPending additionally
// retain the seed task driving their initial resolution, so that Resolve
// and Reject can externally settle them (§4.8).
type Promise struct {
	sp   *SharedPromise
	seed *Task
}

// New creates a pending promise and synchronously invokes run with a
// Defer bound to its initial task (§3 "Lifecycle"). A panic escaping run
// rejects the promise with a PanicError, mirroring how any other handler
// panic is captured (§7).
func New(run func(d *Defer), opts ...NewOption) *Promise {
	cfg := resolveNewOptions(opts)
	h := newHolder(cfg)
	sp := newSharedPromise(h)
	t := newTask(h, Empty, Empty)
	p := &Promise{sp: sp, seed: t}
	enqueue(h, t)

	if run != nil {
		d := newDeferFromTask(t)
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.Reject(PanicError{Value: r})
				}
			}()
			run(d)
		}()
	}
	return p
}

// NewPending creates a promise with no resolver callback: the "zero-arg"
// overload of §4.8, externally driven later via Resolve/Reject.
func NewPending(opts ...NewOption) *Promise {
	return New(nil, opts...)
}

// WithResolvers returns a pending promise together with bound resolve
// and reject closures, mirroring ES2024's Promise.withResolvers() — a
// convenience composition of NewPending plus two bound methods, not a
// new primitive (§4.8).
func WithResolvers(opts ...NewOption) (p *Promise, resolve func(values ...any), reject func(values ...any)) {
	p = NewPending(opts...)
	return p, p.Resolve, p.Reject
}

// Resolve returns a new promise already Resolved with values packed per
// §3 "argument list".
func Resolve(values ...any) *Promise {
	return settledPromise(Resolved, packArgs(values))
}

// Reject returns a new promise already Rejected with values packed per
// §3 "argument list".
func Reject(values ...any) *Promise {
	return settledPromise(Rejected, packArgs(values))
}

func settledPromise(state PromiseState, v Value) *Promise {
	h := newHolder(nil)
	h.state = state
	h.value = v
	h.publishSnapshot()
	sp := newSharedPromise(h)
	return &Promise{sp: sp}
}

// resolvedPromiseValue and rejectedPromiseValue build a settled promise
// directly from an already-packed Value, used internally by combinators
// that need to re-propagate a raw envelope without re-packing it.
func resolvedPromiseValue(v Value) *Promise { return settledPromise(Resolved, v) }
func rejectedPromiseValue(v Value) *Promise { return settledPromise(Rejected, v) }

// packArgs packs a resolve/reject argument list per §3: zero values
// become an empty sequence, one value is a bare envelope, N>1 become an
// ordered sequence envelope.
func packArgs(values []any) Value {
	switch len(values) {
	case 0:
		return Seq()
	case 1:
		return Of(values[0])
	default:
		return Seq(values...)
	}
}

func toAny(fn any) Value {
	if fn == nil {
		return Empty
	}
	return Of(fn)
}

// Then appends a task whose handlers derive from onResolved/onRejected
// (either may be nil, meaning "no handler for this branch", per §4.3/
// §4.8) and returns the SAME promise handle with the chain extended —
// this library follows the source spec's then() shape rather than the
// classic "returns a new promise" convention.
func (p *Promise) Then(onResolved, onRejected any) *Promise {
	h := p.sp.currentHolder()
	t := newTask(h, toAny(onResolved), toAny(onRejected))
	enqueue(h, t)
	return p
}

// Fail is Then(nil, onRejected).
func (p *Promise) Fail(onRejected any) *Promise {
	return p.Then(nil, onRejected)
}

// Always is Then(h, h): h runs regardless of branch and its return value
// becomes the chain's new outcome.
func (p *Promise) Always(h any) *Promise {
	return p.Then(h, h)
}

// Finally appends onFinally to both branches, but its return value is
// discarded: the chain always re-settles with the ORIGINAL upstream
// outcome (§4.8, invariant 4). A panic from onFinally is swallowed,
// mirroring the original implementation's "finally never escalates a
// cleanup failure into a different rejection" behaviour.
func (p *Promise) Finally(onFinally func()) *Promise {
	wrapped := func(v Value) Value {
		func() {
			defer func() { _ = recover() }()
			onFinally()
		}()
		return v
	}
	return p.Then(wrapped, wrapped)
}

// Resolve externally settles a promise created by New or NewPending with
// the given values; a no-op on a promise not created that way, or already
// settled.
func (p *Promise) Resolve(values ...any) {
	if p.seed == nil {
		return
	}
	settle(p.seed, Resolved, packArgs(values))
}

// Reject externally settles a promise created by New or NewPending as
// rejected with the given values.
func (p *Promise) Reject(values ...any) {
	if p.seed == nil {
		return
	}
	settle(p.seed, Rejected, packArgs(values))
}

func settle(t *Task, state PromiseState, v Value) {
	h := t.currentHolder()
	if h == nil {
		return
	}
	h.mu.Lock()
	if h.state != Pending {
		h.mu.Unlock()
		return
	}
	h.state = state
	h.value = v
	h.publishSnapshot()
	h.mu.Unlock()
	h.cond.Broadcast()
	call(t)
}

// Clear drops this handle's owning reference (§4.8).
func (p *Promise) Clear() {
	p.sp = nil
	p.seed = nil
}

// State returns the current state of the holder this handle references.
func (p *Promise) State() PromiseState {
	return p.sp.currentHolder().State()
}

// Value returns the settled value of the holder this handle references.
func (p *Promise) Value() Value {
	return p.sp.currentHolder().Value()
}

// Await blocks until the promise settles or ctx is done, returning the
// resolved value, or an error derived from the rejection reason (or
// ctx.Err()).
func (p *Promise) Await(ctx context.Context) (Value, error) {
	done := make(chan struct{})
	var result Value
	var rejected bool
	p.Then(
		func(v Value) Value {
			result = v
			close(done)
			return v
		},
		func(v Value) Value {
			result = v
			rejected = true
			close(done)
			return v
		},
	)
	select {
	case <-ctx.Done():
		return Empty, ctx.Err()
	case <-done:
		if rejected {
			return result, errorFromValue(result)
		}
		return result, nil
	}
}

func errorFromValue(v Value) error {
	if err, ok := v.Raw().(error); ok {
		return err
	}
	return fmt.Errorf("promise: rejected with %v", v)
}

func (p *Promise) String() string {
	h := p.sp.currentHolder()
	return fmt.Sprintf("Promise{id=%d state=%s value=%s}", h.id, h.State(), h.Value())
}

// Dump writes a human-readable description of this promise's holder,
// mirroring the debug dump() methods of the original implementation.
func (p *Promise) Dump() string {
	h := p.sp.currentHolder()
	h.mu.Lock()
	defer h.mu.Unlock()
	var b strings.Builder
	fmt.Fprintf(&b, "promise(id=%d state=%s pendingTasks=%d owners=%d)",
		h.id, h.state, len(h.pendingTasks), len(h.owners))
	if len(h.creationStack) > 0 {
		b.WriteString("\ncreated at:\n")
		b.WriteString(formatCreationStack(h.creationStack))
	}
	return b.String()
}

// CreationStackTrace returns the captured creation stack, if the
// promise was created with WithCreationStack(true); otherwise empty.
func (p *Promise) CreationStackTrace() string {
	h := p.sp.currentHolder()
	h.mu.Lock()
	defer h.mu.Unlock()
	return formatCreationStack(h.creationStack)
}

func formatCreationStack(pcs []uintptr) string {
	if len(pcs) == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs)
	var b strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "  %s\n    %s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return b.String()
}

// Defer is the single-use resolver created for the initial task of a
// promise constructed by New (§3).
type Defer struct {
	task *Task
	sp   *SharedPromise
}

func newDeferFromTask(t *Task) *Defer {
	h := t.currentHolder()
	sp := newSharedPromise(h)
	return &Defer{task: t, sp: sp}
}

// Resolve settles the bound task's holder as Resolved.
func (d *Defer) Resolve(values ...any) {
	settle(d.task, Resolved, packArgs(values))
}

// Reject settles the bound task's holder as Rejected.
func (d *Defer) Reject(values ...any) {
	settle(d.task, Rejected, packArgs(values))
}

func (d *Defer) rejectValue(v Value) {
	settle(d.task, Rejected, v)
}

// GetPromise returns the Promise handle for this resolver's holder.
func (d *Defer) GetPromise() *Promise {
	return &Promise{sp: d.sp}
}

// doBreakTag is the internal marker DoWhile recognises at position 0 of
// a two-element rejection sequence to mean "normal loop exit" (§3
// "DoBreak marker").
type doBreakTag struct{}

// DeferLoop is the resolver for one iteration of DoWhile (§3): DoContinue
// resolves the iteration (advance to the next one), DoBreak rejects with
// the internal sentinel the loop driver recognises as a normal exit, and
// Reject rejects with the caller's own reason, propagating as a failure.
type DeferLoop struct {
	d *Defer
}

// DoContinue resolves this iteration, causing DoWhile to recurse.
func (l *DeferLoop) DoContinue() {
	l.d.Resolve()
}

// DoBreak resolves the outer DoWhile promise with values.
func (l *DeferLoop) DoBreak(values ...any) {
	l.d.rejectValue(Seq(doBreakTag{}, packArgs(values)))
}

// Reject fails the outer DoWhile promise with reason.
func (l *DeferLoop) Reject(values ...any) {
	l.d.Reject(values...)
}
