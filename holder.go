package promise

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"weak"
)

// PromiseState is the three-state machine of §3: a holder starts
// Pending and settles exactly once into Resolved or Rejected (except
// for the transient re-entry into Pending described in §4.5 step 8: the
// driver sets the holder Pending while any non-empty handler runs, so a
// handler that reads its own promise's State sees Pending).
type PromiseState int32

const (
	Pending PromiseState = iota
	Resolved
	Rejected
)

func (s PromiseState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ownerLeakThreshold is the owner-count hint described in §5: past this
// many live SharedPromise owners on one holder, something is probably
// retaining handles it no longer needs.
const ownerLeakThreshold = 100

// holderSnapshot mirrors the fields of a PromiseHolder that the cleanup
// callback (§4.6, run after the holder becomes unreachable) needs to
// read. It must never hold a strong reference back to the holder: Go's
// runtime.AddCleanup requires the cleanup argument to be disjoint from
// the object whose reachability is being tracked.
type holderSnapshot struct {
	id    uint64
	state atomic.Int32
	value atomic.Pointer[Value]
}

// PromiseHolder is the shared state of a deferred computation (§3). Each
// holder owns its own mutex and condition variable; handlers are never
// invoked while holding the mutex (see doc.go).
type PromiseHolder struct {
	id    uint64
	mu    sync.Mutex
	cond  *sync.Cond
	state PromiseState
	value Value

	pendingTasks []*Task
	owners       []weak.Pointer[SharedPromise]

	creationStack []uintptr
	snap          *holderSnapshot
}

var holderIDCounter atomic.Uint64

func newHolder(opts *newPromiseOptions) *PromiseHolder {
	h := &PromiseHolder{id: holderIDCounter.Add(1), snap: &holderSnapshot{}}
	h.cond = sync.NewCond(&h.mu)
	h.snap.id = h.id
	if opts != nil && opts.captureCreationStack {
		pcs := make([]uintptr, 32)
		n := runtime.Callers(3, pcs)
		h.creationStack = pcs[:n]
	}
	runtime.AddCleanup(h, uncaughtRejectionCleanup, h.snap)
	return h
}

// publishSnapshot copies the fields the cleanup callback needs. Must be
// called with h.mu held, any time state/value changes.
func (h *PromiseHolder) publishSnapshot() {
	h.snap.state.Store(int32(h.state))
	v := h.value
	h.snap.value.Store(&v)
}

// State returns the holder's current settlement state.
func (h *PromiseHolder) State() PromiseState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Value returns the settled value (meaningful only once State() != Pending).
func (h *PromiseHolder) Value() Value {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value
}

func addOwner(h *PromiseHolder, sp *SharedPromise) {
	h.mu.Lock()
	h.owners = append(h.owners, weak.Make(sp))
	n := len(h.owners)
	h.mu.Unlock()
	if n > ownerLeakThreshold {
		LogOwnerLeakHint(h.id, n)
	}
}

// Task is one queued continuation on a holder (§3). Task.holder is
// logically a weak reference: it is stored behind its own mutex (rather
// than the owning holder's) so that join (which may run concurrently
// with a goroutine about to read it) can safely reassign it no matter
// which holder's lock that goroutine currently holds.
type Task struct {
	hmu        sync.Mutex
	holderRef  weak.Pointer[PromiseHolder]
	state      PromiseState
	onResolved Value
	onRejected Value
}

func newTask(h *PromiseHolder, onResolved, onRejected Value) *Task {
	t := &Task{onResolved: onResolved, onRejected: onRejected}
	t.holderRef = weak.Make(h)
	return t
}

func (t *Task) currentHolder() *PromiseHolder {
	t.hmu.Lock()
	defer t.hmu.Unlock()
	return t.holderRef.Value()
}

func (t *Task) setHolder(h *PromiseHolder) {
	t.hmu.Lock()
	t.holderRef = weak.Make(h)
	t.hmu.Unlock()
}

// enqueue appends t to h's pending-task queue and drives it (§4.8): if h
// is still Pending, t simply waits; otherwise the driver waits until t
// reaches the front of the queue, runs it, and keeps draining the tasks
// queued after it.
func enqueue(h *PromiseHolder, t *Task) {
	h.mu.Lock()
	h.pendingTasks = append(h.pendingTasks, t)
	h.mu.Unlock()
	h.cond.Broadcast()
	call(t)
}

// SharedPromise is a thin owning handle to a PromiseHolder (§3). Many
// SharedPromises may reference the same holder; the holder's owners
// list holds weak references to all of them so that join (§4.4) can
// rewrite every live owner's target atomically.
type SharedPromise struct {
	mu     sync.Mutex
	holder *PromiseHolder
}

func newSharedPromise(h *PromiseHolder) *SharedPromise {
	sp := &SharedPromise{holder: h}
	addOwner(h, sp)
	return sp
}

func (sp *SharedPromise) currentHolder() *PromiseHolder {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.holder
}

func (sp *SharedPromise) setHolder(h *PromiseHolder) {
	sp.mu.Lock()
	sp.holder = h
	sp.mu.Unlock()
}

// join redirects every pending task and every owner of a onto b, then
// marks a terminally Resolved and empty, per §4.4. a and b may be the
// same holder (no-op). Locks are always acquired in ascending holder-id
// order to make join safe against concurrent joins elsewhere in the
// graph.
func join(a, b *PromiseHolder) {
	if a == b {
		return
	}
	first, second := a, b
	if b.id < a.id {
		first, second = b, a
	}
	first.mu.Lock()
	second.mu.Lock()

	movedTasks := a.pendingTasks
	a.pendingTasks = nil
	for _, task := range movedTasks {
		task.setHolder(b)
	}
	b.pendingTasks = append(b.pendingTasks, movedTasks...)

	movedOwners := a.owners
	a.owners = nil
	for _, wp := range movedOwners {
		sp := wp.Value()
		if sp == nil {
			continue
		}
		sp.setHolder(b)
		b.owners = append(b.owners, wp)
	}
	leak := len(b.owners) > ownerLeakThreshold

	a.state = Resolved
	a.publishSnapshot()
	b.publishSnapshot()

	second.mu.Unlock()
	first.mu.Unlock()

	b.cond.Broadcast()
	a.cond.Broadcast()

	if leak {
		LogOwnerLeakHint(b.id, len(b.owners))
	}
}

// call is the task driver of §4.5. It advances the chain synchronously
// on the calling goroutine: popping t (waiting its turn if another
// goroutine is ahead of it in the same holder's queue), dispatching its
// handler, committing the result, and continuing to the next front task
// until the queue is drained or the holder it is now operating on is
// still Pending (a still-pending promise returned by a handler, not yet
// joined's resolution).
func call(t *Task) {
outer:
	for {
		h := t.currentHolder()
		if h == nil {
			return
		}

		h.mu.Lock()
		if t.state != Pending || h.state == Pending {
			h.mu.Unlock()
			return
		}

		for {
			if len(h.pendingTasks) > 0 && h.pendingTasks[0] == t {
				break
			}
			if t.currentHolder() != h {
				// Reassigned elsewhere (e.g. by a join) while we
				// weren't at the front yet; restart against its new
				// holder instead of waiting on a queue it has left.
				h.mu.Unlock()
				continue outer
			}
			h.cond.Wait()
			if t.state != Pending || h.state == Pending {
				h.mu.Unlock()
				return
			}
		}

		h.pendingTasks = h.pendingTasks[1:]
		t.state = h.state
		rejectedBranch := h.state == Rejected

		var handler Value
		if rejectedBranch {
			handler = t.onRejected
		} else {
			handler = t.onResolved
		}

		nextHolder := h
		if !handler.Empty() {
			value := h.value
			h.state = Pending
			h.publishSnapshot()
			h.mu.Unlock()

			result, callErr := invokeHandler(handler, value)

			var badCast *BadCastError
			unmatchedRejection := rejectedBranch && callErr != nil && errors.As(callErr, &badCast)

			switch {
			case unmatchedRejection:
				// §4.5 step 9: BadCast in a rejected branch re-rejects
				// with the SAME reason, so it keeps bubbling toward a
				// handler whose parameter type actually matches.
				h.mu.Lock()
				h.state = Rejected
				h.publishSnapshot()
				h.mu.Unlock()
			case callErr != nil:
				h.mu.Lock()
				h.state = Rejected
				h.value = Of(callErr)
				h.publishSnapshot()
				h.mu.Unlock()
			default:
				if pr, ok := promiseHolderOf(result); ok {
					join(h, pr)
					nextHolder = pr
				} else {
					h.mu.Lock()
					h.value = result
					h.state = Resolved
					h.publishSnapshot()
					h.mu.Unlock()
				}
			}
		} else {
			h.mu.Unlock()
		}

		t.onResolved = Empty
		t.onRejected = Empty

		nextHolder.mu.Lock()
		var next *Task
		if len(nextHolder.pendingTasks) > 0 {
			next = nextHolder.pendingTasks[0]
		}
		nextHolder.mu.Unlock()
		nextHolder.cond.Broadcast()

		if next == nil {
			return
		}
		t = next
	}
}

// invokeHandler calls a handler Value's underlying func with arg,
// recovering any panic into a PanicError per §7's "generic exception"
// error kind.
func invokeHandler(handler, arg Value) (result Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = Empty
			err = PanicError{Value: r}
		}
	}()
	return handler.Call(arg)
}

// promiseHolderOf reports whether v holds a *Promise, returning its
// underlying holder (§4.5 step 8: "if the return envelope's type is
// Promise").
func promiseHolderOf(v Value) (*PromiseHolder, bool) {
	p, ok := v.Raw().(*Promise)
	if !ok || p == nil {
		return nil, false
	}
	return p.sp.currentHolder(), true
}

// checkHolderInvariants validates the two structural invariants join
// and call must maintain on a holder: every pending task's weak holder
// reference resolves back to h, and every owner's SharedPromise.holder
// resolves back to h. It is an internal-only assertion helper, called
// from tests after exercising chaining/joining, never from a production
// call path — the Go analogue of the original implementation's
// debug-only healthyCheck.
func checkHolderInvariants(h *PromiseHolder) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, task := range h.pendingTasks {
		if task == nil {
			return fmt.Errorf("promise: holder %d: pendingTasks[%d] is nil", h.id, i)
		}
		if got := task.currentHolder(); got != h {
			return fmt.Errorf("promise: holder %d: pendingTasks[%d].currentHolder() = %p, want %p", h.id, i, got, h)
		}
	}
	for i, wp := range h.owners {
		sp := wp.Value()
		if sp == nil {
			continue // owner already collected; not a structural violation
		}
		if got := sp.currentHolder(); got != h {
			return fmt.Errorf("promise: holder %d: owners[%d].currentHolder() = %p, want %p", h.id, i, got, h)
		}
	}
	return nil
}
