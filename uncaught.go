package promise

import (
	"sync"
	"sync/atomic"
)

// uncaughtHook is the process-wide single-slot callable of §4.6.
var uncaughtHook struct {
	mu   sync.RWMutex
	fn   func(p *Promise)
	opts *hookOptions
}

var hookRunning atomic.Bool

// HandleUncaughtException installs the process-wide uncaught-rejection
// hook. fn receives a freshly constructed, already-rejected Promise
// carrying the reason (§4.6); it may attach Fail handlers to
// pattern-match the reason by type. A nil fn restores the default
// diagnostic hook.
func HandleUncaughtException(fn func(p *Promise), opts ...HookOption) {
	uncaughtHook.mu.Lock()
	defer uncaughtHook.mu.Unlock()
	uncaughtHook.fn = fn
	uncaughtHook.opts = resolveHookOptions(opts)
}

func getUncaughtHook() (func(p *Promise), *hookOptions) {
	uncaughtHook.mu.RLock()
	defer uncaughtHook.mu.RUnlock()
	if uncaughtHook.fn == nil {
		return defaultUncaughtExceptionHandler, resolveHookOptions(nil)
	}
	return uncaughtHook.fn, uncaughtHook.opts
}

// defaultUncaughtExceptionHandler mirrors the original implementation's
// typed-then-generic fail chain: try a handler typed for the common
// "this looks like a Go error" case first, then fall back to a catch-all
// that logs whatever the reason actually is.
func defaultUncaughtExceptionHandler(p *Promise) {
	p.Fail(func(err error) {
		LogUncaughtRejection(p.sp.currentHolder().id, err)
	}).Fail(func(reason Value) {
		LogUncaughtRejection(p.sp.currentHolder().id, reason)
	})
}

// uncaughtRejectionCleanup is the cleanup registered via
// runtime.AddCleanup on every PromiseHolder (§3 "Lifecycle", §4.6): once
// a holder becomes unreachable, if it last settled Rejected, the
// installed hook fires with a fresh rejected promise carrying the
// reason. No separate "was this consumed" bookkeeping is needed: a
// handler that actually handles a rejection (recovers and returns
// normally) moves the holder to Resolved, so state alone is the
// correct signal by the time nothing references the holder any more —
// the same reasoning the original implementation's destructor relies
// on (it fires unconditionally on state_ == kRejected, since reaching
// destruction already implies an empty task queue).
func uncaughtRejectionCleanup(snap *holderSnapshot) {
	if PromiseState(snap.state.Load()) != Rejected {
		return
	}
	reason := Empty
	if v := snap.value.Load(); v != nil {
		reason = *v
	}

	fn, opts := getUncaughtHook()
	if opts.reentryGuard {
		if !hookRunning.CompareAndSwap(false, true) {
			return
		}
		defer hookRunning.Store(false)
	}

	func() {
		defer func() {
			// The hook itself failing must never propagate out of a
			// runtime cleanup goroutine.
			_ = recover()
		}()
		fn(rejectedPromiseFor(reason))
	}()
}

func rejectedPromiseFor(reason Value) *Promise {
	h := newHolder(nil)
	h.state = Rejected
	h.value = reason
	h.publishSnapshot()
	sp := newSharedPromise(h)
	return &Promise{sp: sp}
}
