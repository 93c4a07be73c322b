package promise

import (
	"fmt"
	"sync/atomic"
	"time"
)

// All waits for every promise in promises to resolve, then resolves with
// their values in the original order; rejects as soon as any one of them
// rejects, with that rejection's reason (§5 "all").
func All(promises []*Promise) *Promise {
	if len(promises) == 0 {
		return Resolve()
	}
	out := NewPending()
	results := make([]any, len(promises))
	var remaining atomic.Int64
	remaining.Store(int64(len(promises)))
	var settledOnce atomic.Bool

	for i, p := range promises {
		i := i
		p.Then(
			func(v Value) Value {
				results[i] = v.Raw()
				if remaining.Add(-1) == 0 && settledOnce.CompareAndSwap(false, true) {
					out.Resolve(results...)
				}
				return Empty
			},
			func(v Value) Value {
				if settledOnce.CompareAndSwap(false, true) {
					out.Reject(v.Raw())
				}
				return Empty
			},
		)
	}
	return out
}

// settledOutcome is the record AllSettled produces per input promise.
type settledOutcome struct {
	Status string
	Value  any
	Reason any
}

// AllSettled waits for every promise to settle (resolved or rejected)
// and resolves with one outcome record per input, in order; it never
// itself rejects (§5 "allSettled").
func AllSettled(promises []*Promise) *Promise {
	if len(promises) == 0 {
		return Resolve([]settledOutcome{})
	}
	out := NewPending()
	results := make([]settledOutcome, len(promises))
	var remaining atomic.Int64
	remaining.Store(int64(len(promises)))

	finish := func() {
		if remaining.Add(-1) == 0 {
			out.Resolve(results)
		}
	}
	for i, p := range promises {
		i := i
		p.Then(
			func(v Value) Value {
				results[i] = settledOutcome{Status: "fulfilled", Value: v.Raw()}
				finish()
				return Empty
			},
			func(v Value) Value {
				results[i] = settledOutcome{Status: "rejected", Reason: v.Raw()}
				finish()
				return Empty
			},
		)
	}
	return out
}

// Any resolves with the value of the first promise to resolve; if every
// promise rejects, it rejects with an AggregateError collecting every
// rejection reason, in order (§5 "any"). Only an empty input list yields
// an AggregateError wrapping ErrNoPromiseResolved.
func Any(promises []*Promise) *Promise {
	if len(promises) == 0 {
		return Reject(&AggregateError{Message: "promise: any() called with no promises", Errors: []error{ErrNoPromiseResolved}})
	}
	out := NewPending()
	reasons := make([]error, len(promises))
	var remaining atomic.Int64
	remaining.Store(int64(len(promises)))
	var settledOnce atomic.Bool

	for i, p := range promises {
		i := i
		p.Then(
			func(v Value) Value {
				if settledOnce.CompareAndSwap(false, true) {
					out.Resolve(v.Raw())
				}
				return Empty
			},
			func(v Value) Value {
				reasons[i] = errorFromValue(v)
				if remaining.Add(-1) == 0 && settledOnce.CompareAndSwap(false, true) {
					out.Reject(&AggregateError{Message: "promise: all promises rejected", Errors: reasons})
				}
				return Empty
			},
		)
	}
	return out
}

// raceWithWinner implements §5 "race": whichever child settles first
// settles out with the same outcome. The winning index is tracked
// internally (not exposed on Race itself, per the resolved open
// question recorded in SPEC_FULL.md) so that RaceAndReject/
// RaceAndResolve can identify and force-settle the remaining losers.
func raceWithWinner(promises []*Promise) (*Promise, *atomic.Int64) {
	out := NewPending()
	winner := &atomic.Int64{}
	winner.Store(-1)
	var settledOnce atomic.Bool

	for i, p := range promises {
		i := i
		p.Then(
			func(v Value) Value {
				if settledOnce.CompareAndSwap(false, true) {
					winner.Store(int64(i))
					out.Resolve(v.Raw())
				}
				return Empty
			},
			func(v Value) Value {
				if settledOnce.CompareAndSwap(false, true) {
					winner.Store(int64(i))
					out.Reject(v.Raw())
				}
				return Empty
			},
		)
	}
	return out, winner
}

// Race settles as soon as the first of promises settles, with that
// outcome (§5 "race").
func Race(promises []*Promise) *Promise {
	out, _ := raceWithWinner(promises)
	return out
}

// RaceAndReject behaves like Race, additionally force-rejecting every
// losing promise once the race is decided. Losers not created via New or
// NewPending (and so with no seed task to drive) are left untouched.
func RaceAndReject(promises []*Promise) *Promise {
	out, winner := raceWithWinner(promises)
	out.Finally(func() {
		w := winner.Load()
		for i, p := range promises {
			if int64(i) == w {
				continue
			}
			p.Reject()
		}
	})
	return out
}

// RaceAndResolve behaves like Race, additionally force-resolving every
// losing promise once the race is decided.
func RaceAndResolve(promises []*Promise) *Promise {
	out, winner := raceWithWinner(promises)
	out.Finally(func() {
		w := winner.Load()
		for i, p := range promises {
			if int64(i) == w {
				continue
			}
			p.Resolve()
		}
	})
	return out
}

// TimeoutError is the rejection reason WithTimeout uses when the
// wrapped promise does not settle before its deadline.
type TimeoutError struct {
	Message string
}

func (e *TimeoutError) Error() string { return e.Message }

// WithTimeout races p against a timer promise that rejects with a
// *TimeoutError after d; built strictly on Race (the resolved open
// question recorded in SPEC_FULL.md §9 rejects a separate "cancellable
// wait" primitive in favour of reusing the race combinator).
func WithTimeout(p *Promise, d time.Duration) *Promise {
	timeout := New(func(def *Defer) {
		timer := time.AfterFunc(d, func() {
			def.Reject(&TimeoutError{Message: fmt.Sprintf("promise: timed out after %s", d)})
		})
		_ = timer
	})
	return Race([]*Promise{p, timeout})
}

// DoWhile runs body repeatedly (§3/§5 "doWhile"): each iteration gets a
// fresh DeferLoop. DoContinue on it advances to the next iteration;
// DoBreak settles the returned promise as resolved with its payload;
// any other rejection (or one propagated from a handler attached inside
// body) propagates as the returned promise's rejection. The iteration
// is genuinely recursive, mirroring the control-flow recursion of the
// source implementation this combinator is modelled on.
func DoWhile(body func(loop *DeferLoop)) *Promise {
	iter := New(func(d *Defer) {
		body(&DeferLoop{d: d})
	})
	return iter.Then(
		func(Value) Value {
			return Of(DoWhile(body))
		},
		func(v Value) Value {
			if s, ok := v.Raw().(sequence); ok && len(s) == 2 {
				if _, isBreak := s[0].Raw().(doBreakTag); isBreak {
					return s[1]
				}
			}
			return Of(rejectedPromiseValue(v))
		},
	)
}
