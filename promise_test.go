package promise

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSequentialValues covers S1: resolving with several values adapts
// them into a multi-parameter handler.
func TestSequentialValues(t *testing.T) {
	out := make(chan int, 1)
	Resolve(3, 5, 6).Then(func(a, b, c int) int {
		sum := a + b + c
		out <- sum
		return sum
	}, nil)
	require.Equal(t, 14, <-out)
}

// TestChainedPromiseReturn covers S2: a resolved-branch handler that
// returns another promise joins the chain onto it instead of resolving
// directly with a *Promise value.
func TestChainedPromiseReturn(t *testing.T) {
	out := make(chan int, 1)
	Resolve().Then(func(Value) Value {
		return Of(New(func(d *Defer) {
			d.Resolve(42)
		}))
	}, nil).Then(func(x int) int {
		result := x + 1
		out <- result
		return result
	}, nil)
	require.Equal(t, 43, <-out)
}

// TestTypedFailRouting covers S3: a rejection bubbles past a fail
// handler whose declared parameter type doesn't match the reason, and
// is delivered to the next one that does.
func TestTypedFailRouting(t *testing.T) {
	out := make(chan int, 1)
	Reject("oops").
		Fail(func(n int) int {
			t.Fatalf("int handler should never run for a string reason, got %d", n)
			return 0
		}).
		Fail(func(s string) int {
			return len(s)
		}).
		Then(func(n int) Value {
			out <- n
			return Empty
		}, nil)
	require.Equal(t, 4, <-out)
}

// TestAllResolves covers S4's resolving branch.
func TestAllResolves(t *testing.T) {
	out := make(chan int, 1)
	All([]*Promise{Resolve(1), Resolve(2), Resolve(3)}).Then(func(v Value) Value {
		sum := 0
		for _, e := range v.Values() {
			n, err := Cast[int](e)
			require.NoError(t, err)
			sum += n
		}
		out <- sum
		return Empty
	}, nil)
	require.Equal(t, 6, <-out)
}

// TestAllRejectsOnFirstFailure covers S4's rejecting branch.
func TestAllRejectsOnFirstFailure(t *testing.T) {
	out := make(chan string, 1)
	All([]*Promise{Resolve(1), Reject("x"), Resolve(3)}).Then(nil, func(s string) Value {
		out <- s
		return Empty
	})
	require.Equal(t, "x", <-out)
}

// TestDoWhileBreak covers S6: a counter-driven loop that exits via
// DoBreak resolves the outer promise with the break payload.
func TestDoWhileBreak(t *testing.T) {
	out := make(chan int, 1)
	counter := 0
	DoWhile(func(loop *DeferLoop) {
		counter++
		if counter == 5 {
			loop.DoBreak(counter)
			return
		}
		loop.DoContinue()
	}).Then(func(n int) Value {
		out <- n
		return Empty
	}, nil)
	require.Equal(t, 5, <-out)
}

// TestDoWhilePropagatesRejection verifies a genuine rejection raised
// inside the loop body propagates out of DoWhile instead of being
// treated as a normal break.
func TestDoWhilePropagatesRejection(t *testing.T) {
	out := make(chan string, 1)
	DoWhile(func(loop *DeferLoop) {
		loop.Reject("boom")
	}).Then(nil, func(s string) Value {
		out <- s
		return Empty
	})
	require.Equal(t, "boom", <-out)
}

func TestThenReturnsSameHandle(t *testing.T) {
	p := Resolve(1)
	q := p.Then(func(int) Value { return Empty }, nil)
	require.Same(t, p, q)
}

func TestFinallyPreservesOutcome(t *testing.T) {
	ran := make(chan struct{}, 1)
	out := make(chan int, 1)
	Resolve(7).Finally(func() {
		ran <- struct{}{}
	}).Then(func(n int) Value {
		out <- n
		return Empty
	}, nil)
	<-ran
	require.Equal(t, 7, <-out)
}

func TestAlwaysReplacesOutcome(t *testing.T) {
	out := make(chan int, 1)
	Reject("ignored").Always(func(Value) int {
		return 99
	}).Then(func(n int) Value {
		out <- n
		return Empty
	}, nil)
	require.Equal(t, 99, <-out)
}

func TestNewPendingExternallyDriven(t *testing.T) {
	p := NewPending()
	out := make(chan int, 1)
	p.Then(func(n int) Value {
		out <- n
		return Empty
	}, nil)
	p.Resolve(10)
	require.Equal(t, 10, <-out)
}

func TestDoubleSettleIsNoOp(t *testing.T) {
	p := NewPending()
	out := make(chan int, 1)
	p.Then(func(n int) Value {
		out <- n
		return Empty
	}, nil)
	p.Resolve(1)
	p.Resolve(2)
	require.Equal(t, 1, <-out)
}

func TestWithResolvers(t *testing.T) {
	p, resolve, _ := WithResolvers()
	out := make(chan string, 1)
	p.Then(func(s string) Value {
		out <- s
		return Empty
	}, nil)
	resolve("hi")
	require.Equal(t, "hi", <-out)
}
