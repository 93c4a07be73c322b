package promise

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func delayed(d time.Duration, value int) *Promise {
	return New(func(def *Defer) {
		time.AfterFunc(d, func() {
			def.Resolve(value)
		})
	})
}

// TestRaceAndReject covers S5: three delayed promises race, the
// fastest wins, and the slower two are forced into rejection.
func TestRaceAndReject(t *testing.T) {
	p1 := delayed(10*time.Millisecond, 1)
	p2 := delayed(20*time.Millisecond, 2)
	p3 := delayed(30*time.Millisecond, 3)

	winner := make(chan int, 1)
	var loserStates [2]chan PromiseState
	loserStates[0] = make(chan PromiseState, 1)
	loserStates[1] = make(chan PromiseState, 1)

	// Each loser reports the branch its handler ran on. Reading State()
	// inside a handler would see the driver's transient Pending instead.
	p2.Then(func(Value) Value {
		loserStates[0] <- Resolved
		return Empty
	}, func(Value) Value {
		loserStates[0] <- Rejected
		return Empty
	})
	p3.Then(func(Value) Value {
		loserStates[1] <- Resolved
		return Empty
	}, func(Value) Value {
		loserStates[1] <- Rejected
		return Empty
	})

	RaceAndReject([]*Promise{p1, p2, p3}).Then(func(n int) Value {
		winner <- n
		return Empty
	}, nil)

	require.Equal(t, 1, <-winner)
	require.Equal(t, Rejected, <-loserStates[0])
	require.Equal(t, Rejected, <-loserStates[1])
}

func TestRaceSettlesWithFirstOutcome(t *testing.T) {
	out := make(chan int, 1)
	Race([]*Promise{delayed(30*time.Millisecond, 3), delayed(5*time.Millisecond, 1)}).Then(func(n int) Value {
		out <- n
		return Empty
	}, nil)
	require.Equal(t, 1, <-out)
}

func TestAllSettledCollectsEveryOutcome(t *testing.T) {
	out := make(chan []settledOutcome, 1)
	AllSettled([]*Promise{Resolve(1), Reject("bad")}).Then(func(v []settledOutcome) Value {
		out <- v
		return Empty
	}, nil)
	results := <-out
	require.Len(t, results, 2)
	require.Equal(t, "fulfilled", results[0].Status)
	require.Equal(t, 1, results[0].Value)
	require.Equal(t, "rejected", results[1].Status)
	require.Equal(t, "bad", results[1].Reason)
}

func TestAnyResolvesWithFirstSuccess(t *testing.T) {
	out := make(chan int, 1)
	Any([]*Promise{Reject("first"), Resolve(7), Reject("third")}).Then(func(n int) Value {
		out <- n
		return Empty
	}, nil)
	require.Equal(t, 7, <-out)
}

func TestAnyRejectsWithAggregateErrorWhenAllFail(t *testing.T) {
	out := make(chan error, 1)
	Any([]*Promise{Reject("a"), Reject("b")}).Then(nil, func(err error) Value {
		out <- err
		return Empty
	})
	var agg *AggregateError
	require.ErrorAs(t, <-out, &agg)
	require.Len(t, agg.Errors, 2)
}

func TestWithTimeoutRejectsSlowPromise(t *testing.T) {
	out := make(chan error, 1)
	WithTimeout(delayed(50*time.Millisecond, 1), 5*time.Millisecond).Then(nil, func(err error) Value {
		out <- err
		return Empty
	})
	var timeoutErr *TimeoutError
	require.ErrorAs(t, <-out, &timeoutErr)
}

func TestWithTimeoutResolvesFastPromise(t *testing.T) {
	out := make(chan int, 1)
	WithTimeout(delayed(5*time.Millisecond, 9), 50*time.Millisecond).Then(func(n int) Value {
		out <- n
		return Empty
	}, nil)
	require.Equal(t, 9, <-out)
}
