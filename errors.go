package promise

import (
	"errors"
	"fmt"
	"reflect"
)

// PanicError wraps a value recovered from a panic inside a handler,
// a Defer resolver, or a combinator callback.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("promise: panic recovered: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is itself an
// error, enabling [errors.Is] / [errors.As] through the cause chain.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// BadCastError is raised by the argument adapter when a handler's
// declared parameter type does not match the value on offer. Per §4.5
// step 9, one raised while invoking a resolved-branch handler becomes a
// new rejection; one raised while invoking a rejected-branch handler
// re-rejects with the original reason, so the rejection keeps bubbling
// toward a handler whose parameter type actually matches.
type BadCastError struct {
	From reflect.Type
	To   reflect.Type
}

func (e *BadCastError) Error() string {
	from := "<empty>"
	if e.From != nil {
		from = e.From.String()
	}
	return fmt.Sprintf("promise: bad cast: cannot cast %s to %s", from, e.To)
}

// AggregateError collects several rejection reasons into one error,
// modelled on the ES2022 AggregateError. Used by [Any] when every child
// rejects or when it is called with no promises. [RaceAndReject] and
// [RaceAndResolve] do not produce one for their losers.
type AggregateError struct {
	Message string
	Errors  []error
}

func (e *AggregateError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (%d errors)", e.Message, len(e.Errors))
	}
	return fmt.Sprintf("promise: %d errors", len(e.Errors))
}

// Unwrap returns the collected errors for multi-error unwrapping.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// Is reports whether target is an *AggregateError, regardless of its
// contents. Matching against the contained errors is left to
// [errors.Is], which walks them through Unwrap.
func (e *AggregateError) Is(target error) bool {
	var agg *AggregateError
	return errors.As(target, &agg)
}

// StoppedError is the error kind an external collaborator (a timer, a
// socket reactor, a cooperative task queue) uses to reject every
// in-flight promise it owns when it is stopped. The core never
// constructs this itself; it is part of the published taxonomy
// collaborators built on [New] are expected to use (see §6/§7).
type StoppedError struct {
	Message string
}

func (e *StoppedError) Error() string {
	if e.Message == "" {
		return "promise: service stopped"
	}
	return e.Message
}

// ErrNoPromiseResolved is the reason wrapped inside an [AggregateError]
// returned by [Any] when called with an empty list.
var ErrNoPromiseResolved = errors.New("promise: no promise in Any resolved")

// WrapError wraps an error with a message, preserving errors.Is/As
// against cause.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
