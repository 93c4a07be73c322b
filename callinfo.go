package promise

import (
	"fmt"
	"reflect"
)

// anyValueType is the reflect.Type of Value itself, used by the adapter
// (§4.3 rule 2) to detect a handler's single "wildcard" parameter.
var anyValueType = reflect.TypeOf(Value{})

// CallInfo is the reflective callable-introspection facility of §4.2:
// given a callable, it exposes its parameter types, its return type, and
// a uniform invoker built from the argument adapter (§4.3).
type CallInfo struct {
	fn   reflect.Value
	in   []reflect.Type
	out  reflect.Type // nil if the callable returns nothing
	void bool
}

// Introspect builds a CallInfo for fn, which must be a non-nil func
// value. Functions with more than one return value are rejected: the
// dispatch pipeline only ever needs "one value, or nothing, back".
func Introspect(fn any) (*CallInfo, error) {
	rv := reflect.ValueOf(fn)
	if !rv.IsValid() || rv.Kind() != reflect.Func {
		return nil, fmt.Errorf("promise: %T is not callable", fn)
	}
	if rv.IsNil() {
		return nil, fmt.Errorf("promise: nil func value")
	}
	rt := rv.Type()
	if rt.NumOut() > 1 {
		return nil, fmt.Errorf("promise: handler must return at most one value, got %d", rt.NumOut())
	}

	ci := &CallInfo{fn: rv}
	for i := 0; i < rt.NumIn(); i++ {
		ci.in = append(ci.in, rt.In(i))
	}
	if rt.NumOut() == 1 {
		ci.out = rt.Out(0)
	} else {
		ci.void = true
	}
	return ci, nil
}

// NumIn returns the callable's declared parameter count.
func (ci *CallInfo) NumIn() int { return len(ci.in) }

// In returns the i'th declared parameter type.
func (ci *CallInfo) In(i int) reflect.Type { return ci.in[i] }

// Invoke is the uniform adapter `as_uniform(F)`: it unpacks arg per the
// dispatch rules in §4.3 (adapter.go) and calls the wrapped function,
// returning its result wrapped in an envelope (or Empty for a void
// callable).
func (ci *CallInfo) Invoke(arg Value) (Value, error) {
	args, err := adapt(ci, arg)
	if err != nil {
		return Empty, err
	}
	results := ci.fn.Call(args)
	if ci.void || len(results) == 0 {
		return Empty, nil
	}
	return Of(results[0].Interface()), nil
}
