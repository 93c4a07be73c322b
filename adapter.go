package promise

import "reflect"

// adapt implements the argument adapter of §4.3: it matches the envelope
// A against the callable's declared parameter tuple and returns the
// reflect.Values to pass to ci.fn.Call.
//
// Rule 1 ("exception argument") from the source spec is not a separate
// code path here: a language with typed catch/rethrow dispatches a
// rejection by trying to catch it as each handler's declared type in
// turn, but Go rejection reasons are already plain values, so that
// dispatch collapses into rule 3 below — a single typed parameter's own
// Cast attempt against the current value *is* the type match, and the
// resolved/rejected-branch distinction for a failed cast (§4.5 step 9,
// implemented in the call driver) supplies the "keep bubbling until a
// handler with a matching type is reached" behaviour rule 1 describes.
func adapt(ci *CallInfo, a Value) ([]reflect.Value, error) {
	switch ci.NumIn() {
	case 0:
		// Rule 5: zero-parameter, discard A.
		return nil, nil

	case 1:
		p0 := ci.In(0)
		if p0 == anyValueType {
			// Rule 2: wildcard.
			switch a.Len() {
			case 0:
				return []reflect.Value{reflect.ValueOf(Empty)}, nil
			case 1:
				return []reflect.Value{reflect.ValueOf(a.At(0))}, nil
			default:
				return []reflect.Value{reflect.ValueOf(a)}, nil
			}
		}
		// Rule 3: single typed parameter.
		var front Value
		if a.IsSequence() {
			if a.Len() == 0 {
				return nil, &BadCastError{From: nil, To: p0}
			}
			front = a.At(0)
		} else {
			front = a
		}
		rv, err := castTo(front, p0)
		if err != nil {
			return nil, err
		}
		return []reflect.Value{rv}, nil

	default:
		// Rule 4: multi-parameter.
		k := ci.NumIn()
		if a.Len() < k {
			return nil, &BadCastError{From: a.Type(), To: ci.In(0)}
		}
		elems := a.Values()
		out := make([]reflect.Value, k)
		for i := 0; i < k; i++ {
			rv, err := castTo(elems[i], ci.In(i))
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	}
}

// castTo casts a single envelope to the reflect.Type want, following the
// same exact-type-or-interface-satisfaction rule as Cast[T], but without
// requiring want to be known at compile time.
func castTo(v Value, want reflect.Type) (reflect.Value, error) {
	if v.held == nil {
		switch want.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
			return reflect.Zero(want), nil
		default:
			return reflect.Value{}, &BadCastError{From: nil, To: want}
		}
	}
	if want == anyValueType {
		return reflect.ValueOf(v), nil
	}
	rv := reflect.ValueOf(v.held)
	if rv.Type().AssignableTo(want) {
		return rv, nil
	}
	return reflect.Value{}, &BadCastError{From: rv.Type(), To: want}
}
