// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package promise

// newPromiseOptions holds configuration applied when constructing a
// promise via New or NewPending.
type newPromiseOptions struct {
	captureCreationStack bool
}

// NewOption configures a promise at construction time.
type NewOption interface {
	applyNew(*newPromiseOptions)
}

type newOptionFunc func(*newPromiseOptions)

func (f newOptionFunc) applyNew(o *newPromiseOptions) { f(o) }

// WithCreationStack enables capture of the call stack at construction
// time, exposed later via Promise.CreationStackTrace. Off by
// default: capturing a stack trace on every promise is not free.
func WithCreationStack(enabled bool) NewOption {
	return newOptionFunc(func(o *newPromiseOptions) {
		o.captureCreationStack = enabled
	})
}

func resolveNewOptions(opts []NewOption) *newPromiseOptions {
	cfg := &newPromiseOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyNew(cfg)
	}
	return cfg
}

// hookOptions configures installation of the process-wide
// uncaught-rejection hook (§4.6).
type hookOptions struct {
	reentryGuard bool
}

// HookOption configures HandleUncaughtException.
type HookOption interface {
	applyHook(*hookOptions)
}

type hookOptionFunc func(*hookOptions)

func (f hookOptionFunc) applyHook(o *hookOptions) { f(o) }

// WithRecoveryGuard controls whether a hook invocation that starts while
// another one is still running is dropped. The guard is a single
// process-wide flag, not a per-goroutine one: while it is held, hook
// invocations from every goroutine are suppressed. Defaults to true;
// callers that want every failure reported may disable it.
func WithRecoveryGuard(enabled bool) HookOption {
	return hookOptionFunc(func(o *hookOptions) {
		o.reentryGuard = enabled
	})
}

func resolveHookOptions(opts []HookOption) *hookOptions {
	cfg := &hookOptions{reentryGuard: true}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyHook(cfg)
	}
	return cfg
}
