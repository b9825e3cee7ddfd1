// Package xerrors provides errors that carry a captured call stack.
//
// The stack is stored as program counters and rendered lazily, so wrapping
// is cheap on the happy path. The log package and the HTTP error-handling
// middleware both read stacks through the Stack helper.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

type stacked struct {
	err error
	pcs []uintptr
}

func (s *stacked) Error() string       { return s.err.Error() }
func (s *stacked) Unwrap() error       { return s.err }
func (s *stacked) StackPCs() []uintptr { return s.pcs }

func capture(skip int) []uintptr {
	const maxDepth = 64
	pcs := make([]uintptr, maxDepth)
	// 2 skips runtime.Callers and capture itself
	n := runtime.Callers(2+skip, pcs)
	return pcs[:n]
}

func withStackSkip(err error, skip int) error {
	if err == nil {
		return nil
	}
	return &stacked{err: err, pcs: capture(skip)}
}

// New returns an error with a stack captured at the call site.
func New(msg string) error { return withStackSkip(errors.New(msg), 2) }

// Newf is New with fmt.Errorf formatting.
func Newf(format string, args ...any) error {
	return withStackSkip(fmt.Errorf(format, args...), 2)
}

// WithStack wraps err with a stack captured at the call site.
// Returns nil if err is nil.
func WithStack(err error) error { return withStackSkip(err, 2) }

// Wrap annotates err with a message and a stack captured at the call site.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return withStackSkip(fmt.Errorf("%s: %w", msg, err), 2)
}

// Wrapf is Wrap with fmt.Errorf formatting.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return withStackSkip(fmt.Errorf(format+": %w", append(args, err)...), 2)
}

// EnsureTrace adds a stack only if err does not already carry one, so the
// original capture site is preserved across re-wrapping.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	if len(Stack(err)) > 0 {
		return err
	}
	return withStackSkip(err, 2)
}

// Stack returns the program counters captured closest to the surface of
// err's chain, or nil if no wrapper in the chain carries one.
func Stack(err error) []uintptr {
	type hasStack interface{ StackPCs() []uintptr }
	var hs hasStack
	if errors.As(err, &hs) && hs != nil {
		return hs.StackPCs()
	}
	return nil
}

// Render formats captured program counters as a readable multi-line trace,
// one "func\n\tfile:line" pair per frame. Runtime frames are elided.
func Render(pcs []uintptr) string {
	if len(pcs) == 0 {
		return ""
	}
	var b strings.Builder
	frames := runtime.CallersFrames(pcs)
	for {
		f, more := frames.Next()
		if f.Function != "" && !strings.HasPrefix(f.Function, "runtime.") {
			fmt.Fprintf(&b, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
		}
		if !more {
			break
		}
	}
	return b.String()
}
