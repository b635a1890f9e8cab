package crawler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrJobNotFound is returned by job stores when no job matches an ID.
var ErrJobNotFound = errors.New("job not found")

// Kind classifies failures so callers can decide between retry, terminal
// failure, and local absorption.
type Kind string

// Error kinds.
const (
	// KindTransient covers broker or store outages. Retried at the
	// infrastructure boundary.
	KindTransient Kind = "transient"
	// KindSourceUnavailable means the entry point of a source could not be
	// reached or changed shape. Terminal for the job.
	KindSourceUnavailable Kind = "source_unavailable"
	// KindPartial marks degradation that is absorbed while traversal continues.
	KindPartial Kind = "partial"
	// KindMalformed covers unusable input such as a bad delivery payload.
	KindMalformed Kind = "malformed"
	// KindTraversal wraps any other fetch or parse failure.
	KindTraversal Kind = "traversal"
)

// Error attaches a Kind and an operation name to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// NewError wraps err with kind and op.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Op
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the outermost Kind in err's chain, or KindTraversal when no
// classified error is present.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTraversal
}

// IsKind reports whether any error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var ce *Error
		if !errors.As(err, &ce) {
			return false
		}
		if ce.Kind == kind {
			return true
		}
		err = ce.Err
	}
	return false
}

// RenderError formats err for a job's error detail: the kind and message on
// the first line followed by each wrapped cause.
func RenderError(err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", KindOf(err), err.Error())
	depth := 0
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		if _, ok := cause.(*Error); ok {
			continue
		}
		depth++
		fmt.Fprintf(&b, "\n  #%d %T: %s", depth, cause, cause.Error())
	}
	return b.String()
}
