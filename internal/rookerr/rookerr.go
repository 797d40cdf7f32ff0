// Package rookerr defines the typed error vocabulary returned by every Rook
// component. Components never propagate errors implicitly or panic across a
// layer boundary; every fallible operation returns an *Error (or wraps one)
// carrying a Kind a caller can switch on.
package rookerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure. See the component design for the recovery
// policy associated with each kind.
type Kind string

const (
	// NotConfigured is returned when an operation requires a capability
	// (LLM, embedder, reranker, ...) that was never wired at startup.
	NotConfigured Kind = "not-configured"

	// InvalidInput is returned for caller-supplied arguments that fail
	// validation before any external call is attempted.
	InvalidInput Kind = "invalid-input"

	// NotFound is returned when a requested id does not resolve to a
	// live record in the requested scope.
	NotFound Kind = "not-found"

	// ScopeViolation is returned when an operation would cross a scope
	// boundary (see the Scope 4-tuple).
	ScopeViolation Kind = "scope-violation"

	// Conflict is returned when an optimistic compare-and-set write loses
	// a race after exhausting its retry budget.
	Conflict Kind = "conflict"

	// ContradictionUnresolved is returned when the contradiction detector
	// abstains at every layer but policy requires a decision.
	ContradictionUnresolved Kind = "contradiction-unresolved"

	// ProviderError wraps a failure surfaced by a downstream capability
	// (language model, embedder, vector store, graph store, reranker,
	// full-text index).
	ProviderError Kind = "provider-error"

	// Timeout is returned when a capability call exceeds its deadline.
	Timeout Kind = "timeout"

	// Cancelled is returned when the caller's context is cancelled before
	// the operation commits any write.
	Cancelled Kind = "cancelled"

	// StoreError is returned for a persistence-layer failure not better
	// described by NotFound or Conflict.
	StoreError Kind = "store-error"

	// Internal is returned for invariant violations that indicate a bug
	// rather than an expected failure mode.
	Internal Kind = "internal"
)

// Error is the concrete error type returned by Rook components.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, rookerr.New(kind, "")) to match on Kind alone,
// ignoring Reason and Err.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New constructs an *Error with no wrapped cause.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap constructs an *Error that wraps an underlying cause.
func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// Of returns the Kind of err if it is (or wraps) a *rookerr.Error, and
// Internal otherwise.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return Of(err) == kind
}
