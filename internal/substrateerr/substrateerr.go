// Package substrateerr defines Substrate's error taxonomy: a small set of
// sentinel-wrapped kinds that every component returns instead of ad-hoc
// errors, so the CLI, the shim, and the Agent API can each map a failure
// to the right exit code or HTTP status without re-deriving it from a
// message string.
package substrateerr

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind int

const (
	// KindUser is a bad flag, invalid YAML/TOML, unknown config key, or a
	// nested workspace. Printed concisely; exit code 2.
	KindUser Kind = iota
	// KindPolicyDeny is a broker Deny, observed or enforced. Exit 126 when
	// enforced; the event is logged regardless.
	KindPolicyDeny
	// KindTransport covers connection refused, DNS failure, TLS failure,
	// and broken pipes. Retriable by the caller; never redacted.
	KindTransport
	// KindTimeout is a request timeout or capability-probe timeout.
	KindTimeout
	// KindWorldUnavailable means ensure_session failed or a requested
	// capability is missing; fail-closed under enforce + require_world.
	KindWorldUnavailable
	// KindIsolationDegraded means an isolation primitive (netns, cgroups,
	// Landlock, seccomp) could not be applied. A warning, not an error;
	// recorded in telemetry, never surfaced as a failure on its own.
	KindIsolationDegraded
	// KindInternal is anything else; the source chain is preserved.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "UserError"
	case KindPolicyDeny:
		return "PolicyDeny"
	case KindTransport:
		return "TransportError"
	case KindTimeout:
		return "Timeout"
	case KindWorldUnavailable:
		return "WorldUnavailable"
	case KindIsolationDegraded:
		return "IsolationDegraded"
	default:
		return "InternalError"
	}
}

// ExitCode returns the process exit code a CLI entrypoint should use for
// an error of this kind.
func (k Kind) ExitCode() int {
	switch k {
	case KindUser:
		return 2
	case KindPolicyDeny:
		return 126
	default:
		return 1
	}
}

// Error wraps an underlying cause with a Kind, letting callers use
// errors.As to recover both without parsing a message string.
type Error struct {
	Kind   Kind
	Msg    string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error of the given kind with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an *Error of the given kind around an existing error.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// KindOf returns the Kind of err if it is (or wraps) a *Error, else
// KindInternal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// ExitCodeFor returns the exit code a CLI entrypoint should use for err,
// falling back to 1 for errors outside the taxonomy.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	return KindOf(err).ExitCode()
}

// Timeout is a convenience constructor matching the Agent API's fixed
// wording for an expired request-timeout context.
func Timeout() *Error {
	return New(KindTimeout, "Request timeout")
}
