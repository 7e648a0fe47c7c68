package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for retry and surfacing decisions.
type Kind int

const (
	// Transient is any backend failure not otherwise classified. It is retried.
	Transient Kind = iota
	// InvalidArgument is a missing or empty required input. Never retried.
	InvalidArgument
	// PermissionDenied means a resource is unreachable under current credentials. Never retried.
	PermissionDenied
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case PermissionDenied:
		return "permission_denied"
	default:
		return "transient"
	}
}

// Error is a classified failure. Resource is set for permission failures
// that can be attributed to a named backend resource.
type Error struct {
	Kind     Kind
	Resource string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == PermissionDenied && e.Resource != "":
		return fmt.Sprintf("%s is not accessible: %s", e.Resource, e.Message)
	case e.Kind == PermissionDenied && e.Err != nil:
		return "permission denied: " + e.Message
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Invalid returns an InvalidArgument error with the given message.
func Invalid(msg string) error {
	return &Error{Kind: InvalidArgument, Message: msg}
}

// Invalidf is Invalid with formatting.
func Invalidf(format string, args ...any) error {
	return &Error{Kind: InvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// Inaccessible returns a PermissionDenied error naming the unreachable resource.
func Inaccessible(resource string) error {
	return &Error{
		Kind:     PermissionDenied,
		Resource: resource,
		Message:  "check collection permissions on the backend",
	}
}

// New returns an error of kind k whose text is exactly msg. It rebuilds
// errors received from a remote peer.
func New(k Kind, msg string) error {
	return &Error{Kind: k, Message: msg}
}

// PermissionOn wraps a backend authorization failure on the named resource.
// The resource may be empty when the failing call is not attributable.
func PermissionOn(resource string, err error) error {
	return &Error{
		Kind:     PermissionDenied,
		Resource: resource,
		Message:  err.Error() + "; check collection permissions on the backend",
		Err:      err,
	}
}

// KindOf returns the kind of the first classified error in err's chain.
// Unclassified errors are Transient.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Transient
}

// Is reports whether err is classified as kind k.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
