// Package coreerr defines the typed error kinds shared across the cluster
// runtime (see spec §7, Error Handling Design). Components branch on error
// kind with errors.As rather than string matching.
package coreerr

import "fmt"

// Kind classifies an error so callers can branch on it. No component
// retries a KindStorageTransient error: like every other kind, it is
// returned to the caller.
type Kind string

const (
	KindConfig           Kind = "config"
	KindReferenceMissing Kind = "reference_missing"
	KindRouting          Kind = "routing"
	KindStorageTransient Kind = "storage_transient"
	KindStorageFatal     Kind = "storage_fatal"
	KindRPCTimeout       Kind = "rpc_timeout"
	KindRPCRemote        Kind = "rpc_remote"
	KindHandler          Kind = "handler"
)

// Error is the common error type for all core error kinds.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, coreerr.New(kind, "")) to match by kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// ConfigError, ReferenceMissing, RoutingError, StorageTransient,
// StorageFatal, RPCTimeout, RPCRemote, and HandlerError are convenience
// constructors matching the named error kinds in spec §7.

func ConfigError(msg string, cause error) *Error {
	return Wrap(KindConfig, msg, cause)
}

func ReferenceMissing(id string) *Error {
	return New(KindReferenceMissing, fmt.Sprintf("reference target %q not found", id))
}

func RoutingError(id string) *Error {
	return New(KindRouting, fmt.Sprintf("entity id %q cannot be classified for routing", id))
}

func StorageTransient(msg string, cause error) *Error {
	return Wrap(KindStorageTransient, msg, cause)
}

func StorageFatal(msg string, cause error) *Error {
	return Wrap(KindStorageFatal, msg, cause)
}

func RPCTimeout(method string) *Error {
	return New(KindRPCTimeout, fmt.Sprintf("request timed out: %s", method))
}

func RPCRemote(code int, msg string) *Error {
	return New(KindRPCRemote, fmt.Sprintf("remote error %d: %s", code, msg))
}

func HandlerError(cause error) *Error {
	return Wrap(KindHandler, "request handler failed", cause)
}

// IsKind reports whether err is a *Error of the given kind, anywhere in its
// chain.
func IsKind(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
