package metadata

import "errors"

// ============================================================================
// Sentinel Errors
// ============================================================================

var (
	// ErrNoData is returned by AttributeStore.GetXattr when the attribute is
	// absent. It is the only "not present" signal; callers must not treat it
	// as a failure.
	ErrNoData = errors.New("no such attribute")

	// ErrNotFound indicates the requested inode does not exist.
	ErrNotFound = errors.New("inode not found")

	// ErrAlreadyExists indicates an inode with the same id already exists.
	ErrAlreadyExists = errors.New("inode already exists")

	// ErrPermissionDenied indicates the caller is neither the owner of the
	// inode nor holds the capability that overrides ownership.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotSupported indicates the operation is not supported on the inode
	// or by the backing store.
	ErrNotSupported = errors.New("operation not supported")

	// ErrInvalidArgument indicates invalid parameters were provided.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIO indicates a backend failure while reading or writing metadata.
	ErrIO = errors.New("metadata I/O error")
)

// ============================================================================
// StoreError
// ============================================================================

// StoreError represents a domain error from store operations.
//
// These are business logic errors (inode not found, attribute absent, etc.)
// as opposed to infrastructure errors (network failure, disk error). A
// StoreError matches the sentinel of its Code with errors.Is, so callers
// can test for ErrNotFound without caring which backend produced it.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// ID is the inode related to the error (if applicable)
	ID string

	// Err is the underlying backend error, if any
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.sentinel().Error()
	}
	if e.ID != "" {
		msg += ": " + e.ID
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the sentinel for e.Code.
func (e *StoreError) Is(target error) bool {
	return target == e.Code.sentinel()
}

// Unwrap returns the underlying backend error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// ErrorCode represents the category of a store error.
type ErrorCode int

const (
	// CodeNoData indicates the attribute is absent
	CodeNoData ErrorCode = iota

	// CodeNotFound indicates the inode doesn't exist
	CodeNotFound

	// CodeAlreadyExists indicates the inode already exists
	CodeAlreadyExists

	// CodePermissionDenied indicates an ownership check failed
	CodePermissionDenied

	// CodeNotSupported indicates the operation is not supported
	CodeNotSupported

	// CodeInvalidArgument indicates invalid parameters were provided
	CodeInvalidArgument

	// CodeIO indicates an I/O error occurred in the backend
	CodeIO
)

func (c ErrorCode) sentinel() error {
	switch c {
	case CodeNoData:
		return ErrNoData
	case CodeNotFound:
		return ErrNotFound
	case CodeAlreadyExists:
		return ErrAlreadyExists
	case CodePermissionDenied:
		return ErrPermissionDenied
	case CodeNotSupported:
		return ErrNotSupported
	case CodeInvalidArgument:
		return ErrInvalidArgument
	default:
		return ErrIO
	}
}

// NewNotFoundError returns a StoreError for a missing inode.
func NewNotFoundError(id string) *StoreError {
	return &StoreError{Code: CodeNotFound, ID: id}
}

// NewIOError wraps a backend failure.
func NewIOError(id string, err error) *StoreError {
	return &StoreError{Code: CodeIO, ID: id, Err: err}
}
