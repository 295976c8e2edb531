package core

import (
	"errors"
	"fmt"

	"github.com/liliang-cn/sqstash/pkg/schema"
)

// Common errors
var (
	// ErrDatabaseClosed is returned when trying to use a closed database
	ErrDatabaseClosed = errors.New("database is closed")

	// ErrInvalidOperation matches every *InvalidOperationError
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrInvalidArgument matches every *ArgumentError
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrKeyNotFound matches every *KeyNotFoundError
	ErrKeyNotFound = errors.New("key not found")

	// ErrUnregisteredType is returned when a value's Go type was not supplied to the database
	ErrUnregisteredType = schema.ErrUnknownType

	// ErrNilValue is returned when nil is passed where a value is required
	ErrNilValue = errors.New("value cannot be nil")

	// ErrReadOnly is returned by every mutating operation on a read-only database
	ErrReadOnly = &InvalidOperationError{Msg: "The database has been opened read-only and therefore may not be modified"}

	// ErrQueueEmpty is returned by Peek and Dequeue on an empty queue
	ErrQueueEmpty = &InvalidOperationError{Msg: "The queue is empty"}
)

// BreakingChangeError reports a type whose stored structure is incompatible
// with the structure supplied by the current process.
type BreakingChangeError = schema.BreakingChangeError

// StoreError wraps errors from the storage layer with operation context
type StoreError struct {
	Op  string // Operation name
	Err error  // Underlying error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("sqstash: %v", e.Err)
	}
	return fmt.Sprintf("sqstash: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Err
}

// wrapError wraps an error with operation context
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// InvalidOperationError is returned for operations that are not allowed in
// the current state: writes to read-only databases, use of removed
// collections and reads from empty queues.
type InvalidOperationError struct {
	Msg string
}

func (e *InvalidOperationError) Error() string { return e.Msg }

func (e *InvalidOperationError) Is(target error) bool { return target == ErrInvalidOperation }

func removedError(name string) error {
	return &InvalidOperationError{
		Msg: "This collection (\"" + name + "\") has been removed from the database and may no longer be used",
	}
}

// ArgumentError is returned for invalid arguments such as unregistered
// value types, nil values and inverted intervals.
type ArgumentError struct {
	Msg string
	Err error
}

func (e *ArgumentError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *ArgumentError) Unwrap() error { return e.Err }

func (e *ArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

func argErrorf(err error, format string, args ...any) error {
	return &ArgumentError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// NoSuchCollectionError is returned when a named collection does not exist
type NoSuchCollectionError struct {
	Name string
}

func (e *NoSuchCollectionError) Error() string {
	return fmt.Sprintf("collection %q does not exist", e.Name)
}

// WrongCollectionTypeError is returned when a collection exists under a different kind
type WrongCollectionTypeError struct {
	Name      string
	Requested Kind
	Actual    Kind
}

func (e *WrongCollectionTypeError) Error() string {
	return fmt.Sprintf("collection %q is a %s, not a %s", e.Name, e.Actual, e.Requested)
}

// TypeMismatchError is returned when a collection exists with a different key or value type
type TypeMismatchError struct {
	Name      string
	Role      string // "key" or "value"
	Stored    string
	Requested string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("collection %q has %s type %s but %s was requested; open it with %s or choose a different collection name",
		e.Name, e.Role, e.Stored, e.Requested, e.Stored)
}

// CollectionNameInUseError is returned by Create* when the name is taken
type CollectionNameInUseError struct {
	Name string
	Kind Kind
}

func (e *CollectionNameInUseError) Error() string {
	return fmt.Sprintf("collection name %q is already in use by a %s", e.Name, e.Kind)
}

// TypeNotResolvedError is returned when a stored type is required but the
// current session did not supply a Go type for it.
type TypeNotResolvedError struct {
	Type       string
	Collection string
}

func (e *TypeNotResolvedError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("type %s could not be resolved in this session", e.Type)
	}
	return fmt.Sprintf("type %s used by collection %q could not be resolved in this session", e.Type, e.Collection)
}

// IncompatibleSchemaError is returned when the metadata tables were written
// by an incompatible engine version or are missing.
type IncompatibleSchemaError struct {
	Found    string
	Expected string
}

func (e *IncompatibleSchemaError) Error() string {
	return fmt.Sprintf("incompatible database schema: found version %s, expected %s", e.Found, e.Expected)
}

// NotSupportedError is returned when a type cannot be used in a given role
type NotSupportedError struct {
	Type   string
	Reason string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("type %s is not supported: %s", e.Type, e.Reason)
}

// KeyNotFoundError is returned by direct lookups of absent keys or row ids
type KeyNotFoundError struct {
	Collection string
	Key        any
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("key %v not found in collection %q", e.Key, e.Collection)
}

func (e *KeyNotFoundError) Is(target error) bool { return target == ErrKeyNotFound }

// KeyExistsError is returned when a move targets a key that is already present
type KeyExistsError struct {
	Collection string
	Key        any
}

func (e *KeyExistsError) Error() string {
	return fmt.Sprintf("key %v already exists in collection %q", e.Key, e.Collection)
}

func (e *KeyExistsError) Is(target error) bool { return target == ErrInvalidArgument }

// errNotAssignable marks stored values whose type cannot be assigned to the
// handle's declared type.
var errNotAssignable = errors.New("stored value is not assignable to the requested type")

// skippable reports whether a decode failure only means the row is not
// visible through this handle.
func skippable(err error) bool {
	var tnr *TypeNotResolvedError
	return errors.As(err, &tnr) || errors.Is(err, errNotAssignable)
}
