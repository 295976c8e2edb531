package sqstash

import "github.com/liliang-cn/sqstash/pkg/core"

// Common errors
var (
	// ErrDatabaseClosed is returned when trying to use a closed database
	ErrDatabaseClosed = core.ErrDatabaseClosed

	// ErrInvalidOperation matches writes to read-only databases, use of
	// removed collections and reads from empty queues
	ErrInvalidOperation = core.ErrInvalidOperation

	// ErrInvalidArgument matches every *ArgumentError
	ErrInvalidArgument = core.ErrInvalidArgument

	// ErrKeyNotFound matches every *KeyNotFoundError
	ErrKeyNotFound = core.ErrKeyNotFound

	// ErrUnregisteredType is returned for values whose Go type was not declared
	ErrUnregisteredType = core.ErrUnregisteredType

	// ErrNilValue is returned when nil is passed where a value is required
	ErrNilValue = core.ErrNilValue

	// ErrReadOnly is returned by every mutating operation on a read-only database
	ErrReadOnly = core.ErrReadOnly

	// ErrQueueEmpty is returned by Peek and Dequeue on an empty queue
	ErrQueueEmpty = core.ErrQueueEmpty
)

// Error types
type (
	StoreError               = core.StoreError
	InvalidOperationError    = core.InvalidOperationError
	ArgumentError            = core.ArgumentError
	NoSuchCollectionError    = core.NoSuchCollectionError
	WrongCollectionTypeError = core.WrongCollectionTypeError
	TypeMismatchError        = core.TypeMismatchError
	CollectionNameInUseError = core.CollectionNameInUseError
	TypeNotResolvedError     = core.TypeNotResolvedError
	BreakingChangeError      = core.BreakingChangeError
	IncompatibleSchemaError  = core.IncompatibleSchemaError
	NotSupportedError        = core.NotSupportedError
	KeyNotFoundError         = core.KeyNotFoundError
	KeyExistsError           = core.KeyExistsError
)
