package simplecms

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the service wraps exactly one of these.
var (
	// ErrValidation indicates malformed or missing input
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates the operation collides with existing state
	ErrConflict = errors.New("conflict")

	// ErrNotFound indicates a table, record, language or media asset does not exist
	ErrNotFound = errors.New("not found")

	// ErrStorage indicates the underlying store failed
	ErrStorage = errors.New("storage failure")
)

// Specific errors
var (
	ErrTableNotFound    = kindError(ErrNotFound, "table not found")
	ErrRecordNotFound   = kindError(ErrNotFound, "record not found")
	ErrLanguageNotFound = kindError(ErrNotFound, "language not found")
	ErrMediaNotFound    = kindError(ErrNotFound, "media asset not found")
	ErrObjectNotFound   = kindError(ErrNotFound, "stored object not found")

	ErrDuplicateTable    = kindError(ErrConflict, "table already exists")
	ErrDuplicateField    = kindError(ErrConflict, "field already exists")
	ErrDuplicateLanguage = kindError(ErrConflict, "language already exists")

	ErrInvalidTableName = kindError(ErrValidation, "invalid table name")
	ErrReservedTable    = kindError(ErrValidation, "table name is reserved")
	ErrInvalidFieldName = kindError(ErrValidation, "invalid field name")
	ErrNoFields         = kindError(ErrValidation, "at least one field is required")
	ErrUnknownField     = kindError(ErrValidation, "unknown field")
	ErrInvalidFieldType = kindError(ErrValidation, "invalid field type")
	ErrInvalidSortField = kindError(ErrValidation, "invalid sort field")
	ErrNoSearchColumns  = kindError(ErrValidation, "table has no searchable columns")
	ErrEmptyQuery       = kindError(ErrValidation, "search query is required")
	ErrDefaultLanguage  = kindError(ErrValidation, "default language cannot be deactivated or removed")
	ErrNothingSaved     = kindError(ErrValidation, "nothing saved: all translation values were empty")
	ErrInvalidMedia     = kindError(ErrValidation, "invalid media upload")
)

// ErrNoDirectURL is returned by blob stores whose objects can only be read
// through Download.
var ErrNoDirectURL = errors.New("blob store has no direct download url")

type kindErr struct {
	kind error
	msg  string
}

func kindError(kind error, msg string) error {
	return &kindErr{kind: kind, msg: msg}
}

func (e *kindErr) Error() string { return e.msg }

func (e *kindErr) Unwrap() error { return e.kind }

// KindOf returns the error kind wrapped by err, or ErrStorage for anything
// that is not classified.
func KindOf(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation):
		return ErrValidation
	case errors.Is(err, ErrConflict):
		return ErrConflict
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	default:
		return ErrStorage
	}
}

// Validationf builds a validation error with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// TableError represents an error related to a table-level operation
type TableError struct {
	Table string
	Op    string
	Err   error
}

func (e *TableError) Error() string {
	return fmt.Sprintf("table operation %s failed for table %s: %v", e.Op, e.Table, e.Err)
}

func (e *TableError) Unwrap() error {
	return e.Err
}

// RecordError represents an error related to a single record
type RecordError struct {
	Table string
	ID    int64
	Op    string
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record operation %s failed for %s/%d: %v", e.Op, e.Table, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// StorageError wraps a failure of the underlying store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports StorageError as ErrStorage.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// storageErr wraps err as a StorageError unless it already carries a kind.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrStorage) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
