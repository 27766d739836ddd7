package collection

import (
	"errors"
	"fmt"
)

var (
	// ErrValidationFailed is returned when a document violates a field predicate.
	ErrValidationFailed = errors.New("validation failed")

	// ErrInvalidCollectionName is returned by New for names outside 1-16 characters.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrStorageRead marks a backing store read that failed.
	ErrStorageRead = errors.New("storage read failed")

	// ErrStorageWrite marks a backing store write that was rejected.
	ErrStorageWrite = errors.New("storage write failed")

	// ErrSerialization marks snapshot text that could not be decoded or a
	// document that could not be encoded.
	ErrSerialization = errors.New("snapshot serialization failed")

	// ErrNotFound is returned when an operation targets a missing identifier.
	ErrNotFound = errors.New("document not found")

	// ErrDuplicateID marks an identifier seen twice in one snapshot.
	ErrDuplicateID = errors.New("duplicate identifier")

	// ErrImport wraps every failure of Import.
	ErrImport = errors.New("import failed")

	// ErrExport wraps every failure of Export.
	ErrExport = errors.New("export failed")

	// ErrUnknownOperator is returned for conditions with an unsupported operator.
	ErrUnknownOperator = errors.New("unknown operator")

	// ErrInvalidSort is returned for sort fields with an order other than asc or desc.
	ErrInvalidSort = errors.New("invalid sort order")

	// ErrInitializationFailed is returned by New in strict mode when the
	// stored snapshot cannot be read or decoded.
	ErrInitializationFailed = errors.New("initialization failed")
)

// ValidationError names the field whose predicate rejected a document.
type ValidationError struct {
	Field string
	Value any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: field %q rejected value %v", ErrValidationFailed, e.Field, e.Value)
}

// Is makes errors.Is(err, ErrValidationFailed) true.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
