package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ammar0144/orm4go/pkg/validation"
)

// Sentinel errors for session operations
var (
	// ErrNotFound is returned when a lookup by key matches no row
	ErrNotFound = errors.New("record not found")

	// ErrStaleModel is returned when a versioned update lost the race to another writer
	ErrStaleModel = errors.New("stale model")

	// ErrAmbiguousParent is returned when a child has several possible parent tables
	ErrAmbiguousParent = errors.New("ambiguous parent")

	// ErrValidation is returned by SaveIt when validators reported failures
	ErrValidation = errors.New("validation failed")

	// ErrNotPersisted is returned when an operation needs a saved record
	ErrNotPersisted = errors.New("record is not persisted")
)

// StaleModelError reports the version an update expected
type StaleModelError struct {
	Table   string
	ID      any
	Version int64
}

func (e *StaleModelError) Error() string {
	return fmt.Sprintf("stale model: %s %v is no longer at version %d", e.Table, e.ID, e.Version)
}

// Is reports whether target is ErrStaleModel
func (e *StaleModelError) Is(target error) bool {
	return target == ErrStaleModel
}

// AmbiguousParentError lists the candidate parent tables of a child
type AmbiguousParentError struct {
	Table      string
	Candidates []string
}

func (e *AmbiguousParentError) Error() string {
	return fmt.Sprintf("ambiguous parent: %s has parents in %s, name the parent table", e.Table, strings.Join(e.Candidates, ", "))
}

// Is reports whether target is ErrAmbiguousParent
func (e *AmbiguousParentError) Is(target error) bool {
	return target == ErrAmbiguousParent
}

// ValidationError carries the failures that prevented a save
type ValidationError struct {
	Table  string
	Errors validation.Errors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Table, e.Errors.Error())
}

// Is reports whether target is ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Unwrap exposes the failures
func (e *ValidationError) Unwrap() error {
	return e.Errors
}

// IsNotFound checks if an error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStaleModel checks if an error is ErrStaleModel
func IsStaleModel(err error) bool {
	return errors.Is(err, ErrStaleModel)
}

// IsAmbiguousParent checks if an error is ErrAmbiguousParent
func IsAmbiguousParent(err error) bool {
	return errors.Is(err, ErrAmbiguousParent)
}

// IsValidation checks if an error is ErrValidation
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func notFound(table string, column string, value any) error {
	if column == "" {
		return fmt.Errorf("%w: %s", ErrNotFound, table)
	}
	return fmt.Errorf("%w: %s where %s = %v", ErrNotFound, table, column, value)
}
