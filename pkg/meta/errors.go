package meta

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for metadata and association lookups
var (
	// ErrMetadataNotFound is returned when a table was never registered
	ErrMetadataNotFound = errors.New("meta: metadata not found")

	// ErrNotAssociated is returned when no association can be resolved between two tables
	ErrNotAssociated = errors.New("meta: tables are not associated")

	// ErrAmbiguousAssociation is returned when several associations match a table pair
	ErrAmbiguousAssociation = errors.New("meta: ambiguous association")

	// ErrIllegalAttribute is returned when assigning the primary key or an unknown attribute
	ErrIllegalAttribute = errors.New("meta: illegal attribute")

	// ErrConfig is returned for table or association declarations that cannot be completed
	ErrConfig = errors.New("meta: configuration error")
)

// MetadataNotFoundError names the table that was looked up.
type MetadataNotFoundError struct {
	Table string
}

func (e *MetadataNotFoundError) Error() string {
	return fmt.Sprintf("meta: metadata not found for table %q; register or discover it first", e.Table)
}

// Is allows errors.Is(err, ErrMetadataNotFound).
func (e *MetadataNotFoundError) Is(target error) bool {
	return target == ErrMetadataNotFound
}

// NotAssociatedError names both sides of a failed resolution.
type NotAssociatedError struct {
	Source string
	Target string
	Role   string
}

func (e *NotAssociatedError) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("meta: no association %q from %s to %s", e.Role, e.Source, e.Target)
	}
	return fmt.Sprintf("meta: no association from %s to %s", e.Source, e.Target)
}

// Is allows errors.Is(err, ErrNotAssociated).
func (e *NotAssociatedError) Is(target error) bool {
	return target == ErrNotAssociated
}

// AmbiguousAssociationError lists the roles a caller can choose from.
type AmbiguousAssociationError struct {
	Source string
	Target string
	Roles  []string
}

func (e *AmbiguousAssociationError) Error() string {
	return fmt.Sprintf("meta: %d associations from %s to %s, select one by role (%s)",
		len(e.Roles), e.Source, e.Target, strings.Join(e.Roles, ", "))
}

// Is allows errors.Is(err, ErrAmbiguousAssociation).
func (e *AmbiguousAssociationError) Is(target error) bool {
	return target == ErrAmbiguousAssociation
}

// IllegalAttributeError is raised at assignment time, never at save time.
type IllegalAttributeError struct {
	Table     string
	Attribute string
	Reason    string
}

func (e *IllegalAttributeError) Error() string {
	return fmt.Sprintf("meta: illegal attribute %q on %s: %s", e.Attribute, e.Table, e.Reason)
}

// Is allows errors.Is(err, ErrIllegalAttribute).
func (e *IllegalAttributeError) Is(target error) bool {
	return target == ErrIllegalAttribute
}

// ConfigError represents a table or association declaration that cannot be completed.
type ConfigError struct {
	Table   string
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("meta: config error in %s.%s: %s", e.Table, e.Field, e.Message)
	}
	return fmt.Sprintf("meta: config error in %s: %s", e.Table, e.Message)
}

// Is allows errors.Is(err, ErrConfig).
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// IsMetadataNotFound checks if an error is ErrMetadataNotFound
func IsMetadataNotFound(err error) bool {
	return errors.Is(err, ErrMetadataNotFound)
}

// IsNotAssociated checks if an error is ErrNotAssociated
func IsNotAssociated(err error) bool {
	return errors.Is(err, ErrNotAssociated)
}

// IsAmbiguousAssociation checks if an error is ErrAmbiguousAssociation
func IsAmbiguousAssociation(err error) bool {
	return errors.Is(err, ErrAmbiguousAssociation)
}

// IsIllegalAttribute checks if an error is ErrIllegalAttribute
func IsIllegalAttribute(err error) bool {
	return errors.Is(err, ErrIllegalAttribute)
}

// IsConfig checks if an error is ErrConfig
func IsConfig(err error) bool {
	return errors.Is(err, ErrConfig)
}
