// Package errdefs defines the error taxonomy shared by the schema, odm and
// store packages. Every concrete error also matches one of the kind sentinels
// below through errors.Is, so callers can branch on the broad category without
// caring which layer raised it.
package errdefs

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrValidation  = errors.New("validation error")
	ErrSchema      = errors.New("schema error")
	ErrNotFound    = errors.New("document not found")
	ErrUniqueIndex = errors.New("unique index violation")

	ErrUntypedReference  = errors.New("reference has no concrete document type")
	ErrUnsavedTarget     = errors.New("cannot reference an unsaved document")
	ErrMixedConstruction = errors.New("document must be built from either a mapping or keyword fields, not both")
	ErrDetached          = errors.New("document is not attached to a store")
)

// ValidationTypeError reports a value whose runtime shape disagrees with its schema.
type ValidationTypeError struct {
	Expected string
	Got      string
}

func (e *ValidationTypeError) Error() string {
	return fmt.Sprintf("validation: expected %s, got %s", e.Expected, e.Got)
}

func (e *ValidationTypeError) Is(target error) bool { return target == ErrValidation }

// ValidationKeyError reports a map write to a key the schema does not permit.
type ValidationKeyError struct {
	Key string
}

func (e *ValidationKeyError) Error() string {
	return fmt.Sprintf("validation: unexpected key %q", e.Key)
}

func (e *ValidationKeyError) Is(target error) bool { return target == ErrValidation }

// ValidationListError reports a sequence position that no schema covers.
type ValidationListError struct {
	Index  int
	Reason string
}

func (e *ValidationListError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("validation: no schema for list index %d", e.Index)
	}
	return fmt.Sprintf("validation: list index %d: %s", e.Index, e.Reason)
}

func (e *ValidationListError) Is(target error) bool { return target == ErrValidation }

// SchemaUnknownType is raised when a declaration carries no type tag.
type SchemaUnknownType struct {
	Decl interface{}
}

func (e *SchemaUnknownType) Error() string {
	return fmt.Sprintf("schema: cannot determine type of %v", e.Decl)
}

func (e *SchemaUnknownType) Is(target error) bool { return target == ErrSchema }

type SchemaTypeError struct {
	Detail string
}

func (e *SchemaTypeError) Error() string { return "schema: " + e.Detail }

func (e *SchemaTypeError) Is(target error) bool { return target == ErrSchema }

// SchemaUnknownKey is raised for a modifier the declared tag does not accept.
type SchemaUnknownKey struct {
	Key string
	Tag string
}

func (e *SchemaUnknownKey) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("schema: unexpected key %q", e.Key)
	}
	return fmt.Sprintf("schema: unexpected key %q for %s", e.Key, e.Tag)
}

func (e *SchemaUnknownKey) Is(target error) bool { return target == ErrSchema }

// DocumentNotFound is returned when a lookup matches no active record.
type DocumentNotFound struct {
	Type     string
	ID       string
	Criteria interface{}
}

func (e *DocumentNotFound) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s not found", e.Type, e.ID)
	}
	return fmt.Sprintf("%s matching %v not found", e.Type, e.Criteria)
}

func (e *DocumentNotFound) Is(target error) bool { return target == ErrNotFound }

// UniqueIndexViolation wraps a store rejection caused by a uniqueness constraint.
type UniqueIndexViolation struct {
	Type  string
	Cause error
}

func (e *UniqueIndexViolation) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: unique index violation", e.Type)
	}
	return fmt.Sprintf("%s: unique index violation: %v", e.Type, e.Cause)
}

func (e *UniqueIndexViolation) Is(target error) bool { return target == ErrUniqueIndex }

func (e *UniqueIndexViolation) Unwrap() error { return e.Cause }

// IsValidation reports whether err is any value-validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsSchema reports whether err stems from a malformed schema declaration.
func IsSchema(err error) bool { return errors.Is(err, ErrSchema) }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsUniqueIndex(err error) bool { return errors.Is(err, ErrUniqueIndex) }
