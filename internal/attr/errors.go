package attr

import (
	"errors"
	"fmt"
)

// Error reports a definition-time or access-time failure of the attribute
// layer. These errors are returned synchronously and are never recovered
// internally.
//
// Error values carry structured fields for diagnostics:
//   - Code identifies the category (see ErrorCode constants)
//   - Type names the entity type involved, when known
//   - Attr names the attribute involved, when known
//   - Tag names the attribute type tag involved, when known
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Type is the entity type name.
	Type string

	// Attr is the attribute name.
	Attr string

	// Tag is the attribute type tag.
	Tag string
}

// ErrorCode categorizes attribute errors.
type ErrorCode string

const (
	// CodeUnknownAttribute indicates get/set/raw on an undeclared attribute name.
	CodeUnknownAttribute ErrorCode = "UNKNOWN_ATTRIBUTE"

	// CodeUnknownType indicates a descriptor referenced an unregistered type tag.
	CodeUnknownType ErrorCode = "UNKNOWN_TYPE"

	// CodeDuplicateType indicates a type tag was registered twice.
	CodeDuplicateType ErrorCode = "DUPLICATE_TYPE"

	// CodeTypeMismatch indicates a nested attribute received a value of the wrong kind.
	CodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// CodeMissingIDAttribute indicates an identity operation on a type without a usable id attribute.
	CodeMissingIDAttribute ErrorCode = "MISSING_ID_ATTRIBUTE"

	// CodeIdentityConflict indicates an id assignment that another live instance already holds.
	CodeIdentityConflict ErrorCode = "IDENTITY_CONFLICT"
)

// Sentinels for errors.Is matching. Only the Code is compared.
var (
	ErrUnknownAttribute   = &Error{Code: CodeUnknownAttribute}
	ErrUnknownType        = &Error{Code: CodeUnknownType}
	ErrDuplicateType      = &Error{Code: CodeDuplicateType}
	ErrTypeMismatch       = &Error{Code: CodeTypeMismatch}
	ErrMissingIDAttribute = &Error{Code: CodeMissingIDAttribute}
	ErrIdentityConflict   = &Error{Code: CodeIdentityConflict}
)

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Type != "" && e.Attr != "":
		return fmt.Sprintf("%s: %s (type=%s, attr=%s)", e.Code, e.Message, e.Type, e.Attr)
	case e.Type != "":
		return fmt.Sprintf("%s: %s (type=%s)", e.Code, e.Message, e.Type)
	case e.Tag != "":
		return fmt.Sprintf("%s: %s (tag=%s)", e.Code, e.Message, e.Tag)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewUnknownAttributeError reports access to an attribute the type does not declare.
func NewUnknownAttributeError(typeName, name string) *Error {
	return &Error{
		Code:    CodeUnknownAttribute,
		Message: fmt.Sprintf("attribute %q is not declared", name),
		Type:    typeName,
		Attr:    name,
	}
}

// NewUnknownTypeError reports an unregistered type tag.
func NewUnknownTypeError(tag string) *Error {
	return &Error{
		Code:    CodeUnknownType,
		Message: fmt.Sprintf("attribute type %q is not registered", tag),
		Tag:     tag,
	}
}

// NewDuplicateTypeError reports a second registration of the same tag.
func NewDuplicateTypeError(tag string) *Error {
	return &Error{
		Code:    CodeDuplicateType,
		Message: fmt.Sprintf("attribute type %q is already registered", tag),
		Tag:     tag,
	}
}

// NewTypeMismatchError reports a value of the wrong runtime kind for a nested attribute.
// Values that name their own type (entities, collections) are reported by
// that name rather than their Go type.
func NewTypeMismatchError(typeName, name, want string, got any) *Error {
	gotName := fmt.Sprintf("%T", got)
	if n, ok := got.(interface{ TypeName() string }); ok {
		gotName = n.TypeName()
	}
	return &Error{
		Code:    CodeTypeMismatch,
		Message: fmt.Sprintf("expected %s, got %s", want, gotName),
		Type:    typeName,
		Attr:    name,
	}
}

// NewMissingIDAttributeError reports an identity operation on a type whose
// id attribute is not declared.
func NewMissingIDAttributeError(typeName, idAttr string) *Error {
	return &Error{
		Code:    CodeMissingIDAttribute,
		Message: fmt.Sprintf("id attribute %q is not declared", idAttr),
		Type:    typeName,
		Attr:    idAttr,
	}
}

// NewIdentityConflictError reports an id value already held by another live
// instance of the same type.
func NewIdentityConflictError(typeName, idAttr string, id any) *Error {
	return &Error{
		Code:    CodeIdentityConflict,
		Message: fmt.Sprintf("id %v is held by another instance", id),
		Type:    typeName,
		Attr:    idAttr,
	}
}

// IsUnknownAttribute returns true if err is an unknown attribute error.
// Uses errors.As to handle wrapped errors.
func IsUnknownAttribute(err error) bool { return hasCode(err, CodeUnknownAttribute) }

// IsUnknownType returns true if err is an unknown type tag error.
func IsUnknownType(err error) bool { return hasCode(err, CodeUnknownType) }

// IsDuplicateType returns true if err is a duplicate registration error.
func IsDuplicateType(err error) bool { return hasCode(err, CodeDuplicateType) }

// IsTypeMismatch returns true if err is a nested type mismatch.
func IsTypeMismatch(err error) bool { return hasCode(err, CodeTypeMismatch) }

// IsMissingIDAttribute returns true if err reports a missing id attribute.
func IsMissingIDAttribute(err error) bool { return hasCode(err, CodeMissingIDAttribute) }

// IsIdentityConflict returns true if err reports a taken id.
func IsIdentityConflict(err error) bool { return hasCode(err, CodeIdentityConflict) }

func hasCode(err error, code ErrorCode) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}
