package schema

import (
	"fmt"
	"strings"
)

// Error codes (E100-E199) for schema problems, E001-E009 for loading.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNotFound    = "E002" // Path not found
	ErrCodeNoFiles     = "E003" // No schema files found
	ErrCodeLoadFailed  = "E004" // File could not be read or parsed
	ErrCodeBuildFailed = "E005" // CUE build failed

	ErrCodeInvalidDocument   = "E100" // structurally invalid document
	ErrCodeInvalidTypeName   = "E101" // missing or malformed type name
	ErrCodeDuplicateType     = "E102" // type declared twice
	ErrCodeUnknownParent     = "E103" // extends names an undeclared type
	ErrCodeExtendsCycle      = "E104" // extends chain loops
	ErrCodeInvalidAttribute  = "E105" // missing or malformed attribute name
	ErrCodeDuplicateAttr     = "E106" // attribute declared twice in one type
	ErrCodeUnknownAttrType   = "E107" // attribute type tag not registered
	ErrCodeInvalidNested     = "E108" // entity/collection without a known "of" type
	ErrCodeInvalidExpression = "E109" // get expression does not compile
	ErrCodeMissingIDAttr     = "E110" // id_attribute not among the attributes
)

// ValidationError represents one schema problem.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is returned by Build when a document fails validation.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	switch len(errs) {
	case 0:
		return "schema: no errors"
	case 1:
		return errs[0].Error()
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d schema errors:\n  %s", len(errs), strings.Join(msgs, "\n  "))
}

// LoadError represents an error that occurred while reading a schema.
type LoadError struct {
	Code    string
	Message string
	File    string
	Line    int
}

func (e *LoadError) Error() string {
	if e.File != "" && e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s: %s", e.File, e.Line, e.Code, e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("%s: %s: %s", e.File, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
