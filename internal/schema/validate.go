package schema

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/tracked/internal/attr"
	"github.com/roach88/tracked/internal/model"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// schemaValidate is the validator instance for schema documents.
// Initialized in init() with the identifier rule and yaml field names.
var schemaValidate *validator.Validate

func init() {
	schemaValidate = validator.New()
	_ = schemaValidate.RegisterValidation("identifier", validateIdentifier)

	// Report fields by their document names ("attributes[0].name").
	schemaValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
}

func validateIdentifier(fl validator.FieldLevel) bool {
	return identifierPattern.MatchString(fl.Field().String())
}

// Validate checks doc against the structural rules and against reg, which
// decides the known attribute type tags. A nil reg uses the registry of a
// fresh model.Env (builtin scalars plus entity and collection).
//
// Returns all errors found (does not fail-fast).
func Validate(doc *Document, reg *attr.Registry) []ValidationError {
	if doc == nil {
		return []ValidationError{{Field: "types", Message: "document is empty", Code: ErrCodeInvalidDocument}}
	}
	if reg == nil {
		reg = model.NewEnv().Registry()
	}

	errs := structuralErrors(doc)

	types := make(map[string]int, len(doc.Types))
	for i, t := range doc.Types {
		if t.Name == "" {
			continue
		}
		if _, dup := types[t.Name]; dup {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("types[%d].name", i),
				Message: fmt.Sprintf("type %q declared twice", t.Name),
				Code:    ErrCodeDuplicateType,
				Line:    t.Line,
			})
			continue
		}
		types[t.Name] = i
	}

	for i, t := range doc.Types {
		errs = append(errs, validateType(doc, i, t, types, reg)...)
	}
	errs = append(errs, extendsCycles(doc)...)
	return errs
}

// structuralErrors runs the struct tag rules.
func structuralErrors(doc *Document) []ValidationError {
	err := schemaValidate.Struct(doc)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{Field: "types", Message: err.Error(), Code: ErrCodeInvalidDocument}}
	}

	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := strings.TrimPrefix(fe.Namespace(), "Document.")
		out = append(out, ValidationError{
			Field:   field,
			Message: describe(fe),
			Code:    structuralCode(field),
			Line:    lineOf(doc, field),
		})
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "identifier":
		return fmt.Sprintf("%q is not an identifier (letters, digits, underscore)", fe.Value())
	}
	return fmt.Sprintf("failed %q rule", fe.Tag())
}

func structuralCode(field string) string {
	switch {
	case strings.Contains(field, ".attributes["):
		return ErrCodeInvalidAttribute
	case strings.HasSuffix(field, ".name"):
		return ErrCodeInvalidTypeName
	case strings.HasSuffix(field, ".extends"):
		return ErrCodeUnknownParent
	case strings.HasSuffix(field, ".id_attribute"):
		return ErrCodeMissingIDAttr
	}
	return ErrCodeInvalidDocument
}

// lineOf maps a "types[i]..." path back to a source line.
func lineOf(doc *Document, field string) int {
	var ti, ai int
	if n, _ := fmt.Sscanf(field, "types[%d].attributes[%d]", &ti, &ai); n == 2 {
		if ti < len(doc.Types) && ai < len(doc.Types[ti].Attributes) {
			return doc.Types[ti].Attributes[ai].Line
		}
	}
	if n, _ := fmt.Sscanf(field, "types[%d]", &ti); n == 1 && ti < len(doc.Types) {
		return doc.Types[ti].Line
	}
	return 0
}

func validateType(doc *Document, i int, t TypeSpec, types map[string]int, reg *attr.Registry) []ValidationError {
	var errs []ValidationError
	prefix := fmt.Sprintf("types[%d]", i)

	if t.Extends != "" && identifierPattern.MatchString(t.Extends) {
		if _, ok := types[t.Extends]; !ok {
			errs = append(errs, ValidationError{
				Field:   prefix + ".extends",
				Message: fmt.Sprintf("unknown parent type %q", t.Extends),
				Code:    ErrCodeUnknownParent,
				Line:    t.Line,
			})
		}
	}

	seen := make(map[string]bool, len(t.Attributes))
	for j, a := range t.Attributes {
		field := fmt.Sprintf("%s.attributes[%d]", prefix, j)
		if a.Name == "" {
			continue
		}
		if seen[a.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("attribute %q declared twice", a.Name),
				Code:    ErrCodeDuplicateAttr,
				Line:    a.Line,
			})
			continue
		}
		seen[a.Name] = true
		errs = append(errs, validateAttribute(field, a, types, reg)...)
	}

	if t.IDAttribute != "" && !declares(doc, t, t.IDAttribute, types) {
		errs = append(errs, ValidationError{
			Field:   prefix + ".id_attribute",
			Message: fmt.Sprintf("id attribute %q is not declared by %s or its parents", t.IDAttribute, t.Name),
			Code:    ErrCodeMissingIDAttr,
			Line:    t.Line,
		})
	}
	return errs
}

func validateAttribute(field string, a AttributeSpec, types map[string]int, reg *attr.Registry) []ValidationError {
	var errs []ValidationError
	if _, err := reg.Create(a.Config()); err != nil {
		code := ErrCodeInvalidExpression
		if attr.IsUnknownType(err) {
			code = ErrCodeUnknownAttrType
		}
		errs = append(errs, ValidationError{Field: field, Message: err.Error(), Code: code, Line: a.Line})
	}

	tag := strings.ToLower(strings.TrimSpace(a.Type))
	nested := tag == model.TagEntity || tag == model.TagCollection
	switch {
	case nested && a.Of == "":
		errs = append(errs, ValidationError{
			Field:   field + ".of",
			Message: fmt.Sprintf("%s attributes require an \"of\" type", tag),
			Code:    ErrCodeInvalidNested,
			Line:    a.Line,
		})
	case nested && identifierPattern.MatchString(a.Of):
		if _, ok := types[a.Of]; !ok {
			errs = append(errs, ValidationError{
				Field:   field + ".of",
				Message: fmt.Sprintf("unknown type %q", a.Of),
				Code:    ErrCodeInvalidNested,
				Line:    a.Line,
			})
		}
	case !nested && a.Embedded:
		errs = append(errs, ValidationError{
			Field:   field + ".embedded",
			Message: "only entity and collection attributes can be embedded",
			Code:    ErrCodeInvalidNested,
			Line:    a.Line,
		})
	}
	return errs
}

// declares reports whether t or one of its ancestors declares name.
// Cycles are reported separately; the walk stops at the first repeat.
func declares(doc *Document, t TypeSpec, name string, types map[string]int) bool {
	visited := map[string]bool{}
	for {
		for _, a := range t.Attributes {
			if a.Name == name {
				return true
			}
		}
		visited[t.Name] = true
		i, ok := types[t.Extends]
		if t.Extends == "" || !ok || visited[t.Extends] {
			return false
		}
		t = doc.Types[i]
	}
}
