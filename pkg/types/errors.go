// Package types defines the diagnostic errors shared by the parser,
// evaluator, roller and context builder.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// Error tag constants.
const (
	TagParseError         = "ParseError"
	TagEvalError          = "EvalError"
	TagUndefinedVariable  = "UndefinedVariable"
	TagZeroDivisionError  = "ZeroDivisionError"
	TagResourceLimitError = "ResourceLimitError"
	TagTypeError          = "TypeError"
	TagValueError         = "ValueError"
	TagCircularDependency = "CircularDependency"
	TagNotFound           = "NotFound"
)

// DiagnosticError is a user-facing error with classification tags. A
// DiagnosticError built by Join keeps the individual diagnostics in Causes.
type DiagnosticError struct {
	Message string
	Tags    []string
	Causes  []*DiagnosticError
}

// Error implements the error interface.
func (e *DiagnosticError) Error() string {
	return fmt.Sprintf("%s (tags=[%s])", e.Message, strings.Join(e.Tags, ", "))
}

// HasTag returns true if the error has the specified tag.
func (e *DiagnosticError) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Messages returns the plain messages of every cause, or of e itself when
// it has none.
func (e *DiagnosticError) Messages() []string {
	if len(e.Causes) == 0 {
		return []string{e.Message}
	}
	msgs := make([]string, len(e.Causes))
	for i, c := range e.Causes {
		msgs[i] = c.Message
	}
	return msgs
}

// Join combines diagnostics into one error. Tags are the union of the
// causes' tags in first-seen order. Join returns nil for no diagnostics.
func Join(errs ...*DiagnosticError) *DiagnosticError {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	joined := &DiagnosticError{Causes: errs}
	msgs := make([]string, len(errs))
	seen := make(map[string]bool)
	for i, e := range errs {
		msgs[i] = e.Message
		for _, t := range e.Tags {
			if !seen[t] {
				seen[t] = true
				joined.Tags = append(joined.Tags, t)
			}
		}
	}
	joined.Message = strings.Join(msgs, "; ")
	return joined
}

// AsDiagnostic converts any error into a DiagnosticError, tagging
// unclassified errors with fallbackTag.
func AsDiagnostic(err error, fallbackTag string) *DiagnosticError {
	var d *DiagnosticError
	if errors.As(err, &d) {
		return d
	}
	return &DiagnosticError{Message: err.Error(), Tags: []string{fallbackTag}}
}

// Common error constructors.

// NewParseError creates a ParseError.
func NewParseError(msg string) *DiagnosticError {
	return &DiagnosticError{Message: msg, Tags: []string{TagParseError}}
}

// NewEvalError creates an EvalError.
func NewEvalError(msg string) *DiagnosticError {
	return &DiagnosticError{Message: msg, Tags: []string{TagEvalError}}
}

// NewUndefinedVariableError reports a reference to a name missing from the scope.
func NewUndefinedVariableError(name string) *DiagnosticError {
	return &DiagnosticError{
		Message: fmt.Sprintf("undefined variable '%s'", name),
		Tags:    []string{TagUndefinedVariable, TagEvalError},
	}
}

// NewZeroDivisionError creates a ZeroDivisionError.
func NewZeroDivisionError() *DiagnosticError {
	return &DiagnosticError{Message: "division by zero", Tags: []string{TagZeroDivisionError, TagEvalError}}
}

// NewResourceLimitError creates a ResourceLimitError.
func NewResourceLimitError(msg string) *DiagnosticError {
	return &DiagnosticError{Message: msg, Tags: []string{TagResourceLimitError, TagEvalError}}
}

// NewTypeError creates a TypeError, used for bad function arguments.
func NewTypeError(msg string) *DiagnosticError {
	return &DiagnosticError{Message: msg, Tags: []string{TagTypeError}}
}

// NewValueError creates a ValueError.
func NewValueError(msg string) *DiagnosticError {
	return &DiagnosticError{Message: msg, Tags: []string{TagValueError}}
}

// NewCircularDependencyError reports properties left unresolved by the
// context builder.
func NewCircularDependencyError(names []string) *DiagnosticError {
	return &DiagnosticError{
		Message: fmt.Sprintf("could not resolve properties (circular or missing dependencies): %s", strings.Join(names, ", ")),
		Tags:    []string{TagCircularDependency},
	}
}

// NewNotFoundError creates a NotFound error.
func NewNotFoundError(msg string) *DiagnosticError {
	return &DiagnosticError{Message: msg, Tags: []string{TagNotFound}}
}
