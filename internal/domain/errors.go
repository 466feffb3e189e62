// Package domain holds the validation primitives shared by every aggregate.
package domain

import (
	"errors"
	"strings"
)

// Names of the concerns a domain error can be attributed to.
const (
	FieldName        = "Name"
	FieldDescription = "Description"
	FieldMembers     = "Members"
	FieldPermissions = "Permissions"
	FieldInviteCode  = "InviteCode"
)

// DomainError is a single named rule violation.
type DomainError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (e DomainError) String() string {
	return e.Name + ": " + e.Message
}

// Errors accumulates rule violations so that one operation can report all of
// them at once. The zero value is ready to use.
type Errors struct {
	list []DomainError
}

// Add records a violation. It never fails.
func (e *Errors) Add(name, message string) {
	e.list = append(e.list, DomainError{Name: name, Message: message})
}

// HasErrors reports whether any violation has been recorded.
func (e *Errors) HasErrors() bool {
	return len(e.list) > 0
}

// List returns the violations recorded since the last Clear, in order.
func (e *Errors) List() []DomainError {
	out := make([]DomainError, len(e.list))
	copy(out, e.list)
	return out
}

// Clear drops every recorded violation.
func (e *Errors) Clear() {
	e.list = nil
}

// Err converts the accumulated violations into a single error, or nil when
// nothing was recorded.
func (e *Errors) Err() error {
	if !e.HasErrors() {
		return nil
	}
	return &ValidationError{Errors: e.List()}
}

// ValidationError carries the full list of violations of a failed operation.
type ValidationError struct {
	Errors []DomainError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, de := range e.Errors {
		parts[i] = de.String()
	}
	return "domain validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether a violation with the given name is present.
func (e *ValidationError) Has(name string) bool {
	for _, de := range e.Errors {
		if de.Name == name {
			return true
		}
	}
	return false
}

// Fail returns a ValidationError holding exactly one violation.
func Fail(name, message string) error {
	return &ValidationError{Errors: []DomainError{{Name: name, Message: message}}}
}

// AsErrors extracts the violation list from err. It returns false when err
// does not carry domain violations.
func AsErrors(err error) ([]DomainError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Errors, true
	}
	return nil, false
}

// First returns the first violation carried by err.
func First(err error) (DomainError, bool) {
	list, ok := AsErrors(err)
	if !ok || len(list) == 0 {
		return DomainError{}, false
	}
	return list[0], true
}
