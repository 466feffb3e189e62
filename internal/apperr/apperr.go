// Package apperr is the failure channel between command handlers and the
// transport layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/freekieb7/playlog/internal/domain"
)

type Kind int

const (
	KindUnauthenticated Kind = iota + 1
	KindForbidden
	KindNotFound
	KindValidation
	KindConflict
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// HTTPStatus maps the kind onto a response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is an expected failure of a command. Details is only populated for
// validation failures.
type Error struct {
	Kind    Kind
	Message string
	Details []domain.DomainError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Unauthenticated() *Error {
	return &Error{Kind: KindUnauthenticated, Message: "authentication required"}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found"}
}

func Validation(details []domain.DomainError) *Error {
	message := "validation failed"
	if len(details) > 0 {
		message = details[0].Message
	}
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

func Conflict(message string, err error) *Error {
	return &Error{Kind: KindConflict, Message: message, Err: err}
}

func RateLimited(message string, err error) *Error {
	return &Error{Kind: KindRateLimited, Message: message, Err: err}
}

// FromDomain translates a domain rule violation into a typed failure. The
// first violation decides the kind: Permissions maps to Forbidden, anything
// else to Validation. Errors that carry no violations are returned unchanged.
func FromDomain(err error) error {
	list, ok := domain.AsErrors(err)
	if !ok || len(list) == 0 {
		return err
	}
	if list[0].Name == domain.FieldPermissions {
		return Forbidden(list[0].Message)
	}
	return Validation(list)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
