// Package apperr defines the typed errors that the HTTP boundary turns into
// {success: false, error: code} responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Machine-readable codes shared across packages.
const (
	CodeValidation         = "validation_error"
	CodeUnauthorized       = "unauthorized"
	CodeNotFound           = "not_found"
	CodeRateLimited        = "rate_limited"
	CodeSlugTaken          = "slug_taken"
	CodePayloadTooLarge    = "payload_too_large"
	CodeInvalidJSON        = "invalid_json"
	CodeServiceUnavailable = "service_unavailable"
	CodeInternal           = "internal_error"
	CodeMaxAttempts        = "max_attempts"
	CodeInvalidCode        = "invalid_code"
	CodeParentNotFound     = "parent_not_found"
	CodeParentIsChild      = "parent_is_child"
	CodeHasChildren        = "has_children"
	CodeNoPosts            = "no_posts"
	CodeInvalidParent      = "invalid_parent"
	CodeNoFields           = "no_fields"
	CodeMissingFields      = "missing_fields"
	CodeEmptyFields        = "empty_fields"
	CodeEmptyDescription   = "empty_description"
	CodeInvalidSlug        = "invalid_slug"
	CodeInvalidEmail       = "invalid_email"
	CodeInvalidXHandle     = "invalid_x_handle"
	CodeInvalidWebsiteURL  = "invalid_website_url"
)

// Error is an expected failure carrying an HTTP status and a stable code.
type Error struct {
	Status  int
	Code    string
	Message string

	// Reason names the limiter that rejected a rate_limited request.
	Reason string
	// Suggestions lists alternative slugs for slug_taken.
	Suggestions []string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HasCode reports whether err is an *Error with the given code.
func HasCode(err error, code string) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

// Validation reports a 400 with a specific code such as invalid_slug.
func Validation(code, msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: code, Message: msg}
}

// Unauthorized is the single generic auth failure. It never says whether
// the slug exists.
func Unauthorized() *Error {
	return &Error{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: "Unauthorized"}
}

// NotFound reports a 404 with the given code.
func NotFound(code, msg string) *Error {
	return &Error{Status: http.StatusNotFound, Code: code, Message: msg}
}

// RateLimited reports a 429 for the named limiter.
func RateLimited(reason, msg string) *Error {
	return &Error{Status: http.StatusTooManyRequests, Code: CodeRateLimited, Message: msg, Reason: reason}
}

// MaxAttempts reports that a recovery code was invalidated by repeated failures.
func MaxAttempts() *Error {
	return &Error{
		Status:  http.StatusTooManyRequests,
		Code:    CodeMaxAttempts,
		Message: "Too many failed attempts. Request a new code.",
	}
}

// SlugTaken reports a 409 with alternative slugs.
func SlugTaken(suggestions []string) *Error {
	return &Error{
		Status:      http.StatusConflict,
		Code:        CodeSlugTaken,
		Message:     "Slug is already taken",
		Suggestions: suggestions,
	}
}

// PayloadTooLarge reports a 413.
func PayloadTooLarge() *Error {
	return &Error{Status: http.StatusRequestEntityTooLarge, Code: CodePayloadTooLarge, Message: "Request body too large"}
}

// InvalidJSON reports a malformed request body.
func InvalidJSON() *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeInvalidJSON, Message: "Invalid JSON body"}
}

// Unavailable reports that a dependency is unreachable.
func Unavailable(msg string) *Error {
	return &Error{Status: http.StatusServiceUnavailable, Code: CodeServiceUnavailable, Message: msg}
}

// Internal is the flattened form of an unexpected failure.
func Internal() *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "Internal server error"}
}
