package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Error classes surfaced to callers. Match them with errors.Is.
var (
	// ErrUnauthenticated means there is no credential, or the server rejected it.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidCredentials means a login attempt was refused.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrValidation means the server rejected the request for a business
	// reason. The server's message is meant to be shown verbatim.
	ErrValidation = errors.New("request rejected")
	// ErrTransient covers network failures and 5xx responses. Retrying is safe.
	ErrTransient = errors.New("service unavailable")
	// ErrNotFound is a 404. Reads usually turn it into an empty result.
	ErrNotFound = errors.New("not found")
)

const genericMessage = "Something went wrong. Please try again."

// Error is a classified API failure.
type Error struct {
	Kind    error
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (%d)", msg, e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the error's class. A 404 also matches ErrNotFound when it was
// reclassified, so a rejected cancel is both a validation and a not-found error.
func (e *Error) Is(target error) bool {
	if target == e.Kind {
		return true
	}
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Reclassify returns a copy of err with its class replaced by kind. Errors
// that are not *Error are returned unchanged.
func Reclassify(err error, kind error) error {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return err
	}
	cp := *apiErr
	cp.Kind = kind
	return &cp
}

// UserMessage returns the text a user should see for err: the server's own
// words for validation and credential errors, a generic retry message for
// transient failures.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		switch {
		case errors.Is(apiErr, ErrTransient):
			return genericMessage
		case errors.Is(apiErr, ErrUnauthenticated):
			return "Your session has expired. Please log in again."
		case apiErr.Message != "":
			return apiErr.Message
		case errors.Is(apiErr, ErrInvalidCredentials):
			return "Invalid email or password."
		case errors.Is(apiErr, ErrNotFound):
			return "Not found."
		}
		return genericMessage
	}
	if errors.Is(err, ErrUnauthenticated) {
		return "Please log in first."
	}
	return err.Error()
}

func classify(status int, message string) *Error {
	var kind error
	switch {
	case status == http.StatusUnauthorized:
		kind = ErrUnauthenticated
	case status == http.StatusNotFound:
		kind = ErrNotFound
	case status >= 400 && status < 500:
		kind = ErrValidation
	default:
		kind = ErrTransient
	}
	return &Error{Kind: kind, Status: status, Message: message}
}
