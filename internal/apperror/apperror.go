// Package apperror defines the error type propagated from request handlers to
// the terminal error handling stage. Every error carries a Kind discriminant:
// application errors are expected, user-facing conditions; system errors are
// unexpected failures.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// Kind discriminates expected from unexpected failures.
type Kind uint8

const (
	KindSystem Kind = iota
	KindApplication
)

func (k Kind) String() string {
	switch k {
	case KindApplication:
		return "application"
	default:
		return "system"
	}
}

const maxStackDepth = 32

// Error is a request-level failure. Status is zero when the error does not
// dictate a response status.
type Error struct {
	Kind    Kind
	Status  int
	Message string

	cause error
	stack []uintptr
}

// New returns an application error with the given message and no status.
func New(message string) *Error {
	return build(KindApplication, 0, message, nil)
}

// Newf is New with formatting.
func Newf(format string, args ...any) *Error {
	return build(KindApplication, 0, fmt.Sprintf(format, args...), nil)
}

// NotFound returns an application error with status 404.
func NotFound(message string) *Error {
	if message == "" {
		message = "Not Found"
	}
	return build(KindApplication, http.StatusNotFound, message, nil)
}

// Unauthorized returns an application error with status 401.
func Unauthorized(message string) *Error {
	if message == "" {
		message = "Unauthorized"
	}
	return build(KindApplication, http.StatusUnauthorized, message, nil)
}

// System wraps err as an unexpected failure. A zero status means the caller
// has no opinion and the error handler falls back to 500.
func System(err error, status int) *Error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return build(KindSystem, status, message, err)
}

// Systemf creates a system error from a formatted message.
func Systemf(status int, format string, args ...any) *Error {
	return build(KindSystem, status, fmt.Sprintf(format, args...), nil)
}

// From classifies err. Errors that are not *Error become system errors.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return build(KindSystem, 0, err.Error(), err)
}

// IsApplication reports whether err is an application error.
func IsApplication(err error) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == KindApplication
}

func build(kind Kind, status int, message string, cause error) *Error {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(3, pcs)
	return &Error{
		Kind:    kind,
		Status:  status,
		Message: message,
		cause:   cause,
		stack:   pcs[:n],
	}
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.cause != nil {
		return e.cause.Error()
	}
	if e.Status != 0 {
		return http.StatusText(e.Status)
	}
	return e.Kind.String() + " error"
}

func (e *Error) Unwrap() error {
	return e.cause
}

// StatusOr returns the error status, or fallback when none is set.
func (e *Error) StatusOr(fallback int) int {
	if e.Status != 0 {
		return e.Status
	}
	return fallback
}

// Stack renders the call stack captured when the error was created.
func (e *Error) Stack() string {
	var b strings.Builder
	b.WriteString(e.Error())
	frames := runtime.CallersFrames(e.stack)
	for {
		frame, more := frames.Next()
		if frame.Function != "" {
			fmt.Fprintf(&b, "\n    at %s (%s:%d)", frame.Function, frame.File, frame.Line)
		}
		if !more {
			break
		}
	}
	return b.String()
}
