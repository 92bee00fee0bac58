package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type Code int

const (
	CodeInternal Code = iota
	CodeNotFound
	CodeNotAccepting
	CodeAlreadyAnswered
	CodeInvalidTransition
	CodeTransportUnavailable
	CodeLoadFailure
)

var code2msg = map[Code]string{
	CodeInternal:             "internal error",
	CodeNotFound:             "session not found",
	CodeNotAccepting:         "session not accepting players",
	CodeAlreadyAnswered:      "answer already submitted",
	CodeInvalidTransition:    "invalid game transition",
	CodeTransportUnavailable: "transport unavailable",
	CodeLoadFailure:          "question bank load failed",
}

var code2http = map[Code]int{
	CodeInternal:             http.StatusInternalServerError,
	CodeNotFound:             http.StatusNotFound,
	CodeNotAccepting:         http.StatusConflict,
	CodeAlreadyAnswered:      http.StatusConflict,
	CodeInvalidTransition:    http.StatusConflict,
	CodeTransportUnavailable: http.StatusServiceUnavailable,
	CodeLoadFailure:          http.StatusInternalServerError,
}

// Error is a typed, displayable failure. Data-integrity violations are
// reported through this type rather than raised as panics.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: code2msg[code],
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

// Convert coerces any error into an *Error, defaulting to CodeInternal.
func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}
