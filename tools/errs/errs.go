// Package errs defines the coded error taxonomy shared by the client:
// transport, protocol, auth, reconnect and send-state failures all carry a
// stable code so callers can branch with errors.Is regardless of how many
// times the error was wrapped on the way up.
package errs

import (
	"errors"
	"fmt"
)

const (
	CodeTransport = 1001
	CodeProtocol  = 1002
	CodeAuth      = 1003

	CodeNotConnected       = 1101
	CodeReconnectExhausted = 1102
)

var (
	// ErrTransport covers socket dial and write failures.
	ErrTransport = NewCodeError(CodeTransport, "transport failure")
	// ErrProtocol marks a malformed or unrecognized envelope. Such frames
	// are dropped after logging and never reach the dispatcher.
	ErrProtocol = NewCodeError(CodeProtocol, "malformed envelope")
	// ErrAuth is a 401 from the REST layer or an invalid-token response.
	// It always propagates to session teardown.
	ErrAuth = NewCodeError(CodeAuth, "unauthorized")
	// ErrNotConnected is returned by Send while the session is not open.
	ErrNotConnected = NewCodeError(CodeNotConnected, "session not connected")
	// ErrReconnectExhausted fires once the backoff budget is spent.
	ErrReconnectExhausted = NewCodeError(CodeReconnectExhausted, "reconnect attempts exhausted")
)

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("[%d] %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("[%d] %s: %s", e.Code, e.Msg, e.Detail)
}

// WithDetail returns a copy carrying extra context. The original sentinel
// stays untouched so errors.Is keeps matching by code.
func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

func (e *CodeError) WithDetailf(format string, args ...interface{}) *CodeError {
	return e.WithDetail(fmt.Sprintf(format, args...))
}

// Is matches any CodeError with the same code.
func (e *CodeError) Is(target error) bool {
	var ce *CodeError
	if !errors.As(target, &ce) {
		return false
	}
	return e.Code == ce.Code
}

// Code extracts the numeric code from err, or 0 when err carries none.
func Code(err error) int {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return 0
}
