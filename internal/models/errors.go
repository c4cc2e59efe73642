package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the staking flows.
type ErrorKind string

const (
	KindInvalidRequest     ErrorKind = "invalid_request"
	KindUnauthorized       ErrorKind = "unauthorized"
	KindNotFound           ErrorKind = "not_found"
	KindBuildFailed        ErrorKind = "build_failed"
	KindSimulationFailed   ErrorKind = "simulation_failed"
	KindSubmissionFailed   ErrorKind = "submission_failed"
	KindConfirmationFailed ErrorKind = "confirmation_failed"
	KindPersistenceFailed  ErrorKind = "persistence_failed"
	KindRetriesExhausted   ErrorKind = "retries_exhausted"
	KindInternal           ErrorKind = "internal"
)

// Sentinels for errors.Is matching on kind.
var (
	ErrInvalidRequest     = &Error{Kind: KindInvalidRequest}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrBuildFailed        = &Error{Kind: KindBuildFailed}
	ErrSimulationFailed   = &Error{Kind: KindSimulationFailed}
	ErrSubmissionFailed   = &Error{Kind: KindSubmissionFailed}
	ErrConfirmationFailed = &Error{Kind: KindConfirmationFailed}
	ErrPersistenceFailed  = &Error{Kind: KindPersistenceFailed}
	ErrRetriesExhausted   = &Error{Kind: KindRetriesExhausted}
)

var userMessages = map[ErrorKind]string{
	KindInvalidRequest:     "Invalid request",
	KindUnauthorized:       "Please sign in with your wallet",
	KindNotFound:           "Not found",
	KindBuildFailed:        "Error while building transaction",
	KindSimulationFailed:   "Transaction simulation failed",
	KindSubmissionFailed:   "Transaction could not be sent",
	KindConfirmationFailed: "Transaction confirmation failed",
	KindPersistenceFailed:  "Transaction failed. Please try again",
	KindRetriesExhausted:   "Something went wrong. Please retry",
	KindInternal:           "An unknown error occurred",
}

// Error is a classified failure. Message is safe to show to users; Err is the
// underlying cause and is only logged.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// UserMessage returns the human readable reason for the failure.
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if msg, ok := userMessages[e.Kind]; ok {
		return msg
	}
	return userMessages[KindInternal]
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// UserMessage returns a displayable message for any error.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.UserMessage()
	}
	return userMessages[KindInternal]
}
