package entity

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures seen by the engine
type ErrorKind string

const (
	KindNetwork            ErrorKind = "network"
	KindAuth               ErrorKind = "auth"
	KindValidation         ErrorKind = "validation"
	KindBusinessRule       ErrorKind = "business_rule"
	KindRatesUnavailable   ErrorKind = "rates_unavailable"
	KindArchiveUnavailable ErrorKind = "archive_unavailable"
)

// Error is the engine's error type. Two errors match with errors.Is when their
// kinds match and the target's Message is empty or equal.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Kind sentinels for errors.Is
var (
	ErrNetwork            = &Error{Kind: KindNetwork}
	ErrAuth               = &Error{Kind: KindAuth}
	ErrValidation         = &Error{Kind: KindValidation}
	ErrBusinessRule       = &Error{Kind: KindBusinessRule}
	ErrRatesUnavailable   = &Error{Kind: KindRatesUnavailable}
	ErrArchiveUnavailable = &Error{Kind: KindArchiveUnavailable}
)

// Validation failures
var (
	ErrInvalidAmount       = NewValidationError("invalid amount")
	ErrBelowMinimum        = NewValidationError("below minimum")
	ErrUnsupportedCurrency = NewValidationError("unsupported currency")
)

// NewValidationError creates a client-side validation failure
func NewValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// NewNetworkError wraps a transport failure
func NewNetworkError(err error) *Error {
	return &Error{Kind: KindNetwork, Err: err}
}

// NewAuthError creates an authentication failure
func NewAuthError(msg string, status int) *Error {
	return &Error{Kind: KindAuth, Message: msg, StatusCode: status}
}

// NewBusinessRuleError creates a server-side rejection of a well-formed request
func NewBusinessRuleError(msg string, status int) *Error {
	return &Error{Kind: KindBusinessRule, Message: msg, StatusCode: status}
}

// KindOf returns the kind of err, or "" when err is not an engine error
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// UserMessage renders err as a message fit to show the user
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) {
		return "Something went wrong. Please try again."
	}

	switch e.Kind {
	case KindValidation:
		switch e.Message {
		case ErrInvalidAmount.Message:
			return "Enter a valid amount."
		case ErrBelowMinimum.Message:
			return "Amount is below the minimum deposit."
		default:
			return fmt.Sprintf("Invalid request: %s.", e.Message)
		}
	case KindBusinessRule:
		if e.Message != "" {
			return e.Message
		}
		return "The operation was rejected."
	case KindAuth:
		return "Your session has expired. Please sign in again."
	case KindNetwork:
		return "No connection to the exchange. Please try again."
	case KindRatesUnavailable, KindArchiveUnavailable:
		return "Rates are temporarily unavailable; showing last known values."
	default:
		return "Something went wrong. Please try again."
	}
}
