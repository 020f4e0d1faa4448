package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Common error types for the alert web client
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountRestricted  = errors.New("account restricted")
	ErrLoginInProgress    = errors.New("login already in progress")
	ErrNotAuthenticated   = errors.New("not authenticated")

	// Token errors
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Request errors
	ErrValidation      = errors.New("validation failed")
	ErrNetwork         = errors.New("api unreachable")
	ErrInvalidResponse = errors.New("invalid api response")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrInternal    = errors.New("internal error")
	ErrSuperseded  = errors.New("superseded by a newer session change")
)

// ValidationError carries field level messages returned by the API.
type ValidationError struct {
	Fields map[string]string // field name -> message
}

func (v *ValidationError) Error() string {
	if len(v.Fields) == 0 {
		return ErrValidation.Error()
	}
	names := make([]string, 0, len(v.Fields))
	for name := range v.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+v.Fields[name])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (v *ValidationError) Unwrap() error {
	return ErrValidation
}

// Field returns the message for a single field, or "" when the field is valid.
func (v *ValidationError) Field(name string) string {
	if v == nil {
		return ""
	}
	return v.Fields[name]
}

// User facing messages, one per error class
const (
	MsgInvalidCredentials = "Invalid username or password."
	MsgAccountRestricted  = "Your account is disabled or awaiting approval. Please contact support."
	MsgValidation         = "Please correct the highlighted fields."
	MsgNetwork            = "We could not reach the alert service. Please check your connection and try again."
	MsgLoginInProgress    = "Sign in is already in progress."
	MsgSessionEnded       = "Please sign in again."
	MsgSuperseded         = "You were signed out while signing in. Please sign in again."
	MsgUnexpected         = "Something went wrong. Please try again."
)

// UserMessage maps an error to a stable human readable message.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return MsgInvalidCredentials
	case errors.Is(err, ErrAccountRestricted):
		return MsgAccountRestricted
	case errors.Is(err, ErrValidation):
		return MsgValidation
	case errors.Is(err, ErrNetwork):
		return MsgNetwork
	case errors.Is(err, ErrLoginInProgress):
		return MsgLoginInProgress
	case errors.Is(err, ErrSuperseded):
		return MsgSuperseded
	case errors.Is(err, ErrTokenExpired), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrNotAuthenticated):
		return MsgSessionEnded
	default:
		return MsgUnexpected
	}
}

// Retryable reports whether the caller may simply try the same operation again
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
