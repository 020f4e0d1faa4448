package apiclient

import (
	"fmt"
	"net/http"

	apperrors "github.com/jrsteele09/go-alert-web/internal/errors"
)

type callKind int

const (
	publicCall callKind = iota // no credential presented
	loginCall                  // credential exchange
	authedCall                 // bearer authenticated
)

// classify maps an API failure onto the error taxonomy. The error code in the
// body wins over the status code when both are present.
func classify(status int, body ErrorBody, kind callKind) error {
	detail := body.Message
	if detail == "" {
		detail = http.StatusText(status)
	}

	switch body.Code {
	case CodeInvalidCredentials:
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidCredentials, detail)
	case CodeAccountRestricted:
		return fmt.Errorf("%w: %s", apperrors.ErrAccountRestricted, detail)
	case CodeTokenExpired:
		return fmt.Errorf("%w: %s", apperrors.ErrTokenExpired, detail)
	case CodeInvalidToken:
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidToken, detail)
	case CodeValidation, CodeConflict:
		return validationError(body)
	}

	switch {
	case status == http.StatusUnauthorized && kind == loginCall:
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidCredentials, detail)
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", apperrors.ErrTokenExpired, detail)
	case status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", apperrors.ErrAccountRestricted, detail)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity, status == http.StatusConflict:
		return validationError(body)
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return fmt.Errorf("%w: status %d: %s", apperrors.ErrNetwork, status, detail)
	default:
		return fmt.Errorf("%w: unexpected status %d: %s", apperrors.ErrInternal, status, detail)
	}
}

func validationError(body ErrorBody) error {
	fields := body.Fields
	if len(fields) == 0 && body.Message != "" {
		fields = map[string]string{"": body.Message}
	}
	return &apperrors.ValidationError{Fields: fields}
}
