package errors_test

import (
	"fmt"
	"testing"

	apperrors "github.com/jrsteele09/go-alert-web/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"invalid credentials", apperrors.ErrInvalidCredentials, apperrors.MsgInvalidCredentials},
		{"wrapped restricted", fmt.Errorf("login: %w", apperrors.ErrAccountRestricted), apperrors.MsgAccountRestricted},
		{"validation", &apperrors.ValidationError{Fields: map[string]string{"email": "required"}}, apperrors.MsgValidation},
		{"network", apperrors.Wrapf(apperrors.ErrNetwork, "profile"), apperrors.MsgNetwork},
		{"expired", apperrors.ErrTokenExpired, apperrors.MsgSessionEnded},
		{"superseded", apperrors.Wrapf(apperrors.ErrSuperseded, "login"), apperrors.MsgSuperseded},
		{"unknown", fmt.Errorf("boom"), apperrors.MsgUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, apperrors.UserMessage(tt.err))
		})
	}
}

func TestValidationError(t *testing.T) {
	err := apperrors.Wrapf(&apperrors.ValidationError{Fields: map[string]string{
		"username": "already taken",
		"email":    "invalid",
	}}, "register")

	require.True(t, apperrors.Is(err, apperrors.ErrValidation))

	var verr *apperrors.ValidationError
	require.True(t, apperrors.As(err, &verr))
	require.Equal(t, "already taken", verr.Field("username"))
	require.Equal(t, "", verr.Field("district"))
	require.Contains(t, err.Error(), "email: invalid; username: already taken")
}

func TestRetryable(t *testing.T) {
	require.True(t, apperrors.Retryable(apperrors.Wrapf(apperrors.ErrNetwork, "login")))
	require.False(t, apperrors.Retryable(apperrors.ErrInvalidCredentials))
	require.Nil(t, apperrors.Wrapf(nil, "noop"))
}
