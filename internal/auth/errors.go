package auth

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrMissingOTP         = errors.New("auth: one-time password required")
	ErrUnauthorized       = errors.New("auth: unauthorized")
	ErrNoSession          = errors.New("auth: no session")
	ErrInvalidToken       = errors.New("auth: invalid token")
)

// AuthError is returned by a Transport when the backend rejects credentials
// or tokens. Kind is one of the sentinel errors above.
type AuthError struct {
	Kind    error
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Message)
}

func (e *AuthError) Unwrap() error { return e.Kind }
