package auth

import (
	"context"
	"time"
)

// Session is the credential set returned by a successful login or refresh.
type Session struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	Lifetime     int      `json:"token_lifetime"` // seconds until the access token expires
	Capabilities []string `json:"capabilities"`
}

// LifetimeDuration converts Lifetime to a time.Duration.
func (s Session) LifetimeDuration() time.Duration {
	return time.Duration(s.Lifetime) * time.Second
}

// Credentials are the inputs of a login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	OTP      string `json:"otp,omitempty"`
}

// Transport talks to the backend authentication endpoints.
type Transport interface {
	Login(ctx context.Context, creds Credentials) (Session, error)
	Refresh(ctx context.Context, refreshToken string) (Session, error)
	Logout(ctx context.Context, refreshToken string) error
	// Ping performs an authenticated no-op using authHeader.
	Ping(ctx context.Context, authHeader string) error
}

// LoginStatus distinguishes a missing session from an unreachable backend.
type LoginStatus int

const (
	LoggedOut LoginStatus = iota
	LoggedIn
	Unreachable
)

func (s LoginStatus) String() string {
	switch s {
	case LoggedIn:
		return "logged_in"
	case Unreachable:
		return "unreachable"
	default:
		return "logged_out"
	}
}
