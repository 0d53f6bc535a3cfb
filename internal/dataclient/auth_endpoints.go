package dataclient

import (
	"context"
	"errors"
	"net/http"

	"admintable.org/internal/auth"
)

// Backend error codes that refine a 401 from the login endpoint.
const (
	CodeMissingOTP = "missing_otp"
)

// AuthEndpoints implements auth.Transport against the backend. It never
// calls the client's Authenticator, so the auth client can use it without
// recursion.
type AuthEndpoints struct {
	c *Client
}

var _ auth.Transport = AuthEndpoints{}

// Auth returns the authentication endpoints of the backend.
func (c *Client) Auth() AuthEndpoints { return AuthEndpoints{c: c} }

type loginResponse struct {
	auth.Session
	// Token is sent by backends that only issue a single bearer token.
	Token string `json:"token"`
}

func (r loginResponse) session() auth.Session {
	s := r.Session
	if s.AccessToken == "" {
		s.AccessToken = r.Token
	}
	return s
}

func (a AuthEndpoints) Login(ctx context.Context, creds auth.Credentials) (auth.Session, error) {
	var out loginResponse
	err := a.c.send(ctx, "login", http.MethodPost, a.c.endpoint("login", nil), "", creds, &out, false)
	if err != nil {
		return auth.Session{}, authError(err, auth.ErrInvalidCredentials)
	}
	s := out.session()
	if s.AccessToken == "" {
		return auth.Session{}, &auth.AuthError{Kind: auth.ErrInvalidToken, Message: "login response carried no token"}
	}
	return s, nil
}

func (a AuthEndpoints) Refresh(ctx context.Context, refreshToken string) (auth.Session, error) {
	if refreshToken == "" {
		return auth.Session{}, auth.ErrNoSession
	}
	var out loginResponse
	body := map[string]string{"refresh_token": refreshToken}
	err := a.c.send(ctx, "refresh", http.MethodPost, a.c.endpoint("refresh", nil), "", body, &out, false)
	if err != nil {
		return auth.Session{}, authError(err, auth.ErrUnauthorized)
	}
	s := out.session()
	if s.AccessToken == "" {
		return auth.Session{}, &auth.AuthError{Kind: auth.ErrInvalidToken, Message: "refresh response carried no token"}
	}
	return s, nil
}

func (a AuthEndpoints) Logout(ctx context.Context, refreshToken string) error {
	body := map[string]string{"refresh_token": refreshToken}
	return a.c.send(ctx, "logout", http.MethodPost, a.c.endpoint("logout", nil), "", body, nil, false)
}

func (a AuthEndpoints) Ping(ctx context.Context, authHeader string) error {
	err := a.c.send(ctx, "ping", http.MethodPost, a.c.endpoint("ping", nil), authHeader, struct{}{}, nil, false)
	if err != nil {
		return authError(err, auth.ErrUnauthorized)
	}
	return nil
}

// authError maps a 401 onto the auth sentinels; other failures pass through.
func authError(err error, kind error) error {
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		return err
	}
	if apiErr.Code == CodeMissingOTP {
		kind = auth.ErrMissingOTP
	}
	return &auth.AuthError{Kind: kind, Message: apiErr.Message}
}
