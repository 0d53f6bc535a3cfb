package auth

import "context"

type clientContextKey struct{}
type principalContextKey struct{}

// ContextWithClient attaches the browser session's auth client to the context.
func ContextWithClient(ctx context.Context, c *Client) context.Context {
	if c == nil {
		return ctx
	}
	return context.WithValue(ctx, clientContextKey{}, c)
}

// ClientFromContext extracts the auth client from the context.
func ClientFromContext(ctx context.Context) (*Client, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(clientContextKey{}).(*Client)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}
