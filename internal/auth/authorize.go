package auth

import "slices"

// Principal is the user behind a session, as described by its access token.
type Principal struct {
	Subject      string
	Display      string
	Capabilities []string
}

// NewPrincipal builds a principal from decoded claims. Capabilities from the
// login response win over the token's when both are present.
func NewPrincipal(claims *Claims, capabilities []string) Principal {
	p := Principal{Subject: claims.Subject, Display: claims.Display}
	if len(capabilities) > 0 {
		p.Capabilities = dedupe(capabilities)
	} else {
		p.Capabilities = dedupe(claims.Capabilities)
	}
	if p.Display == "" {
		p.Display = p.Subject
	}
	return p
}

// HasCapability reports whether the principal holds capability c.
func (p Principal) HasCapability(c string) bool {
	return slices.Contains(p.Capabilities, c)
}
