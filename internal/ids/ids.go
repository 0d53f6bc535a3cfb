// Package ids mints identifiers for requests and browser sessions.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// RequestID returns a lexicographically sortable identifier for one console request.
func RequestID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// SessionID returns an unguessable browser session identifier.
func SessionID() string {
	return uuid.NewString()
}

// ValidSessionID reports whether raw could have come from SessionID.
func ValidSessionID(raw string) bool {
	_, err := uuid.Parse(raw)
	return err == nil && len(raw) == 36
}
