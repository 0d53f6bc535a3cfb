package dataclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthorized = errors.New("dataclient: unauthorized")
	ErrNotFound     = errors.New("dataclient: not found")
)

// Error is a failed backend call. Message is what the user is shown.
type Error struct {
	Op      string
	Status  int // 0 when the request never got a response
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUnauthorized) and errors.Is(err, ErrNotFound)
// work on status codes.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

func statusError(op string, status int, body errorBody) *Error {
	msg := body.Message
	if msg == "" {
		text := http.StatusText(status)
		if text == "" {
			text = fmt.Sprintf("status %d", status)
		}
		msg = "request failed: " + text
	}
	return &Error{Op: op, Status: status, Code: body.Code, Message: msg}
}

func transportError(op string, err error) *Error {
	return &Error{Op: op, Message: "request failed: " + err.Error(), Err: err}
}

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}
