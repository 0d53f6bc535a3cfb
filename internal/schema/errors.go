package schema

import "fmt"

// DecodeError reports a payload that does not have the expected shape.
type DecodeError struct {
	What   string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("schema: decode %s: %s", e.What, e.Reason)
}
