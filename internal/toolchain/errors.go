package toolchain

import "fmt"

// ParseError reports a malformed version or selector string.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid toolchain %q: %s", e.Input, e.Reason)
}

func parseErr(input, reason string) *ParseError {
	return &ParseError{Input: input, Reason: reason}
}
