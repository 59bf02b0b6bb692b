package remote

import (
	"fmt"
	"strings"
)

// NotFoundError reports that the requested resource does not exist
// upstream. For toolchain archives it means the version was never
// published for this platform.
type NotFoundError struct {
	URL string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.URL)
}

// TransportError covers network failures and unexpected HTTP statuses.
// StatusCode is zero when no response was received.
type TransportError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString("request ")
	b.WriteString(e.URL)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		fmt.Fprintf(&b, ": %s", body)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
