package engine

import (
	"fmt"
	"strings"

	"swiftly/internal/toolchain"
)

// NotFoundError reports that a toolchain does not exist upstream.
type NotFoundError struct {
	Version toolchain.Version
	URL     string
	Err     error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("toolchain %s does not exist", e.Version.Name())
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// NoRemoteMatchError reports that no published toolchain matches a
// partial selector.
type NoRemoteMatchError struct {
	Selector toolchain.Selector
}

func (e *NoRemoteMatchError) Error() string {
	return fmt.Sprintf("no published toolchain matches %s", e.Selector)
}

// InconsistencyError reports disagreement between the config record and
// the toolchain directories on disk. Missing versions are recorded as
// installed but have no directory; orphaned names are directories the
// config does not know about.
type InconsistencyError struct {
	Missing  []toolchain.Version
	Orphaned []string
}

func (e *InconsistencyError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		names := make([]string, len(e.Missing))
		for i, v := range e.Missing {
			names[i] = v.Name()
		}
		parts = append(parts, "installed but missing on disk: "+strings.Join(names, ", "))
	}
	if len(e.Orphaned) > 0 {
		parts = append(parts, "on disk but not installed: "+strings.Join(e.Orphaned, ", "))
	}
	return fmt.Sprintf("toolchain state is inconsistent (%s); run `swiftly doctor --repair`", strings.Join(parts, "; "))
}
