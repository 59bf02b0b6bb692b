package symlink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
)

// Launcher is the swiftly binary itself. It may live in the bin directory
// and is never created or removed by the manager.
const Launcher = "swiftly"

var defaultNames = []string{"swift", "swiftc", "sourcekit-lsp", "docc"}

// Logger is the minimal logging interface used by the manager.
type Logger interface {
	Printf(format string, v ...any)
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

// Manager keeps the bin directory pointing at one toolchain.
type Manager struct {
	BinDir    string
	Names     []string
	Protected []string
	Logger    Logger
}

// Change summarizes what Apply did to the bin directory.
type Change struct {
	Created   []string `json:"created,omitempty"`
	Unchanged []string `json:"unchanged,omitempty"`
	Removed   []string `json:"removed,omitempty"`
}

// Touched reports whether any entry was written or removed.
func (c Change) Touched() bool {
	return len(c.Created) > 0 || len(c.Removed) > 0
}

// NewManager returns a manager for binDir with the default allow-list.
func NewManager(binDir string, logger Logger) *Manager {
	names := make([]string, len(defaultNames))
	for i, n := range defaultNames {
		names[i] = executableName(n)
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Manager{
		BinDir:    binDir,
		Names:     names,
		Protected: []string{executableName(Launcher)},
		Logger:    logger,
	}
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}

func (m *Manager) logf(format string, v ...any) {
	if m.Logger != nil {
		m.Logger.Printf(format, v...)
	}
}

func (m *Manager) protected(name string) bool {
	for _, p := range m.Protected {
		if p == name {
			return true
		}
	}
	return false
}

// Expected returns the allow-listed names present in toolchainBin.
func (m *Manager) Expected(toolchainBin string) ([]string, error) {
	var out []string
	for _, name := range m.Names {
		if m.protected(name) {
			continue
		}
		_, err := os.Stat(filepath.Join(toolchainBin, name))
		if err == nil {
			out = append(out, name)
			continue
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
	}
	return out, nil
}

// Entries lists the non-protected entries currently in the bin directory.
// Directories are ignored. A missing bin directory has no entries.
func (m *Manager) Entries() ([]string, error) {
	entries, err := os.ReadDir(m.BinDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read bin dir: %w", err)
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() || m.protected(entry.Name()) {
			continue
		}
		out = append(out, entry.Name())
	}
	sort.Strings(out)
	return out, nil
}

// Apply points the bin directory at toolchainBin. Links already pointing at
// the right target are left alone; every other non-protected entry is
// removed once the new links are in place.
func (m *Manager) Apply(toolchainBin string) (Change, error) {
	var change Change
	expected, err := m.Expected(toolchainBin)
	if err != nil {
		return change, err
	}
	if len(expected) == 0 {
		return change, fmt.Errorf("no known executables in %s", toolchainBin)
	}
	if err := os.MkdirAll(m.BinDir, 0o755); err != nil {
		return change, fmt.Errorf("create bin dir: %w", err)
	}

	keep := make(map[string]bool, len(expected))
	for _, name := range expected {
		keep[name] = true
		target := filepath.Join(toolchainBin, name)
		dest := filepath.Join(m.BinDir, name)
		if current, err := os.Readlink(dest); err == nil && current == target {
			change.Unchanged = append(change.Unchanged, name)
			continue
		}
		if err := replaceLink(target, dest); err != nil {
			return change, err
		}
		m.logf("linked %s -> %s", dest, target)
		change.Created = append(change.Created, name)
	}

	removed, err := m.removeExcept(keep)
	change.Removed = removed
	return change, err
}

// Clear removes every non-protected entry from the bin directory.
func (m *Manager) Clear() ([]string, error) {
	return m.removeExcept(nil)
}

// Verify compares the bin directory with the links toolchainBin requires
// and returns a description of every difference. An empty toolchainBin
// means no toolchain is active and the directory must hold no links.
func (m *Manager) Verify(toolchainBin string) ([]string, error) {
	var expected []string
	if toolchainBin != "" {
		var err error
		expected, err = m.Expected(toolchainBin)
		if err != nil {
			return nil, err
		}
	}
	present, err := m.Entries()
	if err != nil {
		return nil, err
	}

	var problems []string
	want := make(map[string]bool, len(expected))
	for _, name := range expected {
		want[name] = true
		target := filepath.Join(toolchainBin, name)
		current, err := os.Readlink(filepath.Join(m.BinDir, name))
		switch {
		case errors.Is(err, os.ErrNotExist):
			problems = append(problems, fmt.Sprintf("%s is missing", name))
		case err != nil:
			problems = append(problems, fmt.Sprintf("%s is not a symlink", name))
		case current != target:
			problems = append(problems, fmt.Sprintf("%s points to %s, want %s", name, current, target))
		}
	}
	for _, name := range present {
		if !want[name] {
			problems = append(problems, fmt.Sprintf("%s is stale", name))
		}
	}
	return problems, nil
}

func (m *Manager) removeExcept(keep map[string]bool) ([]string, error) {
	present, err := m.Entries()
	if err != nil {
		return nil, err
	}
	var removed []string
	var errs []error
	for _, name := range present {
		if keep[name] {
			continue
		}
		path := filepath.Join(m.BinDir, name)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
			continue
		}
		m.logf("removed %s", path)
		removed = append(removed, name)
	}
	return removed, errors.Join(errs...)
}

// replaceLink creates the link under a temporary name and renames it over
// dest so dest never disappears.
func replaceLink(target, dest string) error {
	tmp := filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp-"+strconv.Itoa(os.Getpid()))
	_ = os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("create link for %s: %w", filepath.Base(dest), err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("install link %s: %w", dest, err)
	}
	return nil
}
