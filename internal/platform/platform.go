package platform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"swiftly/internal/config"
	"swiftly/internal/paths"
	"swiftly/internal/remote"
	"swiftly/internal/toolchain"
)

// Platform knows how toolchains are packaged and laid out on one OS.
type Platform interface {
	Definition() config.PlatformDefinition
	DownloadURL(v toolchain.Version) (string, error)
	// Install materializes the archive at archivePath as the toolchain
	// directory for v. On failure no directory named for v is left behind.
	Install(ctx context.Context, archivePath string, v toolchain.Version) error
	Uninstall(ctx context.Context, v toolchain.Version) error
	TempFilePath() string
	ToolchainBinDir(v toolchain.Version) string
	Hints() []string
}

// Logger is the minimal logging interface used by platforms.
type Logger interface {
	Printf(format string, v ...any)
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

// InstallError reports a failure to materialize or remove a toolchain
// directory.
type InstallError struct {
	Op      string
	Version toolchain.Version
	Path    string
	Err     error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("%s %s at %s: %v", e.Op, e.Version.Name(), e.Path, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// layout holds what every platform shares: where toolchains live, where
// downloads come from and where temp files go.
type layout struct {
	home    paths.Home
	def     config.PlatformDefinition
	baseURL string
	ext     string
	tempDir string
	logger  Logger
}

func newLayout(home paths.Home, def config.PlatformDefinition, baseURL, ext string, logger Logger) layout {
	if logger == nil {
		logger = noopLogger{}
	}
	return layout{home: home, def: def, baseURL: baseURL, ext: ext, tempDir: os.TempDir(), logger: logger}
}

func (l layout) Definition() config.PlatformDefinition {
	return l.def
}

func (l layout) DownloadURL(v toolchain.Version) (string, error) {
	return remote.ToolchainURL(l.baseURL, l.def, l.ext, v)
}

// TempFilePath returns a fresh, unused path for a downloaded archive.
func (l layout) TempFilePath() string {
	return filepath.Join(l.tempDir, "swiftly-"+uuid.NewString()+l.ext)
}

func (l layout) ToolchainBinDir(v toolchain.Version) string {
	return filepath.Join(l.home.ToolchainDir(v), "usr", "bin")
}

func (l layout) Uninstall(ctx context.Context, v toolchain.Version) error {
	dir := l.home.ToolchainDir(v)
	if err := os.RemoveAll(dir); err != nil {
		return &InstallError{Op: "uninstall", Version: v, Path: dir, Err: err}
	}
	l.logger.Printf("removed toolchain %s from %s", v.Name(), dir)
	return nil
}

// commit renames a fully prepared staging directory to the final
// toolchain directory for v.
func (l layout) commit(staging string, v toolchain.Version) error {
	dest := l.home.ToolchainDir(v)
	if _, err := os.Stat(filepath.Join(staging, "usr", "bin")); err != nil {
		return &InstallError{Op: "install", Version: v, Path: staging, Err: fmt.Errorf("archive has no usr/bin: %w", err)}
	}
	if _, err := os.Lstat(dest); err == nil {
		return &InstallError{Op: "install", Version: v, Path: dest, Err: os.ErrExist}
	}
	if err := os.Rename(staging, dest); err != nil {
		return &InstallError{Op: "install", Version: v, Path: dest, Err: err}
	}
	return nil
}
