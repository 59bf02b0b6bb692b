package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"swiftly/internal/toolchain"
)

// Environment overrides for the home and bin directories.
const (
	HomeEnv = "SWIFTLY_HOME_DIR"
	BinEnv  = "SWIFTLY_BIN_DIR"
)

// StagingPrefix marks partially installed toolchain directories.
const StagingPrefix = ".staging-"

// Home captures canonical locations for a swiftly installation.
type Home struct {
	Root          string
	ConfigFile    string
	SettingsFile  string
	ToolchainsDir string
	BinDir        string
	LogsDir       string
	CacheDir      string
	LockFile      string
}

// Resolve determines the home directory from SWIFTLY_HOME_DIR, falling back
// to the platform data directory, and the bin directory from SWIFTLY_BIN_DIR,
// falling back to <home>/bin.
func Resolve() (Home, error) {
	root := strings.TrimSpace(os.Getenv(HomeEnv))
	if root == "" {
		dataDir, err := defaultDataDir()
		if err != nil {
			return Home{}, err
		}
		root = filepath.Join(dataDir, "swiftly")
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return Home{}, fmt.Errorf("resolve swiftly home: %w", err)
	}

	home := New(root)
	if bin := strings.TrimSpace(os.Getenv(BinEnv)); bin != "" {
		abs, err := filepath.Abs(bin)
		if err != nil {
			return Home{}, fmt.Errorf("resolve swiftly bin dir: %w", err)
		}
		home.BinDir = abs
	}
	return home, nil
}

// New lays out a home rooted at root with the default bin directory.
func New(root string) Home {
	return Home{
		Root:          root,
		ConfigFile:    filepath.Join(root, "config.json"),
		SettingsFile:  filepath.Join(root, "settings.yaml"),
		ToolchainsDir: filepath.Join(root, "toolchains"),
		BinDir:        filepath.Join(root, "bin"),
		LogsDir:       filepath.Join(root, "logs"),
		CacheDir:      filepath.Join(root, "cache"),
		LockFile:      filepath.Join(root, ".lock"),
	}
}

func defaultDataDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" && runtime.GOOS != "darwin" {
		return xdg, nil
	}
	user, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("detect user home: %w", err)
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(user, "Library", "Application Support"), nil
	}
	return filepath.Join(user, ".local", "share"), nil
}

// ToolchainDir returns the install directory for v.
func (h Home) ToolchainDir(v toolchain.Version) string {
	return filepath.Join(h.ToolchainsDir, v.Name())
}

// StagingDir returns the scratch directory an install of v extracts into
// before it is renamed to ToolchainDir.
func (h Home) StagingDir(v toolchain.Version) string {
	return filepath.Join(h.ToolchainsDir, StagingPrefix+v.Name())
}

// EnsureDirs creates the standard home hierarchy.
func (h Home) EnsureDirs() error {
	dirs := []string{h.Root, h.ToolchainsDir, h.BinDir, h.LogsDir, h.CacheDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ToolchainDirs lists the entries of the toolchains directory. Staging
// directories are returned separately. A missing directory yields no entries.
func (h Home) ToolchainDirs() (names []string, staging []string, err error) {
	entries, err := os.ReadDir(h.ToolchainsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("read toolchains dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, StagingPrefix) {
			staging = append(staging, name)
			continue
		}
		names = append(names, name)
	}
	return names, staging, nil
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirExists reports whether a path exists and is a directory.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
