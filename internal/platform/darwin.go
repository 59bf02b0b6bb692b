package platform

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"swiftly/internal/config"
	"swiftly/internal/paths"
	"swiftly/internal/toolchain"
)

// DarwinDefinition is the only macOS platform: download.swift.org ships
// universal packages under the xcode directory.
var DarwinDefinition = config.PlatformDefinition{Name: "xcode", NameFull: "osx", NamePretty: "macOS"}

// Darwin installs .pkg toolchains by expanding them with pkgutil.
type Darwin struct {
	layout
	Runner Runner
}

// NewDarwin returns the macOS platform.
func NewDarwin(home paths.Home, baseURL string, runner Runner, logger Logger) *Darwin {
	if runner == nil {
		runner = CmdRunner{}
	}
	return &Darwin{layout: newLayout(home, DarwinDefinition, baseURL, ".pkg", logger), Runner: runner}
}

// Install expands the package and moves its payload into place.
func (d *Darwin) Install(ctx context.Context, archivePath string, v toolchain.Version) error {
	staging := d.home.StagingDir(v)
	if err := os.RemoveAll(staging); err != nil {
		return &InstallError{Op: "install", Version: v, Path: staging, Err: err}
	}
	if err := os.MkdirAll(d.home.ToolchainsDir, 0o755); err != nil {
		return &InstallError{Op: "install", Version: v, Path: d.home.ToolchainsDir, Err: err}
	}
	expanded := staging + ".expanded"
	_ = os.RemoveAll(expanded)
	defer func() {
		_ = os.RemoveAll(expanded)
		_ = os.RemoveAll(staging)
	}()

	d.logger.Printf("expanding %s into %s", archivePath, expanded)
	out, err := d.Runner.Run(ctx, "pkgutil", "--expand-full", archivePath, expanded)
	if err != nil {
		return &InstallError{Op: "install", Version: v, Path: expanded,
			Err: fmt.Errorf("pkgutil: %w: %s", err, strings.TrimSpace(string(out)))}
	}
	if msg := strings.TrimSpace(string(out)); msg != "" {
		d.logger.Printf("pkgutil: %s", msg)
	}

	payload, err := findPayload(expanded)
	if err != nil {
		return &InstallError{Op: "install", Version: v, Path: expanded, Err: err}
	}
	if err := os.Rename(payload, staging); err != nil {
		return &InstallError{Op: "install", Version: v, Path: staging, Err: err}
	}
	if err := d.commit(staging, v); err != nil {
		return err
	}
	d.logger.Printf("installed toolchain %s", v.Name())
	return nil
}

var errPayloadFound = errors.New("payload found")

// findPayload locates the expanded Payload directory that carries usr/bin.
func findPayload(root string) (string, error) {
	var match string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == "Payload" {
			if info, statErr := os.Stat(filepath.Join(path, "usr", "bin")); statErr == nil && info.IsDir() {
				match = path
				return errPayloadFound
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errPayloadFound) {
		return "", fmt.Errorf("scan package: %w", err)
	}
	if match == "" {
		return "", fmt.Errorf("package has no toolchain payload")
	}
	return match, nil
}

func (d *Darwin) Hints() []string {
	return []string{"Install the Xcode command line tools if you have not already: xcode-select --install"}
}
