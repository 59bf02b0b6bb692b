package platform

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"swiftly/internal/config"
	"swiftly/internal/paths"
	"swiftly/internal/toolchain"
)

// Linux installs tar.gz toolchains from download.swift.org.
type Linux struct {
	layout
}

// NewLinux returns the Linux platform for def.
func NewLinux(home paths.Home, def config.PlatformDefinition, baseURL string, logger Logger) *Linux {
	return &Linux{layout: newLayout(home, def, baseURL, ".tar.gz", logger)}
}

// Install extracts the archive into a staging directory, dropping the
// top-level directory every toolchain tarball carries, then renames it into
// place.
func (l *Linux) Install(ctx context.Context, archivePath string, v toolchain.Version) error {
	staging := l.home.StagingDir(v)
	if err := os.RemoveAll(staging); err != nil {
		return &InstallError{Op: "install", Version: v, Path: staging, Err: err}
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return &InstallError{Op: "install", Version: v, Path: staging, Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(staging)
		}
	}()

	l.logger.Printf("extracting %s into %s", archivePath, staging)
	if err := extractTarGz(ctx, archivePath, staging, 1); err != nil {
		return &InstallError{Op: "install", Version: v, Path: staging, Err: err}
	}
	if err := l.commit(staging, v); err != nil {
		return err
	}
	committed = true
	l.logger.Printf("installed toolchain %s", v.Name())
	return nil
}

// Hints lists system packages toolchains need on this distribution.
func (l *Linux) Hints() []string {
	switch {
	case strings.HasPrefix(l.def.Name, "ubuntu"):
		return []string{
			"Swift needs a few system packages: sudo apt-get install binutils git gnupg2 libc6-dev libcurl4-openssl-dev libedit2 libgcc-9-dev libpython3-dev libsqlite3-0 libstdc++-9-dev libxml2-dev libz3-dev pkg-config tzdata unzip zlib1g-dev",
		}
	case l.def.Name == "amazonlinux2", l.def.Name == "centos7", l.def.Name == "ubi9":
		return []string{
			"Swift needs a few system packages: sudo yum install binutils gcc git glibc-static gzip libbsd libcurl-devel libedit libicu libsqlite libstdc++-static libuuid libxml2-devel tar tzdata zlib-devel",
		}
	default:
		return []string{"See https://www.swift.org/install/linux/ for the system packages Swift needs"}
	}
}

func extractTarGz(ctx context.Context, archivePath, dest string, strip int) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("gzip reader: %w", err)
	}
	defer gz.Close()

	return untarStream(ctx, gz, dest, strip)
}

func untarStream(ctx context.Context, r io.Reader, dest string, strip int) error {
	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		name, ok := stripComponents(header.Name, strip)
		if !ok {
			continue
		}
		target, err := safeJoin(dest, name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, dirMode(header.Mode)); err != nil {
				return fmt.Errorf("create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("prepare file %s: %w", target, err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode).Perm())
			if err != nil {
				return fmt.Errorf("create file %s: %w", target, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("write file %s: %w", target, err)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("close file %s: %w", target, err)
			}
		case tar.TypeSymlink:
			if filepath.IsAbs(header.Linkname) {
				return fmt.Errorf("absolute symlink %s -> %s", header.Name, header.Linkname)
			}
			if _, err := safeJoin(dest, filepath.Join(filepath.Dir(name), header.Linkname)); err != nil {
				return fmt.Errorf("symlink %s escapes archive: %w", header.Name, err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("prepare link %s: %w", target, err)
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("create link %s: %w", target, err)
			}
		case tar.TypeLink:
			linkName, ok := stripComponents(header.Linkname, strip)
			if !ok {
				return fmt.Errorf("hard link %s has no target", header.Name)
			}
			source, err := safeJoin(dest, linkName)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("prepare link %s: %w", target, err)
			}
			if err := os.Link(source, target); err != nil {
				return fmt.Errorf("create hard link %s: %w", target, err)
			}
		default:
			// Ignore other entry types.
		}
	}
	return nil
}

// stripComponents drops the first n path elements. ok is false when
// nothing is left.
func stripComponents(name string, n int) (string, bool) {
	name = strings.TrimPrefix(filepath.ToSlash(name), "./")
	parts := strings.Split(strings.Trim(name, "/"), "/")
	if len(parts) <= n {
		return "", false
	}
	rest := strings.Join(parts[n:], "/")
	if rest == "" {
		return "", false
	}
	return filepath.FromSlash(rest), true
}

func safeJoin(root, name string) (string, error) {
	target := filepath.Join(root, name)
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes destination", name)
	}
	return target, nil
}

func dirMode(mode int64) os.FileMode {
	m := os.FileMode(mode).Perm()
	if m == 0 {
		return 0o755
	}
	return m | 0o700
}
