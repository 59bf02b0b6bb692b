package remote

import (
	"fmt"
	"strings"

	"swiftly/internal/config"
	"swiftly/internal/toolchain"
)

// ToolchainURL returns the download.swift.org location of the archive for v
// on platform p. ext includes the leading dot, e.g. ".tar.gz".
func ToolchainURL(base string, p config.PlatformDefinition, ext string, v toolchain.Version) (string, error) {
	if p.Name == "" || p.NameFull == "" {
		return "", fmt.Errorf("toolchain url: platform not set")
	}

	var dir string
	switch {
	case v.IsStableRelease():
		dir = strings.TrimSuffix(v.TagName(), "-RELEASE") + "-release"
	case v.IsSnapshot() && v.Branch.IsMain():
		dir = "development"
	case v.IsSnapshot():
		dir = "swift-" + v.Branch.String() + "-branch"
	default:
		return "", fmt.Errorf("toolchain url: invalid version")
	}

	platformDir := p.Name
	nameFull := p.NameFull
	if arch := p.Arch(); arch != "" {
		platformDir += "-" + arch
		nameFull += "-" + arch
	}

	tag := v.TagName()
	return fmt.Sprintf("%s/%s/%s/%s/%s-%s%s",
		strings.TrimRight(base, "/"), dir, platformDir, tag, tag, nameFull, ext), nil
}
