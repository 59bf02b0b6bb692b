package platform

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"swiftly/internal/config"
	"swiftly/internal/paths"
)

// OSReleasePath is where Linux distributions describe themselves.
const OSReleasePath = "/etc/os-release"

// Detect returns the platform for the running system.
func Detect(home paths.Home, baseURL string, logger Logger) (Platform, error) {
	switch runtime.GOOS {
	case "darwin":
		return NewDarwin(home, baseURL, CmdRunner{}, logger), nil
	case "linux":
		def, err := DetectLinux(OSReleasePath, runtime.GOARCH)
		if err != nil {
			return nil, err
		}
		return NewLinux(home, def, baseURL, logger), nil
	default:
		return nil, fmt.Errorf("unsupported operating system %s", runtime.GOOS)
	}
}

// ForDefinition rebuilds the platform recorded in an existing config, so a
// home keeps downloading for the platform it was initialized with.
func ForDefinition(home paths.Home, def config.PlatformDefinition, baseURL string, logger Logger) Platform {
	if def.Name == DarwinDefinition.Name {
		return NewDarwin(home, baseURL, CmdRunner{}, logger)
	}
	return NewLinux(home, def, baseURL, logger)
}

// DetectLinux reads an os-release file and maps it to a download platform.
func DetectLinux(path, goarch string) (config.PlatformDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return config.PlatformDefinition{}, fmt.Errorf("detect linux distribution: %w", err)
	}
	defer f.Close()

	fields, err := ParseOSRelease(f)
	if err != nil {
		return config.PlatformDefinition{}, err
	}
	return LinuxDefinition(fields, goarch)
}

// ParseOSRelease parses KEY=value lines, unquoting values.
func ParseOSRelease(r io.Reader) (map[string]string, error) {
	fields := map[string]string{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') && value[len(value)-1] == value[0] {
			value = value[1 : len(value)-1]
		}
		fields[strings.TrimSpace(key)] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read os-release: %w", err)
	}
	return fields, nil
}

// LinuxDefinition maps os-release fields and a Go architecture to the
// names download.swift.org uses.
func LinuxDefinition(fields map[string]string, goarch string) (config.PlatformDefinition, error) {
	var arch *string
	switch goarch {
	case "amd64":
	case "arm64":
		a := "aarch64"
		arch = &a
	default:
		return config.PlatformDefinition{}, fmt.Errorf("unsupported architecture %s", goarch)
	}

	id := strings.ToLower(fields["ID"])
	versionID := fields["VERSION_ID"]
	major, _, _ := strings.Cut(versionID, ".")

	var def config.PlatformDefinition
	switch {
	case id == "ubuntu" && versionID != "":
		def = config.PlatformDefinition{
			Name:       "ubuntu" + strings.ReplaceAll(versionID, ".", ""),
			NameFull:   "ubuntu" + versionID,
			NamePretty: "Ubuntu " + versionID,
		}
	case id == "amzn" && versionID == "2":
		def = config.PlatformDefinition{Name: "amazonlinux2", NameFull: "amazonlinux2", NamePretty: "Amazon Linux 2"}
	case (id == "centos" || id == "rhel") && major == "7":
		def = config.PlatformDefinition{Name: "centos7", NameFull: "centos7", NamePretty: "CentOS 7"}
	case (id == "rhel" || id == "rocky" || id == "almalinux") && major == "9":
		def = config.PlatformDefinition{Name: "ubi9", NameFull: "ubi9", NamePretty: "RHEL 9"}
	default:
		name := fields["PRETTY_NAME"]
		if name == "" {
			name = id
		}
		return config.PlatformDefinition{}, fmt.Errorf("unsupported linux distribution %q", name)
	}
	def.Architecture = arch
	return def, nil
}
