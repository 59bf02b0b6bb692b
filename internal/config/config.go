package config

import (
	"fmt"

	"swiftly/internal/toolchain"
)

// PlatformDefinition identifies the platform toolchains are downloaded for.
// It is detected once when the config is created and never changes after.
type PlatformDefinition struct {
	// Name is the directory component used by download.swift.org, e.g. ubuntu2204.
	Name string `json:"name"`
	// NameFull is the file-name component, e.g. ubuntu22.04.
	NameFull string `json:"nameFull"`
	// NamePretty is shown to users, e.g. Ubuntu 22.04.
	NamePretty string `json:"namePretty"`
	// Architecture is nil for the default x86_64 builds.
	Architecture *string `json:"architecture"`
}

// Arch returns the architecture or the empty string when unset.
func (p PlatformDefinition) Arch() string {
	if p.Architecture == nil {
		return ""
	}
	return *p.Architecture
}

// Config is the single persisted record of toolchain state.
type Config struct {
	InUse     *toolchain.Version `json:"inUse"`
	Installed toolchain.Set      `json:"installedToolchains"`
	Platform  PlatformDefinition `json:"platform"`
}

// New returns an empty config for platform.
func New(platform PlatformDefinition) Config {
	return Config{Installed: toolchain.NewSet(), Platform: platform}
}

// InUseVersion returns the active toolchain, if any.
func (c Config) InUseVersion() (toolchain.Version, bool) {
	if c.InUse == nil {
		return toolchain.Version{}, false
	}
	return *c.InUse, true
}

// SetInUse marks v active. A zero version clears the selection.
func (c *Config) SetInUse(v toolchain.Version) {
	if v.IsZero() {
		c.InUse = nil
		return
	}
	c.InUse = &v
}

// IsInUse reports whether v is the active toolchain.
func (c Config) IsInUse(v toolchain.Version) bool {
	return c.InUse != nil && *c.InUse == v
}

// Validate checks the invariants that can be decided from the record
// alone: the active toolchain must be installed and the platform known.
func (c Config) Validate() error {
	if c.InUse != nil && !c.Installed.Contains(*c.InUse) {
		return fmt.Errorf("in-use toolchain %s is not installed", c.InUse.Name())
	}
	if c.Platform.Name == "" {
		return fmt.Errorf("platform name missing")
	}
	return nil
}
