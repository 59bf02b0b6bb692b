package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"swiftly/internal/config"
	"swiftly/internal/paths"
	"swiftly/internal/toolchain"
)

// Report describes the health of a swiftly home.
type Report struct {
	Home     string                    `json:"home"`
	BinDir   string                    `json:"binDir"`
	Platform config.PlatformDefinition `json:"platform"`
	InUse    *toolchain.Version        `json:"inUse"`
	// Missing toolchains are recorded as installed but have no directory.
	Missing []toolchain.Version `json:"missing"`
	// Orphaned directories hold no recorded toolchain.
	Orphaned []string `json:"orphaned"`
	// Staging directories are left over from interrupted installs.
	Staging      []string `json:"staging"`
	LinkProblems []string `json:"linkProblems"`
	PathWarning  string   `json:"pathWarning,omitempty"`
	// Actions lists what Repair changed.
	Actions []string `json:"actions,omitempty"`
}

// Healthy reports whether nothing needs attention.
func (r Report) Healthy() bool {
	return len(r.Missing) == 0 && len(r.Orphaned) == 0 && len(r.Staging) == 0 &&
		len(r.LinkProblems) == 0 && r.PathWarning == ""
}

type diskState struct {
	missing  []toolchain.Version
	orphaned []string
	staging  []string
}

// inspect compares the installed set with the toolchain directories.
func (e *Engine) inspect(cfg config.Config) (diskState, error) {
	names, staging, err := e.home.ToolchainDirs()
	if err != nil {
		return diskState{}, err
	}
	state := diskState{staging: staging}

	onDisk := map[string]bool{}
	for _, name := range names {
		onDisk[name] = true
		v, err := toolchain.ParseVersion(name)
		if err != nil || v.Name() != name || !cfg.Installed.Contains(v) {
			state.orphaned = append(state.orphaned, name)
		}
	}
	for _, v := range cfg.Installed.Sorted() {
		if !onDisk[v.Name()] {
			state.missing = append(state.missing, v)
		}
	}
	return state, nil
}

// Doctor inspects the home without changing anything.
func (e *Engine) Doctor(ctx context.Context) (Report, error) {
	cfg, err := e.store.Load()
	if err != nil {
		return Report{}, err
	}
	return e.report(cfg)
}

func (e *Engine) report(cfg config.Config) (Report, error) {
	state, err := e.inspect(cfg)
	if err != nil {
		return Report{}, err
	}
	report := Report{
		Home:     e.home.Root,
		BinDir:   e.home.BinDir,
		Platform: cfg.Platform,
		InUse:    cfg.InUse,
		Missing:  state.missing,
		Orphaned: state.orphaned,
		Staging:  state.staging,
	}

	activeBin := ""
	if v, ok := cfg.InUseVersion(); ok {
		activeBin = e.platform.ToolchainBinDir(v)
	}
	problems, err := e.links.Verify(activeBin)
	if err != nil {
		return Report{}, err
	}
	report.LinkProblems = problems

	if cfg.InUse != nil {
		report.PathWarning = e.checkPath()
	}
	return report, nil
}

// checkPath reports when swift on PATH is not the managed link.
func (e *Engine) checkPath() string {
	found, err := e.lookPath("swift")
	if err != nil {
		return fmt.Sprintf("swift is not on PATH; add %s to PATH", e.home.BinDir)
	}
	if !sameDir(filepath.Dir(found), e.home.BinDir) {
		return fmt.Sprintf("swift on PATH resolves to %s, not %s", found, e.home.BinDir)
	}
	return ""
}

func sameDir(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	ra, errA := filepath.EvalSymlinks(a)
	rb, errB := filepath.EvalSymlinks(b)
	return errA == nil && errB == nil && ra == rb
}

// Repair reconciles the config with the disk: records without a directory
// are dropped, complete directories named after a version are adopted,
// staging leftovers are deleted and the bin directory is relinked.
func (e *Engine) Repair(ctx context.Context) (Report, error) {
	release, err := e.lock(ctx)
	if err != nil {
		return Report{}, err
	}
	defer release()

	cfg, err := e.store.Load()
	if err != nil {
		return Report{}, err
	}
	state, err := e.inspect(cfg)
	if err != nil {
		return Report{}, err
	}

	var (
		actions []string
		errs    []error
	)
	for _, name := range state.staging {
		if err := os.RemoveAll(filepath.Join(e.home.ToolchainsDir, name)); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", name, err))
			continue
		}
		actions = append(actions, "removed staging directory "+name)
	}

	var adopt []toolchain.Version
	for _, name := range state.orphaned {
		v, err := toolchain.ParseVersion(name)
		if err != nil || v.Name() != name {
			actions = append(actions, "left unrecognized directory "+name)
			continue
		}
		if ok, _ := paths.DirExists(e.platform.ToolchainBinDir(v)); !ok {
			actions = append(actions, "left incomplete directory "+name)
			continue
		}
		adopt = append(adopt, v)
	}

	cfg, err = e.store.Mutate(func(c *config.Config) error {
		for _, v := range state.missing {
			c.Installed.Remove(v)
			if c.IsInUse(v) {
				c.SetInUse(toolchain.Version{})
			}
			actions = append(actions, "forgot missing toolchain "+v.Name())
		}
		for _, v := range adopt {
			c.Installed.Add(v)
			actions = append(actions, "adopted toolchain "+v.Name())
		}
		return nil
	})
	if err != nil {
		return Report{}, errors.Join(append(errs, err)...)
	}

	if v, ok := cfg.InUseVersion(); ok {
		change, err := e.links.Apply(e.platform.ToolchainBinDir(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("relink %s: %w", v.Name(), err))
		} else if change.Touched() {
			actions = append(actions, "relinked "+v.Name())
		}
	} else if next, ok := defaultToolchain(cfg.Installed); ok {
		if _, err := e.switchTo(next); err != nil {
			errs = append(errs, fmt.Errorf("activate %s: %w", next.Name(), err))
		} else {
			actions = append(actions, "activated "+next.Name())
			cfg.SetInUse(next)
		}
	} else {
		removed, err := e.links.Clear()
		if err != nil {
			errs = append(errs, fmt.Errorf("clear links: %w", err))
		} else if len(removed) > 0 {
			actions = append(actions, "cleared bin directory")
		}
	}

	report, err := e.report(cfg)
	if err != nil {
		errs = append(errs, err)
	}
	report.Actions = actions
	for _, a := range actions {
		e.logger.Printf("repair: %s", a)
	}
	return report, errors.Join(errs...)
}

func removeQuietly(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
