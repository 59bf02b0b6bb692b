package engine

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"swiftly/internal/config"
	"swiftly/internal/paths"
	"swiftly/internal/platform"
	"swiftly/internal/remote"
	"swiftly/internal/symlink"
	"swiftly/internal/toolchain"
)

// Logger is the minimal logging interface used by the engine.
type Logger interface {
	Printf(format string, v ...any)
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

// Downloader fetches toolchain archives.
type Downloader interface {
	Download(ctx context.Context, url, dest string, onProgress func(remote.Progress)) error
}

// Source lists versions published upstream.
type Source interface {
	Releases() toolchain.Feed
	Snapshots() toolchain.Feed
}

// Linker maintains the bin directory of the active toolchain.
type Linker interface {
	Apply(toolchainBin string) (symlink.Change, error)
	Clear() ([]string, error)
	Verify(toolchainBin string) ([]string, error)
}

// ProgressFunc receives download progress for v.
type ProgressFunc func(v toolchain.Version, p remote.Progress)

// Options wires an Engine. Home, Store, Platform and Links are required;
// Source and Downloader are only needed by Install.
type Options struct {
	Home       paths.Home
	Store      config.Store
	Platform   platform.Platform
	Source     Source
	Downloader Downloader
	Links      Linker
	Logger     Logger
	Progress   ProgressFunc
	// LookPath locates executables for Doctor. Defaults to exec.LookPath.
	LookPath func(file string) (string, error)
}

// Engine performs toolchain state transitions. It holds no config state
// between calls; every operation loads the config afresh.
type Engine struct {
	home       paths.Home
	store      config.Store
	platform   platform.Platform
	source     Source
	downloader Downloader
	links      Linker
	logger     Logger
	progress   ProgressFunc
	lookPath   func(string) (string, error)
}

// New validates opts and returns an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Home.Root == "" {
		return nil, errors.New("engine: home not set")
	}
	if opts.Store.Path == "" {
		return nil, errors.New("engine: config store not set")
	}
	if opts.Platform == nil {
		return nil, errors.New("engine: platform not set")
	}
	if opts.Links == nil {
		return nil, errors.New("engine: symlink manager not set")
	}
	e := &Engine{
		home:       opts.Home,
		store:      opts.Store,
		platform:   opts.Platform,
		source:     opts.Source,
		downloader: opts.Downloader,
		links:      opts.Links,
		logger:     opts.Logger,
		progress:   opts.Progress,
		lookPath:   opts.LookPath,
	}
	if e.logger == nil {
		e.logger = noopLogger{}
	}
	if e.lookPath == nil {
		e.lookPath = exec.LookPath
	}
	return e, nil
}

// Outcome names what an operation did.
type Outcome string

const (
	OutcomeInstalled        Outcome = "installed"
	OutcomeAlreadyInstalled Outcome = "already-installed"
	OutcomeSwitched         Outcome = "switched"
	OutcomeAlreadyInUse     Outcome = "already-in-use"
	OutcomeNoMatch          Outcome = "no-match"
	OutcomeUninstalled      Outcome = "uninstalled"
)

// InstallResult reports the outcome of Install.
type InstallResult struct {
	Version   toolchain.Version `json:"version"`
	Outcome   Outcome           `json:"outcome"`
	Activated bool              `json:"activated"`
	Hints     []string          `json:"hints,omitempty"`
}

// UseResult reports the outcome of Use.
type UseResult struct {
	Selector toolchain.Selector `json:"-"`
	Version  toolchain.Version  `json:"version,omitzero"`
	Previous *toolchain.Version `json:"previous"`
	Outcome  Outcome            `json:"outcome"`
	Links    symlink.Change     `json:"links"`
}

// UninstallResult reports the outcome of Uninstall.
type UninstallResult struct {
	Removed []toolchain.Version `json:"removed"`
	Outcome Outcome             `json:"outcome"`
	// WasActive is set when the active toolchain was among those removed.
	WasActive bool `json:"wasActive"`
	// Active is the toolchain in use afterwards, nil when none is.
	Active *toolchain.Version `json:"active"`
}

// ListEntry is one installed toolchain.
type ListEntry struct {
	Version toolchain.Version `json:"version"`
	InUse   bool              `json:"inUse"`
}

// ListResult lists installed toolchains in display order.
type ListResult struct {
	Platform config.PlatformDefinition `json:"platform"`
	Entries  []ListEntry               `json:"toolchains"`
}

func (e *Engine) lock(ctx context.Context) (func(), error) {
	return acquireLock(ctx, e.home.LockFile)
}

// Init creates the home layout and an empty config for the detected
// platform. An existing config is left untouched.
func (e *Engine) Init(ctx context.Context) (config.Config, bool, error) {
	if err := e.home.EnsureDirs(); err != nil {
		return config.Config{}, false, err
	}
	release, err := e.lock(ctx)
	if err != nil {
		return config.Config{}, false, err
	}
	defer release()

	cfg, created, err := e.store.Init(e.platform.Definition())
	if err != nil {
		return config.Config{}, false, err
	}
	if created {
		e.logger.Printf("initialized %s for %s", e.home.Root, cfg.Platform.NamePretty)
	}
	return cfg, created, nil
}

// load reads the config and refuses to continue when it disagrees with
// the toolchain directories.
func (e *Engine) load() (config.Config, error) {
	cfg, err := e.store.Load()
	if err != nil {
		return config.Config{}, err
	}
	state, err := e.inspect(cfg)
	if err != nil {
		return config.Config{}, err
	}
	if len(state.missing) > 0 || len(state.orphaned) > 0 {
		return config.Config{}, &InconsistencyError{Missing: state.missing, Orphaned: state.orphaned}
	}
	return cfg, nil
}

// Install resolves sel, downloads and installs the toolchain, and records
// it. The first toolchain ever installed becomes the active one.
func (e *Engine) Install(ctx context.Context, sel toolchain.Selector) (InstallResult, error) {
	release, err := e.lock(ctx)
	if err != nil {
		return InstallResult{}, err
	}
	defer release()

	cfg, err := e.load()
	if err != nil {
		return InstallResult{}, err
	}

	v, err := e.resolveRemote(ctx, sel)
	if err != nil {
		return InstallResult{}, err
	}
	if cfg.Installed.Contains(v) {
		e.logger.Printf("install %s: already installed", v.Name())
		return InstallResult{Version: v, Outcome: OutcomeAlreadyInstalled}, nil
	}
	if e.downloader == nil {
		return InstallResult{}, errors.New("engine: downloader not set")
	}

	url, err := e.platform.DownloadURL(v)
	if err != nil {
		return InstallResult{}, err
	}
	if err := e.fetchAndInstall(ctx, v, url); err != nil {
		return InstallResult{}, err
	}

	first := false
	if _, err := e.store.Mutate(func(c *config.Config) error {
		first = c.Installed.Len() == 0 && c.InUse == nil
		c.Installed.Add(v)
		return nil
	}); err != nil {
		if rbErr := e.platform.Uninstall(ctx, v); rbErr != nil {
			e.logger.Printf("install %s: rollback failed: %v", v.Name(), rbErr)
			err = errors.Join(err, rbErr)
		}
		return InstallResult{}, fmt.Errorf("record %s: %w", v.Name(), err)
	}
	e.logger.Printf("install %s: recorded", v.Name())

	result := InstallResult{Version: v, Outcome: OutcomeInstalled, Hints: e.platform.Hints()}
	if first {
		if _, err := e.switchTo(v); err != nil {
			return result, fmt.Errorf("activate %s: %w", v.Name(), err)
		}
		result.Activated = true
	}
	return result, nil
}

func (e *Engine) resolveRemote(ctx context.Context, sel toolchain.Selector) (toolchain.Version, error) {
	if v, ok := sel.Exact(); ok {
		return v, nil
	}
	if e.source == nil {
		return toolchain.Version{}, errors.New("engine: version source not set")
	}
	feed := e.source.Releases()
	if sel.Family() == toolchain.KindSnapshot {
		feed = e.source.Snapshots()
	}
	v, ok, err := toolchain.ResolveRemote(ctx, sel, feed)
	if err != nil {
		return toolchain.Version{}, err
	}
	if !ok {
		return toolchain.Version{}, &NoRemoteMatchError{Selector: sel}
	}
	e.logger.Printf("resolved %s to %s", sel, v.Name())
	return v, nil
}

// fetchAndInstall downloads v into a temp file and hands it to the
// platform installer. The temp file is removed on every path.
func (e *Engine) fetchAndInstall(ctx context.Context, v toolchain.Version, url string) error {
	tmp := e.platform.TempFilePath()
	defer removeQuietly(tmp)

	e.logger.Printf("install %s: downloading %s", v.Name(), url)
	var onProgress func(remote.Progress)
	if e.progress != nil {
		onProgress = func(p remote.Progress) { e.progress(v, p) }
	}
	if err := e.downloader.Download(ctx, url, tmp, onProgress); err != nil {
		var nf *remote.NotFoundError
		if errors.As(err, &nf) {
			return &NotFoundError{Version: v, URL: url, Err: err}
		}
		return fmt.Errorf("download %s: %w", v.Name(), err)
	}

	if err := e.platform.Install(ctx, tmp, v); err != nil {
		return err
	}
	return nil
}

// Use activates the installed toolchain that best matches sel.
func (e *Engine) Use(ctx context.Context, sel toolchain.Selector) (UseResult, error) {
	release, err := e.lock(ctx)
	if err != nil {
		return UseResult{}, err
	}
	defer release()

	cfg, err := e.load()
	if err != nil {
		return UseResult{}, err
	}

	result := UseResult{Selector: sel, Previous: cfg.InUse}
	v, ok := toolchain.Resolve(sel, cfg.Installed.Sorted())
	if !ok {
		result.Outcome = OutcomeNoMatch
		return result, nil
	}
	result.Version = v
	if cfg.IsInUse(v) {
		result.Outcome = OutcomeAlreadyInUse
		return result, nil
	}

	change, err := e.switchTo(v)
	if err != nil {
		return UseResult{}, err
	}
	result.Outcome = OutcomeSwitched
	result.Links = change
	return result, nil
}

// switchTo links v into the bin directory and only then records it as
// active, so the config never names a toolchain that was not linked.
func (e *Engine) switchTo(v toolchain.Version) (symlink.Change, error) {
	change, err := e.links.Apply(e.platform.ToolchainBinDir(v))
	if err != nil {
		return change, fmt.Errorf("link %s: %w", v.Name(), err)
	}
	if _, err := e.store.Mutate(func(c *config.Config) error {
		c.SetInUse(v)
		return nil
	}); err != nil {
		return change, err
	}
	e.logger.Printf("use %s: active", v.Name())
	return change, nil
}

// Uninstall removes v. When v was active, the newest remaining stable
// release (or failing that the newest snapshot) becomes active.
func (e *Engine) Uninstall(ctx context.Context, v toolchain.Version) (UninstallResult, error) {
	release, err := e.lock(ctx)
	if err != nil {
		return UninstallResult{}, err
	}
	defer release()

	cfg, err := e.load()
	if err != nil {
		return UninstallResult{}, err
	}
	if !cfg.Installed.Contains(v) {
		return UninstallResult{Outcome: OutcomeNoMatch, Active: cfg.InUse}, nil
	}
	return e.uninstall(ctx, cfg, []toolchain.Version{v})
}

// UninstallMatching removes the installed toolchain that best matches sel,
// or every matching toolchain when all is set.
func (e *Engine) UninstallMatching(ctx context.Context, sel toolchain.Selector, all bool) (UninstallResult, error) {
	release, err := e.lock(ctx)
	if err != nil {
		return UninstallResult{}, err
	}
	defer release()

	cfg, err := e.load()
	if err != nil {
		return UninstallResult{}, err
	}

	var targets []toolchain.Version
	if all {
		for _, v := range cfg.Installed.Sorted() {
			if sel.Matches(v) {
				targets = append(targets, v)
			}
		}
	} else if v, ok := toolchain.Resolve(sel, cfg.Installed.Sorted()); ok {
		targets = append(targets, v)
	}
	if len(targets) == 0 {
		return UninstallResult{Outcome: OutcomeNoMatch, Active: cfg.InUse}, nil
	}
	return e.uninstall(ctx, cfg, targets)
}

func (e *Engine) uninstall(ctx context.Context, cfg config.Config, targets []toolchain.Version) (UninstallResult, error) {
	result := UninstallResult{Outcome: OutcomeUninstalled}
	var errs []error

	for _, v := range targets {
		active := cfg.IsInUse(v)
		if err := e.platform.Uninstall(ctx, v); err != nil {
			errs = append(errs, err)
			continue
		}
		if active {
			if _, err := e.links.Clear(); err != nil {
				errs = append(errs, fmt.Errorf("clear links: %w", err))
			}
		}
		updated, err := e.store.Mutate(func(c *config.Config) error {
			c.Installed.Remove(v)
			if c.IsInUse(v) {
				c.SetInUse(toolchain.Version{})
			}
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("record removal of %s: %w", v.Name(), err))
			continue
		}
		cfg = updated
		result.Removed = append(result.Removed, v)
		result.WasActive = result.WasActive || active
		e.logger.Printf("uninstall %s: removed", v.Name())
	}

	if result.WasActive && cfg.InUse == nil {
		if next, ok := defaultToolchain(cfg.Installed); ok {
			if _, err := e.switchTo(next); err != nil {
				errs = append(errs, fmt.Errorf("activate %s: %w", next.Name(), err))
			} else {
				cfg.SetInUse(next)
			}
		}
	}
	result.Active = cfg.InUse
	return result, errors.Join(errs...)
}

// defaultToolchain picks the toolchain to activate when the active one is
// removed: the newest stable release, else the newest snapshot by date.
func defaultToolchain(installed toolchain.Set) (toolchain.Version, bool) {
	sorted := installed.Sorted()
	if v, ok := toolchain.Resolve(toolchain.Latest(), sorted); ok {
		return v, true
	}
	var (
		best  toolchain.Version
		found bool
	)
	for _, v := range sorted {
		if !v.IsSnapshot() {
			continue
		}
		if !found || v.Date > best.Date || (v.Date == best.Date && toolchain.Compare(v, best) > 0) {
			best, found = v, true
		}
	}
	return best, found
}

// List returns the installed toolchains, optionally filtered by sel. It
// reads the config without locking.
func (e *Engine) List(sel *toolchain.Selector) (ListResult, error) {
	cfg, err := e.store.Load()
	if err != nil {
		return ListResult{}, err
	}
	result := ListResult{Platform: cfg.Platform, Entries: []ListEntry{}}
	for _, v := range cfg.Installed.Sorted() {
		if sel != nil && !sel.Matches(v) {
			continue
		}
		result.Entries = append(result.Entries, ListEntry{Version: v, InUse: cfg.IsInUse(v)})
	}
	return result, nil
}
