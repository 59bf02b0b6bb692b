package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swiftly/internal/config"
	"swiftly/internal/paths"
	"swiftly/internal/platform"
	"swiftly/internal/remote"
	"swiftly/internal/symlink"
	"swiftly/internal/toolchain"
)

// fakePlatform materializes a toolchain directory holding a few
// executables instead of unpacking an archive.
type fakePlatform struct {
	home        paths.Home
	tmpDir      string
	tmpCount    int
	tempPaths   []string
	installed   []toolchain.Version
	failInstall error
	executables []string
}

func (p *fakePlatform) Definition() config.PlatformDefinition {
	return config.PlatformDefinition{Name: "ubuntu2204", NameFull: "ubuntu22.04", NamePretty: "Ubuntu 22.04"}
}

func (p *fakePlatform) DownloadURL(v toolchain.Version) (string, error) {
	return "https://download.example.test/" + v.Name() + ".tar.gz", nil
}

func (p *fakePlatform) Install(ctx context.Context, archivePath string, v toolchain.Version) error {
	if _, err := os.Stat(archivePath); err != nil {
		return fmt.Errorf("archive missing: %w", err)
	}
	if p.failInstall != nil {
		return &platform.InstallError{Op: "install", Version: v, Path: p.home.ToolchainDir(v), Err: p.failInstall}
	}
	bin := p.ToolchainBinDir(v)
	if err := os.MkdirAll(bin, 0o755); err != nil {
		return err
	}
	for _, name := range p.executables {
		if err := os.WriteFile(filepath.Join(bin, name), []byte(v.Name()), 0o755); err != nil {
			return err
		}
	}
	p.installed = append(p.installed, v)
	return nil
}

func (p *fakePlatform) Uninstall(ctx context.Context, v toolchain.Version) error {
	return os.RemoveAll(p.home.ToolchainDir(v))
}

func (p *fakePlatform) TempFilePath() string {
	p.tmpCount++
	path := filepath.Join(p.tmpDir, fmt.Sprintf("download-%d.tar.gz", p.tmpCount))
	p.tempPaths = append(p.tempPaths, path)
	return path
}

func (p *fakePlatform) ToolchainBinDir(v toolchain.Version) string {
	return filepath.Join(p.home.ToolchainDir(v), "usr", "bin")
}

func (p *fakePlatform) Hints() []string { return nil }

// fakeDownloader serves archives for the versions it knows about and
// answers not-found for everything else.
type fakeDownloader struct {
	available map[string]bool
	fail      error
	calls     int
}

func (d *fakeDownloader) Download(ctx context.Context, url, dest string, onProgress func(remote.Progress)) error {
	d.calls++
	if d.fail != nil {
		return d.fail
	}
	if !d.available[url] {
		return &remote.NotFoundError{URL: url}
	}
	if onProgress != nil {
		onProgress(remote.Progress{Received: 0, Total: 4})
		onProgress(remote.Progress{Received: 4, Total: 4})
	}
	return os.WriteFile(dest, []byte("data"), 0o644)
}

type fakeSource struct {
	releases  []toolchain.Version
	snapshots []toolchain.Version
}

func (s fakeSource) Releases() toolchain.Feed {
	return toolchain.FeedFunc(func(ctx context.Context, token string) (toolchain.Page, error) {
		return toolchain.Page{Versions: s.releases}, nil
	})
}

func (s fakeSource) Snapshots() toolchain.Feed {
	return toolchain.FeedFunc(func(ctx context.Context, token string) (toolchain.Page, error) {
		return toolchain.Page{Versions: s.snapshots}, nil
	})
}

type harness struct {
	engine     *Engine
	home       paths.Home
	platform   *fakePlatform
	downloader *fakeDownloader
	links      *symlink.Manager
	progress   []remote.Progress
}

func newHarness(t *testing.T, published ...toolchain.Version) *harness {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need developer mode on windows")
	}
	home := paths.New(filepath.Join(t.TempDir(), "swiftly"))
	h := &harness{home: home}
	h.platform = &fakePlatform{home: home, tmpDir: t.TempDir(), executables: []string{"swift", "swiftc", "lldb"}}
	h.downloader = &fakeDownloader{available: map[string]bool{}}
	h.links = symlink.NewManager(home.BinDir, nil)

	src := fakeSource{}
	for _, v := range published {
		url, _ := h.platform.DownloadURL(v)
		h.downloader.available[url] = true
		if v.IsStableRelease() {
			src.releases = append(src.releases, v)
		} else {
			src.snapshots = append(src.snapshots, v)
		}
	}

	e, err := New(Options{
		Home:       home,
		Store:      config.NewStore(home.ConfigFile),
		Platform:   h.platform,
		Source:     src,
		Downloader: h.downloader,
		Links:      h.links,
		Progress:   func(v toolchain.Version, p remote.Progress) { h.progress = append(h.progress, p) },
		LookPath: func(string) (string, error) {
			return filepath.Join(home.BinDir, "swift"), nil
		},
	})
	require.NoError(t, err)
	h.engine = e

	_, created, err := e.Init(context.Background())
	require.NoError(t, err)
	require.True(t, created)
	return h
}

func (h *harness) config(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.NewStore(h.home.ConfigFile).Load()
	require.NoError(t, err)
	return cfg
}

func (h *harness) install(t *testing.T, sel string) InstallResult {
	t.Helper()
	s, err := toolchain.ParseSelector(sel)
	require.NoError(t, err)
	res, err := h.engine.Install(context.Background(), s)
	require.NoError(t, err)
	h.assertActiveInstalled(t)
	return res
}

func (h *harness) use(t *testing.T, sel string) UseResult {
	t.Helper()
	s, err := toolchain.ParseSelector(sel)
	require.NoError(t, err)
	res, err := h.engine.Use(context.Background(), s)
	require.NoError(t, err)
	h.assertActiveInstalled(t)
	return res
}

// assertActiveInstalled checks that the active toolchain is always a
// member of the installed set.
func (h *harness) assertActiveInstalled(t *testing.T) {
	t.Helper()
	cfg := h.config(t)
	if cfg.InUse != nil {
		assert.True(t, cfg.Installed.Contains(*cfg.InUse), "in-use %s not installed", cfg.InUse)
	}
}

func (h *harness) assertLinkedTo(t *testing.T, v toolchain.Version) {
	t.Helper()
	entries, err := h.links.Entries()
	require.NoError(t, err)
	assert.Equal(t, []string{"swift", "swiftc"}, entries)
	for _, name := range entries {
		target, err := os.Readlink(filepath.Join(h.home.BinDir, name))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(h.platform.ToolchainBinDir(v), name), target)
	}
}

func (h *harness) assertTempFilesGone(t *testing.T) {
	t.Helper()
	for _, p := range h.platform.tempPaths {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "temp file %s left behind", p)
	}
}

var (
	v562  = toolchain.Stable(5, 6, 2)
	v570  = toolchain.Stable(5, 7, 0)
	v571  = toolchain.Stable(5, 7, 1)
	v573  = toolchain.Stable(5, 7, 3)
	v580  = toolchain.Stable(5, 8, 0)
	snap1 = toolchain.Snapshot(toolchain.MainBranch, "2022-09-10")
	snap2 = toolchain.Snapshot(toolchain.MainBranch, "2022-10-22")
)

func TestInstallLatestIntoEmptyHomeActivatesIt(t *testing.T) {
	h := newHarness(t, v571, v573, v562)

	res := h.install(t, "latest")
	assert.Equal(t, v573, res.Version)
	assert.Equal(t, OutcomeInstalled, res.Outcome)
	assert.True(t, res.Activated)

	cfg := h.config(t)
	assert.True(t, cfg.Installed.Contains(v573))
	assert.True(t, cfg.IsInUse(v573))
	h.assertLinkedTo(t, v573)
	h.assertTempFilesGone(t)

	require.NotEmpty(t, h.progress)
	assert.Equal(t, int64(4), h.progress[len(h.progress)-1].Received)
}

func TestInstallPatchScopeThenUse(t *testing.T) {
	h := newHarness(t, v562, v570)

	first := h.install(t, "5.6.2")
	assert.True(t, first.Activated)
	second := h.install(t, "5.7.0")
	assert.False(t, second.Activated, "only the first install activates")
	assert.True(t, h.config(t).IsInUse(v562))

	h.use(t, "5.7")
	assert.True(t, h.config(t).IsInUse(v570))

	res := h.use(t, "5.6")
	assert.Equal(t, OutcomeSwitched, res.Outcome)
	assert.Equal(t, v562, res.Version)
	require.NotNil(t, res.Previous)
	assert.Equal(t, v570, *res.Previous)
	assert.True(t, h.config(t).IsInUse(v562))
	h.assertLinkedTo(t, v562)
}

func TestUseLatestSnapshotByDate(t *testing.T) {
	h := newHarness(t, snap1, snap2)
	h.install(t, "main-snapshot-2022-09-10")
	h.install(t, "main-snapshot-2022-10-22")
	assert.True(t, h.config(t).IsInUse(snap1))

	res := h.use(t, "main-snapshot")
	assert.Equal(t, snap2, res.Version)
	assert.True(t, h.config(t).IsInUse(snap2))
	h.assertLinkedTo(t, snap2)
}

func TestInstallPartialSnapshotResolvesRemotely(t *testing.T) {
	h := newHarness(t, snap1, snap2)
	res := h.install(t, "main-snapshot")
	assert.Equal(t, snap2, res.Version)
}

func TestInstallAlreadyInstalled(t *testing.T) {
	h := newHarness(t, v571)
	h.install(t, "5.7.1")
	calls := h.downloader.calls

	res := h.install(t, "5.7.1")
	assert.Equal(t, OutcomeAlreadyInstalled, res.Outcome)
	assert.Equal(t, calls, h.downloader.calls, "no download for an installed toolchain")
}

func TestUseUnknownVersionIsNoMatch(t *testing.T) {
	h := newHarness(t, v571)
	h.install(t, "5.7.1")
	before, err := os.ReadFile(h.home.ConfigFile)
	require.NoError(t, err)

	res := h.use(t, "9.9.9")
	assert.Equal(t, OutcomeNoMatch, res.Outcome)
	assert.True(t, res.Version.IsZero())

	after, err := os.ReadFile(h.home.ConfigFile)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestUseTwiceLeavesLinksUntouched(t *testing.T) {
	h := newHarness(t, v570, v571)
	h.install(t, "5.7.0")
	h.install(t, "5.7.1")

	res := h.use(t, "5.7.1")
	assert.Equal(t, OutcomeSwitched, res.Outcome)

	mtimes := map[string]time.Time{}
	for _, name := range []string{"swift", "swiftc"} {
		info, err := os.Lstat(filepath.Join(h.home.BinDir, name))
		require.NoError(t, err)
		mtimes[name] = info.ModTime()
	}
	cfgBefore, err := os.ReadFile(h.home.ConfigFile)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	res = h.use(t, "5.7.1")
	assert.Equal(t, OutcomeAlreadyInUse, res.Outcome)

	for name, mtime := range mtimes {
		info, err := os.Lstat(filepath.Join(h.home.BinDir, name))
		require.NoError(t, err)
		assert.Equal(t, mtime, info.ModTime(), name)
	}
	cfgAfter, err := os.ReadFile(h.home.ConfigFile)
	require.NoError(t, err)
	assert.Equal(t, string(cfgBefore), string(cfgAfter))
	h.assertLinkedTo(t, v571)
}

func TestUseRemovesLinksMissingFromNewToolchain(t *testing.T) {
	h := newHarness(t, v570, v571)
	h.install(t, "5.7.0")
	// 5.7.0 also ships docc; 5.7.1 does not.
	require.NoError(t, os.WriteFile(filepath.Join(h.platform.ToolchainBinDir(v570), "docc"), nil, 0o755))
	_, err := h.links.Apply(h.platform.ToolchainBinDir(v570))
	require.NoError(t, err)

	h.install(t, "5.7.1")
	h.use(t, "5.7.1")

	entries, err := h.links.Entries()
	require.NoError(t, err)
	assert.Equal(t, []string{"swift", "swiftc"}, entries)
}

func TestInstallNotFoundLeavesConfigUntouched(t *testing.T) {
	h := newHarness(t, v571)
	h.install(t, "5.7.1")
	before, err := os.ReadFile(h.home.ConfigFile)
	require.NoError(t, err)

	sel, err := toolchain.ParseSelector("5.99.0")
	require.NoError(t, err)
	_, err = h.engine.Install(context.Background(), sel)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, toolchain.Stable(5, 99, 0), nf.Version)
	assert.Equal(t, "toolchain 5.99.0 does not exist", nf.Error())

	after, err := os.ReadFile(h.home.ConfigFile)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))

	_, err = os.Stat(h.home.ToolchainDir(toolchain.Stable(5, 99, 0)))
	assert.True(t, os.IsNotExist(err))
	h.assertTempFilesGone(t)
}

func TestInstallPartialWithoutRemoteMatch(t *testing.T) {
	h := newHarness(t, v571)
	sel, err := toolchain.ParseSelector("5.99")
	require.NoError(t, err)
	_, err = h.engine.Install(context.Background(), sel)
	var nm *NoRemoteMatchError
	require.ErrorAs(t, err, &nm)
	assert.Equal(t, 0, h.downloader.calls)
}

func TestInstallTransportErrorAborts(t *testing.T) {
	h := newHarness(t, v571)
	h.downloader.fail = &remote.TransportError{URL: "x", StatusCode: 503}

	sel, err := toolchain.ParseSelector("5.7.1")
	require.NoError(t, err)
	_, err = h.engine.Install(context.Background(), sel)
	var te *remote.TransportError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, err.Error(), "download 5.7.1")
	assert.Equal(t, 0, h.config(t).Installed.Len())
}

func TestInstallerFailureLeavesNoState(t *testing.T) {
	h := newHarness(t, v571)
	h.platform.failInstall = errors.New("disk full")

	sel, err := toolchain.ParseSelector("5.7.1")
	require.NoError(t, err)
	_, err = h.engine.Install(context.Background(), sel)

	var ie *platform.InstallError
	require.ErrorAs(t, err, &ie)
	cfg := h.config(t)
	assert.Equal(t, 0, cfg.Installed.Len())
	assert.Nil(t, cfg.InUse)
	h.assertTempFilesGone(t)
}

func TestUninstallActiveSwitchesToLatestStable(t *testing.T) {
	h := newHarness(t, v562, v571, snap2)
	h.install(t, "5.6.2")
	h.install(t, "5.7.1")
	h.install(t, "main-snapshot-2022-10-22")
	h.use(t, "main-snapshot")

	res, err := h.engine.Uninstall(context.Background(), snap2)
	require.NoError(t, err)
	assert.True(t, res.WasActive)
	require.NotNil(t, res.Active)
	assert.Equal(t, v571, *res.Active)
	assert.True(t, h.config(t).IsInUse(v571))
	h.assertLinkedTo(t, v571)
	h.assertActiveInstalled(t)

	_, err = os.Stat(h.home.ToolchainDir(snap2))
	assert.True(t, os.IsNotExist(err))
}

func TestUninstallFallsBackToNewestSnapshot(t *testing.T) {
	h := newHarness(t, v571, snap1, snap2)
	h.install(t, "5.7.1")
	h.install(t, "main-snapshot-2022-09-10")
	h.install(t, "main-snapshot-2022-10-22")

	res, err := h.engine.Uninstall(context.Background(), v571)
	require.NoError(t, err)
	require.NotNil(t, res.Active)
	assert.Equal(t, snap2, *res.Active)
}

func TestUninstallLastLeavesNothingActive(t *testing.T) {
	h := newHarness(t, v571)
	h.install(t, "5.7.1")

	sel, err := toolchain.ParseSelector("5.7")
	require.NoError(t, err)
	res, err := h.engine.UninstallMatching(context.Background(), sel, false)
	require.NoError(t, err)
	assert.Equal(t, []toolchain.Version{v571}, res.Removed)
	assert.Nil(t, res.Active)

	cfg := h.config(t)
	assert.Nil(t, cfg.InUse)
	assert.Equal(t, 0, cfg.Installed.Len())
	entries, err := h.links.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUninstallInactiveKeepsActive(t *testing.T) {
	h := newHarness(t, v562, v571)
	h.install(t, "5.6.2")
	h.install(t, "5.7.1")

	res, err := h.engine.Uninstall(context.Background(), v571)
	require.NoError(t, err)
	assert.False(t, res.WasActive)
	require.NotNil(t, res.Active)
	assert.Equal(t, v562, *res.Active)
	h.assertLinkedTo(t, v562)
}

func TestUninstallMatchingAll(t *testing.T) {
	h := newHarness(t, v562, v570, v571, v580)
	for _, s := range []string{"5.6.2", "5.7.0", "5.7.1", "5.8.0"} {
		h.install(t, s)
	}
	h.use(t, "5.7.1")

	sel, err := toolchain.ParseSelector("5.7")
	require.NoError(t, err)
	res, err := h.engine.UninstallMatching(context.Background(), sel, true)
	require.NoError(t, err)
	assert.Equal(t, []toolchain.Version{v570, v571}, res.Removed)
	require.NotNil(t, res.Active)
	assert.Equal(t, v580, *res.Active)

	list, err := h.engine.List(nil)
	require.NoError(t, err)
	var names []string
	for _, e := range list.Entries {
		names = append(names, e.Version.Name())
	}
	assert.Equal(t, []string{"5.6.2", "5.8.0"}, names)
}

func TestUninstallNoMatch(t *testing.T) {
	h := newHarness(t, v571)
	h.install(t, "5.7.1")

	res, err := h.engine.Uninstall(context.Background(), v562)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMatch, res.Outcome)
	require.NotNil(t, res.Active)
	assert.Equal(t, v571, *res.Active)
}

func TestListFiltersAndMarksActive(t *testing.T) {
	h := newHarness(t, v562, v571, snap1)
	h.install(t, "5.7.1")
	h.install(t, "5.6.2")
	h.install(t, "main-snapshot-2022-09-10")

	list, err := h.engine.List(nil)
	require.NoError(t, err)
	require.Len(t, list.Entries, 3)
	assert.Equal(t, v562, list.Entries[0].Version)
	assert.Equal(t, v571, list.Entries[1].Version)
	assert.True(t, list.Entries[1].InUse)
	assert.Equal(t, snap1, list.Entries[2].Version)

	sel, err := toolchain.ParseSelector("main-snapshot")
	require.NoError(t, err)
	list, err = h.engine.List(&sel)
	require.NoError(t, err)
	require.Len(t, list.Entries, 1)
	assert.Equal(t, snap1, list.Entries[0].Version)
}

func TestActiveAlwaysInstalledAcrossSequence(t *testing.T) {
	h := newHarness(t, v562, v570, v571, snap1, snap2)
	steps := []func(){
		func() { h.install(t, "5.7.1") },
		func() { h.install(t, "main-snapshot") },
		func() { h.use(t, "main-snapshot") },
		func() { _, _ = h.engine.Uninstall(context.Background(), snap2) },
		func() { h.install(t, "5.6.2") },
		func() { h.use(t, "5") },
		func() { _, _ = h.engine.Uninstall(context.Background(), v571) },
		func() { h.install(t, "main-snapshot-2022-09-10") },
		func() { _, _ = h.engine.Uninstall(context.Background(), v562) },
		func() { _, _ = h.engine.Uninstall(context.Background(), snap1) },
	}
	for _, step := range steps {
		step()
		h.assertActiveInstalled(t)
		cfg := h.config(t)
		if v, ok := cfg.InUseVersion(); ok {
			h.assertLinkedTo(t, v)
		}
	}
	cfg := h.config(t)
	assert.Nil(t, cfg.InUse)
	assert.Equal(t, 0, cfg.Installed.Len())
}

func TestMutatingOpsRefuseInconsistentState(t *testing.T) {
	h := newHarness(t, v571)
	h.install(t, "5.7.1")
	require.NoError(t, os.MkdirAll(filepath.Join(h.platform.ToolchainBinDir(v580)), 0o755))

	sel, err := toolchain.ParseSelector("5.7.1")
	require.NoError(t, err)
	_, err = h.engine.Use(context.Background(), sel)

	var ie *InconsistencyError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, []string{"5.8.0"}, ie.Orphaned)
	assert.Empty(t, ie.Missing)
	assert.Contains(t, ie.Error(), "doctor --repair")
}

func TestDoctorAndRepair(t *testing.T) {
	h := newHarness(t, v562, v571)
	h.install(t, "5.7.1")
	h.install(t, "5.6.2")

	// 5.7.1 vanishes, 5.8.0 appears unrecorded, an install was interrupted.
	require.NoError(t, os.RemoveAll(h.home.ToolchainDir(v571)))
	require.NoError(t, os.MkdirAll(h.platform.ToolchainBinDir(v580), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(h.platform.ToolchainBinDir(v580), "swift"), nil, 0o755))
	require.NoError(t, os.MkdirAll(h.home.StagingDir(v573), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(h.home.ToolchainsDir, "scratch"), 0o755))

	report, err := h.engine.Doctor(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Healthy())
	assert.Equal(t, []toolchain.Version{v571}, report.Missing)
	sort.Strings(report.Orphaned)
	assert.Equal(t, []string{"5.8.0", "scratch"}, report.Orphaned)
	assert.Equal(t, []string{paths.StagingPrefix + "5.7.3"}, report.Staging)

	report, err = h.engine.Repair(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Missing)
	assert.Equal(t, []string{"scratch"}, report.Orphaned)
	assert.Empty(t, report.Staging)
	assert.Empty(t, report.LinkProblems)
	assert.NotEmpty(t, report.Actions)

	cfg := h.config(t)
	assert.False(t, cfg.Installed.Contains(v571))
	assert.True(t, cfg.Installed.Contains(v580))
	require.NotNil(t, cfg.InUse)
	assert.Equal(t, v580, *cfg.InUse, "newest stable becomes active once the active toolchain is forgotten")
}

func TestDoctorWarnsWhenPathShadowsBin(t *testing.T) {
	h := newHarness(t, v571)
	h.install(t, "5.7.1")
	h.engine.lookPath = func(string) (string, error) { return "/usr/bin/swift", nil }

	report, err := h.engine.Doctor(context.Background())
	require.NoError(t, err)
	assert.Contains(t, report.PathWarning, "/usr/bin/swift")

	h.engine.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	report, err = h.engine.Doctor(context.Background())
	require.NoError(t, err)
	assert.Contains(t, report.PathWarning, "not on PATH")
}

func TestHealthyHomeReportsNothing(t *testing.T) {
	h := newHarness(t, v571)
	h.install(t, "5.7.1")
	report, err := h.engine.Doctor(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Healthy(), "%+v", report)
}

func TestMutatingOpWaitsForLock(t *testing.T) {
	h := newHarness(t, v571)
	release, err := acquireLock(context.Background(), h.home.LockFile)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	sel, err := toolchain.ParseSelector("5.7.1")
	require.NoError(t, err)
	_, err = h.engine.Install(ctx, sel)
	require.Error(t, err)
	assert.ErrorIs(t, err, errLocked)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	h.install(t, "5.7.1")
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
