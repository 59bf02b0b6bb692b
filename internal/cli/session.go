package cli

import (
	"errors"
	"fmt"
	"io"
	"log"

	"swiftly/internal/config"
	"swiftly/internal/engine"
	"swiftly/internal/logx"
	"swiftly/internal/paths"
	"swiftly/internal/platform"
	"swiftly/internal/remote"
	"swiftly/internal/symlink"
)

// logsToKeep bounds the number of log files kept in the home.
const logsToKeep = 20

// session holds everything one command needs. Close releases the log file.
type session struct {
	home     paths.Home
	settings config.Settings
	store    config.Store
	logger   *log.Logger
	closer   io.Closer
	engine   *engine.Engine
}

type sessionOptions struct {
	// token overrides the GitHub token from the environment and settings.
	token string
	// progress receives download progress during Install.
	progress engine.ProgressFunc
}

func openSession(opts sessionOptions) (*session, error) {
	home, err := paths.Resolve()
	if err != nil {
		return nil, err
	}
	settings, err := config.LoadSettings(home.SettingsFile)
	if err != nil {
		return nil, err
	}

	s := &session{
		home:     home,
		settings: settings,
		store:    config.NewStore(home.ConfigFile),
		logger:   logx.Discard(),
	}
	exists, err := paths.DirExists(home.Root)
	if err != nil {
		return nil, fmt.Errorf("stat swiftly home: %w", err)
	}
	if exists {
		logger, closer, err := logx.New(home)
		if err != nil {
			return nil, err
		}
		s.logger, s.closer = logger, closer
		if err := logx.Prune(home, logsToKeep); err != nil {
			s.logger.Printf("prune logs: %v", err)
		}
	}

	plat, err := s.platform()
	if err != nil {
		s.Close()
		return nil, err
	}

	client := remote.NewClient(settings.HTTPTimeout(), s.logger)
	client.HTMLIsNotFound = settings.HTMLNotFound()
	source := remote.NewGitHubSource(client, settings.GitHubAPIURL, settings.Token(opts.token), remote.NewReleaseCache(home.CacheDir))

	eng, err := engine.New(engine.Options{
		Home:       home,
		Store:      s.store,
		Platform:   plat,
		Source:     source,
		Downloader: client,
		Links:      symlink.NewManager(home.BinDir, s.logger),
		Logger:     s.logger,
		Progress:   opts.progress,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.engine = eng
	return s, nil
}

// platform rebuilds the platform a home was initialized with, and only
// probes the running system when there is no config yet.
func (s *session) platform() (platform.Platform, error) {
	cfg, err := s.store.Load()
	switch {
	case err == nil:
		return platform.ForDefinition(s.home, cfg.Platform, s.settings.DownloadBaseURL, s.logger), nil
	case errors.Is(err, config.ErrNotInitialized):
		return platform.Detect(s.home, s.settings.DownloadBaseURL, s.logger)
	default:
		return nil, err
	}
}

func (s *session) Close() {
	if s.closer != nil {
		s.closer.Close()
		s.closer = nil
	}
}
