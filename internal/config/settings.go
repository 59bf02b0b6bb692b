package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"swiftly/internal/paths"
)

// Settings holds user-tunable endpoints and network behaviour. It lives
// next to the config record; swiftly only writes it when it is absent.
type Settings struct {
	DownloadBaseURL string `yaml:"download_base_url" validate:"required,url"`
	GitHubAPIURL    string `yaml:"github_api_url" validate:"required,url"`
	GitHubToken     string `yaml:"github_token,omitempty"`
	HTTPTimeoutSec  int    `yaml:"http_timeout_s" validate:"min=1,max=3600"`
	// HTMLIsNotFound treats an HTML body on an archive download as a
	// missing toolchain; download.swift.org answers unknown paths that way.
	HTMLIsNotFound *bool `yaml:"html_is_not_found,omitempty"`
}

var settingsValidate = validator.New()

// DefaultSettings returns the baseline settings.
func DefaultSettings() Settings {
	return Settings{
		DownloadBaseURL: "https://download.swift.org",
		GitHubAPIURL:    "https://api.github.com",
		HTTPTimeoutSec:  30,
		HTMLIsNotFound:  boolPtr(true),
	}
}

// LoadSettings reads the YAML settings file if it exists, otherwise it
// returns the defaults.
func LoadSettings(path string) (Settings, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), nil
		}
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	s := DefaultSettings()
	if err := yaml.Unmarshal(contents, &s); err != nil {
		return Settings{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

// ApplyDefaults fills fields an explicit YAML value left empty.
func (s *Settings) ApplyDefaults() {
	defaults := DefaultSettings()
	s.DownloadBaseURL = strings.TrimRight(strings.TrimSpace(s.DownloadBaseURL), "/")
	s.GitHubAPIURL = strings.TrimRight(strings.TrimSpace(s.GitHubAPIURL), "/")
	if s.DownloadBaseURL == "" {
		s.DownloadBaseURL = defaults.DownloadBaseURL
	}
	if s.GitHubAPIURL == "" {
		s.GitHubAPIURL = defaults.GitHubAPIURL
	}
	if s.HTTPTimeoutSec == 0 {
		s.HTTPTimeoutSec = defaults.HTTPTimeoutSec
	}
	if s.HTMLIsNotFound == nil {
		s.HTMLIsNotFound = defaults.HTMLIsNotFound
	}
}

// Validate checks field constraints.
func (s Settings) Validate() error {
	if err := settingsValidate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			messages := make([]string, len(verrs))
			for i, fe := range verrs {
				messages[i] = fmt.Sprintf("%s fails %q", fe.Field(), fe.Tag())
			}
			return errors.New(strings.Join(messages, "; "))
		}
		return err
	}
	return nil
}

// HTTPTimeout returns the per-request timeout.
func (s Settings) HTTPTimeout() time.Duration {
	return time.Duration(s.HTTPTimeoutSec) * time.Second
}

// HTMLNotFound returns the effective HTML-as-missing flag.
func (s Settings) HTMLNotFound() bool {
	if s.HTMLIsNotFound == nil {
		return true
	}
	return *s.HTMLIsNotFound
}

// Token returns the GitHub token, preferring an explicit override, then
// GITHUB_TOKEN, then the settings file.
func (s Settings) Token(override string) string {
	if t := strings.TrimSpace(override); t != "" {
		return t
	}
	if t := strings.TrimSpace(os.Getenv("GITHUB_TOKEN")); t != "" {
		return t
	}
	return s.GitHubToken
}

// Marshal returns the YAML encoding of the settings.
func (s Settings) Marshal() ([]byte, error) {
	buf, err := yaml.Marshal(&s)
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	return buf, nil
}

// WriteDefaultSettings writes s to path unless a file is already there.
// It reports whether it wrote one.
func WriteDefaultSettings(path string, s Settings) (bool, error) {
	exists, err := paths.FileExists(path)
	if err != nil || exists {
		return false, err
	}
	buf, err := s.Marshal()
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("prepare settings directory: %w", err)
	}
	if err := writeAtomic(path, "settings-*.yaml", buf); err != nil {
		return false, err
	}
	return true, nil
}

func boolPtr(v bool) *bool {
	return &v
}
