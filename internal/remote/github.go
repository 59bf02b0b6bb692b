package remote

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"swiftly/internal/toolchain"
)

const (
	defaultGitHubAPI = "https://api.github.com"
	swiftRepo        = "apple/swift"
	githubPageSize   = 100
)

type githubRelease struct {
	TagName    string `json:"tag_name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

type githubTag struct {
	Name string `json:"name"`
}

// GitHubSource lists published Swift versions through the GitHub REST API.
type GitHubSource struct {
	Client  *Client
	BaseURL string
	Token   string
	Cache   *ReleaseCache
}

// NewGitHubSource returns a source against baseURL, or api.github.com when
// baseURL is empty.
func NewGitHubSource(client *Client, baseURL, token string, cache *ReleaseCache) *GitHubSource {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultGitHubAPI
	}
	return &GitHubSource{
		Client:  client,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Cache:   cache,
	}
}

func (s *GitHubSource) headers() map[string]string {
	h := map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
	}
	if s.Token != "" {
		h["Authorization"] = "Bearer " + s.Token
	}
	return h
}

func (s *GitHubSource) pageURL(resource, token string) (string, int, error) {
	page := 1
	if token != "" {
		n, err := strconv.Atoi(token)
		if err != nil || n < 1 {
			return "", 0, fmt.Errorf("invalid page token %q", token)
		}
		page = n
	}
	return fmt.Sprintf("%s/repos/%s/%s?per_page=%d&page=%d", s.BaseURL, swiftRepo, resource, githubPageSize, page), page, nil
}

func nextToken(page, count int) string {
	if count < githubPageSize {
		return ""
	}
	return strconv.Itoa(page + 1)
}

// Releases returns a feed of published stable releases. GitHub lists
// releases by publication date, and patch releases of older lines are
// published after newer lines, so the feed makes no ordering promise.
func (s *GitHubSource) Releases() toolchain.Feed {
	return toolchain.FeedFunc(s.releasesPage)
}

func (s *GitHubSource) releasesPage(ctx context.Context, token string) (toolchain.Page, error) {
	url, page, err := s.pageURL("releases", token)
	if err != nil {
		return toolchain.Page{}, err
	}

	releases, cached := []githubRelease(nil), false
	if page == 1 {
		releases, cached = s.Cache.load(url)
	}
	if !cached {
		releases, err = FetchJSON[[]githubRelease](ctx, s.Client, url, s.headers())
		if err != nil {
			return toolchain.Page{}, fmt.Errorf("list swift releases: %w", err)
		}
		if page == 1 {
			s.Cache.store(url, releases)
		}
	}

	versions := make([]toolchain.Version, 0, len(releases))
	for _, r := range releases {
		if r.Draft || r.Prerelease {
			continue
		}
		v, err := toolchain.ParseVersion(r.TagName)
		if err != nil || !v.IsStableRelease() {
			s.Client.logf("skipping release tag %q", r.TagName)
			continue
		}
		versions = append(versions, v)
	}
	return toolchain.Page{Versions: versions, Next: nextToken(page, len(releases))}, nil
}

// Snapshots returns a feed of development snapshot tags.
func (s *GitHubSource) Snapshots() toolchain.Feed {
	return snapshotFeed{s}
}

// snapshotFeed relies on the tags endpoint listing names in reverse
// lexical order, which for one branch prefix is newest date first.
type snapshotFeed struct {
	s *GitHubSource
}

func (f snapshotFeed) Descending() bool { return true }

func (f snapshotFeed) Page(ctx context.Context, token string) (toolchain.Page, error) {
	url, page, err := f.s.pageURL("tags", token)
	if err != nil {
		return toolchain.Page{}, err
	}
	tags, err := FetchJSON[[]githubTag](ctx, f.s.Client, url, f.s.headers())
	if err != nil {
		return toolchain.Page{}, fmt.Errorf("list swift tags: %w", err)
	}

	versions := make([]toolchain.Version, 0, len(tags))
	for _, t := range tags {
		if !strings.Contains(t.Name, "-SNAPSHOT-") {
			continue
		}
		v, err := toolchain.ParseVersion(t.Name)
		if err != nil || !v.IsSnapshot() {
			continue
		}
		versions = append(versions, v)
	}
	return toolchain.Page{Versions: versions, Next: nextToken(page, len(tags))}, nil
}
