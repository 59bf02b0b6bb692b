package remote

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const (
	releaseCacheFile = "releases.json"
	releaseCacheTTL  = 1 * time.Hour
)

// ReleaseCache keeps the first page of the releases feed on disk. Every
// failure is swallowed: a broken cache only costs a network round trip.
type ReleaseCache struct {
	Dir string
	TTL time.Duration
	Now func() time.Time
}

type releaseCacheEntry struct {
	URL       string          `json:"url"`
	FetchedAt time.Time       `json:"fetched_at"`
	Releases  []githubRelease `json:"releases"`
}

// NewReleaseCache returns a cache stored in dir with the default TTL.
func NewReleaseCache(dir string) *ReleaseCache {
	return &ReleaseCache{Dir: dir, TTL: releaseCacheTTL, Now: time.Now}
}

func (c *ReleaseCache) path() string {
	return filepath.Join(c.Dir, releaseCacheFile)
}

func (c *ReleaseCache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *ReleaseCache) ttl() time.Duration {
	if c.TTL > 0 {
		return c.TTL
	}
	return releaseCacheTTL
}

func (c *ReleaseCache) load(url string) ([]githubRelease, bool) {
	if c == nil || c.Dir == "" {
		return nil, false
	}
	data, err := os.ReadFile(c.path())
	if err != nil {
		return nil, false
	}
	var entry releaseCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	if entry.URL != url || c.now().Sub(entry.FetchedAt) > c.ttl() {
		return nil, false
	}
	return entry.Releases, true
}

func (c *ReleaseCache) store(url string, releases []githubRelease) {
	if c == nil || c.Dir == "" {
		return
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return
	}
	data, err := json.MarshalIndent(releaseCacheEntry{URL: url, FetchedAt: c.now(), Releases: releases}, "", "  ")
	if err != nil {
		return
	}
	tmp, err := os.CreateTemp(c.Dir, "releases-*.json")
	if err != nil {
		return
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return
	}
	if err := tmp.Close(); err != nil {
		return
	}
	_ = os.Rename(tmp.Name(), c.path())
}
