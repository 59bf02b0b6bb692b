package toolchain

import (
	"context"
	"fmt"
)

// Resolve picks the best candidate for sel: the newest stable release for
// latest and partial stable selectors, the newest snapshot by date for a
// dateless snapshot selector, or the exact version for fully specified
// selectors. ok is false when nothing matches.
func Resolve(sel Selector, candidates []Version) (Version, bool) {
	var (
		best  Version
		found bool
	)
	for _, v := range candidates {
		if !sel.Matches(v) {
			continue
		}
		if !found || newer(v, best) {
			best, found = v, true
		}
	}
	return best, found
}

// newer compares two versions that matched the same selector and are
// therefore in the same family (and, for snapshots, on the same branch).
func newer(a, b Version) bool {
	if a.IsStableRelease() {
		return CompareStable(a, b) > 0
	}
	if a.Branch != b.Branch {
		return compareBranch(a.Branch, b.Branch) > 0
	}
	return a.Date > b.Date
}

// Page is one batch of remote candidates. An empty Next means the feed is
// exhausted.
type Page struct {
	Versions []Version
	Next     string
}

// Feed pages through remotely available versions. The first page is
// requested with an empty token.
type Feed interface {
	Page(ctx context.Context, token string) (Page, error)
}

// FeedFunc adapts a function to Feed.
type FeedFunc func(ctx context.Context, token string) (Page, error)

// Page implements Feed.
func (f FeedFunc) Page(ctx context.Context, token string) (Page, error) {
	return f(ctx, token)
}

// descending is implemented by feeds that list each family newest first.
type descending interface {
	Descending() bool
}

// maxPages bounds paging against a misbehaving feed that never ends.
const maxPages = 100

// ResolveRemote pages through feed until a page yields a match, a
// newest-first feed passes below the selector's scope, or the feed is
// exhausted. The best match within the first matching page wins, using the
// same tie-break rules as Resolve.
func ResolveRemote(ctx context.Context, sel Selector, feed Feed) (Version, bool, error) {
	ordered := false
	if d, ok := feed.(descending); ok {
		ordered = d.Descending()
	}

	token := ""
	for i := 0; i < maxPages; i++ {
		if err := ctx.Err(); err != nil {
			return Version{}, false, err
		}
		page, err := feed.Page(ctx, token)
		if err != nil {
			return Version{}, false, fmt.Errorf("resolve %s: %w", sel, err)
		}
		if v, ok := Resolve(sel, page.Versions); ok {
			return v, true, nil
		}
		if ordered {
			for _, v := range page.Versions {
				if sel.below(v) {
					return Version{}, false, nil
				}
			}
		}
		if page.Next == "" {
			return Version{}, false, nil
		}
		token = page.Next
	}
	return Version{}, false, fmt.Errorf("resolve %s: feed exceeded %d pages", sel, maxPages)
}
