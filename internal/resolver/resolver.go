// Package resolver defines UrlResolver (spec.md §4.7), the abstraction over
// the out-of-scope scraper. This package ships no scraping logic, only the
// interface and small test/CLI-friendly implementations.
package resolver

import "context"

// Resolver obtains a fresh direct media URL for a piece of opaque episode
// metadata. Implementations may be arbitrarily slow (network-bound); the
// manager treats any error as recoverable until the refresh budget (spec.md
// §4.4 step 4) is exhausted.
type Resolver interface {
	Resolve(ctx context.Context, episodeURL, gateID string, episodeNumber int) (string, error)
}

// Func adapts a plain function to Resolver, the common Go idiom for a
// single-method interface (mirrors http.HandlerFunc).
type Func func(ctx context.Context, episodeURL, gateID string, episodeNumber int) (string, error)

func (f Func) Resolve(ctx context.Context, episodeURL, gateID string, episodeNumber int) (string, error) {
	return f(ctx, episodeURL, gateID, episodeNumber)
}

// Static always resolves to the same URL, useful for tests and for callers
// that already have a direct (non-expiring) link.
type Static string

func (s Static) Resolve(ctx context.Context, episodeURL, gateID string, episodeNumber int) (string, error) {
	return string(s), nil
}
