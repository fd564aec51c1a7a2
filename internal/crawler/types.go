// Package crawler implements the crawl-orchestration engine: per-region page
// loops with retry, proactive session rotation, and randomized human pacing,
// coordinated across regions until a global listing target is met.
package crawler

import (
	"context"

	"github.com/listingharvest/crawler/internal/fingerprint"
)

// Listing is one extracted directory record. Immutable once extracted.
type Listing struct {
	Name       string
	Website    string
	Phone      string
	Categories string
	Region     string
	Relocated  bool
}

// Region is one independently crawled slice of the search space.
// ExpectedYield is the historical record count used to suppress retries once
// reached; TargetCount is assigned by the coordinator before the region runs.
type Region struct {
	Code          string
	ExpectedYield int
	TargetCount   int
}

// OutcomeKind classifies a single page fetch attempt.
type OutcomeKind int

// Fetch outcome kinds.
const (
	// OutcomeContent means the page rendered and yielded at least one listing.
	OutcomeContent OutcomeKind = iota
	// OutcomeEmpty means the page rendered but yielded no usable listings.
	OutcomeEmpty
	// OutcomeTimeout means navigation or the results-container wait timed out.
	OutcomeTimeout
	// OutcomeNavigationError covers every other navigation-level failure.
	OutcomeNavigationError
)

// String returns the outcome kind name for logs.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeContent:
		return "content"
	case OutcomeEmpty:
		return "empty"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeNavigationError:
		return "navigation_error"
	default:
		return "unknown"
	}
}

// Outcome is the result of one page fetch attempt. Listings and HasNext are
// only meaningful for OutcomeContent; Err carries the underlying cause for
// failure kinds and is diagnostic only.
type Outcome struct {
	Kind     OutcomeKind
	Listings []Listing
	HasNext  bool
	Err      error
}

// Session is a disposable fingerprinted browsing context, exclusively owned
// by the controller that opened it.
type Session interface {
	Context() context.Context
	Fingerprint() fingerprint.Fingerprint
	Close()
}

// SessionManager opens fresh sessions, each with an independently drawn
// fingerprint.
type SessionManager interface {
	Open(ctx context.Context) (Session, error)
}

// PageFetcher performs one navigation plus content-ready wait plus pacing
// sequence against a session.
type PageFetcher interface {
	Fetch(ctx context.Context, s Session, regionCode string, page int) Outcome
}

// Extractor parses rendered content into listings plus a has-next-page flag.
// Malformed content yields an empty slice, never a failure.
type Extractor interface {
	Extract(html, regionCode string) ([]Listing, bool)
}

// RecordWriter persists the final ordered listing sequence.
type RecordWriter interface {
	Write(ctx context.Context, listings []Listing) error
}
