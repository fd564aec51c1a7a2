package crawler

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/listingharvest/crawler/internal/fingerprint"
)

// fakeSession records close calls and reports liveness back to its manager.
type fakeSession struct {
	fp      fingerprint.Fingerprint
	mgr     *fakeSessionManager
	closed  int
	live    bool
	openSeq int
}

func (s *fakeSession) Context() context.Context             { return context.Background() }
func (s *fakeSession) Fingerprint() fingerprint.Fingerprint { return s.fp }

func (s *fakeSession) Close() {
	s.closed++
	if s.live {
		s.live = false
		s.mgr.liveCount--
	}
}

// fakeSessionManager hands out sessions with independently drawn fingerprints
// and tracks how many are live at once.
type fakeSessionManager struct {
	gen       *fingerprint.Generator
	opened    []*fakeSession
	liveCount int
	maxLive   int
	openErr   error
	failAfter int // fail opens once this many have succeeded; 0 = never
}

func newFakeSessionManager() *fakeSessionManager {
	return &fakeSessionManager{
		gen: fingerprint.NewGenerator(fingerprint.Pools{}, rand.New(rand.NewSource(99))),
	}
}

func (m *fakeSessionManager) Open(_ context.Context) (Session, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	if m.failAfter > 0 && len(m.opened) >= m.failAfter {
		return nil, errors.New("browser spawn failed")
	}
	s := &fakeSession{fp: m.gen.Generate(), mgr: m, live: true, openSeq: len(m.opened)}
	m.opened = append(m.opened, s)
	m.liveCount++
	if m.liveCount > m.maxLive {
		m.maxLive = m.liveCount
	}
	return s, nil
}

func (m *fakeSessionManager) requireNoLeaks(t *testing.T) {
	t.Helper()
	require.Zero(t, m.liveCount, "every opened session must be closed")
	require.LessOrEqual(t, m.maxLive, 1, "at most one session may be open at a time")
	for _, s := range m.opened {
		require.GreaterOrEqual(t, s.closed, 1)
	}
}

type fetchCall struct {
	session Session
	region  string
	page    int
}

// scriptedFetcher replays a fixed outcome sequence and records each call.
type scriptedFetcher struct {
	outcomes []Outcome
	calls    []fetchCall
}

func (f *scriptedFetcher) Fetch(_ context.Context, s Session, regionCode string, page int) Outcome {
	f.calls = append(f.calls, fetchCall{session: s, region: regionCode, page: page})
	if len(f.outcomes) == 0 {
		return Outcome{Kind: OutcomeEmpty}
	}
	out := f.outcomes[0]
	f.outcomes = f.outcomes[1:]
	return out
}

// nopPacer skips all delays so controller tests run instantly.
type nopPacer struct{}

func (nopPacer) Wait(context.Context, DelayRange) time.Duration { return 0 }

func contentPage(region string, n int, hasNext bool) Outcome {
	listings := make([]Listing, n)
	for i := range listings {
		listings[i] = Listing{Name: "biz", Region: region}
	}
	return Outcome{Kind: OutcomeContent, Listings: listings, HasNext: hasNext}
}

func newTestController(mgr *fakeSessionManager, fetcher *scriptedFetcher, cfg ControllerConfig) *Controller {
	return NewController(mgr, fetcher, nopPacer{}, rand.New(rand.NewSource(5)), cfg, nil)
}

func TestControllerStopsMidPageWhenTargetMet(t *testing.T) {
	t.Parallel()

	mgr := newFakeSessionManager()
	fetcher := &scriptedFetcher{outcomes: []Outcome{contentPage("FL", 8, true)}}
	ctrl := newTestController(mgr, fetcher, ControllerConfig{})

	listings, err := ctrl.CrawlRegion(context.Background(), Region{Code: "FL", ExpectedYield: 10, TargetCount: 5})
	require.NoError(t, err)
	require.Len(t, listings, 5, "target met mid-page caps the appended listings")
	require.Len(t, fetcher.calls, 1)
	mgr.requireNoLeaks(t)
}

func TestControllerRetriesBelowExpectedYield(t *testing.T) {
	t.Parallel()

	mgr := newFakeSessionManager()
	fetcher := &scriptedFetcher{outcomes: []Outcome{
		{Kind: OutcomeTimeout, Err: context.DeadlineExceeded},
		contentPage("FL", 20, true),
		contentPage("FL", 40, true),
	}}
	ctrl := newTestController(mgr, fetcher, ControllerConfig{})

	listings, err := ctrl.CrawlRegion(context.Background(), Region{Code: "FL", ExpectedYield: 100, TargetCount: 50})
	require.NoError(t, err)
	require.Len(t, listings, 50)

	// Page 1 fails, is retried once on a fresh session, then the crawl
	// continues to page 2.
	require.Equal(t, []int{1, 1, 2}, pagesOf(fetcher.calls))
	require.NotSame(t, fetcher.calls[0].session, fetcher.calls[1].session,
		"retry must run against a freshly opened session")
	mgr.requireNoLeaks(t)
}

func TestControllerSuppressesRetryPastExpectedYield(t *testing.T) {
	t.Parallel()

	mgr := newFakeSessionManager()
	fetcher := &scriptedFetcher{outcomes: []Outcome{
		contentPage("AZ", 5, true),
		{Kind: OutcomeEmpty},
	}}
	ctrl := newTestController(mgr, fetcher, ControllerConfig{})

	listings, err := ctrl.CrawlRegion(context.Background(), Region{Code: "AZ", ExpectedYield: 5, TargetCount: 50})
	require.NoError(t, err)
	require.Len(t, listings, 5, "yield reached suppresses retry even though target unmet")
	require.Equal(t, []int{1, 2}, pagesOf(fetcher.calls), "the empty page must not be retried")
	require.Len(t, mgr.opened, 1)
	mgr.requireNoLeaks(t)
}

func TestControllerRetryBudgetExhaustedStopsRegion(t *testing.T) {
	t.Parallel()

	mgr := newFakeSessionManager()
	fetcher := &scriptedFetcher{outcomes: []Outcome{
		{Kind: OutcomeTimeout, Err: context.DeadlineExceeded},
		{Kind: OutcomeNavigationError, Err: errors.New("net::ERR_CONNECTION_RESET")},
		{Kind: OutcomeTimeout, Err: context.DeadlineExceeded},
	}}
	ctrl := newTestController(mgr, fetcher, ControllerConfig{RetryBudget: 2})

	listings, err := ctrl.CrawlRegion(context.Background(), Region{Code: "NY", ExpectedYield: 100, TargetCount: 50})
	require.NoError(t, err, "budget exhaustion is not fatal to the campaign")
	require.Empty(t, listings)
	require.Equal(t, []int{1, 1, 1}, pagesOf(fetcher.calls), "two retries after the initial attempt")
	require.Len(t, mgr.opened, 3, "each retry opens a fresh session")
	mgr.requireNoLeaks(t)
}

func TestControllerRotatesSessionAfterThreshold(t *testing.T) {
	t.Parallel()

	mgr := newFakeSessionManager()
	fetcher := &scriptedFetcher{outcomes: []Outcome{
		contentPage("CA", 1, true),
		contentPage("CA", 1, true),
		contentPage("CA", 1, true),
		contentPage("CA", 1, true),
		contentPage("CA", 1, true),
	}}
	// Pin the rotation threshold to exactly 2 pages.
	ctrl := newTestController(mgr, fetcher, ControllerConfig{
		MaxPages:    5,
		RotationMin: 2,
		RotationMax: 2,
	})

	listings, err := ctrl.CrawlRegion(context.Background(), Region{Code: "CA", ExpectedYield: 100, TargetCount: 50})
	require.NoError(t, err)
	require.Len(t, listings, 5)

	// Sessions rotate after pages 2 and 4 even though every fetch succeeded.
	require.Len(t, mgr.opened, 3)
	require.Same(t, fetcher.calls[0].session, fetcher.calls[1].session)
	require.NotSame(t, fetcher.calls[1].session, fetcher.calls[2].session)
	require.Same(t, fetcher.calls[2].session, fetcher.calls[3].session)
	require.NotSame(t, fetcher.calls[3].session, fetcher.calls[4].session)
	mgr.requireNoLeaks(t)
}

// sequenceSource feeds a fixed series of values into math/rand so tests can
// pin the exact rotation thresholds the controller draws. A value of k<<32
// makes rng.Intn(3) return k.
type sequenceSource struct {
	vals []int64
	i    int
}

func (s *sequenceSource) Int63() int64 {
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v
}

func (s *sequenceSource) Seed(int64) {}

func thresholdRand(draws ...int64) *rand.Rand {
	vals := make([]int64, len(draws))
	for i, d := range draws {
		vals[i] = (d - 2) << 32
	}
	return rand.New(&sequenceSource{vals: vals})
}

func TestControllerRedrawsRotationThresholdAfterEachRotation(t *testing.T) {
	t.Parallel()

	mgr := newFakeSessionManager()
	var outcomes []Outcome
	for i := 0; i < 12; i++ {
		outcomes = append(outcomes, contentPage("CA", 1, true))
	}
	fetcher := &scriptedFetcher{outcomes: outcomes}
	ctrl := NewController(mgr, fetcher, nopPacer{}, thresholdRand(2, 4, 3, 2, 4), ControllerConfig{
		MaxPages:    12,
		RotationMin: 2,
		RotationMax: 4,
	}, nil)

	listings, err := ctrl.CrawlRegion(context.Background(), Region{Code: "CA", ExpectedYield: 100, TargetCount: 50})
	require.NoError(t, err)
	require.Len(t, listings, 12)

	// Each session serves exactly as many pages as its own freshly drawn
	// threshold: 2, 4, 3, then 2. A controller that reused the first draw
	// would rotate every 2 pages instead.
	require.Equal(t, []int{2, 4, 3, 2, 1}, sessionRunsOf(fetcher.calls))
	require.Len(t, mgr.opened, 5)
	mgr.requireNoLeaks(t)
}

func TestControllerRedrawsRotationThresholdAfterRetry(t *testing.T) {
	t.Parallel()

	mgr := newFakeSessionManager()
	fetcher := &scriptedFetcher{outcomes: []Outcome{
		contentPage("GA", 1, true),
		{Kind: OutcomeTimeout},
		contentPage("GA", 1, true),
		contentPage("GA", 1, true),
		contentPage("GA", 1, true),
		contentPage("GA", 1, true),
	}}
	ctrl := NewController(mgr, fetcher, nopPacer{}, thresholdRand(4, 2, 4), ControllerConfig{
		MaxPages:    5,
		RotationMin: 2,
		RotationMax: 4,
	}, nil)

	listings, err := ctrl.CrawlRegion(context.Background(), Region{Code: "GA", ExpectedYield: 100, TargetCount: 50})
	require.NoError(t, err)
	require.Len(t, listings, 5)
	require.Equal(t, []int{1, 2, 2, 3, 4, 5}, pagesOf(fetcher.calls))

	// The retry opens a fresh session whose exposure window runs on a new
	// threshold (2), not the remainder of the original draw (4), so it
	// rotates after serving pages 2 and 3.
	require.NotSame(t, fetcher.calls[1].session, fetcher.calls[2].session)
	require.Same(t, fetcher.calls[2].session, fetcher.calls[3].session)
	require.NotSame(t, fetcher.calls[3].session, fetcher.calls[4].session)
	require.Len(t, mgr.opened, 3)
	mgr.requireNoLeaks(t)
}

func TestControllerStopsWhenNoNextPage(t *testing.T) {
	t.Parallel()

	mgr := newFakeSessionManager()
	fetcher := &scriptedFetcher{outcomes: []Outcome{contentPage("MA", 3, false)}}
	ctrl := newTestController(mgr, fetcher, ControllerConfig{})

	listings, err := ctrl.CrawlRegion(context.Background(), Region{Code: "MA", ExpectedYield: 100, TargetCount: 50})
	require.NoError(t, err)
	require.Len(t, listings, 3)
	require.Len(t, fetcher.calls, 1)
	mgr.requireNoLeaks(t)
}

func TestControllerHonorsPageCeiling(t *testing.T) {
	t.Parallel()

	mgr := newFakeSessionManager()
	var outcomes []Outcome
	for i := 0; i < 10; i++ {
		outcomes = append(outcomes, contentPage("TX", 1, true))
	}
	fetcher := &scriptedFetcher{outcomes: outcomes}
	ctrl := newTestController(mgr, fetcher, ControllerConfig{MaxPages: 3, RotationMin: 9, RotationMax: 9})

	listings, err := ctrl.CrawlRegion(context.Background(), Region{Code: "TX", ExpectedYield: 100, TargetCount: 50})
	require.NoError(t, err)
	require.Len(t, listings, 3)
	require.Equal(t, []int{1, 2, 3}, pagesOf(fetcher.calls))
	mgr.requireNoLeaks(t)
}

func TestControllerSessionClosedOnOpenFailureMidCrawl(t *testing.T) {
	t.Parallel()

	mgr := newFakeSessionManager()
	mgr.failAfter = 1
	fetcher := &scriptedFetcher{outcomes: []Outcome{
		{Kind: OutcomeTimeout, Err: context.DeadlineExceeded},
	}}
	ctrl := newTestController(mgr, fetcher, ControllerConfig{})

	listings, err := ctrl.CrawlRegion(context.Background(), Region{Code: "FL", ExpectedYield: 100, TargetCount: 50})
	require.Error(t, err)
	require.Empty(t, listings)
	mgr.requireNoLeaks(t)
}

func TestControllerInitialOpenFailure(t *testing.T) {
	t.Parallel()

	mgr := newFakeSessionManager()
	mgr.openErr = errors.New("chrome not found")
	ctrl := newTestController(mgr, &scriptedFetcher{}, ControllerConfig{})

	listings, err := ctrl.CrawlRegion(context.Background(), Region{Code: "FL", ExpectedYield: 10, TargetCount: 5})
	require.Error(t, err)
	require.Empty(t, listings)
}

func pagesOf(calls []fetchCall) []int {
	pages := make([]int, len(calls))
	for i, c := range calls {
		pages[i] = c.page
	}
	return pages
}

// sessionRunsOf collapses the call log into the number of consecutive fetches
// each session served before being replaced.
func sessionRunsOf(calls []fetchCall) []int {
	var runs []int
	for i, c := range calls {
		if i == 0 || c.session != calls[i-1].session {
			runs = append(runs, 1)
			continue
		}
		runs[len(runs)-1]++
	}
	return runs
}
