package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// FetcherConfig controls the single-fetch navigation sequence.
type FetcherConfig struct {
	BaseURL      string
	SearchPhrase string
	// ResultsSelector is the container that must appear before content is read.
	ResultsSelector string
	NavTimeout      time.Duration
	WaitTimeout     time.Duration
	PreNavDelay     DelayRange
	PostLoadDelay   DelayRange
	// HostMinInterval is a hard floor between navigations, enforced under the
	// randomized pacing. Zero disables it.
	HostMinInterval time.Duration
}

// scrollStep is one simulated scroll gesture followed by a reading pause.
type scrollStep struct {
	pixels int
	pause  DelayRange
}

// ChromedpFetcher fetches one directory page at a time against a session,
// pacing navigation and scrolling to resemble organic browsing.
type ChromedpFetcher struct {
	cfg       FetcherConfig
	pacer     Pacer
	extractor Extractor
	floor     *rate.Limiter
	scrolls   []scrollStep
	logger    *zap.Logger
}

// NewChromedpFetcher builds a fetcher. The extractor runs on every rendered
// page; the pacer supplies all randomized delays.
func NewChromedpFetcher(cfg FetcherConfig, pacer Pacer, extractor Extractor, logger *zap.Logger) *ChromedpFetcher {
	if cfg.ResultsSelector == "" {
		cfg.ResultsSelector = ".search-results"
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var floor *rate.Limiter
	if cfg.HostMinInterval > 0 {
		floor = rate.NewLimiter(rate.Every(cfg.HostMinInterval), 1)
	}
	return &ChromedpFetcher{
		cfg:       cfg,
		pacer:     pacer,
		extractor: extractor,
		floor:     floor,
		scrolls: []scrollStep{
			{pixels: 300, pause: DelayRange{Min: 500 * time.Millisecond, Max: 1200 * time.Millisecond}},
			{pixels: 400, pause: DelayRange{Min: 300 * time.Millisecond, Max: 800 * time.Millisecond}},
			{pixels: 200},
		},
		logger: logger,
	}
}

// Fetch navigates to the page for (regionCode, page), waits for the results
// container, scrolls through the content, and returns the classified outcome.
// Timeouts and navigation errors are returned as outcomes, never raised.
func (f *ChromedpFetcher) Fetch(ctx context.Context, s Session, regionCode string, page int) Outcome {
	TotalPagesFetched.Inc()

	f.pacer.Wait(ctx, f.cfg.PreNavDelay)
	if f.floor != nil {
		if err := f.floor.Wait(ctx); err != nil {
			return failure(fmt.Errorf("host pacing floor: %w", err))
		}
	}

	pageURL := BuildSearchURL(f.cfg.BaseURL, f.cfg.SearchPhrase, regionCode, page)
	f.logger.Info("fetching page",
		zap.String("region", regionCode),
		zap.Int("page", page),
		zap.String("url", pageURL),
	)

	if err := f.run(s, f.cfg.NavTimeout, chromedp.Navigate(pageURL)); err != nil {
		f.logger.Warn("navigation failed", zap.String("region", regionCode), zap.Int("page", page), zap.Error(err))
		return failure(err)
	}
	if err := f.run(s, f.cfg.WaitTimeout, chromedp.WaitVisible(f.cfg.ResultsSelector, chromedp.ByQuery)); err != nil {
		f.logger.Warn("results container never appeared",
			zap.String("region", regionCode), zap.Int("page", page), zap.Error(err))
		return failure(err)
	}

	// Reading pause plus incremental scrolling before content is captured.
	f.pacer.Wait(ctx, f.cfg.PostLoadDelay)
	for _, step := range f.scrolls {
		expr := fmt.Sprintf("window.scrollBy(0, %d)", step.pixels)
		if err := f.run(s, f.cfg.NavTimeout, chromedp.Evaluate(expr, nil)); err != nil {
			return failure(err)
		}
		f.pacer.Wait(ctx, step.pause)
	}

	var html string
	if err := f.run(s, f.cfg.NavTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return failure(err)
	}

	listings, hasNext := f.extractor.Extract(html, regionCode)
	if len(listings) == 0 {
		f.logger.Warn("no listings on page", zap.String("region", regionCode), zap.Int("page", page))
		return Outcome{Kind: OutcomeEmpty}
	}
	f.logger.Info("extracted listings",
		zap.String("region", regionCode), zap.Int("page", page), zap.Int("count", len(listings)))
	return Outcome{Kind: OutcomeContent, Listings: listings, HasNext: hasNext}
}

func (f *ChromedpFetcher) run(s Session, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.Context(), timeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func failure(err error) Outcome {
	kind := OutcomeNavigationError
	if errors.Is(err, context.DeadlineExceeded) {
		kind = OutcomeTimeout
	}
	TotalFetchFailures.WithLabelValues(kind.String()).Inc()
	return Outcome{Kind: kind, Err: err}
}
