package crawler

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// ControllerConfig holds the retry, rotation, and pacing policy knobs for a
// region crawl.
type ControllerConfig struct {
	// MaxPages caps the page number visited within one region.
	MaxPages int
	// RetryBudget is the number of fresh-session retries allowed per page.
	RetryBudget int
	// RotationMin/RotationMax bound the randomized number of successful pages
	// a single session may serve before it is replaced.
	RotationMin int
	RotationMax int
	// InterPageDelay paces successive pages on a healthy session.
	InterPageDelay DelayRange
	// RetryBackoff is the long pause before a retry. A failed or empty page is
	// treated as a possible soft-block signal, so this is intentionally much
	// longer than InterPageDelay.
	RetryBackoff DelayRange
	// RotationPause is the short pause between closing a rotated-out session
	// and opening its replacement.
	RotationPause DelayRange
}

func (c ControllerConfig) withDefaults() ControllerConfig {
	if c.MaxPages <= 0 {
		c.MaxPages = 50
	}
	if c.RetryBudget <= 0 {
		c.RetryBudget = 2
	}
	if c.RotationMin <= 0 {
		c.RotationMin = 2
	}
	if c.RotationMax < c.RotationMin {
		c.RotationMax = c.RotationMin + 2
	}
	if c.InterPageDelay == (DelayRange{}) {
		c.InterPageDelay = DelayRange{Min: 3 * time.Second, Max: 10 * time.Second}
	}
	if c.RetryBackoff == (DelayRange{}) {
		c.RetryBackoff = DelayRange{Min: 20 * time.Second, Max: 30 * time.Second}
	}
	if c.RotationPause == (DelayRange{}) {
		c.RotationPause = DelayRange{Min: 3 * time.Second, Max: 6 * time.Second}
	}
	return c
}

// Controller drives the page-by-page crawl of one region. It owns the single
// open session for the duration of the crawl and replaces it on retries and
// rotations; no two sessions are ever open at once.
type Controller struct {
	sessions SessionManager
	fetcher  PageFetcher
	pacer    Pacer
	rng      *rand.Rand
	cfg      ControllerConfig
	logger   *zap.Logger
}

// NewController builds a Controller. The random source drives rotation
// threshold draws and must be injected so tests can fix it.
func NewController(
	sessions SessionManager,
	fetcher PageFetcher,
	pacer Pacer,
	rng *rand.Rand,
	cfg ControllerConfig,
	logger *zap.Logger,
) *Controller {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		sessions: sessions,
		fetcher:  fetcher,
		pacer:    pacer,
		rng:      rng,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// CrawlRegion collects listings for one region until its target is met, the
// site signals no further pages, the page ceiling is reached, or the retry
// budget for a page is exhausted. The currently open session is closed on
// every exit path, including errors.
func (c *Controller) CrawlRegion(ctx context.Context, region Region) (listings []Listing, err error) {
	log := c.logger.With(zap.String("region", region.Code))

	sess, err := c.sessions.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open session for %s: %w", region.Code, err)
	}
	defer func() {
		if sess != nil {
			sess.Close()
		}
	}()

	rotateAfter := c.drawRotation()
	pagesInSession := 0
	page := 1

	log.Info("starting region crawl",
		zap.Int("target", region.TargetCount),
		zap.Int("expected_yield", region.ExpectedYield),
		zap.Int("rotate_after", rotateAfter),
		zap.String("user_agent", sess.Fingerprint().UserAgent),
	)

	for len(listings) < region.TargetCount && page <= c.cfg.MaxPages {
		if err := ctx.Err(); err != nil {
			return listings, fmt.Errorf("region %s canceled: %w", region.Code, err)
		}

		out := c.fetcher.Fetch(ctx, sess, region.Code, page)

		if !productive(out) {
			// Past the expected yield, a bad page means the directory has
			// most likely run dry for this region, not that we are blocked.
			// Retrying there would conflate "likely exhausted" with "already
			// got enough"; the policy deliberately stops instead.
			if len(listings) >= region.ExpectedYield {
				log.Info("unproductive page past expected yield, stopping region",
					zap.Int("page", page),
					zap.String("outcome", out.Kind.String()),
					zap.Int("collected", len(listings)),
				)
				return listings, nil
			}

			out, sess, err = c.retryPage(ctx, log, sess, region.Code, page)
			if err != nil {
				return listings, err
			}
			if !productive(out) {
				log.Error("retry budget exhausted, abandoning region",
					zap.Int("page", page), zap.Int("collected", len(listings)))
				return listings, nil
			}
			// Fresh session from the successful retry: restart its exposure
			// window with a new threshold.
			rotateAfter = c.drawRotation()
			pagesInSession = 0
		}

		pagesInSession++
		for _, l := range out.Listings {
			if len(listings) >= region.TargetCount {
				break
			}
			listings = append(listings, l)
			TotalListings.Inc()
		}
		if len(listings) >= region.TargetCount {
			log.Info("region target met", zap.Int("collected", len(listings)), zap.Int("page", page))
			return listings, nil
		}
		if !out.HasNext {
			log.Info("no next page signaled", zap.Int("collected", len(listings)), zap.Int("page", page))
			return listings, nil
		}
		page++

		if pagesInSession >= rotateAfter {
			sess, err = c.rotate(ctx, log, sess, pagesInSession)
			if err != nil {
				return listings, err
			}
			rotateAfter = c.drawRotation()
			pagesInSession = 0
			log.Info("next rotation scheduled", zap.Int("rotate_after", rotateAfter))
		} else {
			waited := c.pacer.Wait(ctx, c.cfg.InterPageDelay)
			log.Debug("inter-page pause", zap.Duration("waited", waited))
		}
	}

	return listings, nil
}

// retryPage closes the current session and re-attempts the same page with a
// fresh fingerprint after a long backoff, up to the per-page budget. It
// returns the final outcome and the session now open.
func (c *Controller) retryPage(
	ctx context.Context,
	log *zap.Logger,
	sess Session,
	regionCode string,
	page int,
) (Outcome, Session, error) {
	var out Outcome
	for attempt := 1; attempt <= c.cfg.RetryBudget; attempt++ {
		sess.Close()

		waited := c.pacer.Wait(ctx, c.cfg.RetryBackoff)
		log.Warn("retrying page with fresh session",
			zap.Int("page", page),
			zap.Int("attempt", attempt),
			zap.Int("budget", c.cfg.RetryBudget),
			zap.Duration("backoff", waited),
		)

		fresh, err := c.sessions.Open(ctx)
		if err != nil {
			return Outcome{}, sess, fmt.Errorf("reopen session for %s: %w", regionCode, err)
		}
		sess = fresh
		TotalRetries.Inc()

		out = c.fetcher.Fetch(ctx, sess, regionCode, page)
		if productive(out) {
			log.Info("retry succeeded", zap.Int("page", page), zap.Int("attempt", attempt))
			return out, sess, nil
		}
	}
	return out, sess, nil
}

// rotate proactively replaces a healthy session so no single fingerprint
// serves too many pages.
func (c *Controller) rotate(ctx context.Context, log *zap.Logger, sess Session, served int) (Session, error) {
	log.Info("rotating browser session", zap.Int("pages_served", served))
	sess.Close()
	c.pacer.Wait(ctx, c.cfg.RotationPause)

	fresh, err := c.sessions.Open(ctx)
	if err != nil {
		return sess, fmt.Errorf("rotate session: %w", err)
	}
	TotalRotations.Inc()
	return fresh, nil
}

func (c *Controller) drawRotation() int {
	return c.cfg.RotationMin + c.rng.Intn(c.cfg.RotationMax-c.cfg.RotationMin+1)
}

// productive reports whether an outcome carries usable listings.
func productive(out Outcome) bool {
	return out.Kind == OutcomeContent && len(out.Listings) > 0
}
