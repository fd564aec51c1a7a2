// Package session manages disposable headless browser sessions. Each session
// owns its own Chrome process configured with a freshly generated identity
// fingerprint; closing the session terminates the process. Sessions are never
// shared between callers.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/listingharvest/crawler/internal/fingerprint"
)

// Session wraps one browser process plus the fingerprint it was launched
// with. The fingerprint is exposed for logging and diagnostics only.
type Session struct {
	fp            fingerprint.Fingerprint
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	closeOnce     sync.Once
}

// Context returns the navigable browser context. Navigation failures after
// the underlying process has died surface as errors on the next chromedp run
// against this context, not as panics.
func (s *Session) Context() context.Context {
	return s.browserCtx
}

// Fingerprint returns the identity this session was launched with.
func (s *Session) Fingerprint() fingerprint.Fingerprint {
	return s.fp
}

// Close terminates the browser process and releases the allocator. It is
// idempotent and safe to call on a degraded session.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		s.browserCancel()
		s.allocCancel()
	})
}

// Config controls browser session creation.
type Config struct {
	Headless bool
}

// Manager opens sessions with fresh fingerprints and anti-automation launch
// flags.
type Manager struct {
	gen    *fingerprint.Generator
	cfg    Config
	logger *zap.Logger
}

// NewManager builds a Manager using the supplied fingerprint generator.
func NewManager(gen *fingerprint.Generator, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{gen: gen, cfg: cfg, logger: logger}
}

// Open launches a new browser with a freshly drawn fingerprint and applies
// the identity overrides. The caller owns the returned session and must close
// it on every exit path.
func (m *Manager) Open(ctx context.Context) (*Session, error) {
	fp := m.gen.Generate()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", m.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.Flag("enable-automation", false),
		chromedp.UserAgent(fp.UserAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx,
		emulation.SetUserAgentOverride(fp.UserAgent),
		emulation.SetDeviceMetricsOverride(
			int64(fp.Viewport.Width), int64(fp.Viewport.Height), fp.DevicePixelRatio, false),
		emulation.SetTimezoneOverride(fp.Timezone),
		emulation.SetLocaleOverride().WithLocale(fp.Locale),
		emulation.SetEmulatedMedia().WithFeatures([]*emulation.MediaFeature{
			{Name: "prefers-color-scheme", Value: fp.ColorScheme},
		}),
	); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("session warmup: %w", err)
	}

	m.logger.Debug("opened browser session",
		zap.String("user_agent", fp.UserAgent),
		zap.Int("viewport_w", fp.Viewport.Width),
		zap.Int("viewport_h", fp.Viewport.Height),
		zap.String("timezone", fp.Timezone),
		zap.String("locale", fp.Locale),
	)

	return &Session{
		fp:            fp,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}
