package browser

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/demograb/demograb/internal/logctx"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36"

const (
	viewportWidth  = 1920
	viewportHeight = 1080

	// Ceiling for page-load and script waits, independent of the overall
	// acquisition timeout.
	maxPageTimeout = 30 * time.Second
)

// rodSession is the production Session backed by a go-rod controlled Chrome.
type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	timeout  time.Duration
}

// OpenRod opens a browser session. The stealth variant uses a stealth-patched
// page; if its construction fails the session falls back to the ordinary
// profile instead of propagating the error, since stealth construction
// failures are expected on hosts without the matching Chrome build.
func OpenRod(ctx context.Context, opts Options) (Session, error) {
	logger := logctx.LoggerFromContext(ctx)

	if opts.Variant == VariantStealth {
		s, err := openRod(ctx, opts, true)
		if err == nil {
			return s, nil
		}

		logger.Warn("stealth session failed, falling back to ordinary profile", "err", err)
	}

	return openRod(ctx, opts, false)
}

func openRod(ctx context.Context, opts Options, useStealth bool) (s Session, err error) {
	l := launcher.New().
		Headless(true).
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("disable-notifications").
		Set("disable-extensions").
		Set("window-size", fmt.Sprintf("%d,%d", viewportWidth, viewportHeight)).
		Set("disable-blink-features", "AutomationControlled").
		Set("exclude-switches", "enable-automation").
		Set("use-automation-extension", "false")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Cleanup()

		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	// From here on the session owns the browser; tear it down on any error.
	defer func() {
		if err != nil {
			_ = b.Close()
			l.Cleanup()
		}
	}()

	var page *rod.Page
	if useStealth {
		page, err = stealth.Page(b)
		if err != nil {
			return nil, fmt.Errorf("failed to create stealth page: %w", err)
		}
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: "about:blank"})
		if err != nil {
			return nil, fmt.Errorf("failed to create page: %w", err)
		}
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	if err := (proto.NetworkSetUserAgentOverride{UserAgent: userAgent}).Call(page); err != nil {
		return nil, fmt.Errorf("failed to set user agent: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             viewportWidth,
		Height:            viewportHeight,
		DeviceScaleFactor: 1,
		Mobile:            false,
	}); err != nil {
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	if opts.DownloadDir != "" {
		downloadDir, err := filepath.Abs(opts.DownloadDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve download directory: %w", err)
		}

		if err := (proto.PageSetDownloadBehavior{
			Behavior:     proto.PageSetDownloadBehaviorBehaviorAllow,
			DownloadPath: downloadDir,
		}).Call(page); err != nil {
			return nil, fmt.Errorf("failed to bind download directory: %w", err)
		}
	}

	timeout := opts.PageLoadTimeout
	if timeout <= 0 || timeout > maxPageTimeout {
		timeout = maxPageTimeout
	}

	return &rodSession{launcher: l, browser: b, page: page, timeout: timeout}, nil
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	logger := logctx.LoggerFromContext(ctx)

	page := s.page.Context(ctx).Timeout(s.timeout)

	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	// A download response carries no document, so a failed load wait is
	// not a navigation failure.
	if err := page.WaitLoad(); err != nil {
		logger.Debug("load wait did not complete", "url", url, "err", err)
	}

	return nil
}

func (s *rodSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 || timeout > s.timeout {
		timeout = s.timeout
	}

	if _, err := s.page.Context(ctx).Timeout(timeout).Element(selector); err != nil {
		return fmt.Errorf("element %q did not appear: %w", selector, err)
	}

	return nil
}

func (s *rodSession) PageContent() (string, error) {
	html, err := s.page.Timeout(s.timeout).HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read page markup: %w", err)
	}

	return html, nil
}

func (s *rodSession) AddCookie(cookie Cookie) error {
	path := cookie.Path
	if path == "" {
		path = "/"
	}

	return s.page.SetCookies([]*proto.NetworkCookieParam{{
		Name:   cookie.Name,
		Value:  cookie.Value,
		Domain: cookie.Domain,
		Path:   path,
	}})
}

// Close tears down the page, browser, and launcher. Teardown errors are
// swallowed so a failed quit never masks the acquisition's real outcome.
func (s *rodSession) Close() {
	if s.page != nil {
		_ = s.page.Close()
	}

	if s.browser != nil {
		_ = s.browser.Close()
	}

	if s.launcher != nil {
		s.launcher.Cleanup()
	}
}
