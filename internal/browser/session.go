// Package browser narrows a scriptable browser down to the handful of
// operations the acquisition pipeline consumes, so the automation layer
// stays swappable and mockable.
package browser

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/demograb/demograb/internal/logctx"
)

// Variant selects the browser profile used for a session.
const (
	VariantStealth  = "stealth"
	VariantOrdinary = "ordinary"
)

// Cookie is a single cookie to attach to a session, as returned by the
// challenge solver.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// Options configures a new session.
type Options struct {
	Variant         string
	DownloadDir     string
	UserAgent       string
	PageLoadTimeout time.Duration
}

// Session is the operation set the pipeline needs from a browser instance.
type Session interface {
	// Navigate loads the given URL and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until the selector matches an element or the
	// timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// PageContent returns the current document markup.
	PageContent() (string, error)
	// AddCookie attaches a single cookie to the active document.
	AddCookie(cookie Cookie) error
	// Close tears the session down. It must tolerate being called on a
	// partially constructed session and must not fail loudly.
	Close()
}

// Factory opens a session. Wired to OpenRod in production and to fakes in
// tests.
type Factory func(ctx context.Context, opts Options) (Session, error)

// InjectCookies attaches solver cookies to a session. Browsers only accept a
// cookie when a document on its domain is active, so the session navigates to
// the target's origin first. A single rejected cookie is logged and skipped.
func InjectCookies(ctx context.Context, s Session, targetURL string, cookies []Cookie) error {
	if len(cookies) == 0 {
		return nil
	}

	logger := logctx.LoggerFromContext(ctx)

	origin, err := originOf(targetURL)
	if err != nil {
		return fmt.Errorf("failed to derive origin: %w", err)
	}

	if err := s.Navigate(ctx, origin); err != nil {
		return fmt.Errorf("failed to open origin for cookie injection: %w", err)
	}

	for _, cookie := range cookies {
		if err := s.AddCookie(cookie); err != nil {
			logger.Warn("cookie rejected by browser", "cookie", cookie.Name, "err", err)
		}
	}

	return nil
}

// ResolveAgainst resolves candidate against base when candidate is relative.
// Absolute candidates pass through untouched.
func ResolveAgainst(base, candidate string) (string, error) {
	ref, err := url.Parse(candidate)
	if err != nil {
		return "", fmt.Errorf("invalid target url: %w", err)
	}

	if ref.IsAbs() {
		return candidate, nil
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}

	return baseURL.ResolveReference(ref).String(), nil
}

func originOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q has no origin", rawURL)
	}

	return u.Scheme + "://" + u.Host, nil
}
