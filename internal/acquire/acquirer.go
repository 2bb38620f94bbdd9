// Package acquire drives the end-to-end acquisition protocol: solve the
// challenge, open a browser with the solved session material, chase the
// redirect indirection on the page, and watch the download directory until
// the artifact is complete.
package acquire

import (
	"context"
	"errors"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/demograb/demograb/internal/browser"
	"github.com/demograb/demograb/internal/logctx"
	"github.com/demograb/demograb/internal/monitor"
	"github.com/demograb/demograb/internal/redirect"
	"github.com/demograb/demograb/internal/solver"
	"github.com/demograb/demograb/internal/telemetry"
)

// Bounded wait for the document body after navigation, independent of the
// page-load timeout.
const bodyReadyTimeout = 10 * time.Second

// SolverClient is the slice of the challenge solver the acquirer consumes.
type SolverClient interface {
	Solve(ctx context.Context, url string) (*solver.SessionMaterial, error)
}

// Outcome references the completed artifact of a successful acquisition.
type Outcome struct {
	URL      string
	FilePath string
	Size     int64
}

// Options configures an Acquirer.
type Options struct {
	DownloadDir     string
	SessionVariant  string
	PageLoadTimeout time.Duration
	SettleDelay     time.Duration
	DownloadTimeout time.Duration
	PollInterval    time.Duration
}

// Acquirer composes the solver, a browser session factory, the redirect
// resolver, and the download monitor into one sequential pipeline. Each call
// to Acquire owns its own session and poll loop, so acquisitions may run
// concurrently.
type Acquirer struct {
	opts        Options
	solver      SolverClient
	openSession browser.Factory
	tel         *telemetry.Telemetry
}

// New builds an Acquirer. tel may be a disabled telemetry instance.
func New(opts Options, sc SolverClient, open browser.Factory, tel *telemetry.Telemetry) *Acquirer {
	return &Acquirer{opts: opts, solver: sc, openSession: open, tel: tel}
}

// Acquire runs one acquisition for targetURL. The returned error is one of
// the typed failures in errors.go; the browser session is closed on every
// exit path.
func (a *Acquirer) Acquire(ctx context.Context, targetURL string) (*Outcome, error) {
	logger := logctx.LoggerFromContext(ctx).With("url", targetURL)
	started := time.Now()

	a.tel.IncrementActiveAcquisitions(ctx)
	defer a.tel.DecrementActiveAcquisitions(ctx)

	outcome, err := a.acquire(ctx, targetURL)

	status := "success"
	if err != nil {
		status = outcomeLabel(err)
	}

	a.tel.RecordAcquisition(ctx, status, time.Since(started))

	if err != nil {
		return nil, err
	}

	logger.Info("acquisition complete",
		"file", outcome.FilePath,
		"size", humanize.Bytes(uint64(outcome.Size)),
		"elapsed", time.Since(started).String(),
	)

	return outcome, nil
}

func (a *Acquirer) acquire(ctx context.Context, targetURL string) (*Outcome, error) {
	logger := logctx.LoggerFromContext(ctx).With("url", targetURL)

	material, err := a.solver.Solve(ctx, targetURL)
	if err != nil {
		a.tel.RecordSolverAttempt(ctx, "exhausted")

		// Only the stealth profile is expected to get past bot
		// mitigation on its own; without it there is no point in
		// launching a browser.
		if a.opts.SessionVariant != browser.VariantStealth {
			return nil, &BypassError{URL: targetURL, Err: err}
		}

		logger.Warn("proceeding without solved session material", "err", err)

		material = &solver.SessionMaterial{}
	} else {
		a.tel.RecordSolverAttempt(ctx, "ok")
	}

	session, err := a.openSession(ctx, browser.Options{
		Variant:         a.opts.SessionVariant,
		DownloadDir:     a.opts.DownloadDir,
		UserAgent:       material.UserAgent,
		PageLoadTimeout: a.opts.PageLoadTimeout,
	})
	if err != nil {
		return nil, &SessionSetupError{Variant: a.opts.SessionVariant, Err: err}
	}

	defer session.Close()

	if len(material.Cookies) > 0 {
		if err := browser.InjectCookies(ctx, session, targetURL, material.Cookies); err != nil {
			return nil, &NavigationError{URL: targetURL, Err: err}
		}
	}

	logger.Debug("navigating to target page")

	if err := session.Navigate(ctx, targetURL); err != nil {
		return nil, &NavigationError{URL: targetURL, Err: err}
	}

	if err := session.WaitVisible(ctx, "body", bodyReadyTimeout); err != nil {
		logger.Debug("document body did not appear, continuing", "err", err)
	}

	// Let client-side redirects and auto-download triggers fire.
	if err := sleepWithContext(ctx, a.opts.SettleDelay); err != nil {
		return nil, &NavigationError{URL: targetURL, Err: err}
	}

	markup := material.Markup
	if markup == "" {
		markup, err = session.PageContent()
		if err != nil {
			return nil, &NavigationError{URL: targetURL, Err: err}
		}
	}

	target := redirect.Resolve(markup)
	if target.Found() {
		downloadURL, err := browser.ResolveAgainst(targetURL, target.URL)
		if err != nil {
			return nil, &NavigationError{URL: target.URL, Err: err}
		}

		logger.Info("resolved download target", "download_url", downloadURL, "expected_file", target.Filename)

		if err := session.Navigate(ctx, downloadURL); err != nil {
			return nil, &NavigationError{URL: downloadURL, Err: err}
		}

		if err := sleepWithContext(ctx, a.opts.SettleDelay); err != nil {
			return nil, &NavigationError{URL: downloadURL, Err: err}
		}
	} else {
		logger.Debug("no redirect target in markup, relying on in-page download trigger")
	}

	mon := monitor.New(a.opts.DownloadDir, a.opts.DownloadTimeout, a.opts.PollInterval)
	mon.OnProgress = func(delta, total int64) {
		a.tel.AddDownloadBytes(ctx, delta)
		logger.Debug("download progress", "received", humanize.Bytes(uint64(total)))
	}

	result, err := mon.Watch(ctx, target.Filename)
	if err != nil {
		if errors.Is(err, monitor.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &DownloadTimeoutError{Dir: a.opts.DownloadDir, Timeout: a.opts.DownloadTimeout.String()}
		}

		return nil, &MonitorIOError{Dir: a.opts.DownloadDir, Err: err}
	}

	return &Outcome{URL: targetURL, FilePath: result.Path, Size: result.Size}, nil
}

func outcomeLabel(err error) string {
	var (
		bypassErr  *BypassError
		sessionErr *SessionSetupError
		navErr     *NavigationError
		timeoutErr *DownloadTimeoutError
		monitorErr *MonitorIOError
	)

	switch {
	case errors.As(err, &bypassErr):
		return "bypass_failed"
	case errors.As(err, &sessionErr):
		return "session_setup_failed"
	case errors.As(err, &navErr):
		return "navigation_failed"
	case errors.As(err, &timeoutErr):
		return "download_timeout"
	case errors.As(err, &monitorErr):
		return "monitor_io_error"
	default:
		return "error"
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
