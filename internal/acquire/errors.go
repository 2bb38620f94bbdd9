package acquire

import "fmt"

// BypassError means the challenge solver exhausted its retries and the
// configuration does not permit browsing without solved session material.
type BypassError struct {
	URL string // Target the solver was asked to clear
	Err error  // Last error observed by the solver client
}

func (e *BypassError) Error() string {
	return fmt.Sprintf("challenge bypass failed for %s: %v", e.URL, e.Err)
}

func (e *BypassError) Unwrap() error {
	return e.Err
}

// SessionSetupError means no browser session could be constructed, stealth
// and ordinary variants included.
type SessionSetupError struct {
	Variant string // Requested session variant
	Err     error  // Underlying construction error
}

func (e *SessionSetupError) Error() string {
	return fmt.Sprintf("failed to open %s browser session: %v", e.Variant, e.Err)
}

func (e *SessionSetupError) Unwrap() error {
	return e.Err
}

// NavigationError means a page load or script wait failed or timed out.
type NavigationError struct {
	URL string // URL being navigated to
	Err error  // Underlying browser error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// DownloadTimeoutError means the monitor's overall timeout elapsed with no
// completed artifact in the download directory.
type DownloadTimeoutError struct {
	Dir     string // Watched directory
	Timeout string // Human-readable timeout that elapsed
}

func (e *DownloadTimeoutError) Error() string {
	return fmt.Sprintf("no completed download appeared in %s within %s", e.Dir, e.Timeout)
}

// MonitorIOError means the monitor hit an unexpected filesystem error, e.g.
// permission denial. Transient file disappearance is not one of these.
type MonitorIOError struct {
	Dir string // Watched directory
	Err error  // Underlying filesystem error
}

func (e *MonitorIOError) Error() string {
	return fmt.Sprintf("filesystem error while watching %s: %v", e.Dir, e.Err)
}

func (e *MonitorIOError) Unwrap() error {
	return e.Err
}
