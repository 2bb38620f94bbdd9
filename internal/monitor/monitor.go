// Package monitor watches a download directory until the browser's download
// subsystem finishes writing an artifact. There is no server-side completion
// signal: the only cue is the browser's own convention of writing to a
// temporary-marker name and renaming it when done, so completion detection is
// extension-based polling.
package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/demograb/demograb/internal/logctx"
)

// Temporary-marker suffixes browsers use for in-progress downloads.
var temporaryMarkers = []string{".crdownload", ".part", ".download", ".tmp"}

// Final-marker extensions of recognized completed artifacts.
var finalMarkers = []string{".rar", ".zip", ".dem", ".7z"}

// ErrTimeout is returned when the overall watch timeout elapses with no
// completed artifact.
var ErrTimeout = fmt.Errorf("download did not complete in time")

// Result references the finished artifact.
type Result struct {
	Path string
	Size int64
}

// ProgressFunc receives the byte delta observed since the last poll and the
// current total. Passed in explicitly; the monitor holds no shared progress
// state.
type ProgressFunc func(delta, total int64)

// Monitor polls a directory for a download in progress.
type Monitor struct {
	Dir          string
	Timeout      time.Duration
	PollInterval time.Duration
	OnProgress   ProgressFunc
}

// New builds a monitor for dir with the given overall timeout and poll
// interval.
func New(dir string, timeout, pollInterval time.Duration) *Monitor {
	return &Monitor{Dir: dir, Timeout: timeout, PollInterval: pollInterval}
}

// Watch polls the directory until a tracked file loses its temporary marker,
// the timeout elapses, or the context is cancelled. expectedName may be
// empty; when set, files containing it take priority over marker-based
// candidates. External renames between observations are tolerated: a file
// that vanishes mid-check resets tracking and the next tick re-enumerates.
func (m *Monitor) Watch(ctx context.Context, expectedName string) (*Result, error) {
	logger := logctx.LoggerFromContext(ctx).With("dir", m.Dir)

	deadline := time.NewTimer(m.Timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(m.PollInterval)
	defer ticker.Stop()

	var (
		trackedName string
		lastSize    int64
	)

	for {
		name, err := m.selectCandidate(expectedName)
		if err != nil {
			return nil, err
		}

		if name != "" {
			if name != trackedName {
				logger.Debug("tracking download candidate", "file", name)

				// A rename from the temporary name to the final one is
				// still the same bytes; carry the observed size over so
				// progress is not reported twice.
				if trimTemporaryMarker(trackedName) != name {
					lastSize = 0
				}

				trackedName = name
			}

			path := filepath.Join(m.Dir, trackedName)

			info, err := os.Stat(path)
			switch {
			case os.IsNotExist(err):
				// Renamed between enumeration and stat. Drop the
				// tracking state and re-enumerate next tick.
				trackedName = ""
				lastSize = 0
			case err != nil:
				return nil, fmt.Errorf("failed to stat %s: %w", path, err)
			case hasTemporaryMarker(trackedName):
				if m.OnProgress != nil && info.Size() > lastSize {
					m.OnProgress(info.Size()-lastSize, info.Size())
				}

				lastSize = info.Size()
			default:
				// Marker gone: the download subsystem considers the
				// file complete.
				if m.OnProgress != nil && info.Size() > lastSize {
					m.OnProgress(info.Size()-lastSize, info.Size())
				}

				return &Result{Path: path, Size: info.Size()}, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrTimeout
		case <-ticker.C:
		}
	}
}

// selectCandidate picks the file to track this tick. Priority, highest
// first: a name containing the expected filename, a name with a temporary
// marker, a name with a final-marker extension. The priority order matters:
// a stale artifact left from a previous run must not shadow the download
// actually in flight.
func (m *Monitor) selectCandidate(expectedName string) (string, error) {
	entries, err := os.ReadDir(m.Dir)
	if err != nil {
		return "", fmt.Errorf("failed to enumerate %s: %w", m.Dir, err)
	}

	var temporary, final string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		if expectedName != "" && strings.Contains(name, expectedName) {
			return name, nil
		}

		if temporary == "" && hasTemporaryMarker(name) {
			temporary = name
		}

		if final == "" && hasFinalMarker(name) {
			final = name
		}
	}

	if temporary != "" {
		return temporary, nil
	}

	return final, nil
}

func trimTemporaryMarker(name string) string {
	lower := strings.ToLower(name)
	for _, marker := range temporaryMarkers {
		if strings.HasSuffix(lower, marker) {
			return name[:len(name)-len(marker)]
		}
	}

	return name
}

func hasTemporaryMarker(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range temporaryMarkers {
		if strings.HasSuffix(lower, marker) {
			return true
		}
	}

	return false
}

func hasFinalMarker(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range finalMarkers {
		if strings.HasSuffix(lower, marker) {
			return true
		}
	}

	return false
}
