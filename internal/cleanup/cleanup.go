package cleanup

import (
	"context"
	"os"
	"time"

	"github.com/demograb/demograb/internal/logctx"
	"github.com/demograb/demograb/internal/storage"
)

// DeleteExpiredArtifacts removes downloaded files older than keepDuration,
// based on the tracked acquisition records.
func DeleteExpiredArtifacts(ctx context.Context, records []storage.AcquisitionRecord, keepDuration time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	for _, record := range records {
		if record.Status != storage.StatusCompleted || record.FilePath == "" {
			continue
		}

		info, err := os.Stat(record.FilePath)
		if err != nil {
			if os.IsNotExist(err) {
				continue // already deleted
			}

			logger.Error("failed to stat artifact", "file", record.FilePath, "err", err)

			return err
		}

		finishedAt := record.FinishedAt
		if finishedAt.IsZero() {
			// fallback: use file mod time
			finishedAt = info.ModTime()
		}

		if now.Sub(finishedAt) > keepDuration {
			if err := os.Remove(record.FilePath); err != nil && !os.IsNotExist(err) {
				logger.Error("failed to delete expired artifact", "file", record.FilePath, "err", err)

				return err
			}

			logger.Info("deleted expired artifact", "file", record.FilePath)
		}
	}

	return nil
}
