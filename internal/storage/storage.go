package storage

import (
	"errors"
	"time"
)

// Acquisition lifecycle states.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrNotFound is returned when no record exists for the requested id.
var ErrNotFound = errors.New("acquisition not found")

// AcquisitionRecord tracks one acquisition job for the lifetime of the
// process. Records are in-memory only; the downloaded artifact itself is the
// only durable output.
type AcquisitionRecord struct {
	ID         string
	URL        string
	Status     string
	FilePath   string
	Size       int64
	Error      string
	CreatedAt  time.Time
	FinishedAt time.Time
}

// AcquisitionReadRepository exposes acquisition state to the REST layer and
// the cleanup loop.
type AcquisitionReadRepository interface {
	GetAcquisitions() ([]AcquisitionRecord, error)
	GetAcquisition(id string) (*AcquisitionRecord, error)
}

type AcquisitionWriteRepository interface {
	TrackAcquisition(record AcquisitionRecord) error
	UpdateAcquisition(id, status, filePath string, size int64, errMessage string) error
}

type AcquisitionRepository interface {
	AcquisitionReadRepository
	AcquisitionWriteRepository
}
