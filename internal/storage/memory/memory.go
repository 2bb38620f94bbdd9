// Package memory is the in-process acquisition repository. Durable
// persistence is deliberately out of scope, so this is the only
// implementation.
package memory

import (
	"sync"
	"time"

	"github.com/demograb/demograb/internal/storage"
)

type AcquisitionRepository struct {
	mu      sync.RWMutex
	records map[string]storage.AcquisitionRecord
	order   []string
}

func NewAcquisitionRepository() *AcquisitionRepository {
	return &AcquisitionRepository{records: make(map[string]storage.AcquisitionRecord)}
}

func (r *AcquisitionRepository) TrackAcquisition(record storage.AcquisitionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.ID]; !exists {
		r.order = append(r.order, record.ID)
	}

	r.records[record.ID] = record

	return nil
}

func (r *AcquisitionRepository) UpdateAcquisition(id, status, filePath string, size int64, errMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return storage.ErrNotFound
	}

	record.Status = status
	record.Error = errMessage

	if filePath != "" {
		record.FilePath = filePath
		record.Size = size
	}

	if status == storage.StatusCompleted || status == storage.StatusFailed {
		record.FinishedAt = time.Now().UTC()
	}

	r.records[id] = record

	return nil
}

func (r *AcquisitionRepository) GetAcquisitions() ([]storage.AcquisitionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]storage.AcquisitionRecord, 0, len(r.order))
	for _, id := range r.order {
		records = append(records, r.records[id])
	}

	return records, nil
}

func (r *AcquisitionRepository) GetAcquisition(id string) (*storage.AcquisitionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	return &record, nil
}
