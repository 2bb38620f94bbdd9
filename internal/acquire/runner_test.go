package acquire_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demograb/demograb/internal/acquire"
	"github.com/demograb/demograb/internal/browser"
	"github.com/demograb/demograb/internal/solver"
	"github.com/demograb/demograb/internal/storage"
	"github.com/demograb/demograb/internal/storage/memory"
)

func TestRunner_CompletedAcquisition(t *testing.T) {
	dir := t.TempDir()

	// A finished artifact is already in place, so the watch returns on its
	// first tick without needing a redirect.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo.rar"), make([]byte, 64), 0644))

	sc := &fakeSolver{material: &solver.SessionMaterial{
		UserAgent: "agent",
		Markup:    `<html><body>already solved</body></html>`,
	}}
	factory := func(ctx context.Context, opts browser.Options) (browser.Session, error) {
		return &fakeSession{}, nil
	}

	repo := memory.NewAcquisitionRepository()
	runner := acquire.NewRunner(acquire.New(testOptions(dir), sc, factory, disabledTelemetry(t)), repo, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx, 1)

	id, err := runner.Submit("https://www.example.org/download/demo/1")
	require.NoError(t, err)

	record, err := repo.GetAcquisition(id)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusPending, record.Status)

	select {
	case outcome := <-runner.OnAcquisitionFinished:
		assert.Equal(t, filepath.Join(dir, "demo.rar"), outcome.FilePath)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for acquisition to finish")
	}

	record, err = repo.GetAcquisition(id)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCompleted, record.Status)
	assert.Equal(t, filepath.Join(dir, "demo.rar"), record.FilePath)
	assert.Equal(t, int64(64), record.Size)
}

func TestRunner_FailedAcquisition(t *testing.T) {
	sc := &fakeSolver{err: context.DeadlineExceeded}
	factory := func(ctx context.Context, opts browser.Options) (browser.Session, error) {
		return &fakeSession{}, nil
	}

	repo := memory.NewAcquisitionRepository()
	runner := acquire.NewRunner(acquire.New(testOptions(t.TempDir()), sc, factory, disabledTelemetry(t)), repo, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx, 1)

	id, err := runner.Submit("https://www.example.org/download/demo/2")
	require.NoError(t, err)

	select {
	case job := <-runner.OnAcquisitionFailed:
		assert.Equal(t, id, job.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for acquisition to fail")
	}

	record, err := repo.GetAcquisition(id)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, record.Status)
	assert.NotEmpty(t, record.Error)
}

func TestRunner_QueueFull(t *testing.T) {
	sc := &fakeSolver{}
	factory := func(ctx context.Context, opts browser.Options) (browser.Session, error) {
		return &fakeSession{}, nil
	}

	repo := memory.NewAcquisitionRepository()
	// No workers started, queue of one slot.
	runner := acquire.NewRunner(acquire.New(testOptions(t.TempDir()), sc, factory, disabledTelemetry(t)), repo, 1)

	_, err := runner.Submit("https://www.example.org/download/demo/1")
	require.NoError(t, err)

	_, err = runner.Submit("https://www.example.org/download/demo/2")
	assert.ErrorContains(t, err, "queue is full")

	// The rejected submission must not linger as a pending job; its record
	// is marked failed right away.
	records, err := repo.GetAcquisitions()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, storage.StatusPending, records[0].Status)
	assert.Equal(t, storage.StatusFailed, records[1].Status)
	assert.Contains(t, records[1].Error, "queue is full")
}
