package rest_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demograb/demograb/internal/http/rest"
	"github.com/demograb/demograb/internal/storage"
	"github.com/demograb/demograb/internal/storage/memory"
)

type mockSubmitter struct {
	submitFunc func(url string) (string, error)
	lastURL    string
}

func (m *mockSubmitter) Submit(url string) (string, error) {
	m.lastURL = url
	if m.submitFunc != nil {
		return m.submitFunc(url)
	}

	return "job-1", nil
}

func TestSubmitAcquisition(t *testing.T) {
	submitter := &mockSubmitter{}
	handler := rest.NewAcquisitionHandler(submitter, memory.NewAcquisitionRepository())

	req := httptest.NewRequest(http.MethodPost, "/acquisitions",
		strings.NewReader(`{"url":"https://www.example.org/download/demo/98531"}`))
	rec := httptest.NewRecorder()

	handler.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "https://www.example.org/download/demo/98531", submitter.lastURL)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "job-1", resp["id"])
}

func TestSubmitAcquisition_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"malformed json", `{`, http.StatusBadRequest},
		{"relative url", `{"url":"/download/demo/1"}`, http.StatusBadRequest},
		{"empty url", `{"url":""}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := rest.NewAcquisitionHandler(&mockSubmitter{}, memory.NewAcquisitionRepository())

			req := httptest.NewRequest(http.MethodPost, "/acquisitions", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			handler.Routes().ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestSubmitAcquisition_QueueFull(t *testing.T) {
	submitter := &mockSubmitter{submitFunc: func(url string) (string, error) {
		return "", fmt.Errorf("acquisition queue is full")
	}}
	handler := rest.NewAcquisitionHandler(submitter, memory.NewAcquisitionRepository())

	req := httptest.NewRequest(http.MethodPost, "/acquisitions",
		strings.NewReader(`{"url":"https://www.example.org/download/demo/1"}`))
	rec := httptest.NewRecorder()

	handler.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetAcquisition(t *testing.T) {
	repo := memory.NewAcquisitionRepository()
	require.NoError(t, repo.TrackAcquisition(storage.AcquisitionRecord{
		ID:        "job-9",
		URL:       "https://www.example.org/download/demo/9",
		Status:    storage.StatusCompleted,
		FilePath:  "/downloads/demo9.rar",
		Size:      2048,
		CreatedAt: time.Now().UTC(),
	}))

	handler := rest.NewAcquisitionHandler(&mockSubmitter{}, repo)

	req := httptest.NewRequest(http.MethodGet, "/acquisitions/job-9", nil)
	rec := httptest.NewRecorder()

	handler.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "completed", resp["status"])
	assert.Equal(t, "/downloads/demo9.rar", resp["file_path"])
	assert.Equal(t, float64(2048), resp["size"])
}

func TestGetAcquisition_NotFound(t *testing.T) {
	handler := rest.NewAcquisitionHandler(&mockSubmitter{}, memory.NewAcquisitionRepository())

	req := httptest.NewRequest(http.MethodGet, "/acquisitions/missing", nil)
	rec := httptest.NewRecorder()

	handler.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAcquisitions(t *testing.T) {
	repo := memory.NewAcquisitionRepository()
	require.NoError(t, repo.TrackAcquisition(storage.AcquisitionRecord{ID: "a", Status: storage.StatusPending}))
	require.NoError(t, repo.TrackAcquisition(storage.AcquisitionRecord{ID: "b", Status: storage.StatusRunning}))

	handler := rest.NewAcquisitionHandler(&mockSubmitter{}, repo)

	req := httptest.NewRequest(http.MethodGet, "/acquisitions", nil)
	rec := httptest.NewRecorder()

	handler.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "a", resp[0]["id"])
	assert.Equal(t, "b", resp[1]["id"])
}
