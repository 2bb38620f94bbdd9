// Package rest exposes acquisitions over a small JSON API: submit a URL,
// list jobs, fetch one job.
package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/demograb/demograb/internal/logctx"
	"github.com/demograb/demograb/internal/storage"
)

// Submitter queues an acquisition and returns its job id.
type Submitter interface {
	Submit(url string) (string, error)
}

type AcquisitionHandler struct {
	submitter Submitter
	repo      storage.AcquisitionReadRepository
}

func NewAcquisitionHandler(submitter Submitter, repo storage.AcquisitionReadRepository) *AcquisitionHandler {
	return &AcquisitionHandler{submitter: submitter, repo: repo}
}

func (h *AcquisitionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/acquisitions", h.submit)
	r.Get("/acquisitions", h.list)
	r.Get("/acquisitions/{id}", h.get)

	return r
}

type submitRequest struct {
	URL string `json:"url"`
}

type submitResponse struct {
	ID string `json:"id"`
}

type acquisitionResponse struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Status     string `json:"status"`
	FilePath   string `json:"file_path,omitempty"`
	Size       int64  `json:"size,omitempty"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

func (h *AcquisitionHandler) submit(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return
	}

	parsed, err := url.Parse(req.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		http.Error(w, "url must be absolute", http.StatusBadRequest)

		return
	}

	id, err := h.submitter.Submit(req.URL)
	if err != nil {
		logger.Error("failed to queue acquisition", "url", req.URL, "err", err)
		http.Error(w, "failed to queue acquisition", http.StatusServiceUnavailable)

		return
	}

	logger.Info("acquisition queued", "job_id", id, "url", req.URL)

	writeJSON(w, http.StatusAccepted, submitResponse{ID: id})
}

func (h *AcquisitionHandler) list(w http.ResponseWriter, r *http.Request) {
	records, err := h.repo.GetAcquisitions()
	if err != nil {
		http.Error(w, "failed to list acquisitions", http.StatusInternalServerError)

		return
	}

	out := make([]acquisitionResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toResponse(record))
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *AcquisitionHandler) get(w http.ResponseWriter, r *http.Request) {
	record, err := h.repo.GetAcquisition(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "acquisition not found", http.StatusNotFound)

			return
		}

		http.Error(w, "failed to fetch acquisition", http.StatusInternalServerError)

		return
	}

	writeJSON(w, http.StatusOK, toResponse(*record))
}

func toResponse(record storage.AcquisitionRecord) acquisitionResponse {
	resp := acquisitionResponse{
		ID:        record.ID,
		URL:       record.URL,
		Status:    record.Status,
		FilePath:  record.FilePath,
		Size:      record.Size,
		Error:     record.Error,
		CreatedAt: record.CreatedAt.Format(time.RFC3339),
	}

	if !record.FinishedAt.IsZero() {
		resp.FinishedAt = record.FinishedAt.Format(time.RFC3339)
	}

	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
