package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/Ledgerlens/internal/core"
	"github.com/markdave123-py/Ledgerlens/internal/internalerr"
	"github.com/markdave123-py/Ledgerlens/internal/models"
	"github.com/markdave123-py/Ledgerlens/internal/services"
)

type DocumentHandler struct {
	documents *services.DocumentService
	assets    core.AssetStore
	maxUpload int64
}

func NewDocumentHandler(documents *services.DocumentService, assets core.AssetStore, maxUpload int64) *DocumentHandler {
	return &DocumentHandler{documents: documents, assets: assets, maxUpload: maxUpload}
}

type UploadResponse struct {
	Document *models.Document     `json:"document"`
	Job      services.JobSnapshot `json:"job"`
}

// UploadDocument stores a multipart "file" for the form's "quarter" and
// queues it for background ingestion.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, r, fmt.Errorf("%w: %v", internalerr.ErrInvalidInput, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: missing file", internalerr.ErrInvalidInput))
		return
	}
	defer file.Close()
	if header.Size > h.maxUpload {
		http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: read upload: %v", internalerr.ErrInvalidInput, err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()
	doc, job, err := h.documents.Upload(ctx, header.Filename, r.FormValue("quarter"), data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, UploadResponse{Document: doc, Job: job})
}

// GetDocuments lists the registry, optionally filtered by ?quarter=.
func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.documents.List(r.Context(), r.URL.Query().Get("quarter"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.documents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.documents.Job(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// GetAsset streams a stored asset, such as a chart image named by a unit's
// Image_Path, given as ?ref=.
func (h *DocumentHandler) GetAsset(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("ref")
	if ref == "" {
		writeError(w, r, fmt.Errorf("%w: ref is required", internalerr.ErrInvalidInput))
		return
	}
	rc, contentType, err := h.assets.OpenAsset(r.Context(), ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", contentType)
	_, _ = io.Copy(w, rc)
}

func (h *DocumentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.documents.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ResetCollection clears every unit and the registry.
func (h *DocumentHandler) ResetCollection(w http.ResponseWriter, r *http.Request) {
	if err := h.documents.Reset(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health reports liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
