package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/Ledgerlens/internal/core/filter"
	"github.com/markdave123-py/Ledgerlens/internal/core/retrieval"
	"github.com/markdave123-py/Ledgerlens/internal/models"
)

type RetrievalHandler struct {
	engine *retrieval.Engine
}

func NewRetrievalHandler(engine *retrieval.Engine) *RetrievalHandler {
	return &RetrievalHandler{engine: engine}
}

type RetrieveRequest struct {
	Query   string         `json:"query"`
	Quarter string         `json:"quarter,omitempty"`
	Where   map[string]any `json:"where,omitempty"`
}

// Retrieve serves POST /api/retrieve/{mode}.
func (h *RetrievalHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	mode, err := retrieval.ParseMode(chi.URLParam(r, "mode"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req RetrieveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	where, err := filter.FromWhere(req.Where)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := h.engine.RetrieveMode(r.Context(), mode, req.Query, req.Quarter, where)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type QueryRequest struct {
	Query        string               `json:"query"`
	ContentTypes []models.ContentType `json:"content_types,omitempty"`
	Quarter      string               `json:"quarter,omitempty"`
	K            int                  `json:"k,omitempty"`
	Where        map[string]any       `json:"where,omitempty"`
}

type QueryResponse struct {
	Results []models.ScoredUnit `json:"results"`
}

// Query serves POST /api/query, the unformatted generic retrieval.
func (h *RetrievalHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	where, err := filter.FromWhere(req.Where)
	if err != nil {
		writeError(w, r, err)
		return
	}

	hits, err := h.engine.Retrieve(r.Context(), retrieval.Request{
		Query:        req.Query,
		ContentTypes: req.ContentTypes,
		Quarter:      req.Quarter,
		K:            req.K,
		Where:        where,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if hits == nil {
		hits = []models.ScoredUnit{}
	}
	writeJSON(w, http.StatusOK, QueryResponse{Results: hits})
}
