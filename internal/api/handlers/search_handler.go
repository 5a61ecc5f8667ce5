package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/services"
)

type SearchHandler struct {
	search *services.SearchService
	log    *zap.Logger
}

func NewSearchHandler(search *services.SearchService, log *zap.Logger) *SearchHandler {
	return &SearchHandler{search: search, log: log}
}

type searchRequestBody struct {
	Query       string   `json:"query"`
	DocumentIDs []string `json:"document_ids,omitempty"`
	Limit       int      `json:"limit,omitempty"`
	// Threshold 0 is a valid request (include everything), so absence
	// and zero must decode differently.
	Threshold *float64 `json:"threshold,omitempty"`
}

// Search answers a free-text query. The response always has the same
// shape; search_method tells the caller which path produced it.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var body searchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	resp, err := h.search.Search(r.Context(), services.SearchRequest{
		Query:       body.Query,
		DocumentIDs: body.DocumentIDs,
		Limit:       body.Limit,
		Threshold:   body.Threshold,
	})
	if err != nil {
		h.log.Error("search failed", zap.String("query", body.Query), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
