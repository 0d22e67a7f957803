package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/lorekeeper/extractor/internal/core/orchestrator"
	"github.com/lorekeeper/extractor/internal/core/types"
)

type extractRequest struct {
	URL      string `json:"url"`
	Site     string `json:"site,omitempty"`
	Language string `json:"language,omitempty"`
	Category string `json:"category,omitempty"`
}

// handleExtract implements POST /extract: synchronously runs one article
// through the Master Orchestration Engine and returns its
// OrchestrationResult as JSON (SPEC_FULL.md §6.1).
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}
	site := req.Site
	if site == "" {
		site = req.URL
	}

	result := s.app.Engine.Run(r.Context(), orchestrator.Request{
		URL:  req.URL,
		Site: site,
		Hints: types.Hints{
			Language: req.Language,
			Category: req.Category,
		},
	})

	writeJSON(w, http.StatusOK, result)
}

// handleCost implements GET /cost: per-provider cost totals
// (SPEC_FULL.md Supplemented Features).
func (s *Server) handleCost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	summary, err := s.app.CostStore.SummaryByProvider(r.Context())
	if err != nil {
		http.Error(w, "failed to load cost summary: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleDecisions implements GET /decisions?site=<site>&limit=<n>: recent
// UC2/UC3 decision log entries for a site (SPEC_FULL.md Supplemented
// Features).
func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	site := r.URL.Query().Get("site")
	if site == "" {
		http.Error(w, "site query parameter is required", http.StatusBadRequest)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.app.Decisions.BySite(r.Context(), site, limit)
	if err != nil {
		http.Error(w, "failed to load decision log: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.app.DB.Ping(ctx); err != nil {
		http.Error(w, "database unreachable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already sent; nothing more to do but record the failure
		// would require a logger reference. The client sees a truncated body.
		return
	}
}
