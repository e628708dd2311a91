package api

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lexarch/lexarch/internal/metadata"
)

// handleIndexStats reports index contents and registry entries.
func (s *Server) handleIndexStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.IndexStats(r.Context())
	if err != nil {
		jsonError(w, "failed to read index stats: "+err.Error(), http.StatusInternalServerError)
		return
	}
	records, err := s.store.ListDocuments(r.Context())
	if err != nil {
		jsonError(w, "failed to list indexed documents: "+err.Error(), http.StatusInternalServerError)
		return
	}

	identities := make([]string, 0, len(records))
	for _, rec := range records {
		identities = append(identities, rec.Identity)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_chunks":           stats.Chunks,
		"indexed_document_count": stats.Documents,
		"document_identities":    identities,
		"by_jurisdiction":        stats.ByJurisdiction,
		"by_tier":                stats.ByTier,
	})
}

// handleIndexSync runs a full corpus sync and reports the outcome.
func (s *Server) handleIndexSync(w http.ResponseWriter, r *http.Request) {
	report, err := s.indexer.Sync(r.Context())
	if err != nil {
		jsonError(w, "sync failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"report":      report,
		"duration_ms": report.Duration.Milliseconds(),
	})
}

// handleListDocuments lists corpus files with their parsed metadata and
// index status.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	identities, err := s.corpus.List()
	if err != nil {
		jsonError(w, "failed to list corpus: "+err.Error(), http.StatusInternalServerError)
		return
	}

	indexed := map[string]bool{}
	records, err := s.store.ListDocuments(r.Context())
	if err != nil {
		jsonError(w, "failed to list indexed documents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	for _, rec := range records {
		indexed[rec.Identity] = true
	}

	docs := make([]map[string]any, 0, len(identities))
	for _, identity := range identities {
		info := metadata.Parse(identity, s.rules)
		docs = append(docs, map[string]any{
			"identity":     identity,
			"tier":         info.Tier.String(),
			"jurisdiction": string(info.Jurisdiction),
			"title":        info.Title,
			"indexed":      indexed[identity],
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// handleLLMStats reports rolling LLM latency aggregates.
func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

// handleServePDF serves a corpus PDF inline. The corpus resolver
// rejects path traversal.
func (s *Server) handleServePDF(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "*")
	if strings.ToLower(filepath.Ext(identity)) != ".pdf" {
		jsonError(w, "only pdf documents are served", http.StatusBadRequest)
		return
	}

	path, err := s.corpus.Path(identity)
	if err != nil {
		jsonError(w, "invalid document path", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+filepath.Base(identity)+`"`)
	http.ServeFile(w, r, path)
}
