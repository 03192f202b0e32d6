package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/mdguard/internal/ledger"
	"github.com/dgallion1/mdguard/internal/pathstore"
	"github.com/dgallion1/mdguard/internal/pipeline"
)

// handleListDocuments lists the stored documents of a user.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		jsonError(w, "document sink is not configured", http.StatusServiceUnavailable)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		jsonError(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}

	prefix := "memory/users/" + userID + "/documents"
	children, err := s.store.ListChildren(r.Context(), prefix, 200)
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusBadGateway)
		return
	}

	docs := []map[string]any{}
	for _, child := range children {
		if strings.HasSuffix(child.Key, ".meta") || strings.HasSuffix(child.Key, "/meta") {
			docs = append(docs, map[string]any{"key": child.Key, "value": child.Value})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// handleDeleteDocument removes a document's chunks, its hash index entry
// and its ledger history.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		jsonError(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	resp := map[string]any{}

	if s.store != nil {
		docPrefix := pipeline.DocumentPrefix(userID, docID)
		hashDeleted := false
		// Read the meta before deleting it to find the hash index entry.
		meta, err := s.store.GetNode(ctx, docPrefix+"/meta")
		if err != nil && !errors.Is(err, pathstore.ErrNotFound) {
			jsonError(w, "failed to read document meta: "+err.Error(), http.StatusBadGateway)
			return
		}
		if hash := contentHash(meta); hash != "" {
			key := pipeline.HashIndexPrefix(userID, hash) + "/" + docID
			hashDeleted = s.store.DeleteNode(ctx, key, false) == nil
		}
		if err := s.store.DeleteNode(ctx, docPrefix, true); err != nil {
			jsonError(w, "failed to delete document: "+err.Error(), http.StatusBadGateway)
			return
		}
		resp["document_deleted"] = true
		resp["hash_index_deleted"] = hashDeleted
	}

	if s.ledger != nil {
		n, err := s.ledger.DeleteDocument(ctx, docID)
		if err != nil {
			jsonError(w, "failed to delete ledger entries: "+err.Error(), http.StatusInternalServerError)
			return
		}
		resp["ledger_entries_deleted"] = n
	}

	if len(resp) == 0 {
		jsonError(w, "neither sink nor ledger is configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func contentHash(meta *pathstore.NodeResponse) string {
	if meta == nil {
		return ""
	}
	m, ok := meta.Value.(map[string]any)
	if !ok {
		return ""
	}
	hash, _ := m["content_hash"].(string)
	return hash
}

// handleQuarantine lists blocked and quarantined verdicts, newest first.
// ?all=true includes accepted documents.
func (s *Server) handleQuarantine(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		jsonError(w, "ledger is not configured", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	all, _ := strconv.ParseBool(q.Get("all"))

	var (
		entries []ledger.Entry
		err     error
	)
	if docID := q.Get("doc_id"); docID != "" {
		entries, err = s.ledger.ForDocument(r.Context(), docID)
	} else {
		entries, err = s.ledger.List(r.Context(), ledger.ListOptions{FlaggedOnly: !all, Limit: limit})
	}
	if err != nil {
		jsonError(w, "failed to read ledger: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleParseStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":       s.orchestrator.Stats().Snapshot(),
		"queue_depth": s.orchestrator.QueueDepth(),
	})
}
