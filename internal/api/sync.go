package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/hearthlabs/hearthsync/internal/sync"
)

// runRequest is the body of a sync run call. Every field is optional;
// unset fields fall back to the server's configured defaults.
type runRequest struct {
	ConflictPolicy   string `json:"conflict_policy"`
	HandleDeletions  *bool  `json:"handle_deletions"`
	DeletionStrategy string `json:"deletion_strategy"`
	MergeHybrids     *bool  `json:"merge_hybrids"`
	DryRun           bool   `json:"dry_run"`
}

// handleRunSync triggers one full reconciliation pass and returns its
// result. An empty body runs with the configured defaults.
func (s *Server) handleRunSync(w http.ResponseWriter, r *http.Request) {
	opts := s.defaults

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.ConflictPolicy != "" {
		opts.ConflictPolicy = req.ConflictPolicy
	}
	if req.HandleDeletions != nil {
		opts.HandleDeletions = *req.HandleDeletions
	}
	if req.DeletionStrategy != "" {
		opts.DeletionStrategy = sync.DeletionStrategy(req.DeletionStrategy)
	}
	if req.MergeHybrids != nil {
		opts.MergeHybrids = *req.MergeHybrids
	}
	opts.DryRun = req.DryRun

	result, err := s.engine.RunFullSync(r.Context(), opts)
	if err != nil {
		if errors.Is(err, sync.ErrConnectivity) {
			writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
			return
		}
		writeInternalError(w, "sync run failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// duplicateCheckRequest is the body of a duplicate probe.
type duplicateCheckRequest struct {
	ExternalID string `json:"external_id"`
	Domain     string `json:"domain"`
	Name       string `json:"name"`
}

// handleCheckDuplicates probes the registry for records a candidate would
// duplicate.
func (s *Server) handleCheckDuplicates(w http.ResponseWriter, r *http.Request) {
	var req duplicateCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ExternalID == "" && req.Name == "" {
		writeBadRequest(w, "external_id or name is required")
		return
	}

	report, err := s.engine.CheckDuplicates(r.Context(), req.ExternalID, req.Domain, req.Name)
	if err != nil {
		writeInternalError(w, "duplicate check failed")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// handleDeletionCleanup hard-deletes every soft-deleted record.
func (s *Server) handleDeletionCleanup(w http.ResponseWriter, r *http.Request) {
	purged, err := s.engine.Deletions().Cleanup(r.Context())
	if err != nil {
		writeInternalError(w, "cleanup failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"purged": purged})
}

// restoreRequest is the body of a soft-delete restore call.
type restoreRequest struct {
	ExternalID string `json:"external_id"`
}

// handleDeletionRestore strips the soft-delete markers from a record.
func (s *Server) handleDeletionRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ExternalID == "" {
		writeBadRequest(w, "external_id is required")
		return
	}

	restored, err := s.engine.Deletions().Restore(r.Context(), req.ExternalID)
	if err != nil {
		if errors.Is(err, sync.ErrNotFound) {
			writeNotFound(w, "entity not found")
			return
		}
		writeInternalError(w, "restore failed")
		return
	}

	writeJSON(w, http.StatusOK, restored)
}
