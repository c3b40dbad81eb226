package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hearthlabs/hearthsync/internal/entity"
	"github.com/hearthlabs/hearthsync/internal/sync"
)

// handleListEntities returns all registry records, with optional query filters.
//
// Query parameters:
//   - domain: filter by domain (light, switch, sensor, ...)
//   - source: filter by source (internal, external, hybrid)
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	domain := r.URL.Query().Get("domain")
	sourceStr := r.URL.Query().Get("source")

	if sourceStr != "" {
		source := entity.Source(sourceStr)
		if !source.Valid() {
			writeBadRequest(w, "unknown source "+sourceStr)
			return
		}
		var (
			entities []entity.Entity
			err      error
		)
		if domain != "" {
			entities, err = s.registry.ListBySourceAndDomain(ctx, source, domain)
		} else {
			entities, err = s.registry.ListBySource(ctx, source)
		}
		if err != nil {
			writeInternalError(w, "failed to list entities")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entities": entities, "count": len(entities)})
		return
	}

	if domain != "" {
		entities, err := s.registry.ListByDomain(ctx, domain)
		if err != nil {
			writeInternalError(w, "failed to list entities")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entities": entities, "count": len(entities)})
		return
	}

	entities, err := s.registry.ListEntities(ctx)
	if err != nil {
		writeInternalError(w, "failed to list entities")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": entities, "count": len(entities)})
}

// handleGetEntity returns a single record by registry ID.
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := s.registry.GetEntity(r.Context(), id)
	if err != nil {
		if errors.Is(err, entity.ErrEntityNotFound) {
			writeNotFound(w, "entity not found")
			return
		}
		writeInternalError(w, "failed to get entity")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleCreateEntity registers a new record.
//
// Externally-linked records (external or hybrid source) go through the
// strict duplicate check first: a high-confidence duplicate rejects the
// creation with 409.
func (s *Server) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var record entity.Entity
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if record.ExternalID != nil {
		err := s.engine.Duplicates().EnsureNotDuplicate(r.Context(),
			*record.ExternalID, entity.DomainOf(*record.ExternalID), record.Name)
		if err != nil {
			if errors.Is(err, sync.ErrDuplicateEntity) {
				writeConflict(w, err.Error())
				return
			}
			writeInternalError(w, "duplicate check failed")
			return
		}
	}

	if err := s.registry.CreateEntity(r.Context(), &record); err != nil {
		switch {
		case isValidationError(err):
			writeBadRequest(w, err.Error())
		case isConstraintError(err):
			writeConflict(w, err.Error())
		default:
			writeInternalError(w, "failed to create entity")
		}
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

// entityPatch is the set of locally-owned fields a PATCH may change.
// Identity fields (local id, external id, domain, source) are managed by
// the sync engine and the migrate-source endpoint.
type entityPatch struct {
	Name     *string `json:"name"`
	Icon     *string `json:"icon"`
	DeviceID *string `json:"device_id"`
}

// handleUpdateEntity partially updates a record's locally-owned fields.
func (s *Server) handleUpdateEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, err := s.registry.GetEntity(r.Context(), id)
	if err != nil {
		if errors.Is(err, entity.ErrEntityNotFound) {
			writeNotFound(w, "entity not found")
			return
		}
		writeInternalError(w, "failed to get entity")
		return
	}

	var patch entityPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if patch.Name != nil {
		existing.Name = *patch.Name
	}
	if patch.Icon != nil {
		existing.Icon = patch.Icon
	}
	if patch.DeviceID != nil {
		existing.DeviceID = *patch.DeviceID
	}

	if err := s.registry.UpdateEntity(r.Context(), existing); err != nil {
		if isValidationError(err) {
			writeBadRequest(w, err.Error())
			return
		}
		writeInternalError(w, "failed to update entity")
		return
	}

	writeJSON(w, http.StatusOK, existing)
}

// handleDeleteEntity removes a record by registry ID.
func (s *Server) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.registry.DeleteEntity(r.Context(), id); err != nil {
		if errors.Is(err, entity.ErrEntityNotFound) {
			writeNotFound(w, "entity not found")
			return
		}
		writeInternalError(w, "failed to delete entity")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleEntityStats returns registry record counts by source.
func (s *Server) handleEntityStats(w http.ResponseWriter, r *http.Request) {
	entities, err := s.registry.ListEntities(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list entities")
		return
	}

	bySource := map[entity.Source]int{}
	byDomain := map[string]int{}
	for i := range entities {
		bySource[entities[i].Source]++
		byDomain[entities[i].Domain]++
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":     len(entities),
		"by_source": bySource,
		"by_domain": byDomain,
	})
}

// migrateSourceRequest is the body of a migrate-source call.
type migrateSourceRequest struct {
	Target     string  `json:"target"`
	ExternalID *string `json:"external_id,omitempty"`
}

// handleMigrateSource explicitly transitions a record between sources.
func (s *Server) handleMigrateSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req migrateSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.engine.MigrateSource(r.Context(), id, entity.Source(req.Target), req.ExternalID)
	if err != nil {
		switch {
		case errors.Is(err, sync.ErrNotFound):
			writeNotFound(w, "entity not found")
		case errors.Is(err, sync.ErrValidation):
			writeBadRequest(w, err.Error())
		case errors.Is(err, sync.ErrConstraint), errors.Is(err, sync.ErrConflict):
			writeConflict(w, err.Error())
		default:
			writeInternalError(w, "failed to migrate source")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// isValidationError checks whether an error is an entity validation error.
// ValidateEntity wraps various sentinel errors (ErrInvalidName,
// ErrInvalidExternalID, etc.) so we check all of them rather than just
// ErrInvalidEntity.
func isValidationError(err error) bool {
	return errors.Is(err, entity.ErrInvalidEntity) ||
		errors.Is(err, entity.ErrInvalidName) ||
		errors.Is(err, entity.ErrInvalidSource) ||
		errors.Is(err, entity.ErrInvalidExternalID) ||
		errors.Is(err, entity.ErrInvariant)
}

// isConstraintError checks whether an error is an identifier-uniqueness
// breach.
func isConstraintError(err error) bool {
	return errors.Is(err, entity.ErrEntityExists) ||
		errors.Is(err, entity.ErrLocalIDTaken) ||
		errors.Is(err, entity.ErrExternalIDTaken)
}
