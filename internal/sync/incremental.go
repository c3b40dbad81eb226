package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hearthlabs/hearthsync/internal/entity"
)

// ApplyIncrementalUpdate applies one externally-pushed update without a
// full scan.
//
// The incremental path never creates records - only the orchestrator does.
// Two concurrent observers of "no record for this externalId" would
// otherwise race on creation; restricting creation to the full pass
// eliminates the race by policy, not locking. Ambiguous cases are logged
// and deferred to the next full pass, which self-corrects under
// at-least-once delivery.
//
// Returns the record after the update, or nil when the update was deferred.
func (e *Engine) ApplyIncrementalUpdate(ctx context.Context, update Update, previous *Update) (*entity.Entity, error) {
	if _, _, err := entity.SplitExternalID(update.ExternalID); err != nil {
		return nil, fmt.Errorf("%w: malformed external identifier %q", ErrValidation, update.ExternalID)
	}

	// A previous record carrying a different identifier is a rename.
	if previous != nil && previous.ExternalID != "" && previous.ExternalID != update.ExternalID {
		if renamed, err := e.applyRename(ctx, previous.ExternalID, update); err != nil || renamed != nil {
			return renamed, err
		}
		// Old identifier unknown; fall through to a plain lookup.
	}

	local, err := e.store.GetEntityByExternalID(ctx, update.ExternalID)
	switch {
	case err == nil:
		return e.applyUpdate(ctx, local, update)

	case errors.Is(err, entity.ErrEntityNotFound):
		e.deferUnknown(ctx, update)
		return nil, nil

	default:
		e.logger.Error("incremental lookup failed", "external_id", update.ExternalID, "error", err)
		return nil, nil
	}
}

// applyRename rewrites the identity of the record linked to the old
// identifier, then applies the state update. Returns (nil, nil) when no
// record is linked to the old identifier.
func (e *Engine) applyRename(ctx context.Context, oldExternalID string, update Update) (*entity.Entity, error) {
	local, err := e.store.GetEntityByExternalID(ctx, oldExternalID)
	if err != nil {
		if errors.Is(err, entity.ErrEntityNotFound) {
			return nil, nil
		}
		e.logger.Error("rename lookup failed", "external_id", oldExternalID, "error", err)
		return nil, nil
	}

	newExternalID := update.ExternalID
	domain := entity.DomainOf(newExternalID)
	if err := e.store.UpdateEntityIdentity(ctx, local.ID, newExternalID, &newExternalID, domain); err != nil {
		e.logger.Error("rename failed",
			"id", local.ID, "from", oldExternalID, "to", newExternalID, "error", err)
		return nil, nil
	}

	e.logger.Info("renamed record from incremental update",
		"id", local.ID, "from", oldExternalID, "to", newExternalID)

	local.LocalID = newExternalID
	local.ExternalID = &newExternalID
	local.Domain = domain
	return e.applyUpdate(ctx, local, update)
}

// applyUpdate re-runs the identity checks on a linked record, then writes
// the state.
func (e *Engine) applyUpdate(ctx context.Context, local *entity.Entity, update Update) (*entity.Entity, error) {
	externalID := update.ExternalID
	domain := entity.DomainOf(externalID)

	// Same checks as the full-pass resolver: local id or domain drift.
	if local.LocalID != externalID || local.Domain != domain {
		if err := e.store.UpdateEntityIdentity(ctx, local.ID, externalID, &externalID, domain); err != nil {
			e.logger.Error("identity realignment failed", "id", local.ID, "error", err)
			return nil, nil
		}
		local.LocalID = externalID
		local.ExternalID = &externalID
		local.Domain = domain
	}

	lastChanged := update.LastChanged
	if lastChanged.IsZero() {
		lastChanged = time.Now().UTC()
	}
	lastUpdated := update.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = lastChanged
	}

	attrs := update.Attributes
	if attrs == nil {
		// State-only event: keep the stored attributes.
		attrs = local.Attributes
	}

	if err := e.store.SetEntityState(ctx, local.ID, update.State, attrs, lastChanged, lastUpdated); err != nil {
		e.logger.Error("incremental state write failed", "id", local.ID, "error", err)
		return nil, nil
	}

	if e.recorder != nil && local.State != update.State {
		e.recorder.RecordStateChange(local.LocalID, local.Domain, string(local.Source), update.State, local.State)
	}

	local.State = update.State
	local.Attributes = attrs.Clone()
	local.LastChanged = lastChanged
	local.LastUpdated = lastUpdated
	return local, nil
}

// deferUnknown logs an update for an identifier the registry has never
// seen. A colliding internal record is a merge candidate for the next full
// pass; deliberately no mutation here.
func (e *Engine) deferUnknown(ctx context.Context, update Update) {
	if collider, err := e.store.GetEntityByLocalID(ctx, update.ExternalID); err == nil {
		if collider.Source == entity.SourceInternal {
			e.logger.Info("merge candidate deferred to next full pass",
				"external_id", update.ExternalID, "id", collider.ID)
			return
		}
	}
	e.logger.Debug("unseen external identifier, awaiting full sync",
		"external_id", update.ExternalID)
}

// HandleDeletionEvent applies the soft-delete policy to the record linked
// to a deletion notification from the real-time feed.
func (e *Engine) HandleDeletionEvent(ctx context.Context, externalID string) error {
	local, err := e.store.GetEntityByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, entity.ErrEntityNotFound) {
			e.logger.Debug("deletion event for unknown identifier", "external_id", externalID)
			return nil
		}
		return err
	}

	result := &DeletionResult{}
	e.deletions.apply(ctx, local, DeletionSoft, result)
	if len(result.Errors) > 0 {
		return result.Errors[0].Err
	}

	e.logger.Info("soft-deleted record from deletion event",
		"id", local.ID, "external_id", externalID)
	return nil
}
