package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hearthlabs/hearthsync/internal/entity"
)

// MigrateSource performs an explicit, operator-requested source transition
// on one record.
//
// Validation happens before any mutation: the transition must be legal,
// the external identifier must be present exactly when the target source
// requires one, and moving to external/hybrid must not collide with an
// existing link. A failed validation returns a MigrationResult with
// Success=false plus a sentinel-wrapped error; the record is untouched.
func (e *Engine) MigrateSource(ctx context.Context, recordID string, target entity.Source, externalID *string) (*MigrationResult, error) {
	record, err := e.store.GetEntity(ctx, recordID)
	if err != nil {
		if errors.Is(err, entity.ErrEntityNotFound) {
			return failure("record %s not found", recordID), fmt.Errorf("%w: record %s", ErrNotFound, recordID)
		}
		return failure("lookup failed: %v", err), err
	}

	if !target.Valid() {
		return failure("unknown source %q", target), fmt.Errorf("%w: unknown source %q", ErrValidation, target)
	}

	// Self-transition is a no-op.
	if record.Source == target {
		return &MigrationResult{Success: true, Message: fmt.Sprintf("record already has source %s", target)}, nil
	}

	if !record.Source.CanTransitionTo(target) {
		return failure("illegal transition %s to %s", record.Source, target),
			fmt.Errorf("%w: illegal transition %s to %s", ErrValidation, record.Source, target)
	}

	if target.RequiresExternalID() {
		if externalID == nil || *externalID == "" {
			return failure("source %s requires an external identifier", target),
				fmt.Errorf("%w: source %s requires an external identifier", ErrValidation, target)
		}
		if err := entity.ValidateExternalID(*externalID); err != nil {
			return failure("invalid external identifier %q", *externalID),
				fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if existing, err := e.store.GetEntityByExternalID(ctx, *externalID); err == nil && existing.ID != record.ID {
			return failure("external identifier %s already linked to %s", *externalID, existing.ID),
				fmt.Errorf("%w: external identifier %s already linked", ErrConstraint, *externalID)
		} else if err != nil && !errors.Is(err, entity.ErrEntityNotFound) {
			return failure("uniqueness check failed: %v", err), err
		}
	} else if externalID != nil {
		return failure("source %s does not carry an external identifier", target),
			fmt.Errorf("%w: source %s does not carry an external identifier", ErrValidation, target)
	}

	migrated := record.DeepCopy()
	migrated.Source = target
	migrated.UpdatedAt = time.Now().UTC()
	if target.RequiresExternalID() {
		id := *externalID
		migrated.ExternalID = &id
		migrated.Domain = entity.DomainOf(id)
	} else {
		migrated.ExternalID = nil
	}

	if err := e.store.UpdateEntity(ctx, migrated); err != nil {
		return failure("migration failed: %v", err), err
	}

	e.logger.Info("migrated record source",
		"id", recordID, "from", record.Source, "to", target)
	return &MigrationResult{Success: true,
		Message: fmt.Sprintf("migrated %s from %s to %s", recordID, record.Source, target)}, nil
}

func failure(format string, args ...any) *MigrationResult {
	return &MigrationResult{Success: false, Message: fmt.Sprintf(format, args...)}
}
