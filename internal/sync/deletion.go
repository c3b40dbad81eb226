package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hearthlabs/hearthsync/internal/entity"
)

// DeletionDetector finds registry records whose external counterpart
// vanished from the latest snapshot and applies a deletion policy.
type DeletionDetector struct {
	store    Store
	recorder Recorder
	logger   Logger
}

// NewDeletionDetector creates a deletion detector backed by the store.
func NewDeletionDetector(store Store) *DeletionDetector {
	return &DeletionDetector{store: store, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (d *DeletionDetector) SetLogger(logger Logger) {
	d.logger = logger
}

// SetRecorder sets the optional state-history recorder.
func (d *DeletionDetector) SetRecorder(rec Recorder) {
	d.recorder = rec
}

// DetectAndApply walks every external and hybrid record, and applies the
// strategy to those whose externalId is absent from the snapshot. The seen
// set holds the external identifiers present in the latest snapshot.
//
// Per-record failures are captured into the result and never abort the
// pass.
func (d *DeletionDetector) DetectAndApply(ctx context.Context, seen map[string]bool, strategy DeletionStrategy) (*DeletionResult, error) {
	if !strategy.Valid() {
		return nil, fmt.Errorf("%w: unknown deletion strategy %q", ErrValidation, strategy)
	}

	result := &DeletionResult{}
	if strategy == DeletionPreserve {
		return result, nil
	}

	for _, source := range []entity.Source{entity.SourceExternal, entity.SourceHybrid} {
		records, err := d.store.ListBySource(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("listing %s records: %w", source, err)
		}

		for i := range records {
			record := &records[i]
			externalID := record.ExternalIDValue()
			if externalID == "" || seen[externalID] {
				continue
			}
			d.apply(ctx, record, strategy, result)
		}
	}

	return result, nil
}

// apply executes one strategy on one vanished record.
func (d *DeletionDetector) apply(ctx context.Context, record *entity.Entity, strategy DeletionStrategy, result *DeletionResult) {
	externalID := record.ExternalIDValue()

	switch strategy {
	case DeletionHard:
		if err := d.store.DeleteEntity(ctx, record.ID); err != nil {
			result.Errors = append(result.Errors, recordError(externalID, err))
			return
		}
		result.HardDeleted++
		d.logger.Info("hard-deleted vanished record", "id", record.ID, "external_id", externalID)

	case DeletionSoft:
		if record.Source == entity.SourceHybrid {
			if err := d.demoteHybrid(ctx, record); err != nil {
				result.Errors = append(result.Errors, recordError(externalID, err))
				return
			}
			result.ConvertedToInternal++
			d.logger.Info("demoted vanished hybrid to internal", "id", record.ID, "external_id", externalID)
		} else {
			if err := d.markUnavailable(ctx, record); err != nil {
				result.Errors = append(result.Errors, recordError(externalID, err))
				return
			}
			result.MarkedUnavailable++
			d.logger.Info("marked vanished record unavailable", "id", record.ID, "external_id", externalID)
		}

		if d.recorder != nil && record.State != stateUnavailable {
			d.recorder.RecordStateChange(record.LocalID, record.Domain, string(record.Source), stateUnavailable, record.State)
		}
	}
}

// markUnavailable soft-deletes an external record in place: state becomes
// "unavailable" and deletion markers are stamped into the attributes. The
// source stays external so a reappearing snapshot record restores it.
func (d *DeletionDetector) markUnavailable(ctx context.Context, record *entity.Entity) error {
	attrs := stampDeletionMarkers(record.Attributes)
	return d.store.SetEntityState(ctx, record.ID, stateUnavailable, attrs, record.LastChanged, time.Now().UTC())
}

// demoteHybrid soft-deletes a hybrid record: it becomes a plain internal
// record with no external identifier, keeping its local customisations.
func (d *DeletionDetector) demoteHybrid(ctx context.Context, record *entity.Entity) error {
	demoted := record.DeepCopy()
	demoted.Source = entity.SourceInternal
	demoted.ExternalID = nil
	demoted.State = stateUnavailable
	demoted.Attributes = stampDeletionMarkers(record.Attributes)
	demoted.UpdatedAt = time.Now().UTC()
	return d.store.UpdateEntity(ctx, demoted)
}

// Cleanup purges soft-deleted external records that are still unavailable.
// Returns the number of records removed.
func (d *DeletionDetector) Cleanup(ctx context.Context) (int, error) {
	records, err := d.store.ListBySource(ctx, entity.SourceExternal)
	if err != nil {
		return 0, fmt.Errorf("listing external records: %w", err)
	}

	purged := 0
	for i := range records {
		record := &records[i]
		if record.State != stateUnavailable || !hasDeletionMarkers(record.Attributes) {
			continue
		}
		if err := d.store.DeleteEntity(ctx, record.ID); err != nil {
			d.logger.Error("cleanup failed for record", "id", record.ID, "error", err)
			continue
		}
		purged++
	}

	d.logger.Info("cleanup purged soft-deleted records", "count", purged)
	return purged, nil
}

// Restore strips the deletion markers from a soft-deleted record when its
// external counterpart reappears. The next state update overwrites the
// stale "unavailable" state.
func (d *DeletionDetector) Restore(ctx context.Context, externalID string) (*entity.Entity, error) {
	record, err := d.store.GetEntityByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, entity.ErrEntityNotFound) {
			return nil, fmt.Errorf("%w: no record linked to %s", ErrNotFound, externalID)
		}
		return nil, err
	}

	if !hasDeletionMarkers(record.Attributes) {
		return record, nil
	}

	attrs := record.Attributes.Clone()
	delete(attrs, attrDeleted)
	delete(attrs, attrDeletedAt)
	if err := d.store.SetEntityState(ctx, record.ID, record.State, attrs, record.LastChanged, time.Now().UTC()); err != nil {
		return nil, err
	}

	record.Attributes = attrs
	d.logger.Info("restored soft-deleted record", "id", record.ID, "external_id", externalID)
	return record, nil
}

// stampDeletionMarkers returns a copy of attrs carrying the soft-delete
// marker and timestamp.
func stampDeletionMarkers(attrs entity.Attributes) entity.Attributes {
	stamped := attrs.Clone()
	if stamped == nil {
		stamped = entity.Attributes{}
	}
	stamped[attrDeleted] = true
	stamped[attrDeletedAt] = time.Now().UTC().Format(time.RFC3339)
	return stamped
}

// hasDeletionMarkers reports whether attrs carry the soft-delete marker.
func hasDeletionMarkers(attrs entity.Attributes) bool {
	deleted, ok := attrs[attrDeleted].(bool)
	return ok && deleted
}

func recordError(externalID string, err error) RecordError {
	return RecordError{ExternalID: externalID, Message: err.Error(), Err: err}
}
