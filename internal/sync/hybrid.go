package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/hearthlabs/hearthsync/internal/controller"
	"github.com/hearthlabs/hearthsync/internal/entity"
)

// HybridManager detects and merges a locally-created record with a matching
// externally-observed one.
type HybridManager struct {
	store  Store
	logger Logger
}

// NewHybridManager creates a hybrid manager backed by the store.
func NewHybridManager(store Store) *HybridManager {
	return &HybridManager{store: store, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (m *HybridManager) SetLogger(logger Logger) {
	m.logger = logger
}

// FindCandidates returns all source=internal records in the external
// record's domain satisfying the match predicate: fuzzy name match or
// fuzzy identifier-object match.
func (m *HybridManager) FindCandidates(ctx context.Context, ext controller.ExternalState) ([]entity.Entity, error) {
	internals, err := m.store.ListBySourceAndDomain(ctx, entity.SourceInternal, ext.Domain())
	if err != nil {
		return nil, err
	}

	var candidates []entity.Entity
	for i := range internals {
		if m.matches(&internals[i], ext) {
			candidates = append(candidates, internals[i])
		}
	}
	return candidates, nil
}

// matches applies the hybrid match predicate to one internal record.
func (m *HybridManager) matches(internal *entity.Entity, ext controller.ExternalState) bool {
	if internal.Source != entity.SourceInternal {
		return false
	}
	if fuzzyMatch(internal.Name, ext.FriendlyName()) {
		return true
	}
	return fuzzyMatch(entity.ObjectOf(internal.LocalID), ext.Object())
}

// Merge promotes an internal record to hybrid, copying identity, state,
// attributes and timestamps from the external record.
//
// Name and icon are preserved only when they differ from the predictable
// default-name pattern, i.e. when they look locally customised; otherwise
// the external name and icon are adopted. There is no explicit
// user-customised flag, so a real customisation that happens to match the
// default pattern is indistinguishable from no customisation.
func (m *HybridManager) Merge(ctx context.Context, internal *entity.Entity, ext controller.ExternalState) (*entity.Entity, error) {
	merged := internal.DeepCopy()

	externalID := ext.ExternalID
	merged.Source = entity.SourceHybrid
	merged.ExternalID = &externalID
	merged.LocalID = externalID
	merged.Domain = ext.Domain()
	merged.State = ext.State
	merged.Attributes = ext.Attributes.Clone()
	merged.LastChanged = ext.LastChanged
	merged.LastUpdated = ext.LastUpdated
	merged.UpdatedAt = time.Now().UTC()

	if !m.isCustomised(internal) {
		merged.Name = ext.FriendlyName()
		merged.Icon = ext.Icon()
	}

	if err := m.store.UpdateEntity(ctx, merged); err != nil {
		return nil, fmt.Errorf("merging %s into %s: %w", ext.ExternalID, internal.ID, err)
	}

	m.logger.Info("merged internal record with external",
		"id", merged.ID,
		"external_id", externalID,
		"name_preserved", merged.Name == internal.Name,
	)
	return merged, nil
}

// isCustomised reports whether the internal record's name looks locally
// customised: it differs from the default name derived from its local
// identifier.
func (m *HybridManager) isCustomised(internal *entity.Entity) bool {
	return internal.Name != entity.DefaultNameFor(internal.LocalID)
}
