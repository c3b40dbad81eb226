package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/hearthlabs/hearthsync/internal/controller"
	"github.com/hearthlabs/hearthsync/internal/entity"
)

// ConflictResolver classifies and resolves identity and attribute
// discrepancies between an external record and the registry record it is
// linked to or collides with.
//
// Resolve never returns a Go error for per-record issues; every resolution
// carries an Outcome tag and message instead, so one bad record cannot
// abort a pass.
type ConflictResolver struct {
	store    Store
	hybrids  *HybridManager
	recorder Recorder
	logger   Logger
}

// NewConflictResolver creates a resolver backed by the store.
func NewConflictResolver(store Store, hybrids *HybridManager) *ConflictResolver {
	return &ConflictResolver{store: store, hybrids: hybrids, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (r *ConflictResolver) SetLogger(logger Logger) {
	r.logger = logger
}

// SetRecorder sets the optional state-history recorder.
func (r *ConflictResolver) SetRecorder(rec Recorder) {
	r.recorder = rec
}

// Classify determines the highest-precedence conflict between a registry
// record and an incoming external record.
func (r *ConflictResolver) Classify(local *entity.Entity, ext controller.ExternalState) ConflictKind {
	linked := local.ExternalIDValue() == ext.ExternalID

	switch {
	case linked && local.LocalID != ext.ExternalID:
		return ConflictLocalIDMismatch

	case local.LocalID == ext.ExternalID && !linked:
		return ConflictExternalIDMismatch

	case linked && local.Source != entity.SourceInternal && local.Domain != ext.Domain():
		return ConflictDomainChanged

	case linked && local.Source != entity.SourceInternal && local.Name != ext.FriendlyName():
		return ConflictNameChanged

	case local.Source == entity.SourceInternal && local.Domain == ext.Domain() && r.hybrids.matches(local, ext):
		return ConflictInternalMatch
	}

	return ConflictNone
}

// Resolve classifies the conflict and applies the corresponding resolution.
// With dryRun set, detection runs but nothing is mutated.
func (r *ConflictResolver) Resolve(ctx context.Context, local *entity.Entity, ext controller.ExternalState, dryRun bool) Resolution {
	kind := r.Classify(local, ext)

	switch kind {
	case ConflictLocalIDMismatch:
		return r.resolveLocalIDMismatch(ctx, local, ext, dryRun)
	case ConflictExternalIDMismatch:
		return r.resolveExternalIDCollision(ctx, local, ext, dryRun)
	case ConflictDomainChanged:
		return r.resolveDomainChanged(ctx, local, ext, dryRun)
	case ConflictNameChanged:
		return r.resolveNameChanged(ctx, local, ext, dryRun)
	case ConflictInternalMatch:
		return r.resolveInternalMatch(ctx, local, ext, dryRun)
	default:
		return r.resolveStateUpdate(ctx, local, ext, dryRun)
	}
}

// resolveLocalIDMismatch handles case 1: same externalId, different local
// id. For external/hybrid records the local identifier and domain are
// realigned to the external value. An internal record is never overwritten;
// it is flagged for review and a fresh external record is created instead.
func (r *ConflictResolver) resolveLocalIDMismatch(ctx context.Context, local *entity.Entity, ext controller.ExternalState, dryRun bool) Resolution {
	if local.Source == entity.SourceInternal {
		if dryRun {
			return Resolution{Outcome: OutcomeCreate, Kind: ConflictLocalIDMismatch,
				Message: fmt.Sprintf("would create new record for %s; internal record %s left for review", ext.ExternalID, local.ID)}
		}
		created := newExternalEntity(ext)
		if err := r.store.CreateEntity(ctx, created); err != nil {
			return r.errorResolution(ConflictLocalIDMismatch, ext.ExternalID, err)
		}
		r.logger.Warn("internal record shadows external identifier, flagged for review",
			"id", local.ID, "external_id", ext.ExternalID)
		return Resolution{Outcome: OutcomeCreate, Kind: ConflictLocalIDMismatch, Entity: created,
			Message: fmt.Sprintf("created new record for %s; internal record %s flagged for review", ext.ExternalID, local.ID)}
	}

	if dryRun {
		return Resolution{Outcome: OutcomeUpdate, Kind: ConflictLocalIDMismatch, Entity: local,
			Message: fmt.Sprintf("would realign local id %s to %s", local.LocalID, ext.ExternalID)}
	}

	externalID := ext.ExternalID
	if err := r.store.UpdateEntityIdentity(ctx, local.ID, externalID, &externalID, ext.Domain()); err != nil {
		return r.errorResolution(ConflictLocalIDMismatch, ext.ExternalID, err)
	}
	if res := r.applyState(ctx, local, ext); res != nil {
		return *res
	}

	r.logger.Info("realigned local identifier", "id", local.ID, "from", local.LocalID, "to", externalID)
	return Resolution{Outcome: OutcomeUpdate, Kind: ConflictLocalIDMismatch, Entity: local,
		Message: fmt.Sprintf("realigned local id %s to %s", local.LocalID, externalID)}
}

// resolveExternalIDCollision handles case 2: a record's local identifier
// equals the external identifier string but its stored externalId differs.
// Against an internal record a new record is created with a disambiguated
// local id. Against an external/hybrid record this is a uniqueness-invariant
// breach and surfaces as a non-retryable conflict.
func (r *ConflictResolver) resolveExternalIDCollision(ctx context.Context, local *entity.Entity, ext controller.ExternalState, dryRun bool) Resolution {
	if local.Source != entity.SourceInternal {
		err := fmt.Errorf("%w: local id %s already linked to %s, refusing to relink to %s",
			ErrConflict, local.LocalID, local.ExternalIDValue(), ext.ExternalID)
		return r.errorResolution(ConflictExternalIDMismatch, ext.ExternalID, err)
	}

	disambiguated := ext.ExternalID + duplicateSuffix
	if dryRun {
		return Resolution{Outcome: OutcomeCreate, Kind: ConflictExternalIDMismatch,
			Message: fmt.Sprintf("would create %s with local id %s", ext.ExternalID, disambiguated)}
	}

	created := newExternalEntity(ext)
	created.LocalID = disambiguated
	if err := r.store.CreateEntity(ctx, created); err != nil {
		if errors.Is(err, entity.ErrLocalIDTaken) {
			err = fmt.Errorf("%w: disambiguated local id %s also collides", ErrConstraint, disambiguated)
		}
		return r.errorResolution(ConflictExternalIDMismatch, ext.ExternalID, err)
	}

	r.logger.Info("created external record under disambiguated local id",
		"external_id", ext.ExternalID, "local_id", disambiguated)
	return Resolution{Outcome: OutcomeCreate, Kind: ConflictExternalIDMismatch, Entity: created,
		Message: fmt.Sprintf("created %s with local id %s", ext.ExternalID, disambiguated)}
}

// resolveDomainChanged handles case 3: stored domain drifted from the
// external identifier's prefix.
func (r *ConflictResolver) resolveDomainChanged(ctx context.Context, local *entity.Entity, ext controller.ExternalState, dryRun bool) Resolution {
	if dryRun {
		return Resolution{Outcome: OutcomeUpdate, Kind: ConflictDomainChanged, Entity: local,
			Message: fmt.Sprintf("would correct domain %s to %s", local.Domain, ext.Domain())}
	}

	externalID := ext.ExternalID
	if err := r.store.UpdateEntityIdentity(ctx, local.ID, local.LocalID, &externalID, ext.Domain()); err != nil {
		return r.errorResolution(ConflictDomainChanged, ext.ExternalID, err)
	}
	if res := r.applyState(ctx, local, ext); res != nil {
		return *res
	}

	return Resolution{Outcome: OutcomeUpdate, Kind: ConflictDomainChanged, Entity: local,
		Message: fmt.Sprintf("corrected domain %s to %s", local.Domain, ext.Domain())}
}

// resolveNameChanged handles case 4: the derived external display name
// differs from the stored name. The external name wins; there is no
// user-customised flag to tell a local edit from a stale name.
func (r *ConflictResolver) resolveNameChanged(ctx context.Context, local *entity.Entity, ext controller.ExternalState, dryRun bool) Resolution {
	if dryRun {
		return Resolution{Outcome: OutcomeUpdate, Kind: ConflictNameChanged, Entity: local,
			Message: fmt.Sprintf("would rename %q to %q", local.Name, ext.FriendlyName())}
	}

	renamed := local.DeepCopy()
	renamed.Name = ext.FriendlyName()
	if err := r.store.UpdateEntity(ctx, renamed); err != nil {
		return r.errorResolution(ConflictNameChanged, ext.ExternalID, err)
	}
	if res := r.applyState(ctx, renamed, ext); res != nil {
		return *res
	}

	return Resolution{Outcome: OutcomeUpdate, Kind: ConflictNameChanged, Entity: renamed,
		Message: fmt.Sprintf("renamed %q to %q", local.Name, renamed.Name)}
}

// resolveInternalMatch handles case 5: an internal record fuzzily matches
// the incoming external record. The record is promoted to hybrid.
func (r *ConflictResolver) resolveInternalMatch(ctx context.Context, local *entity.Entity, ext controller.ExternalState, dryRun bool) Resolution {
	if dryRun {
		return Resolution{Outcome: OutcomeMerge, Kind: ConflictInternalMatch, Entity: local,
			Message: fmt.Sprintf("would merge internal record %s with %s", local.ID, ext.ExternalID)}
	}

	merged, err := r.hybrids.Merge(ctx, local, ext)
	if err != nil {
		return r.errorResolution(ConflictInternalMatch, ext.ExternalID, err)
	}
	return Resolution{Outcome: OutcomeMerge, Kind: ConflictInternalMatch, Entity: merged,
		Message: fmt.Sprintf("merged internal record %s with %s", local.ID, ext.ExternalID)}
}

// resolveStateUpdate handles the no-conflict path: a plain state,
// attributes and timestamp update.
func (r *ConflictResolver) resolveStateUpdate(ctx context.Context, local *entity.Entity, ext controller.ExternalState, dryRun bool) Resolution {
	if dryRun {
		return Resolution{Outcome: OutcomeUpdate, Kind: ConflictNone, Entity: local,
			Message: "would update state"}
	}

	if res := r.applyState(ctx, local, ext); res != nil {
		return *res
	}
	return Resolution{Outcome: OutcomeUpdate, Kind: ConflictNone, Entity: local, Message: "state updated"}
}

// applyState writes the external state, attributes and timestamps onto the
// record and feeds the history recorder. Returns a non-nil error
// Resolution on store failure.
func (r *ConflictResolver) applyState(ctx context.Context, local *entity.Entity, ext controller.ExternalState) *Resolution {
	if err := r.store.SetEntityState(ctx, local.ID, ext.State, ext.Attributes.Clone(), ext.LastChanged, ext.LastUpdated); err != nil {
		res := r.errorResolution(ConflictNone, ext.ExternalID, err)
		return &res
	}

	if r.recorder != nil && local.State != ext.State {
		r.recorder.RecordStateChange(local.LocalID, local.Domain, string(local.Source), ext.State, local.State)
	}
	return nil
}

// errorResolution wraps a per-record failure into an error outcome.
func (r *ConflictResolver) errorResolution(kind ConflictKind, externalID string, err error) Resolution {
	r.logger.Error("conflict resolution failed",
		"external_id", externalID, "kind", kind.String(), "error", err)
	return Resolution{Outcome: OutcomeError, Kind: kind, Message: err.Error(), Err: err}
}

// newExternalEntity builds a fresh source=external registry record from an
// external snapshot record. The caller persists it.
func newExternalEntity(ext controller.ExternalState) *entity.Entity {
	externalID := ext.ExternalID
	return &entity.Entity{
		LocalID:     externalID,
		ExternalID:  &externalID,
		Domain:      ext.Domain(),
		Name:        ext.FriendlyName(),
		Icon:        ext.Icon(),
		State:       ext.State,
		Attributes:  ext.Attributes.Clone(),
		Source:      entity.SourceExternal,
		LastChanged: ext.LastChanged,
		LastUpdated: ext.LastUpdated,
	}
}
