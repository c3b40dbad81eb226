package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hearthlabs/hearthsync/internal/controller"
	"github.com/hearthlabs/hearthsync/internal/entity"
	"github.com/hearthlabs/hearthsync/internal/infrastructure/mqtt"
)

// Engine is the entity synchronization and conflict-resolution engine.
//
// It exposes the two entry points of the sync subsystem - RunFullSync for
// periodic batch reconciliation and ApplyIncrementalUpdate for real-time
// events - plus the operator-facing duplicate check and source migration.
//
// All state is injected; the engine holds no globals and multiple engines
// can run against separate registries.
type Engine struct {
	store     Store
	snapshots Snapshotter

	duplicates *DuplicatePreventer
	hybrids    *HybridManager
	conflicts  *ConflictResolver
	deletions  *DeletionDetector

	recorder  Recorder
	publisher Publisher
	logger    Logger
}

// NewEngine wires an engine from its two hard dependencies. Logging,
// history recording and event publishing are optional and attached with
// setters.
func NewEngine(store Store, snapshots Snapshotter) *Engine {
	hybrids := NewHybridManager(store)
	return &Engine{
		store:      store,
		snapshots:  snapshots,
		duplicates: NewDuplicatePreventer(store),
		hybrids:    hybrids,
		conflicts:  NewConflictResolver(store, hybrids),
		deletions:  NewDeletionDetector(store),
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger on the engine and all its components.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
	e.duplicates.SetLogger(logger)
	e.hybrids.SetLogger(logger)
	e.conflicts.SetLogger(logger)
	e.deletions.SetLogger(logger)
}

// SetRecorder sets the optional state-history recorder.
func (e *Engine) SetRecorder(rec Recorder) {
	e.recorder = rec
	e.conflicts.SetRecorder(rec)
	e.deletions.SetRecorder(rec)
}

// SetPublisher sets the optional sync-event publisher.
func (e *Engine) SetPublisher(pub Publisher) {
	e.publisher = pub
}

// Deletions exposes the deletion detector for cleanup/restore calls.
func (e *Engine) Deletions() *DeletionDetector {
	return e.deletions
}

// Duplicates exposes the duplicate preventer for strict pre-creation checks.
func (e *Engine) Duplicates() *DuplicatePreventer {
	return e.duplicates
}

// RunFullSync runs one full reconciliation pass: fetch the complete
// external snapshot, process every record, then detect deletions.
//
// Per-record failures are captured into the result and never abort the
// run. The only fatal error is a failed snapshot fetch, which aborts the
// pass with zero progress.
func (e *Engine) RunFullSync(ctx context.Context, opts Options) (*Result, error) {
	started := time.Now()

	if opts.ConflictPolicy == "" {
		opts.ConflictPolicy = PolicyAuto
	}
	if opts.DeletionStrategy == "" {
		opts.DeletionStrategy = DeletionSoft
	}

	snapshot, err := e.snapshots.FetchAllStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectivity, err)
	}

	result := &Result{DryRun: opts.DryRun}
	seen := make(map[string]bool, len(snapshot))

	for _, ext := range snapshot {
		result.Total++

		if _, _, err := entity.SplitExternalID(ext.ExternalID); err != nil {
			result.Errors = append(result.Errors, recordError(ext.ExternalID,
				fmt.Errorf("%w: missing or malformed external identifier %q", ErrValidation, ext.ExternalID)))
			continue
		}
		seen[ext.ExternalID] = true

		e.processRecord(ctx, ext, opts, result)
	}

	if opts.HandleDeletions && !opts.DryRun {
		deletions, err := e.deletions.DetectAndApply(ctx, seen, opts.DeletionStrategy)
		if err != nil {
			result.Errors = append(result.Errors, recordError("", err))
		} else {
			result.Deletions = deletions
		}
	}

	result.Duration = time.Since(started)
	e.logger.Info("full sync complete",
		"created", result.Created,
		"updated", result.Updated,
		"merged", result.Merged,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
		"total", result.Total,
		"dry_run", result.DryRun,
		"duration", result.Duration,
	)

	e.recordRun(result)
	e.publishRunEvent(result)
	return result, nil
}

// processRecord reconciles one external snapshot record against the
// registry and tallies the outcome.
func (e *Engine) processRecord(ctx context.Context, ext controller.ExternalState, opts Options, result *Result) {
	// Under a skip policy, high-confidence duplicates are skipped rather
	// than updated.
	if opts.ConflictPolicy == PolicySkip {
		report, err := e.duplicates.CheckDuplicates(ctx, ext.ExternalID, ext.Domain(), ext.FriendlyName())
		if err != nil {
			result.Errors = append(result.Errors, recordError(ext.ExternalID, err))
			return
		}
		if report.Confidence == ConfidenceHigh {
			result.Skipped++
			return
		}
	}

	// Linked record: delegate to the conflict resolver.
	local, err := e.store.GetEntityByExternalID(ctx, ext.ExternalID)
	switch {
	case err == nil:
		e.tally(e.conflicts.Resolve(ctx, local, ext, opts.DryRun), ext.ExternalID, result)
		return
	case !errors.Is(err, entity.ErrEntityNotFound):
		result.Errors = append(result.Errors, recordError(ext.ExternalID, err))
		return
	}

	// Unlinked: try merging with a matching internal record first.
	if opts.MergeHybrids {
		candidates, err := e.hybrids.FindCandidates(ctx, ext)
		if err != nil {
			result.Errors = append(result.Errors, recordError(ext.ExternalID, err))
			return
		}
		if len(candidates) > 0 {
			if opts.DryRun {
				result.Merged++
				return
			}
			if _, err := e.hybrids.Merge(ctx, &candidates[0], ext); err != nil {
				result.Errors = append(result.Errors, recordError(ext.ExternalID, err))
				return
			}
			result.Merged++
			return
		}
	}

	// Local-id collision: conflict resolver case 2.
	if collider, err := e.store.GetEntityByLocalID(ctx, ext.ExternalID); err == nil {
		e.tally(e.conflicts.Resolve(ctx, collider, ext, opts.DryRun), ext.ExternalID, result)
		return
	} else if !errors.Is(err, entity.ErrEntityNotFound) {
		result.Errors = append(result.Errors, recordError(ext.ExternalID, err))
		return
	}

	// Brand-new external record.
	if opts.DryRun {
		result.Created++
		return
	}
	created := newExternalEntity(ext)
	if err := e.store.CreateEntity(ctx, created); err != nil {
		result.Errors = append(result.Errors, recordError(ext.ExternalID, err))
		return
	}
	result.Created++
	e.logger.Debug("created external record", "external_id", ext.ExternalID)
}

// tally folds one resolution into the aggregate result.
func (e *Engine) tally(res Resolution, externalID string, result *Result) {
	switch res.Outcome {
	case OutcomeCreate:
		result.Created++
	case OutcomeUpdate:
		result.Updated++
	case OutcomeMerge:
		result.Merged++
	case OutcomeSkip:
		result.Skipped++
	case OutcomeError:
		result.Errors = append(result.Errors, RecordError{ExternalID: externalID, Message: res.Message, Err: res.Err})
	}
}

// CheckDuplicates is the operator-facing duplicate probe.
func (e *Engine) CheckDuplicates(ctx context.Context, externalID, domain, name string) (*DuplicateReport, error) {
	return e.duplicates.CheckDuplicates(ctx, externalID, domain, name)
}

// recordRun feeds the run counters to the history recorder.
func (e *Engine) recordRun(result *Result) {
	if e.recorder == nil || result.DryRun {
		return
	}
	deleted := 0
	if result.Deletions != nil {
		deleted = result.Deletions.HardDeleted + result.Deletions.MarkedUnavailable + result.Deletions.ConvertedToInternal
	}
	e.recorder.RecordSyncRun(result.Created, result.Updated, deleted, result.Merged, len(result.Errors), result.Duration)
}

// publishRunEvent announces a completed pass on the sync event topic.
func (e *Engine) publishRunEvent(result *Result) {
	if e.publisher == nil || result.DryRun {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		e.logger.Error("marshalling run event", "error", err)
		return
	}
	topic := mqtt.Topics{}.SyncEvent("run_completed")
	if err := e.publisher.Publish(topic, payload, 1, false); err != nil {
		e.logger.Warn("publishing run event", "error", err)
	}
}
