package sync

import (
	"context"
	"time"

	"github.com/hearthlabs/hearthsync/internal/controller"
	"github.com/hearthlabs/hearthsync/internal/entity"
)

// Soft-delete markers written into entity attributes.
const (
	attrDeleted   = "hearthsync_deleted"
	attrDeletedAt = "hearthsync_deleted_at"

	// stateUnavailable is the state value forced onto soft-deleted records.
	stateUnavailable = "unavailable"

	// duplicateSuffix disambiguates the local identifier when a new external
	// record collides with an existing internal local id.
	duplicateSuffix = "_2"
)

// Conflict policies for a full pass.
const (
	// PolicyAuto resolves conflicts as they are classified.
	PolicyAuto = "auto"

	// PolicySkip skips records that are high-confidence duplicates instead
	// of updating them.
	PolicySkip = "skip"
)

// Options control a full reconciliation pass.
type Options struct {
	// ConflictPolicy is PolicyAuto or PolicySkip.
	ConflictPolicy string

	// HandleDeletions runs the deletion detector at the end of the pass.
	HandleDeletions bool

	// DeletionStrategy applies when HandleDeletions is set.
	DeletionStrategy DeletionStrategy

	// MergeHybrids merges matching internal records with unlinked external
	// ones instead of creating duplicates.
	MergeHybrids bool

	// DryRun performs detection only; no registry mutation.
	DryRun bool
}

// DefaultOptions returns the options used when the caller specifies none.
func DefaultOptions() Options {
	return Options{
		ConflictPolicy:   PolicyAuto,
		HandleDeletions:  true,
		DeletionStrategy: DeletionSoft,
		MergeHybrids:     true,
	}
}

// Outcome tags the resolution applied to one external record.
type Outcome string

// Outcome values.
const (
	OutcomeCreate Outcome = "create"
	OutcomeUpdate Outcome = "update"
	OutcomeMerge  Outcome = "merge"
	OutcomeSkip   Outcome = "skip"
	OutcomeError  Outcome = "error"
)

// ConflictKind classifies the discrepancy between an external record and
// the registry record it is linked to or collides with. Lower values take
// precedence when several apply.
type ConflictKind int

// Conflict kinds, in precedence order.
const (
	// ConflictNone means the records agree on identity; plain state update.
	ConflictNone ConflictKind = iota

	// ConflictLocalIDMismatch: same externalId, different local id.
	ConflictLocalIDMismatch

	// ConflictExternalIDMismatch: the record's local identifier equals the
	// external identifier string but its stored externalId differs.
	ConflictExternalIDMismatch

	// ConflictDomainChanged: stored domain no longer matches the domain
	// derivable from the external identifier.
	ConflictDomainChanged

	// ConflictNameChanged: derived external display name differs from the
	// stored name.
	ConflictNameChanged

	// ConflictInternalMatch: an internal-source record fuzzily matches the
	// incoming external record (hybrid-merge candidate).
	ConflictInternalMatch
)

// String returns a short human-readable tag for logging.
func (k ConflictKind) String() string {
	switch k {
	case ConflictNone:
		return "none"
	case ConflictLocalIDMismatch:
		return "local_id_mismatch"
	case ConflictExternalIDMismatch:
		return "external_id_mismatch"
	case ConflictDomainChanged:
		return "domain_changed"
	case ConflictNameChanged:
		return "name_changed"
	case ConflictInternalMatch:
		return "internal_match"
	default:
		return "unknown"
	}
}

// Resolution is the outcome of resolving one external record.
type Resolution struct {
	Outcome Outcome
	Kind    ConflictKind
	Message string

	// Err is the underlying failure for OutcomeError resolutions, nil
	// otherwise. Matchable with errors.Is against the sync sentinels.
	Err error

	// Entity is the record after resolution, when one exists.
	Entity *entity.Entity
}

// RecordError captures a per-record failure during a pass. Per-record
// failures never abort the run.
type RecordError struct {
	ExternalID string `json:"external_id"`
	Message    string `json:"message"`

	// Err is the underlying error; use errors.Is against the sync
	// sentinels. Not serialised.
	Err error `json:"-"`
}

// Result aggregates one full reconciliation pass.
type Result struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Merged  int `json:"merged"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`

	Errors []RecordError `json:"errors,omitempty"`

	// Deletions is set when the pass ran the deletion detector.
	Deletions *DeletionResult `json:"deletions,omitempty"`

	DryRun   bool          `json:"dry_run,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Confidence grades a duplicate match: high > medium > none.
type Confidence string

// Confidence values.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceNone   Confidence = "none"
)

// DuplicateMatch is one registry record matching a duplicate probe.
type DuplicateMatch struct {
	Entity entity.Entity `json:"entity"`
	Reason string        `json:"reason"`
}

// DuplicateReport is the aggregate answer of a duplicate check.
type DuplicateReport struct {
	IsDuplicate bool             `json:"is_duplicate"`
	Duplicates  []DuplicateMatch `json:"duplicates,omitempty"`
	Confidence  Confidence       `json:"confidence"`
}

// DeletionStrategy selects what happens to registry records whose external
// counterpart vanished from the snapshot.
type DeletionStrategy string

// Deletion strategies.
const (
	// DeletionPreserve takes no action.
	DeletionPreserve DeletionStrategy = "preserve"

	// DeletionSoft marks the record unavailable and stamps deletion markers;
	// hybrid records are demoted to internal.
	DeletionSoft DeletionStrategy = "soft"

	// DeletionHard deletes the record outright.
	DeletionHard DeletionStrategy = "hard"
)

// Valid reports whether s is a recognised strategy.
func (s DeletionStrategy) Valid() bool {
	switch s {
	case DeletionPreserve, DeletionSoft, DeletionHard:
		return true
	}
	return false
}

// DeletionResult tallies one deletion-detection pass.
type DeletionResult struct {
	HardDeleted         int `json:"hard_deleted"`
	MarkedUnavailable   int `json:"marked_unavailable"`
	ConvertedToInternal int `json:"converted_to_internal"`

	Errors []RecordError `json:"errors,omitempty"`
}

// Update is one externally-pushed state change from the real-time feed.
type Update struct {
	ExternalID  string            `json:"external_id"`
	State       string            `json:"state"`
	Attributes  entity.Attributes `json:"attributes,omitempty"`
	LastChanged time.Time         `json:"last_changed"`
	LastUpdated time.Time         `json:"last_updated"`
}

// MigrationResult reports an explicit source migration.
type MigrationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Store is the registry surface the engine depends on. *entity.Registry
// satisfies it. Each method is atomic per record; the engine takes no
// cross-record transactions or explicit locks.
type Store interface {
	GetEntity(ctx context.Context, id string) (*entity.Entity, error)
	GetEntityByLocalID(ctx context.Context, localID string) (*entity.Entity, error)
	GetEntityByExternalID(ctx context.Context, externalID string) (*entity.Entity, error)
	ListByDomain(ctx context.Context, domain string) ([]entity.Entity, error)
	ListBySource(ctx context.Context, source entity.Source) ([]entity.Entity, error)
	ListBySourceAndDomain(ctx context.Context, source entity.Source, domain string) ([]entity.Entity, error)
	CreateEntity(ctx context.Context, e *entity.Entity) error
	UpdateEntity(ctx context.Context, e *entity.Entity) error
	SetEntityState(ctx context.Context, id, state string, attrs entity.Attributes, lastChanged, lastUpdated time.Time) error
	UpdateEntityIdentity(ctx context.Context, id, localID string, externalID *string, domain string) error
	DeleteEntity(ctx context.Context, id string) error
}

// Snapshotter fetches the complete external entity snapshot.
// *controller.Client satisfies it.
type Snapshotter interface {
	FetchAllStates(ctx context.Context) ([]controller.ExternalState, error)
}

// Recorder receives state-history writes. *history.Client satisfies it.
// All methods must be non-blocking; a slow recorder never stalls a pass.
type Recorder interface {
	RecordStateChange(localID, domain, source, state, previous string)
	RecordSyncRun(created, updated, deleted, conflicts, errors int, duration time.Duration)
}

// Publisher announces sync events to dashboard clients. *mqtt.Client
// satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger defines the logging interface used by the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
