// Package sync is the entity synchronization and conflict-resolution
// engine: it reconciles externally reported entity records against the
// local registry, resolves identity conflicts, merges locally-created
// records with matching external ones, and manages soft/hard deletion when
// external records disappear.
//
// # Components
//
//   - DuplicatePreventer: fuzzy-matches a candidate against the registry
//     to avoid redundant creation.
//   - HybridManager: detects and merges a locally-created record with a
//     matching externally-observed one.
//   - ConflictResolver: classifies and resolves identity/attribute
//     discrepancies between an external record and a registry record.
//   - Engine.RunFullSync: drives a full reconciliation pass over an
//     external snapshot.
//   - DeletionDetector: finds registry records whose external counterpart
//     vanished and applies a deletion policy.
//   - Engine.ApplyIncrementalUpdate: applies single real-time events
//     between full passes.
//   - Engine.MigrateSource: explicit, operator-requested source
//     transitions.
//
// # Concurrency
//
// Full passes and incremental updates may interleave against the same
// registry. Both rely on the store's single-record atomicity; no locks are
// taken. The creation race is eliminated by policy: only the full pass
// creates records, the incremental path defers unknown identifiers to the
// next pass. Idempotence is the correctness property: reprocessing the
// same external record converges to the same end state.
//
// # Errors
//
// Per-record failures during a pass are captured into the aggregate Result
// and never abort the run. Incremental errors are logged and swallowed.
// Migration and duplicate-validation errors return synchronously. A failed
// snapshot fetch aborts the pass with zero progress (ErrConnectivity).
package sync
