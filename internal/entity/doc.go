// Package entity provides the Entity Registry for HearthSync.
//
// The registry is the locally owned catalogue of device capabilities mirrored
// from the external home-automation controller, together with locally
// registered records and hybrid merges of both. It is the single store the
// sync engine reconciles external snapshots and real-time events against.
//
// # Key Types
//
//   - Entity: a controllable/observable device capability
//   - Source: provenance tag (internal, external, hybrid) determining
//     identity and state authority
//   - Repository: persistence interface with a SQLite implementation
//   - Registry: cached, thread-safe facade over a Repository
//
// # Invariants
//
// The following must hold after every operation and are enforced by
// ValidateEntity / CheckInvariants:
//
//   - ExternalID is non-nil iff Source is external or hybrid
//   - ExternalID values are unique registry-wide when non-nil
//   - LocalID is unique registry-wide
//   - Domain matches the ExternalID prefix whenever Source is not internal
//
// # Usage
//
//	repo := entity.NewSQLiteRepository(db)
//	registry := entity.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	e := &entity.Entity{
//	    Name:   "Living Room Lamp",
//	    Domain: "light",
//	    Source: entity.SourceInternal,
//	}
//	if err := registry.CreateEntity(ctx, e); err != nil {
//	    return err
//	}
//
// # Thread Safety
//
// The Registry is safe for concurrent use. All operations are protected by a
// read-write mutex; repository operations are atomic per record, which is the
// property the sync engine's two concurrent input paths rely on.
package entity
