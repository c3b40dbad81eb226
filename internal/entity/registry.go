package entity

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
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

// Registry provides entity management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache with secondary indexes
// on the local and external identifiers, which the sync engine hits on every
// record of a pass.
//
// The cache is populated on startup via RefreshCache() and kept in sync by
// write-through CRUD operations. All public methods are thread-safe.
type Registry struct {
	repo Repository

	mu           sync.RWMutex
	cache        map[string]*Entity // by opaque ID
	byLocalID    map[string]string  // local id -> opaque ID
	byExternalID map[string]string  // external id -> opaque ID

	logger Logger
}

// NewRegistry creates a new entity registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:         repo,
		cache:        make(map[string]*Entity),
		byLocalID:    make(map[string]string),
		byExternalID: make(map[string]string),
		logger:       noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all entities from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	entities, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading entities: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache = make(map[string]*Entity, len(entities))
	r.byLocalID = make(map[string]string, len(entities))
	r.byExternalID = make(map[string]string)
	for i := range entities {
		r.indexLocked(&entities[i])
	}

	r.logger.Info("entity cache refreshed", "count", len(entities))
	return nil
}

// indexLocked stores a deep copy of e in the cache and indexes.
// Caller must hold mu.
func (r *Registry) indexLocked(e *Entity) {
	if old, ok := r.cache[e.ID]; ok {
		delete(r.byLocalID, old.LocalID)
		if old.ExternalID != nil {
			delete(r.byExternalID, *old.ExternalID)
		}
	}
	cpy := e.DeepCopy()
	r.cache[cpy.ID] = cpy
	r.byLocalID[cpy.LocalID] = cpy.ID
	if cpy.ExternalID != nil {
		r.byExternalID[*cpy.ExternalID] = cpy.ID
	}
}

// dropLocked removes an entity from the cache and indexes.
// Caller must hold mu.
func (r *Registry) dropLocked(id string) {
	if old, ok := r.cache[id]; ok {
		delete(r.byLocalID, old.LocalID)
		if old.ExternalID != nil {
			delete(r.byExternalID, *old.ExternalID)
		}
		delete(r.cache, id)
	}
}

// GetEntity retrieves an entity by its opaque registry identifier.
// The returned entity is a deep copy; callers can safely modify it.
func (r *Registry) GetEntity(ctx context.Context, id string) (*Entity, error) {
	r.mu.RLock()
	cached, ok := r.cache[id]
	r.mu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	e, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.indexLocked(e)
	r.mu.Unlock()

	return e, nil
}

// GetEntityByLocalID retrieves an entity by its local identifier.
func (r *Registry) GetEntityByLocalID(ctx context.Context, localID string) (*Entity, error) {
	r.mu.RLock()
	id, ok := r.byLocalID[localID]
	var cached *Entity
	if ok {
		cached = r.cache[id]
	}
	r.mu.RUnlock()
	if cached != nil {
		return cached.DeepCopy(), nil
	}

	e, err := r.repo.GetByLocalID(ctx, localID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.indexLocked(e)
	r.mu.Unlock()

	return e, nil
}

// GetEntityByExternalID retrieves the entity linked to an external identifier.
func (r *Registry) GetEntityByExternalID(ctx context.Context, externalID string) (*Entity, error) {
	r.mu.RLock()
	id, ok := r.byExternalID[externalID]
	var cached *Entity
	if ok {
		cached = r.cache[id]
	}
	r.mu.RUnlock()
	if cached != nil {
		return cached.DeepCopy(), nil
	}

	e, err := r.repo.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.indexLocked(e)
	r.mu.Unlock()

	return e, nil
}

// ListEntities retrieves all entities.
// The returned entities are deep copies; callers can safely modify them.
func (r *Registry) ListEntities(ctx context.Context) ([]Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.cache) > 0 {
		entities := make([]Entity, 0, len(r.cache))
		for _, e := range r.cache {
			entities = append(entities, *e.DeepCopy())
		}
		return entities, nil
	}

	return r.repo.List(ctx)
}

// ListByDomain retrieves all entities in a domain, regardless of source.
func (r *Registry) ListByDomain(ctx context.Context, domain string) ([]Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.cache) > 0 {
		var entities []Entity
		for _, e := range r.cache {
			if e.Domain == domain {
				entities = append(entities, *e.DeepCopy())
			}
		}
		return entities, nil
	}

	return r.repo.ListByDomain(ctx, domain)
}

// ListBySource retrieves all entities with the given source.
func (r *Registry) ListBySource(ctx context.Context, source Source) ([]Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.cache) > 0 {
		var entities []Entity
		for _, e := range r.cache {
			if e.Source == source {
				entities = append(entities, *e.DeepCopy())
			}
		}
		return entities, nil
	}

	return r.repo.ListBySource(ctx, source)
}

// ListBySourceAndDomain retrieves entities with the given source in a domain.
func (r *Registry) ListBySourceAndDomain(ctx context.Context, source Source, domain string) ([]Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.cache) > 0 {
		var entities []Entity
		for _, e := range r.cache {
			if e.Source == source && e.Domain == domain {
				entities = append(entities, *e.DeepCopy())
			}
		}
		return entities, nil
	}

	return r.repo.ListBySourceAndDomain(ctx, source, domain)
}

// CreateEntity validates and persists a new entity.
// Missing identifiers are generated: a UUID for the registry ID and, for
// internal records, a "<domain>.<object>" local identifier from the name.
func (r *Registry) CreateEntity(ctx context.Context, e *Entity) error {
	if e.ID == "" {
		e.ID = GenerateID()
	}
	if e.LocalID == "" {
		if e.ExternalID != nil {
			e.LocalID = *e.ExternalID
		} else {
			e.LocalID = GenerateLocalID(e.Domain, e.Name)
		}
	}
	if e.Source == "" {
		e.Source = SourceInternal
	}

	if err := ValidateEntity(e); err != nil {
		return err
	}

	if err := r.repo.Create(ctx, e); err != nil {
		return err
	}

	r.mu.Lock()
	r.indexLocked(e)
	r.mu.Unlock()

	r.logger.Info("entity created", "id", e.ID, "local_id", e.LocalID, "source", e.Source)
	return nil
}

// UpdateEntity validates and persists changes to an existing entity.
func (r *Registry) UpdateEntity(ctx context.Context, e *Entity) error {
	if err := ValidateEntity(e); err != nil {
		return err
	}

	if err := r.repo.Update(ctx, e); err != nil {
		return err
	}

	r.mu.Lock()
	r.indexLocked(e)
	r.mu.Unlock()

	r.logger.Info("entity updated", "id", e.ID, "local_id", e.LocalID)
	return nil
}

// SetEntityState updates state, attributes and change timestamps of a record.
// This is optimised for the per-record writes of a sync pass.
func (r *Registry) SetEntityState(ctx context.Context, id, state string, attrs Attributes, lastChanged, lastUpdated time.Time) error {
	if err := r.repo.UpdateState(ctx, id, state, attrs, lastChanged, lastUpdated); err != nil {
		return err
	}

	r.mu.Lock()
	if cached, ok := r.cache[id]; ok {
		updated := cached.DeepCopy()
		updated.State = state
		updated.Attributes = attrs.Clone()
		updated.LastChanged = lastChanged
		updated.LastUpdated = lastUpdated
		updated.UpdatedAt = time.Now().UTC()
		r.cache[id] = updated
	}
	r.mu.Unlock()

	r.logger.Debug("entity state updated", "id", id, "state", state)
	return nil
}

// UpdateEntityIdentity rewrites the identity fields of a record, keeping the
// cache indexes consistent.
func (r *Registry) UpdateEntityIdentity(ctx context.Context, id, localID string, externalID *string, domain string) error {
	if externalID != nil {
		if err := ValidateExternalID(*externalID); err != nil {
			return err
		}
	}

	if err := r.repo.UpdateIdentity(ctx, id, localID, externalID, domain); err != nil {
		return err
	}

	r.mu.Lock()
	if cached, ok := r.cache[id]; ok {
		updated := cached.DeepCopy()
		updated.LocalID = localID
		updated.ExternalID = nil
		if externalID != nil {
			v := *externalID
			updated.ExternalID = &v
		}
		updated.Domain = domain
		updated.UpdatedAt = time.Now().UTC()
		r.indexLocked(updated)
	}
	r.mu.Unlock()

	r.logger.Info("entity identity updated", "id", id, "local_id", localID)
	return nil
}

// DeleteEntity removes an entity.
func (r *Registry) DeleteEntity(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.mu.Lock()
	r.dropLocked(id)
	r.mu.Unlock()

	r.logger.Info("entity deleted", "id", id)
	return nil
}

// Count returns the number of cached entities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
