package entity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the persistence operations for entity records.
// This abstraction allows different implementations (SQLite, in-memory mock)
// and enables unit testing without database dependencies.
//
// Every operation is atomic over a single record; the sync engine relies on
// this and takes no cross-record transactions.
type Repository interface {
	// GetByID retrieves an entity by its opaque registry identifier.
	// Returns ErrEntityNotFound if it does not exist.
	GetByID(ctx context.Context, id string) (*Entity, error)

	// GetByLocalID retrieves an entity by its local identifier.
	// Returns ErrEntityNotFound if it does not exist.
	GetByLocalID(ctx context.Context, localID string) (*Entity, error)

	// GetByExternalID retrieves an entity by its external identifier.
	// Returns ErrEntityNotFound if no record is linked to it.
	GetByExternalID(ctx context.Context, externalID string) (*Entity, error)

	// List retrieves all entities.
	List(ctx context.Context) ([]Entity, error)

	// ListByDomain retrieves all entities in a domain, regardless of source.
	ListByDomain(ctx context.Context, domain string) ([]Entity, error)

	// ListBySource retrieves all entities with the given source.
	ListBySource(ctx context.Context, source Source) ([]Entity, error)

	// ListBySourceAndDomain retrieves all entities with the given source in
	// the given domain.
	ListBySourceAndDomain(ctx context.Context, source Source, domain string) ([]Entity, error)

	// Create inserts a new entity.
	// Returns ErrEntityExists, ErrLocalIDTaken or ErrExternalIDTaken when a
	// uniqueness constraint would be violated.
	Create(ctx context.Context, e *Entity) error

	// Update modifies an existing entity in full.
	// Returns ErrEntityNotFound if it does not exist.
	Update(ctx context.Context, e *Entity) error

	// UpdateState updates only state, attributes and the change timestamps.
	// This is optimised for the frequent per-record writes of a sync pass.
	UpdateState(ctx context.Context, id, state string, attrs Attributes, lastChanged, lastUpdated time.Time) error

	// UpdateIdentity rewrites the identity fields (local id, external id,
	// domain) of a record, leaving state untouched.
	UpdateIdentity(ctx context.Context, id, localID string, externalID *string, domain string) error

	// Delete removes an entity by registry identifier.
	// Returns ErrEntityNotFound if it does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const entityColumns = `id, local_id, device_id, external_id, domain, name, icon,
		state, attributes, source, last_changed, last_updated, created_at, updated_at`

// GetByID retrieves an entity by its opaque registry identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE id = ?`
	return r.getOne(ctx, query, id)
}

// GetByLocalID retrieves an entity by its local identifier.
func (r *SQLiteRepository) GetByLocalID(ctx context.Context, localID string) (*Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE local_id = ?`
	return r.getOne(ctx, query, localID)
}

// GetByExternalID retrieves an entity by its external identifier.
func (r *SQLiteRepository) GetByExternalID(ctx context.Context, externalID string) (*Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE external_id = ?`
	return r.getOne(ctx, query, externalID)
}

func (r *SQLiteRepository) getOne(ctx context.Context, query string, arg any) (*Entity, error) {
	row := r.db.QueryRowContext(ctx, query, arg)
	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntityNotFound
		}
		return nil, fmt.Errorf("querying entity: %w", err)
	}
	return e, nil
}

// List retrieves all entities.
func (r *SQLiteRepository) List(ctx context.Context) ([]Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities ORDER BY local_id`
	return r.queryEntities(ctx, query)
}

// ListByDomain retrieves all entities in a domain.
func (r *SQLiteRepository) ListByDomain(ctx context.Context, domain string) ([]Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE domain = ? ORDER BY local_id`
	return r.queryEntities(ctx, query, domain)
}

// ListBySource retrieves all entities with the given source.
func (r *SQLiteRepository) ListBySource(ctx context.Context, source Source) ([]Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE source = ? ORDER BY local_id`
	return r.queryEntities(ctx, query, string(source))
}

// ListBySourceAndDomain retrieves all entities with the given source in a domain.
func (r *SQLiteRepository) ListBySourceAndDomain(ctx context.Context, source Source, domain string) ([]Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE source = ? AND domain = ? ORDER BY local_id`
	return r.queryEntities(ctx, query, string(source), domain)
}

// Create inserts a new entity.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entity) error {
	attrsJSON, err := json.Marshal(orEmpty(e.Attributes))
	if err != nil {
		return fmt.Errorf("marshalling attributes: %w", err)
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	query := `
		INSERT INTO entities (
			id, local_id, device_id, external_id, domain, name, icon,
			state, attributes, source, last_changed, last_updated,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		e.ID,
		e.LocalID,
		e.DeviceID,
		nullableString(e.ExternalID),
		e.Domain,
		e.Name,
		nullableString(e.Icon),
		e.State,
		string(attrsJSON),
		string(e.Source),
		formatTime(e.LastChanged),
		formatTime(e.LastUpdated),
		e.CreatedAt.Format(time.RFC3339),
		e.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if constraintErr := uniqueConstraintError(err); constraintErr != nil {
			return constraintErr
		}
		return fmt.Errorf("inserting entity: %w", err)
	}

	return nil
}

// Update modifies an existing entity in full.
func (r *SQLiteRepository) Update(ctx context.Context, e *Entity) error {
	attrsJSON, err := json.Marshal(orEmpty(e.Attributes))
	if err != nil {
		return fmt.Errorf("marshalling attributes: %w", err)
	}

	e.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE entities SET
			local_id = ?, device_id = ?, external_id = ?, domain = ?,
			name = ?, icon = ?, state = ?, attributes = ?, source = ?,
			last_changed = ?, last_updated = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		e.LocalID,
		e.DeviceID,
		nullableString(e.ExternalID),
		e.Domain,
		e.Name,
		nullableString(e.Icon),
		e.State,
		string(attrsJSON),
		string(e.Source),
		formatTime(e.LastChanged),
		formatTime(e.LastUpdated),
		e.UpdatedAt.Format(time.RFC3339),
		e.ID,
	)
	if err != nil {
		if constraintErr := uniqueConstraintError(err); constraintErr != nil {
			return constraintErr
		}
		return fmt.Errorf("updating entity: %w", err)
	}

	return requireRow(result)
}

// UpdateState updates state, attributes and the change timestamps.
func (r *SQLiteRepository) UpdateState(ctx context.Context, id, state string, attrs Attributes, lastChanged, lastUpdated time.Time) error {
	attrsJSON, err := json.Marshal(orEmpty(attrs))
	if err != nil {
		return fmt.Errorf("marshalling attributes: %w", err)
	}

	query := `
		UPDATE entities
		SET state = ?, attributes = ?, last_changed = ?, last_updated = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		state,
		string(attrsJSON),
		formatTime(lastChanged),
		formatTime(lastUpdated),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating entity state: %w", err)
	}

	return requireRow(result)
}

// UpdateIdentity rewrites the identity fields of a record.
func (r *SQLiteRepository) UpdateIdentity(ctx context.Context, id, localID string, externalID *string, domain string) error {
	query := `
		UPDATE entities
		SET local_id = ?, external_id = ?, domain = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		localID,
		nullableString(externalID),
		domain,
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		if constraintErr := uniqueConstraintError(err); constraintErr != nil {
			return constraintErr
		}
		return fmt.Errorf("updating entity identity: %w", err)
	}

	return requireRow(result)
}

// Delete removes an entity by registry identifier.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM entities WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}
	return requireRow(result)
}

// queryEntities executes a query and returns a slice of entities.
func (r *SQLiteRepository) queryEntities(ctx context.Context, query string, args ...any) ([]Entity, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		entities = append(entities, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}

	return entities, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanEntity.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*Entity, error) {
	var (
		e           Entity
		externalID  sql.NullString
		icon        sql.NullString
		attrsJSON   string
		source      string
		lastChanged string
		lastUpdated string
		createdAt   string
		updatedAt   string
	)

	err := row.Scan(
		&e.ID,
		&e.LocalID,
		&e.DeviceID,
		&externalID,
		&e.Domain,
		&e.Name,
		&icon,
		&e.State,
		&attrsJSON,
		&source,
		&lastChanged,
		&lastUpdated,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if externalID.Valid {
		e.ExternalID = &externalID.String
	}
	if icon.Valid {
		e.Icon = &icon.String
	}
	e.Source = Source(source)

	if attrsJSON != "" {
		if err := json.Unmarshal([]byte(attrsJSON), &e.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshalling attributes: %w", err)
		}
	}

	if e.LastChanged, err = parseTime(lastChanged); err != nil {
		return nil, fmt.Errorf("parsing last_changed: %w", err)
	}
	if e.LastUpdated, err = parseTime(lastUpdated); err != nil {
		return nil, fmt.Errorf("parsing last_updated: %w", err)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &e, nil
}

// uniqueConstraintError maps a SQLite unique-constraint failure to the
// matching sentinel error, or returns nil for unrelated errors.
func uniqueConstraintError(err error) error {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return nil
	}
	switch {
	case strings.Contains(msg, "entities.external_id"):
		return ErrExternalIDTaken
	case strings.Contains(msg, "entities.local_id"):
		return ErrLocalIDTaken
	default:
		return ErrEntityExists
	}
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrEntityNotFound
	}
	return nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func orEmpty(attrs Attributes) Attributes {
	if attrs == nil {
		return Attributes{}
	}
	return attrs
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
