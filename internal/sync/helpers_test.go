package sync

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hearthlabs/hearthsync/internal/controller"
	"github.com/hearthlabs/hearthsync/internal/entity"
)

// setupStore creates a registry backed by an in-memory SQLite database. The
// raw handle is returned for tests that need to seed rows the registry's
// validation would reject.
func setupStore(t *testing.T) (*entity.Registry, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE entities (
			id TEXT PRIMARY KEY,
			local_id TEXT NOT NULL UNIQUE,
			device_id TEXT NOT NULL DEFAULT '',
			external_id TEXT UNIQUE,
			domain TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			icon TEXT,
			state TEXT NOT NULL DEFAULT '',
			attributes TEXT NOT NULL DEFAULT '{}',
			source TEXT NOT NULL DEFAULT 'internal',
			last_changed TEXT NOT NULL DEFAULT '',
			last_updated TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT;
		CREATE INDEX idx_entities_domain ON entities(domain);
		CREATE INDEX idx_entities_source ON entities(source);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return entity.NewRegistry(entity.NewSQLiteRepository(db)), db
}

// fakeSnapshotter serves a canned snapshot, or a connectivity error.
type fakeSnapshotter struct {
	states []controller.ExternalState
	err    error
	calls  int
}

func (f *fakeSnapshotter) FetchAllStates(_ context.Context) ([]controller.ExternalState, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.states, nil
}

// fakeRecorder captures history writes.
type fakeRecorder struct {
	stateChanges []string
	syncRuns     int
}

func (f *fakeRecorder) RecordStateChange(localID, _, _, state, previous string) {
	f.stateChanges = append(f.stateChanges, localID+":"+previous+"->"+state)
}

func (f *fakeRecorder) RecordSyncRun(_, _, _, _, _ int, _ time.Duration) {
	f.syncRuns++
}

// fakePublisher captures published messages.
type fakePublisher struct {
	topics   []string
	payloads [][]byte
}

func (f *fakePublisher) Publish(topic string, payload []byte, _ byte, _ bool) error {
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

// setupEngine wires an engine over a real SQLite-backed registry and the
// given snapshot.
func setupEngine(t *testing.T, states ...controller.ExternalState) (*Engine, *entity.Registry, *fakeSnapshotter) {
	t.Helper()
	store, _ := setupStore(t)
	snap := &fakeSnapshotter{states: states}
	return NewEngine(store, snap), store, snap
}

// extState builds a snapshot record with a friendly name.
func extState(externalID, state, name string) controller.ExternalState {
	attrs := entity.Attributes{}
	if name != "" {
		attrs["friendly_name"] = name
	}
	return controller.ExternalState{
		ExternalID:  externalID,
		State:       state,
		Attributes:  attrs,
		LastChanged: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		LastUpdated: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// createInternal registers a plain internal record.
func createInternal(t *testing.T, store *entity.Registry, localID, name string) *entity.Entity {
	t.Helper()
	e := &entity.Entity{
		LocalID: localID,
		Domain:  entity.DomainOf(localID),
		Name:    name,
		Source:  entity.SourceInternal,
		State:   "off",
	}
	if err := store.CreateEntity(context.Background(), e); err != nil {
		t.Fatalf("creating internal entity %s: %v", localID, err)
	}
	return e
}

// createExternal registers a record linked to an external identifier.
func createExternal(t *testing.T, store *entity.Registry, externalID, name string) *entity.Entity {
	t.Helper()
	ext := externalID
	e := &entity.Entity{
		LocalID:    externalID,
		ExternalID: &ext,
		Domain:     entity.DomainOf(externalID),
		Name:       name,
		Source:     entity.SourceExternal,
		State:      "on",
	}
	if err := store.CreateEntity(context.Background(), e); err != nil {
		t.Fatalf("creating external entity %s: %v", externalID, err)
	}
	return e
}

// createHybrid registers a hybrid record linked to an external identifier.
func createHybrid(t *testing.T, store *entity.Registry, externalID, name string) *entity.Entity {
	t.Helper()
	ext := externalID
	e := &entity.Entity{
		LocalID:    externalID,
		ExternalID: &ext,
		Domain:     entity.DomainOf(externalID),
		Name:       name,
		Source:     entity.SourceHybrid,
		State:      "on",
	}
	if err := store.CreateEntity(context.Background(), e); err != nil {
		t.Fatalf("creating hybrid entity %s: %v", externalID, err)
	}
	return e
}

// rawInsert seeds a row directly, bypassing registry validation. Used to
// reproduce drifted legacy data the resolver must repair.
func rawInsert(t *testing.T, db *sql.DB, id, localID string, externalID *string, domain, name, state, source string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.Exec(`
		INSERT INTO entities (id, local_id, external_id, domain, name, state, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, localID, externalID, domain, name, state, source, now, now)
	if err != nil {
		t.Fatalf("raw insert of %s: %v", localID, err)
	}
}

// mustGetByExternalID fails the test when the lookup fails.
func mustGetByExternalID(t *testing.T, store *entity.Registry, externalID string) *entity.Entity {
	t.Helper()
	e, err := store.GetEntityByExternalID(context.Background(), externalID)
	if err != nil {
		t.Fatalf("GetEntityByExternalID(%s): %v", externalID, err)
	}
	return e
}

// mustGet fails the test when the lookup fails.
func mustGet(t *testing.T, store *entity.Registry, id string) *entity.Entity {
	t.Helper()
	e, err := store.GetEntity(context.Background(), id)
	if err != nil {
		t.Fatalf("GetEntity(%s): %v", id, err)
	}
	return e
}

func strptr(s string) *string {
	return &s
}
