package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hearthlabs/hearthsync/internal/controller"
	"github.com/hearthlabs/hearthsync/internal/entity"
	"github.com/hearthlabs/hearthsync/internal/infrastructure/config"
	"github.com/hearthlabs/hearthsync/internal/infrastructure/logging"
	"github.com/hearthlabs/hearthsync/internal/sync"
)

// stubSnapshotter serves a canned controller snapshot, or an error.
type stubSnapshotter struct {
	states []controller.ExternalState
	err    error
}

func (s *stubSnapshotter) FetchAllStates(_ context.Context) ([]controller.ExternalState, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.states, nil
}

// testServer creates a Server with a real entity registry backed by
// in-memory SQLite and an engine fed by the stub snapshot.
func testServer(t *testing.T, states ...controller.ExternalState) (*Server, *entity.Registry, *stubSnapshotter) {
	t.Helper()

	db := setupTestDB(t)
	registry := entity.NewRegistry(entity.NewSQLiteRepository(db))
	if err := registry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}

	snap := &stubSnapshotter{states: states}
	engine := sync.NewEngine(registry, snap)

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		Logger:   log,
		Registry: registry,
		Engine:   engine,
		Defaults: sync.DefaultOptions(),
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return srv, registry, snap
}

// setupTestDB creates an in-memory SQLite database with the entities schema.
func setupTestDB(t *testing.T) *sql.DB {
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
	if _, execErr := db.Exec(schema); execErr != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", execErr)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// createExternal registers a record linked to an external identifier.
func createExternal(t *testing.T, registry *entity.Registry, externalID, name string) *entity.Entity {
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
	if err := registry.CreateEntity(context.Background(), e); err != nil {
		t.Fatalf("creating external entity %s: %v", externalID, err)
	}
	return e
}

// createInternal registers a plain internal record.
func createInternal(t *testing.T, registry *entity.Registry, localID, name string) *entity.Entity {
	t.Helper()
	e := &entity.Entity{
		LocalID: localID,
		Domain:  entity.DomainOf(localID),
		Name:    name,
		Source:  entity.SourceInternal,
		State:   "off",
	}
	if err := registry.CreateEntity(context.Background(), e); err != nil {
		t.Fatalf("creating internal entity %s: %v", localID, err)
	}
	return e
}

// extState builds a snapshot record with a friendly name.
func extState(externalID, state, name string) controller.ExternalState {
	return controller.ExternalState{
		ExternalID: externalID,
		State:      state,
		Attributes: entity.Attributes{"friendly_name": name},
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

func TestHealth_ContentType(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	ct := w.Header().Get("Content-Type")
	if ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
	if got := w.Header().Get("Vary"); got != "Origin" {
		t.Errorf("Vary = %q, want Origin", got)
	}
}

func TestRequestID_GeneratedIsUUID(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	id := w.Header().Get("X-Request-ID")
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("X-Request-ID %q is not a uuid: %v", id, err)
	}
}

func TestNotFound(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Entity CRUD Tests ─────────────────────────────────────────────

func TestListEntities_Empty(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/entities", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(resp["count"].(float64)) != 0 {
		t.Errorf("count = %v, want 0", resp["count"])
	}
}

func TestCreateAndGetEntity(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"name": "Desk Lamp", "domain": "light"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/entities", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var created entity.Entity
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal created: %v", err)
	}
	if created.ID == "" {
		t.Error("expected entity ID to be auto-generated")
	}
	if created.LocalID == "" {
		t.Error("expected local id to be auto-generated")
	}
	if created.Source != entity.SourceInternal {
		t.Errorf("source = %s, want internal default", created.Source)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/entities/"+created.ID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", w.Code, http.StatusOK)
	}

	var got entity.Entity
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal got: %v", err)
	}
	if got.Name != "Desk Lamp" {
		t.Errorf("name = %q, want %q", got.Name, "Desk Lamp")
	}
}

func TestCreateEntity_ExternallyLinked(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"name": "Porch Light", "external_id": "light.porch", "domain": "light", "source": "external"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/entities", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var created entity.Entity
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.ExternalIDValue() != "light.porch" {
		t.Errorf("external id = %q, want light.porch", created.ExternalIDValue())
	}
}

func TestCreateEntity_DuplicateExternalRejected(t *testing.T) {
	srv, registry, _ := testServer(t)
	router := srv.buildRouter()
	createExternal(t, registry, "light.porch", "Porch Light")

	body := `{"name": "Porch Again", "external_id": "light.porch", "domain": "light", "source": "external"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/entities", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusConflict, w.Body.String())
	}
}

func TestCreateEntity_InvalidJSON(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/entities", strings.NewReader("not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestCreateEntity_ValidationError(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"name": "", "domain": "light"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/entities", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestGetEntity_NotFound(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/entities/nonexistent-id", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestUpdateEntity(t *testing.T) {
	srv, registry, _ := testServer(t)
	router := srv.buildRouter()
	record := createExternal(t, registry, "light.porch", "Porch Light")

	body := `{"name": "Front Porch"}`
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/entities/"+record.ID, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var updated entity.Entity
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if updated.Name != "Front Porch" {
		t.Errorf("name = %q, want %q", updated.Name, "Front Porch")
	}
	// Identity fields are not patchable.
	if updated.ExternalIDValue() != "light.porch" || updated.Source != entity.SourceExternal {
		t.Errorf("patch touched identity fields: %+v", updated)
	}
}

func TestUpdateEntity_NotFound(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"name": "Ghost"}`
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/entities/nonexistent", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestDeleteEntity(t *testing.T) {
	srv, registry, _ := testServer(t)
	router := srv.buildRouter()
	record := createInternal(t, registry, "light.desk", "Desk Light")

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/entities/"+record.ID, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want %d", w.Code, http.StatusNoContent)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/entities/"+record.ID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestListEntities_Filters(t *testing.T) {
	srv, registry, _ := testServer(t)
	router := srv.buildRouter()
	createExternal(t, registry, "light.porch", "Porch Light")
	createExternal(t, registry, "switch.fan", "Ceiling Fan")
	createInternal(t, registry, "light.desk", "Desk Light")

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"by domain", "?domain=light", 2},
		{"by source", "?source=external", 2},
		{"by source and domain", "?source=external&domain=light", 1},
		{"no match", "?domain=climate", 0},
		{"unfiltered", "", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/entities"+tt.query, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			var resp map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if int(resp["count"].(float64)) != tt.want {
				t.Errorf("count = %v, want %d", resp["count"], tt.want)
			}
		})
	}
}

func TestListEntities_UnknownSource(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/entities?source=imported", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestEntityStats(t *testing.T) {
	srv, registry, _ := testServer(t)
	router := srv.buildRouter()
	createExternal(t, registry, "light.porch", "Porch Light")
	createInternal(t, registry, "light.desk", "Desk Light")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/entities/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(resp["total"].(float64)) != 2 {
		t.Errorf("total = %v, want 2", resp["total"])
	}
	bySource := resp["by_source"].(map[string]any)
	if int(bySource["external"].(float64)) != 1 || int(bySource["internal"].(float64)) != 1 {
		t.Errorf("by_source = %v", bySource)
	}
}

// ─── Source Migration Tests ────────────────────────────────────────

func TestMigrateSource(t *testing.T) {
	srv, registry, _ := testServer(t)
	router := srv.buildRouter()
	record := createInternal(t, registry, "light.desk", "Desk Light")

	body := `{"target": "external", "external_id": "light.desk_fixture"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/entities/"+record.ID+"/migrate-source", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	stored, err := registry.GetEntity(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if stored.Source != entity.SourceExternal || stored.ExternalIDValue() != "light.desk_fixture" {
		t.Errorf("migration not applied: %+v", stored)
	}
}

func TestMigrateSource_ValidationError(t *testing.T) {
	srv, registry, _ := testServer(t)
	router := srv.buildRouter()
	record := createInternal(t, registry, "light.desk", "Desk Light")

	// External target without an identifier.
	body := `{"target": "external"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/entities/"+record.ID+"/migrate-source", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestMigrateSource_IdentifierTaken(t *testing.T) {
	srv, registry, _ := testServer(t)
	router := srv.buildRouter()
	createExternal(t, registry, "light.taken", "Taken Light")
	record := createInternal(t, registry, "light.desk", "Desk Light")

	body := `{"target": "external", "external_id": "light.taken"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/entities/"+record.ID+"/migrate-source", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusConflict, w.Body.String())
	}
}

func TestMigrateSource_NotFound(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"target": "internal"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/entities/nonexistent/migrate-source", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Sync Endpoint Tests ───────────────────────────────────────────

func TestRunSync(t *testing.T) {
	srv, registry, _ := testServer(t,
		extState("light.porch", "on", "Porch Light"),
		extState("switch.fan", "off", "Ceiling Fan"),
	)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/run", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var result sync.Result
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.Created != 2 || result.Total != 2 {
		t.Errorf("result = %+v, want 2 created of 2", result)
	}
	if registry.Count() != 2 {
		t.Errorf("registry count = %d, want 2", registry.Count())
	}
}

func TestRunSync_DryRun(t *testing.T) {
	srv, registry, _ := testServer(t, extState("light.porch", "on", "Porch Light"))
	router := srv.buildRouter()

	body := `{"dry_run": true}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/run", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var result sync.Result
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !result.DryRun || result.Created != 1 {
		t.Errorf("result = %+v, want dry-run with 1 detected creation", result)
	}
	if registry.Count() != 0 {
		t.Errorf("dry run persisted %d records", registry.Count())
	}
}

func TestRunSync_SnapshotFailure(t *testing.T) {
	srv, _, snap := testServer(t)
	snap.err = fmt.Errorf("connection refused")
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/run", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusBadGateway, w.Body.String())
	}
}

func TestRunSync_InvalidBody(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/run", strings.NewReader("not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestCheckDuplicates(t *testing.T) {
	srv, registry, _ := testServer(t)
	router := srv.buildRouter()
	createExternal(t, registry, "light.porch", "Porch Light")

	body := `{"external_id": "light.porch", "domain": "light", "name": "Porch Light"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/duplicates", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var report sync.DuplicateReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !report.IsDuplicate || report.Confidence != sync.ConfidenceHigh {
		t.Errorf("report = %+v, want high-confidence duplicate", report)
	}
}

func TestCheckDuplicates_MissingProbe(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/duplicates", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestDeletionCleanupAndRestore(t *testing.T) {
	srv, registry, _ := testServer(t)
	router := srv.buildRouter()
	createExternal(t, registry, "light.gone", "Gone Light")

	// Soft-delete the record first.
	d := srv.engine.Deletions()
	if _, err := d.DetectAndApply(context.Background(), map[string]bool{}, sync.DeletionSoft); err != nil {
		t.Fatalf("DetectAndApply: %v", err)
	}

	// Restore brings it back.
	body := `{"external_id": "light.gone"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/restore", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("restore status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var restored entity.Entity
	if err := json.Unmarshal(w.Body.Bytes(), &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := restored.Attributes["hearthsync_deleted"]; ok {
		t.Error("deletion marker still present after restore")
	}

	// Soft-delete again, then cleanup purges it.
	if _, err := d.DetectAndApply(context.Background(), map[string]bool{}, sync.DeletionSoft); err != nil {
		t.Fatalf("DetectAndApply: %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/sync/cleanup", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("cleanup status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(resp["purged"].(float64)) != 1 {
		t.Errorf("purged = %v, want 1", resp["purged"])
	}
}

func TestDeletionRestore_NotFound(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"external_id": "light.never_seen"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/restore", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Server Lifecycle Tests ────────────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	srv, _, _ := testServer(t)
	srv.cfg.Port = 19124

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	// Wait for the listener to come up.
	time.Sleep(100 * time.Millisecond)

	addr := fmt.Sprintf("127.0.0.1:%d", srv.cfg.Port)
	resp, err := http.Get("http://" + addr + "/api/v1/health")
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("health check status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if _, err := http.Get("http://" + addr + "/api/v1/health"); err == nil {
		t.Error("server still responding after Close()")
	}
}

func TestServer_HealthCheckNotStarted(t *testing.T) {
	srv, _, _ := testServer(t)

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck should fail before Start()")
	}
}

func TestNew_MissingDeps(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	if _, err := New(Deps{Logger: log}); err == nil {
		t.Error("New should fail without a registry")
	}
	if _, err := New(Deps{}); err == nil {
		t.Error("New should fail without a logger")
	}
}
