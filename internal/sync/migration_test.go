package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/hearthlabs/hearthsync/internal/entity"
)

func TestMigrateSource_InternalToExternal(t *testing.T) {
	engine, store, _ := setupEngine(t)
	record := createInternal(t, store, "light.desk", "Desk Light")

	result, err := engine.MigrateSource(context.Background(), record.ID, entity.SourceExternal, strptr("light.desk_new"))
	if err != nil {
		t.Fatalf("MigrateSource: %v", err)
	}
	if !result.Success {
		t.Fatalf("migration failed: %s", result.Message)
	}

	stored := mustGet(t, store, record.ID)
	if stored.Source != entity.SourceExternal {
		t.Errorf("source = %s, want %s", stored.Source, entity.SourceExternal)
	}
	if stored.ExternalIDValue() != "light.desk_new" {
		t.Errorf("external id = %q, want light.desk_new", stored.ExternalIDValue())
	}
	if stored.Domain != "light" {
		t.Errorf("domain = %q, want light", stored.Domain)
	}
}

func TestMigrateSource_ExternalToInternalClearsLink(t *testing.T) {
	engine, store, _ := setupEngine(t)
	record := createExternal(t, store, "light.porch", "Porch Light")

	result, err := engine.MigrateSource(context.Background(), record.ID, entity.SourceInternal, nil)
	if err != nil {
		t.Fatalf("MigrateSource: %v", err)
	}
	if !result.Success {
		t.Fatalf("migration failed: %s", result.Message)
	}

	stored := mustGet(t, store, record.ID)
	if stored.Source != entity.SourceInternal {
		t.Errorf("source = %s, want %s", stored.Source, entity.SourceInternal)
	}
	if stored.ExternalID != nil {
		t.Errorf("external id = %q, want cleared", *stored.ExternalID)
	}
	if _, err := store.GetEntityByExternalID(context.Background(), "light.porch"); !errors.Is(err, entity.ErrEntityNotFound) {
		t.Errorf("cleared link still resolves: err = %v", err)
	}
}

func TestMigrateSource_HybridToExternal(t *testing.T) {
	engine, store, _ := setupEngine(t)
	record := createHybrid(t, store, "light.porch", "Porch Light")

	result, err := engine.MigrateSource(context.Background(), record.ID, entity.SourceExternal, strptr("light.porch"))
	if err != nil {
		t.Fatalf("MigrateSource: %v", err)
	}
	if !result.Success {
		t.Fatalf("migration failed: %s", result.Message)
	}

	stored := mustGet(t, store, record.ID)
	if stored.Source != entity.SourceExternal {
		t.Errorf("source = %s, want %s", stored.Source, entity.SourceExternal)
	}
}

func TestMigrateSource_SelfTransitionIsNoOp(t *testing.T) {
	engine, store, _ := setupEngine(t)
	record := createInternal(t, store, "light.desk", "Desk Light")

	result, err := engine.MigrateSource(context.Background(), record.ID, entity.SourceInternal, nil)
	if err != nil {
		t.Fatalf("MigrateSource: %v", err)
	}
	if !result.Success {
		t.Errorf("self-transition should succeed: %s", result.Message)
	}
}

func TestMigrateSource_ValidationFailures(t *testing.T) {
	engine, store, _ := setupEngine(t)
	record := createInternal(t, store, "light.desk", "Desk Light")
	createExternal(t, store, "light.taken", "Taken Light")

	tests := []struct {
		name       string
		target     entity.Source
		externalID *string
		wantErr    error
	}{
		{"unknown source", entity.Source("imported"), nil, ErrValidation},
		{"external without identifier", entity.SourceExternal, nil, ErrValidation},
		{"external with empty identifier", entity.SourceExternal, strptr(""), ErrValidation},
		{"external with malformed identifier", entity.SourceExternal, strptr("not_dotted"), ErrValidation},
		{"identifier already linked", entity.SourceExternal, strptr("light.taken"), ErrConstraint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.MigrateSource(context.Background(), record.ID, tt.target, tt.externalID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if result == nil || result.Success {
				t.Errorf("result = %+v, want failure", result)
			}

			// No mutation on failure.
			stored := mustGet(t, store, record.ID)
			if stored.Source != entity.SourceInternal || stored.ExternalID != nil {
				t.Errorf("record mutated by failed migration: %+v", stored)
			}
		})
	}
}

func TestMigrateSource_InternalTargetRejectsIdentifier(t *testing.T) {
	engine, store, _ := setupEngine(t)
	record := createExternal(t, store, "light.porch", "Porch Light")

	result, err := engine.MigrateSource(context.Background(), record.ID, entity.SourceInternal, strptr("light.porch"))
	if !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
	if result.Success {
		t.Error("migration with a spurious identifier must fail")
	}

	stored := mustGet(t, store, record.ID)
	if stored.Source != entity.SourceExternal {
		t.Errorf("record mutated by failed migration: %+v", stored)
	}
}

func TestMigrateSource_UnknownRecord(t *testing.T) {
	engine, _, _ := setupEngine(t)

	_, err := engine.MigrateSource(context.Background(), "no-such-id", entity.SourceInternal, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMigrateSource_RelinkKeepsOwnIdentifier(t *testing.T) {
	engine, store, _ := setupEngine(t)
	record := createExternal(t, store, "light.porch", "Porch Light")

	// Migrating external to hybrid with its own identifier is legal.
	result, err := engine.MigrateSource(context.Background(), record.ID, entity.SourceHybrid, strptr("light.porch"))
	if err != nil {
		t.Fatalf("MigrateSource: %v", err)
	}
	if !result.Success {
		t.Fatalf("migration failed: %s", result.Message)
	}

	stored := mustGet(t, store, record.ID)
	if stored.Source != entity.SourceHybrid {
		t.Errorf("source = %s, want %s", stored.Source, entity.SourceHybrid)
	}
	if stored.ExternalIDValue() != "light.porch" {
		t.Errorf("external id = %q, want light.porch", stored.ExternalIDValue())
	}
}
