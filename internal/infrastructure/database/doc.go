// Package database opens the registry's SQLite store and applies its
// embedded schema migrations.
//
// The entities table is declared STRICT and the pool is pinned to one
// connection, matching SQLite's single-writer model; WAL mode keeps reads
// flowing during sync writes. Migrations are forward-only *.up.sql files
// applied in version order, each in its own transaction.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.Files()); err != nil {
//	    return err
//	}
package database
