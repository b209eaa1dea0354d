// Package database provides SQLite connectivity for the authcore store.
//
// This package manages:
//   - Database connection with WAL mode and enforced foreign keys
//   - Schema migrations loaded from an fs.FS (embedded by the migrations package)
//   - Connection pool sizing for SQLite's single writer
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: each .up.sql has a matching .down.sql.
package database
