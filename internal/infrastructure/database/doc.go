// Package database provides SQLite connectivity for the light history store.
//
// This package manages:
//   - The connection, with WAL mode so API reads run during writes
//   - Schema migrations read from an fs.FS (normally the embedded
//     migrations package)
//   - Health checks and lifecycle
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are NULLABLE or carry a DEFAULT, and
// each .up.sql has a matching .down.sql.
package database
