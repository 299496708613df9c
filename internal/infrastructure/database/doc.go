// Package database provides the SQLite connection behind the hardware
// audit trail.
//
// This package manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Schema migrations read from an fs.FS (the migrations package embeds them)
//   - Health checks and lifecycle
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are nullable or defaulted and every
// .up.sql has a matching .down.sql.
package database
