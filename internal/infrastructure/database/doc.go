// Package database provides SQLite connectivity for huesync.
//
// The daemon uses a single SQLite file to persist snapshots of the state
// tree between runs, most importantly the real_bri brightness shadows that
// restore lights to their pre-off level after a restart. The package
// manages:
//   - Connection setup with WAL mode for concurrent reads
//   - Embedded schema migrations applied at startup
//   - Health checks and lifecycle management
//
// SQLite supports only one writer, so the pool is limited to a single
// connection. The busy timeout prevents "database is locked" errors when
// the snapshot writer and a reader contend.
//
// Usage:
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files live in the top-level migrations/ directory and are
// embedded into the binary. Filenames follow
// YYYYMMDD_HHMMSS_description.up.sql with a matching .down.sql for
// rollback.
package database
