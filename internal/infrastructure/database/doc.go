// Package database provides SQLite persistence for the camera fleet core.
//
// This package manages:
//   - Opening and configuring the SQLite database (WAL mode, busy timeout)
//   - Schema migrations from embedded SQL files
//   - Connection lifecycle and health checks
//
// # Concurrency
//
// SQLite supports a single writer; the connection pool is capped at one
// connection. WAL mode allows concurrent readers during writes.
//
// # Migrations
//
// Migration files live in the top-level migrations/ directory and are
// embedded into the binary via the migrations package. Filenames follow
// YYYYMMDD_HHMMSS_description.up.sql and are applied in version order,
// each in its own transaction.
//
// # Usage
//
//	db, err := database.Open(database.Config{Path: "./data/camfleet.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
