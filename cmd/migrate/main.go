package main

import (
	"context"
	"log"
	"os"
	"strings"

	"gospatial/adapters/sqlstore"
	"gospatial/internal"
	"gospatial/internal/config"
	"gospatial/internal/migration"
)

// Applies the results schema to the database named on the command line,
// or to DATABASE_URL when no argument is given.
func main() {
	if len(os.Args) > 2 {
		log.Fatal("Usage: migrate [database_url]")
	}

	databaseURL := ""
	if len(os.Args) == 2 {
		databaseURL = os.Args[1]
	} else {
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		databaseURL = cfg.Database.URL
	}

	ctx := context.Background()
	logger := internal.NewDefaultLogger().With("migrate")
	db, err := sqlstore.OpenAndMigrate(ctx, databaseURL, logger)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	defer db.Close()

	versions, err := migration.AppliedVersions(ctx, db)
	if err != nil {
		log.Fatalf("Failed to read schema versions: %v", err)
	}
	log.Printf("Migration complete: %s schema, applied versions %s",
		sqlstore.DriverFor(databaseURL), strings.Join(versions, ", "))
}
