package main

import (
	"context"
	"log"

	"devopsdb/db"
	"devopsdb/logging"
)

func main() {
	// Initialize a demo database without a MongoDB server.
	// This creates the collection and its indexes but loads no seed data.
	dbPath := "devops_db.db"

	logger, err := logging.New("info", logging.FormatConsole)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	store, _, err := db.BootstrapSQLite(context.Background(), dbPath, db.Options{
		Collection: db.DefaultCollection,
		Indexes:    db.DefaultIndexes(),
		Seed:       false,
	}, sugar)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := store.Close(context.Background()); err != nil {
		sugar.Warnw("failed to close database", "error", err)
	}

	sugar.Infow("Demo database initialized successfully", "path", dbPath)
}
