package main

import (
	"flag"

	"github.com/onurcolak/retention-outbox-service/environments"
	"github.com/onurcolak/retention-outbox-service/pkg/database"
	"github.com/onurcolak/retention-outbox-service/pkg/logger"
)

// Seeds the demo tenant used for local runs of the pipeline.
func main() {
	migrate := flag.Bool("migrate", true, "run schema migrations before seeding")
	flag.Parse()

	cfg := environments.Load()
	logger.Init(cfg.Log)

	db, err := database.NewMySQLDB(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	defer func() {
		if err := db.Close(); err != nil {
			logger.Errorf("Failed to close database: %v", err)
		}
	}()

	if *migrate {
		if err := database.RunMigrations(db); err != nil {
			logger.Fatalf("Failed to run migrations: %v", err)
		}
	}

	if err := database.SeedTestData(db); err != nil {
		logger.Fatalf("Failed to seed test data: %v", err)
	}

	logger.Infof("Seed completed: demo tenant with members, identities, a DM thread and an opportunity")
}
