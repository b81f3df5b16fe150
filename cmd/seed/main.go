// Package main provides a CLI tool for seeding the database with initial data.
package main

import (
	"context"
	"fmt"
	"os"

	"stockflow/internal/app"
	"stockflow/internal/config"
	"stockflow/internal/core/security"
	"stockflow/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load configuration", "error", err)
	}
	if cfg.StoreDriver != config.DriverPostgres {
		log.Fatal("seed requires STORE_DRIVER=postgres")
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to connect", "error", err)
	}
	defer a.Close()

	if err := a.Migrate(ctx); err != nil {
		log.Fatalw("migration failed", "error", err)
	}
	log.Info("schema is up to date")

	// Opening stock is posted once; reference data is upserted on every run.
	ds := app.DemoDataset()
	if os.Getenv("SEED_OPENING_STOCK") == "false" {
		ds.Openings = nil
	}
	if _, err := a.Seed(ctx, ds); err != nil {
		log.Fatalw("failed to seed data", "error", err)
	}

	if cfg.IsDevelopment() {
		printTokens(a.Tokens, log)
	}
	log.Info("seeding completed successfully")
}

func printTokens(tokens *security.TokenService, log *logger.Logger) {
	actors := []security.Actor{
		{ID: "dev-clerk", Name: "Dev clerk", Roles: []string{security.RoleClerk}},
		{ID: "dev-approver", Name: "Dev approver", Roles: []string{security.RoleApprover}},
		{ID: "dev-cashier", Name: "Dev cashier", Roles: []string{security.RoleCashier}},
		{ID: "dev-admin", Name: "Dev admin", Roles: []string{security.RoleAdmin}},
	}
	for _, actor := range actors {
		token, expires, err := tokens.Issue(actor)
		if err != nil {
			log.Fatalw("failed to issue token", "actor", actor.ID, "error", err)
		}
		fmt.Printf("%-13s %s\n  expires %s\n", actor.ID, token, expires.Format("2006-01-02 15:04"))
	}
}
