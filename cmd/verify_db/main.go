package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/david/funding-scout/internal/config"
	"github.com/david/funding-scout/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	problems, err := db.VerifySchema(ctx, pool)
	if err != nil {
		log.Fatalf("Schema check failed: %v", err)
	}
	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Printf("MISSING: %s\n", p)
		}
		os.Exit(1)
	}

	var opportunities, scored, stale int
	err = pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM opportunities),
			(SELECT count(*) FROM scoring_cache WHERE status = 'scored'),
			(SELECT count(*) FROM scoring_cache WHERE status = 'needs_scoring')
	`).Scan(&opportunities, &scored, &stale)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	fmt.Println("Schema OK")
	fmt.Printf("Opportunities: %d\n", opportunities)
	fmt.Printf("Cached scores: %d (needs scoring: %d)\n", scored, stale)
}
