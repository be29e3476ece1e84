package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/funding-scout/internal/cache"
	"github.com/david/funding-scout/internal/config"
	"github.com/david/funding-scout/internal/db"
	"github.com/david/funding-scout/internal/db/sqlitestore"
	"github.com/david/funding-scout/internal/models"
)

func main() {
	sqlitePath := flag.String("sqlite", "", "read a SQLite database instead of DATABASE_URL")
	user := flag.String("user", "", "only rows of this user id")
	limit := flag.Int("limit", 25, "rows to show")
	flag.Parse()

	var userID uuid.UUID
	if *user != "" {
		var err error
		if userID, err = uuid.Parse(*user); err != nil {
			log.Fatalf("Invalid -user: %v", err)
		}
	}

	ctx := context.Background()
	var records []models.CacheRecord
	if *sqlitePath != "" {
		d, err := sqlitestore.Open(*sqlitePath)
		if err != nil {
			log.Fatal(err)
		}
		defer d.Close()
		if records, err = d.Cache().List(ctx, userID, *limit); err != nil {
			log.Fatal(err)
		}
	} else {
		cfg, err := config.Load()
		if err != nil {
			log.Fatal(err)
		}
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal(err)
		}
		defer pool.Close()
		if records, err = db.NewCacheStore(pool).List(ctx, userID, *limit); err != nil {
			log.Fatal(err)
		}
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Project", "Opportunity", "Score", "Status", "Age", "Fresh"})

	now := time.Now()
	fresh := 0
	for _, r := range records {
		age := "never"
		isFresh := false
		if r.CalculatedAt != nil {
			d := now.Sub(*r.CalculatedAt)
			age = d.Round(time.Minute).String()
			isFresh = r.Status == models.CacheScored && d < cache.TTL
		}
		if isFresh {
			fresh++
		}
		t.AppendRow(table.Row{short(r.ProjectID), short(r.OpportunityID), r.FitScore, r.Status, age, isFresh})
	}
	t.AppendFooter(table.Row{"", "", "", "", "fresh", fresh})
	t.Render()
}

func short(id uuid.UUID) string {
	return id.String()[:8]
}
