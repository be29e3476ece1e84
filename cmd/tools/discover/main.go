package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/david/funding-scout/internal/app"
	"github.com/david/funding-scout/internal/config"
	"github.com/david/funding-scout/internal/db"
	"github.com/david/funding-scout/internal/db/sqlitestore"
	"github.com/david/funding-scout/internal/discovery"
	"github.com/david/funding-scout/internal/logging"
	"github.com/david/funding-scout/internal/models"
)

// projectFile is the YAML shape accepted by --projects.
type projectFile struct {
	Profile  *models.Profile  `yaml:"profile"`
	Projects []models.Project `yaml:"projects"`
}

type options struct {
	query        string
	depth        string
	projectsPath string
	sqlitePath   string
	postgres     bool
	dryRun       bool
	resourceOnly bool
	exclude      []string
	include      []string
	orgType      string
	logLevel     string
}

func main() {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "discover",
		Short: "Run one funding discovery and print the scored results.",
		Long: `discover runs the full pipeline (intent, search, filter, extract, analyze, score)
for one query and stores the results in SQLite (default) or Postgres.`,
		Example: `  discover -q "clean energy nonprofit" --projects projects.yaml
  discover -q "free cloud credits" --resource-only --dry-run`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	f := rootCmd.Flags()
	f.StringVarP(&opts.query, "query", "q", "", "search query")
	f.StringVarP(&opts.depth, "depth", "d", string(models.DepthStandard), "search depth: quick, standard, comprehensive")
	f.StringVarP(&opts.projectsPath, "projects", "p", "", "YAML file with a profile and projects to score against")
	f.StringVar(&opts.sqlitePath, "sqlite", "funding-scout.db", "SQLite database file")
	f.BoolVar(&opts.postgres, "postgres", false, "store results in Postgres (DATABASE_URL) instead of SQLite")
	f.BoolVar(&opts.dryRun, "dry-run", false, "do not store results")
	f.BoolVar(&opts.resourceOnly, "resource-only", false, "only keep non-monetary resources")
	f.StringSliceVar(&opts.exclude, "exclude", nil, "extra domains to exclude for this run")
	f.StringSliceVar(&opts.include, "include", nil, "domains to allow for this run even if excluded by default")
	f.StringVar(&opts.orgType, "org-type", "", "organization type when no profile is given")
	f.StringVarP(&opts.logLevel, "loglevel", "l", "", "log level (default from LOG_LEVEL)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	flush, err := logging.Init(level, true)
	if err != nil {
		return err
	}
	defer flush()

	var pf projectFile
	if opts.projectsPath != "" {
		data, err := os.ReadFile(opts.projectsPath)
		if err != nil {
			return fmt.Errorf("read projects file: %w", err)
		}
		if err := yaml.Unmarshal(data, &pf); err != nil {
			return fmt.Errorf("parse projects file: %w", err)
		}
	}

	backend, closeFn, err := openBackend(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer closeFn()

	a, err := app.New(ctx, cfg, backend)
	if err != nil {
		return err
	}
	if opts.dryRun {
		a.Discovery.Store = nil
	}

	req := discovery.DiscoveryRequest{
		SearchQuery:      opts.query,
		SearchDepth:      models.SearchDepth(opts.depth),
		UserProjects:     pf.Projects,
		OrganizationType: opts.orgType,
		ResourceOnly:     opts.resourceOnly,
		ExcludeDomains:   opts.exclude,
		IncludeDomains:   opts.include,
	}
	if pf.Profile != nil {
		req.UserID = pf.Profile.UserID
		if req.OrganizationType == "" {
			req.OrganizationType = pf.Profile.OrganizationType
		}
	}

	resp, err := a.Discovery.Discover(ctx, req)
	if err != nil {
		return err
	}
	render(resp)
	return nil
}

func openBackend(ctx context.Context, cfg *config.Config, opts options) (app.Backend, func(), error) {
	if opts.postgres {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return app.Backend{}, nil, err
		}
		if err := db.ApplyMigrations(ctx, pool); err != nil {
			pool.Close()
			return app.Backend{}, nil, err
		}
		backend := app.PostgresBackend(db.NewOpportunityStore(pool), db.NewCacheStore(pool), db.NewRepository(pool))
		return backend, pool.Close, nil
	}

	d, err := sqlitestore.Open(opts.sqlitePath)
	if err != nil {
		return app.Backend{}, nil, fmt.Errorf("open sqlite: %w", err)
	}
	return app.SQLiteBackend(d), func() { d.Close() }, nil
}

func render(resp discovery.DiscoveryResponse) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("%q: %d opportunities (%s, %s)",
		resp.SearchQuery, resp.OpportunitiesFound, resp.IntentAnalysis.IntentType, resp.SearchStrategy.Duration))
	t.AppendHeader(table.Row{"Fit", "Priority", "Urgency", "Title", "Sponsor", "Deadline", "Amount", "URL"})

	for _, o := range resp.Opportunities {
		deadline := "-"
		if o.Deadline != nil {
			deadline = o.Deadline.Format(time.DateOnly)
		}
		t.AppendRow(table.Row{
			o.FitScore, o.ApplicationPriority, o.TimelineUrgency,
			truncate(o.Title, 50), truncate(o.Sponsor, 30), deadline, amount(o), o.SourceURL,
		})
	}

	s := resp.SearchStrategy
	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("search %d raw / %d unique, filter kept %d, extracted %d, persisted %d",
		s.Search.RawResults, len(s.Search.Results), s.Filter.Kept, s.Extraction.Extracted, s.Persisted)})
	t.Render()
}

func amount(o models.OpportunitySummary) string {
	if o.IsNonMonetary {
		return "in-kind"
	}
	switch {
	case o.AmountMin != nil && o.AmountMax != nil:
		return money(*o.AmountMin) + "-" + money(*o.AmountMax)
	case o.AmountMax != nil:
		return "up to " + money(*o.AmountMax)
	case o.AmountMin != nil:
		return "from " + money(*o.AmountMin)
	}
	return "-"
}

func money(v float64) string {
	switch {
	case v >= 1_000_000:
		return strconv.FormatFloat(v/1_000_000, 'f', 1, 64) + "M"
	case v >= 1_000:
		return strconv.FormatFloat(v/1_000, 'f', 0, 64) + "k"
	}
	return strconv.FormatFloat(v, 'f', 0, 64)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
