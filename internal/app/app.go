// Package app wires configuration, storage and the pipeline services
// together for the server and the command line tools.
package app

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/david/funding-scout/internal/ai"
	"github.com/david/funding-scout/internal/cache"
	"github.com/david/funding-scout/internal/config"
	"github.com/david/funding-scout/internal/db"
	"github.com/david/funding-scout/internal/db/sqlitestore"
	"github.com/david/funding-scout/internal/discovery"
	"github.com/david/funding-scout/internal/ingest"
	"github.com/david/funding-scout/internal/models"
	"github.com/david/funding-scout/internal/scoring"
)

// OpportunityStore is satisfied by both the Postgres and SQLite stores.
type OpportunityStore interface {
	Upsert(ctx context.Context, opp *models.ScoredOpportunity) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ScoredOpportunity, error)
	List(ctx context.Context, params db.ListParams) (*db.ListResult, error)
}

type Repository interface {
	GetProject(ctx context.Context, id uuid.UUID) (models.Project, error)
	ListProjects(ctx context.Context, userID uuid.UUID) ([]models.Project, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (models.Profile, error)
}

// Backend bundles one storage implementation.
type Backend struct {
	Opportunities OpportunityStore
	Cache         cache.Store
	Repository    Repository
	// Embeddings is true when the opportunity store keeps vectors.
	Embeddings bool
}

func PostgresBackend(store *db.OpportunityStore, cacheStore *db.CacheStore, repo *db.Repository) Backend {
	return Backend{Opportunities: store, Cache: cacheStore, Repository: repo, Embeddings: true}
}

func SQLiteBackend(d *sqlitestore.DB) Backend {
	return Backend{Opportunities: d.Opportunities(), Cache: d.Cache(), Repository: d.Repository()}
}

type App struct {
	Config    *config.Config
	Backend   Backend
	Discovery *discovery.Service
	Scoring   *scoring.Service
	Cache     *cache.Service
	Embedder  ai.Embedder
}

// New builds every service from cfg. A missing search key is not an error
// here; discovery reports it per request.
func New(ctx context.Context, cfg *config.Config, backend Backend) (*App, error) {
	log := zap.S().Named("app")

	registry, err := discovery.LoadDomainRegistry("")
	if err != nil {
		return nil, fmt.Errorf("load domain registry: %w", err)
	}

	chain := ai.NewChainFromConfig(ctx, cfg.LLM)

	var strategic scoring.StrategicAnalyzer
	if chain.Len() > 0 {
		strategic = ai.NewStrategicAnalyzer(chain)
	}
	scorer := scoring.NewScorer(scoring.DefaultWeights().WithOverrides(cfg.Scoring), strategic)

	providers := discovery.ProvidersFromKeys(cfg.Search.SerperAPIKey, cfg.Search.BraveAPIKey)
	if len(providers) == 0 {
		log.Warn("no search provider configured; discovery requests will fail")
	}

	disc := discovery.NewService(
		ai.NewIntentAnalyzer(chain),
		discovery.NewOrchestrator(providers, registry),
		ingest.NewExtractor(ingest.FetchConfig{}),
		ai.NewOpportunityAnalyzer(chain),
		scorer,
		registry.Exclusions(cfg.ExcludedDomains...),
	)

	a := &App{
		Config:  cfg,
		Backend: backend,
		Scoring: scoring.NewService(scorer),
	}

	if backend.Opportunities != nil {
		disc.Store = backend.Opportunities
	}
	if backend.Cache != nil {
		disc.Cache = backend.Cache
	}
	if backend.Repository != nil {
		disc.Profiles = backend.Repository
	}
	if backend.Embeddings && slices.Contains(cfg.LLM.Providers, "ollama") && cfg.LLM.OllamaEmbedModel != "" {
		a.Embedder = ai.NewOllamaClient(cfg.LLM.OllamaHost, cfg.LLM.OllamaEmbedModel, cfg.LLM.OllamaModel)
		disc.Embedder = a.Embedder
	}
	a.Discovery = disc

	if backend.Cache != nil && backend.Repository != nil && backend.Opportunities != nil {
		a.Cache = cache.NewService(backend.Cache, backend.Repository, backend.Repository, backend.Opportunities, scorer)
	}
	return a, nil
}
