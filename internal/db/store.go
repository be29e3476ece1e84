package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/david/funding-scout/internal/models"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// OpportunityStore persists scored opportunities keyed by (external_id, source).
type OpportunityStore struct {
	pool *pgxpool.Pool
}

func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

type ListParams struct {
	MinFit      int
	Source      string
	NonMonetary *bool
	Urgency     string
	// QueryEmbedding orders results by cosine distance when set.
	QueryEmbedding []float32
	Limit          int
	Offset         int
}

type ListResult struct {
	Opportunities []models.ScoredOpportunity `json:"opportunities"`
	Total         int                        `json:"total"`
	Limit         int                        `json:"limit"`
	Offset        int                        `json:"offset"`
}

// Normalize applies the default and maximum limit.
func (p ListParams) Normalize() ListParams {
	if p.Limit <= 0 {
		p.Limit = DefaultListLimit
	}
	if p.Limit > MaxListLimit {
		p.Limit = MaxListLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// writeCols is the column order shared by insert and upsert.
var writeCols = []string{
	"id", "external_id", "source", "title", "program_name", "sponsor", "description",
	"source_url", "snippet", "provider", "content",
	"amount_min", "amount_max", "currency", "deadline", "is_rolling",
	"eligibility", "eligibility_criteria", "project_types", "organization_types", "source_type",
	"is_non_monetary_resource", "resource_types", "match_score", "confidence", "reasoning",
	"fit_score", "competitiveness", "timeline_urgency", "application_priority", "matching_project_ids",
	"embedding", "extracted_at", "created_at", "updated_at",
}

// selectCols mirrors writeCols minus the embedding.
const selectCols = `id, external_id, source, title, program_name, sponsor, description,
	source_url, snippet, provider, content,
	amount_min, amount_max, currency, deadline, is_rolling,
	eligibility, eligibility_criteria, project_types, organization_types, source_type,
	is_non_monetary_resource, resource_types, match_score, confidence, reasoning,
	fit_score, competitiveness, timeline_urgency, application_priority, matching_project_ids,
	extracted_at, created_at, updated_at`

var (
	insertOpportunitySQL = fmt.Sprintf("INSERT INTO opportunities (%s) VALUES (%s)",
		strings.Join(writeCols, ", "), placeholders(len(writeCols)))

	upsertOpportunitySQL = insertOpportunitySQL + `
		ON CONFLICT (external_id, source) DO UPDATE SET
			updated_at = EXCLUDED.updated_at,
			title = EXCLUDED.title,
			program_name = EXCLUDED.program_name,
			sponsor = COALESCE(NULLIF(EXCLUDED.sponsor, ''), opportunities.sponsor),
			description = COALESCE(NULLIF(EXCLUDED.description, ''), opportunities.description),
			source_url = EXCLUDED.source_url,
			snippet = EXCLUDED.snippet,
			provider = EXCLUDED.provider,
			content = COALESCE(NULLIF(EXCLUDED.content, ''), opportunities.content),
			amount_min = COALESCE(EXCLUDED.amount_min, opportunities.amount_min),
			amount_max = COALESCE(EXCLUDED.amount_max, opportunities.amount_max),
			currency = COALESCE(NULLIF(EXCLUDED.currency, ''), opportunities.currency),
			deadline = COALESCE(EXCLUDED.deadline, opportunities.deadline),
			is_rolling = EXCLUDED.is_rolling,
			eligibility = EXCLUDED.eligibility,
			eligibility_criteria = EXCLUDED.eligibility_criteria,
			project_types = EXCLUDED.project_types,
			organization_types = EXCLUDED.organization_types,
			source_type = EXCLUDED.source_type,
			is_non_monetary_resource = EXCLUDED.is_non_monetary_resource,
			resource_types = EXCLUDED.resource_types,
			match_score = EXCLUDED.match_score,
			confidence = EXCLUDED.confidence,
			reasoning = EXCLUDED.reasoning,
			fit_score = EXCLUDED.fit_score,
			competitiveness = EXCLUDED.competitiveness,
			timeline_urgency = EXCLUDED.timeline_urgency,
			application_priority = EXCLUDED.application_priority,
			matching_project_ids = EXCLUDED.matching_project_ids,
			embedding = COALESCE(EXCLUDED.embedding, opportunities.embedding),
			extracted_at = EXCLUDED.extracted_at`
)

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ", ")
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

func writeArgs(o *models.ScoredOpportunity) []any {
	var embedding *pgvector.Vector
	if len(o.Embedding) > 0 {
		v := pgvector.NewVector(o.Embedding)
		embedding = &v
	}
	var extractedAt *time.Time
	if !o.ExtractedAt.IsZero() {
		extractedAt = &o.ExtractedAt
	}
	matching := o.MatchingProjectIDs
	if matching == nil {
		matching = []uuid.UUID{}
	}
	return []any{
		o.ID, o.ExternalID, o.Source, o.SearchResult.Title, o.ProgramName, o.Sponsor, o.Description,
		o.URL, o.Snippet, o.Provider, o.Text,
		o.AmountMin, o.AmountMax, o.Currency, o.Deadline, o.IsRolling,
		nonNil(o.Eligibility), nonNil(o.EligibilityCriteria), nonNil(o.ProjectTypes), nonNil(o.OrganizationTypes), o.SourceType,
		o.IsNonMonetaryResource, nonNil(o.ResourceTypes), o.MatchScore, o.Confidence, o.Reasoning,
		o.FitScore, string(o.Competitiveness), string(o.TimelineUrgency), string(o.ApplicationPriority), matching,
		embedding, extractedAt, o.CreatedAt, o.UpdatedAt,
	}
}

// Upsert writes the opportunity, updating the row that shares its
// (external_id, source). A failed upsert is retried once as a plain insert.
func (s *OpportunityStore) Upsert(ctx context.Context, o *models.ScoredOpportunity) error {
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = now
	}
	args := writeArgs(o)

	_, err := s.pool.Exec(ctx, upsertOpportunitySQL, args...)
	if err == nil {
		return nil
	}
	zap.S().Named("store").Warnw("upsert failed, retrying as insert", "external_id", o.ExternalID, "source", o.Source, "error", err)

	if _, insertErr := s.pool.Exec(ctx, insertOpportunitySQL, args...); insertErr != nil {
		return fmt.Errorf("save opportunity %s: %w", o.ExternalID, errors.Join(err, insertErr))
	}
	return nil
}

func scanOpportunity(scan func(dest ...any) error) (models.ScoredOpportunity, error) {
	var o models.ScoredOpportunity
	var competitiveness, urgency, priority string
	var extractedAt *time.Time

	err := scan(
		&o.ID, &o.ExternalID, &o.Source, &o.SearchResult.Title, &o.ProgramName, &o.Sponsor, &o.Description,
		&o.URL, &o.Snippet, &o.Provider, &o.Text,
		&o.AmountMin, &o.AmountMax, &o.Currency, &o.Deadline, &o.IsRolling,
		&o.Eligibility, &o.EligibilityCriteria, &o.ProjectTypes, &o.OrganizationTypes, &o.SourceType,
		&o.IsNonMonetaryResource, &o.ResourceTypes, &o.MatchScore, &o.Confidence, &o.Reasoning,
		&o.FitScore, &competitiveness, &urgency, &priority, &o.MatchingProjectIDs,
		&extractedAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}

	o.IsValid = true
	o.Competitiveness = models.Competitiveness(competitiveness)
	o.TimelineUrgency = models.Urgency(urgency)
	o.ApplicationPriority = models.Priority(priority)
	if extractedAt != nil {
		o.ExtractedAt = *extractedAt
	}
	return o, nil
}

func (s *OpportunityStore) GetByID(ctx context.Context, id uuid.UUID) (*models.ScoredOpportunity, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM opportunities WHERE id = $1", selectCols), id)
	o, err := scanOpportunity(row.Scan)
	if err != nil {
		return nil, notFound(err, "opportunity "+id.String())
	}
	return &o, nil
}

func (s *OpportunityStore) GetByExternalID(ctx context.Context, externalID, source string) (*models.ScoredOpportunity, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM opportunities WHERE external_id = $1 AND source = $2", selectCols),
		externalID, source)
	o, err := scanOpportunity(row.Scan)
	if err != nil {
		return nil, notFound(err, "opportunity "+externalID)
	}
	return &o, nil
}

// buildListWhere returns the WHERE clause, its args and the next free
// placeholder index.
func buildListWhere(params ListParams) (string, []any, int) {
	where := "WHERE 1=1"
	var args []any
	argIdx := 1

	if params.MinFit > 0 {
		where += fmt.Sprintf(" AND fit_score >= $%d", argIdx)
		args = append(args, params.MinFit)
		argIdx++
	}
	if params.Source != "" {
		where += fmt.Sprintf(" AND source = $%d", argIdx)
		args = append(args, params.Source)
		argIdx++
	}
	if params.NonMonetary != nil {
		where += fmt.Sprintf(" AND is_non_monetary_resource = $%d", argIdx)
		args = append(args, *params.NonMonetary)
		argIdx++
	}
	if params.Urgency != "" {
		where += fmt.Sprintf(" AND timeline_urgency = $%d", argIdx)
		args = append(args, params.Urgency)
		argIdx++
	}
	return where, args, argIdx
}

func (s *OpportunityStore) List(ctx context.Context, params ListParams) (*ListResult, error) {
	params = params.Normalize()
	where, args, argIdx := buildListWhere(params)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM opportunities "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}

	selectSQL := fmt.Sprintf("SELECT %s FROM opportunities %s", selectCols, where)
	if len(params.QueryEmbedding) > 0 {
		selectSQL += fmt.Sprintf(`
			ORDER BY
				CASE WHEN embedding IS NULL THEN 1 ELSE 0 END ASC,
				embedding <=> $%d ASC,
				fit_score DESC`, argIdx)
		args = append(args, pgvector.NewVector(params.QueryEmbedding))
		argIdx++
	} else {
		selectSQL += " ORDER BY fit_score DESC, updated_at DESC"
	}
	selectSQL += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, params.Limit, params.Offset)

	rows, err := s.pool.Query(ctx, selectSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	opps := []models.ScoredOpportunity{}
	for rows.Next() {
		o, err := scanOpportunity(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return &ListResult{Opportunities: opps, Total: total, Limit: params.Limit, Offset: params.Offset}, nil
}
