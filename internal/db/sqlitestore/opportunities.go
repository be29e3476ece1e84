package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/david/funding-scout/internal/db"
	"github.com/david/funding-scout/internal/models"
)

type OpportunityStore struct {
	db *sql.DB
}

const oppCols = `id, external_id, source, title, program_name, sponsor, description,
  source_url, snippet, provider, content,
  amount_min, amount_max, currency, deadline, is_rolling,
  eligibility, eligibility_criteria, project_types, organization_types, source_type,
  is_non_monetary_resource, resource_types, match_score, confidence, reasoning,
  fit_score, competitiveness, timeline_urgency, application_priority, matching_project_ids,
  extracted_at, created_at, updated_at`

const oppPlaceholders = `?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?`

const upsertSQL = `INSERT INTO opportunities (` + oppCols + `) VALUES (` + oppPlaceholders + `)
ON CONFLICT (external_id, source) DO UPDATE SET
  updated_at = excluded.updated_at,
  title = excluded.title,
  program_name = excluded.program_name,
  sponsor = COALESCE(NULLIF(excluded.sponsor, ''), opportunities.sponsor),
  description = COALESCE(NULLIF(excluded.description, ''), opportunities.description),
  source_url = excluded.source_url,
  snippet = excluded.snippet,
  provider = excluded.provider,
  content = COALESCE(NULLIF(excluded.content, ''), opportunities.content),
  amount_min = COALESCE(excluded.amount_min, opportunities.amount_min),
  amount_max = COALESCE(excluded.amount_max, opportunities.amount_max),
  currency = COALESCE(NULLIF(excluded.currency, ''), opportunities.currency),
  deadline = COALESCE(excluded.deadline, opportunities.deadline),
  is_rolling = excluded.is_rolling,
  eligibility = excluded.eligibility,
  eligibility_criteria = excluded.eligibility_criteria,
  project_types = excluded.project_types,
  organization_types = excluded.organization_types,
  source_type = excluded.source_type,
  is_non_monetary_resource = excluded.is_non_monetary_resource,
  resource_types = excluded.resource_types,
  match_score = excluded.match_score,
  confidence = excluded.confidence,
  reasoning = excluded.reasoning,
  fit_score = excluded.fit_score,
  competitiveness = excluded.competitiveness,
  timeline_urgency = excluded.timeline_urgency,
  application_priority = excluded.application_priority,
  matching_project_ids = excluded.matching_project_ids,
  extracted_at = excluded.extracted_at`

const insertSQL = `INSERT INTO opportunities (` + oppCols + `) VALUES (` + oppPlaceholders + `)`

func oppArgs(o *models.ScoredOpportunity) ([]any, error) {
	lists := make([]string, 0, 6)
	for _, l := range [][]string{o.Eligibility, o.EligibilityCriteria, o.ProjectTypes, o.OrganizationTypes, o.ResourceTypes} {
		enc, err := encodeList(l)
		if err != nil {
			return nil, err
		}
		lists = append(lists, enc)
	}
	matching, err := encodeList(o.MatchingProjectIDs)
	if err != nil {
		return nil, err
	}
	var extractedAt *time.Time
	if !o.ExtractedAt.IsZero() {
		extractedAt = &o.ExtractedAt
	}

	return []any{
		o.ID.String(), o.ExternalID, o.Source, o.SearchResult.Title, o.ProgramName, o.Sponsor, o.Description,
		o.URL, o.Snippet, o.Provider, o.Text,
		nullFloat(o.AmountMin), nullFloat(o.AmountMax), o.Currency, formatTimePtr(o.Deadline), boolInt(o.IsRolling),
		lists[0], lists[1], lists[2], lists[3], o.SourceType,
		boolInt(o.IsNonMonetaryResource), lists[4], o.MatchScore, o.Confidence, o.Reasoning,
		o.FitScore, string(o.Competitiveness), string(o.TimelineUrgency), string(o.ApplicationPriority), matching,
		formatTimePtr(extractedAt), formatTime(o.CreatedAt), formatTime(o.UpdatedAt),
	}, nil
}

// Upsert mirrors the Postgres store: upsert first, then one plain insert.
func (s *OpportunityStore) Upsert(ctx context.Context, o *models.ScoredOpportunity) error {
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = now
	}
	args, err := oppArgs(o)
	if err != nil {
		return fmt.Errorf("encode opportunity %s: %w", o.ExternalID, err)
	}

	_, err = s.db.ExecContext(ctx, upsertSQL, args...)
	if err == nil {
		return nil
	}
	zap.S().Named("store").Warnw("upsert failed, retrying as insert", "external_id", o.ExternalID, "error", err)
	if _, insertErr := s.db.ExecContext(ctx, insertSQL, args...); insertErr != nil {
		return fmt.Errorf("save opportunity %s: %w", o.ExternalID, errors.Join(err, insertErr))
	}
	return nil
}

func scanOpportunity(scan func(dest ...any) error) (models.ScoredOpportunity, error) {
	var (
		o                                                     models.ScoredOpportunity
		id, matching                                          string
		elig, criteria, projectTypes, orgTypes, resourceTypes string
		amountMin, amountMax                                  sql.NullFloat64
		deadline, extractedAt                                 sql.NullString
		createdAt, updatedAt                                  string
		rolling, nonMonetary                                  int
		competitiveness, urgency, priority                    string
	)
	err := scan(
		&id, &o.ExternalID, &o.Source, &o.SearchResult.Title, &o.ProgramName, &o.Sponsor, &o.Description,
		&o.URL, &o.Snippet, &o.Provider, &o.Text,
		&amountMin, &amountMax, &o.Currency, &deadline, &rolling,
		&elig, &criteria, &projectTypes, &orgTypes, &o.SourceType,
		&nonMonetary, &resourceTypes, &o.MatchScore, &o.Confidence, &o.Reasoning,
		&o.FitScore, &competitiveness, &urgency, &priority, &matching,
		&extractedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return o, err
	}

	if o.ID, err = uuid.Parse(id); err != nil {
		return o, fmt.Errorf("parse id: %w", err)
	}
	o.IsValid = true
	o.AmountMin = floatPtr(amountMin)
	o.AmountMax = floatPtr(amountMax)
	o.IsRolling = rolling == 1
	o.IsNonMonetaryResource = nonMonetary == 1
	o.Competitiveness = models.Competitiveness(competitiveness)
	o.TimelineUrgency = models.Urgency(urgency)
	o.ApplicationPriority = models.Priority(priority)

	for _, l := range []struct {
		raw string
		dst *[]string
	}{
		{elig, &o.Eligibility},
		{criteria, &o.EligibilityCriteria},
		{projectTypes, &o.ProjectTypes},
		{orgTypes, &o.OrganizationTypes},
		{resourceTypes, &o.ResourceTypes},
	} {
		if err := decodeList(l.raw, l.dst); err != nil {
			return o, fmt.Errorf("decode list: %w", err)
		}
	}
	if err := decodeList(matching, &o.MatchingProjectIDs); err != nil {
		return o, fmt.Errorf("decode matching projects: %w", err)
	}

	if o.Deadline, err = parseTime(deadline); err != nil {
		return o, err
	}
	ex, err := parseTime(extractedAt)
	if err != nil {
		return o, err
	}
	if ex != nil {
		o.ExtractedAt = *ex
	}
	for _, ts := range []struct {
		raw string
		dst *time.Time
	}{{createdAt, &o.CreatedAt}, {updatedAt, &o.UpdatedAt}} {
		t, err := parseTime(sql.NullString{String: ts.raw, Valid: true})
		if err != nil {
			return o, err
		}
		if t != nil {
			*ts.dst = *t
		}
	}
	return o, nil
}

func (s *OpportunityStore) GetByID(ctx context.Context, id uuid.UUID) (*models.ScoredOpportunity, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+oppCols+" FROM opportunities WHERE id = ?", id.String())
	o, err := scanOpportunity(row.Scan)
	if err != nil {
		return nil, notFound(err, "opportunity "+id.String())
	}
	return &o, nil
}

func (s *OpportunityStore) GetByExternalID(ctx context.Context, externalID, source string) (*models.ScoredOpportunity, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+oppCols+" FROM opportunities WHERE external_id = ? AND source = ?", externalID, source)
	o, err := scanOpportunity(row.Scan)
	if err != nil {
		return nil, notFound(err, "opportunity "+externalID)
	}
	return &o, nil
}

// List applies the same filters as the Postgres store. QueryEmbedding is
// ignored.
func (s *OpportunityStore) List(ctx context.Context, params db.ListParams) (*db.ListResult, error) {
	params = params.Normalize()

	var (
		conds []string
		args  []any
	)
	if params.MinFit > 0 {
		conds = append(conds, "fit_score >= ?")
		args = append(args, params.MinFit)
	}
	if params.Source != "" {
		conds = append(conds, "source = ?")
		args = append(args, params.Source)
	}
	if params.NonMonetary != nil {
		conds = append(conds, "is_non_monetary_resource = ?")
		args = append(args, boolInt(*params.NonMonetary))
	}
	if params.Urgency != "" {
		conds = append(conds, "timeline_urgency = ?")
		args = append(args, params.Urgency)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM opportunities"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+oppCols+" FROM opportunities"+where+" ORDER BY fit_score DESC, updated_at DESC LIMIT ? OFFSET ?",
		append(args, params.Limit, params.Offset)...)
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
	return &db.ListResult{Opportunities: opps, Total: total, Limit: params.Limit, Offset: params.Offset}, nil
}
