package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david/funding-scout/internal/models"
)

// CacheStore holds one scoring row per (user, project, opportunity).
type CacheStore struct {
	pool *pgxpool.Pool
}

func NewCacheStore(pool *pgxpool.Pool) *CacheStore {
	return &CacheStore{pool: pool}
}

const cacheCols = "user_id, project_id, opportunity_id, fit_score, analysis, calculated_at, status"

func scanCacheRecord(scan func(dest ...any) error) (models.CacheRecord, error) {
	var r models.CacheRecord
	var status string
	var analysis []byte
	if err := scan(&r.UserID, &r.ProjectID, &r.OpportunityID, &r.FitScore, &analysis, &r.CalculatedAt, &status); err != nil {
		return r, err
	}
	r.Status = models.CacheStatus(status)
	if len(analysis) > 0 {
		r.Analysis = analysis
	}
	return r, nil
}

func (s *CacheStore) Get(ctx context.Context, userID, projectID, opportunityID uuid.UUID) (*models.CacheRecord, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+cacheCols+" FROM scoring_cache WHERE user_id = $1 AND project_id = $2 AND opportunity_id = $3",
		userID, projectID, opportunityID)
	r, err := scanCacheRecord(row.Scan)
	if err != nil {
		return nil, notFound(err, "cache record")
	}
	return &r, nil
}

// Upsert replaces the row for the record's triple.
func (s *CacheStore) Upsert(ctx context.Context, r models.CacheRecord) error {
	var analysis []byte
	if len(r.Analysis) > 0 {
		analysis = r.Analysis
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scoring_cache (`+cacheCols+`)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)
		ON CONFLICT (user_id, project_id, opportunity_id) DO UPDATE SET
			fit_score = EXCLUDED.fit_score,
			analysis = EXCLUDED.analysis,
			calculated_at = EXCLUDED.calculated_at,
			status = EXCLUDED.status
	`, r.UserID, r.ProjectID, r.OpportunityID, r.FitScore, analysis, r.CalculatedAt, string(r.Status))
	if err != nil {
		return fmt.Errorf("upsert cache record: %w", err)
	}
	return nil
}

// MarkProjectNeedsScoring flags every scored row of one project.
func (s *CacheStore) MarkProjectNeedsScoring(ctx context.Context, userID, projectID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"UPDATE scoring_cache SET status = 'needs_scoring', calculated_at = NULL WHERE user_id = $1 AND project_id = $2 AND status <> 'needs_scoring'",
		userID, projectID)
	if err != nil {
		return 0, fmt.Errorf("invalidate project %s: %w", projectID, err)
	}
	return tag.RowsAffected(), nil
}

// MarkUserNeedsScoring flags every scored row of one user.
func (s *CacheStore) MarkUserNeedsScoring(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"UPDATE scoring_cache SET status = 'needs_scoring', calculated_at = NULL WHERE user_id = $1 AND status <> 'needs_scoring'",
		userID)
	if err != nil {
		return 0, fmt.Errorf("invalidate user %s: %w", userID, err)
	}
	return tag.RowsAffected(), nil
}

// List returns a user's rows, newest first. A nil user lists every row.
func (s *CacheStore) List(ctx context.Context, userID uuid.UUID, limit int) ([]models.CacheRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query := "SELECT " + cacheCols + " FROM scoring_cache"
	args := []any{}
	if userID != uuid.Nil {
		query += " WHERE user_id = $1"
		args = append(args, userID)
	}
	query += fmt.Sprintf(" ORDER BY calculated_at DESC NULLS LAST LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []models.CacheRecord
	for rows.Next() {
		r, err := scanCacheRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
