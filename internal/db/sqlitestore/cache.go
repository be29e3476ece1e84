package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/david/funding-scout/internal/db"
	"github.com/david/funding-scout/internal/models"
)

type CacheStore struct {
	db *sql.DB
}

const cacheCols = "user_id, project_id, opportunity_id, fit_score, analysis, calculated_at, status"

func scanCacheRecord(scan func(dest ...any) error) (models.CacheRecord, error) {
	var (
		r                        models.CacheRecord
		userID, projectID, oppID string
		analysis, calculatedAt   sql.NullString
		status                   string
	)
	if err := scan(&userID, &projectID, &oppID, &r.FitScore, &analysis, &calculatedAt, &status); err != nil {
		return r, err
	}
	var err error
	if r.UserID, err = uuid.Parse(userID); err != nil {
		return r, fmt.Errorf("parse user id: %w", err)
	}
	if r.ProjectID, err = uuid.Parse(projectID); err != nil {
		return r, fmt.Errorf("parse project id: %w", err)
	}
	if r.OpportunityID, err = uuid.Parse(oppID); err != nil {
		return r, fmt.Errorf("parse opportunity id: %w", err)
	}
	if analysis.Valid && analysis.String != "" {
		r.Analysis = []byte(analysis.String)
	}
	if r.CalculatedAt, err = parseTime(calculatedAt); err != nil {
		return r, err
	}
	r.Status = models.CacheStatus(status)
	return r, nil
}

func (s *CacheStore) Get(ctx context.Context, userID, projectID, opportunityID uuid.UUID) (*models.CacheRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+cacheCols+" FROM scoring_cache WHERE user_id = ? AND project_id = ? AND opportunity_id = ?",
		userID.String(), projectID.String(), opportunityID.String())
	r, err := scanCacheRecord(row.Scan)
	if err != nil {
		return nil, notFound(err, "cache record")
	}
	return &r, nil
}

func (s *CacheStore) Upsert(ctx context.Context, r models.CacheRecord) error {
	var analysis any
	if len(r.Analysis) > 0 {
		analysis = string(r.Analysis)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO scoring_cache (`+cacheCols+`) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, project_id, opportunity_id) DO UPDATE SET
  fit_score = excluded.fit_score,
  analysis = excluded.analysis,
  calculated_at = excluded.calculated_at,
  status = excluded.status`,
		r.UserID.String(), r.ProjectID.String(), r.OpportunityID.String(), r.FitScore, analysis, formatTimePtr(r.CalculatedAt), string(r.Status))
	if err != nil {
		return fmt.Errorf("upsert cache record: %w", err)
	}
	return nil
}

func (s *CacheStore) MarkProjectNeedsScoring(ctx context.Context, userID, projectID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE scoring_cache SET status = 'needs_scoring', calculated_at = NULL WHERE user_id = ? AND project_id = ? AND status <> 'needs_scoring'",
		userID.String(), projectID.String())
	if err != nil {
		return 0, fmt.Errorf("invalidate project %s: %w", projectID, err)
	}
	return res.RowsAffected()
}

func (s *CacheStore) MarkUserNeedsScoring(ctx context.Context, userID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE scoring_cache SET status = 'needs_scoring', calculated_at = NULL WHERE user_id = ? AND status <> 'needs_scoring'",
		userID.String())
	if err != nil {
		return 0, fmt.Errorf("invalidate user %s: %w", userID, err)
	}
	return res.RowsAffected()
}

func (s *CacheStore) List(ctx context.Context, userID uuid.UUID, limit int) ([]models.CacheRecord, error) {
	if limit <= 0 {
		limit = db.DefaultListLimit
	}
	query := "SELECT " + cacheCols + " FROM scoring_cache"
	var args []any
	if userID != uuid.Nil {
		query += " WHERE user_id = ?"
		args = append(args, userID.String())
	}
	query += " ORDER BY calculated_at IS NULL, calculated_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
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
