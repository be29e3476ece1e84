package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david/funding-scout/internal/models"
)

// Repository reads and writes projects and organization profiles. Both are
// stored as JSON documents; the pipeline only ever reads them.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetProject(ctx context.Context, id uuid.UUID) (models.Project, error) {
	var p models.Project
	var data []byte
	if err := r.pool.QueryRow(ctx, "SELECT data FROM projects WHERE id = $1", id).Scan(&data); err != nil {
		return p, notFound(err, "project "+id.String())
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode project %s: %w", id, err)
	}
	return p, nil
}

func (r *Repository) ListProjects(ctx context.Context, userID uuid.UUID) ([]models.Project, error) {
	rows, err := r.pool.Query(ctx, "SELECT data FROM projects WHERE user_id = $1 ORDER BY updated_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []models.Project
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		var p models.Project
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) SaveProject(ctx context.Context, p models.Project) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO projects (id, user_id, data, updated_at) VALUES ($1, $2, $3::jsonb, NOW())
		ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, data = EXCLUDED.data, updated_at = NOW()
	`, p.ID, p.UserID, data)
	if err != nil {
		return fmt.Errorf("save project %s: %w", p.ID, err)
	}
	return nil
}

func (r *Repository) GetProfile(ctx context.Context, userID uuid.UUID) (models.Profile, error) {
	var p models.Profile
	var data []byte
	if err := r.pool.QueryRow(ctx, "SELECT data FROM profiles WHERE user_id = $1", userID).Scan(&data); err != nil {
		return p, notFound(err, "profile "+userID.String())
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode profile %s: %w", userID, err)
	}
	return p, nil
}

func (r *Repository) SaveProfile(ctx context.Context, p models.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO profiles (user_id, data, updated_at) VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (user_id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`, p.UserID, data)
	if err != nil {
		return fmt.Errorf("save profile %s: %w", p.UserID, err)
	}
	return nil
}
