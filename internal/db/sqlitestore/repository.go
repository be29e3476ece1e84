package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/david/funding-scout/internal/models"
)

type Repository struct {
	db *sql.DB
}

func (r *Repository) GetProject(ctx context.Context, id uuid.UUID) (models.Project, error) {
	var p models.Project
	var data string
	if err := r.db.QueryRowContext(ctx, "SELECT data FROM projects WHERE id = ?", id.String()).Scan(&data); err != nil {
		return p, notFound(err, "project "+id.String())
	}
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return p, fmt.Errorf("decode project %s: %w", id, err)
	}
	return p, nil
}

func (r *Repository) ListProjects(ctx context.Context, userID uuid.UUID) ([]models.Project, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT data FROM projects WHERE user_id = ? ORDER BY updated_at DESC", userID.String())
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []models.Project
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		var p models.Project
		if err := json.Unmarshal([]byte(data), &p); err != nil {
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
	_, err = r.db.ExecContext(ctx, `
INSERT INTO projects (id, user_id, data, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET user_id = excluded.user_id, data = excluded.data, updated_at = excluded.updated_at`,
		p.ID.String(), p.UserID.String(), string(data), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save project %s: %w", p.ID, err)
	}
	return nil
}

func (r *Repository) GetProfile(ctx context.Context, userID uuid.UUID) (models.Profile, error) {
	var p models.Profile
	var data string
	if err := r.db.QueryRowContext(ctx, "SELECT data FROM profiles WHERE user_id = ?", userID.String()).Scan(&data); err != nil {
		return p, notFound(err, "profile "+userID.String())
	}
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return p, fmt.Errorf("decode profile %s: %w", userID, err)
	}
	return p, nil
}

func (r *Repository) SaveProfile(ctx context.Context, p models.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO profiles (user_id, data, updated_at) VALUES (?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		p.UserID.String(), string(data), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save profile %s: %w", p.UserID, err)
	}
	return nil
}
