package activity

import (
	"context"
	"database/sql"
	"fmt"

	"animehub/pkg/database"
	"animehub/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

// Record inserts one activity row on q, so callers can make it part of
// their own transaction.
func (r *Repo) Record(ctx context.Context, q database.DBTX, a models.Activity) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO activities (user_id, activity_type, target_type, target_id, message)
		VALUES (?, ?, ?, ?, ?)
	`, a.UserID, a.ActivityType, a.TargetType, a.TargetID, a.Message)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (r *Repo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Activity, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM activities WHERE user_id = ?
	`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count activities: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, user_id, activity_type, target_type, target_id, message, created_at
		FROM activities
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	out := make([]models.Activity, 0, limit)
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.ID, &a.UserID, &a.ActivityType, &a.TargetType, &a.TargetID, &a.Message, &a.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows activities: %w", err)
	}
	return out, total, nil
}
