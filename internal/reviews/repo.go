package reviews

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"animehub/internal/activity"
	"animehub/pkg/database"
	"animehub/pkg/models"
)

var (
	ErrAnimeNotFound  = errors.New("anime not found")
	ErrInvalidScore   = errors.New("score must be between 0 and 10")
	ErrReviewNotFound = errors.New("review not found")
	ErrEmptyComment   = errors.New("comment content required")
)

const maxCommentLen = 2000

type Repo struct {
	DB       *sql.DB
	Activity *activity.Repo
}

func NewRepo(db *sql.DB, act *activity.Repo) *Repo {
	return &Repo{DB: db, Activity: act}
}

func (r *Repo) Create(ctx context.Context, userID string, animeID int64, score int, content string) (*models.Review, error) {
	if score < 0 || score > 10 {
		return nil, ErrInvalidScore
	}

	var id int64
	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		var title string
		err := tx.QueryRowContext(ctx, `SELECT title FROM animes WHERE id = ?`, animeID).Scan(&title)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAnimeNotFound
		}
		if err != nil {
			return fmt.Errorf("get anime %d: %w", animeID, err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO reviews (user_id, anime_id, score, content)
			VALUES (?, ?, ?, ?)
		`, userID, animeID, score, content)
		if err != nil {
			return fmt.Errorf("insert review: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		if r.Activity == nil {
			return nil
		}
		return r.Activity.Record(ctx, tx, models.Activity{
			UserID:       userID,
			ActivityType: models.ActivityReviewCreated,
			TargetType:   "anime",
			TargetID:     animeID,
			Message:      fmt.Sprintf("reviewed %s (%d/10)", title, score),
		})
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*models.Review, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, user_id, anime_id, score, content, created_at
		FROM reviews
		WHERE id = ?
	`, id)

	var review models.Review
	var content sql.NullString
	if err := row.Scan(&review.ID, &review.UserID, &review.AnimeID, &review.Score, &content, &review.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan review: %w", err)
	}
	review.Content = content.String
	return &review, nil
}

func (r *Repo) ListByAnime(ctx context.Context, animeID int64, limit, offset int) ([]models.Review, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, user_id, anime_id, score, content, created_at
		FROM reviews
		WHERE anime_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, animeID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	out := make([]models.Review, 0, limit)
	for rows.Next() {
		var review models.Review
		var content sql.NullString
		if err := rows.Scan(&review.ID, &review.UserID, &review.AnimeID, &review.Score, &content, &review.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		review.Content = content.String
		out = append(out, review)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// Delete removes a review owned by userID.
func (r *Repo) Delete(ctx context.Context, id int64, userID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM reviews
		WHERE id = ? AND user_id = ?
	`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete review: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// CreateComment attaches a comment to a review and records the activity in
// the same transaction.
func (r *Repo) CreateComment(ctx context.Context, reviewID int64, userID, content string) (*models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" || utf8.RuneCountInString(content) > maxCommentLen {
		return nil, ErrEmptyComment
	}

	var id int64
	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM reviews WHERE id = ?`, reviewID).Scan(&exists); err != nil {
			return fmt.Errorf("check review %d: %w", reviewID, err)
		}
		if exists == 0 {
			return ErrReviewNotFound
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO comments (review_id, user_id, content)
			VALUES (?, ?, ?)
		`, reviewID, userID, content)
		if err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		if r.Activity == nil {
			return nil
		}
		return r.Activity.Record(ctx, tx, models.Activity{
			UserID:       userID,
			ActivityType: models.ActivityCommentCreated,
			TargetType:   "comment",
			TargetID:     id,
			Message:      fmt.Sprintf("commented on review %d", reviewID),
		})
	})
	if err != nil {
		return nil, err
	}

	var cm models.Comment
	err = r.DB.QueryRowContext(ctx, `
		SELECT id, review_id, user_id, content, created_at FROM comments WHERE id = ?
	`, id).Scan(&cm.ID, &cm.ReviewID, &cm.UserID, &cm.Content, &cm.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return &cm, nil
}

// ListComments returns the comments of a review, oldest first.
func (r *Repo) ListComments(ctx context.Context, reviewID int64, limit, offset int) ([]models.Comment, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, review_id, user_id, content, created_at
		FROM comments
		WHERE review_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?
	`, reviewID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	out := make([]models.Comment, 0, limit)
	for rows.Next() {
		var cm models.Comment
		if err := rows.Scan(&cm.ID, &cm.ReviewID, &cm.UserID, &cm.Content, &cm.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, cm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}
