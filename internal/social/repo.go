package social

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"animehub/internal/activity"
	"animehub/pkg/database"
	"animehub/pkg/models"
)

var (
	ErrSelfFollow       = errors.New("cannot follow yourself")
	ErrAlreadyFollowing = errors.New("already following")
	ErrUserNotFound     = errors.New("user not found")
	ErrNotFollowing     = errors.New("not following")
)

type Repo struct {
	DB       *sql.DB
	Activity *activity.Repo
}

func NewRepo(db *sql.DB, act *activity.Repo) *Repo {
	return &Repo{DB: db, Activity: act}
}

// Follow creates the edge and logs follow_created in the same transaction.
func (r *Repo) Follow(ctx context.Context, followerID, followingID string) (*models.Follow, error) {
	followingID = strings.TrimSpace(followingID)
	if followingID == "" {
		return nil, ErrUserNotFound
	}
	if followerID == followingID {
		return nil, ErrSelfFollow
	}

	var f models.Follow
	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		var username string
		err := tx.QueryRowContext(ctx, `SELECT username FROM users WHERE id = ?`, followingID).Scan(&username)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("get user %s: %w", followingID, err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO follows (follower_id, following_id)
			VALUES (?, ?)
		`, followerID, followingID)
		if err != nil {
			return mapConstraint(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		err = tx.QueryRowContext(ctx, `
			SELECT id, follower_id, following_id, created_at FROM follows WHERE id = ?
		`, id).Scan(&f.ID, &f.FollowerID, &f.FollowingID, &f.CreatedAt)
		if err != nil {
			return fmt.Errorf("get follow: %w", err)
		}

		if r.Activity == nil {
			return nil
		}
		return r.Activity.Record(ctx, tx, models.Activity{
			UserID:       followerID,
			ActivityType: models.ActivityFollowCreated,
			TargetType:   "follow",
			TargetID:     f.ID,
			Message:      "started following " + username,
		})
	})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func mapConstraint(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintUnique:
			return ErrAlreadyFollowing
		case sqlite3.ErrConstraintCheck:
			return ErrSelfFollow
		case sqlite3.ErrConstraintForeignKey:
			return ErrUserNotFound
		}
	}
	return fmt.Errorf("insert follow: %w", err)
}

func (r *Repo) Unfollow(ctx context.Context, followerID, followingID string) error {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM follows WHERE follower_id = ? AND following_id = ?
	`, followerID, followingID)
	if err != nil {
		return fmt.Errorf("delete follow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFollowing
	}
	return nil
}

// Counts returns how many users follow userID and how many it follows.
func (r *Repo) Counts(ctx context.Context, userID string) (followers, following int, err error) {
	err = r.DB.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM follows WHERE following_id = ?),
			(SELECT COUNT(*) FROM follows WHERE follower_id = ?)
	`, userID, userID).Scan(&followers, &following)
	if err != nil {
		return 0, 0, fmt.Errorf("count follows: %w", err)
	}
	return followers, following, nil
}

// Feed lists the activity of the users userID follows, newest first.
func (r *Repo) Feed(ctx context.Context, userID string, limit, offset int) ([]models.Activity, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT a.id, a.user_id, a.activity_type, a.target_type, a.target_id, a.message, a.created_at
		FROM activities a
		JOIN follows f ON f.following_id = a.user_id
		WHERE f.follower_id = ?
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list feed: %w", err)
	}
	defer rows.Close()

	out := make([]models.Activity, 0, limit)
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.ID, &a.UserID, &a.ActivityType, &a.TargetType, &a.TargetID, &a.Message, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows feed: %w", err)
	}
	return out, nil
}
