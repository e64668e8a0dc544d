package tracking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"animehub/internal/activity"
	"animehub/pkg/database"
	"animehub/pkg/models"
)

var (
	ErrNotFound            = errors.New("tracking entry not found")
	ErrAnimeNotFound       = errors.New("anime not found")
	ErrForbidden           = errors.New("not allowed")
	ErrDuplicate           = errors.New("anime already tracked")
	ErrEpisodesExceedTotal = errors.New("episodes watched cannot exceed total anime episodes")
	ErrConflictingProgress = errors.New("use episodes_watched or episodes_increment, not both")
)

type Repo struct {
	DB       *sql.DB
	Activity *activity.Repo
}

func NewRepo(db *sql.DB, act *activity.Repo) *Repo {
	return &Repo{DB: db, Activity: act}
}

type CreateInput struct {
	UserID          string
	AnimeID         int64
	Status          string
	Score           *int
	EpisodesWatched int
	StartDate       *time.Time
	FinishDate      *time.Time
}

// Patch carries optional field updates. EpisodesWatched and
// EpisodesIncrement are mutually exclusive.
type Patch struct {
	Status            *string
	Score             *int
	EpisodesWatched   *int
	EpisodesIncrement *int
	StartDate         *time.Time
	FinishDate        *time.Time
}

// StatusChange is one automated status transition.
type StatusChange struct {
	EntryID   int64
	UserID    string
	NewStatus string
	Message   string
}

const entryColumns = `id, user_id, anime_id, status, score, episodes_watched,
	start_date, finish_date, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*models.UserAnime, error) {
	var (
		e      models.UserAnime
		score  sql.NullInt64
		start  sql.NullTime
		finish sql.NullTime
	)
	if err := s.Scan(&e.ID, &e.UserID, &e.AnimeID, &e.Status, &score, &e.EpisodesWatched,
		&start, &finish, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if score.Valid {
		n := int(score.Int64)
		e.Score = &n
	}
	if start.Valid {
		e.StartDate = &start.Time
	}
	if finish.Valid {
		e.FinishDate = &finish.Time
	}
	return &e, nil
}

func animeEpisodes(ctx context.Context, q database.DBTX, animeID int64) (episodes int, title string, err error) {
	err = q.QueryRowContext(ctx, `SELECT episodes, title FROM animes WHERE id = ?`, animeID).Scan(&episodes, &title)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", ErrAnimeNotFound
	}
	if err != nil {
		return 0, "", fmt.Errorf("get anime episodes: %w", err)
	}
	return episodes, title, nil
}

// exceedsTotal enforces the progress invariant only for a known positive total.
func exceedsTotal(watched, total int) bool {
	return total > 0 && watched > total
}

func (r *Repo) Create(ctx context.Context, in CreateInput) (*models.UserAnime, error) {
	var id int64
	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		total, title, err := animeEpisodes(ctx, tx, in.AnimeID)
		if err != nil {
			return err
		}
		if exceedsTotal(in.EpisodesWatched, total) {
			return ErrEpisodesExceedTotal
		}

		var exists int
		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_animes WHERE user_id = ? AND anime_id = ?`,
			in.UserID, in.AnimeID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check existing entry: %w", err)
		}
		if exists > 0 {
			return ErrDuplicate
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO user_animes (user_id, anime_id, status, score, episodes_watched, start_date, finish_date)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, in.UserID, in.AnimeID, in.Status, nullInt(in.Score), in.EpisodesWatched, nullTime(in.StartDate), nullTime(in.FinishDate))
		if err != nil {
			return fmt.Errorf("insert tracking entry: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		if r.Activity != nil {
			return r.Activity.Record(ctx, tx, models.Activity{
				UserID:       in.UserID,
				ActivityType: models.ActivityTrackingCreated,
				TargetType:   "anime",
				TargetID:     in.AnimeID,
				Message:      fmt.Sprintf("added %s as %s", title, in.Status),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *Repo) Get(ctx context.Context, id int64) (*models.UserAnime, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM user_animes WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tracking entry: %w", err)
	}
	return e, nil
}

func (r *Repo) List(ctx context.Context, userID, status string, limit, offset int) ([]models.UserAnime, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	where := `WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		where += ` AND status = ?`
		args = append(args, status)
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_animes `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tracking: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM user_animes `+where+`
		ORDER BY updated_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tracking: %w", err)
	}
	defer rows.Close()

	out, err := collect(rows, limit)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListAllForUser returns every entry of the user in id order.
func (r *Repo) ListAllForUser(ctx context.Context, userID string) ([]models.UserAnime, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM user_animes WHERE user_id = ? ORDER BY id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tracking for user: %w", err)
	}
	defer rows.Close()
	return collect(rows, 0)
}

func collect(rows *sql.Rows, capHint int) ([]models.UserAnime, error) {
	out := make([]models.UserAnime, 0, capHint)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tracking row: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// Update applies p to entry id owned by userID.
func (r *Repo) Update(ctx context.Context, id int64, userID string, p Patch) (*models.UserAnime, error) {
	if p.EpisodesWatched != nil && p.EpisodesIncrement != nil {
		return nil, ErrConflictingProgress
	}

	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		e, err := scanEntry(tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM user_animes WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load tracking entry: %w", err)
		}
		if e.UserID != userID {
			return ErrForbidden
		}

		if p.EpisodesWatched != nil || p.EpisodesIncrement != nil {
			total, _, err := animeEpisodes(ctx, tx, e.AnimeID)
			if err != nil {
				return err
			}
			progress := e.EpisodesWatched
			if p.EpisodesWatched != nil {
				progress = *p.EpisodesWatched
			} else {
				progress += *p.EpisodesIncrement
			}
			if progress < 0 {
				progress = 0
			}
			if exceedsTotal(progress, total) {
				return ErrEpisodesExceedTotal
			}
			e.EpisodesWatched = progress
		}
		if p.Status != nil {
			e.Status = *p.Status
		}
		if p.Score != nil {
			e.Score = p.Score
		}
		if p.StartDate != nil {
			e.StartDate = p.StartDate
		}
		if p.FinishDate != nil {
			e.FinishDate = p.FinishDate
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE user_animes
			SET status = ?, score = ?, episodes_watched = ?, start_date = ?, finish_date = ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, e.Status, nullInt(e.Score), e.EpisodesWatched, nullTime(e.StartDate), nullTime(e.FinishDate), id)
		if err != nil {
			return fmt.Errorf("update tracking entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *Repo) Delete(ctx context.Context, id int64, userID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM user_animes WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete tracking entry: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ApplyStatusChanges writes every change and its activity row in one
// transaction. Nothing is written if any statement fails.
func (r *Repo) ApplyStatusChanges(ctx context.Context, changes []StatusChange) error {
	if len(changes) == 0 {
		return nil
	}
	return database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		for _, ch := range changes {
			if _, err := tx.ExecContext(ctx, `
				UPDATE user_animes SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
			`, ch.NewStatus, ch.EntryID); err != nil {
				return fmt.Errorf("update status of entry %d: %w", ch.EntryID, err)
			}
			if r.Activity == nil {
				continue
			}
			if err := r.Activity.Record(ctx, tx, models.Activity{
				UserID:       ch.UserID,
				ActivityType: models.ActivityStatusAuto,
				TargetType:   "user_anime",
				TargetID:     ch.EntryID,
				Message:      ch.Message,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}
