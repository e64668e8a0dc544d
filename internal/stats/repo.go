package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"animehub/pkg/models"
)

const rankingLimit = 10

// ErrUserNotFound is returned for stats of an unknown user id.
var ErrUserNotFound = errors.New("user not found")

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

func (r *Repo) UserStats(ctx context.Context, userID string) (*models.UserStats, error) {
	var out models.UserStats

	var avg sql.NullFloat64
	err := r.DB.QueryRowContext(ctx, `
		SELECT AVG(score),
		       COALESCE(SUM(episodes_watched), 0),
		       COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0)
		FROM user_animes
		WHERE user_id = ?
	`, userID).Scan(&avg, &out.TotalWatchedEpisodes, &out.TotalCompleted)
	if err != nil {
		return nil, fmt.Errorf("user totals: %w", err)
	}
	if avg.Valid {
		out.AverageScore = &avg.Float64
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT a.id, a.title, ua.status, ua.score, ua.episodes_watched
		FROM user_animes ua
		JOIN animes a ON a.id = ua.anime_id
		WHERE ua.user_id = ?
		ORDER BY ua.score IS NULL, ua.score DESC, ua.episodes_watched DESC, a.id
		LIMIT ?
	`, userID, rankingLimit)
	if err != nil {
		return nil, fmt.Errorf("personal ranking: %w", err)
	}
	defer rows.Close()

	out.PersonalRanking = make([]models.RankedEntry, 0, rankingLimit)
	for rows.Next() {
		var e models.RankedEntry
		var score sql.NullInt64
		if err := rows.Scan(&e.AnimeID, &e.Title, &e.Status, &score, &e.EpisodesWatched); err != nil {
			return nil, fmt.Errorf("scan ranking row: %w", err)
		}
		if score.Valid {
			v := int(score.Int64)
			e.Score = &v
		}
		out.PersonalRanking = append(out.PersonalRanking, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows ranking: %w", err)
	}
	return &out, nil
}

func (r *Repo) GlobalStats(ctx context.Context) (*models.GlobalStats, error) {
	avgs, err := r.metrics(ctx, `
		SELECT a.id, a.title, AVG(ua.score) AS value
		FROM user_animes ua
		JOIN animes a ON a.id = ua.anime_id
		WHERE ua.score IS NOT NULL
		GROUP BY a.id, a.title
		ORDER BY value DESC, a.id
		LIMIT ?
	`, rankingLimit)
	if err != nil {
		return nil, fmt.Errorf("global average scores: %w", err)
	}

	watched, err := r.metrics(ctx, `
		SELECT a.id, a.title, COUNT(ua.id) AS value
		FROM user_animes ua
		JOIN animes a ON a.id = ua.anime_id
		GROUP BY a.id, a.title
		ORDER BY value DESC, a.id
		LIMIT ?
	`, 1)
	if err != nil {
		return nil, fmt.Errorf("global most watched: %w", err)
	}

	out := &models.GlobalStats{AverageScores: avgs}
	if len(avgs) > 0 {
		best := avgs[0]
		out.BestRated = &best
	}
	if len(watched) > 0 {
		out.MostWatched = &watched[0]
	}
	return out, nil
}

func (r *Repo) metrics(ctx context.Context, query string, args ...any) ([]models.AnimeMetric, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.AnimeMetric{}
	for rows.Next() {
		var m models.AnimeMetric
		var v sql.NullFloat64
		if err := rows.Scan(&m.AnimeID, &m.Title, &v); err != nil {
			return nil, err
		}
		if v.Valid {
			m.Value = &v.Float64
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repo) userExists(ctx context.Context, userID string) (bool, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, userID).Scan(&n); err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return n > 0, nil
}
