package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"animehub/pkg/database"
	"animehub/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

type ListQuery struct {
	Q      string   // keyword search in title
	Genres []string // any-match
	Limit  int
	Offset int
}

type CreateInput struct {
	Title    string
	Genre    string
	Episodes int
	Synopsis string
	ImageURL string
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

const animeColumns = `id, mal_id, title, genre, episodes, external_score, members,
	external_status, image_url, synopsis, last_synced_at, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAnime(s scanner) (*models.Anime, error) {
	var (
		a        models.Anime
		malID    sql.NullInt64
		score    sql.NullInt64
		members  sql.NullInt64
		status   sql.NullString
		imageURL sql.NullString
		synopsis sql.NullString
		synced   sql.NullTime
	)
	if err := s.Scan(
		&a.ID, &malID, &a.Title, &a.Genre, &a.Episodes, &score, &members,
		&status, &imageURL, &synopsis, &synced, &a.CreatedAt,
	); err != nil {
		return nil, err
	}

	if malID.Valid {
		a.MalID = &malID.Int64
	}
	if score.Valid {
		n := int(score.Int64)
		a.ExternalScore = &n
	}
	if members.Valid {
		a.Members = &members.Int64
	}
	a.ExternalStatus = status.String
	a.ImageURL = imageURL.String
	a.Synopsis = synopsis.String
	if synced.Valid {
		t := synced.Time.UTC()
		a.LastSyncedAt = &t
	}
	return &a, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*models.Anime, error) {
	return getByID(ctx, r.DB, id)
}

func getByID(ctx context.Context, q database.DBTX, id int64) (*models.Anime, error) {
	row := q.QueryRowContext(ctx, `SELECT `+animeColumns+` FROM animes WHERE id = ?`, id)
	a, err := scanAnime(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get anime %d: %w", id, err)
	}
	return a, nil
}

func (r *Repo) GetByExternalID(ctx context.Context, malID int64) (*models.Anime, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+animeColumns+` FROM animes WHERE mal_id = ?`, malID)
	a, err := scanAnime(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get anime by mal_id %d: %w", malID, err)
	}
	return a, nil
}

// UpsertByExternalID creates the entry for item.MalID or overwrites every
// upstream-owned field of the existing one. The local id never changes.
func (r *Repo) UpsertByExternalID(ctx context.Context, q database.DBTX, item models.CatalogItem, syncedAt time.Time) (*models.Anime, error) {
	if item.MalID == nil {
		return nil, fmt.Errorf("upsert anime: missing mal_id")
	}

	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO animes (mal_id, title, genre, episodes, external_score, members,
			external_status, image_url, synopsis, last_synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mal_id) DO UPDATE SET
			title = excluded.title,
			genre = excluded.genre,
			episodes = excluded.episodes,
			external_score = excluded.external_score,
			members = excluded.members,
			external_status = excluded.external_status,
			image_url = excluded.image_url,
			synopsis = excluded.synopsis,
			last_synced_at = excluded.last_synced_at
		RETURNING id
	`,
		*item.MalID,
		item.Title,
		item.Genre,
		item.Episodes,
		nullInt(item.ExternalScore),
		nullInt64(item.Members),
		nullString(item.ExternalStatus),
		nullString(item.ImageURL),
		nullString(item.Synopsis),
		syncedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("upsert anime mal_id %d: %w", *item.MalID, err)
	}
	return getByID(ctx, q, id)
}

func (r *Repo) Create(ctx context.Context, in CreateInput) (*models.Anime, error) {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO animes (title, genre, episodes, synopsis, image_url)
		VALUES (?, ?, ?, ?, ?)
	`, in.Title, in.Genre, in.Episodes, nullString(in.Synopsis), nullString(in.ImageURL))
	if err != nil {
		return nil, fmt.Errorf("insert anime: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *Repo) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM animes WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete anime: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *Repo) CountAll(ctx context.Context) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM animes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count animes: %w", err)
	}
	return n, nil
}

// ListAll returns the whole catalog in id order.
func (r *Repo) ListAll(ctx context.Context) ([]models.Anime, error) {
	return r.query(ctx, `SELECT `+animeColumns+` FROM animes ORDER BY id ASC`)
}

// ListForSync returns up to limit upstream-owned entries, least recently
// synced first with never-synced entries ahead of everything else.
func (r *Repo) ListForSync(ctx context.Context, limit int) ([]models.Anime, error) {
	if limit <= 0 {
		return []models.Anime{}, nil
	}
	return r.query(ctx, `
		SELECT `+animeColumns+`
		FROM animes
		WHERE mal_id IS NOT NULL
		ORDER BY last_synced_at ASC NULLS FIRST, id ASC
		LIMIT ?
	`, limit)
}

func (r *Repo) Count(ctx context.Context, q ListQuery) (int, error) {
	sqlStr, args := buildListSQL(q, true)
	var total int
	if err := r.DB.QueryRowContext(ctx, sqlStr, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count scan: %w", err)
	}
	return total, nil
}

func (r *Repo) List(ctx context.Context, q ListQuery) ([]models.Anime, error) {
	sqlStr, args := buildListSQL(q, false)
	return r.query(ctx, sqlStr, args...)
}

func (r *Repo) query(ctx context.Context, sqlStr string, args ...any) ([]models.Anime, error) {
	rows, err := r.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list query: %w", err)
	}
	defer rows.Close()

	out := make([]models.Anime, 0)
	for rows.Next() {
		a, err := scanAnime(rows)
		if err != nil {
			return nil, fmt.Errorf("list scan: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// buildListSQL builds either COUNT(*) or the paged SELECT.
func buildListSQL(q ListQuery, countOnly bool) (string, []any) {
	base := `SELECT ` + animeColumns + ` FROM animes`
	if countOnly {
		base = `SELECT COUNT(*) FROM animes`
	}

	var where []string
	var args []any

	if kw := strings.TrimSpace(q.Q); kw != "" {
		where = append(where, "LOWER(title) LIKE ?")
		args = append(args, "%"+strings.ToLower(kw)+"%")
	}

	var genreOr []string
	for _, g := range q.Genres {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		genreOr = append(genreOr, "LOWER(genre) LIKE ?")
		args = append(args, "%"+strings.ToLower(g)+"%")
	}
	if len(genreOr) > 0 {
		where = append(where, "("+strings.Join(genreOr, " OR ")+")")
	}

	sqlStr := base
	if len(where) > 0 {
		sqlStr += " WHERE " + strings.Join(where, " AND ")
	}

	if !countOnly {
		limit := q.Limit
		if limit <= 0 || limit > 100 {
			limit = 20
		}
		offset := q.Offset
		if offset < 0 {
			offset = 0
		}
		sqlStr += " ORDER BY title ASC, id ASC LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}
	return sqlStr, args
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
