package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"animehub/internal/catalog"
	"animehub/internal/logging"
	"animehub/pkg/database"
	"animehub/pkg/models"
	"animehub/pkg/utils"
)

func main() {
	var (
		animesOut   = flag.String("animes", "data/animes.csv", "output CSV path for animes")
		trackingOut = flag.String("tracking", "data/user_animes.csv", "output CSV path for tracking entries")
	)
	flag.Parse()

	cfg, err := utils.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log := logging.With("export-csv")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.OpenAndMigrate(ctx, database.Config{Path: cfg.Database.Path, BusyTimeout: cfg.Database.BusyTimeout})
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	animes, err := catalog.NewRepo(db).ListAll(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("list animes")
	}
	if err := exportAnimes(animes, *animesOut); err != nil {
		log.Fatal().Err(err).Msg("export animes failed")
	}
	if err := exportTracking(ctx, db, *trackingOut); err != nil {
		log.Fatal().Err(err).Msg("export tracking failed")
	}

	log.Info().Str("animes", *animesOut).Str("tracking", *trackingOut).Int("anime_rows", len(animes)).Msg("export finished")
}

func create(outPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, err
	}
	return os.Create(outPath)
}

// exportAnimes writes the columns import-csv reads back.
func exportAnimes(animes []models.Anime, outPath string) error {
	f, err := create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"mal_id", "title", "genre", "episodes", "external_score", "members", "external_status", "image_url", "synopsis"}); err != nil {
		return err
	}
	for _, a := range animes {
		if err := w.Write([]string{
			optInt64(a.MalID),
			a.Title,
			a.Genre,
			strconv.Itoa(a.Episodes),
			optInt(a.ExternalScore),
			optInt64(a.Members),
			a.ExternalStatus,
			a.ImageURL,
			a.Synopsis,
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func exportTracking(ctx context.Context, db *sql.DB, outPath string) error {
	f, err := create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"user_id", "anime_id", "status", "score", "episodes_watched", "updated_at"}); err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT user_id, anime_id, status, score, episodes_watched, updated_at
		FROM user_animes
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			userID    string
			animeID   int64
			status    string
			score     sql.NullInt64
			watched   int
			updatedAt time.Time
		)
		if err := rows.Scan(&userID, &animeID, &status, &score, &watched, &updatedAt); err != nil {
			return err
		}

		s := ""
		if score.Valid {
			s = strconv.FormatInt(score.Int64, 10)
		}
		if err := w.Write([]string{
			userID,
			strconv.FormatInt(animeID, 10),
			status,
			s,
			strconv.Itoa(watched),
			updatedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	w.Flush()
	return w.Error()
}

func optInt(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func optInt64(p *int64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatInt(*p, 10)
}
