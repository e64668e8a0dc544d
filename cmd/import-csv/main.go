package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"animehub/internal/catalog"
	"animehub/internal/logging"
	"animehub/pkg/database"
	"animehub/pkg/models"
	"animehub/pkg/utils"
)

func main() {
	in := flag.String("animes", "data/animes.csv", "input CSV path for animes")
	flag.Parse()

	cfg, err := utils.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log := logging.With("import-csv")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbCfg := database.Config{Path: cfg.Database.Path, BusyTimeout: cfg.Database.BusyTimeout}
	if err := database.EnsureDataDir(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("data dir")
	}
	db, err := database.OpenAndMigrate(ctx, dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	n, err := importAnimes(ctx, db, catalog.NewRepo(db), *in)
	if err != nil {
		log.Fatal().Err(err).Msg("import animes failed")
	}
	log.Info().Int("rows", n).Str("path", *in).Msg("imported animes")
}

// importAnimes upserts rows carrying a mal_id and inserts the rest as local
// entries, all in one transaction.
func importAnimes(ctx context.Context, db *sql.DB, repo *catalog.Repo, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := readHeader(r)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	count := 0
	err = database.WithTx(ctx, db, func(tx *sql.Tx) error {
		for {
			row, err := r.Read()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			item, ok, err := parseRow(header, row)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}

			if item.MalID != nil {
				if _, err := repo.UpsertByExternalID(ctx, tx, item, now); err != nil {
					return err
				}
			} else if _, err := tx.ExecContext(ctx, `
				INSERT INTO animes (title, genre, episodes, synopsis, image_url)
				VALUES (?, ?, ?, ?, ?)
			`, item.Title, item.Genre, item.Episodes, item.Synopsis, item.ImageURL); err != nil {
				return fmt.Errorf("insert anime %q: %w", item.Title, err)
			}
			count++
		}
	})
	return count, err
}

func parseRow(header map[string]int, row []string) (models.CatalogItem, bool, error) {
	title := valueAt(header, row, "title")
	if title == "" {
		return models.CatalogItem{}, false, nil
	}
	item := models.CatalogItem{
		Title:          title,
		Genre:          valueAt(header, row, "genre"),
		ExternalStatus: valueAt(header, row, "external_status"),
		ImageURL:       valueAt(header, row, "image_url"),
		Synopsis:       valueAt(header, row, "synopsis"),
	}

	malID, err := parseOptInt(valueAt(header, row, "mal_id"))
	if err != nil {
		return item, false, fmt.Errorf("parse mal_id for %q: %w", title, err)
	}
	if malID != nil && *malID > 0 {
		item.MalID = malID
	}
	episodes, err := parseOptInt(valueAt(header, row, "episodes"))
	if err != nil {
		return item, false, fmt.Errorf("parse episodes for %q: %w", title, err)
	}
	if episodes != nil && *episodes > 0 {
		item.Episodes = int(*episodes)
	}
	score, err := parseOptInt(valueAt(header, row, "external_score"))
	if err != nil {
		return item, false, fmt.Errorf("parse external_score for %q: %w", title, err)
	}
	if score != nil {
		s := int(*score)
		item.ExternalScore = &s
	}
	if item.Members, err = parseOptInt(valueAt(header, row, "members")); err != nil {
		return item, false, fmt.Errorf("parse members for %q: %w", title, err)
	}
	return item, true, nil
}

func readHeader(r *csv.Reader) (map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, err
	}
	header := make(map[string]int, len(row))
	for idx, name := range row {
		header[strings.TrimSpace(strings.ToLower(name))] = idx
	}
	return header, nil
}

func valueAt(header map[string]int, row []string, key string) string {
	idx, ok := header[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseOptInt(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
