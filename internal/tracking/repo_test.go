package tracking

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"animehub/internal/activity"
	"animehub/pkg/database/dbtest"
	"animehub/pkg/models"
)

func setup(t *testing.T) (*Repo, *sql.DB) {
	t.Helper()
	db := dbtest.Open(t)
	dbtest.InsertUser(t, db, "u1", "alice")
	dbtest.InsertUser(t, db, "u2", "bob")
	return NewRepo(db, activity.NewRepo(db)), db
}

func insertAnime(t *testing.T, db *sql.DB, title string, episodes int) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO animes (title, genre, episodes) VALUES (?, 'Action', ?)`, title, episodes)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func intp(n int) *int { return &n }

func TestCreateEnforcesEpisodeTotal(t *testing.T) {
	ctx := context.Background()
	repo, db := setup(t)
	known := insertAnime(t, db, "Known", 12)
	unknown := insertAnime(t, db, "Unknown", 0)

	_, err := repo.Create(ctx, CreateInput{UserID: "u1", AnimeID: known, Status: models.StatusWatching, EpisodesWatched: 13})
	require.ErrorIs(t, err, ErrEpisodesExceedTotal)

	e, err := repo.Create(ctx, CreateInput{UserID: "u1", AnimeID: known, Status: models.StatusWatching, EpisodesWatched: 12})
	require.NoError(t, err)
	require.Equal(t, 12, e.EpisodesWatched)

	_, err = repo.Create(ctx, CreateInput{UserID: "u1", AnimeID: unknown, Status: models.StatusWatching, EpisodesWatched: 500})
	require.NoError(t, err)

	_, err = repo.Create(ctx, CreateInput{UserID: "u1", AnimeID: known, Status: models.StatusPlanned})
	require.ErrorIs(t, err, ErrDuplicate)

	_, err = repo.Create(ctx, CreateInput{UserID: "u1", AnimeID: 9999, Status: models.StatusPlanned})
	require.ErrorIs(t, err, ErrAnimeNotFound)

	acts, total, err := activity.NewRepo(db).ListByUser(ctx, "u1", 10, 0)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Equal(t, models.ActivityTrackingCreated, acts[0].ActivityType)
}

func TestUpdateProgressRules(t *testing.T) {
	ctx := context.Background()
	repo, db := setup(t)
	anime := insertAnime(t, db, "Show", 10)

	e, err := repo.Create(ctx, CreateInput{UserID: "u1", AnimeID: anime, Status: models.StatusWatching, EpisodesWatched: 4})
	require.NoError(t, err)

	_, err = repo.Update(ctx, e.ID, "u1", Patch{EpisodesWatched: intp(5), EpisodesIncrement: intp(1)})
	require.ErrorIs(t, err, ErrConflictingProgress)

	got, err := repo.Update(ctx, e.ID, "u1", Patch{EpisodesIncrement: intp(3), Score: intp(9)})
	require.NoError(t, err)
	require.Equal(t, 7, got.EpisodesWatched)
	require.Equal(t, 9, *got.Score)

	_, err = repo.Update(ctx, e.ID, "u1", Patch{EpisodesIncrement: intp(4)})
	require.ErrorIs(t, err, ErrEpisodesExceedTotal)

	_, err = repo.Update(ctx, e.ID, "u2", Patch{Score: intp(1)})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = repo.Update(ctx, 12345, "u1", Patch{Score: intp(1)})
	require.ErrorIs(t, err, ErrNotFound)

	status := models.StatusCompleted
	got, err = repo.Update(ctx, e.ID, "u1", Patch{Status: &status, EpisodesWatched: intp(10)})
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, got.Status)
	require.Equal(t, 10, got.EpisodesWatched)
}

func TestApplyStatusChangesWritesActivity(t *testing.T) {
	ctx := context.Background()
	repo, db := setup(t)
	a := insertAnime(t, db, "A", 12)
	b := insertAnime(t, db, "B", 12)

	e1, err := repo.Create(ctx, CreateInput{UserID: "u1", AnimeID: a, Status: models.StatusPlanned})
	require.NoError(t, err)
	e2, err := repo.Create(ctx, CreateInput{UserID: "u1", AnimeID: b, Status: models.StatusOnHold})
	require.NoError(t, err)

	require.NoError(t, repo.ApplyStatusChanges(ctx, []StatusChange{
		{EntryID: e1.ID, UserID: "u1", NewStatus: models.StatusCompleted, Message: "A: planned -> completed"},
		{EntryID: e2.ID, UserID: "u1", NewStatus: models.StatusWatching, Message: "B: on_hold -> watching"},
	}))

	all, err := repo.ListAllForUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, all[0].Status)
	require.Equal(t, models.StatusWatching, all[1].Status)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM activities WHERE activity_type = ?`, models.ActivityStatusAuto).Scan(&n))
	require.Equal(t, 2, n)
}

func TestDeleteOnlyOwnEntries(t *testing.T) {
	ctx := context.Background()
	repo, db := setup(t)
	a := insertAnime(t, db, "A", 1)
	e, err := repo.Create(ctx, CreateInput{UserID: "u1", AnimeID: a, Status: models.StatusPlanned})
	require.NoError(t, err)

	ok, err := repo.Delete(ctx, e.ID, "u2")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = repo.Delete(ctx, e.ID, "u1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNormalizeStatus(t *testing.T) {
	require.Equal(t, models.StatusOnHold, normalizeStatus("On Hold"))
	require.Equal(t, models.StatusPlanned, normalizeStatus("plan-to-watch"))
	require.Equal(t, models.StatusWatching, normalizeStatus(" WATCHING "))
	require.Equal(t, "", normalizeStatus("reading"))
}
