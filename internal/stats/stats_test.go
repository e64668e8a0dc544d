package stats

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"animehub/internal/cache"
	"animehub/pkg/database/dbtest"
)

func seedAnime(t *testing.T, db *sql.DB, title string) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO animes (title, genre, episodes) VALUES (?, 'Action', 12)`, title)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func track(t *testing.T, db *sql.DB, userID string, animeID int64, status string, score any, watched int) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO user_animes (user_id, anime_id, status, score, episodes_watched) VALUES (?, ?, ?, ?, ?)`,
		userID, animeID, status, score, watched)
	require.NoError(t, err)
}

func newService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	db := dbtest.Open(t)
	c, err := cache.NewMemory(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return NewService(NewRepo(db), c, time.Minute, zerolog.Nop()), db
}

func TestUserStats(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t)
	uid := dbtest.InsertUser(t, db, "u-1", "alice")
	a := seedAnime(t, db, "A")
	b := seedAnime(t, db, "B")
	c := seedAnime(t, db, "C")
	track(t, db, uid, a, "completed", 8, 12)
	track(t, db, uid, b, "watching", nil, 5)
	track(t, db, uid, c, "completed", 10, 12)

	st, err := svc.UserStats(ctx, uid)
	require.NoError(t, err)
	require.NotNil(t, st.AverageScore)
	assert.InDelta(t, 9.0, *st.AverageScore, 1e-9)
	assert.Equal(t, 29, st.TotalWatchedEpisodes)
	assert.Equal(t, 2, st.TotalCompleted)

	require.Len(t, st.PersonalRanking, 3)
	assert.Equal(t, c, st.PersonalRanking[0].AnimeID)
	assert.Equal(t, a, st.PersonalRanking[1].AnimeID)
	assert.Equal(t, b, st.PersonalRanking[2].AnimeID, "unscored entries rank last")
	assert.Nil(t, st.PersonalRanking[2].Score)
}

func TestUserStatsUnknownUser(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.UserStats(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserStatsCachedUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t)
	uid := dbtest.InsertUser(t, db, "u-1", "alice")
	a := seedAnime(t, db, "A")
	b := seedAnime(t, db, "B")
	track(t, db, uid, a, "completed", 6, 12)

	first, err := svc.UserStats(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, 1, first.TotalCompleted)

	track(t, db, uid, b, "completed", 10, 12)
	cached, err := svc.UserStats(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, 1, cached.TotalCompleted)

	svc.InvalidateUser(ctx, uid)
	fresh, err := svc.UserStats(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.TotalCompleted)
}

func TestGlobalStats(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t)
	u1 := dbtest.InsertUser(t, db, "u-1", "alice")
	u2 := dbtest.InsertUser(t, db, "u-2", "bob")
	a := seedAnime(t, db, "A")
	b := seedAnime(t, db, "B")
	track(t, db, u1, a, "completed", 6, 12)
	track(t, db, u2, a, "watching", 8, 3)
	track(t, db, u1, b, "completed", 9, 12)

	g, err := svc.GlobalStats(ctx)
	require.NoError(t, err)
	require.Len(t, g.AverageScores, 2)
	require.NotNil(t, g.BestRated)
	assert.Equal(t, b, g.BestRated.AnimeID)
	assert.InDelta(t, 9.0, *g.BestRated.Value, 1e-9)
	require.NotNil(t, g.MostWatched)
	assert.Equal(t, a, g.MostWatched.AnimeID)
	assert.InDelta(t, 2.0, *g.MostWatched.Value, 1e-9)

	c := seedAnime(t, db, "C")
	track(t, db, u2, c, "completed", 10, 12)
	svc.InvalidateAll(ctx)

	g, err = svc.GlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, c, g.BestRated.AnimeID)
}

func TestGlobalStatsEmpty(t *testing.T) {
	svc, _ := newService(t)
	g, err := svc.GlobalStats(context.Background())
	require.NoError(t, err)
	assert.Empty(t, g.AverageScores)
	assert.Nil(t, g.BestRated)
	assert.Nil(t, g.MostWatched)
}
