package autostatus

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"animehub/internal/activity"
	"animehub/internal/auth"
	"animehub/internal/catalog"
	"animehub/internal/sync"
	"animehub/internal/tracking"
	"animehub/pkg/database/dbtest"
	"animehub/pkg/models"
)

type invalidations struct{ users []string }

func (i *invalidations) InvalidateUser(_ context.Context, userID string) {
	i.users = append(i.users, userID)
}

type recorder struct{ events []sync.Event }

func (r *recorder) Publish(ev sync.Event) { r.events = append(r.events, ev) }

type fixture struct {
	db    *sql.DB
	svc   *Service
	cat   *catalog.Repo
	track *tracking.Repo
	acts  *activity.Repo
	inv   *invalidations
	rec   *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	f := &fixture{
		db:   db,
		cat:  catalog.NewRepo(db),
		acts: activity.NewRepo(db),
		inv:  &invalidations{},
		rec:  &recorder{},
	}
	f.track = tracking.NewRepo(db, f.acts)
	f.svc = NewService(f.track, f.cat, auth.NewRepo(db), f.inv, f.rec, zerolog.Nop())
	return f
}

func (f *fixture) anime(t *testing.T, title string, episodes int) int64 {
	t.Helper()
	a, err := f.cat.Create(context.Background(), catalog.CreateInput{Title: title, Genre: "Action", Episodes: episodes})
	require.NoError(t, err)
	return a.ID
}

func (f *fixture) entry(t *testing.T, userID string, animeID int64, status string, watched int) int64 {
	t.Helper()
	e, err := f.track.Create(context.Background(), tracking.CreateInput{
		UserID: userID, AnimeID: animeID, Status: status, EpisodesWatched: watched,
	})
	require.NoError(t, err)
	return e.ID
}

func TestInferStatus(t *testing.T) {
	cases := []struct {
		watched, total int
		current, want  string
	}{
		{12, 12, models.StatusPlanned, models.StatusCompleted},
		{5, 12, models.StatusPlanned, models.StatusWatching},
		{5, 12, models.StatusOnHold, models.StatusWatching},
		{0, 12, models.StatusWatching, models.StatusWatching},
		{5, 12, models.StatusDropped, models.StatusDropped},
		{50, 0, models.StatusPlanned, models.StatusWatching},
		{0, 0, models.StatusPlanned, models.StatusPlanned},
		{13, 12, models.StatusDropped, models.StatusCompleted},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d/%d/%s", tc.watched, tc.total, tc.current), func(t *testing.T) {
			assert.Equal(t, tc.want, InferStatus(tc.watched, tc.total, tc.current))
		})
	}
}

func TestAutoUpdateStatuses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	uid := dbtest.InsertUser(t, f.db, "u-1", "alice")

	done := f.entry(t, uid, f.anime(t, "Finished", 12), models.StatusPlanned, 12)
	started := f.entry(t, uid, f.anime(t, "Started", 12), models.StatusPlanned, 5)
	idle := f.entry(t, uid, f.anime(t, "Idle", 12), models.StatusWatching, 0)

	res, err := f.svc.AutoUpdateStatuses(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, 2, res.UpdatedCount)
	assert.Equal(t, []string{
		"Finished: planned -> completed",
		"Started: planned -> watching",
	}, res.Details)

	for id, want := range map[int64]string{
		done:    models.StatusCompleted,
		started: models.StatusWatching,
		idle:    models.StatusWatching,
	} {
		e, err := f.track.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, e.Status)
	}

	assert.Equal(t, []string{uid}, f.inv.users)
	require.Len(t, f.rec.events, 1)
	assert.Equal(t, sync.EventStatusAuto, f.rec.events[0].Type)
	assert.Equal(t, uid, f.rec.events[0].UserID)

	logged, _, err := f.acts.ListByUser(ctx, uid, 50, 0)
	require.NoError(t, err)
	auto := 0
	for _, a := range logged {
		if a.ActivityType == models.ActivityStatusAuto {
			auto++
		}
	}
	assert.Equal(t, 2, auto)

	again, err := f.svc.AutoUpdateStatuses(ctx, uid)
	require.NoError(t, err)
	assert.Zero(t, again.UpdatedCount)
	assert.Empty(t, again.Details)
	assert.Len(t, f.inv.users, 1, "no invalidation without changes")
}

func TestAutoUpdateStatusesAllUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	show := f.anime(t, "Show", 10)
	for i := 0; i < 3; i++ {
		uid := dbtest.InsertUser(t, f.db, fmt.Sprintf("u-%d", i), fmt.Sprintf("user%d", i))
		f.entry(t, uid, show, models.StatusOnHold, 10)
	}

	res, err := f.svc.AutoUpdateStatusesAllUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.UpdatedCount)
	assert.Len(t, res.Details, 3)
	for _, d := range res.Details {
		assert.Equal(t, "Show: on_hold -> completed", d)
	}
}

func TestAutoUpdateStatusesAllUsersCapsDetails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	uid := dbtest.InsertUser(t, f.db, "u-1", "alice")
	for i := 0; i < MaxDetails+5; i++ {
		f.entry(t, uid, f.anime(t, fmt.Sprintf("Show %d", i), 1), models.StatusPlanned, 1)
	}

	res, err := f.svc.AutoUpdateStatusesAllUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, MaxDetails+5, res.UpdatedCount)
	assert.Len(t, res.Details, MaxDetails)
}
