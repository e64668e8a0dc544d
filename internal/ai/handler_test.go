package ai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"animehub/internal/auth"
	"animehub/internal/ingest"
	"animehub/internal/jikan"
	"animehub/pkg/models"
)

type fakeIngest struct {
	importErr error
	rangeArgs []any
	syncLimit int
	trendLim  int
}

func (f *fakeIngest) IngestTrendingCatalog(_ context.Context, limit int) (int, error) {
	f.trendLim = limit
	return 7, nil
}

func (f *fakeIngest) ImportByExternalID(_ context.Context, malID int64) (*models.Anime, error) {
	if f.importErr != nil {
		return nil, f.importErr
	}
	return &models.Anime{ID: 1, MalID: &malID, Title: "Imported"}, nil
}

func (f *fakeIngest) SyncCatalog(_ context.Context, limit int) (int, error) {
	f.syncLimit = limit
	return 3, nil
}

func (f *fakeIngest) ImportCatalogRange(_ context.Context, s, e int, seasons []string, pages int) (*models.CatalogImportRangeResult, error) {
	f.rangeArgs = []any{s, e, seasons, pages}
	return &models.CatalogImportRangeResult{StartYear: s, EndYear: e, Seasons: seasons, PagesPerSeason: pages, InsertedOrUpdated: 4}, nil
}

type fakeRecommend struct {
	err       error
	gotUser   string
	gotLimit  int
	newsLimit int
}

func (f *fakeRecommend) RecommendForUser(_ context.Context, userID string, limit int) ([]models.Recommendation, error) {
	f.gotUser, f.gotLimit = userID, limit
	if f.err != nil {
		return nil, f.err
	}
	return []models.Recommendation{{Anime: models.Anime{ID: 9, Title: "Pick"}, Score: 0.5, Reason: "r"}}, nil
}

func (f *fakeRecommend) GetNewsFeed(_ context.Context, limit int) ([]models.NewsItem, error) {
	f.newsLimit = limit
	return []models.NewsItem{{Source: "jikan", Title: "Soon", Category: "release"}}, nil
}

type fakeStatus struct{ gotUser string }

func (f *fakeStatus) AutoUpdateStatuses(_ context.Context, userID string) (*models.AutoStatusResult, error) {
	f.gotUser = userID
	return &models.AutoStatusResult{UpdatedCount: 1, Details: []string{"A: planned -> watching"}}, nil
}

func (f *fakeStatus) AutoUpdateStatusesAllUsers(context.Context) (*models.AutoStatusResult, error) {
	return &models.AutoStatusResult{UpdatedCount: 2, Details: []string{}}, nil
}

type fixture struct {
	router *gin.Engine
	ing    *fakeIngest
	rec    *fakeRecommend
	st     *fakeStatus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &fixture{ing: &fakeIngest{}, rec: &fakeRecommend{}, st: &fakeStatus{}}
	h := NewHandler(f.ing, f.rec, f.st, zerolog.Nop())
	h.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(auth.CtxClaimsKey, &auth.Claims{UserID: "u-1", Role: auth.RoleAdmin})
	})
	h.RegisterUserRoutes(r.Group(""))
	h.RegisterAdminRoutes(r.Group(""))
	f.router = r
	return f
}

func (f *fixture) do(method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestRecommendations(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/ai/recommendations")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-1", f.rec.gotUser)
	assert.Equal(t, 20, f.rec.gotLimit)

	var out []models.Recommendation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "Pick", out[0].Anime.Title)
	assert.Equal(t, 0.5, out[0].Score)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, 0.5, raw[0]["recommendation_score"])
	assert.NotContains(t, raw[0], "score")

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/ai/recommendations?limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/ai/recommendations?limit=101").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/ai/recommendations?limit=abc").Code)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{jikan.ErrUpstreamUnavailable, http.StatusServiceUnavailable},
		{jikan.ErrNotFound, http.StatusNotFound},
		{ingest.ErrInvalidArgument, http.StatusBadRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			f := newFixture(t)
			f.ing.importErr = tc.err
			w := f.do(http.MethodPost, "/admin/import-anime?mal_id=5")
			assert.Equal(t, tc.want, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestImportAnime(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/admin/import-anime?mal_id=21")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"source":"jikan"`)
	assert.Contains(t, w.Body.String(), `"mal_id":21`)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/admin/import-anime?mal_id=0").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/admin/import-anime").Code)
}

func TestRefreshAndSyncLimits(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/ai/refresh-catalog")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":7}`, w.Body.String())
	assert.Equal(t, 40, f.ing.trendLim)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/ai/refresh-catalog?limit=4").Code)

	w = f.do(http.MethodPost, "/admin/sync-animes?limit=500")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"synced_count":3}`, w.Body.String())
	assert.Equal(t, 500, f.ing.syncLimit)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/admin/sync-animes?limit=501").Code)
}

func TestImportCatalogRange(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/ai/import-catalog-range?start_year=2000&end_year=2001&seasons=winter,spring&seasons=fall&pages_per_season=2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{2000, 2001, []string{"winter", "spring", "fall"}, 2}, f.ing.rangeArgs)

	w = f.do(http.MethodPost, "/ai/import-catalog-range")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{2000, 2024, []string(nil), 1}, f.ing.rangeArgs)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/ai/import-catalog-range?start_year=1959").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/ai/import-catalog-range?pages_per_season=11").Code)
}

func TestNewsAndAutoStatus(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/ai/news?limit=50")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 50, f.rec.newsLimit)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/ai/news?limit=51").Code)

	w = f.do(http.MethodPost, "/ai/auto-status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-1", f.st.gotUser)
	assert.JSONEq(t, `{"updated_count":1,"details":["A: planned -> watching"]}`, w.Body.String())

	w = f.do(http.MethodPost, "/ai/auto-status/all")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated_count":2,"details":[]}`, w.Body.String())
}
