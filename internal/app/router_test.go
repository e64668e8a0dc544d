package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"animehub/internal/jikan"
	"animehub/internal/jikan/jikantest"
	"animehub/pkg/database/dbtest"
	"animehub/pkg/models"
	"animehub/pkg/utils"
)

type client struct {
	t      *testing.T
	router http.Handler
}

func (c client) do(method, path, token string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	return w
}

func (c client) register(username string) string {
	c.t.Helper()
	w := c.do(http.MethodPost, "/auth/register", "", gin.H{
		"username": username, "email": username + "@example.com", "password": "password123",
	})
	require.Equal(c.t, http.StatusCreated, w.Code, w.Body.String())
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.Token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func newTestApp(t *testing.T) (client, *jikantest.Stub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	stub := jikantest.NewStub()
	cfg := utils.Defaults()
	cfg.Auth.AdminEmails = []string{"admin@example.com"}
	cfg.Cache.MaxCost = 1 << 20

	a, err := New(context.Background(), &cfg, zerolog.Nop(), WithDB(dbtest.Open(t)), WithProvider(stub))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Cache.Close() })
	return client{t: t, router: a.Router()}, stub
}

func TestTrackingAutomationFlow(t *testing.T) {
	c, stub := newTestApp(t)
	stub.Items[21] = jikantest.Item(21, "Cowboy Bebop", "Action, Sci-Fi", 26, 1_500_000)
	stub.Listings["top"] = jikan.Listing{Items: []models.CatalogItem{
		jikantest.Item(1, "Trigun", "Action, Sci-Fi", 26, 800_000),
		jikantest.Item(2, "Clannad", "Romance, Drama", 23, 300),
	}}

	admin := c.register("admin")
	user := c.register("viewer")

	w := c.do(http.MethodPost, "/admin/import-anime?mal_id=21", user, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = c.do(http.MethodPost, "/admin/import-anime?mal_id=21", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	imported := decode[struct {
		Anime  models.Anime `json:"anime"`
		Source string       `json:"source"`
	}](t, w)
	assert.Equal(t, "jikan", imported.Source)
	assert.Equal(t, "Cowboy Bebop", imported.Anime.Title)

	w = c.do(http.MethodPost, "/user-animes", user, gin.H{
		"anime_id": imported.Anime.ID, "status": "planned", "episodes_watched": 26, "score": 10,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = c.do(http.MethodPost, "/ai/auto-status", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[models.AutoStatusResult](t, w)
	assert.Equal(t, 1, res.UpdatedCount)
	assert.Equal(t, []string{"Cowboy Bebop: planned -> completed"}, res.Details)

	w = c.do(http.MethodGet, "/stats/me", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[models.UserStats](t, w)
	assert.Equal(t, 1, st.TotalCompleted)
	assert.Equal(t, 26, st.TotalWatchedEpisodes)

	w = c.do(http.MethodGet, "/ai/recommendations?limit=5", user, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	recs := decode[[]models.Recommendation](t, w)
	require.Len(t, recs, 2)
	assert.Equal(t, "Trigun", recs[0].Anime.Title)
	for _, r := range recs {
		assert.NotEqual(t, imported.Anime.ID, r.Anime.ID)
	}

	w = c.do(http.MethodGet, "/users/me/activity", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), models.ActivityStatusAuto)
}

func TestUpstreamFailureMapsTo503(t *testing.T) {
	c, stub := newTestApp(t)
	stub.Errs["item:99"] = jikan.ErrUpstreamUnavailable
	admin := c.register("admin")

	w := c.do(http.MethodPost, "/admin/import-anime?mal_id=99", admin, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = c.do(http.MethodPost, "/admin/import-anime?mal_id=98", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProbesAndAuth(t *testing.T) {
	c, _ := newTestApp(t)

	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/ready", "", nil).Code)
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/metrics", "", nil).Code)
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/animes", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/ai/news", "", nil).Code)
}

func TestFollowFeedAndDashboard(t *testing.T) {
	c, _ := newTestApp(t)
	alice := c.register("alice")
	bob := c.register("bob")

	w := c.do(http.MethodGet, "/users/me", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	bobID := decode[struct {
		ID string `json:"id"`
	}](t, w).ID
	w = c.do(http.MethodGet, "/users/me", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	aliceID := decode[struct {
		ID string `json:"id"`
	}](t, w).ID

	w = c.do(http.MethodPost, "/social/follow", alice, gin.H{"following_id": bobID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, http.StatusConflict, c.do(http.MethodPost, "/social/follow", alice, gin.H{"following_id": bobID}).Code)
	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/social/follow", alice, gin.H{"following_id": aliceID}).Code)
	assert.Equal(t, http.StatusNotFound, c.do(http.MethodPost, "/social/follow", alice, gin.H{"following_id": "nobody"}).Code)

	w = c.do(http.MethodPost, "/social/follow", bob, gin.H{"following_id": aliceID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = c.do(http.MethodGet, "/social/feed", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	feed := decode[struct {
		Items []models.Activity `json:"items"`
	}](t, w)
	require.Len(t, feed.Items, 1)
	assert.Equal(t, bobID, feed.Items[0].UserID)
	assert.Equal(t, models.ActivityFollowCreated, feed.Items[0].ActivityType)
	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodGet, "/social/feed?limit=101", alice, nil).Code)

	w = c.do(http.MethodGet, "/social/dashboard", alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	dash := decode[models.Dashboard](t, w)
	assert.Equal(t, 1, dash.FollowersCount)
	assert.Equal(t, 1, dash.FollowingCount)
	require.NotNil(t, dash.UserStats)
	require.Len(t, dash.RecentActivities, 1)
	assert.Equal(t, aliceID, dash.RecentActivities[0].UserID)

	assert.Equal(t, http.StatusNoContent, c.do(http.MethodDelete, "/social/follow/"+bobID, alice, nil).Code)
	assert.Equal(t, http.StatusNotFound, c.do(http.MethodDelete, "/social/follow/"+bobID, alice, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/social/feed", "", nil).Code)
}
