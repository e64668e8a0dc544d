// Package ai exposes catalog ingestion, recommendations and status
// automation over HTTP.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"animehub/internal/auth"
	"animehub/internal/ingest"
	"animehub/internal/jikan"
	"animehub/pkg/models"
)

type Ingester interface {
	IngestTrendingCatalog(ctx context.Context, limit int) (int, error)
	ImportByExternalID(ctx context.Context, malID int64) (*models.Anime, error)
	SyncCatalog(ctx context.Context, limit int) (int, error)
	ImportCatalogRange(ctx context.Context, startYear, endYear int, seasons []string, pagesPerSeason int) (*models.CatalogImportRangeResult, error)
}

type Recommender interface {
	RecommendForUser(ctx context.Context, userID string, limit int) ([]models.Recommendation, error)
	GetNewsFeed(ctx context.Context, limit int) ([]models.NewsItem, error)
}

type StatusUpdater interface {
	AutoUpdateStatuses(ctx context.Context, userID string) (*models.AutoStatusResult, error)
	AutoUpdateStatusesAllUsers(ctx context.Context) (*models.AutoStatusResult, error)
}

type Handler struct {
	Ingest    Ingester
	Recommend Recommender
	Status    StatusUpdater
	Now       func() time.Time
	log       zerolog.Logger
}

func NewHandler(in Ingester, rec Recommender, st StatusUpdater, log zerolog.Logger) *Handler {
	return &Handler{
		Ingest:    in,
		Recommend: rec,
		Status:    st,
		Now:       time.Now,
		log:       log.With().Str("component", "ai").Logger(),
	}
}

// RegisterUserRoutes expects rg to be behind auth.AuthMiddleware.
func (h *Handler) RegisterUserRoutes(rg *gin.RouterGroup) {
	rg.GET("/ai/recommendations", h.recommendations)
	rg.GET("/ai/news", h.news)
	rg.POST("/ai/auto-status", h.autoStatus)
}

// RegisterAdminRoutes expects rg to also be behind auth.RequireAdmin.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("/ai/refresh-catalog", h.refreshCatalog)
	rg.POST("/ai/import-catalog-range", h.importRange)
	rg.POST("/ai/auto-status/all", h.autoStatusAll)
	rg.POST("/admin/import-anime", h.importAnime)
	rg.POST("/admin/sync-animes", h.syncAnimes)
}

func (h *Handler) recommendations(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	limit, ok := queryInt(c, "limit", 20, 1, 100)
	if !ok {
		return
	}
	recs, err := h.Recommend.RecommendForUser(c.Request.Context(), claims.UserID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (h *Handler) news(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 10, 1, 50)
	if !ok {
		return
	}
	items, err := h.Recommend.GetNewsFeed(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) autoStatus(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	res, err := h.Status.AutoUpdateStatuses(c.Request.Context(), claims.UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) autoStatusAll(c *gin.Context) {
	res, err := h.Status.AutoUpdateStatusesAllUsers(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) refreshCatalog(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 40, 5, 100)
	if !ok {
		return
	}
	n, err := h.Ingest.IngestTrendingCatalog(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *Handler) importRange(c *gin.Context) {
	start, ok := queryInt(c, "start_year", 2000, 1960, 2100)
	if !ok {
		return
	}
	end, ok := queryInt(c, "end_year", h.Now().Year(), 1960, 2100)
	if !ok {
		return
	}
	pages, ok := queryInt(c, "pages_per_season", 1, 1, ingest.MaxPagesPerSeason)
	if !ok {
		return
	}

	var seasons []string
	for _, v := range c.QueryArray("seasons") {
		seasons = append(seasons, strings.Split(v, ",")...)
	}

	res, err := h.Ingest.ImportCatalogRange(c.Request.Context(), start, end, seasons, pages)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) importAnime(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("mal_id"))
	malID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || malID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mal_id must be a positive integer"})
		return
	}
	a, err := h.Ingest.ImportByExternalID(c.Request.Context(), malID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"anime": a, "source": "jikan"})
}

func (h *Handler) syncAnimes(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 100, 1, 500)
	if !ok {
		return
	}
	n, err := h.Ingest.SyncCatalog(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"synced_count": n})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ingest.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, jikan.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "anime not found"})
	case errors.Is(err, jikan.ErrUpstreamUnavailable):
		h.log.Warn().Err(err).Str("path", c.FullPath()).Msg("upstream unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "external catalog unavailable"})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// queryInt reads an optional bounded integer, answering 400 itself when
// the value is malformed or out of range.
func queryInt(c *gin.Context, name string, def, lo, hi int) (int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s must be an integer between %d and %d", name, lo, hi)})
		return 0, false
	}
	return n, true
}
