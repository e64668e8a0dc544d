package tracking

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"animehub/internal/auth"
	"animehub/internal/sync"
	"animehub/pkg/models"
)

// StatsInvalidator drops cached statistics touched by a tracking change.
type StatsInvalidator interface {
	InvalidateUser(ctx context.Context, userID string)
}

type Handler struct {
	Repo  *Repo
	Hub   sync.Publisher
	Stats StatsInvalidator
}

func NewHandler(repo *Repo, hub sync.Publisher, stats StatsInvalidator) *Handler {
	return &Handler{Repo: repo, Hub: hub, Stats: stats}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/user-animes", h.list)
	rg.POST("/user-animes", h.create)
	rg.GET("/user-animes/:id", h.getOne)
	rg.PATCH("/user-animes/:id", h.update)
	rg.DELETE("/user-animes/:id", h.remove)
}

type createReq struct {
	AnimeID         int64      `json:"anime_id" binding:"required,gt=0"`
	Status          string     `json:"status"`
	Score           *int       `json:"score" binding:"omitempty,min=0,max=10"`
	EpisodesWatched int        `json:"episodes_watched" binding:"gte=0"`
	StartDate       *time.Time `json:"start_date"`
	FinishDate      *time.Time `json:"finish_date"`
}

type updateReq struct {
	Status            *string    `json:"status"`
	Score             *int       `json:"score" binding:"omitempty,min=0,max=10"`
	EpisodesWatched   *int       `json:"episodes_watched" binding:"omitempty,gte=0"`
	EpisodesIncrement *int       `json:"episodes_increment"`
	StartDate         *time.Time `json:"start_date"`
	FinishDate        *time.Time `json:"finish_date"`
}

func (h *Handler) create(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tracking payload"})
		return
	}

	status := normalizeStatus(req.Status)
	if req.Status == "" {
		status = models.StatusPlanned
	}
	if status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": statusHelp})
		return
	}

	entry, err := h.Repo.Create(c.Request.Context(), CreateInput{
		UserID:          claims.UserID,
		AnimeID:         req.AnimeID,
		Status:          status,
		Score:           req.Score,
		EpisodesWatched: req.EpisodesWatched,
		StartDate:       req.StartDate,
		FinishDate:      req.FinishDate,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	h.changed(c.Request.Context(), sync.EventTrackingUpdate, entry.UserID, entry)
	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) update(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req updateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tracking payload"})
		return
	}
	if req.Status != nil {
		s := normalizeStatus(*req.Status)
		if s == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": statusHelp})
			return
		}
		req.Status = &s
	}

	entry, err := h.Repo.Update(c.Request.Context(), id, claims.UserID, Patch{
		Status:            req.Status,
		Score:             req.Score,
		EpisodesWatched:   req.EpisodesWatched,
		EpisodesIncrement: req.EpisodesIncrement,
		StartDate:         req.StartDate,
		FinishDate:        req.FinishDate,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	h.changed(c.Request.Context(), sync.EventTrackingUpdate, entry.UserID, entry)
	c.JSON(http.StatusOK, entry)
}

func (h *Handler) list(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	status := strings.TrimSpace(c.Query("status"))
	if status != "" {
		status = normalizeStatus(status)
		if status == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}
	}

	limit := parseInt(c.Query("limit"), 50)
	offset := parseInt(c.Query("offset"), 0)

	items, total, err := h.Repo.List(c.Request.Context(), claims.UserID, status, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"items":  items,
	})
}

func (h *Handler) getOne(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	entry, err := h.Repo.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if entry == nil || entry.UserID != claims.UserID {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *Handler) remove(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	deleted, err := h.Repo.Delete(c.Request.Context(), id, claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	h.changed(c.Request.Context(), sync.EventTrackingDelete, claims.UserID, gin.H{"id": id})
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (h *Handler) changed(ctx context.Context, typ, userID string, payload any) {
	if h.Stats != nil {
		h.Stats.InvalidateUser(ctx, userID)
	}
	if h.Hub != nil {
		h.Hub.Publish(sync.NewEvent(typ, userID, payload))
	}
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAnimeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrEpisodesExceedTotal), errors.Is(err, ErrConflictingProgress):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
	}
}

const statusHelp = "status must be one of: watching, completed, dropped, on_hold, planned"

func normalizeStatus(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	switch s {
	case "plan_to_watch":
		return models.StatusPlanned
	case "onhold":
		return models.StatusOnHold
	}
	if models.ValidStatus(s) {
		return s
	}
	return ""
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func parseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
