package social

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"animehub/internal/activity"
	"animehub/internal/auth"
	"animehub/internal/sync"
	"animehub/pkg/models"
)

// StatsSource supplies the aggregate block of the dashboard.
type StatsSource interface {
	UserStats(ctx context.Context, userID string) (*models.UserStats, error)
}

type Handler struct {
	Repo       *Repo
	Activities *activity.Repo
	Stats      StatsSource
	Hub        sync.Publisher
}

func NewHandler(repo *Repo, acts *activity.Repo, stats StatsSource, hub sync.Publisher) *Handler {
	return &Handler{Repo: repo, Activities: acts, Stats: stats, Hub: hub}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/social/follow", h.follow)
	rg.DELETE("/social/follow/:user_id", h.unfollow)
	rg.GET("/social/feed", h.feed)
	rg.GET("/social/dashboard", h.dashboard)
}

type followReq struct {
	FollowingID string `json:"following_id" binding:"required"`
}

func (h *Handler) follow(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req followReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "following_id required"})
		return
	}

	f, err := h.Repo.Follow(c.Request.Context(), claims.UserID, req.FollowingID)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.Hub != nil {
		h.Hub.Publish(sync.NewEvent(sync.EventFollowCreated, f.FollowingID, f))
	}
	c.JSON(http.StatusCreated, f)
}

func (h *Handler) unfollow(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.Repo.Unfollow(c.Request.Context(), claims.UserID, c.Param("user_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) feed(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit := parseInt(c.Query("limit"), 20)
	offset := parseInt(c.Query("offset"), 0)
	if limit < 1 || limit > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
		return
	}

	items, err := h.Repo.Feed(c.Request.Context(), claims.UserID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "feed failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"limit": limit, "offset": offset, "items": items})
}

func (h *Handler) dashboard(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	ctx := c.Request.Context()

	var out models.Dashboard
	if h.Stats != nil {
		st, err := h.Stats.UserStats(ctx, claims.UserID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "stats failed"})
			return
		}
		out.UserStats = st
	}

	followers, following, err := h.Repo.Counts(ctx, claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "counts failed"})
		return
	}
	out.FollowersCount, out.FollowingCount = followers, following

	limit := parseInt(c.Query("activity_limit"), 10)
	offset := parseInt(c.Query("activity_offset"), 0)
	out.RecentActivities = []models.Activity{}
	if h.Activities != nil {
		acts, _, err := h.Activities.ListByUser(ctx, claims.UserID, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "activity failed"})
			return
		}
		out.RecentActivities = acts
	}

	c.JSON(http.StatusOK, out)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrSelfFollow):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrNotFollowing):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrAlreadyFollowing):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
	}
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
