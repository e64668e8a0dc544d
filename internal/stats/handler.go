package stats

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"animehub/internal/auth"
)

type Handler struct {
	Service *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Service: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats/me", h.me)
	rg.GET("/stats/users/:id", h.user)
	rg.GET("/stats/global", h.global)
}

func (h *Handler) me(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	h.writeUser(c, claims.UserID)
}

func (h *Handler) user(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id != claims.UserID && !claims.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
		return
	}
	h.writeUser(c, id)
}

func (h *Handler) writeUser(c *gin.Context, userID string) {
	out, err := h.Service.UserStats(c.Request.Context(), userID)
	if errors.Is(err, ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) global(c *gin.Context) {
	out, err := h.Service.GlobalStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}
