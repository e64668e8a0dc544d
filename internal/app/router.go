package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"animehub/internal/activity"
	"animehub/internal/ai"
	"animehub/internal/auth"
	"animehub/internal/catalog"
	"animehub/internal/logging"
	"animehub/internal/metrics"
	"animehub/internal/reviews"
	"animehub/internal/social"
	"animehub/internal/stats"
	"animehub/internal/sync"
	"animehub/internal/tracking"
)

// Router builds the HTTP API.
func (a *App) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.GinLogger(), metrics.GinMiddleware())
	if err := r.SetTrustedProxies(a.Config.Server.TrustedProxies); err != nil {
		a.log.Warn().Err(err).Msg("invalid trusted proxies")
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", a.ready)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	authHandler := auth.NewHandler(a.Users, a.Tokens, a.Config.Auth.AdminEmails)
	catalogHandler := catalog.NewHandler(a.Catalog, a.Stats)
	trackingHandler := tracking.NewHandler(a.Tracking, a.Hub, a.Stats)
	reviewHandler := reviews.NewHandler(a.Reviews)
	statsHandler := stats.NewHandler(a.Stats)
	activityHandler := activity.NewHandler(a.Activity)
	socialHandler := social.NewHandler(a.Social, a.Activity, a.Stats, a.Hub)
	aiHandler := ai.NewHandler(a.Ingest, a.Recommend, a.AutoStatus, a.log)

	authHandler.RegisterRoutes(r.Group("/auth"))

	public := r.Group("")
	catalogHandler.RegisterPublicRoutes(public)
	reviewHandler.RegisterPublicRoutes(public)

	protected := r.Group("")
	protected.Use(auth.AuthMiddleware(a.Tokens, a.Users))
	protected.GET("/ws", sync.WSHandler(a.Hub))
	authHandler.RegisterUserRoutes(protected)
	catalogHandler.RegisterProtectedRoutes(protected)
	trackingHandler.RegisterRoutes(protected)
	reviewHandler.RegisterProtectedRoutes(protected)
	statsHandler.RegisterRoutes(protected)
	activityHandler.RegisterRoutes(protected)
	socialHandler.RegisterRoutes(protected)
	aiHandler.RegisterUserRoutes(protected)

	admin := protected.Group("")
	admin.Use(auth.RequireAdmin())
	catalogHandler.RegisterAdminRoutes(admin)
	aiHandler.RegisterAdminRoutes(admin)
	authHandler.RegisterAdminRoutes(admin.Group("/admin"))

	return r
}

func (a *App) ready(c *gin.Context) {
	hub := a.Hub.Stats()
	if err := a.Ping(c.Request.Context(), 2*time.Second); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"db_error":   err.Error(),
			"ws_clients": hub.WSClients,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"db":         "ok",
		"ws_clients": hub.WSClients,
		"ws_users":   hub.Users,
	})
}
