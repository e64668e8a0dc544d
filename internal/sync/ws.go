package sync

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"animehub/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler must run behind auth.AuthMiddleware; the socket receives the
// caller's own events plus catalog-wide ones.
func WSHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := auth.MustGetClaims(c)
		if claims == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		hub.add(ws, claims.UserID)
		hub.log.Info().Str("user_id", claims.UserID).Msg("websocket client connected")

		_ = hub.send(ws, []byte(`{"type":"welcome","transport":"websocket"}`))

		// Keep the connection open; incoming messages are ignored.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				break
			}
		}

		hub.remove(ws)
		hub.log.Info().Str("user_id", claims.UserID).Msg("websocket client disconnected")
	}
}
