// internal/handlers/websocket/websocket.go
package websocket

import (
	"net/http"
	"time"

	"isp-billing-service/internal/middleware"
	"isp-billing-service/internal/pkg/response"
	ws "isp-billing-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler builds the admin feed handler. An empty origin list accepts any origin.
func NewWebSocketHandler(hub *ws.Hub, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowedOrigins) == 0 || lo.Contains(allowedOrigins, origin)
			},
		},
		logger: logger,
	}
}

// HandleConnection upgrades an authenticated request. Must run after the auth middleware.
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	identityID, ok := middleware.GetIdentityID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	auth := &ws.ClientAuth{
		IdentityID: identityID,
		SessionID:  middleware.GetSessionID(c),
		Roles:      middleware.GetRoles(c),
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed",
			zap.Error(err),
			zap.String("ip", c.ClientIP()),
		)
		return
	}

	client := ws.NewClient(h.hub, conn, auth)
	if err := h.hub.Join(client); err != nil {
		h.logger.Warn("websocket hub unavailable", zap.Error(err))
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// GetStats returns WebSocket connection statistics
func (h *WebSocketHandler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{
		"total_connections": h.hub.TotalClients(),
		"timestamp":         time.Now(),
	}

	response.Success(c, http.StatusOK, "websocket stats", stats)
}
