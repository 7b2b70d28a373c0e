package handler

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/schemagate/internal/sse"
	"github.com/GTDGit/schemagate/internal/utils"
)

const ssePingInterval = 30 * time.Second

// SSEHandler streams artifact lifecycle events to the admin console.
type SSEHandler struct {
	hub       *sse.Hub
	jwtSecret string
}

// NewSSEHandler creates a new SSEHandler.
func NewSSEHandler(hub *sse.Hub, jwtSecret string) *SSEHandler {
	return &SSEHandler{hub: hub, jwtSecret: jwtSecret}
}

// Stream handles GET /v1/admin/events?token=<jwt>[&shop=<domain>]
// EventSource API cannot set custom headers, so JWT is passed via query param.
// Without shop the stream carries events of every tenant.
func (h *SSEHandler) Stream(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		utils.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing token query parameter")
		return
	}

	claims, err := utils.ValidateJWT(token, h.jwtSecret)
	if err != nil {
		utils.Error(c, http.StatusUnauthorized, utils.ErrInvalidToken.Error(), "Invalid or expired token")
		return
	}

	clientID := fmt.Sprintf("admin-%s-%d", claims.Subject, time.Now().UnixNano())

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	shop := strings.ToLower(strings.TrimSpace(c.Query("shop")))
	client := h.hub.Register(clientID, shop)
	defer h.hub.Unregister(clientID)

	c.SSEvent("connected", gin.H{
		"clientId":  clientID,
		"timestamp": time.Now().Format(time.RFC3339),
	})
	c.Writer.Flush()

	log.Info().Str("sse_client", clientID).Str("email", claims.Email).Str("shop", shop).Msg("Admin SSE stream started")

	ping := time.NewTicker(ssePingInterval)
	defer ping.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case data, ok := <-client.Events:
			if !ok {
				return false
			}
			c.SSEvent("artifact", string(data))
			return true
		case <-ping.C:
			c.SSEvent("ping", gin.H{"timestamp": time.Now().Format(time.RFC3339)})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
