package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/classsync/internal/platform/logger"
	"github.com/yungbote/classsync/internal/realtime/sse"
)

type RealtimeHandler struct {
	log *logger.Logger
	hub *sse.Hub
}

func NewRealtimeHandler(log *logger.Logger, hub *sse.Hub) *RealtimeHandler {
	return &RealtimeHandler{log: log, hub: hub}
}

// GET /api/sse/stream?channels=a,b
// Every stream gets the state channel.
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	client := h.hub.NewClient()
	h.hub.AddChannel(client, sse.ChannelState)
	for _, ch := range strings.Split(c.Query("channels"), ",") {
		h.hub.AddChannel(client, ch)
	}
	h.log.Debug("SSE stream open", "client_id", client.ID)
	defer h.hub.CloseClient(client)
	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
