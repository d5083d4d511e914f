package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/odai-awartani/wasselny/pkg/logger"
	"github.com/odai-awartani/wasselny/pkg/websocket"
)

var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket handles GET /v1/ws?user_id=...
// Clients subscribe to ride ids over the socket and receive request
// state changes pushed by the coordinator.
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id query parameter is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Error("Failed to upgrade WebSocket connection", logger.Err(err))
		return
	}

	client := websocket.NewClient(h.Hub, conn, userID, h.Logger)
	h.Hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
