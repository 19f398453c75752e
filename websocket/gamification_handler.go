package websocket

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	// Origins are enforced by the CORS layer and the bearer token.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler streams the authenticated user's events. The user id comes from
// the auth middleware.
func (h *Hub) Handler(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "userId", userID, "error", err)
		return
	}

	client := &GamificationClient{Conn: conn, UserID: userID}
	h.Register(client)
	defer h.Unregister(client)

	if err := client.SafeWriteJSON(gin.H{
		"type":    "connected",
		"message": "Connected to XP updates",
		"userId":  userID,
	}); err != nil {
		return
	}

	done := make(chan struct{})
	defer close(done)
	go h.keepAlive(client, done)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket closed", "userId", userID, "error", err)
			}
			return
		}
	}
}

func (h *Hub) keepAlive(client *GamificationClient, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			client.writeMu.Lock()
			err := client.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			client.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
