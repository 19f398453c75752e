package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"medquest/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws/xp", func(c *gin.Context) {
		if u := c.Query("user"); u != "" {
			c.Set("userID", u)
		}
		hub.Handler(c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/xp?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var welcome map[string]interface{}
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, "connected", welcome["type"])
	assert.Equal(t, user, welcome["userId"])
	return conn
}

func TestHub_DeliversOnlyToOwner(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub)

	alice := dial(t, srv, "alice")
	dial(t, srv, "bob")
	require.Eventually(t, func() bool {
		return hub.ClientCount("alice") == 1 && hub.ClientCount("bob") == 1
	}, time.Second, 10*time.Millisecond)

	hub.Publish(models.GamificationEvent{Type: models.EventLevelUp, UserID: "bob", NewLevel: 3})
	hub.Publish(models.GamificationEvent{Type: models.EventXPGained, UserID: "alice", XPGained: 30, Track: models.TrackQuestions})

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got models.GamificationEvent
	require.NoError(t, alice.ReadJSON(&got))
	assert.Equal(t, models.EventXPGained, got.Type)
	assert.Equal(t, 30, got.XPGained)
	assert.Equal(t, models.TrackQuestions, got.Track)
}

func TestHub_UnregistersOnClose(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub)

	conn := dial(t, srv, "carol")
	require.Eventually(t, func() bool { return hub.ClientCount("carol") == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount("carol") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_RequiresUser(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub)

	resp, err := http.Get(srv.URL + "/ws/xp")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
