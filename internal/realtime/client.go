package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/joydrop/backend/internal/models"
	"github.com/joydrop/backend/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // counters are public
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client is a single WebSocket connection watching one account.
type Client struct {
	ID        string
	AccountID uuid.UUID
	hub       *Hub
	conn      *websocket.Conn
	send      chan WSMessage
	logger    *zap.Logger

	// snapshot is written before anything queued on send.
	snapshot WSMessage
}

// AccountResolver finds the account behind a public slug.
type AccountResolver func(ctx context.Context, slug string) (*models.Account, error)

// ServeCounter upgrades GET /ws/counters/:slug and streams the account's
// counter, starting with a snapshot.
func ServeCounter(hub *Hub, resolve AccountResolver, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		acct, err := resolve(c.Request.Context(), c.Param("slug"))
		if err != nil {
			response.Error(c, err)
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:        uuid.New().String(),
			AccountID: acct.ID,
			hub:       hub,
			conn:      conn,
			send:      make(chan WSMessage, 16),
			logger:    logger,
		}
		// Register before reading the snapshot so no committed update falls
		// between the two.
		hub.Register(client)
		if fresh, err := resolve(c.Request.Context(), acct.Slug); err == nil {
			acct = fresh
		} else {
			logger.Warn("counter snapshot reload failed", zap.String("account_id", acct.ID.String()), zap.Error(err))
		}
		client.snapshot, _ = counterMessage(models.CounterUpdate{
			AccountID:   acct.ID,
			Slug:        acct.Slug,
			Kind:        acct.Kind,
			EventCount:  acct.EventCount,
			MemberCount: acct.MemberCount,
			At:          time.Now(),
		})
		go client.writePump()
		client.readPump()
	}
}

// readPump only services control frames; clients never send events.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	if c.snapshot.Event != "" {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteJSON(c.snapshot); err != nil {
			return
		}
	}
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
