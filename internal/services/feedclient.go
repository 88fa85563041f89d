package services

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/gorilla/websocket"
	"github.com/idohaver7/PatrolVision/internal/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4 * 1024

	// Send buffer size
	sendBufferSize = 64
)

// FeedClient represents a websocket client watching violation events
type FeedClient struct {
	hub        *FeedHub
	conn       *websocket.Conn
	send       chan []byte
	types      map[models.ViolationType]bool // empty means every type
	typesMu    sync.RWMutex
	userID     string
	remoteAddr string
}

// NewFeedClient creates a new feed client
func NewFeedClient(hub *FeedHub, conn *websocket.Conn, userID, remoteAddr string) *FeedClient {
	return &FeedClient{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		types:      make(map[models.ViolationType]bool),
		userID:     userID,
		remoteAddr: remoteAddr,
	}
}

// Follow narrows the client to the given violation type.
func (c *FeedClient) Follow(t models.ViolationType) {
	c.typesMu.Lock()
	c.types[t] = true
	c.typesMu.Unlock()
}

// Unfollow removes a type filter. Once the last filter goes the client
// receives every type again.
func (c *FeedClient) Unfollow(t models.ViolationType) {
	c.typesMu.Lock()
	delete(c.types, t)
	c.typesMu.Unlock()
}

func (c *FeedClient) accepts(t models.ViolationType) bool {
	c.typesMu.RLock()
	defer c.typesMu.RUnlock()
	return len(c.types) == 0 || c.types[t]
}

// handle applies one control message from the peer.
func (c *FeedClient) handle(msg FeedMessage) {
	switch msg.Type {
	case "subscribe", "unsubscribe":
		t, ok := models.LookupViolationType(string(msg.ViolationType))
		if !ok {
			c.sendError("unknown violation type")
			return
		}
		if msg.Type == "subscribe" {
			c.Follow(t)
		} else {
			c.Unfollow(t)
		}

	case "ping":
		c.sendJSON(map[string]string{"type": "pong"})

	default:
		log.WithField("type", msg.Type).Warn("unknown feed message type")
	}
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *FeedClient) ReadPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithError(err).Warn("websocket error")
			}
			break
		}

		var msg FeedMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.WithError(err).WithField("remote", c.remoteAddr).Warn("invalid feed message")
			continue
		}
		c.handle(msg)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *FeedClient) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *FeedClient) sendError(errMsg string) {
	c.sendJSON(map[string]string{"type": "error", "error": errMsg})
}

func (c *FeedClient) sendJSON(v interface{}) {
	msgBytes, _ := json.Marshal(v)
	select {
	case c.send <- msgBytes:
	default:
	}
}
