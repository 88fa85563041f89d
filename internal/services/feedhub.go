// Package services provides business logic services
package services

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/apex/log"
	"github.com/idohaver7/PatrolVision/internal/metrics"
	"github.com/idohaver7/PatrolVision/internal/models"
	"github.com/nats-io/nats.go"
)

// ViolationSubjects matches every violation event subject.
const ViolationSubjects = "violations.>"

// FeedHub fans violation events out from NATS to websocket clients.
type FeedHub struct {
	natsConn *nats.Conn
	natsSub  *nats.Subscription

	clients   map[*FeedClient]bool
	clientsMu sync.RWMutex

	register   chan *FeedClient
	unregister chan *FeedClient
	stop       chan struct{}
	stopOnce   sync.Once

	delivered uint64
	dropped   uint64
	statsMu   sync.Mutex
}

// FeedMessage is a message sent to/from clients
type FeedMessage struct {
	Type          string               `json:"type"` // subscribe, unsubscribe, ping, violation
	ViolationType models.ViolationType `json:"violationType,omitempty"`
	Event         string               `json:"event,omitempty"`
	Data          json.RawMessage      `json:"data,omitempty"`
}

// NewFeedHub creates a new feed hub. natsConn may be nil, in which case
// events only reach clients through Broadcast.
func NewFeedHub(natsConn *nats.Conn) *FeedHub {
	return &FeedHub{
		natsConn:   natsConn,
		clients:    make(map[*FeedClient]bool),
		register:   make(chan *FeedClient),
		unregister: make(chan *FeedClient),
		stop:       make(chan struct{}),
	}
}

// Start subscribes the hub to violation events on NATS.
func (h *FeedHub) Start() error {
	if h.natsConn == nil {
		return nil
	}
	sub, err := h.natsConn.Subscribe(ViolationSubjects, func(msg *nats.Msg) {
		h.Broadcast(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to violation events: %w", err)
	}
	h.natsSub = sub
	return nil
}

// Register adds a client to the hub
func (h *FeedHub) Register(client *FeedClient) {
	select {
	case h.register <- client:
	case <-h.stop:
	}
}

// Run starts the hub's main loop
func (h *FeedHub) Run() {
	log.Info("📺 violation feed hub started")

	for {
		select {
		case <-h.stop:
			h.clientsMu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.clientsMu.Unlock()
			metrics.FeedClients.Set(0)
			return

		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			h.clientsMu.Unlock()
			metrics.FeedClients.Inc()
			log.WithFields(log.Fields{"remote": client.remoteAddr, "user": client.userID}).Info("feed client connected")

		case client := <-h.unregister:
			h.clientsMu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				metrics.FeedClients.Dec()
			}
			h.clientsMu.Unlock()
			log.WithField("remote", client.remoteAddr).Info("feed client disconnected")
		}
	}
}

// Stop ends the main loop and drops the NATS subscription.
func (h *FeedHub) Stop() {
	h.stopOnce.Do(func() {
		if h.natsSub != nil {
			h.natsSub.Unsubscribe()
		}
		close(h.stop)
	})
}

func (h *FeedHub) leave(client *FeedClient) {
	select {
	case h.unregister <- client:
	case <-h.stop:
	}
}

// Broadcast forwards an encoded models.ViolationEvent to every client whose
// filter accepts the violation type.
func (h *FeedHub) Broadcast(data []byte) {
	var event models.ViolationEvent
	if err := json.Unmarshal(data, &event); err != nil || event.Violation == nil {
		log.WithError(err).Warn("dropping malformed violation event")
		return
	}

	msg, _ := json.Marshal(FeedMessage{
		Type:          "violation",
		Event:         event.Event,
		ViolationType: event.Violation.ViolationType,
		Data:          data,
	})

	var delivered, dropped uint64
	h.clientsMu.RLock()
	for client := range h.clients {
		if !client.accepts(event.Violation.ViolationType) {
			continue
		}
		select {
		case client.send <- msg:
			delivered++
		default:
			dropped++
		}
	}
	h.clientsMu.RUnlock()

	h.statsMu.Lock()
	h.delivered += delivered
	h.dropped += dropped
	h.statsMu.Unlock()
}

// HubStats holds feed hub statistics
type HubStats struct {
	Clients   int    `json:"clients"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

func (h *FeedHub) Stats() HubStats {
	h.clientsMu.RLock()
	clientCount := len(h.clients)
	h.clientsMu.RUnlock()

	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	return HubStats{
		Clients:   clientCount,
		Delivered: h.delivered,
		Dropped:   h.dropped,
	}
}

// ViolationPublisher publishes violation change events on NATS.
type ViolationPublisher struct {
	conn *nats.Conn
}

func NewViolationPublisher(conn *nats.Conn) *ViolationPublisher {
	return &ViolationPublisher{conn: conn}
}

// PublishViolation sends v on subject violations.<event>.
func (p *ViolationPublisher) PublishViolation(event string, v *models.Violation) error {
	data, err := models.MarshalEvent(event, v)
	if err != nil {
		return fmt.Errorf("failed to encode violation event: %w", err)
	}
	return p.conn.Publish("violations."+event, data)
}
