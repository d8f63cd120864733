package server

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"edurisk/internal/metrics"
	"edurisk/internal/storage"
)

// Hub fans stored predictions out to WebSocket subscribers (the
// counsellor dashboard). Slow or dead clients are dropped rather than
// allowed to stall the feed.
type Hub struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex
	broadcast chan storage.Record
	stop      chan struct{}
	metrics   *metrics.Metrics
}

// NewHub creates the feed hub. Call Run in a goroutine to start it.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan storage.Record, 100),
		stop:      make(chan struct{}),
		metrics:   m,
	}
}

// Broadcast queues a record for delivery. Never blocks: when the buffer
// is full the record is dropped and the feed stays live.
func (h *Hub) Broadcast(r storage.Record) {
	select {
	case h.broadcast <- r:
	default:
		log.Warn().Msg("prediction feed buffer full, dropping record")
	}
}

// Run delivers queued records to every connected client until Stop.
func (h *Hub) Run() {
	for {
		select {
		case record := <-h.broadcast:
			h.deliver(record)
		case <-h.stop:
			h.closeAll()
			return
		}
	}
}

// Stop shuts the feed down and disconnects every client.
func (h *Hub) Stop() {
	close(h.stop)
}

func (h *Hub) deliver(record storage.Record) {
	h.clientsMu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.clientsMu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(record); err != nil {
			log.Debug().Err(err).Msg("dropping prediction feed client")
			h.remove(conn)
		}
	}
}

// HandleWS upgrades the connection and registers the subscriber. The
// read loop exists only to observe the close.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.clientsMu.Unlock()
	if h.metrics != nil {
		h.metrics.WSSubscribers.Set(float64(count))
	}
	log.Info().Int("subscribers", count).Msg("prediction feed subscriber connected")

	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	count := len(h.clients)
	h.clientsMu.Unlock()
	if h.metrics != nil {
		h.metrics.WSSubscribers.Set(float64(count))
	}
}

func (h *Hub) closeAll() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
	if h.metrics != nil {
		h.metrics.WSSubscribers.Set(0)
	}
}
