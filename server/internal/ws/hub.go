package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sensorsight/sensorsight/server/internal/alerts"
	"github.com/sensorsight/sensorsight/server/internal/api"
	"github.com/sensorsight/sensorsight/server/internal/store"
)

// Events sent to clients.
const (
	EventSnapshot = "snapshot"
	EventAlert    = "alert"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin policy belongs to the reverse proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Message is the envelope of every frame. Data holds an
// api.SnapshotResponse for snapshot events and an alerts.Alert for alerts.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Hub fans the fleet view out to dashboard clients.
type Hub struct {
	store    *store.Store
	alerts   *alerts.Engine
	interval time.Duration

	mu    sync.RWMutex
	peers map[*peer]struct{}
}

// New returns a Hub publishing st every interval. eng may be nil, in which
// case snapshots carry no alert counts.
func New(st *store.Store, eng *alerts.Engine, interval time.Duration) *Hub {
	return &Hub{
		store:    st,
		alerts:   eng,
		interval: interval,
		peers:    make(map[*peer]struct{}),
	}
}

// Run publishes a snapshot on every tick until ctx ends, then disconnects
// all clients.
func (h *Hub) Run(ctx context.Context) {
	tick := time.NewTicker(h.interval)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			h.publish(h.snapshot())
		case <-ctx.Done():
			h.disconnectAll()
			return
		}
	}
}

// Notify publishes an alert transition immediately.
func (h *Hub) Notify(a alerts.Alert) {
	h.publish(Message{Event: EventAlert, Data: a})
}

// ServeHTTP upgrades the request, greets the client with the current
// snapshot and serves it until the connection drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	p := newPeer(conn)
	h.join(p)
	defer h.leave(p)

	if frame, err := json.Marshal(h.snapshot()); err == nil {
		p.offer(frame)
	}
	go p.writeLoop()
	p.readLoop()
}

// Count reports connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

func (h *Hub) snapshot() Message {
	return Message{Event: EventSnapshot, Data: api.BuildSnapshot(h.store, h.alerts)}
}

func (h *Hub) join(p *peer) {
	h.mu.Lock()
	h.peers[p] = struct{}{}
	h.mu.Unlock()
	slog.Debug("ws: client joined", "remote", p.remote())
}

func (h *Hub) leave(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.peers[p]; ok {
		delete(h.peers, p)
		close(p.out)
	}
}

// publish encodes msg once and offers it to every peer. Offers happen under
// the read lock so leave cannot close a channel mid-send; peers that could
// not take the frame are disconnected afterwards.
func (h *Hub) publish(msg Message) {
	frame, err := json.Marshal(msg)
	if err != nil {
		slog.Error("ws: encode frame", "event", msg.Event, "err", err)
		return
	}

	var lagging []*peer
	h.mu.RLock()
	for p := range h.peers {
		if !p.offer(frame) {
			lagging = append(lagging, p)
		}
	}
	h.mu.RUnlock()

	for _, p := range lagging {
		slog.Warn("ws: disconnecting lagging client", "remote", p.remote())
		h.leave(p)
	}
}

func (h *Hub) disconnectAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.peers {
		delete(h.peers, p)
		close(p.out)
	}
}
