package notify

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"gavel/internal/broker"
	"gavel/internal/event"
)

// Hub fans per-auction topic notifications out to websocket clients.
// Each auction gets one shared topic subscription for as long as at
// least one client watches it.
type Hub struct {
	topics broker.Topics
	log    *logrus.Entry

	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	conns map[*websocket.Conn]struct{}
	stop  func()
}

// NewHub constructs a hub over the broker's topic side.
func NewHub(topics broker.Topics, log *logrus.Entry) *Hub {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Hub{
		topics: topics,
		log:    log,
		rooms:  make(map[string]*room),
	}
}

// Join registers a connection as a watcher of one auction, starting the
// shared subscription if this is the first watcher. The subscription
// outlives the joining request, so it runs on its own context.
func (h *Hub) Join(auctionID string, conn *websocket.Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	rm, ok := h.rooms[auctionID]
	if !ok {
		ch, stop, err := h.topics.Subscribe(context.Background(), event.TopicForAuction(auctionID))
		if err != nil {
			return err
		}
		rm = &room{
			conns: make(map[*websocket.Conn]struct{}),
			stop:  stop,
		}
		h.rooms[auctionID] = rm
		go h.pump(auctionID, ch)
	}
	rm.conns[conn] = struct{}{}
	return nil
}

// Leave removes a watcher and closes its connection. The last watcher
// out tears down the auction's subscription.
func (h *Hub) Leave(auctionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rm, ok := h.rooms[auctionID]
	if !ok {
		return
	}
	if _, member := rm.conns[conn]; !member {
		return
	}
	delete(rm.conns, conn)
	conn.Close()
	if len(rm.conns) == 0 {
		rm.stop()
		delete(h.rooms, auctionID)
	}
}

// Watchers reports how many connections follow an auction.
func (h *Hub) Watchers(auctionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	rm, ok := h.rooms[auctionID]
	if !ok {
		return 0
	}
	return len(rm.conns)
}

func (h *Hub) pump(auctionID string, ch <-chan broker.Message) {
	for msg := range ch {
		h.broadcast(auctionID, msg.Body)
	}
}

func (h *Hub) broadcast(auctionID string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rm, ok := h.rooms[auctionID]
	if !ok {
		return
	}
	for conn := range rm.conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(rm.conns, conn)
		}
	}
	if len(rm.conns) == 0 {
		rm.stop()
		delete(h.rooms, auctionID)
	}
}
