// Package stream fans intent events out to websocket subscribers.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/omniagentpay/payguard/internal/domain"
)

// AllIntents is the topic of subscribers that receive every intent's events.
const AllIntents = ""

const sendBuffer = 256

// Subscriber is one consumer of the event stream, usually a websocket
// connection. Topic is an intent id, or AllIntents.
type Subscriber struct {
	ID    string
	Topic string
	Conn  *websocket.Conn
	Send  chan []byte
	mu    sync.Mutex
}

// Hub tracks subscribers by topic and delivers published events to them.
type Hub struct {
	subscribers map[string]*Subscriber

	// topics maps an intent id to the set of subscriber ids.
	topics map[string]map[string]bool

	register   chan *Subscriber
	unregister chan *Subscriber
	broadcast  chan domain.Event
	done       chan struct{}

	logger *slog.Logger
	mu     sync.RWMutex
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[string]*Subscriber),
		topics:      make(map[string]map[string]bool),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		broadcast:   make(chan domain.Event, sendBuffer),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Run delivers events until ctx is cancelled, then closes every subscriber.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for id, sub := range h.subscribers {
			close(sub.Send)
			delete(h.subscribers, id)
		}
		h.topics = make(map[string]map[string]bool)
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case sub := <-h.register:
			h.mu.Lock()
			h.subscribers[sub.ID] = sub
			if h.topics[sub.Topic] == nil {
				h.topics[sub.Topic] = make(map[string]bool)
			}
			h.topics[sub.Topic][sub.ID] = true
			h.mu.Unlock()
			h.logger.Debug("stream subscriber registered", "subscriber", sub.ID, "intent_id", sub.Topic)

		case sub := <-h.unregister:
			h.remove(sub)

		case ev := <-h.broadcast:
			h.deliver(ev)
		}
	}
}

func (h *Hub) remove(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub.ID]; !ok {
		return
	}
	delete(h.subscribers, sub.ID)
	if ids := h.topics[sub.Topic]; ids != nil {
		delete(ids, sub.ID)
		if len(ids) == 0 {
			delete(h.topics, sub.Topic)
		}
	}
	close(sub.Send)
	h.logger.Debug("stream subscriber unregistered", "subscriber", sub.ID)
}

func (h *Hub) deliver(ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("failed to encode stream event", "event_id", ev.EventID, "error", err.Error())
		return
	}

	var slow []*Subscriber
	h.mu.RLock()
	for _, topic := range []string{ev.IntentID, AllIntents} {
		for id := range h.topics[topic] {
			sub := h.subscribers[id]
			select {
			case sub.Send <- data:
			default:
				slow = append(slow, sub)
			}
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		h.logger.Warn("stream subscriber buffer full, closing", "subscriber", sub.ID)
		h.remove(sub)
	}
}

// NewSubscriber creates a subscriber for topic. It receives nothing until
// registered.
func (h *Hub) NewSubscriber(conn *websocket.Conn, topic string) *Subscriber {
	return &Subscriber{
		ID:    uuid.New().String(),
		Topic: topic,
		Conn:  conn,
		Send:  make(chan []byte, sendBuffer),
	}
}

// Register adds sub to the hub. It reports false once the hub has stopped.
func (h *Hub) Register(sub *Subscriber) bool {
	select {
	case h.register <- sub:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(sub *Subscriber) {
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

// Publish queues an event for delivery. It never blocks: when the queue is
// full or the hub has stopped the event is dropped from the stream. The
// event itself is already persisted.
func (h *Hub) Publish(ev domain.Event) {
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn("stream queue full, dropping event", "event_id", ev.EventID, "intent_id", ev.IntentID)
	}
}

// SubscriberCount returns the number of registered subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// WriteMessage writes to the subscriber's connection under its write lock.
func (s *Subscriber) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Conn.WriteMessage(messageType, data)
}

func (s *Subscriber) Close() error {
	return s.Conn.Close()
}
