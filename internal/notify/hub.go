// Package notify delivers session notifications: to browsers over server-sent
// events, to the log, or to several sinks at once.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emoradar/emoradar/internal/domain"
	"github.com/emoradar/emoradar/internal/logger"
)

const (
	hubBuffer         = 256
	clientBuffer      = 32
	heartbeatInterval = 30 * time.Second
)

// ErrHubClosed is returned by Connect once the hub has stopped.
var ErrHubClosed = errors.New("event hub closed")

// Notifier delivers an expiry notification.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// Client is one connected SSE stream.
type Client struct {
	ID          string
	Events      chan Event
	Done        chan struct{}
	ConnectedAt time.Time
}

// Hub fans events out to SSE clients. Slow clients lose events rather than
// stalling the publisher.
type Hub struct {
	log       logger.Logger
	events    chan Event
	heartbeat time.Duration
	wg        sync.WaitGroup

	mu      sync.RWMutex
	clients map[string]*Client

	shutdownMu sync.RWMutex
	shutdown   bool
}

// NewHub creates a hub. Call Start to begin broadcasting.
func NewHub(log logger.Logger) *Hub {
	return &Hub{
		log:       log.Named("notify"),
		events:    make(chan Event, hubBuffer),
		heartbeat: heartbeatInterval,
		clients:   make(map[string]*Client),
	}
}

// Start launches the broadcaster. It runs until ctx is done or Shutdown closes the queue.
func (h *Hub) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.loop(ctx)
}

func (h *Hub) loop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	h.log.Info("event hub started")
	for {
		select {
		case ev, ok := <-h.events:
			if !ok {
				h.closeAllClients()
				return
			}
			h.broadcast(ev)
		case <-ticker.C:
			h.broadcast(heartbeatEvent())
		case <-ctx.Done():
			h.shutdownMu.Lock()
			h.shutdown = true
			h.shutdownMu.Unlock()
			h.closeAllClients()
			h.log.Info("event hub stopped")
			return
		}
	}
}

// Shutdown stops accepting events, flushes what is queued and disconnects every client.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.shutdownMu.Lock()
	if h.shutdown {
		h.shutdownMu.Unlock()
		return nil
	}
	h.shutdown = true
	close(h.events)
	h.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		h.log.Warn("event hub shutdown timed out")
		return ctx.Err()
	}
	h.closeAllClients()
	return nil
}

// Publish queues ev for every client. It never blocks.
func (h *Hub) Publish(ev Event) {
	h.shutdownMu.RLock()
	defer h.shutdownMu.RUnlock()
	if h.shutdown {
		return
	}
	select {
	case h.events <- ev:
	default:
		h.log.Error("event queue full, dropping event", logger.String("event_type", string(ev.Type)))
	}
}

// Notify implements Notifier by publishing a session_ended event.
func (h *Hub) Notify(_ context.Context, n domain.Notification) error {
	h.Publish(SessionEndedEvent(n))
	return nil
}

// Connect registers a new client. It fails with ErrHubClosed once the hub has stopped.
func (h *Hub) Connect() (*Client, error) {
	// held across the insert so a concurrent Shutdown either sees the client or refuses it
	h.shutdownMu.RLock()
	defer h.shutdownMu.RUnlock()
	if h.shutdown {
		return nil, ErrHubClosed
	}

	c := &Client{
		ID:          uuid.NewString(),
		Events:      make(chan Event, clientBuffer),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}

	h.mu.Lock()
	h.clients[c.ID] = c
	total := len(h.clients)
	h.mu.Unlock()

	h.log.Debug("sse client connected", logger.String("client_id", c.ID), logger.Int("total_clients", total))
	return c, nil
}

// Disconnect removes a client. Unknown ids are ignored.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, id)
	total := len(h.clients)
	h.mu.Unlock()

	close(c.Done)
	h.log.Debug("sse client disconnected",
		logger.String("client_id", id),
		logger.Duration("duration", time.Since(c.ConnectedAt)),
		logger.Int("total_clients", total))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for _, c := range h.clients {
		select {
		case c.Events <- ev:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.log.Warn("dropped event for slow clients",
			logger.String("event_type", string(ev.Type)),
			logger.Int("dropped", dropped))
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		close(c.Done)
	}
	h.clients = make(map[string]*Client)
}
