package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/slabscan/api/internal/model"
	"github.com/slabscan/api/internal/notifier"
	"github.com/slabscan/api/internal/store"
)

// TopicAll receives messages for every job.
const TopicAll = "all"

// Client represents a WebSocket client
type Client struct {
	Topic string
	Conn  *websocket.Conn
	Send  chan []byte
}

// Hub maintains active WebSocket connections
type Hub struct {
	// Clients grouped by topic (a job ID or TopicAll)
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	// done is closed when Run returns
	done chan struct{}

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	JobID   string
	Message []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. On return every client is closed and later
// Register and Unregister calls return immediately.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, clients := range h.clients {
				for client := range clients {
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.Topic] == nil {
				h.clients[client.Topic] = make(map[*Client]bool)
			}
			h.clients[client.Topic][client] = true
			h.mu.Unlock()
			log.Printf("[WS] client subscribed to %s", client.Topic)

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()
			log.Printf("[WS] client unsubscribed from %s", client.Topic)

		case msg := <-h.broadcast:
			h.mu.Lock()
			h.deliverLocked(msg.JobID, msg.Message)
			h.deliverLocked(TopicAll, msg.Message)
			h.mu.Unlock()
		}
	}
}

func (h *Hub) deliverLocked(topic string, data []byte) {
	for client := range h.clients[topic] {
		select {
		case client.Send <- data:
		default:
			// slow consumer
			h.removeLocked(client)
		}
	}
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.clients[client.Topic]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.Topic)
	}
}

// Register adds a new client. It returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// HandleEvent is a store listener that mirrors job changes to subscribers.
func (h *Hub) HandleEvent(ev store.Event) {
	if ev.Type == store.EventRemoved {
		return
	}
	job := ev.Job

	switch job.Status {
	case model.JobStatusCompleted:
		h.send(job.ID, model.WSCompleteMessage{
			Type:      model.WSMessageTypeComplete,
			JobID:     job.ID,
			CardID:    job.CardID,
			ResultURL: job.ResultURL,
		})
	case model.JobStatusError:
		h.send(job.ID, model.WSErrorMessage{
			Type:  model.WSMessageTypeError,
			JobID: job.ID,
			Error: model.WSError{
				Code:    "GRADING_FAILED",
				Message: job.ErrorMessage,
			},
		})
	default:
		h.send(job.ID, model.WSProgressMessage{
			Type:                   model.WSMessageTypeProgress,
			JobID:                  job.ID,
			Progress:               job.Progress,
			Status:                 job.Status,
			Stage:                  job.Stage,
			EstimatedTimeRemaining: job.EstimatedTimeRemaining,
		})
	}
}

// Notify implements notifier.Sink.
func (h *Hub) Notify(_ context.Context, n notifier.Notification) error {
	h.send(n.JobID, model.WSNotificationMessage{
		Type:    model.WSMessageTypeNotification,
		JobID:   n.JobID,
		Message: n.Message,
		Icon:    n.Icon,
	})
	return nil
}

// send never blocks; store listeners call it.
func (h *Hub) send(jobID string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WS] failed to marshal message: %v", err)
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{JobID: jobID, Message: data}:
	default:
		log.Printf("[WS] broadcast buffer full, dropping message for job %s", jobID)
	}
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn, topic string) {
	client := &Client{
		Topic: topic,
		Conn:  c,
		Send:  make(chan []byte, 256),
	}

	if !h.Register(client) {
		return
	}
	defer h.Unregister(client)

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] error: %v", err)
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			h.mu.RLock()
			_, live := h.clients[topic][client]
			if live {
				select {
				case client.Send <- pong:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}
