package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/clipquiz/api/internal/model"
	"github.com/clipquiz/api/pkg/logger"
)

const (
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = 30 * time.Second

	// Size of each client's outbound message buffer.
	sendBufferSize = 256
)

// ErrHubClosed is returned by Register after CloseAll has run.
var ErrHubClosed = errors.New("hub is closed")

// Conn is the subset of the websocket connection the hub uses. Tests
// substitute their own implementation.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// Client represents one WebSocket observer of a job.
type Client struct {
	JobID string
	Conn  Conn
	Send  chan []byte
}

// Hub tracks active WebSocket observers grouped by job ID. Registration,
// removal and broadcast are synchronous so callers learn immediately how
// many observers a message reached.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]bool
	closed  bool
	replay  func(jobID string) (model.ProgressEvent, bool)

	log *logger.Logger
}

// NewHub creates a new Hub
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]bool),
		log:     log,
	}
}

// SetReplay installs the snapshot lookup used to bring late subscribers up
// to the job's current state right after the connection acknowledgement.
func (h *Hub) SetReplay(fn func(jobID string) (model.ProgressEvent, bool)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.replay = fn
}

// Register adds a client to its job's observer set and queues the
// connection acknowledgement. Clients without a job ID are rejected.
func (h *Hub) Register(client *Client) error {
	if client.JobID == "" {
		return model.ErrMissingJobID
	}

	ack := model.WSConnectionEstablished{
		Type:      model.WSMessageTypeConnectionEstablished,
		JobID:     client.JobID,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(ack)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	if h.clients[client.JobID] == nil {
		h.clients[client.JobID] = make(map[*Client]bool)
	}
	h.clients[client.JobID][client] = true
	client.Send <- data

	// Late subscribers get the job's current state right away instead of
	// waiting for the next live event.
	if h.replay != nil {
		if ev, ok := h.replay(client.JobID); ok {
			update := model.WSProgressUpdate{
				Type:      model.WSMessageTypeProgressUpdate,
				Data:      ev,
				Timestamp: time.Now().UTC(),
			}
			if snapshot, err := json.Marshal(update); err == nil {
				client.Send <- snapshot
			}
		}
	}

	h.log.Debug("client registered", "jobId", client.JobID, "observers", len(h.clients[client.JobID]))
	return nil
}

// Unregister removes a client. Safe to call for clients that were never
// registered or were already removed.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.JobID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}

	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.JobID)
	}

	h.log.Debug("client unregistered", "jobId", client.JobID, "observers", len(clients))
}

// Broadcast queues message for every observer of jobID and returns how many
// received it. Observers whose send buffers are full are dropped.
func (h *Hub) Broadcast(jobID string, message []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[jobID]
	if !ok {
		return 0
	}

	delivered := 0
	for client := range clients {
		select {
		case client.Send <- message:
			delivered++
		default:
			delete(clients, client)
			close(client.Send)
			h.log.Warn("dropped slow websocket client", "jobId", jobID)
		}
	}
	if len(clients) == 0 {
		delete(h.clients, jobID)
	}
	return delivered
}

// BroadcastEvent wraps a progress event in the update envelope and fans it
// out to jobID's observers.
func (h *Hub) BroadcastEvent(jobID string, ev model.ProgressEvent) int {
	msg := model.WSProgressUpdate{
		Type:      model.WSMessageTypeProgressUpdate,
		Data:      ev,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal progress update", "jobId", jobID, "error", err)
		return 0
	}
	return h.Broadcast(jobID, data)
}

// BroadcastRedirect tells jobID's observers where to navigate next.
func (h *Hub) BroadcastRedirect(jobID, action, url string, links []model.Link) (int, error) {
	msg := model.WSRedirect{
		Type:      model.WSMessageTypeRedirect,
		Action:    action,
		URL:       url,
		Links:     links,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal redirect", "jobId", jobID, "error", err)
		return 0, err
	}
	return h.Broadcast(jobID, data), nil
}

// ClientCount returns the number of observers currently registered for
// jobID.
func (h *Hub) ClientCount(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[jobID])
}

// TotalClients returns the number of observers across all jobs.
func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

// CloseAll disconnects every observer and rejects future registrations.
// Called during shutdown before the listener stops.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for jobID, clients := range h.clients {
		for client := range clients {
			close(client.Send)
		}
		delete(h.clients, jobID)
	}
}

// HandleConnection runs the read and write pumps for one connection. It
// blocks until the client disconnects or the hub shuts down.
func (h *Hub) HandleConnection(c Conn, jobID string) {
	client := &Client{
		JobID: jobID,
		Conn:  c,
		Send:  make(chan []byte, sendBufferSize),
	}

	if err := h.Register(client); err != nil {
		c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		c.Close()
		return
	}
	defer h.Unregister(client)

	go h.writePump(client)
	h.readPump(client)
}

func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-client.Send:
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(client *Client) {
	defer client.Conn.Close()

	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug("websocket read error", "jobId", client.JobID, "error", err)
			}
			return
		}
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))

		// Application-level ping support for clients that cannot send
		// control frames.
		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == model.WSMessageTypePing {
			pong, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			select {
			case client.Send <- pong:
			default:
			}
		}
	}
}
