package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/portico/internal/common"
	"github.com/ternarybob/portico/internal/interfaces"
	"github.com/ternarybob/portico/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // The desk UI is served from the same host or a local dev server
	},
}

// Message types pushed to clients
const (
	MessageHello        = "hello"
	MessageDeskState    = "desk_state"
	MessageNotification = "notification"
	MessageSyncFailed   = "sync_failed"
	MessagePause        = "pause_changed"
	MessageRanking      = "ranking_updated"
)

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// HelloPayload is sent once per connection so clients can detect a server restart.
type HelloPayload struct {
	ServerInstanceID string `json:"server_instance_id"`
	Version          string `json:"version"`
}

// WebSocketHandler fans desk events out to every connected client.
// desk_state is throttled; the latest view held back by the throttle is sent once it opens.
type WebSocketHandler struct {
	logger      arbor.ILogger
	clients     map[*websocket.Conn]bool
	clientMutex map[*websocket.Conn]*sync.Mutex
	mu          sync.RWMutex

	eventService     interfaces.EventService
	desk             DeskViewer
	serverInstanceID string

	stateThrottler *rate.Limiter
	throttle       time.Duration
	pendingMu      sync.Mutex
	pending        *models.DeskView
	flushTimer     *time.Timer
	lastGeneration uint64
}

func NewWebSocketHandler(eventService interfaces.EventService, desk DeskViewer, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		eventService:     eventService,
		desk:             desk,
		serverInstanceID: uuid.New().String(),
	}

	if config != nil {
		h.throttle = config.StateThrottleDuration()
		h.stateThrottler = rate.NewLimiter(rate.Every(h.throttle), 1)
		logger.Debug().
			Str("event_type", MessageDeskState).
			Dur("interval", h.throttle).
			Msg("Throttler initialized for desk_state events")
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized with server instance ID")

	if eventService != nil {
		h.SubscribeToDeskEvents()
	}

	return h
}

// ServerInstanceID identifies this process to clients.
func (h *WebSocketHandler) ServerInstanceID() string {
	return h.serverInstanceID
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	mutex := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = mutex
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("clients", clientCount).Msg("WebSocket client connected")

	h.send(conn, mutex, WSMessage{
		Type:    MessageHello,
		Payload: HelloPayload{ServerInstanceID: h.serverInstanceID, Version: common.Version},
	})
	if h.desk != nil {
		h.send(conn, mutex, WSMessage{Type: MessageDeskState, Payload: h.desk.View()})
	}

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Int("clients", remaining).Msg("WebSocket client disconnected")
	}()

	// Clients never send anything meaningful; reading keeps the connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// SubscribeToDeskEvents forwards desk events to clients
func (h *WebSocketHandler) SubscribeToDeskEvents() {
	subscriptions := map[interfaces.EventType]interfaces.EventHandler{
		interfaces.EventDeskStateChanged: func(ctx context.Context, event interfaces.Event) error {
			view, ok := event.Payload.(models.DeskView)
			if !ok {
				h.logger.Warn().Msg("Invalid desk_state payload type")
				return nil
			}
			h.queueDeskState(view)
			return nil
		},
		interfaces.EventNotification:   h.forward(MessageNotification),
		interfaces.EventSyncFailed:     h.forward(MessageSyncFailed),
		interfaces.EventPauseChanged:   h.forward(MessagePause),
		interfaces.EventRankingUpdated: h.forward(MessageRanking),
	}

	for eventType, handler := range subscriptions {
		if err := h.eventService.Subscribe(eventType, handler); err != nil {
			h.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to subscribe WebSocket handler")
		}
	}
}

func (h *WebSocketHandler) forward(messageType string) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		h.Broadcast(WSMessage{Type: messageType, Payload: event.Payload})
		return nil
	}
}

// queueDeskState sends view now if the throttle allows, otherwise parks it as the pending view.
// Views older than the last one sent are dropped.
func (h *WebSocketHandler) queueDeskState(view models.DeskView) {
	h.pendingMu.Lock()
	if view.Generation < h.lastGeneration {
		h.pendingMu.Unlock()
		return
	}

	if h.stateThrottler == nil || h.stateThrottler.Allow() {
		h.lastGeneration = view.Generation
		h.pending = nil
		h.pendingMu.Unlock()
		h.Broadcast(WSMessage{Type: MessageDeskState, Payload: view})
		return
	}

	h.pending = &view
	if h.flushTimer == nil {
		h.flushTimer = time.AfterFunc(h.throttle, h.flushPending)
	}
	h.pendingMu.Unlock()
}

func (h *WebSocketHandler) flushPending() {
	h.pendingMu.Lock()
	view := h.pending
	h.pending = nil
	h.flushTimer = nil
	if view != nil {
		h.lastGeneration = view.Generation
		h.stateThrottler.Allow()
	}
	h.pendingMu.Unlock()

	if view != nil {
		h.Broadcast(WSMessage{Type: MessageDeskState, Payload: *view})
	}
}

// Broadcast sends msg to all connected clients
func (h *WebSocketHandler) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send message to client")
		}
	}
}

// Close stops the pending desk_state flush and disconnects every client
func (h *WebSocketHandler) Close() {
	h.pendingMu.Lock()
	if h.flushTimer != nil {
		h.flushTimer.Stop()
		h.flushTimer = nil
	}
	h.pending = nil
	h.pendingMu.Unlock()

	h.mu.Lock()
	for conn := range h.clients {
		mutex := h.clientMutex[conn]
		mutex.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		mutex.Unlock()
		conn.Close()
	}
	h.mu.Unlock()
}

func (h *WebSocketHandler) send(conn *websocket.Conn, mutex *sync.Mutex, msg WSMessage) {
	mutex.Lock()
	defer mutex.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send message to client")
	}
}
