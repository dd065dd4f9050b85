// internal/handler/websocket_handler.go
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"eload-service/internal/model"
	"eload-service/internal/service"
	"eload-service/internal/utils"
)

const (
	wsPongWait     = 60 * time.Second
	wsPingPeriod   = 54 * time.Second
	wsWriteWait    = 10 * time.Second
	wsQueryTimeout = 5 * time.Second
)

// WebSocketHandler streams measurements and load events to subscribers
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	connections *ConnectionManager
	loadService *service.LoadService
	logger      *utils.ServiceLogger
	eventBus    *EventBus
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewWebSocketHandler creates a new WebSocket handler and registers it for
// load service events.
func NewWebSocketHandler(loadService *service.LoadService, logger *zap.Logger) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	handler := &WebSocketHandler{
		upgrader:    upgrader,
		connections: NewConnectionManager(),
		loadService: loadService,
		logger:      utils.NewServiceLogger(logger, "websocket-handler"),
		eventBus:    NewEventBus(logger),
		stopCh:      make(chan struct{}),
	}

	events := handler.eventBus.Subscribe(
		model.EventMeasurement,
		model.EventCommandCompleted,
		model.EventCommandFailed,
		model.EventLinkError,
		model.EventStatusChange,
	)

	go handler.eventBus.Start()
	go handler.forwardEvents(events)

	device := loadService.Device()
	loadService.AddEventHandler(NewLoadEventHandler(device.DeviceID, handler.eventBus, logger))

	return handler
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/measurements", h.HandleMeasurementConnection)
	router.GET("/events", h.HandleEventConnection)
	router.GET("/stats", h.GetConnectionStats)
}

// Close stops event forwarding and disconnects all clients
func (h *WebSocketHandler) Close() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		h.eventBus.Close()
		h.connections.Close()
	})
}

// HandleMeasurementConnection streams measurement samples
func (h *WebSocketHandler) HandleMeasurementConnection(c *gin.Context) {
	h.accept(c, clientTypeMeasurements)
}

// HandleEventConnection streams command, status and link events
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	h.accept(c, clientTypeEvents)
}

// GetConnectionStats returns connection statistics
func (h *WebSocketHandler) GetConnectionStats(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "WebSocket connection stats", h.connections.GetStats())
}

func (h *WebSocketHandler) accept(c *gin.Context, clientType string) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		Type:        clientType,
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	h.connections.Register(client)
	h.logger.Info("WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("type", clientType),
		zap.String("remote_addr", client.RemoteAddr),
	)

	h.sendInitialStatus(client)

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// forwardEvents pushes bus events to the clients that want them
func (h *WebSocketHandler) forwardEvents(events <-chan *model.DeviceEvent) {
	for {
		select {
		case event := <-events:
			h.BroadcastEvent(event)
		case <-h.stopCh:
			return
		}
	}
}

// handleClientRead handles reading messages from WebSocket client
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
	}()

	client.Connection.SetReadDeadline(time.Now().Add(wsPongWait))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			break
		}

		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.sendError(client, "invalid message")
			continue
		}

		h.handleClientMessage(client, &message)
	}
}

// handleClientWrite handles writing messages to WebSocket client
func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleClientMessage handles incoming client messages
func (h *WebSocketHandler) handleClientMessage(client *Client, message *WebSocketMessage) {
	switch message.Type {
	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "pong",
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
	case "subscribe", "unsubscribe":
		h.handleSubscription(client, message)
	case "measure":
		go h.queryLoad(client, message)
	case "status":
		h.sendInitialStatus(client)
	default:
		h.sendError(client, fmt.Sprintf("unknown message type: %s", message.Type))
	}
}

// handleSubscription mutes or unmutes one event type on an events client
func (h *WebSocketHandler) handleSubscription(client *Client, message *WebSocketMessage) {
	if client.Type != clientTypeEvents {
		h.sendError(client, "subscriptions are only available on event connections")
		return
	}

	data, ok := message.Data.(map[string]interface{})
	if !ok {
		h.sendError(client, "invalid subscription data")
		return
	}
	topic, ok := data["topic"].(string)
	if !ok || topic == "" {
		h.sendError(client, "topic is required")
		return
	}

	client.setMuted(model.EventType(topic), message.Type == "unsubscribe")
	h.logger.Debug("Client subscription changed",
		zap.String("client_id", client.ID),
		zap.String("topic", topic),
		zap.String("action", message.Type),
	)

	h.sendMessage(client, &WebSocketMessage{
		Type:      message.Type + "d",
		Data:      map[string]interface{}{"topic": topic},
		Timestamp: time.Now(),
		RequestID: message.RequestID,
	})
}

// queryLoad answers a one-off measurement request
func (h *WebSocketHandler) queryLoad(client *Client, message *WebSocketMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), wsQueryTimeout)
	defer cancel()
	if message.RequestID != "" {
		ctx = utils.WithRequestID(ctx, message.RequestID)
	}

	sample, err := h.loadService.Measure(ctx)
	if err != nil {
		h.sendMessage(client, &WebSocketMessage{
			Type:      "error",
			Data:      map[string]interface{}{"error": err.Error()},
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
		return
	}

	h.sendMessage(client, &WebSocketMessage{
		Type:      "measurement",
		Data:      sample,
		Timestamp: time.Now(),
		RequestID: message.RequestID,
	})
}

// sendInitialStatus sends the current link state and health
func (h *WebSocketHandler) sendInitialStatus(client *Client) {
	h.sendMessage(client, &WebSocketMessage{
		Type: "initial_status",
		Data: map[string]interface{}{
			"device": h.loadService.Device(),
			"health": h.loadService.Health(),
		},
		Timestamp: time.Now(),
	})
}

// sendMessage sends a message to a client
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	if !h.connections.Deliver(client, messageBytes) {
		h.logger.Warn("Client send channel full, dropping message",
			zap.String("client_id", client.ID),
		)
	}
}

// sendError sends an error message to a client
func (h *WebSocketHandler) sendError(client *Client, errorMsg string) {
	h.sendMessage(client, &WebSocketMessage{
		Type: "error",
		Data: map[string]interface{}{
			"error": errorMsg,
		},
		Timestamp: time.Now(),
	})
}

// BroadcastEvent sends an event to every client that wants it
func (h *WebSocketHandler) BroadcastEvent(event *model.DeviceEvent) {
	clients := h.connections.ClientsFor(event.EventType)
	if len(clients) == 0 {
		return
	}

	messageType := "load_event"
	if event.EventType == model.EventMeasurement {
		messageType = "measurement"
	}

	messageBytes, err := json.Marshal(&WebSocketMessage{
		Type:      messageType,
		Data:      event,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	for _, client := range clients {
		if !h.connections.Deliver(client, messageBytes) {
			h.logger.Warn("Client send channel full during broadcast",
				zap.String("client_id", client.ID),
			)
		}
	}
}
