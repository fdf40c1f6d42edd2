package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/tmarsh12/livestage/go/internal/events"
)

// ConnectionManager fans distributed events out to the WebSocket
// connections subscribed to each live event, keyed by event slug.
type ConnectionManager struct {
	eventConnections map[string]map[*Connection]bool
	mu               sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan BroadcastMessage

	activeConnections *prometheus.GaugeVec
}

// Connection is a single viewer's WebSocket session.
type Connection struct {
	ID        string
	ViewerID  string
	EventSlug string
	Conn      *websocket.Conn
	Send      chan []byte
	Manager   *ConnectionManager

	// done signals the write pump to exit. Send itself is never closed
	// so the broadcast loop can race a disconnect without panicking.
	done     chan struct{}
	doneOnce sync.Once

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds WebSocket tuning knobs.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is a queued fan-out request. If ViewerID is set only
// that viewer's connections receive the envelope.
type BroadcastMessage struct {
	EventSlug string
	Envelope  *events.Envelope
	ViewerID  string
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a WebSocket connection manager and
// registers its active-connections gauge with the given registerer.
func NewConnectionManager(config ConnectionConfig, reg prometheus.Registerer) *ConnectionManager {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "livestage",
		Subsystem: "gateway",
		Name:      "active_connections",
		Help:      "Number of open viewer WebSocket connections per event.",
	}, []string{"event_slug"})
	if reg != nil {
		reg.MustRegister(gauge)
	}

	return &ConnectionManager{
		eventConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:            config,
		broadcastCh:       make(chan BroadcastMessage, 1000),
		activeConnections: gauge,
	}
}

// Start begins processing broadcast messages until the context ends.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a WebSocket session for
// one event and starts its read and write pumps.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, viewerID, eventSlug string) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		ViewerID:    viewerID,
		EventSlug:   eventSlug,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		done:        make(chan struct{}),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("viewer_id", viewerID).
		Str("event_slug", eventSlug).
		Msg("WebSocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.eventConnections[conn.EventSlug] == nil {
		cm.eventConnections[conn.EventSlug] = make(map[*Connection]bool)
	}
	cm.eventConnections[conn.EventSlug][conn] = true
	cm.activeConnections.WithLabelValues(conn.EventSlug).Inc()

	log.Debug().
		Str("connection_id", conn.ID).
		Str("event_slug", conn.EventSlug).
		Int("total_connections", len(cm.eventConnections[conn.EventSlug])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connections, exists := cm.eventConnections[conn.EventSlug]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			conn.doneOnce.Do(func() { close(conn.done) })
			cm.activeConnections.WithLabelValues(conn.EventSlug).Dec()

			if len(connections) == 0 {
				delete(cm.eventConnections, conn.EventSlug)
			}

			log.Info().
				Str("connection_id", conn.ID).
				Str("viewer_id", conn.ViewerID).
				Str("event_slug", conn.EventSlug).
				Msg("connection unregistered")
		}
	}
}

// BroadcastToEvent queues an envelope for every viewer of an event.
func (cm *ConnectionManager) BroadcastToEvent(eventSlug string, env *events.Envelope) {
	select {
	case cm.broadcastCh <- BroadcastMessage{EventSlug: eventSlug, Envelope: env}:
	default:
		log.Warn().Str("event_slug", eventSlug).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastToViewer queues an envelope for one viewer of an event.
func (cm *ConnectionManager) BroadcastToViewer(eventSlug, viewerID string, env *events.Envelope) {
	select {
	case cm.broadcastCh <- BroadcastMessage{EventSlug: eventSlug, Envelope: env, ViewerID: viewerID}:
	default:
		log.Warn().
			Str("event_slug", eventSlug).
			Str("viewer_id", viewerID).
			Msg("broadcast channel full, dropping viewer message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.eventConnections[message.EventSlug]
	if !exists {
		cm.mu.RUnlock()
		return
	}

	// Snapshot connections so the lock is not held while writing.
	var targets []*Connection
	for conn := range connections {
		if message.ViewerID != "" && conn.ViewerID != message.ViewerID {
			continue
		}
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	data, err := json.Marshal(message.Envelope)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal envelope for broadcast")
		return
	}

	for _, conn := range targets {
		select {
		case conn.Send <- data:
		default:
			// Connection is slow or dead, close it.
			log.Warn().
				Str("connection_id", conn.ID).
				Str("viewer_id", conn.ViewerID).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("event_type", message.Envelope.Type).
		Str("event_slug", message.EventSlug).
		Int("connections", len(targets)).
		Msg("envelope broadcasted")
}

// GetConnectionStats returns counts of active connections per event.
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	total := 0
	perEvent := make(map[string]int)
	for slug, connections := range cm.eventConnections {
		count := len(connections)
		total += count
		perEvent[slug] = count
	}

	return map[string]interface{}{
		"total_connections": total,
		"active_events":     len(cm.eventConnections),
		"event_connections": perEvent,
	}
}

// writePump pushes queued messages and keepalive pings to the client.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump drains client messages and keeps the read deadline fresh.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage processes messages received from the client.
// Viewers are read-only today; votes go through the REST API.
func (c *Connection) handleClientMessage(message []byte) {
	log.Debug().
		Str("connection_id", c.ID).
		Str("viewer_id", c.ViewerID).
		RawJSON("message", message).
		Msg("received client message")
}
