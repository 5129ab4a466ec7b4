package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/ratethis/go/internal/game/events"
)

// ConnectionManager manages WebSocket connections grouped into lobby rooms
type ConnectionManager struct {
	// Connection pools organized by lobby code
	rooms map[string]map[*Connection]bool
	mu    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	actions  Actions

	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID        string
	Username  string
	LobbyCode string
	Conn      *websocket.Conn
	Send      chan []byte
	Manager   *ConnectionManager

	// left is set when the participant departed on purpose, so closing the
	// socket is not reported as a transport disconnect
	left atomic.Bool
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	BroadcastBuffer int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage represents a message to deliver to a room
type BroadcastMessage struct {
	LobbyCode string
	Event     *events.Event
	Username  string // Optional: if set, only send to this user
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		BroadcastBuffer: 1000,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		rooms: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, config.BroadcastBuffer),
	}
}

// SetActions wires the handler for inbound client messages and disconnects.
// Must be called before the first connection is accepted.
func (cm *ConnectionManager) SetActions(actions Actions) {
	cm.actions = actions
}

// Start processes broadcast messages until ctx is cancelled
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and registers
// it in the lobby's room
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, code, username string) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:        uuid.New().String(),
		Username:  username,
		LobbyCode: code,
		Conn:      conn,
		Send:      make(chan []byte, cm.config.SendBufferSize),
		Manager:   cm,
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("username", username).
		Str("lobby_code", code).
		Msg("WebSocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.rooms[conn.LobbyCode] == nil {
		cm.rooms[conn.LobbyCode] = make(map[*Connection]bool)
	}
	cm.rooms[conn.LobbyCode][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("lobby_code", conn.LobbyCode).
		Int("total_connections", len(cm.rooms[conn.LobbyCode])).
		Msg("connection registered")
}

// unregisterConnection removes a connection from its room. It reports
// whether this call removed it and whether it was the user's last socket
// in the room.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) (removed, last bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.rooms[conn.LobbyCode]
	if !exists {
		return false, false
	}
	if _, exists := connections[conn]; !exists {
		return false, false
	}

	delete(connections, conn)
	close(conn.Send)

	last = true
	for other := range connections {
		if other.Username == conn.Username {
			last = false
			break
		}
	}
	if len(connections) == 0 {
		delete(cm.rooms, conn.LobbyCode)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("username", conn.Username).
		Str("lobby_code", conn.LobbyCode).
		Msg("connection unregistered")

	return true, last
}

// HasConnection reports whether username has an open socket in the lobby's room
func (cm *ConnectionManager) HasConnection(code, username string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for conn := range cm.rooms[code] {
		if conn.Username == username {
			return true
		}
	}
	return false
}

// dropConnection unregisters a connection and, when it was the user's last
// socket and they did not leave on purpose, reports a disconnect
func (cm *ConnectionManager) dropConnection(conn *Connection) {
	removed, last := cm.unregisterConnection(conn)
	if !removed || !last || conn.left.Load() || cm.actions == nil {
		return
	}
	go func() {
		if err := cm.actions.Disconnect(conn.LobbyCode, conn.Username); err != nil {
			log.Debug().Err(err).
				Str("lobby_code", conn.LobbyCode).
				Str("username", conn.Username).
				Msg("disconnect not applied")
		}
	}()
}

// BroadcastToLobby sends an event to all connections in a lobby's room
func (cm *ConnectionManager) BroadcastToLobby(code string, event *events.Event) {
	select {
	case cm.broadcastCh <- BroadcastMessage{LobbyCode: code, Event: event}:
	default:
		log.Warn().Str("lobby_code", code).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastToUser sends an event to a single user's connections in a lobby
func (cm *ConnectionManager) BroadcastToUser(code, username string, event *events.Event) {
	select {
	case cm.broadcastCh <- BroadcastMessage{LobbyCode: code, Event: event, Username: username}:
	default:
		log.Warn().
			Str("lobby_code", code).
			Str("username", username).
			Msg("broadcast channel full, dropping user message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Sends happen under the read lock so a concurrent unregister cannot
	// close a Send channel underneath us
	var targets, slow []*Connection
	cm.mu.RLock()
	for conn := range cm.rooms[message.LobbyCode] {
		if message.Username != "" && conn.Username != message.Username {
			continue
		}
		targets = append(targets, conn)
		select {
		case conn.Send <- eventData:
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	if message.Event.Type == events.EventTypeLobbyClosed {
		// The lobby is gone; flush the event and close the sockets
		for _, conn := range targets {
			conn.left.Store(true)
			cm.unregisterConnection(conn)
		}
	}

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("username", conn.Username).
			Msg("connection send buffer full, closing connection")
		cm.dropConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("lobby_code", message.LobbyCode).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// closeAll shuts every socket without reporting disconnects
func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, connections := range cm.rooms {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		conn.left.Store(true)
		cm.unregisterConnection(conn)
	}
}

// ConnectionStats summarizes active connections
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveLobbies    int            `json:"active_lobbies"`
	LobbyConnections map[string]int `json:"lobby_connections"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveLobbies:    len(cm.rooms),
		LobbyConnections: make(map[string]int, len(cm.rooms)),
	}
	for code, connections := range cm.rooms {
		stats.TotalConnections += len(connections)
		stats.LobbyConnections[code] = len(connections)
	}
	return stats
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.dropConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

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
		}
	}
}

// readPump reads client messages until the socket fails or closes
func (c *Connection) readPump() {
	defer func() {
		c.Manager.dropConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
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

// sendEvent queues an event for this connection only
func (c *Connection) sendEvent(event *events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event")
		return
	}
	c.Manager.mu.RLock()
	defer c.Manager.mu.RUnlock()
	if !c.Manager.rooms[c.LobbyCode][c] {
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Warn().Str("connection_id", c.ID).Msg("connection send buffer full, dropping reply")
	}
}
