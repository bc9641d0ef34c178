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
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveauction/go/internal/auction"
	"github.com/mcdev12/liveauction/go/internal/auction/events"
	"github.com/mcdev12/liveauction/go/internal/models"
)

// BidPlacer defines what connections need from the auction app
type BidPlacer interface {
	PlaceBid(ctx context.Context, sub auction.Submission) (models.Item, error)
}

// ServerClock produces the SERVER_TIME greeting for new connections
type ServerClock interface {
	ServerTimeEvent() (*events.Event, error)
}

// EventMirror receives a copy of every broadcast event. Offer must not block.
type EventMirror interface {
	Offer(ev *events.Event)
}

// ConnectionManager manages WebSocket connections of auction observers
type ConnectionManager struct {
	connections map[*Connection]bool
	mu          sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	config ConnectionConfig
	clock  ServerClock
	placer BidPlacer
	mirror EventMirror
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID       string
	BidderID string // guarded by Manager.mu
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ctx    context.Context
	cancel context.CancelFunc

	// Connection metadata
	ConnectedAt time.Time
	LastPing    time.Time
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
	CheckOrigin     func(r *http.Request) bool
}

// ConnectionStats is a point-in-time view of the connection pool
type ConnectionStats struct {
	TotalConnections int `json:"total_connections"`
	KnownBidders     int `json:"known_bidders"`
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024, // bids are tiny
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			// Origin policy is enforced by the CORS layer in front of the server
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, clock ServerClock) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
		clock:  clock,
	}
}

// SetBidPlacer wires the auction app that handles PLACE_BID messages.
func (cm *ConnectionManager) SetBidPlacer(placer BidPlacer) {
	cm.placer = placer
}

// SetMirror wires an optional sink for broadcast events.
func (cm *ConnectionManager) SetMirror(mirror EventMirror) {
	cm.mirror = mirror
}

// Start blocks until ctx is done and then closes every connection
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	<-ctx.Done()
	log.Info().Msg("connection manager shutting down")

	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		conn.Conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second),
		)
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket. bidderID may
// be empty; it is learned from the first bid in that case.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, bidderID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	connection := &Connection{
		ID:          uuid.New().String(),
		BidderID:    bidderID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ctx:         ctx,
		cancel:      cancel,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.registerConnection(connection)

	// Greet with the server clock before anything else is queued
	if ev, err := cm.clock.ServerTimeEvent(); err != nil {
		log.Error().Err(err).Msg("failed to build SERVER_TIME event")
	} else {
		cm.SendTo(connection.ID, ev)
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("bidder_id", bidderID).
		Msg("WebSocket connection established")

	return nil
}

// registerConnection adds a connection to the manager
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

// unregisterConnection removes a connection from the manager. Safe to call
// more than once.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.connections[conn]; !exists {
		return
	}
	delete(cm.connections, conn)
	close(conn.Send)
	conn.cancel()

	log.Info().
		Str("connection_id", conn.ID).
		Str("bidder_id", conn.BidderID).
		Msg("connection unregistered")
}

// bindBidder remembers which bidder a connection bids for, so OUTBID
// notices can find it.
func (cm *ConnectionManager) bindBidder(conn *Connection, bidderID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	conn.BidderID = bidderID
}

func (cm *ConnectionManager) bidderOf(conn *Connection) string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return conn.BidderID
}

// Broadcast sends an event to every connection and offers it to the mirror
func (cm *ConnectionManager) Broadcast(ev *events.Event) {
	n := cm.deliver(ev, func(*Connection) bool { return true })

	if cm.mirror != nil {
		cm.mirror.Offer(ev)
	}

	log.Debug().
		Str("event_type", string(ev.Type)).
		Int("connections", n).
		Msg("event broadcasted")
}

// SendTo sends an event to one connection
func (cm *ConnectionManager) SendTo(connectionID string, ev *events.Event) {
	if n := cm.deliver(ev, func(c *Connection) bool { return c.ID == connectionID }); n == 0 {
		log.Debug().
			Str("event_type", string(ev.Type)).
			Str("connection_id", connectionID).
			Msg("no connection to deliver to")
	}
}

// SendToBidder sends an event to every connection bound to bidderID
func (cm *ConnectionManager) SendToBidder(bidderID string, ev *events.Event) {
	if bidderID == "" {
		return
	}
	cm.deliver(ev, func(c *Connection) bool { return c.BidderID == bidderID || c.ID == bidderID })
}

// deliver marshals the event once and queues it on every matching
// connection without blocking. Connections whose buffer is full are dropped.
func (cm *ConnectionManager) deliver(ev *events.Event, match func(*Connection) bool) int {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return 0
	}

	var slow []*Connection
	sent := 0

	// Sends happen under the read lock so a concurrent unregister cannot
	// close a channel mid-send.
	cm.mu.RLock()
	for conn := range cm.connections {
		if !match(conn) {
			continue
		}
		select {
		case conn.Send <- data:
			sent++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
	return sent
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	bidders := make(map[string]bool)
	for conn := range cm.connections {
		if conn.BidderID != "" {
			bidders[conn.BidderID] = true
		}
	}

	return ConnectionStats{
		TotalConnections: len(cm.connections),
		KnownBidders:     len(bidders),
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
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

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
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

// handleClientMessage processes messages received from the client. Bids from
// one connection are handled in the order they were sent.
func (c *Connection) handleClientMessage(message []byte) {
	var envelope events.Event
	if err := json.Unmarshal(message, &envelope); err != nil {
		c.rejectMalformed("", fmt.Errorf("%w: malformed message: %v", auction.ErrInvalidRequest, err))
		return
	}

	switch envelope.Type {
	case events.EventTypePlaceBid:
		var payload events.PlaceBidPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			c.rejectMalformed(envelope.ItemID(), fmt.Errorf("%w: malformed bid: %v", auction.ErrInvalidRequest, err))
			return
		}
		c.placeBid(payload)

	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("event_type", string(envelope.Type)).
			Msg("ignoring unsupported client message")
		c.rejectMalformed(envelope.ItemID(), fmt.Errorf("%w: unsupported message type %q", auction.ErrInvalidRequest, envelope.Type))
	}
}

func (c *Connection) placeBid(payload events.PlaceBidPayload) {
	bidderID := payload.BidderID
	if bidderID == "" {
		bidderID = c.Manager.bidderOf(c)
	} else {
		c.Manager.bindBidder(c, bidderID)
	}

	if c.Manager.placer == nil {
		log.Error().Str("connection_id", c.ID).Msg("no bid placer configured")
		return
	}

	// PlaceBid reports its own outcome to this connection
	c.Manager.placer.PlaceBid(c.ctx, auction.Submission{
		ConnectionID: c.ID,
		ItemID:       payload.ItemID,
		Amount:       payload.Amount,
		BidderID:     bidderID,
	})
}

// rejectMalformed answers messages that could not even be decoded into a bid.
func (c *Connection) rejectMalformed(itemID string, err error) {
	log.Debug().Err(err).Str("connection_id", c.ID).Msg("rejecting malformed client message")

	ev, buildErr := events.New(events.EventTypeBidError, time.Now(), events.BidErrorPayload{
		ItemID:  itemID,
		Error:   auction.ErrorCode(err),
		Message: err.Error(),
	})
	if buildErr != nil {
		log.Error().Err(buildErr).Msg("failed to build BID_ERROR event")
		return
	}
	c.Manager.SendTo(c.ID, ev)
}
