package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/kifel/authcore/internal/auth"
	"github.com/kifel/authcore/internal/infrastructure/config"
	"github.com/kifel/authcore/internal/infrastructure/logging"
)

// Message types.
const (
	TypePing      = "ping"
	TypePong      = "pong"
	TypePresence  = "presence"
	TypeReauth    = "reauth"
	TypeMessage   = "message"
	TypeResponse  = "response"
	TypeError     = "error"
	TypeException = "exception"

	// sendBufferSize is the per-client outbound message buffer size.
	sendBufferSize = 256

	// registryTimeout bounds registry calls made outside a request context.
	registryTimeout = 5 * time.Second

	defaultPingInterval = 30 * time.Second
	defaultWriteWait    = 10 * time.Second
)

// Sender identifies who relayed a message.
type Sender struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Envelope is a message sent to a client.
type Envelope struct {
	Type      string  `json:"type"`
	ID        string  `json:"id,omitempty"`
	Timestamp string  `json:"timestamp"`
	Payload   any     `json:"payload,omitempty"`
	From      *Sender `json:"from,omitempty"`
}

// inbound is a message received from a client.
type inbound struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type reauthPayload struct {
	Token string `json:"token"`
}

// ExceptionPayload explains why the server is closing the connection.
type ExceptionPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// frame is one queued write. A non-zero closeCode ends the connection
// after data (if any) has been written.
type frame struct {
	data      []byte
	closeCode int
	reason    string
}

// Hub manages authenticated WebSocket connections.
type Hub struct {
	cfg      config.WebSocketConfig
	authn    Authenticator
	registry *Registry
	logger   *logging.Logger
	now      func() time.Time
	upgrader websocket.Upgrader

	clients map[*Client]struct{}
	mu      sync.RWMutex
}

// Client is one WebSocket connection.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan frame
	limiter *rate.Limiter

	mu       sync.Mutex
	state    State
	identity auth.Identity
}

// NewHub creates a Hub. Register it as a sink on registry before the
// registry starts so clients receive presence updates.
func NewHub(cfg config.WebSocketConfig, authn Authenticator, registry *Registry, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:      cfg,
		authn:    authn,
		registry: registry,
		logger:   logger,
		now:      time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// Origin checking is handled by CORS middleware
				return true
			},
		},
		clients: make(map[*Client]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastPresence sends the presence list to every client.
func (h *Hub) BroadcastPresence(list []Presence) {
	h.broadcast(Envelope{Type: TypePresence, Payload: list})
}

// ServeHTTP authenticates the handshake and upgrades the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	hs := h.authn.Authenticate(r.Header)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	if hs.State != StateAuthenticated {
		h.logger.Info("websocket handshake rejected", "code", hs.Code(), "remote", r.RemoteAddr)
		h.reject(conn, hs.Code(), hs.Err.Error())
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan frame, sendBufferSize),
		limiter:  newMessageLimiter(h.cfg),
		state:    StateAuthenticated,
		identity: hs.Identity,
	}
	h.register(client)

	ctx, cancel := context.WithTimeout(r.Context(), registryTimeout)
	_, err = h.registry.Connect(ctx, hs.Identity)
	cancel()
	if err != nil {
		h.logger.Warn("registering session failed", "principal_id", hs.Identity.PrincipalID, "error", err)
	}

	go client.writePump()
	go client.readPump()
}

// reject writes an exception and a policy-violation close frame directly,
// before any pump has started.
func (h *Hub) reject(conn *websocket.Conn, code, message string) {
	defer conn.Close()

	data, err := h.encode(Envelope{Type: TypeException, Payload: ExceptionPayload{Code: code, Message: message}})
	if err != nil {
		return
	}
	deadline := time.Now().Add(h.writeWait())
	//nolint:errcheck // Best-effort deadline; write error caught below
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return
	}
	//nolint:errcheck // Best-effort close frame
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code), deadline)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", h.ClientCount())
}

// unregister removes a client. Only the goroutine that removes the client
// from the map closes its send channel.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if existed {
		close(c.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

func (h *Hub) broadcast(env Envelope) {
	data, err := h.encode(env)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	// Snapshot client list under hub lock, then release before sending
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.trySend(frame{data: data})
	}
	h.logger.Debug("broadcast sent", "type", env.Type, "recipients", len(clients))
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		c.conn.Close()
		delete(h.clients, c)
	}
}

func (h *Hub) encode(env Envelope) ([]byte, error) {
	env.Timestamp = h.now().UTC().Format(time.RFC3339)
	return json.Marshal(env)
}

func (h *Hub) pingInterval() time.Duration {
	if h.cfg.PingInterval <= 0 {
		return defaultPingInterval
	}
	return time.Duration(h.cfg.PingInterval) * time.Second
}

func (h *Hub) writeWait() time.Duration {
	if h.cfg.PongTimeout <= 0 {
		return defaultWriteWait
	}
	return time.Duration(h.cfg.PongTimeout) * time.Second
}

func newMessageLimiter(cfg config.WebSocketConfig) *rate.Limiter {
	if cfg.MessagesPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), burst)
}

// readPump reads messages until the connection fails or the client must
// be dropped, then removes the session.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)

		c.mu.Lock()
		id := c.identity
		c.state = StateUnauthenticated
		c.identity = auth.Identity{}
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
		defer cancel()
		if _, err := c.hub.registry.Disconnect(ctx, id); err != nil {
			c.hub.logger.Debug("removing session failed", "principal_id", id.PrincipalID, "error", err)
		}
	}()

	if c.hub.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	}
	wait := c.hub.pingInterval() + c.hub.writeWait()
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(wait))

		if !c.handleMessage(data) {
			return
		}
	}
}

// writePump writes queued frames and keepalive pings. It owns the
// connection's write side and closes the connection on exit.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	wait := c.hub.writeWait()
	for {
		select {
		case f, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(wait))
			if f.data != nil {
				if err := c.conn.WriteMessage(websocket.TextMessage, f.data); err != nil {
					return
				}
			}
			if f.closeCode != 0 {
				//nolint:errcheck // Best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(f.closeCode, f.reason))
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(wait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one inbound message and reports whether the
// connection should stay open.
func (c *Client) handleMessage(data []byte) bool {
	id := c.currentIdentity()
	if !c.hub.now().Before(id.ExpiresAt) {
		c.hub.logger.Info("websocket token expired", "principal_id", id.PrincipalID)
		c.closeWithException(CodeTokenExpired, auth.ErrTokenExpired.Error())
		return false
	}

	if !c.limiter.Allow() {
		c.sendError("", "rate limit exceeded")
		return true
	}

	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return true
	}

	switch msg.Type {
	case TypePing:
		c.sendEnvelope(Envelope{Type: TypePong, ID: msg.ID})
	case TypePresence:
		c.handlePresence(msg)
	case TypeReauth:
		return c.handleReauth(msg)
	case TypeMessage:
		c.hub.broadcast(Envelope{
			Type:    TypeMessage,
			ID:      msg.ID,
			Payload: msg.Payload,
			From:    &Sender{ID: id.PrincipalID, Name: id.Name},
		})
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
	return true
}

func (c *Client) handlePresence(msg inbound) {
	ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
	defer cancel()

	list, err := c.hub.registry.Snapshot(ctx)
	if err != nil {
		c.sendError(msg.ID, "presence unavailable")
		return
	}
	c.sendEnvelope(Envelope{Type: TypeResponse, ID: msg.ID, Payload: list})
}

// handleReauth swaps in a fresh access token for the same principal.
func (c *Client) handleReauth(msg inbound) bool {
	var p reauthPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.Token == "" {
		c.sendError(msg.ID, "invalid reauth payload")
		return true
	}

	next, err := c.hub.authn.Verifier.VerifyIdentity(p.Token)
	if err != nil {
		c.closeWithException(exceptionCode(err), err.Error())
		return false
	}

	c.mu.Lock()
	same := next.PrincipalID == c.identity.PrincipalID
	if same {
		c.identity.ExpiresAt = next.ExpiresAt
	}
	c.mu.Unlock()

	if !same {
		c.closeWithException(CodeUnauthorized, "token belongs to a different principal")
		return false
	}

	c.sendEnvelope(Envelope{Type: TypeResponse, ID: msg.ID, Payload: map[string]any{
		"expiresAt": next.ExpiresAt.UTC().Format(time.RFC3339),
	}})
	return true
}

func (c *Client) currentIdentity() auth.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// closeWithException queues an exception followed by a policy-violation close.
func (c *Client) closeWithException(code, message string) {
	data, err := c.hub.encode(Envelope{Type: TypeException, Payload: ExceptionPayload{Code: code, Message: message}})
	if err != nil {
		data = nil
	}
	c.trySend(frame{data: data, closeCode: websocket.ClosePolicyViolation, reason: code})
}

// trySend queues f without blocking. It silently handles closed channels
// (client disconnected during broadcast) and full buffers (slow client).
func (c *Client) trySend(f frame) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- f:
	default:
		// Client buffer full, skip
	}
}

func (c *Client) sendEnvelope(env Envelope) {
	data, err := c.hub.encode(env)
	if err != nil {
		return
	}
	c.trySend(frame{data: data})
}

func (c *Client) sendError(id, message string) {
	c.sendEnvelope(Envelope{Type: TypeError, ID: id, Payload: map[string]string{"message": message}})
}
