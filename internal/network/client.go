package network

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/MRamiBalles/coup-server/internal/events"
	"github.com/MRamiBalles/coup-server/internal/platform/logger"
	"github.com/MRamiBalles/coup-server/internal/platform/metrics"
	"github.com/MRamiBalles/coup-server/internal/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Time allowed for the JOIN handshake.
	joinWait = 10 * time.Second
)

// Tables authenticates a seat at a table.
type Tables interface {
	Authenticate(tableID, seat, token string) (*session.Session, error)
}

// JoinRequest is the first message on every connection.
type JoinRequest struct {
	Type    string `json:"type"` // "JOIN"
	TableID string `json:"table_id"`
	Seat    string `json:"seat"`
	Token   string `json:"token"`
}

// Notice is a transport-level message that is not a table event.
type Notice struct {
	Type    string `json:"type"` // "JOINED" or "ERROR"
	TableID string `json:"table_id,omitempty"`
	Seat    string `json:"seat,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// GatewayOptions bounds each connection.
type GatewayOptions struct {
	SendBuffer        int
	MaxMessageSize    int64
	MessagesPerSecond float64
	Burst             int
	AllowedOrigins    []string // empty allows any origin
}

// Gateway upgrades HTTP requests to seated WebSocket clients.
type Gateway struct {
	hub      *Hub
	tables   Tables
	opts     GatewayOptions
	upgrader websocket.Upgrader
	logger   *logger.Logger
	metrics  *metrics.Collector
}

// NewGateway builds the /ws handler.
func NewGateway(hub *Hub, tables Tables, opts GatewayOptions, log *logger.Logger, m *metrics.Collector) *Gateway {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 4096
	}
	if opts.MessagesPerSecond <= 0 {
		opts.MessagesPerSecond = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = 20
	}
	g := &Gateway{hub: hub, tables: tables, opts: opts, logger: log, metrics: m}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.opts.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(g.opts.AllowedOrigins, r.Header.Get("Origin"))
}

// ServeHTTP upgrades the connection and runs the JOIN handshake.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("failed to upgrade websocket connection", zap.Error(err))
		return
	}
	conn.SetReadLimit(g.opts.MaxMessageSize)

	sess, join, err := g.join(conn)
	if err != nil {
		g.errorMetric()
		writeNotice(conn, Notice{Type: "ERROR", Code: joinErrorCode(err), Message: err.Error()})
		conn.Close()
		return
	}

	c := &Client{
		hub:     g.hub,
		conn:    conn,
		send:    make(chan []byte, g.opts.SendBuffer),
		session: sess,
		tableID: join.TableID,
		seat:    join.Seat,
		limiter: rate.NewLimiter(rate.Limit(g.opts.MessagesPerSecond), g.opts.Burst),
		logger:  g.logger,
		metrics: g.metrics,
	}
	// JOINED is queued before the hub knows the client, so it always
	// precedes the snapshot and any table traffic.
	c.enqueue(Notice{Type: "JOINED", TableID: join.TableID, Seat: join.Seat})
	if !c.Register() {
		conn.Close()
		return
	}
	sess.SendSnapshot(join.Seat)

	go c.WritePump()
	c.ReadPump()
}

func (g *Gateway) join(conn *websocket.Conn) (*session.Session, JoinRequest, error) {
	var req JoinRequest
	conn.SetReadDeadline(time.Now().Add(joinWait))
	if err := conn.ReadJSON(&req); err != nil {
		return nil, req, errBadJoin
	}
	if req.Type != "JOIN" || req.TableID == "" || req.Seat == "" {
		return nil, req, errBadJoin
	}
	sess, err := g.tables.Authenticate(req.TableID, req.Seat, req.Token)
	if err != nil {
		return nil, req, err
	}
	return sess, req, nil
}

func (g *Gateway) errorMetric() {
	if g.metrics != nil {
		g.metrics.RecordWSError()
	}
}

var errBadJoin = errors.New("first message must be JOIN with table_id, seat and token")

func joinErrorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return "TABLE_NOT_FOUND"
	case errors.Is(err, session.ErrUnauthorized):
		return "UNAUTHORIZED"
	default:
		return "BAD_JOIN"
	}
}

func writeNotice(conn *websocket.Conn, n Notice) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteJSON(n)
}

// Client is one seated WebSocket connection.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	session *session.Session
	tableID string
	seat    string
	limiter *rate.Limiter
	logger  *logger.Logger
	metrics *metrics.Collector
}

// Register adds the client to the hub. It returns false once the hub has stopped.
func (c *Client) Register() bool {
	select {
	case c.hub.register <- c:
		return true
	case <-c.hub.done:
		return false
	}
}

func (c *Client) unregister() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
}

// notice queues a transport message for this client only.
func (c *Client) notice(n Notice) {
	msg, err := json.Marshal(n)
	if err != nil {
		return
	}
	select {
	case c.hub.direct <- directMessage{client: c, msg: msg}:
	case <-c.hub.done:
	}
}

// enqueue writes straight to the send buffer. Only valid before Register,
// while the hub cannot yet close or fill it.
func (c *Client) enqueue(n Notice) {
	msg, err := json.Marshal(n)
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// ReadPump submits the seat's commands to its table.
func (c *Client) ReadPump() {
	defer func() {
		c.unregister()
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", zap.String("seat", c.seat), zap.Error(err))
				if c.metrics != nil {
					c.metrics.RecordWSError()
				}
			}
			return
		}
		if c.metrics != nil {
			c.metrics.RecordWSMessage(true)
		}
		if !c.limiter.Allow() {
			c.notice(Notice{Type: "ERROR", Code: "RATE_LIMITED", Message: "too many messages"})
			continue
		}

		var cmd events.PlayerCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.notice(Notice{Type: "ERROR", Code: "BAD_MESSAGE", Message: "message is not a command"})
			continue
		}
		cmd.Seat = c.seat
		// Rejections reach the seat as ACTION_REJECTED events.
		c.session.Submit(cmd)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.writeFailed(err)
				return
			}
			if c.metrics != nil {
				c.metrics.RecordWSMessage(false)
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.writeFailed(err)
				return
			}
		}
	}
}

func (c *Client) writeFailed(err error) {
	c.logger.Debug("websocket write failed", zap.String("seat", c.seat), zap.Error(err))
	if c.metrics != nil {
		c.metrics.RecordWSError()
	}
}

var _ session.Publisher = (*Hub)(nil)
