// Package websocket carries the live-push channel over gorilla websockets.
package websocket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/realtime"
)

var (
	ErrConnClosed   = errors.New("connection closed")
	ErrSlowConsumer = errors.New("send buffer full")
)

// Options tune each connection; zero values fall back to the defaults.
type Options struct {
	SendBufferSize int
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
}

func NewOptions(conf core.RealtimeConfig) Options {
	return Options{
		SendBufferSize: conf.SendBufferSize,
		WriteTimeout:   conf.WriteTimeout,
		PongTimeout:    conf.PongTimeout,
		MaxMessageSize: conf.MaxMessageSize,
	}
}

func (o Options) withDefaults() Options {
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 4096
	}
	return o
}

// pings must go out before the peer's pong deadline expires
func (o Options) pingPeriod() time.Duration {
	return o.PongTimeout * 9 / 10
}

// Registry is where a served Conn registers itself (realtime.Hub).
type Registry interface {
	Register(conn realtime.Conn) bool
	Unregister(conn realtime.Conn) bool
}

var upgrader = gws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the JWT, not the origin, authenticates the socket
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Conn is a realtime.Conn over one websocket.
type Conn struct {
	id     string
	userID string
	ws     *gws.Conn
	opts   Options
	logger core.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

var _ realtime.Conn = (*Conn)(nil) // interface compliance check

// Upgrade switches the HTTP request to the websocket protocol on behalf of userID.
func Upgrade(w http.ResponseWriter, r *http.Request, userID string, opts Options, logger core.Logger) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, errors.Wrap(err, "upgrading connection")
	}
	return NewConn(ws, userID, opts, logger), nil
}

func NewConn(ws *gws.Conn, userID string, opts Options, logger core.Logger) *Conn {
	opts = opts.withDefaults()
	return &Conn{
		id:     uuid.New().String(),
		userID: userID,
		ws:     ws,
		opts:   opts,
		logger: logger,
		send:   make(chan []byte, opts.SendBufferSize),
		done:   make(chan struct{}),
	}
}

func (c *Conn) ID() string     { return c.id }
func (c *Conn) UserID() string { return c.userID }

// Send queues ev without blocking. A connection that falls a full buffer behind gets closed.
func (c *Conn) Send(ev realtime.Event) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshalling event")
	}

	select {
	case c.send <- b:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		_ = c.Close()
		return ErrSlowConsumer
	}
}

// Close stops the pumps; the write pump says goodbye to the peer and releases the socket.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Serve registers the connection and pumps it until either side closes it.
func (c *Conn) Serve(reg Registry) {
	reg.Register(c)
	defer reg.Unregister(c)

	finished := make(chan struct{})
	go func() {
		c.writePump()
		close(finished)
	}()

	c.readPump()
	_ = c.Close()
	<-finished
}

type clientMessage struct {
	Event string `json:"event"`
}

func (c *Conn) readPump() {
	c.ws.SetReadLimit(c.opts.MaxMessageSize)
	extend := func() error { return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout)) }
	_ = extend()
	c.ws.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if gws.IsUnexpectedCloseError(err, gws.CloseNormalClosure, gws.CloseGoingAway) {
				c.logger.Info(fmt.Sprintf("websocket %s (user %s) dropped: %v", c.id, c.userID, err))
			}
			return
		}
		_ = extend()

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue // not ours to judge
		}
		if msg.Event == "ping" {
			if err := c.Send(realtime.NewEvent(realtime.EventPong, nil)); err != nil {
				return
			}
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case b := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteMessage(gws.TextMessage, b); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(gws.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			msg := gws.FormatCloseMessage(gws.CloseNormalClosure, "")
			_ = c.ws.WriteControl(gws.CloseMessage, msg, time.Now().Add(c.opts.WriteTimeout))
			return
		}
	}
}
