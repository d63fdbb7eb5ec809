package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agent-ops/relay/internal/metrics"
	"github.com/agent-ops/relay/pkg/logger"
)

const (
	// sendBuffer is the per-socket outbound channel capacity. A full buffer
	// drops frames for that socket; durable state is unaffected.
	sendBuffer = 64
	// writeWait is the websocket write deadline.
	writeWait = 10 * time.Second
)

// Close codes relayed to peers, per RFC 6455.
const (
	CloseNormal        = websocket.CloseNormalClosure
	CloseInternalError = websocket.CloseInternalServerErr
)

// Role identifies a socket's peer type.
type Role int

const (
	// RoleClient is a browser observer socket. Many per session.
	RoleClient Role = iota
	// RoleRunner is the headless execution socket. At most one per session.
	RoleRunner
)

// String returns the role name used in logs and metrics labels.
func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleRunner:
		return "runner"
	default:
		return "unknown"
	}
}

// Conn wraps one websocket connection with a buffered write pump. All writes
// go through the pump so concurrent senders never interleave on the wire.
type Conn struct {
	// ID uniquely identifies this socket.
	ID string
	// Role is the peer type.
	Role Role
	// UserID is the owning user for client sockets; empty for the runner.
	UserID string

	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewConn wraps an upgraded websocket connection and starts its write pump.
func NewConn(id string, role Role, userID string, ws *websocket.Conn) *Conn {
	c := &Conn{
		ID:     id,
		Role:   role,
		UserID: userID,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
	go c.writePump()
	return c
}

// Done returns a channel closed when the write pump exits, so read loops can
// detect write-side failures promptly.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Send marshals v and queues it for delivery. Frames to a saturated or dead
// socket are dropped; the close handler owns cleanup.
func (c *Conn) Send(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Errorf("[ws] marshal frame for %s socket %s: %v", c.Role, c.ID, err)
		return false
	}
	return c.SendRaw(data)
}

// SendRaw queues pre-marshaled bytes for delivery.
func (c *Conn) SendRaw(data []byte) bool {
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		metrics.DroppedFrames.Inc()
		logger.Warnf("[ws] %s socket %s send buffer full; dropping frame", c.Role, c.ID)
		return false
	}
}

// Close tears the socket down. Already-queued frames still get a delivery
// attempt; the write pump closes the underlying connection once drained.
// Safe to call from any goroutine, repeatedly.
func (c *Conn) Close() {
	c.signalDone()
}

// CloseWithCode sends a close control frame before tearing the socket down.
// Used when a new runner displaces the old one.
func (c *Conn) CloseWithCode(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.Close()
}

// ReadMessage blocks for the next inbound frame.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *Conn) signalDone() {
	c.once.Do(func() { close(c.done) })
}

// writePump drains the send channel onto the wire. On write failure it
// signals done so the read loop exits immediately instead of waiting for a
// read error. On shutdown it flushes whatever was queued before Close, then
// closes the underlying connection.
func (c *Conn) writePump() {
	defer c.signalDone()
	defer c.ws.Close()

	for {
		select {
		case data := <-c.send:
			if !c.writeFrame(data) {
				return
			}
		case <-c.done:
			for {
				select {
				case data := <-c.send:
					if !c.writeFrame(data) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (c *Conn) writeFrame(data []byte) bool {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		logger.Debugf("[ws] %s socket %s write failed: %v", c.Role, c.ID, err)
		return false
	}
	return true
}
