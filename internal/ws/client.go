package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/noxco7/nickname-messenger-backend/internal/identity"
)

// Client is one live connection. An identity may own several concurrent
// clients (multi-device); a client belongs to at most one identity once
// authenticated.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan Event

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu          sync.Mutex
	ident       identity.Canonical
	displayName string
	authed      bool
	rooms       map[string]struct{}
}

func newClient(conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:     uuid.NewString(),
		conn:   conn,
		send:   make(chan Event, 64),
		ctx:    ctx,
		cancel: cancel,
		rooms:  make(map[string]struct{}),
	}
}

// Identity returns the verified identity, if the client authenticated.
func (c *Client) Identity() (identity.Canonical, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ident, c.authed
}

func (c *Client) DisplayName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.displayName
}

func (c *Client) bind(id identity.Identity) {
	c.mu.Lock()
	c.ident = id.ID
	c.displayName = id.DisplayName
	c.authed = true
	c.mu.Unlock()
}

func (c *Client) addRoom(room string) {
	c.mu.Lock()
	c.rooms[room] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) removeRoom(room string) {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

func (c *Client) roomSnapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		out = append(out, room)
	}
	return out
}

// Enqueue hands an event to the write loop without blocking. A full buffer
// drops the event: a client that cannot keep up loses fan-out, never the
// durable message.
func (c *Client) Enqueue(ev Event) bool {
	select {
	case <-c.ctx.Done():
		return false
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.send:
			writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = wsjson.Write(writeCtx, c.conn, ev)
			cancel()
		}
	}
}

func (c *Client) keepAliveLoop() {
	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = c.conn.Ping(pingCtx)
			cancel()
		}
	}
}
