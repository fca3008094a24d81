// Package opsfeed streams reload events to operators over websocket.
package opsfeed

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/chenyanchen/hotswap"
)

// MessageType tags every frame sent to a client.
type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgEvent    MessageType = "event"
)

// Message is the envelope of every frame.
type Message struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload"`
}

// SnapshotPayload is sent once when a client connects.
type SnapshotPayload struct {
	Events   []hotswap.Event   `json:"events"`
	Lineages []hotswap.Lineage `json:"lineages,omitempty"`
}

const (
	sendBuffer     = 64
	defaultBacklog = 100
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Feed fans reload events out to every connected client and keeps a short
// backlog for clients that connect later.
type Feed struct {
	logger   *slog.Logger
	lineages func() []hotswap.Lineage
	backlog  int

	mu      sync.RWMutex
	clients map[*client]bool
	recent  []hotswap.Event
}

// Option configures a Feed.
type Option func(*Feed)

// WithLineages adds the lineage snapshot of fn to the initial frame.
func WithLineages(fn func() []hotswap.Lineage) Option {
	return func(f *Feed) {
		f.lineages = fn
	}
}

// WithBacklog sets how many recent events new clients receive.
func WithBacklog(n int) Option {
	return func(f *Feed) {
		if n >= 0 {
			f.backlog = n
		}
	}
}

// WithLogger sets the feed logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Feed) {
		if logger != nil {
			f.logger = logger
		}
	}
}

func New(opts ...Option) *Feed {
	f := &Feed{
		logger:  slog.Default(),
		backlog: defaultBacklog,
		clients: make(map[*client]bool),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "opsfeed")
	return f
}

// Publish records e and sends it to every client. It matches the signature
// of hotswap.RegistryConfig.OnEvent.
func (f *Feed) Publish(e hotswap.Event) {
	f.mu.Lock()
	f.recent = append(f.recent, e)
	if over := len(f.recent) - f.backlog; over > 0 {
		f.recent = append([]hotswap.Event(nil), f.recent[over:]...)
	}
	f.mu.Unlock()

	f.broadcast(Message{Type: MsgEvent, Payload: e})
}

// Recent returns the backlog, oldest first.
func (f *Feed) Recent() []hotswap.Event {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]hotswap.Event(nil), f.recent...)
}

// ClientCount returns the number of connected clients.
func (f *Feed) ClientCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("ws upgrade", "error", err)
		return
	}
	f.logger.Debug("client connected", "remote", r.RemoteAddr)
	c := f.addClient(conn)

	go func() {
		defer func() {
			f.removeClient(c)
			f.logger.Debug("client disconnected", "remote", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (f *Feed) addClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	snapshot := SnapshotPayload{Events: f.Recent()}
	if f.lineages != nil {
		snapshot.Lineages = f.lineages()
	}
	data, err := json.Marshal(Message{Type: MsgSnapshot, Payload: snapshot})
	if err != nil {
		f.logger.Error("marshal snapshot", "error", err)
	} else {
		c.send <- data
	}

	f.mu.Lock()
	f.clients[c] = true
	f.mu.Unlock()
	return c
}

func (f *Feed) removeClient(c *client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[c]; ok {
		delete(f.clients, c)
		c.close()
	}
}

// Close disconnects every client.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		delete(f.clients, c)
		c.close()
	}
}

func (f *Feed) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		f.logger.Error("marshal message", "error", err)
		return
	}

	// Sends happen under the read lock; channels are only closed under the
	// write lock.
	var slow []*client
	f.mu.RLock()
	for c := range f.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	f.mu.RUnlock()

	for _, c := range slow {
		f.logger.Warn("ws client too slow, disconnecting")
		f.removeClient(c)
	}
}
