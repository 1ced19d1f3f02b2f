// Package eventbus is an in-process pub/sub fan-out: a single producer,
// many subscribers, a bounded buffer that drops the oldest frame for
// slow consumers rather than blocking the producer.
package eventbus

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// bufferCapacity bounds how many undelivered frames the hub queues.
const bufferCapacity = 100

// clientBuffer is the per-client outbound queue depth.
const clientBuffer = 32

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans text frames out to every connected client. The zero value is
// not usable; construct with New.
type Hub struct {
	log zerolog.Logger

	broadcast  chan string
	register   chan *client
	unregister chan *client
	done       chan struct{}
	once       sync.Once

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// New returns a running-ready Hub. Call Run in its own goroutine before
// any Publish or ServeWS call.
func New(log zerolog.Logger) *Hub {
	return &Hub{
		log:        log,
		broadcast:  make(chan string, bufferCapacity),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
	}
}

// Run is the hub's event loop. It returns when Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow consumer: drop this client's oldest queued
					// frame to make room rather than block the hub loop.
					select {
					case <-c.send:
					default:
					}
					select {
					case c.send <- msg:
					default:
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Stop shuts the hub's event loop down. Safe to call more than once.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// Publish sends msg to every current subscriber. If the hub's internal
// buffer is full, the oldest queued message is dropped to make room —
// Publish never blocks the caller.
func (h *Hub) Publish(msg string) {
	select {
	case h.broadcast <- msg:
		return
	default:
	}
	select {
	case <-h.broadcast:
	default:
	}
	select {
	case h.broadcast <- msg:
	default:
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan string
}

// ServeWS upgrades the request to a websocket connection and registers it
// as a subscriber. Frames sent by the client are read and logged, then
// discarded; the protocol is server-to-client only.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan string, clientBuffer)}
	h.register <- c
	go c.writePump()
	go c.readPump()
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.hub.log.Debug().Str("client_msg", string(msg)).Msg("ignoring client websocket frame")
	}
}
