package live

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"campus-rides/internal/notify"
)

// Channel names a stream a websocket client can subscribe to.
const (
	ChannelSession       = "session"
	ChannelRides         = "rides"
	ChannelNotifications = "notifications"
)

const writeWait = 5 * time.Second

// Message is the frame pushed to subscribers.
type Message struct {
	Channel string `json:"channel"`
	Type    string `json:"type"`
	Data    any    `json:"data"`
	TS      int64  `json:"ts"`
}

// safeConn wraps a websocket.Conn with a write mutex.
// gorilla/websocket allows one concurrent writer; this enforces that.
type safeConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *safeConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

func (c *safeConn) close() { c.ws.Close() }

// Hub fans state changes out to websocket subscribers per channel.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string][]*safeConn
	current  map[string]func() any
	channels map[string]bool
	upgrader websocket.Upgrader
}

// NewHub creates a hub serving the given channels. Until CheckOrigin is
// called, browsers may only connect from the hub's own host.
func NewHub(channels ...string) *Hub {
	h := &Hub{
		conns:    make(map[string][]*safeConn),
		current:  make(map[string]func() any),
		channels: make(map[string]bool),
	}
	for _, c := range channels {
		h.channels[c] = true
	}
	return h
}

// OnConnect registers fn to produce the frame sent to a new subscriber of
// channel before any broadcast.
func (h *Hub) OnConnect(channel string, fn func() any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current[channel] = fn
}

// CheckOrigin replaces the upgrade's origin check. It must be called before
// the hub serves connections.
func (h *Hub) CheckOrigin(fn func(r *http.Request) bool) {
	h.upgrader.CheckOrigin = fn
}

// Routes returns a chi.Router for the /ws mount point.
func (h *Hub) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{channel}", h.HandleWS)
	return r
}

// HandleWS upgrades the connection and subscribes it to a channel.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	if !h.channels[channel] {
		http.Error(w, "unknown channel", http.StatusNotFound)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("[ws] upgrade error")
		return
	}

	conn := &safeConn{ws: ws}

	h.mu.Lock()
	h.conns[channel] = append(h.conns[channel], conn)
	initial := h.current[channel]
	h.mu.Unlock()

	log.Debug().Str("channel", channel).Msg("[ws] client connected")

	if initial != nil {
		if err := conn.writeJSON(frame(channel, "snapshot", initial())); err != nil {
			log.Debug().Err(err).Msg("[ws] initial write error")
		}
	}

	// Block until the client disconnects
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	h.removeConn(channel, conn)
	conn.close()
	log.Debug().Str("channel", channel).Msg("[ws] client disconnected")
}

// Broadcast pushes data to every subscriber of channel.
func (h *Hub) Broadcast(channel, typ string, data any) {
	h.mu.RLock()
	conns := append([]*safeConn(nil), h.conns[channel]...)
	h.mu.RUnlock()

	msg := frame(channel, typ, data)
	for _, c := range conns {
		if err := c.writeJSON(msg); err != nil {
			log.Debug().Err(err).Str("channel", channel).Msg("[ws] write error")
		}
	}
}

// Subscribers returns the number of open connections on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[channel])
}

// Notify implements notify.Notifier on the notifications channel.
func (h *Hub) Notify(_ context.Context, n notify.Notification) {
	h.Broadcast(ChannelNotifications, "notification", n)
}

func (h *Hub) removeConn(channel string, conn *safeConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.conns[channel]
	for i, c := range conns {
		if c == conn {
			h.conns[channel] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.conns[channel]) == 0 {
		delete(h.conns, channel)
	}
}

func frame(channel, typ string, data any) Message {
	return Message{Channel: channel, Type: typ, Data: data, TS: time.Now().Unix()}
}
