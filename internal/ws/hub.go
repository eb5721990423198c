// Package ws streams committed exchange events to websocket subscribers,
// with a per-topic replay buffer so late subscribers can catch up.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"sync"
	"time"

	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/Aidin1998/pincex_clob/pkg/metrics"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// TopicAll carries the events of every market.
const TopicAll = "all"

// MarketTopic is the topic of one market's events.
func MarketTopic(marketID uint64) string { return fmt.Sprintf("market:%d", marketID) }

// Message is one event as delivered to a subscriber. Seq is the event's
// exchange sequence number.
type Message struct {
	Topic string `json:"topic"`
	Seq   uint64 `json:"seq"`
	Data  []byte `json:"data"`
}

// ringBuffer holds the last N messages for a topic.
type ringBuffer struct {
	mu    sync.RWMutex
	buf   []Message
	size  int
	start int
	count int
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{buf: make([]Message, size), size: size}
}

// add appends a message, overwriting old entries when full.
func (r *ringBuffer) add(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := (r.start + r.count) % r.size
	if r.count == r.size {
		r.start = (r.start + 1) % r.size
		r.count--
	}
	r.buf[idx] = msg
	r.count++
}

// getSince returns messages with Seq > since.
func (r *ringBuffer) getSince(since uint64) []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Message
	for i := 0; i < r.count; i++ {
		msg := r.buf[(r.start+i)%r.size]
		if msg.Seq > since {
			out = append(out, msg)
		}
	}
	return out
}

// subscribeRequest is what clients send: {"subscribe":["market:1"],"since":42}.
type subscribeRequest struct {
	Subscribe   []string `json:"subscribe"`
	Unsubscribe []string `json:"unsubscribe"`
	Since       uint64   `json:"since"`
}

// Client represents a single WebSocket connection.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan Message
	hub  *Hub

	mu            sync.RWMutex
	subscriptions map[string]struct{}
}

func (c *Client) subscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[topic]
	return ok
}

// Hub manages all WebSocket clients, sharded for concurrency.
type Hub struct {
	shards     []*hubShard
	shardCount uint32

	register   chan *Client
	unregister chan *Client
	broadcast  chan Message

	replaySize int
	buffers    map[string]*ringBuffer
	bufMu      sync.Mutex

	done     chan struct{}
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

type hubShard struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

var _ model.EventPublisher = (*Hub)(nil)

// NewHub creates a Hub with given shard count and replay buffer size per topic.
// Run must be called for clients to receive anything.
func NewHub(shardCount, replaySize int, logger *zap.Logger) *Hub {
	if shardCount < 1 {
		shardCount = 1
	}
	if replaySize < 1 {
		replaySize = 1
	}
	h := &Hub{
		shards:     make([]*hubShard, shardCount),
		shardCount: uint32(shardCount),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, 1024),
		replaySize: replaySize,
		buffers:    make(map[string]*ringBuffer),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.Named("ws"),
	}
	for i := range h.shards {
		h.shards[i] = &hubShard{clients: make(map[*Client]struct{})}
	}
	return h
}

// Run handles registration, unregistration, and broadcasting until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return
		case client := <-h.register:
			sh := h.shardFor(client.id)
			sh.mu.Lock()
			sh.clients[client] = struct{}{}
			sh.mu.Unlock()
			metrics.WSClients.Inc()
		case client := <-h.unregister:
			sh := h.shardFor(client.id)
			sh.mu.Lock()
			if _, ok := sh.clients[client]; ok {
				delete(sh.clients, client)
				close(client.send)
				metrics.WSClients.Dec()
			}
			sh.mu.Unlock()
		case msg := <-h.broadcast:
			h.bufferFor(msg.Topic).add(msg)
			for _, sh := range h.shards {
				sh.mu.RLock()
				for c := range sh.clients {
					if !c.subscribed(msg.Topic) {
						continue
					}
					select {
					case c.send <- msg:
					default:
						metrics.WSDropped.Inc()
					}
				}
				sh.mu.RUnlock()
			}
		}
	}
}

// closeAll drops every connection; the pumps exit on their own.
func (h *Hub) closeAll() {
	for _, sh := range h.shards {
		sh.mu.Lock()
		for c := range sh.clients {
			delete(sh.clients, c)
			c.conn.Close()
			metrics.WSClients.Dec()
		}
		sh.mu.Unlock()
	}
}

func (h *Hub) bufferFor(topic string) *ringBuffer {
	h.bufMu.Lock()
	defer h.bufMu.Unlock()
	buf, ok := h.buffers[topic]
	if !ok {
		buf = newRingBuffer(h.replaySize)
		h.buffers[topic] = buf
	}
	return buf
}

func (h *Hub) shardFor(key string) *hubShard {
	hasher := fnv.New32a()
	hasher.Write([]byte(key))
	return h.shards[hasher.Sum32()%h.shardCount]
}

// ServeWS upgrades HTTP to WS and registers the client under given clientID.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, clientID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	c := &Client{
		id:            clientID,
		conn:          conn,
		send:          make(chan Message, 256),
		subscriptions: make(map[string]struct{}),
		hub:           h,
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// PublishEvents broadcasts each event on its market topic and on TopicAll.
func (h *Hub) PublishEvents(ctx context.Context, events []model.Event) error {
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode event %d: %w", ev.Sequence, err)
		}
		for _, topic := range []string{MarketTopic(ev.MarketID), TopicAll} {
			select {
			case h.broadcast <- Message{Topic: topic, Seq: ev.Sequence, Data: data}:
			case <-h.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// Replay returns buffered messages for topic since the given sequence.
func (h *Hub) Replay(topic string, since uint64) []Message {
	h.bufMu.Lock()
	buf, ok := h.buffers[topic]
	h.bufMu.Unlock()
	if !ok {
		return nil
	}
	return buf.getSince(since)
}

// readPump handles incoming control frames and subscription requests.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
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
		var req subscribeRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			continue
		}
		c.mu.Lock()
		for _, topic := range req.Subscribe {
			c.subscriptions[topic] = struct{}{}
		}
		for _, topic := range req.Unsubscribe {
			delete(c.subscriptions, topic)
		}
		c.mu.Unlock()
		for _, topic := range req.Subscribe {
			for _, m := range c.hub.Replay(topic, req.Since) {
				select {
				case c.send <- m:
				default:
					metrics.WSDropped.Inc()
				}
			}
		}
	}
}

// writePump sends messages and heartbeats to the client.
func (c *Client) writePump() {
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
			if err := c.conn.WriteJSON(msg); err != nil {
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
