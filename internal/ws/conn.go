package ws

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
)

const (
	// sendBufferSize is the number of frames that can be queued per client.
	sendBufferSize = 16

	// writeTimeout is the max time to wait for a single write to complete.
	writeTimeout = 5 * time.Second

	// idleCheckInterval is how often the idle reaper runs.
	idleCheckInterval = 30 * time.Second
)

// Client is one connected participant: the WebSocket connection plus its
// opaque connection ID and buffered outbound queue.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// ID returns the connection identifier assigned at accept time.
func (c *Client) ID() string {
	return c.id
}

// connState holds per-connection lifecycle data.
type connState struct {
	cancel     context.CancelFunc
	acceptedAt time.Time
	lastActive time.Time
}

// ConnStats holds point-in-time connection statistics.
type ConnStats struct {
	Active          int   `json:"active"`
	MaxConns        int   `json:"max_conns"`
	Rejected        int64 `json:"rejected"`
	DroppedMessages int64 `json:"dropped_messages"`
	IdleReaped      int64 `json:"idle_reaped"`
}

// ConnManager owns the lifecycle of every WebSocket connection: per-client
// write pumps, an optional connection cap, idle reaping, and graceful
// shutdown. Connection liveness is its responsibility, not the protocol's.
type ConnManager struct {
	mu       sync.Mutex
	conns    map[*Client]*connState
	closed   bool
	maxConns int
	idleTTL  time.Duration
	stopIdle context.CancelFunc

	rejected atomic.Int64
	dropped  atomic.Int64
	reaped   atomic.Int64
}

// ConnOption configures a ConnManager.
type ConnOption func(*ConnManager)

// WithMaxConns caps concurrent connections; new connections beyond the cap
// are rejected. Zero means unlimited (default).
func WithMaxConns(n int) ConnOption {
	return func(cm *ConnManager) {
		cm.maxConns = n
	}
}

// WithIdleTimeout closes connections with no inbound traffic for d.
// Zero disables reaping (default).
func WithIdleTimeout(d time.Duration) ConnOption {
	return func(cm *ConnManager) {
		cm.idleTTL = d
	}
}

// NewConnManager creates a connection manager.
func NewConnManager(opts ...ConnOption) *ConnManager {
	cm := &ConnManager{
		conns: make(map[*Client]*connState),
	}
	for _, opt := range opts {
		opt(cm)
	}
	if cm.idleTTL > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		cm.stopIdle = cancel
		go cm.reapLoop(ctx)
	}
	return cm
}

// Add registers a client and starts its write pump. The returned context is
// cancelled when the client is removed or the manager shuts down; read loops
// should select on it. A closed or full manager closes the connection and
// returns an already-cancelled context.
func (cm *ConnManager) Add(c *Client) context.Context {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
		return cancelledContext()
	}
	if cm.maxConns > 0 && len(cm.conns) >= cm.maxConns {
		cm.rejected.Add(1)
		c.conn.Close(websocket.StatusTryAgainLater, "server at capacity")
		return cancelledContext()
	}

	now := time.Now()
	c.send = make(chan []byte, sendBufferSize)
	ctx, cancel := context.WithCancel(context.Background())
	cm.conns[c] = &connState{
		cancel:     cancel,
		acceptedAt: now,
		lastActive: now,
	}

	go cm.writePump(ctx, c)
	return ctx
}

// Remove stops the client's write pump and forgets it. The send channel is
// never closed; the pump exits through its cancelled context, so a broadcast
// racing the removal enqueues harmlessly instead of panicking.
func (cm *ConnManager) Remove(c *Client) {
	cm.mu.Lock()
	state, ok := cm.conns[c]
	if ok {
		delete(cm.conns, c)
	}
	cm.mu.Unlock()

	if ok {
		state.cancel()
	}
}

// Send queues a frame for delivery. It reports false when the client's
// buffer is full (slow consumer) or the client is gone; the frame is dropped
// rather than blocking the caller.
func (cm *ConnManager) Send(c *Client, data []byte) bool {
	cm.mu.Lock()
	_, ok := cm.conns[c]
	cm.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
		cm.dropped.Add(1)
		log.Printf("ws: send buffer full for conn %s, dropping frame", c.id)
		return false
	}
}

// Touch marks the client as active so idle reaping leaves it alone.
func (cm *ConnManager) Touch(c *Client) {
	cm.mu.Lock()
	if state, ok := cm.conns[c]; ok {
		state.lastActive = time.Now()
	}
	cm.mu.Unlock()
}

// Count returns the number of active connections.
func (cm *ConnManager) Count() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.conns)
}

// Stats returns point-in-time connection statistics.
func (cm *ConnManager) Stats() ConnStats {
	cm.mu.Lock()
	active := len(cm.conns)
	maxConns := cm.maxConns
	cm.mu.Unlock()
	return ConnStats{
		Active:          active,
		MaxConns:        maxConns,
		Rejected:        cm.rejected.Load(),
		DroppedMessages: cm.dropped.Load(),
		IdleReaped:      cm.reaped.Load(),
	}
}

// Shutdown closes every connection and stops accepting new ones.
func (cm *ConnManager) Shutdown() {
	cm.mu.Lock()
	cm.closed = true
	conns := cm.conns
	cm.conns = make(map[*Client]*connState)
	cm.mu.Unlock()

	if cm.stopIdle != nil {
		cm.stopIdle()
	}

	for c, state := range conns {
		state.cancel()
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (cm *ConnManager) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cm.reapIdle()
		}
	}
}

func (cm *ConnManager) reapIdle() {
	cm.mu.Lock()
	now := time.Now()
	stale := make(map[*Client]*connState)
	for c, state := range cm.conns {
		if now.Sub(state.lastActive) > cm.idleTTL {
			stale[c] = state
			delete(cm.conns, c)
		}
	}
	cm.mu.Unlock()

	for c, state := range stale {
		state.cancel()
		c.conn.Close(websocket.StatusPolicyViolation, "idle timeout")
		cm.reaped.Add(1)
		log.Printf("ws: reaped idle conn %s", c.id)
	}
}

// writePump drains the client's send channel to the WebSocket. Cancelling
// ctx is the only way to stop it.
func (cm *ConnManager) writePump(ctx context.Context, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				log.Printf("ws: write to conn %s failed: %v", c.id, err)
				return
			}
		}
	}
}

func cancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
