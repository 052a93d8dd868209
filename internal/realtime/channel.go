package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"eventsync/internal/domain"
	"eventsync/internal/metrics"
	"eventsync/lib/logger/sl"
)

var (
	ErrNotConnected = errors.New("channel not connected")
	ErrClosed       = errors.New("channel closed")
)

type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateClosed       State = "closed"
)

// Handler receives the raw data of a broadcast it subscribed to.
type Handler func(data json.RawMessage)

type handlerEntry struct {
	id int
	fn Handler
}

type handlerHook struct {
	id int
	fn func()
}

type dialAttempt struct {
	done chan struct{}
	err  error
}

// Manager owns the single realtime connection of the client process.
// Consumers only subscribe and emit; the manager is the only mutator of the
// connection lifecycle. The first Ensure dials; concurrent callers await
// the same in-flight attempt, so there is never more than one socket.
type Manager struct {
	url    string
	dialer *websocket.Dialer
	log    *slog.Logger

	maxReconnects  int
	reconnectDelay time.Duration

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	attempt  *dialAttempt
	handlers map[string][]handlerEntry
	hooks    []handlerHook
	nextID   int

	writeMu sync.Mutex
}

type Option func(*Manager)

// WithReconnectPolicy bounds automatic reconnects: at most attempts tries
// with a delay growing linearly from base.
func WithReconnectPolicy(attempts int, base time.Duration) Option {
	return func(m *Manager) {
		m.maxReconnects = attempts
		m.reconnectDelay = base
	}
}

func WithDialer(dialer *websocket.Dialer) Option {
	return func(m *Manager) {
		m.dialer = dialer
	}
}

func NewManager(url string, log *slog.Logger, opts ...Option) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		url:            url,
		dialer:         websocket.DefaultDialer,
		log:            log,
		maxReconnects:  5,
		reconnectDelay: 2 * time.Second,
		state:          StateIdle,
		handlers:       make(map[string][]handlerEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Ensure establishes the connection if it is not already up. Idempotent;
// concurrent callers share one dial.
func (m *Manager) Ensure(ctx context.Context) error {
	m.mu.Lock()

	switch m.state {
	case StateClosed:
		m.mu.Unlock()
		return ErrClosed
	case StateConnected:
		m.mu.Unlock()
		return nil
	}

	if m.attempt != nil {
		attempt := m.attempt
		m.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-attempt.done:
			return attempt.err
		}
	}

	attempt := &dialAttempt{done: make(chan struct{})}
	m.attempt = attempt
	m.state = StateConnecting
	m.mu.Unlock()

	conn, _, err := m.dialer.DialContext(ctx, m.url, nil)

	m.mu.Lock()
	m.attempt = nil
	if err != nil {
		m.state = StateDisconnected
		attempt.err = err
		close(attempt.done)
		m.mu.Unlock()
		m.log.Error("channel dial failed", sl.Err(err))
		return err
	}
	if m.state == StateClosed {
		close(attempt.done)
		m.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	m.conn = conn
	m.state = StateConnected
	close(attempt.done)
	m.mu.Unlock()

	m.log.Info("channel connected", slog.String("url", m.url))
	go m.readLoop(conn)
	m.runConnectHooks()
	return nil
}

// Emit sends a named message. Fails fast while disconnected; nothing is
// queued, broadcast-driven state always has a pull fallback.
func (m *Manager) Emit(event string, payload any) error {
	m.mu.Lock()
	conn := m.conn
	state := m.state
	m.mu.Unlock()

	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}

	var data json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		data = encoded
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteJSON(domain.Message{Event: event, Data: data})
}

// On registers a handler for a broadcast name and returns its unsubscribe
// func. Unsubscribing never touches the shared connection.
func (m *Manager) On(event string, fn Handler) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.handlers[event] = append(m.handlers[event], handlerEntry{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		entries := m.handlers[event]
		for i, entry := range entries {
			if entry.id == id {
				m.handlers[event] = append(entries[:i:i], entries[i+1:]...)
				break
			}
		}
	}
}

// OnConnect registers a hook invoked after every successful connect,
// including reconnects. Used to re-send room-join intents, since broadcasts
// missed during a disconnect window are not replayed.
func (m *Manager) OnConnect(fn func()) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.hooks = append(m.hooks, handlerHook{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, hook := range m.hooks {
			if hook.id == id {
				m.hooks = append(m.hooks[:i:i], m.hooks[i+1:]...)
				break
			}
		}
	}
}

func (m *Manager) runConnectHooks() {
	m.mu.Lock()
	hooks := make([]handlerHook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	for _, hook := range hooks {
		hook.fn()
	}
}

// Close tears the channel down for good.
func (m *Manager) Close() {
	m.mu.Lock()
	m.state = StateClosed
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		var msg domain.Message
		if err := conn.ReadJSON(&msg); err != nil {
			m.handleDisconnect(conn, err)
			return
		}
		m.dispatch(msg)
	}
}

func (m *Manager) dispatch(msg domain.Message) {
	m.mu.Lock()
	entries := make([]handlerEntry, len(m.handlers[msg.Event]))
	copy(entries, m.handlers[msg.Event])
	m.mu.Unlock()

	for _, entry := range entries {
		entry.fn(msg.Data)
	}
}

func (m *Manager) handleDisconnect(conn *websocket.Conn, cause error) {
	m.mu.Lock()
	if m.state == StateClosed || m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	conn.Close()

	if websocket.IsCloseError(cause, websocket.CloseNormalClosure) {
		m.log.Info("channel closed by server")
		return
	}

	m.log.Warn("channel disconnected", sl.Err(cause))
	go m.reconnect()
}

func (m *Manager) reconnect() {
	for attempt := 1; attempt <= m.maxReconnects; attempt++ {
		time.Sleep(m.reconnectDelay * time.Duration(attempt))

		// Register the dial as the shared in-flight attempt so an Ensure
		// racing this loop awaits it instead of opening a second socket.
		m.mu.Lock()
		if m.state != StateDisconnected {
			m.mu.Unlock()
			return
		}
		dial := &dialAttempt{done: make(chan struct{})}
		m.attempt = dial
		m.state = StateConnecting
		m.mu.Unlock()

		conn, _, err := m.dialer.Dial(m.url, nil)

		m.mu.Lock()
		m.attempt = nil
		if err != nil {
			if m.state == StateConnecting {
				m.state = StateDisconnected
			}
			dial.err = err
			close(dial.done)
			m.mu.Unlock()
			m.log.Warn("reconnect failed",
				slog.Int("attempt", attempt),
				sl.Err(err),
			)
			continue
		}
		if m.state == StateClosed {
			dial.err = ErrClosed
			close(dial.done)
			m.mu.Unlock()
			conn.Close()
			return
		}
		m.conn = conn
		m.state = StateConnected
		close(dial.done)
		m.mu.Unlock()

		metrics.ChannelReconnects.Inc()
		m.log.Info("channel reconnected", slog.Int("attempt", attempt))
		go m.readLoop(conn)
		m.runConnectHooks()
		return
	}

	m.log.Error("channel reconnect attempts exhausted")
}
