package socket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tocata/tocata/internal/bus"
	"github.com/tocata/tocata/internal/config"
	"github.com/tocata/tocata/internal/session"
	"github.com/tocata/tocata/internal/wire"
	"go.uber.org/zap"
)

const (
	sendBufferSize = 64
	writeTimeout   = 10 * time.Second
	maxRetryDelay  = 30 * time.Second
)

// Options configures the connection manager.
type Options struct {
	URL            string
	ConnectTimeout time.Duration
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
}

// OptionsFromConfig resolves manager options from the global config.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	url, err := cfg.ServerURL()
	if err != nil {
		return Options{}, err
	}
	return Options{
		URL:            url,
		ConnectTimeout: cfg.ConnectTimeout(),
		MaxAttempts:    cfg.ReconnectMaxAttempts,
		BaseDelay:      cfg.ReconnectBaseDelay(),
		MaxDelay:       maxRetryDelay,
	}, nil
}

// InboundEvent is the bus payload for every inbound transport event,
// published under "socket.<canonical event name>". Raw retains the full
// frame bytes for replay/debug.
type InboundEvent struct {
	Name string
	Evt  wire.Inbound
	Raw  []byte
}

// connSession is one live transport connection. A fresh session (with a
// fresh transport id) is created on every successful dial, so goroutines of
// a torn-down connection can never touch its successor.
type connSession struct {
	id   string
	gen  int
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Manager owns the single transport connection for one authenticated
// identity: dial, register handshake, bounded reconnect with backoff, and
// the multiplexed inbound event stream on the bus. Exactly one Manager
// exists per process; consumers subscribe to the bus and never open their
// own connections.
type Manager struct {
	opts    Options
	bus     *bus.Bus
	logger  *zap.Logger
	machine *Machine

	mu       sync.Mutex
	identity string
	active   bool // a connection is wanted (Connect called, no Disconnect yet)
	gen      int  // bumped per Connect; invalidates in-flight dials and retries
	sess     *connSession
	attempt  int
	retry    *time.Timer
	lastErr  error
}

// NewManager creates a connection manager. Connect must be called to open
// the transport.
func NewManager(opts Options, b *bus.Bus, machine *Machine, logger *zap.Logger) *Manager {
	return &Manager{
		opts:    opts,
		bus:     b,
		logger:  logger,
		machine: machine,
	}
}

// Connect opens the transport for the given identity and registers it.
// Idempotent for the same identity; a different identity supersedes and
// disposes the prior connection first. Returns synchronously after
// validation; progress is surfaced as connection state on the bus.
func (m *Manager) Connect(identity string) error {
	if err := session.ValidateIdentity(identity); err != nil {
		return err
	}

	m.mu.Lock()
	if m.active && m.identity == identity {
		m.mu.Unlock()
		return nil
	}
	m.teardownLocked()
	m.identity = identity
	m.active = true
	m.gen++
	gen := m.gen
	m.attempt = 0
	m.lastErr = nil
	m.mu.Unlock()

	m.logger.Info("connecting", zap.String("url", m.opts.URL))
	go m.dial(gen)
	return nil
}

// Disconnect closes the transport, cancels any pending reconnect, and moves
// to disconnected. Must be called on logout and on identity change.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.teardownLocked()
	m.mu.Unlock()

	_ = m.machine.Transition(Disconnected)
	m.logger.Info("disconnected")
}

// Send queues an outbound frame. Non-blocking best-effort: returns
// ErrNotConnected when the transport is down and ErrSendBufferFull when the
// write pump is saturated. Callers with fire-and-forget semantics ignore
// the error.
func (m *Manager) Send(frame []byte) error {
	m.mu.Lock()
	sess := m.sess
	m.mu.Unlock()

	if sess == nil {
		return ErrNotConnected
	}
	select {
	case sess.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	return m.machine.Current()
}

// Identity returns the identity the connection is bound to.
func (m *Manager) Identity() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// TransportID returns the opaque id of the live transport, or "" when down.
func (m *Manager) TransportID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return ""
	}
	return m.sess.id
}

// ReconnectAttempt returns the current failed-attempt count.
func (m *Manager) ReconnectAttempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// LastError returns the most recent transport error.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// teardownLocked cancels retries and closes the live connection.
// Callers hold m.mu.
func (m *Manager) teardownLocked() {
	m.active = false
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	if m.sess != nil {
		_ = m.sess.conn.Close()
		m.sess = nil
	}
	m.attempt = 0
}

// dial runs one connection attempt for the given generation. A stale
// generation aborts at every step, so a Connect that supersedes an in-flight
// dial can never end up with two live transports or a transport bound to
// the old identity.
func (m *Manager) dial(gen int) {
	m.mu.Lock()
	if !m.active || m.gen != gen {
		m.mu.Unlock()
		return
	}
	identity := m.identity
	m.mu.Unlock()

	_ = m.machine.Transition(Connecting)

	dialer := websocket.Dialer{HandshakeTimeout: m.opts.ConnectTimeout}
	conn, _, err := dialer.Dial(m.opts.URL, nil)
	if err != nil {
		m.connFailed(gen, err)
		return
	}

	m.mu.Lock()
	stale := !m.active || m.gen != gen
	m.mu.Unlock()
	if stale {
		// Superseded while dialing; never register the stale identity.
		_ = conn.Close()
		return
	}

	_ = m.machine.Transition(Connected)
	_ = m.machine.Transition(Authenticating)

	// Bind the connection to the identity before anything else flows.
	reg, err := wire.Register(identity)
	if err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err = conn.WriteMessage(websocket.TextMessage, reg)
	}
	if err != nil {
		_ = conn.Close()
		m.connFailed(gen, err)
		return
	}

	sess := &connSession{
		id:   uuid.NewString(),
		gen:  gen,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}

	m.mu.Lock()
	if !m.active || m.gen != gen {
		// Disconnected or superseded while registering.
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	if m.sess != nil {
		_ = m.sess.conn.Close()
	}
	m.sess = sess
	m.attempt = 0
	m.lastErr = nil
	m.mu.Unlock()

	_ = m.machine.Transition(Ready)
	m.logger.Info("registered", zap.String("transport_id", sess.id))

	go m.writePump(sess)
	go m.readLoop(sess)
}

// connFailed records a failed connection attempt and either schedules the
// next one or, with the attempt budget exhausted, surfaces error state.
// The caller then decides whether to retry manually via Connect.
func (m *Manager) connFailed(gen int, err error) {
	m.mu.Lock()
	if !m.active || m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.lastErr = err
	m.attempt++
	attempt := m.attempt

	if attempt >= m.opts.MaxAttempts {
		m.active = false
		m.mu.Unlock()

		m.logger.Error("reconnect attempts exhausted", zap.Int("attempts", attempt), zap.Error(err))
		_ = m.machine.Transition(Error)
		m.bus.Publish(bus.Event{
			Kind:      "conn.error",
			Timestamp: time.Now(),
			Payload:   &ConnectivityError{Attempts: attempt, Last: err},
		})
		return
	}

	delay := m.backoff(attempt)
	m.retry = time.AfterFunc(delay, func() { m.dial(gen) })
	m.mu.Unlock()

	m.logger.Warn("connection attempt failed, retrying",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
		zap.Error(err))
}

// backoff doubles the base delay per failed attempt, capped at MaxDelay.
func (m *Manager) backoff(attempt int) time.Duration {
	delay := m.opts.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.opts.MaxDelay {
			return m.opts.MaxDelay
		}
	}
	return delay
}

func (m *Manager) writePump(sess *connSession) {
	for {
		select {
		case frame := <-sess.send:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := sess.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				// The read loop observes the broken connection and drives
				// the reconnect; nothing more to do here.
				m.logger.Warn("write failed", zap.Error(err))
				return
			}
		case <-sess.done:
			return
		}
	}
}

// readLoop is the single consumer of the transport. Every inbound frame is
// classified and published on the bus in delivery order; subscribers filter
// by kind instead of opening their own connections.
func (m *Manager) readLoop(sess *connSession) {
	defer close(sess.done)

	for {
		_, raw, err := sess.conn.ReadMessage()
		if err != nil {
			m.readFailed(sess, err)
			return
		}

		frame, err := wire.Decode(raw)
		if err != nil {
			m.logger.Warn("undecodable frame", zap.Error(err))
			continue
		}

		evt := wire.Parse(frame)
		if ae, ok := evt.(wire.AuthError); ok {
			m.authRejected(sess, ae)
			return
		}

		m.bus.Publish(bus.Event{
			Kind:      "socket." + canonicalName(evt, frame.Event),
			Timestamp: time.Now(),
			Payload:   InboundEvent{Name: frame.Event, Evt: evt, Raw: raw},
		})
	}
}

func (m *Manager) readFailed(sess *connSession, err error) {
	_ = sess.conn.Close()

	m.mu.Lock()
	deliberate := !m.active || m.sess != sess
	if m.sess == sess {
		m.sess = nil
	}
	m.mu.Unlock()

	if deliberate {
		return
	}

	m.logger.Warn("connection lost", zap.Error(err))
	_ = m.machine.Transition(Connecting)
	m.connFailed(sess.gen, err)
}

// authRejected handles a server-side register rejection: surfaced
// immediately, never retried automatically.
func (m *Manager) authRejected(sess *connSession, ae wire.AuthError) {
	_ = sess.conn.Close()

	m.mu.Lock()
	identity := m.identity
	m.active = false
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	if m.sess == sess {
		m.sess = nil
	}
	m.mu.Unlock()

	authErr := &AuthenticationError{Identity: identity, Reason: ae.Reason}
	m.mu.Lock()
	m.lastErr = authErr
	m.mu.Unlock()

	m.logger.Error("registration rejected", zap.String("reason", ae.Reason))
	_ = m.machine.Transition(Error)
	m.bus.Publish(bus.Event{
		Kind:      "conn.error",
		Timestamp: time.Now(),
		Payload:   authErr,
	})
}

// canonicalName maps a typed inbound event to its canonical wire name, so
// bus kinds are stable even when the server uses a legacy alias.
func canonicalName(evt wire.Inbound, rawName string) string {
	switch evt.(type) {
	case wire.MusicianFound:
		return wire.EvtMusicianFound
	case wire.MusicianNotFound:
		return wire.EvtMusicianNotFound
	case wire.NewEventRequest:
		return wire.EvtNewEventRequest
	case wire.MusicianAccepted:
		return wire.EvtMusicianAccepted
	case wire.RequestCancelled:
		return wire.EvtRequestCancelled
	case wire.RequestCancelledByMusician:
		return wire.EvtRequestCancelledByMus
	case wire.RequestDeleted:
		return wire.EvtRequestDeleted
	case wire.Notice:
		return wire.EvtNotification
	default:
		return rawName
	}
}
