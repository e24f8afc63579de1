// Package session maintains the client side of one websocket link to the
// chat backend: connect/handshake, the single-writer outbound path,
// heartbeats with ack tracking, and bounded-backoff reconnection. Decoded
// inbound envelopes fan out through the Dispatcher; application state never
// touches the socket directly.
package session

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/xexgm/chatlink/logger"
	"github.com/xexgm/chatlink/protocol"
	"github.com/xexgm/chatlink/tools/errs"
)

// Credentials identify the authenticated user behind a session.
type Credentials struct {
	UID   int64
	Token string
}

// Config tunes one Session. Zero values fall back to defaults via norm.
type Config struct {
	Endpoint string // websocket URL, e.g. ws://localhost:9999/ws

	DialTimeout          time.Duration // default 10s
	WriteWait            time.Duration // per-write deadline, default 10s
	HeartbeatInterval    time.Duration // default 30s
	HeartbeatTimeout     time.Duration // ack gap that forces a reconnect, default 2.5x interval
	ReconnectBase        time.Duration // backoff is base * attempt, default 3s
	MaxReconnectAttempts int           // default 5
	SendQueueSize        int           // default 256

	Clock  func() time.Time  // injectable for tests; nil => time.Now
	Dialer *websocket.Dialer // nil => websocket.DefaultDialer
}

func (c *Config) norm() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 2*c.HeartbeatInterval + c.HeartbeatInterval/2
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = 3 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
}

// Session owns one physical connection. Construct with New and dispose with
// Close; there is no package-level shared instance, so tests and multi-user
// processes run independent sessions side by side.
type Session struct {
	cfg  Config
	id   string
	disp *Dispatcher

	mu         sync.Mutex
	state      ConnState
	conn       *websocket.Conn
	sendCh     chan []byte
	writeStop  chan struct{}
	hbStop     chan struct{}
	gen        int // bumped per connection; stale pump callbacks are ignored
	creds      Credentials
	attempts   int
	retryTimer *time.Timer
	lastAck    time.Time
	closed     bool
	exhausted  bool
}

func New(cfg Config) *Session {
	cfg.norm()
	return &Session{
		cfg:   cfg,
		id:    uuid.NewString(),
		disp:  NewDispatcher(),
		state: StateIdle,
	}
}

// ID is the session's unique identifier, used in log lines.
func (s *Session) ID() string { return s.id }

// On subscribes a handler to session events. The returned func removes it.
func (s *Session) On(t EventType, h Handler) func() { return s.disp.On(t, h) }

// State returns the current connection state.
func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect dials the endpoint, sends the logical-connect envelope and starts
// the pumps. It returns once the session is Open, or with an ErrTransport
// when the dial or handshake fails. Connecting an already-open session is a
// no-op.
func (s *Session) Connect(ctx context.Context, creds Credentials) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errs.ErrNotConnected.WithDetail("session disposed")
	}
	if s.state == StateOpen {
		s.mu.Unlock()
		return nil
	}
	prev := s.state
	s.state = StateConnecting
	s.creds = creds
	s.mu.Unlock()

	if err := s.dial(ctx); err != nil {
		s.mu.Lock()
		if !s.closed && s.state == StateConnecting {
			s.state = prev
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// Send enqueues an envelope on the single outbound path. It fails fast with
// ErrNotConnected while the session is not Open; nothing is ever silently
// dropped.
func (s *Session) Send(env *protocol.Envelope) error {
	s.mu.Lock()
	if s.state != StateOpen {
		st := s.state
		s.mu.Unlock()
		return errs.ErrNotConnected.WithDetailf("state=%s", st)
	}
	ch := s.sendCh
	s.mu.Unlock()

	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	select {
	case ch <- data:
		return nil
	default:
		return errs.ErrTransport.WithDetail("send queue full")
	}
}

// Close cancels the heartbeat and any pending reconnect attempt, sends a
// best-effort disconnect envelope, and tears down the socket. The session
// always ends up Closed and cannot be reused.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.gen++
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	if s.hbStop != nil {
		close(s.hbStop)
		s.hbStop = nil
	}
	if s.writeStop != nil {
		close(s.writeStop)
		s.writeStop = nil
	}
	conn := s.conn
	s.conn = nil
	wasOpen := s.state == StateOpen
	s.state = StateClosed
	creds := s.creds
	s.mu.Unlock()

	if conn != nil {
		if wasOpen {
			if data, err := protocol.Encode(protocol.BuildDisconnect(creds.UID, creds.Token)); err == nil {
				_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
				_ = conn.WriteMessage(websocket.TextMessage, data)
			}
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(s.cfg.WriteWait))
		_ = conn.Close()
	}

	logger.Infof("[session %s] closed", s.id)
	s.disp.emit(Closed{Reason: "closed by client"})
	return nil
}

// dial performs one connection attempt with the stored credentials, shared
// by Connect and the reconnect path.
func (s *Session) dial(ctx context.Context) error {
	s.mu.Lock()
	creds := s.creds
	s.mu.Unlock()

	dctx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()

	endpoint := s.cfg.Endpoint + "?token=" + url.QueryEscape(creds.Token)
	conn, _, err := s.cfg.Dialer.DialContext(dctx, endpoint, nil)
	if err != nil {
		return errs.ErrTransport.WithDetailf("dial %s: %v", s.cfg.Endpoint, err)
	}

	// Announce the logical connection before anything else goes out.
	data, err := protocol.Encode(protocol.BuildConnect(creds.UID, creds.Token))
	if err != nil {
		_ = conn.Close()
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		_ = conn.Close()
		return errs.ErrTransport.WithDetailf("handshake: %v", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return errs.ErrNotConnected.WithDetail("session disposed")
	}
	s.gen++
	gen := s.gen
	s.conn = conn
	s.sendCh = make(chan []byte, s.cfg.SendQueueSize)
	s.writeStop = make(chan struct{})
	s.hbStop = make(chan struct{})
	s.state = StateOpen
	s.attempts = 0
	s.exhausted = false
	s.lastAck = s.cfg.Clock()
	sendCh, writeStop, hbStop := s.sendCh, s.writeStop, s.hbStop
	s.mu.Unlock()

	go s.readPump(conn, gen)
	go s.writePump(conn, sendCh, writeStop)
	go s.heartbeatLoop(gen, hbStop)

	logger.Infof("[session %s] connected to %s uid=%d", s.id, s.cfg.Endpoint, creds.UID)
	s.disp.emit(Opened{SessionID: s.id})
	return nil
}

func (s *Session) readPump(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.connLost(gen, err)
			return
		}
		env, derr := protocol.Decode(data)
		if derr != nil {
			// Malformed frames are dropped here, never dispatched.
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Warnf("[session %s] dropping frame: %v sample=%q", s.id, derr, sample)
			continue
		}
		s.handleInbound(env)
	}
}

func (s *Session) writePump(conn *websocket.Conn, ch <-chan []byte, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case data := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Warnf("[session %s] write: %v", s.id, err)
				s.disp.emit(ErrorEvent{Err: errs.ErrTransport.WithDetailf("write: %v", err)})
				// The read pump notices the dead socket and drives recovery.
				_ = conn.Close()
				return
			}
		}
	}
}

// handleInbound routes one decoded envelope by the canonical table.
// Handlers run synchronously on the read goroutine, so application state
// observes envelopes in arrival order.
func (s *Session) handleInbound(env *protocol.Envelope) {
	switch env.Namespace {
	case protocol.NamespaceLink:
		switch env.Type {
		case protocol.LinkConnect:
			s.disp.emit(LinkConnected{Env: env})
		case protocol.LinkDisconnect:
			s.disp.emit(LinkNotice{Env: env})
		case protocol.LinkHeartbeat:
			s.mu.Lock()
			s.lastAck = s.cfg.Clock()
			s.mu.Unlock()
			s.disp.emit(HeartbeatAck{Env: env})
		}
	case protocol.NamespaceRoom:
		switch env.Type {
		case protocol.RoomJoin:
			s.disp.emit(RoomJoined{Env: env})
		case protocol.RoomMessage:
			s.disp.emit(RoomMessage{Env: env})
		case protocol.RoomLeave:
			s.disp.emit(RoomLeft{Env: env})
		}
	}
}

// connLost handles an unexpected read failure. Stale generations are
// ignored so a deliberate Close or an already-replaced connection cannot
// race a reconnect.
func (s *Session) connLost(gen int, cause error) {
	s.mu.Lock()
	if s.closed || gen != s.gen || s.state != StateOpen {
		s.mu.Unlock()
		return
	}
	if s.hbStop != nil {
		close(s.hbStop)
		s.hbStop = nil
	}
	if s.writeStop != nil {
		close(s.writeStop)
		s.writeStop = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.state = StateReconnecting
	s.mu.Unlock()

	logger.Warnf("[session %s] connection lost: %v", s.id, cause)
	s.disp.emit(Closed{Reason: cause.Error(), Unexpected: true})
	s.scheduleReconnect()
}

func (s *Session) scheduleReconnect() {
	s.mu.Lock()
	if s.closed || s.state != StateReconnecting {
		s.mu.Unlock()
		return
	}
	s.attempts++
	attempt := s.attempts
	if attempt > s.cfg.MaxReconnectAttempts {
		s.state = StateClosed
		fired := s.exhausted
		s.exhausted = true
		s.mu.Unlock()
		if !fired {
			logger.Errorf("[session %s] reconnect attempts exhausted", s.id)
			s.disp.emit(ReconnectExhausted{Attempts: attempt - 1})
		}
		return
	}
	delay := s.cfg.ReconnectBase * time.Duration(attempt)
	s.retryTimer = time.AfterFunc(delay, s.retry)
	s.mu.Unlock()
	logger.Infof("[session %s] reconnect attempt %d/%d in %s",
		s.id, attempt, s.cfg.MaxReconnectAttempts, delay)
}

func (s *Session) retry() {
	s.mu.Lock()
	if s.closed || s.state != StateReconnecting {
		s.mu.Unlock()
		return
	}
	s.state = StateConnecting
	s.mu.Unlock()

	if err := s.dial(context.Background()); err != nil {
		logger.Warnf("[session %s] reconnect failed: %v", s.id, err)
		s.disp.emit(ErrorEvent{Err: err})
		s.mu.Lock()
		if !s.closed && s.state == StateConnecting {
			s.state = StateReconnecting
		}
		s.mu.Unlock()
		s.scheduleReconnect()
	}
}

// heartbeatLoop sends a ping envelope each interval while the connection is
// up and force-closes the socket when the server stops acknowledging, so a
// half-open connection is detected independently of transport errors.
func (s *Session) heartbeatLoop(gen int, stop <-chan struct{}) {
	t := time.NewTicker(s.cfg.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s.mu.Lock()
			last := s.lastAck
			creds := s.creds
			s.mu.Unlock()
			if s.cfg.Clock().Sub(last) > s.cfg.HeartbeatTimeout {
				logger.Warnf("[session %s] heartbeat ack overdue, forcing reconnect", s.id)
				s.forceReconnect(gen)
				return
			}
			if err := s.Send(protocol.BuildHeartbeat(creds.UID, creds.Token)); err != nil {
				if errors.Is(err, errs.ErrNotConnected) {
					return
				}
				// A full queue is transient; the ack-gap check still guards
				// a dead connection, so keep monitoring.
				logger.Warnf("[session %s] heartbeat enqueue: %v", s.id, err)
			}
		}
	}
}

func (s *Session) forceReconnect(gen int) {
	s.mu.Lock()
	if s.closed || gen != s.gen || s.conn == nil {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.mu.Unlock()
	// Killing the socket makes the read pump exit, which drives the normal
	// reconnect path.
	_ = conn.Close()
}
