// Package transport owns the per-conversation streaming connections.
// One session per conversation id; all mutation of the session table
// goes through Open, Close, and CloseAll.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tinyland-inc/dlbridge/pkg/directline"
)

// State is the lifecycle of one session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrConnectFailed means the streaming handshake did not complete; the
// caller should renew the stream URL before retrying.
var ErrConnectFailed = errors.New("transport: connect failed")

// Options configures a Manager.
type Options struct {
	// BotID filters echoed activities by stable identity.
	BotID string
	// BotName is the filtering fallback for activities with no from.id.
	BotName string
	// DialTimeout bounds each connect attempt.
	DialTimeout time.Duration
	// OnActivity receives inbound activities, already echo-filtered, in
	// the order the transport received them.
	OnActivity func(conversationID string, activity directline.Activity)
	// OnClosed is called after a session's entry has been evicted, on
	// clean close, error, or explicit teardown.
	OnClosed func(conversationID string)
	Logger   zerolog.Logger
	// Dialer overrides the websocket dialer, mainly for tests.
	Dialer *websocket.Dialer
}

type session struct {
	conversationID string
	state          State
	conn           *websocket.Conn
	closeOnce      sync.Once
}

// closeConn releases the socket exactly once, on whichever path gets
// there first.
func (s *session) closeConn() {
	s.closeOnce.Do(func() {
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

// Manager owns the session table.
type Manager struct {
	opts   Options
	dialer *websocket.Dialer
	log    zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

func NewManager(opts Options) *Manager {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 15 * time.Second
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Manager{
		opts:     opts,
		dialer:   dialer,
		log:      opts.Logger.With().Str("component", "transport").Logger(),
		sessions: make(map[string]*session),
	}
}

// Bind sets the dispatch targets when they cannot be known at
// construction time. Must be called before the first Open.
func (m *Manager) Bind(onActivity func(conversationID string, activity directline.Activity), onClosed func(conversationID string)) {
	m.opts.OnActivity = onActivity
	m.opts.OnClosed = onClosed
}

// IsOpen reports whether the conversation currently has an open or
// connecting session.
func (m *Manager) IsOpen(conversationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[conversationID]
	return ok && (s.state == StateOpen || s.state == StateConnecting)
}

// Open establishes the streaming connection for a conversation. It is a
// no-op when a session is already open. On handshake failure the entry
// is evicted so a later call can retry with a freshly renewed URL.
func (m *Manager) Open(ctx context.Context, conversationID, streamURL string) error {
	if conversationID == "" || streamURL == "" {
		return fmt.Errorf("%w: conversation id and stream url are required", ErrConnectFailed)
	}

	m.mu.Lock()
	if existing, ok := m.sessions[conversationID]; ok &&
		(existing.state == StateOpen || existing.state == StateConnecting) {
		m.mu.Unlock()
		return nil
	}
	s := &session{conversationID: conversationID, state: StateConnecting}
	m.sessions[conversationID] = s
	m.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, m.opts.DialTimeout)
	defer cancel()

	conn, _, err := m.dialer.DialContext(dialCtx, streamURL, nil)
	if err != nil {
		m.mu.Lock()
		s.state = StateFailed
		delete(m.sessions, conversationID)
		m.mu.Unlock()
		m.log.Warn().Str("conversation_id", conversationID).Err(err).Msg("stream connect failed")
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	m.mu.Lock()
	s.conn = conn
	s.state = StateOpen
	m.mu.Unlock()
	m.log.Info().Str("conversation_id", conversationID).Msg("stream connected")

	go m.readLoop(s)
	return nil
}

// readLoop is the only reader of a session's socket, which also gives
// per-conversation in-order dispatch.
func (m *Manager) readLoop(s *session) {
	defer m.teardown(s, StateClosed)

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.log.Warn().Str("conversation_id", s.conversationID).Err(err).Msg("stream read error")
				m.setState(s, StateFailed)
			} else {
				m.log.Info().Str("conversation_id", s.conversationID).Msg("stream closed")
			}
			return
		}
		if msgType != websocket.TextMessage || len(data) == 0 {
			continue
		}

		var frame directline.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			m.log.Warn().Str("conversation_id", s.conversationID).Err(err).Msg("unparseable stream frame, skipping")
			continue
		}
		m.dispatch(s.conversationID, frame)
	}
}

func (m *Manager) dispatch(conversationID string, frame directline.Frame) {
	for _, activity := range frame.Activities {
		if m.fromBridgeBot(activity) {
			// Echo of something this bridge posted; relaying it back
			// would loop.
			continue
		}
		if m.opts.OnActivity != nil {
			m.opts.OnActivity(conversationID, activity)
		}
	}
}

// fromBridgeBot matches the bridge's own protocol-side identity, by
// stable id when the activity carries one and by display name only as
// a fallback.
func (m *Manager) fromBridgeBot(activity directline.Activity) bool {
	if activity.From.ID != "" && m.opts.BotID != "" {
		return activity.From.ID == m.opts.BotID
	}
	return m.opts.BotName != "" && activity.From.Name == m.opts.BotName
}

func (m *Manager) setState(s *session, state State) {
	m.mu.Lock()
	s.state = state
	m.mu.Unlock()
}

// teardown closes the socket, evicts the entry, and notifies. Safe to
// call from any path; the socket closes exactly once.
func (m *Manager) teardown(s *session, fallback State) {
	s.closeConn()

	m.mu.Lock()
	if s.state == StateOpen || s.state == StateConnecting {
		s.state = fallback
	}
	// Evict only our own entry; a replacement session may already be
	// in the table.
	if current, ok := m.sessions[s.conversationID]; ok && current == s {
		delete(m.sessions, s.conversationID)
	}
	state := s.state
	m.mu.Unlock()

	m.log.Debug().
		Str("conversation_id", s.conversationID).
		Stringer("state", state).
		Msg("session evicted")
	if m.opts.OnClosed != nil {
		m.opts.OnClosed(s.conversationID)
	}
}

// Close tears down one conversation's session, if present.
func (m *Manager) Close(conversationID string) {
	m.mu.Lock()
	s, ok := m.sessions[conversationID]
	m.mu.Unlock()
	if ok {
		s.closeConn()
	}
}

// CloseAll tears down every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()
	for _, s := range all {
		s.closeConn()
	}
}
