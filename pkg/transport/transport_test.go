package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tinyland-inc/dlbridge/pkg/directline"
)

// streamServer is a websocket test server that pushes canned frames to
// each connecting client.
type streamServer struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newStreamServer(t *testing.T, frames ...string) *streamServer {
	t.Helper()
	ss := &streamServer{t: t}
	ss.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := ss.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		ss.mu.Lock()
		ss.conns = append(ss.conns, conn)
		ss.mu.Unlock()
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ss.server.Close)
	return ss
}

func (ss *streamServer) url() string {
	return "ws" + strings.TrimPrefix(ss.server.URL, "http")
}

func (ss *streamServer) closeConns() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	for _, c := range ss.conns {
		_ = c.Close()
	}
	ss.conns = nil
}

func (ss *streamServer) connCount() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.conns)
}

type recorder struct {
	mu         sync.Mutex
	activities []directline.Activity
	closed     []string
}

func (r *recorder) onActivity(_ string, a directline.Activity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activities = append(r.activities, a)
}

func (r *recorder) onClosed(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, conversationID)
}

func (r *recorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.activities))
	for i, a := range r.activities {
		out[i] = a.Text
	}
	return out
}

func (r *recorder) closedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.closed)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func newManager(rec *recorder) *Manager {
	return NewManager(Options{
		BotID:       "bot-1",
		BotName:     "relay-bot",
		DialTimeout: 2 * time.Second,
		OnActivity:  rec.onActivity,
		OnClosed:    rec.onClosed,
		Logger:      zerolog.Nop(),
	})
}

func TestOpen_DispatchesInOrder(t *testing.T) {
	frames := []string{
		`{"activities":[{"type":"message","from":{"id":"u1"},"text":"first"},{"type":"message","from":{"id":"u1"},"text":"second"}]}`,
		`{"activities":[{"type":"message","from":{"id":"u1"},"text":"third"}]}`,
	}
	ss := newStreamServer(t, frames...)
	rec := &recorder{}
	m := newManager(rec)

	if err := m.Open(context.Background(), "conv-1", ss.url()); err != nil {
		t.Fatalf("open: %v", err)
	}
	waitFor(t, func() bool { return len(rec.texts()) == 3 }, "activities not dispatched")

	got := rec.texts()
	for i, want := range []string{"first", "second", "third"} {
		if got[i] != want {
			t.Errorf("activity %d = %q, want %q", i, got[i], want)
		}
	}
}

func TestOpen_NoOpWhenAlreadyOpen(t *testing.T) {
	ss := newStreamServer(t)
	rec := &recorder{}
	m := newManager(rec)

	ctx := context.Background()
	if err := m.Open(ctx, "conv-1", ss.url()); err != nil {
		t.Fatalf("first open: %v", err)
	}
	waitFor(t, func() bool { return ss.connCount() == 1 }, "first connection not established")

	if err := m.Open(ctx, "conv-1", ss.url()); err != nil {
		t.Fatalf("second open: %v", err)
	}
	// Give a would-be second dial time to land.
	time.Sleep(50 * time.Millisecond)
	if ss.connCount() != 1 {
		t.Fatalf("second open dialed again: %d connections", ss.connCount())
	}
}

func TestOpen_ConnectFailedEvicts(t *testing.T) {
	rec := &recorder{}
	m := NewManager(Options{
		DialTimeout: 200 * time.Millisecond,
		OnActivity:  rec.onActivity,
		OnClosed:    rec.onClosed,
		Logger:      zerolog.Nop(),
	})

	err := m.Open(context.Background(), "conv-1", "ws://127.0.0.1:1/stream")
	if !errors.Is(err, ErrConnectFailed) {
		t.Fatalf("expected ErrConnectFailed, got %v", err)
	}
	if m.IsOpen("conv-1") {
		t.Fatal("failed session must be evicted")
	}
}

// A socket close transitions the session out of Open and evicts its
// entry, so the next resolve can renew and reopen.
func TestSocketClose_EvictsSession(t *testing.T) {
	ss := newStreamServer(t)
	rec := &recorder{}
	m := newManager(rec)

	if err := m.Open(context.Background(), "conv-1", ss.url()); err != nil {
		t.Fatalf("open: %v", err)
	}
	waitFor(t, func() bool { return m.IsOpen("conv-1") }, "session not open")

	ss.closeConns()
	waitFor(t, func() bool { return !m.IsOpen("conv-1") }, "session still open after socket close")
	waitFor(t, func() bool { return rec.closedCount() == 1 }, "OnClosed not invoked")

	// Reopening after eviction works with a fresh URL.
	if err := m.Open(context.Background(), "conv-1", ss.url()); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	waitFor(t, func() bool { return m.IsOpen("conv-1") }, "session not reopened")
}

func TestDispatch_FiltersBotEcho(t *testing.T) {
	frames := []string{
		`{"activities":[
			{"type":"message","from":{"id":"bot-1","name":"other"},"text":"own id"},
			{"type":"message","from":{"name":"relay-bot"},"text":"own name, no id"},
			{"type":"message","from":{"id":"u2","name":"relay-bot"},"text":"name collision, different id"},
			{"type":"message","from":{"id":"u3"},"text":"genuine"}
		]}`,
	}
	ss := newStreamServer(t, frames...)
	rec := &recorder{}
	m := newManager(rec)

	if err := m.Open(context.Background(), "conv-1", ss.url()); err != nil {
		t.Fatalf("open: %v", err)
	}
	waitFor(t, func() bool { return len(rec.texts()) == 2 }, "expected two surviving activities")

	got := rec.texts()
	// Ids are authoritative: a name collision with a distinct id is a
	// real user, while the bridge's own id is filtered even under
	// another name.
	if got[0] != "name collision, different id" || got[1] != "genuine" {
		t.Errorf("surviving activities = %v", got)
	}
}

func TestCloseAll(t *testing.T) {
	ss := newStreamServer(t)
	rec := &recorder{}
	m := newManager(rec)

	ctx := context.Background()
	for _, id := range []string{"conv-1", "conv-2"} {
		if err := m.Open(ctx, id, ss.url()); err != nil {
			t.Fatalf("open %s: %v", id, err)
		}
	}
	waitFor(t, func() bool { return m.IsOpen("conv-1") && m.IsOpen("conv-2") }, "sessions not open")

	m.CloseAll()
	waitFor(t, func() bool { return !m.IsOpen("conv-1") && !m.IsOpen("conv-2") }, "sessions still open")
	waitFor(t, func() bool { return rec.closedCount() == 2 }, "OnClosed not invoked for both")
}
