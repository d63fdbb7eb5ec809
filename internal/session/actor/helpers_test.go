package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/agent-ops/relay/internal/eventbus"
	"github.com/agent-ops/relay/internal/websocket"
)

// fakeBus records published events in order.
type fakeBus struct {
	mu     sync.Mutex
	users  []string
	events []eventbus.Event
}

func (b *fakeBus) Publish(userID string, event eventbus.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users = append(b.users, userID)
	b.events = append(b.events, event)
}

func (b *fakeBus) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, event := range b.events {
		out[i] = event.Type
	}
	return out
}

func (b *fakeBus) has(eventType string) bool {
	for _, t := range b.types() {
		if t == eventType {
			return true
		}
	}
	return false
}

// fakeClock is a mutable clock safe for the alarm goroutine.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.UnixMilli(1_755_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// newSeqIDs returns a deterministic id generator (id-1, id-2, ...).
func newSeqIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

// newTestActor builds an actor on a temp database with a pinned clock.
func newTestActor(t *testing.T, cfg Config) (*Actor, *fakeBus, *fakeClock) {
	t.Helper()
	bus := &fakeBus{}
	clock := newFakeClock()
	a, err := newActor("sess-1", filepath.Join(t.TempDir(), "sess-1.db"), cfg, bus, clock.Now, newSeqIDs())
	require.NoError(t, err)
	t.Cleanup(a.shutdown)
	return a, bus, clock
}

// newTickingActor builds an actor on the wall clock, for tests that need the
// expiry alarm to really fire.
func newTickingActor(t *testing.T, cfg Config) (*Actor, *fakeBus) {
	t.Helper()
	bus := &fakeBus{}
	a, err := newActor("sess-1", filepath.Join(t.TempDir(), "sess-1.db"), cfg, bus, time.Now, newSeqIDs())
	require.NoError(t, err)
	t.Cleanup(a.shutdown)
	return a, bus
}

// startSession starts the session with a fixed identity and runner token.
func startSession(t *testing.T, a *Actor) {
	t.Helper()
	_, err := a.Start(context.Background(), StartParams{
		UserID:      "u1",
		Workspace:   "acme/api",
		RunnerToken: "runner-token",
	})
	require.NoError(t, err)
}

// socketPair upgrades one real websocket and returns the server-side wrapper
// plus the raw peer end for frame assertions.
func socketPair(t *testing.T, role websocket.Role, userID string) (*websocket.Conn, *gws.Conn) {
	t.Helper()
	conns := make(chan *gws.Conn, 1)
	upgrader := gws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- ws
	}))
	t.Cleanup(srv.Close)

	peer, resp, err := gws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { peer.Close() })

	conn := websocket.NewConn(uuid.NewString(), role, userID, <-conns)
	t.Cleanup(conn.Close)
	return conn, peer
}

// readFrame reads the next frame from the raw peer end.
func readFrame(t *testing.T, peer *gws.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := peer.ReadMessage()
	require.NoError(t, err)
	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

// readFrameOfType reads frames until one of the wanted type arrives,
// skipping interleaved broadcasts.
func readFrameOfType(t *testing.T, peer *gws.Conn, frameType string) map[string]interface{} {
	t.Helper()
	for i := 0; i < 20; i++ {
		frame := readFrame(t, peer)
		if frame["type"] == frameType {
			return frame
		}
	}
	t.Fatalf("no %q frame arrived", frameType)
	return nil
}

// collectFrames drains peer frames for the given window. Must be the last
// read on the peer; the expired deadline poisons the connection.
func collectFrames(t *testing.T, peer *gws.Conn, window time.Duration) []map[string]interface{} {
	t.Helper()
	var frames []map[string]interface{}
	if err := peer.SetReadDeadline(time.Now().Add(window)); err != nil {
		return frames
	}
	for {
		_, data, err := peer.ReadMessage()
		if err != nil {
			return frames
		}
		var frame map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &frame))
		frames = append(frames, frame)
	}
}
