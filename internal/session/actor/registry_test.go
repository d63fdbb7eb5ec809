package actor

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agent-ops/relay/internal/models"
	"github.com/agent-ops/relay/internal/websocket"
	"github.com/agent-ops/relay/internal/wire"
)

func newTestRegistry(t *testing.T) (*Registry, *fakeBus) {
	t.Helper()
	bus := &fakeBus{}
	r := NewRegistry(t.TempDir(), Config{}, bus, time.Now, newSeqIDs())
	t.Cleanup(r.Shutdown)
	return r, bus
}

func TestRegistryValidatesSessionIDs(t *testing.T) {
	r, _ := newTestRegistry(t)

	for _, id := range []string{"", "a/b", "../../etc/passwd", "white space", "sess.db"} {
		_, err := r.GetOrCreate(id)
		require.ErrorIs(t, err, ErrInvalidSessionID, "id %q", id)
	}

	_, err := r.GetOrCreate("Sess_01-prod")
	require.NoError(t, err)
}

func TestRegistryGetNeverStartedSession(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Get("ghost")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistryReopensAfterSweep(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	a, err := r.GetOrCreate("s1")
	require.NoError(t, err)
	_, err = a.Start(ctx, StartParams{UserID: "u1", Workspace: "acme/api"})
	require.NoError(t, err)

	require.Equal(t, 1, r.Sweep(0))
	require.True(t, a.isClosed())

	// Durable state survives hibernation.
	reopened, err := r.Get("s1")
	require.NoError(t, err)
	status, err := reopened.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusRunning, status.Status)
	require.Equal(t, "acme/api", status.Workspace)
}

func TestRegistrySweepSkipsBusyActors(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	withSocket, err := r.GetOrCreate("with-socket")
	require.NoError(t, err)
	_, err = withSocket.Start(ctx, StartParams{UserID: "u1"})
	require.NoError(t, err)
	conn, _ := socketPair(t, websocket.RoleClient, "u1")
	require.NoError(t, withSocket.AttachClient(ctx, conn))

	withAlarm, err := r.GetOrCreate("with-alarm")
	require.NoError(t, err)
	_, err = withAlarm.Start(ctx, StartParams{UserID: "u1", RunnerToken: "runner-token"})
	require.NoError(t, err)
	runnerConn, _ := socketPair(t, websocket.RoleRunner, "")
	require.NoError(t, withAlarm.AttachRunner(ctx, runnerConn))
	withAlarm.HandleRunnerFrame(ctx, runnerConn, []byte(`{"type":"question","id":"q1","text":"proceed?"}`))
	withAlarm.DetachRunner(ctx, runnerConn)
	runnerConn.Close()

	require.Zero(t, r.Sweep(0))
	require.False(t, withSocket.isClosed())
	require.False(t, withAlarm.isClosed())
}

func TestRegistryWipeDestroysEverything(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	a, err := r.GetOrCreate("s1")
	require.NoError(t, err)
	_, err = a.Start(ctx, StartParams{UserID: "u1"})
	require.NoError(t, err)
	path := r.dbPath("s1")
	_, statErr := os.Stat(path)
	require.NoError(t, statErr)

	require.NoError(t, r.Wipe(ctx, "s1"))
	_, statErr = os.Stat(path)
	require.True(t, os.IsNotExist(statErr))

	_, err = r.Get("s1")
	require.ErrorIs(t, err, ErrSessionNotFound)

	require.ErrorIs(t, r.Wipe(ctx, "s1"), ErrSessionNotFound)
}

// The queued-prompt path end to end: no runner at submission time, then a
// runner connects and immediately receives the waiting prompt.
func TestQueuedPromptDispatchedOnRunnerConnect(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	a, err := r.GetOrCreate("s1")
	require.NoError(t, err)
	_, err = a.Start(ctx, StartParams{UserID: "u1", RunnerToken: "runner-token"})
	require.NoError(t, err)

	clientConn, clientPeer := socketPair(t, websocket.RoleClient, "u1")
	require.NoError(t, a.AttachClient(ctx, clientConn))
	readFrameOfType(t, clientPeer, wire.ServerFrameInit)

	_, queued, err := a.SubmitPrompt(ctx, "hello")
	require.NoError(t, err)
	require.True(t, queued)

	queuedFrame := readFrameOfType(t, clientPeer, wire.ServerFramePromptQueued)
	require.Equal(t, true, queuedFrame["promptQueued"])
	require.EqualValues(t, 1, queuedFrame["queuePosition"])

	require.NoError(t, a.AuthorizeRunner(ctx, "runner-token"))
	runnerConn, runnerPeer := socketPair(t, websocket.RoleRunner, "")
	require.NoError(t, a.AttachRunner(ctx, runnerConn))

	prompt := readFrameOfType(t, runnerPeer, "prompt")
	require.Equal(t, "hello", prompt["content"])

	busy, err := a.runnerBusy(ctx)
	require.NoError(t, err)
	require.True(t, busy)

	// Skip the submission-time status broadcast; the post-attach one shows
	// the runner online and busy.
	var status map[string]interface{}
	for i := 0; i < 5; i++ {
		status = readFrameOfType(t, clientPeer, wire.ServerFrameStatus)
		if status["runnerConnected"] == true {
			break
		}
	}
	require.Equal(t, true, status["runnerConnected"])
	require.Equal(t, true, status["runnerBusy"])
}
