package actor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agent-ops/relay/internal/eventbus"
	"github.com/agent-ops/relay/internal/models"
	"github.com/agent-ops/relay/internal/websocket"
	"github.com/agent-ops/relay/internal/wire"
)

func TestSubmitPromptQueuesWithoutRunner(t *testing.T) {
	a, bus, _ := newTestActor(t, Config{})
	ctx := context.Background()
	startSession(t, a)

	promptID, queued, err := a.SubmitPrompt(ctx, "hello")
	require.NoError(t, err)
	require.True(t, queued)
	require.NotEmpty(t, promptID)

	// The user turn landed in the ledger.
	msgs, err := a.queries.ListMessages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, models.RoleUser, msgs[0].Role)
	require.Equal(t, "hello", msgs[0].Content)

	depth, err := a.queries.CountQueuedPrompts(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, depth)
	require.True(t, bus.has(eventbus.EventPromptQueued))
}

func TestSubmitPromptDirectDispatchWhenRunnerIdle(t *testing.T) {
	a, _, _ := newTestActor(t, Config{})
	ctx := context.Background()
	startSession(t, a)

	runnerConn, runnerPeer := socketPair(t, websocket.RoleRunner, "")
	require.NoError(t, a.AttachRunner(ctx, runnerConn))

	promptID, queued, err := a.SubmitPrompt(ctx, "hello")
	require.NoError(t, err)
	require.False(t, queued)

	frame := readFrameOfType(t, runnerPeer, "prompt")
	require.Equal(t, "hello", frame["content"])
	require.Equal(t, promptID, frame["messageId"])

	// The correlation id is the ledger id of the user turn.
	msgs, err := a.queries.ListMessages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, promptID, msgs[0].ID)

	// Direct dispatch never touches the queue.
	depth, err := a.queries.CountQueuedPrompts(ctx)
	require.NoError(t, err)
	require.Zero(t, depth)

	busy, err := a.runnerBusy(ctx)
	require.NoError(t, err)
	require.True(t, busy)
}

func TestSubmitPromptQueuesWhileRunnerBusy(t *testing.T) {
	a, _, _ := newTestActor(t, Config{})
	ctx := context.Background()
	startSession(t, a)

	runnerConn, runnerPeer := socketPair(t, websocket.RoleRunner, "")
	require.NoError(t, a.AttachRunner(ctx, runnerConn))

	_, queued, err := a.SubmitPrompt(ctx, "first")
	require.NoError(t, err)
	require.False(t, queued)
	readFrameOfType(t, runnerPeer, "prompt")

	_, queued, err = a.SubmitPrompt(ctx, "second")
	require.NoError(t, err)
	require.True(t, queued)
}

func TestSubmitPromptRejectsWhenQueueFull(t *testing.T) {
	a, _, _ := newTestActor(t, Config{MaxQueueDepth: 2})
	ctx := context.Background()
	startSession(t, a)

	for _, content := range []string{"p1", "p2"} {
		_, _, err := a.SubmitPrompt(ctx, content)
		require.NoError(t, err)
	}

	_, _, err := a.SubmitPrompt(ctx, "p3")
	require.ErrorIs(t, err, ErrQueueFull)

	// The rejected prompt still left its user message in the ledger.
	count, err := a.queries.CountMessages(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, count)
}

func TestCompleteDispatchesStrictFIFO(t *testing.T) {
	a, _, _ := newTestActor(t, Config{})
	ctx := context.Background()
	startSession(t, a)

	for _, content := range []string{"p1", "p2", "p3"} {
		_, queued, err := a.SubmitPrompt(ctx, content)
		require.NoError(t, err)
		require.True(t, queued)
	}

	runnerConn, runnerPeer := socketPair(t, websocket.RoleRunner, "")
	require.NoError(t, a.AttachRunner(ctx, runnerConn))

	for _, want := range []string{"p1", "p2", "p3"} {
		frame := readFrameOfType(t, runnerPeer, "prompt")
		require.Equal(t, want, frame["content"])

		// At most one prompt is in flight at any instant.
		processing, err := a.queries.HasProcessingPrompt(ctx)
		require.NoError(t, err)
		require.True(t, processing)

		a.HandleRunnerFrame(ctx, runnerConn, []byte(`{"type":"complete"}`))
	}

	busy, err := a.runnerBusy(ctx)
	require.NoError(t, err)
	require.False(t, busy)

	depth, err := a.queries.CountQueuedPrompts(ctx)
	require.NoError(t, err)
	require.Zero(t, depth)
}

func TestRunnerDisconnectRequeuesProcessingPrompt(t *testing.T) {
	a, _, _ := newTestActor(t, Config{})
	ctx := context.Background()
	startSession(t, a)

	_, _, err := a.SubmitPrompt(ctx, "p1")
	require.NoError(t, err)

	runnerConn, runnerPeer := socketPair(t, websocket.RoleRunner, "")
	require.NoError(t, a.AttachRunner(ctx, runnerConn))
	readFrameOfType(t, runnerPeer, "prompt")

	// The socket dies mid-prompt.
	a.DetachRunner(ctx, runnerConn)

	processing, err := a.queries.HasProcessingPrompt(ctx)
	require.NoError(t, err)
	require.False(t, processing)

	depth, err := a.queries.CountQueuedPrompts(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, depth)

	busy, err := a.runnerBusy(ctx)
	require.NoError(t, err)
	require.False(t, busy)

	// Reconnection redispatches the same prompt.
	nextConn, nextPeer := socketPair(t, websocket.RoleRunner, "")
	require.NoError(t, a.AttachRunner(ctx, nextConn))
	frame := readFrameOfType(t, nextPeer, "prompt")
	require.Equal(t, "p1", frame["content"])
}

func TestResultAndCompleteRoundTrip(t *testing.T) {
	a, bus, _ := newTestActor(t, Config{})
	ctx := context.Background()
	startSession(t, a)

	runnerConn, runnerPeer := socketPair(t, websocket.RoleRunner, "")
	require.NoError(t, a.AttachRunner(ctx, runnerConn))

	clientConn, clientPeer := socketPair(t, websocket.RoleClient, "u1")
	require.NoError(t, a.AttachClient(ctx, clientConn))
	readFrameOfType(t, clientPeer, wire.ServerFrameInit)

	_, _, err := a.SubmitPrompt(ctx, "add tests")
	require.NoError(t, err)
	readFrameOfType(t, runnerPeer, "prompt")

	a.HandleRunnerFrame(ctx, runnerConn, []byte(`{"type":"result","content":"done"}`))
	a.HandleRunnerFrame(ctx, runnerConn, []byte(`{"type":"complete"}`))

	// Clients saw the user turn then the assistant turn, ledger order.
	userFrame := readFrameOfType(t, clientPeer, wire.ServerFrameMessage)
	require.Equal(t, "add tests", userFrame["message"].(map[string]interface{})["content"])
	resultFrame := readFrameOfType(t, clientPeer, wire.ServerFrameMessage)
	require.Equal(t, "done", resultFrame["message"].(map[string]interface{})["content"])

	msgs, err := a.queries.ListMessages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, models.RoleAssistant, msgs[1].Role)
	require.True(t, bus.has(eventbus.EventMessageCreated))
}
