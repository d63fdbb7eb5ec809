package actor

import (
	"context"
	"crypto/subtle"

	"github.com/agent-ops/relay/internal/eventbus"
	"github.com/agent-ops/relay/internal/metrics"
	"github.com/agent-ops/relay/internal/models"
	"github.com/agent-ops/relay/internal/websocket"
	"github.com/agent-ops/relay/internal/wire"
	"github.com/agent-ops/relay/pkg/logger"
)

// AuthorizeRunner checks a presented token against the persisted runner
// token. Called before the upgrade so a mismatch can still be a plain 401.
func (a *Actor) AuthorizeRunner(ctx context.Context, token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrActorClosed
	}

	expected, ok, err := a.getState(ctx, models.StateKeyRunnerToken)
	if err != nil {
		return err
	}
	if !ok || subtle.ConstantTimeCompare([]byte(expected), []byte(token)) != 1 {
		return ErrRunnerTokenMismatch
	}
	return nil
}

// AttachClient registers a client socket, records its user, sends the
// consolidated init snapshot on that socket only, and announces the join to
// everyone else. The snapshot and all later broadcasts run under a.mu, so a
// reconnecting client can neither miss nor double-see a message.
func (a *Actor) AttachClient(ctx context.Context, conn *websocket.Conn) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrActorClosed
	}
	a.touchLocked()

	a.sockets.AddClient(conn)
	if err := a.queries.UpsertConnectedUser(ctx, models.UpsertConnectedUserParams{
		UserID:        conn.UserID,
		ConnectedAtMs: a.nowMs(),
	}); err != nil {
		return err
	}

	status, _, err := a.getState(ctx, models.StateKeyStatus)
	if err != nil {
		return err
	}
	workspace, _, err := a.getState(ctx, models.StateKeyWorkspace)
	if err != nil {
		return err
	}
	msgs, err := a.queries.ListMessages(ctx)
	if err != nil {
		return err
	}
	pending, err := a.queries.ListPendingQuestions(ctx)
	if err != nil {
		return err
	}

	init := wire.InitFrame{
		Type:             wire.ServerFrameInit,
		Status:           status,
		Workspace:        workspace,
		Messages:         make([]wire.Message, len(msgs)),
		PendingQuestions: make([]wire.Question, len(pending)),
	}
	for i, msg := range msgs {
		init.Messages[i] = toWireMessage(msg)
	}
	for i, question := range pending {
		init.PendingQuestions[i] = toWireQuestion(question)
	}
	conn.Send(init)

	users, err := a.connectedUserIDs(ctx)
	if err != nil {
		return err
	}
	metrics.BroadcastFrames.WithLabelValues(wire.ServerFrameUserJoined).Inc()
	a.sockets.BroadcastClientsExcept(conn.ID, wire.UserJoinedFrame{
		Type:           wire.ServerFrameUserJoined,
		UserID:         conn.UserID,
		ConnectedUsers: users,
	})
	a.publishAs(conn.UserID, eventbus.EventUserJoined, map[string]interface{}{
		"userId":         conn.UserID,
		"connectedUsers": users,
	})
	return nil
}

// DetachClient is the deferred close handler for client sockets. The user
// leaves the connected set only when their last socket is gone.
func (a *Actor) DetachClient(ctx context.Context, conn *websocket.Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.touchLocked()

	last := a.sockets.RemoveClient(conn)
	if !last {
		return
	}

	if err := a.queries.DeleteConnectedUser(ctx, conn.UserID); err != nil {
		logger.Warnf("[actor] session %s: remove connected user %s: %v", a.sessionID, conn.UserID, err)
		return
	}
	users, err := a.connectedUserIDs(ctx)
	if err != nil {
		logger.Warnf("[actor] session %s: list connected users: %v", a.sessionID, err)
		return
	}
	a.broadcastFrame(wire.ServerFrameUserLeft, wire.UserLeftFrame{
		Type:           wire.ServerFrameUserLeft,
		UserID:         conn.UserID,
		ConnectedUsers: users,
	})
	a.publishAs(conn.UserID, eventbus.EventUserLeft, map[string]interface{}{
		"userId":         conn.UserID,
		"connectedUsers": users,
	})
}

// AttachRunner installs conn as the single runner socket, displacing any
// predecessor. Stale processing prompts revert to queued first so a crashed
// runner picks its work back up on reconnect.
func (a *Actor) AttachRunner(ctx context.Context, conn *websocket.Conn) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrActorClosed
	}
	a.touchLocked()

	if old := a.sockets.SetRunner(conn); old != nil {
		logger.Infof("[actor] session %s: runner socket %s displaced by %s", a.sessionID, old.ID, conn.ID)
		old.CloseWithCode(websocket.CloseNormal, "superseded by a newer runner connection")
	}

	if _, err := a.queries.RequeueProcessingPrompts(ctx); err != nil {
		return err
	}
	return a.dispatchNext(ctx)
}

// DetachRunner is the deferred close handler for the runner socket. A
// displaced socket's close must not disturb its replacement, so the registry
// clear is identity-guarded.
func (a *Actor) DetachRunner(ctx context.Context, conn *websocket.Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.touchLocked()

	if !a.sockets.ClearRunner(conn) {
		return
	}

	// Assume the in-flight prompt died with the socket.
	if _, err := a.queries.RequeueProcessingPrompts(ctx); err != nil {
		logger.Errorf("[actor] session %s: requeue processing prompts: %v", a.sessionID, err)
	}
	if err := a.setRunnerBusy(ctx, false); err != nil {
		logger.Errorf("[actor] session %s: clear runner busy: %v", a.sessionID, err)
	}
	a.broadcastStatus(ctx)
}

// connectedUserIDs returns the connected user ids in join order. Caller
// holds a.mu.
func (a *Actor) connectedUserIDs(ctx context.Context) ([]string, error) {
	connected, err := a.queries.ListConnectedUsers(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]string, len(connected))
	for i, user := range connected {
		users[i] = user.UserID
	}
	return users, nil
}
