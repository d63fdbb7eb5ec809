package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agent-ops/relay/internal/crypto"
	"github.com/agent-ops/relay/internal/eventbus"
	"github.com/agent-ops/relay/internal/models"
	"github.com/agent-ops/relay/internal/wire"
	"github.com/agent-ops/relay/pkg/types"
)

// StartParams are the arguments for Start.
type StartParams struct {
	// UserID is the session owner.
	UserID string
	// Workspace optionally names the workspace.
	Workspace string
	// RunnerToken optionally fixes the runner credential. Empty keeps the
	// persisted one, or generates a fresh one for a new session.
	RunnerToken string
	// SandboxID optionally records the backing sandbox.
	SandboxID string
	// TunnelURLs optionally records the sandbox tunnel URL map.
	TunnelURLs json.RawMessage
}

// Start transitions the session to running and persists its identity.
// Starting an already-running session refreshes identity and sandbox
// metadata without touching the ledger or the queue. Returns the effective
// runner token so the caller can hand it to the sandbox backend.
func (a *Actor) Start(ctx context.Context, params StartParams) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return "", ErrActorClosed
	}
	a.touchLocked()

	if strings.TrimSpace(params.UserID) == "" {
		return "", fmt.Errorf("userId is required")
	}

	token := params.RunnerToken
	if token == "" {
		existing, ok, err := a.getState(ctx, models.StateKeyRunnerToken)
		if err != nil {
			return "", err
		}
		if ok {
			token = existing
		} else {
			generated, err := crypto.NewRunnerToken()
			if err != nil {
				return "", err
			}
			token = generated
		}
	}

	updates := map[string]string{
		models.StateKeySessionID:   a.sessionID,
		models.StateKeyUserID:      params.UserID,
		models.StateKeyRunnerToken: token,
		models.StateKeyStatus:      models.SessionStatusRunning,
	}
	if params.Workspace != "" {
		updates[models.StateKeyWorkspace] = params.Workspace
	}
	if params.SandboxID != "" {
		updates[models.StateKeySandboxID] = params.SandboxID
	}
	if len(params.TunnelURLs) > 0 {
		updates[models.StateKeyTunnelURLs] = string(params.TunnelURLs)
	}
	for key, value := range updates {
		if err := a.setState(ctx, key, value); err != nil {
			return "", err
		}
	}

	a.broadcastStatus(ctx)
	a.publishAs(params.UserID, eventbus.EventSessionStarted, map[string]interface{}{
		"userId":    params.UserID,
		"workspace": params.Workspace,
	})
	return token, nil
}

// Stop terminates the session: best-effort stop frame to the runner, then a
// forced disconnect. The ledger and queue rows stay durable for inspection.
func (a *Actor) Stop(ctx context.Context, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrActorClosed
	}
	a.touchLocked()

	if runner := a.sockets.Runner(); runner != nil {
		// Delivery is best-effort; the socket dies right after.
		runner.Send(wire.StopFrame{Type: wire.RunnerOutStop, Reason: reason})
		runner.Close()
	}

	if _, err := a.queries.RequeueProcessingPrompts(ctx); err != nil {
		return err
	}
	if err := a.setRunnerBusy(ctx, false); err != nil {
		return err
	}
	if err := a.setState(ctx, models.StateKeyStatus, models.SessionStatusTerminated); err != nil {
		return err
	}
	if err := a.queries.DeleteState(ctx, models.StateKeySandboxID); err != nil {
		return err
	}
	if err := a.queries.DeleteState(ctx, models.StateKeyTunnelURLs); err != nil {
		return err
	}

	a.broadcastStatus(ctx)
	a.publish(ctx, eventbus.EventSessionCompleted, map[string]interface{}{
		"reason": reason,
	})
	return nil
}

// Status reports the durable session state plus live socket facts.
func (a *Actor) Status(ctx context.Context) (types.SessionStatusResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return types.SessionStatusResponse{}, ErrActorClosed
	}
	a.touchLocked()

	status, _, err := a.getState(ctx, models.StateKeyStatus)
	if err != nil {
		return types.SessionStatusResponse{}, err
	}
	workspace, _, err := a.getState(ctx, models.StateKeyWorkspace)
	if err != nil {
		return types.SessionStatusResponse{}, err
	}
	sandboxID, _, err := a.getState(ctx, models.StateKeySandboxID)
	if err != nil {
		return types.SessionStatusResponse{}, err
	}
	tunnelURLs, _, err := a.getState(ctx, models.StateKeyTunnelURLs)
	if err != nil {
		return types.SessionStatusResponse{}, err
	}
	busy, err := a.runnerBusy(ctx)
	if err != nil {
		return types.SessionStatusResponse{}, err
	}
	messageCount, err := a.queries.CountMessages(ctx)
	if err != nil {
		return types.SessionStatusResponse{}, err
	}
	queueLength, err := a.queries.CountQueuedPrompts(ctx)
	if err != nil {
		return types.SessionStatusResponse{}, err
	}
	users, err := a.connectedUserIDs(ctx)
	if err != nil {
		return types.SessionStatusResponse{}, err
	}

	resp := types.SessionStatusResponse{
		SessionID:        a.sessionID,
		Status:           status,
		Workspace:        workspace,
		SandboxID:        sandboxID,
		RunnerConnected:  a.sockets.Runner() != nil,
		RunnerBusy:       busy,
		MessageCount:     int(messageCount),
		QueueLength:      int(queueLength),
		ConnectedClients: a.sockets.ClientCount(),
		ConnectedUsers:   users,
	}
	if tunnelURLs != "" {
		resp.TunnelURLs = json.RawMessage(tunnelURLs)
	}
	return resp, nil
}

// ClearQueue deletes every queued prompt. The processing prompt, if any,
// keeps running.
func (a *Actor) ClearQueue(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0, ErrActorClosed
	}
	a.touchLocked()

	cleared, err := a.queries.ClearQueuedPrompts(ctx)
	if err != nil {
		return 0, err
	}

	a.broadcastStatus(ctx)
	a.publish(ctx, eventbus.EventQueueCleared, map[string]interface{}{
		"cleared": cleared,
	})
	return int(cleared), nil
}

// Wipe force-closes every socket, empties every table and closes the actor.
// The registry removes the database file afterwards.
func (a *Actor) Wipe(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrActorClosed
	}

	a.sockets.CloseAll()
	if err := a.queries.WipeAll(ctx); err != nil {
		return err
	}
	a.closeLocked()
	return nil
}
