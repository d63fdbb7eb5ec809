package actor

import (
	"context"
	"encoding/json"

	"github.com/agent-ops/relay/internal/eventbus"
	"github.com/agent-ops/relay/internal/metrics"
	"github.com/agent-ops/relay/internal/models"
	"github.com/agent-ops/relay/internal/wire"
	"github.com/agent-ops/relay/pkg/logger"
)

// toWireMessage converts a ledger row to its client-visible shape.
func toWireMessage(msg models.Message) wire.Message {
	out := wire.Message{
		ID:        msg.ID,
		Seq:       msg.Seq,
		Role:      msg.Role,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAtMs,
	}
	if msg.Parts.Valid {
		out.Parts = json.RawMessage(msg.Parts.String)
	}
	return out
}

// toWireQuestion converts a question row to its client-visible shape.
func toWireQuestion(question models.Question) wire.Question {
	out := wire.Question{
		ID:        question.ID,
		Text:      question.Text,
		Status:    question.Status,
		CreatedAt: question.CreatedAtMs,
	}
	if question.Options.Valid {
		var options []string
		if err := json.Unmarshal([]byte(question.Options.String), &options); err == nil {
			out.Options = options
		}
	}
	if question.Answer.Valid {
		answer := question.Answer.String
		out.Answer = &answer
	}
	if question.ExpiresAtMs.Valid {
		out.ExpiresAt = question.ExpiresAtMs.Int64
	}
	return out
}

// broadcastFrame fans one frame out to every client socket.
func (a *Actor) broadcastFrame(frameType string, v any) {
	metrics.BroadcastFrames.WithLabelValues(frameType).Inc()
	a.sockets.BroadcastClients(v)
}

// broadcastMessage announces one appended ledger entry.
func (a *Actor) broadcastMessage(msg models.Message) {
	a.broadcastFrame(wire.ServerFrameMessage, wire.MessageFrame{
		Type:    wire.ServerFrameMessage,
		Message: toWireMessage(msg),
	})
}

// broadcastQuestion announces a question creation or transition.
func (a *Actor) broadcastQuestion(question models.Question) {
	a.broadcastFrame(wire.ServerFrameQuestion, wire.QuestionFrame{
		Type:     wire.ServerFrameQuestion,
		Question: toWireQuestion(question),
	})
}

// broadcastStatus announces the current lifecycle and queue state.
func (a *Actor) broadcastStatus(ctx context.Context) {
	frame, err := a.statusFrame(ctx)
	if err != nil {
		logger.Errorf("[actor] session %s: build status frame: %v", a.sessionID, err)
		return
	}
	a.broadcastFrame(wire.ServerFrameStatus, frame)
}

// statusFrame assembles the status broadcast payload from durable state.
func (a *Actor) statusFrame(ctx context.Context) (wire.StatusFrame, error) {
	status, _, err := a.getState(ctx, models.StateKeyStatus)
	if err != nil {
		return wire.StatusFrame{}, err
	}
	busy, err := a.runnerBusy(ctx)
	if err != nil {
		return wire.StatusFrame{}, err
	}
	queued, err := a.queries.CountQueuedPrompts(ctx)
	if err != nil {
		return wire.StatusFrame{}, err
	}
	return wire.StatusFrame{
		Type:            wire.ServerFrameStatus,
		Status:          status,
		RunnerConnected: a.sockets.Runner() != nil,
		RunnerBusy:      busy,
		QueueLength:     int(queued),
	}, nil
}

// publish emits one event to the external bus, attributed to the session
// owner unless overridden. Never blocks; never fails the caller.
func (a *Actor) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	userID, _, err := a.getState(ctx, models.StateKeyUserID)
	if err != nil {
		logger.Warnf("[actor] session %s: read owner for %s event: %v", a.sessionID, eventType, err)
	}
	a.publishAs(userID, eventType, data)
}

// publishAs emits one event attributed to a specific user.
func (a *Actor) publishAs(userID, eventType string, data map[string]interface{}) {
	if a.bus == nil {
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	data["sessionId"] = a.sessionID
	a.bus.Publish(userID, eventbus.Event{
		Type:      eventType,
		Data:      data,
		Timestamp: a.nowMs(),
	})
}
