package actor

import (
	"context"
	"database/sql"

	"github.com/agent-ops/relay/internal/eventbus"
	"github.com/agent-ops/relay/internal/metrics"
	"github.com/agent-ops/relay/internal/models"
	"github.com/agent-ops/relay/internal/wire"
)

// appendMessage writes one ledger row, mirrors it to every client and
// publishes message.created. Broadcast order equals ledger order because
// both happen here, under a.mu. Caller holds a.mu.
func (a *Actor) appendMessage(ctx context.Context, role, content string, parts sql.NullString) (models.Message, error) {
	msg, err := a.queries.AppendMessage(ctx, models.AppendMessageParams{
		ID:          a.newID(),
		Role:        role,
		Content:     content,
		Parts:       parts,
		CreatedAtMs: a.nowMs(),
	})
	if err != nil {
		return models.Message{}, err
	}
	a.broadcastMessage(msg)
	a.publish(ctx, eventbus.EventMessageCreated, map[string]interface{}{
		"messageId": msg.ID,
		"role":      msg.Role,
	})
	return msg, nil
}

// SubmitPrompt records the user turn in the ledger, then either hands the
// prompt straight to an idle runner or parks it in the queue. Reports the
// prompt id and whether it was queued.
func (a *Actor) SubmitPrompt(ctx context.Context, content string) (string, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return "", false, ErrActorClosed
	}
	a.touchLocked()
	return a.submitPrompt(ctx, content)
}

// submitPrompt is SubmitPrompt with a.mu already held, for the client frame
// path.
func (a *Actor) submitPrompt(ctx context.Context, content string) (string, bool, error) {
	msg, err := a.appendMessage(ctx, models.RoleUser, content, sql.NullString{})
	if err != nil {
		return "", false, err
	}

	busy, err := a.runnerBusy(ctx)
	if err != nil {
		return "", false, err
	}

	// Queueing exists for the runner's absence, not for rate limiting.
	// An attached idle runner takes the prompt without a queue row.
	if runner := a.sockets.Runner(); runner != nil && !busy {
		if err := a.setRunnerBusy(ctx, true); err != nil {
			return "", false, err
		}
		runner.Send(wire.PromptFrame{Type: wire.RunnerOutPrompt, MessageID: msg.ID, Content: content})
		metrics.PromptsDispatched.WithLabelValues(metrics.DispatchDirect).Inc()
		a.broadcastStatus(ctx)
		return msg.ID, false, nil
	}

	depth, err := a.queries.CountQueuedPrompts(ctx)
	if err != nil {
		return "", false, err
	}
	if int(depth) >= a.cfg.maxQueueDepth() {
		return "", false, ErrQueueFull
	}

	// The queue row shares the ledger message id, so the runner sees the
	// same correlation id whether the prompt waited or not.
	prompt, err := a.queries.EnqueuePrompt(ctx, models.EnqueuePromptParams{
		ID:          msg.ID,
		Content:     content,
		CreatedAtMs: a.nowMs(),
	})
	if err != nil {
		return "", false, err
	}
	metrics.PromptsQueued.Inc()

	a.broadcastFrame(wire.ServerFramePromptQueued, wire.PromptQueuedFrame{
		Type:          wire.ServerFramePromptQueued,
		PromptID:      prompt.ID,
		PromptQueued:  true,
		QueuePosition: int(depth) + 1,
	})
	a.broadcastStatus(ctx)
	a.publish(ctx, eventbus.EventPromptQueued, map[string]interface{}{
		"promptId": prompt.ID,
		"position": int(depth) + 1,
	})
	return prompt.ID, true, nil
}

// completeProcessing closes the current prompt turn and feeds the runner the
// queue head, strict FIFO. Caller holds a.mu.
func (a *Actor) completeProcessing(ctx context.Context) error {
	if _, err := a.queries.CompleteProcessingPrompts(ctx); err != nil {
		return err
	}
	return a.dispatchNext(ctx)
}

// dispatchNext moves the oldest queued prompt to processing and sends it to
// the runner, or clears the busy flag when the queue is drained. Caller
// holds a.mu.
func (a *Actor) dispatchNext(ctx context.Context) error {
	runner := a.sockets.Runner()
	if runner == nil {
		if err := a.setRunnerBusy(ctx, false); err != nil {
			return err
		}
		a.broadcastStatus(ctx)
		return nil
	}

	prompt, err := a.queries.OldestQueuedPrompt(ctx)
	if err == sql.ErrNoRows {
		if err := a.setRunnerBusy(ctx, false); err != nil {
			return err
		}
		a.broadcastStatus(ctx)
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := a.queries.MarkPromptProcessing(ctx, prompt.ID); err != nil {
		return err
	}
	if err := a.setRunnerBusy(ctx, true); err != nil {
		return err
	}
	runner.Send(wire.PromptFrame{Type: wire.RunnerOutPrompt, MessageID: prompt.ID, Content: prompt.Content})
	metrics.PromptsDispatched.WithLabelValues(metrics.DispatchQueued).Inc()
	a.broadcastStatus(ctx)
	return nil
}
