package models

import "context"

// EnqueuePromptParams are the arguments for EnqueuePrompt.
type EnqueuePromptParams struct {
	ID          string
	Content     string
	CreatedAtMs int64
}

// EnqueuePrompt inserts one queued prompt and returns it with its assigned seq.
func (q *Queries) EnqueuePrompt(ctx context.Context, arg EnqueuePromptParams) (QueuedPrompt, error) {
	res, err := q.db.ExecContext(ctx, `
INSERT INTO prompt_queue (id, content, status, created_at_ms)
VALUES (?, ?, 'queued', ?);
`, arg.ID, arg.Content, arg.CreatedAtMs)
	if err != nil {
		return QueuedPrompt{}, err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return QueuedPrompt{}, err
	}
	return QueuedPrompt{
		Seq:         seq,
		ID:          arg.ID,
		Content:     arg.Content,
		Status:      PromptQueued,
		CreatedAtMs: arg.CreatedAtMs,
	}, nil
}

// OldestQueuedPrompt returns the FIFO head of the queue. sql.ErrNoRows when
// the queue is drained.
func (q *Queries) OldestQueuedPrompt(ctx context.Context) (QueuedPrompt, error) {
	var prompt QueuedPrompt
	err := q.db.QueryRowContext(ctx, `
SELECT seq, id, content, status, created_at_ms
FROM prompt_queue
WHERE status = 'queued'
ORDER BY seq ASC
LIMIT 1;
`).Scan(&prompt.Seq, &prompt.ID, &prompt.Content, &prompt.Status, &prompt.CreatedAtMs)
	return prompt, err
}

// MarkPromptProcessing transitions one queued prompt to processing and
// returns the number of rows updated.
func (q *Queries) MarkPromptProcessing(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
UPDATE prompt_queue
SET status = 'processing'
WHERE id = ? AND status = 'queued';
`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CompleteProcessingPrompts transitions every processing prompt to completed
// and returns the number of rows updated. At most one row is processing under
// normal operation.
func (q *Queries) CompleteProcessingPrompts(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
UPDATE prompt_queue
SET status = 'completed'
WHERE status = 'processing';
`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RequeueProcessingPrompts reverts every processing prompt to queued so a
// reconnecting runner picks it up again. Returns the number of rows updated.
func (q *Queries) RequeueProcessingPrompts(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
UPDATE prompt_queue
SET status = 'queued'
WHERE status = 'processing';
`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ClearQueuedPrompts deletes every queued prompt, leaving the processing one
// untouched. Returns the number of rows deleted.
func (q *Queries) ClearQueuedPrompts(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
DELETE FROM prompt_queue WHERE status = 'queued';
`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountQueuedPrompts returns the queue length (queued rows only).
func (q *Queries) CountQueuedPrompts(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM prompt_queue WHERE status = 'queued';
`).Scan(&count)
	return count, err
}

// HasProcessingPrompt reports whether a prompt is currently being processed.
func (q *Queries) HasProcessingPrompt(ctx context.Context) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, `
SELECT EXISTS(
  SELECT 1 FROM prompt_queue WHERE status = 'processing' LIMIT 1
);
`).Scan(&exists)
	return exists, err
}
