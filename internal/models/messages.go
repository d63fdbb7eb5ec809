package models

import (
	"context"
	"database/sql"
)

// AppendMessageParams are the arguments for AppendMessage.
type AppendMessageParams struct {
	ID          string
	Role        string
	Content     string
	Parts       sql.NullString
	CreatedAtMs int64
}

// AppendMessage inserts one ledger row and returns it with its assigned seq.
func (q *Queries) AppendMessage(ctx context.Context, arg AppendMessageParams) (Message, error) {
	res, err := q.db.ExecContext(ctx, `
INSERT INTO messages (id, role, content, parts, created_at_ms)
VALUES (?, ?, ?, ?, ?);
`, arg.ID, arg.Role, arg.Content, arg.Parts, arg.CreatedAtMs)
	if err != nil {
		return Message{}, err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return Message{}, err
	}
	return Message{
		Seq:         seq,
		ID:          arg.ID,
		Role:        arg.Role,
		Content:     arg.Content,
		Parts:       arg.Parts,
		CreatedAtMs: arg.CreatedAtMs,
	}, nil
}

// ListMessages returns the full ledger in insertion order.
func (q *Queries) ListMessages(ctx context.Context) ([]Message, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT seq, id, role, content, parts, created_at_ms
FROM messages
ORDER BY seq ASC;
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.Seq, &msg.ID, &msg.Role, &msg.Content, &msg.Parts, &msg.CreatedAtMs); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CountMessages returns the ledger length.
func (q *Queries) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM messages;
`).Scan(&count)
	return count, err
}
