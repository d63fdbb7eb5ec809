package models

import (
	"context"
	"database/sql"
)

// CreateQuestionParams are the arguments for CreateQuestion.
type CreateQuestionParams struct {
	ID          string
	Text        string
	Options     sql.NullString
	CreatedAtMs int64
	ExpiresAtMs sql.NullInt64
}

// CreateQuestion inserts one question row with status pending.
func (q *Queries) CreateQuestion(ctx context.Context, arg CreateQuestionParams) (Question, error) {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO questions (id, text, options, status, created_at_ms, expires_at_ms)
VALUES (?, ?, ?, 'pending', ?, ?);
`, arg.ID, arg.Text, arg.Options, arg.CreatedAtMs, arg.ExpiresAtMs)
	if err != nil {
		return Question{}, err
	}
	return Question{
		ID:          arg.ID,
		Text:        arg.Text,
		Options:     arg.Options,
		Status:      QuestionPending,
		CreatedAtMs: arg.CreatedAtMs,
		ExpiresAtMs: arg.ExpiresAtMs,
	}, nil
}

// GetQuestion returns one question by id. sql.ErrNoRows when absent.
func (q *Queries) GetQuestion(ctx context.Context, id string) (Question, error) {
	var question Question
	err := q.db.QueryRowContext(ctx, `
SELECT id, text, options, status, answer, created_at_ms, expires_at_ms
FROM questions
WHERE id = ?;
`, id).Scan(&question.ID, &question.Text, &question.Options, &question.Status,
		&question.Answer, &question.CreatedAtMs, &question.ExpiresAtMs)
	return question, err
}

// ListPendingQuestions returns all pending questions, oldest first.
func (q *Queries) ListPendingQuestions(ctx context.Context) ([]Question, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT id, text, options, status, answer, created_at_ms, expires_at_ms
FROM questions
WHERE status = 'pending'
ORDER BY created_at_ms ASC, id ASC;
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []Question
	for rows.Next() {
		var question Question
		if err := rows.Scan(&question.ID, &question.Text, &question.Options, &question.Status,
			&question.Answer, &question.CreatedAtMs, &question.ExpiresAtMs); err != nil {
			return nil, err
		}
		questions = append(questions, question)
	}
	return questions, rows.Err()
}

// AnswerQuestionParams are the arguments for AnswerQuestion.
type AnswerQuestionParams struct {
	ID     string
	Answer string
}

// AnswerQuestion records an answer for a still-pending question and returns
// the number of rows updated. Zero means the question was already resolved
// (or never existed) and the caller must treat the answer as a no-op.
func (q *Queries) AnswerQuestion(ctx context.Context, arg AnswerQuestionParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
UPDATE questions
SET status = 'answered', answer = ?
WHERE id = ? AND status = 'pending';
`, arg.Answer, arg.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExpireDueQuestions transitions every pending question whose deadline has
// passed to expired, one guarded update per row, and returns the rows this
// caller won. A row lost to a concurrent answer is skipped silently.
func (q *Queries) ExpireDueQuestions(ctx context.Context, nowMs int64) ([]Question, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT id, text, options, status, answer, created_at_ms, expires_at_ms
FROM questions
WHERE status = 'pending'
  AND expires_at_ms IS NOT NULL
  AND expires_at_ms <= ?
ORDER BY expires_at_ms ASC, id ASC;
`, nowMs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []Question
	for rows.Next() {
		var question Question
		if err := rows.Scan(&question.ID, &question.Text, &question.Options, &question.Status,
			&question.Answer, &question.CreatedAtMs, &question.ExpiresAtMs); err != nil {
			return nil, err
		}
		due = append(due, question)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var expired []Question
	for _, question := range due {
		res, err := q.db.ExecContext(ctx, `
UPDATE questions
SET status = 'expired'
WHERE id = ? AND status = 'pending';
`, question.ID)
		if err != nil {
			return expired, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return expired, err
		}
		if affected == 0 {
			continue
		}
		question.Status = QuestionExpired
		expired = append(expired, question)
	}
	return expired, nil
}

// NextQuestionExpiry returns the earliest pending deadline in ms since epoch.
// Invalid when no pending question has a deadline.
func (q *Queries) NextQuestionExpiry(ctx context.Context) (sql.NullInt64, error) {
	var next sql.NullInt64
	err := q.db.QueryRowContext(ctx, `
SELECT MIN(expires_at_ms)
FROM questions
WHERE status = 'pending' AND expires_at_ms IS NOT NULL;
`).Scan(&next)
	return next, err
}
