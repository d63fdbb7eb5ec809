package models

import "context"

// GetState returns the value stored under key. sql.ErrNoRows when absent.
func (q *Queries) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := q.db.QueryRowContext(ctx, `
SELECT value FROM state WHERE key = ?;
`, key).Scan(&value)
	return value, err
}

// SetStateParams are the arguments for SetState.
type SetStateParams struct {
	Key   string
	Value string
}

// SetState upserts one scalar state value.
func (q *Queries) SetState(ctx context.Context, arg SetStateParams) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO state (key, value)
VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value;
`, arg.Key, arg.Value)
	return err
}

// InitState writes a default value under key unless one already exists.
func (q *Queries) InitState(ctx context.Context, arg SetStateParams) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO state (key, value)
VALUES (?, ?)
ON CONFLICT(key) DO NOTHING;
`, arg.Key, arg.Value)
	return err
}

// DeleteState removes one scalar state value. Missing keys are a no-op.
func (q *Queries) DeleteState(ctx context.Context, key string) error {
	_, err := q.db.ExecContext(ctx, `
DELETE FROM state WHERE key = ?;
`, key)
	return err
}
