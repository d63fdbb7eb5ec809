package models

import "context"

// UpsertConnectedUserParams are the arguments for UpsertConnectedUser.
type UpsertConnectedUserParams struct {
	UserID        string
	ConnectedAtMs int64
}

// UpsertConnectedUser records a user's presence. Repeat sockets for the same
// user keep the original ConnectedAtMs.
func (q *Queries) UpsertConnectedUser(ctx context.Context, arg UpsertConnectedUserParams) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO connected_users (user_id, connected_at_ms)
VALUES (?, ?)
ON CONFLICT(user_id) DO NOTHING;
`, arg.UserID, arg.ConnectedAtMs)
	return err
}

// DeleteConnectedUser removes a user's presence row.
func (q *Queries) DeleteConnectedUser(ctx context.Context, userID string) error {
	_, err := q.db.ExecContext(ctx, `
DELETE FROM connected_users WHERE user_id = ?;
`, userID)
	return err
}

// ListConnectedUsers returns all present users, earliest join first.
func (q *Queries) ListConnectedUsers(ctx context.Context) ([]ConnectedUser, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT user_id, connected_at_ms
FROM connected_users
ORDER BY connected_at_ms ASC, user_id ASC;
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []ConnectedUser
	for rows.Next() {
		var user ConnectedUser
		if err := rows.Scan(&user.UserID, &user.ConnectedAtMs); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// WipeAll deletes every row from every table. Used by the archival garbage
// collector right before the session database file is removed.
func (q *Queries) WipeAll(ctx context.Context) error {
	for _, table := range []string{"messages", "questions", "prompt_queue", "connected_users", "state"} {
		if _, err := q.db.ExecContext(ctx, `DELETE FROM `+table+`;`); err != nil {
			return err
		}
	}
	return nil
}
