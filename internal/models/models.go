package models

import "database/sql"

// Session lifecycle values stored under the "status" state key.
const (
	SessionStatusInitializing = "initializing"
	SessionStatusRunning      = "running"
	SessionStatusTerminated   = "terminated"
)

// Well-known state keys.
const (
	StateKeySessionID   = "sessionId"
	StateKeyUserID      = "userId"
	StateKeyWorkspace   = "workspace"
	StateKeyStatus      = "status"
	StateKeyRunnerToken = "runnerToken"
	StateKeyRunnerBusy  = "runnerBusy"
	StateKeySandboxID   = "sandboxId"
	StateKeyTunnelURLs  = "tunnelUrls"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Question statuses.
const (
	QuestionPending  = "pending"
	QuestionAnswered = "answered"
	QuestionExpired  = "expired"
)

// Queued prompt statuses.
const (
	PromptQueued     = "queued"
	PromptProcessing = "processing"
	PromptCompleted  = "completed"
)

// Message is one append-only ledger row.
type Message struct {
	// Seq is the insertion sequence; replay order is seq ASC.
	Seq int64
	// ID is the message id.
	ID string
	// Role is the author role (user, assistant, system or tool).
	Role string
	// Content is the message text.
	Content string
	// Parts is an optional JSON payload (tool calls, attachments).
	Parts sql.NullString
	// CreatedAtMs is the creation time in ms since epoch.
	CreatedAtMs int64
}

// Question is one interactive question row.
type Question struct {
	// ID is the question id.
	ID string
	// Text is the question text.
	Text string
	// Options is an optional JSON array of allowed answers.
	Options sql.NullString
	// Status is one of pending, answered or expired.
	Status string
	// Answer is the recorded answer; null unless answered.
	Answer sql.NullString
	// CreatedAtMs is the creation time in ms since epoch.
	CreatedAtMs int64
	// ExpiresAtMs is the expiry deadline in ms since epoch; null disables expiry.
	ExpiresAtMs sql.NullInt64
}

// QueuedPrompt is one prompt queue row.
type QueuedPrompt struct {
	// Seq is the insertion sequence; FIFO order is seq ASC.
	Seq int64
	// ID is the prompt id.
	ID string
	// Content is the prompt text.
	Content string
	// Status is one of queued, processing or completed.
	Status string
	// CreatedAtMs is the submission time in ms since epoch.
	CreatedAtMs int64
}

// ConnectedUser is one presence row; a user appears at most once regardless
// of how many sockets they hold.
type ConnectedUser struct {
	// UserID is the connected user.
	UserID string
	// ConnectedAtMs is the first-socket join time in ms since epoch.
	ConnectedAtMs int64
}
