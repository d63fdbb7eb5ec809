// Package wire defines the JSON frame vocabulary spoken on the session
// websocket. Each peer role has a closed set of frame types discriminated
// by a `type` field; frames are decoded and validated at the socket
// boundary so handlers only ever see well-formed values.
package wire

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Client -> server frame types.
const (
	ClientFramePrompt = "prompt"
	ClientFrameAnswer = "answer"
	ClientFramePing   = "ping"
)

// Server -> client frame types.
const (
	ServerFrameInit         = "init"
	ServerFrameMessage      = "message"
	ServerFrameChunk        = "chunk"
	ServerFrameQuestion     = "question"
	ServerFrameStatus       = "status"
	ServerFramePromptQueued = "prompt.queued"
	ServerFramePong         = "pong"
	ServerFrameError        = "error"
	ServerFrameUserJoined   = "user.joined"
	ServerFrameUserLeft     = "user.left"
)

// ClientFrame is one inbound frame from a browser client.
type ClientFrame struct {
	// Type discriminates the frame ("prompt", "answer" or "ping").
	Type string `json:"type"`
	// Content is the prompt text for `type == "prompt"`.
	Content string `json:"content,omitempty"`
	// QuestionID identifies the question being answered for `type == "answer"`.
	QuestionID string `json:"questionId,omitempty"`
	// Answer is the selected answer for `type == "answer"`.
	Answer string `json:"answer,omitempty"`
}

// DecodeClientFrame parses and validates one client frame.
func DecodeClientFrame(data []byte) (*ClientFrame, error) {
	var f ClientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	switch f.Type {
	case ClientFramePrompt:
		if strings.TrimSpace(f.Content) == "" {
			return nil, fmt.Errorf("prompt frame requires content")
		}
	case ClientFrameAnswer:
		if f.QuestionID == "" {
			return nil, fmt.Errorf("answer frame requires questionId")
		}
	case ClientFramePing:
	case "":
		return nil, fmt.Errorf("frame missing type")
	default:
		return nil, fmt.Errorf("unknown frame type: %q", f.Type)
	}
	return &f, nil
}

// Message is the client-visible view of one ledger entry.
type Message struct {
	// ID is the message id.
	ID string `json:"id"`
	// Seq is the session-scoped insertion sequence.
	Seq int64 `json:"seq"`
	// Role is the author role (user, assistant, system or tool).
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
	// Parts carries optional structured payload (tool calls, attachments).
	Parts json.RawMessage `json:"parts,omitempty"`
	// CreatedAt is the creation time in ms since epoch.
	CreatedAt int64 `json:"createdAt"`
}

// Question is the client-visible view of one interactive question.
type Question struct {
	// ID is the question id.
	ID string `json:"id"`
	// Text is the question text.
	Text string `json:"text"`
	// Options is the optional fixed answer set.
	Options []string `json:"options,omitempty"`
	// Status is one of pending, answered or expired.
	Status string `json:"status"`
	// Answer is the recorded answer; null while pending.
	Answer *string `json:"answer,omitempty"`
	// CreatedAt is the creation time in ms since epoch.
	CreatedAt int64 `json:"createdAt"`
	// ExpiresAt is the expiry deadline in ms since epoch; 0 when absent.
	ExpiresAt int64 `json:"expiresAt,omitempty"`
}

// InitFrame is the consolidated snapshot sent exactly once after a client
// upgrade, before any broadcast reaches the socket.
type InitFrame struct {
	// Type must be "init".
	Type string `json:"type"`
	// Status is the session lifecycle status.
	Status string `json:"status"`
	// Workspace is the workspace identifier, when set.
	Workspace string `json:"workspace,omitempty"`
	// Messages is the full ledger in insertion order.
	Messages []Message `json:"messages"`
	// PendingQuestions lists questions still awaiting an answer.
	PendingQuestions []Question `json:"pendingQuestions"`
}

// MessageFrame broadcasts one appended ledger entry.
type MessageFrame struct {
	// Type must be "message".
	Type string `json:"type"`
	// Message is the appended entry.
	Message Message `json:"message"`
}

// ChunkFrame relays one streaming output fragment. Chunks are transient and
// never persisted.
type ChunkFrame struct {
	// Type must be "chunk".
	Type string `json:"type"`
	// Content is the fragment text.
	Content string `json:"content"`
}

// QuestionFrame broadcasts a question creation or status transition.
type QuestionFrame struct {
	// Type must be "question".
	Type string `json:"type"`
	// Question is the current question state.
	Question Question `json:"question"`
}

// StatusFrame broadcasts a session status change.
type StatusFrame struct {
	// Type must be "status".
	Type string `json:"type"`
	// Status is the session lifecycle status.
	Status string `json:"status"`
	// RunnerConnected reports whether a runner socket is attached.
	RunnerConnected bool `json:"runnerConnected"`
	// RunnerBusy reports whether a prompt is being processed.
	RunnerBusy bool `json:"runnerBusy"`
	// QueueLength is the number of queued prompts.
	QueueLength int `json:"queueLength"`
}

// PromptQueuedFrame announces that a submitted prompt was parked in the
// queue instead of dispatched.
type PromptQueuedFrame struct {
	// Type must be "prompt.queued".
	Type string `json:"type"`
	// PromptID identifies the queued prompt.
	PromptID string `json:"promptId"`
	// PromptQueued is always true; present so clients can key off it.
	PromptQueued bool `json:"promptQueued"`
	// QueuePosition is the 1-based FIFO position of the prompt.
	QueuePosition int `json:"queuePosition"`
}

// PongFrame answers a client ping.
type PongFrame struct {
	// Type must be "pong".
	Type string `json:"type"`
}

// ErrorFrame reports a rejected frame or a runner-side failure. The
// connection stays open.
type ErrorFrame struct {
	// Type must be "error".
	Type string `json:"type"`
	// Error is a human-readable description.
	Error string `json:"error"`
}

// UserJoinedFrame announces a user's first socket joining the session.
type UserJoinedFrame struct {
	// Type must be "user.joined".
	Type string `json:"type"`
	// UserID is the joining user.
	UserID string `json:"userId"`
	// ConnectedUsers is the full connected-user list after the join.
	ConnectedUsers []string `json:"connectedUsers"`
}

// UserLeftFrame announces a user's last socket leaving the session.
type UserLeftFrame struct {
	// Type must be "user.left".
	Type string `json:"type"`
	// UserID is the leaving user.
	UserID string `json:"userId"`
	// ConnectedUsers is the full connected-user list after the leave.
	ConnectedUsers []string `json:"connectedUsers"`
}
