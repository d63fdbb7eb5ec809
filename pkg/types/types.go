package types

import "encoding/json"

// Common response types

type ErrorResponse struct {
	Error string `json:"error"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

// Session control surface

type StartSessionRequest struct {
	UserID      string          `json:"userId" binding:"required"`
	Workspace   string          `json:"workspace"`
	RunnerToken string          `json:"runnerToken"`
	SandboxID   string          `json:"sandboxId"`
	TunnelURLs  json.RawMessage `json:"tunnelUrls"`
}

type StartSessionResponse struct {
	Success     bool   `json:"success"`
	Status      string `json:"status"`
	RunnerToken string `json:"runnerToken"`
}

type StopSessionRequest struct {
	Reason string `json:"reason"`
}

type PromptRequest struct {
	Content string `json:"content" binding:"required"`
}

type PromptResponse struct {
	Success  bool   `json:"success"`
	PromptID string `json:"promptId"`
	Queued   bool   `json:"queued"`
}

type ClearQueueResponse struct {
	Success bool `json:"success"`
	Cleared int  `json:"cleared"`
}

type SessionStatusResponse struct {
	SessionID        string          `json:"sessionId"`
	Status           string          `json:"status"`
	Workspace        string          `json:"workspace,omitempty"`
	SandboxID        string          `json:"sandboxId,omitempty"`
	TunnelURLs       json.RawMessage `json:"tunnelUrls,omitempty"`
	RunnerConnected  bool            `json:"runnerConnected"`
	RunnerBusy       bool            `json:"runnerBusy"`
	MessageCount     int             `json:"messageCount"`
	QueueLength      int             `json:"queueLength"`
	ConnectedClients int             `json:"connectedClients"`
	ConnectedUsers   []string        `json:"connectedUsers"`
}
