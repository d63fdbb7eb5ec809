// Package eventbus publishes session events to the external event bus.
// Publishing is strictly fire-and-forget: a slow or dead bus never blocks
// or fails the operation that produced the event.
package eventbus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agent-ops/relay/pkg/logger"
)

const (
	// publishPath is the event bus ingestion endpoint.
	publishPath = "/publish"
	// defaultPublishTimeout is the HTTP timeout used for publish requests.
	defaultPublishTimeout = 10 * time.Second
)

// Event types emitted by the session actor.
const (
	EventSessionStarted   = "session.started"
	EventSessionCompleted = "session.completed"
	EventMessageCreated   = "message.created"
	EventPromptQueued     = "prompt.queued"
	EventQueueCleared     = "queue.cleared"
	EventQuestionCreated  = "question.created"
	EventQuestionAnswered = "question.answered"
	EventQuestionExpired  = "question.expired"
	EventUserJoined       = "user.joined"
	EventUserLeft         = "user.left"
)

// Event is one published event.
type Event struct {
	// Type is the event name (e.g. "message.created").
	Type string `json:"type"`
	// Data is the event payload.
	Data map[string]interface{} `json:"data,omitempty"`
	// Timestamp is the emission time in ms since epoch.
	Timestamp int64 `json:"timestamp"`
}

// publishRequest is the wire envelope for POST /publish.
type publishRequest struct {
	// UserID optionally attributes the event to a user.
	UserID string `json:"userId,omitempty"`
	// Event is the published event.
	Event Event `json:"event"`
}

// Publisher is the sink the actor emits events to.
type Publisher interface {
	Publish(userID string, event Event)
}

// Client publishes events over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a publisher for the given bus base URL. An empty URL
// returns a client that drops every event.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client: &http.Client{
			Timeout: defaultPublishTimeout,
		},
	}
}

// Publish delivers one event in the background. Failures are logged and
// swallowed.
func (c *Client) Publish(userID string, event Event) {
	if c == nil || c.baseURL == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
		defer cancel()
		if err := c.send(ctx, userID, event); err != nil {
			logger.Warnf("[eventbus] publish %s failed: %v", event.Type, err)
		}
	}()
}

// send performs the HTTP request to the event bus.
func (c *Client) send(ctx context.Context, userID string, event Event) error {
	payload, err := json.Marshal(publishRequest{UserID: userID, Event: event})
	if err != nil {
		return fmt.Errorf("publish marshal failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+publishPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("publish request build failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("publish request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("publish response read failed: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("publish response %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}
