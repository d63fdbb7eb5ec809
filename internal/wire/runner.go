package wire

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Runner -> server frame types.
const (
	RunnerFrameStream     = "stream"
	RunnerFrameResult     = "result"
	RunnerFrameTool       = "tool"
	RunnerFrameQuestion   = "question"
	RunnerFrameScreenshot = "screenshot"
	RunnerFrameError      = "error"
	RunnerFrameComplete   = "complete"
)

// Server -> runner frame types.
const (
	RunnerOutPrompt = "prompt"
	RunnerOutAnswer = "answer"
	RunnerOutStop   = "stop"
)

// ExpiredAnswer is the synthetic answer pushed to the runner when a pending
// question passes its deadline without a human response.
const ExpiredAnswer = "__expired__"

// RunnerFrame is one inbound frame from the runner.
type RunnerFrame struct {
	// Type discriminates the frame.
	Type string `json:"type"`
	// Content carries text for stream, result and tool frames.
	Content string `json:"content,omitempty"`
	// Parts carries optional structured payload for result and tool frames.
	Parts json.RawMessage `json:"parts,omitempty"`
	// ID is the runner-chosen question id for question frames. Optional;
	// the session assigns one when absent.
	ID string `json:"id,omitempty"`
	// Text is the question text for question frames.
	Text string `json:"text,omitempty"`
	// Options is the optional fixed answer set for question frames.
	Options []string `json:"options,omitempty"`
	// Data is the image payload reference for screenshot frames.
	Data string `json:"data,omitempty"`
	// Error is the failure description for error frames.
	Error string `json:"error,omitempty"`
}

// DecodeRunnerFrame parses and validates one runner frame.
func DecodeRunnerFrame(data []byte) (*RunnerFrame, error) {
	var f RunnerFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	switch f.Type {
	case RunnerFrameStream:
		if f.Content == "" {
			return nil, fmt.Errorf("stream frame requires content")
		}
	case RunnerFrameResult:
		if f.Content == "" && len(f.Parts) == 0 {
			return nil, fmt.Errorf("result frame requires content or parts")
		}
	case RunnerFrameTool:
		if f.Content == "" && len(f.Parts) == 0 {
			return nil, fmt.Errorf("tool frame requires content or parts")
		}
	case RunnerFrameQuestion:
		if strings.TrimSpace(f.Text) == "" {
			return nil, fmt.Errorf("question frame requires text")
		}
	case RunnerFrameScreenshot:
		if f.Data == "" {
			return nil, fmt.Errorf("screenshot frame requires data")
		}
	case RunnerFrameError:
		if f.Error == "" {
			return nil, fmt.Errorf("error frame requires error")
		}
	case RunnerFrameComplete:
	case "":
		return nil, fmt.Errorf("frame missing type")
	default:
		return nil, fmt.Errorf("unknown frame type: %q", f.Type)
	}
	return &f, nil
}

// PromptFrame dispatches one prompt to the runner.
type PromptFrame struct {
	// Type must be "prompt".
	Type string `json:"type"`
	// MessageID is the ledger id of the user message behind this prompt.
	// Queued prompts reuse it as their queue row id.
	MessageID string `json:"messageId,omitempty"`
	// Content is the prompt text.
	Content string `json:"content"`
}

// AnswerFrame pushes a recorded (or synthetic expired) answer to the runner.
type AnswerFrame struct {
	// Type must be "answer".
	Type string `json:"type"`
	// QuestionID is the question being resolved.
	QuestionID string `json:"questionId"`
	// Answer is the recorded answer text.
	Answer string `json:"answer"`
}

// StopFrame asks the runner to halt. Delivery is best-effort; the socket is
// closed right after.
type StopFrame struct {
	// Type must be "stop".
	Type string `json:"type"`
	// Reason is an optional human-readable cause.
	Reason string `json:"reason,omitempty"`
}
