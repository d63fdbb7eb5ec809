package actor

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/agent-ops/relay/internal/models"
	"github.com/agent-ops/relay/internal/websocket"
	"github.com/agent-ops/relay/internal/wire"
	"github.com/agent-ops/relay/pkg/logger"
)

// HandleClientFrame processes one inbound client frame. Malformed or
// rejected input answers with an error frame on that socket only; the
// connection stays open.
func (a *Actor) HandleClientFrame(ctx context.Context, conn *websocket.Conn, data []byte) {
	frame, err := wire.DecodeClientFrame(data)
	if err != nil {
		conn.Send(wire.ErrorFrame{Type: wire.ServerFrameError, Error: err.Error()})
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.touchLocked()

	switch frame.Type {
	case wire.ClientFramePrompt:
		if _, _, err := a.submitPrompt(ctx, frame.Content); err != nil {
			a.sendErrorFrame(conn, err)
		}
	case wire.ClientFrameAnswer:
		if err := a.answerQuestion(ctx, frame.QuestionID, frame.Answer); err != nil {
			a.sendErrorFrame(conn, err)
		}
	case wire.ClientFramePing:
		conn.Send(wire.PongFrame{Type: wire.ServerFramePong})
	}
}

// sendErrorFrame reports a handler failure back on one socket. Queue
// rejections carry their own message; anything else stays generic so
// storage details never leak to browsers.
func (a *Actor) sendErrorFrame(conn *websocket.Conn, err error) {
	msg := "internal error"
	if err == ErrQueueFull {
		msg = err.Error()
	} else {
		logger.Errorf("[actor] session %s: client frame failed: %v", a.sessionID, err)
	}
	conn.Send(wire.ErrorFrame{Type: wire.ServerFrameError, Error: msg})
}

// HandleRunnerFrame processes one inbound runner frame. Frames from a
// displaced runner socket are dropped; malformed frames are logged and
// ignored because the runner vocabulary has no inbound error channel.
func (a *Actor) HandleRunnerFrame(ctx context.Context, conn *websocket.Conn, data []byte) {
	frame, err := wire.DecodeRunnerFrame(data)
	if err != nil {
		logger.Warnf("[actor] session %s: runner frame rejected: %v", a.sessionID, err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	current := a.sockets.Runner()
	if current == nil || current.ID != conn.ID {
		logger.Debugf("[actor] session %s: frame from stale runner socket %s dropped", a.sessionID, conn.ID)
		return
	}
	a.touchLocked()

	switch frame.Type {
	case wire.RunnerFrameStream:
		// Chunks fan out live and are never replayed; nothing lands in the ledger.
		a.broadcastFrame(wire.ServerFrameChunk, wire.ChunkFrame{
			Type:    wire.ServerFrameChunk,
			Content: frame.Content,
		})
	case wire.RunnerFrameResult:
		if _, err := a.appendMessage(ctx, models.RoleAssistant, frame.Content, nullableParts(frame.Parts)); err != nil {
			logger.Errorf("[actor] session %s: append result: %v", a.sessionID, err)
		}
	case wire.RunnerFrameTool:
		if _, err := a.appendMessage(ctx, models.RoleTool, frame.Content, nullableParts(frame.Parts)); err != nil {
			logger.Errorf("[actor] session %s: append tool message: %v", a.sessionID, err)
		}
	case wire.RunnerFrameQuestion:
		if _, err := a.createQuestion(ctx, *frame); err != nil {
			logger.Errorf("[actor] session %s: create question: %v", a.sessionID, err)
		}
	case wire.RunnerFrameScreenshot:
		parts, err := screenshotParts(frame.Data)
		if err != nil {
			logger.Errorf("[actor] session %s: encode screenshot parts: %v", a.sessionID, err)
			return
		}
		if _, err := a.appendMessage(ctx, models.RoleAssistant, frame.Content, parts); err != nil {
			logger.Errorf("[actor] session %s: append screenshot: %v", a.sessionID, err)
		}
	case wire.RunnerFrameError:
		// The prompt stays processing; the runner decides whether to
		// continue or follow up with complete.
		a.broadcastFrame(wire.ServerFrameError, wire.ErrorFrame{
			Type:  wire.ServerFrameError,
			Error: frame.Error,
		})
	case wire.RunnerFrameComplete:
		if err := a.completeProcessing(ctx); err != nil {
			logger.Errorf("[actor] session %s: complete prompt: %v", a.sessionID, err)
		}
	}
}

func nullableParts(parts json.RawMessage) sql.NullString {
	if len(parts) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(parts), Valid: true}
}

// screenshotParts wraps an image payload in the parts shape clients render.
func screenshotParts(data string) (sql.NullString, error) {
	raw, err := json.Marshal([]map[string]string{{"type": "screenshot", "data": data}})
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}
