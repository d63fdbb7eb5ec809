package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"

	"github.com/agent-ops/relay/internal/session/actor"
	"github.com/agent-ops/relay/internal/websocket"
	"github.com/agent-ops/relay/pkg/logger"
	"github.com/agent-ops/relay/pkg/types"
)

var upgrader = gorilla.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for self-hosting
	},
}

// WSHandler serves the session websocket upgrade endpoint.
type WSHandler struct {
	registry *actor.Registry
}

func NewWSHandler(registry *actor.Registry) *WSHandler {
	return &WSHandler{registry: registry}
}

// HandleWS handles GET /v1/sessions/:id/ws?role=client&userId=<id> and
// GET /v1/sessions/:id/ws?role=runner&token=<runnerToken>. Everything that
// can be rejected is rejected before the upgrade, while a plain HTTP status
// can still be returned.
func (h *WSHandler) HandleWS(c *gin.Context) {
	a, err := h.registry.Get(c.Param("id"))
	if err != nil {
		respondActorError(c, err)
		return
	}

	var (
		role   websocket.Role
		userID string
	)
	switch c.Query("role") {
	case "client":
		role = websocket.RoleClient
		userID = c.Query("userId")
		if userID == "" {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "userId is required for client sockets"})
			return
		}
	case "runner":
		role = websocket.RoleRunner
		if err := a.AuthorizeRunner(c.Request.Context(), c.Query("token")); err != nil {
			respondActorError(c, err)
			return
		}
	default:
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "role must be client or runner"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the failure response.
		logger.Warnf("[ws] session %s: upgrade failed: %v", a.SessionID(), err)
		return
	}

	conn := websocket.NewConn(uuid.NewString(), role, userID, ws)

	// The socket outlives this request; its teardown must not be tied to
	// the request context.
	ctx := context.Background()

	switch role {
	case websocket.RoleClient:
		err = a.AttachClient(ctx, conn)
	case websocket.RoleRunner:
		err = a.AttachRunner(ctx, conn)
	}
	if err != nil {
		logger.Errorf("[ws] session %s: attach %s socket: %v", a.SessionID(), role, err)
		conn.CloseWithCode(websocket.CloseInternalError, "attach failed")
		return
	}

	h.readLoop(ctx, a, conn)
}

// readLoop pumps inbound frames into the actor until the socket dies, then
// runs the deferred close handling.
func (h *WSHandler) readLoop(ctx context.Context, a *actor.Actor, conn *websocket.Conn) {
	defer func() {
		conn.Close()
		switch conn.Role {
		case websocket.RoleClient:
			a.DetachClient(ctx, conn)
		case websocket.RoleRunner:
			a.DetachRunner(ctx, conn)
		}
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			logger.Debugf("[ws] session %s: %s socket %s closed: %v", a.SessionID(), conn.Role, conn.ID, err)
			return
		}
		switch conn.Role {
		case websocket.RoleClient:
			a.HandleClientFrame(ctx, conn, data)
		case websocket.RoleRunner:
			a.HandleRunnerFrame(ctx, conn, data)
		}
	}
}
