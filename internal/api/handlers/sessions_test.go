package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/agent-ops/relay/internal/api/middleware"
	"github.com/agent-ops/relay/internal/crypto"
	"github.com/agent-ops/relay/internal/models"
	"github.com/agent-ops/relay/internal/session/actor"
	"github.com/agent-ops/relay/pkg/types"
)

func newTestRouter(t *testing.T, cfg actor.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := actor.NewRegistry(t.TempDir(), cfg, nil, time.Now, uuid.NewString)
	t.Cleanup(registry.Shutdown)

	sessions := NewSessionHandler(registry)
	ws := NewWSHandler(registry)

	r := gin.New()
	v1 := r.Group("/v1")
	v1.POST("/sessions/:id/start", sessions.StartSession)
	v1.POST("/sessions/:id/stop", sessions.StopSession)
	v1.GET("/sessions/:id/status", sessions.SessionStatus)
	v1.POST("/sessions/:id/prompt", sessions.SubmitPrompt)
	v1.POST("/sessions/:id/clear-queue", sessions.ClearQueue)
	v1.DELETE("/sessions/:id", sessions.WipeSession)
	v1.GET("/sessions/:id/ws", ws.HandleWS)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStartSessionReturnsRunnerToken(t *testing.T) {
	r := newTestRouter(t, actor.Config{})

	w := doJSON(t, r, http.MethodPost, "/v1/sessions/s1/start", types.StartSessionRequest{UserID: "u1", Workspace: "acme/api"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp types.StartSessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, models.SessionStatusRunning, resp.Status)
	require.Len(t, resp.RunnerToken, 64)
}

func TestStartSessionRequiresUserID(t *testing.T) {
	r := newTestRouter(t, actor.Config{})

	w := doJSON(t, r, http.MethodPost, "/v1/sessions/s1/start", map[string]string{"workspace": "acme/api"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionIDValidation(t *testing.T) {
	r := newTestRouter(t, actor.Config{})

	w := doJSON(t, r, http.MethodPost, "/v1/sessions/bad.id/start", types.StartSessionRequest{UserID: "u1"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp types.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, actor.ErrInvalidSessionID.Error(), resp.Error)
}

func TestPromptAgainstUnknownSession(t *testing.T) {
	r := newTestRouter(t, actor.Config{})

	w := doJSON(t, r, http.MethodPost, "/v1/sessions/ghost/prompt", types.PromptRequest{Content: "hi"})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestPromptQueueFullMapsTo429(t *testing.T) {
	r := newTestRouter(t, actor.Config{MaxQueueDepth: 1})

	w := doJSON(t, r, http.MethodPost, "/v1/sessions/s1/start", types.StartSessionRequest{UserID: "u1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, "/v1/sessions/s1/prompt", types.PromptRequest{Content: "p1"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp types.PromptResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Queued)

	w = doJSON(t, r, http.MethodPost, "/v1/sessions/s1/prompt", types.PromptRequest{Content: "p2"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestStopAndStatusRoundTrip(t *testing.T) {
	r := newTestRouter(t, actor.Config{})

	w := doJSON(t, r, http.MethodPost, "/v1/sessions/s1/start", types.StartSessionRequest{UserID: "u1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, "/v1/sessions/s1/stop", types.StopSessionRequest{Reason: "done"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/v1/sessions/s1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status types.SessionStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.Equal(t, models.SessionStatusTerminated, status.Status)
	require.Equal(t, "s1", status.SessionID)
}

func TestWipeSession(t *testing.T) {
	r := newTestRouter(t, actor.Config{})

	w := doJSON(t, r, http.MethodPost, "/v1/sessions/s1/start", types.StartSessionRequest{UserID: "u1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/v1/sessions/s1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/v1/sessions/s1/status", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthMiddlewareGatesControlSurface(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtManager, err := crypto.NewJWTManager("service-secret")
	require.NoError(t, err)

	r := gin.New()
	r.Use(middleware.AuthMiddleware(jwtManager))
	r.GET("/protected", func(c *gin.Context) {
		caller, _ := middleware.GetCallerID(c)
		c.JSON(http.StatusOK, gin.H{"caller": caller})
	})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer not-a-jwt", want: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			require.Equal(t, tc.want, w.Code)
		})
	}

	token, err := jwtManager.CreateToken("workflow-executor", nil)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "workflow-executor")
}
