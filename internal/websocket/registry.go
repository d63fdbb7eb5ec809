package websocket

import (
	"encoding/json"
	"sync"

	"github.com/agent-ops/relay/internal/metrics"
	"github.com/agent-ops/relay/pkg/logger"
)

// Registry tracks the sockets attached to one session: any number of client
// sockets keyed by user, plus at most one runner socket.
type Registry struct {
	mu      sync.RWMutex
	clients map[string][]*Conn // userID -> connections
	runner  *Conn
}

// NewRegistry creates an empty per-session socket registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string][]*Conn),
	}
}

// AddClient registers a client socket.
func (r *Registry) AddClient(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[conn.UserID] = append(r.clients[conn.UserID], conn)
	metrics.OpenSockets.WithLabelValues(RoleClient.String()).Inc()
}

// RemoveClient unregisters a client socket and reports whether it was the
// last socket held by that user. Unknown sockets (already removed) report
// false so repeat close handlers stay idempotent.
func (r *Registry) RemoveClient(conn *Conn) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := r.clients[conn.UserID]
	found := false
	for i, c := range conns {
		if c.ID == conn.ID {
			r.clients[conn.UserID] = append(conns[:i], conns[i+1:]...)
			metrics.OpenSockets.WithLabelValues(RoleClient.String()).Dec()
			found = true
			break
		}
	}
	if !found {
		return false
	}
	if len(r.clients[conn.UserID]) == 0 {
		delete(r.clients, conn.UserID)
		return true
	}
	return false
}

// ClientCount returns the number of attached client sockets.
func (r *Registry) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, conns := range r.clients {
		count += len(conns)
	}
	return count
}

// UserSocketCount returns the number of sockets held by one user.
func (r *Registry) UserSocketCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients[userID])
}

// SetRunner installs the runner socket and returns the displaced one, if any.
// The caller force-closes the old socket after releasing its own locks.
func (r *Registry) SetRunner(conn *Conn) (old *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old = r.runner
	r.runner = conn
	if old == nil {
		metrics.OpenSockets.WithLabelValues(RoleRunner.String()).Inc()
	}
	return old
}

// ClearRunner removes the runner socket, but only if conn is still the
// current one. A close handler for a displaced socket must not clobber its
// replacement.
func (r *Registry) ClearRunner(conn *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.runner == nil || r.runner.ID != conn.ID {
		return false
	}
	r.runner = nil
	metrics.OpenSockets.WithLabelValues(RoleRunner.String()).Dec()
	return true
}

// Runner returns the current runner socket, or nil.
func (r *Registry) Runner() *Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runner
}

// BroadcastClients fans one frame out to every client socket.
func (r *Registry) BroadcastClients(v any) {
	r.broadcast(v, "")
}

// BroadcastClientsExcept fans one frame out to every client socket except the
// named one. Used for join announcements where the joiner already got the
// snapshot.
func (r *Registry) BroadcastClientsExcept(socketID string, v any) {
	r.broadcast(v, socketID)
}

func (r *Registry) broadcast(v any, skipSocketID string) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Errorf("[ws] marshal broadcast frame: %v", err)
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, conns := range r.clients {
		for _, conn := range conns {
			if skipSocketID != "" && conn.ID == skipSocketID {
				continue
			}
			conn.SendRaw(data)
		}
	}
}

// CloseAll force-closes every attached socket. Used on stop and wipe.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	var victims []*Conn
	for _, conns := range r.clients {
		victims = append(victims, conns...)
	}
	if r.runner != nil {
		victims = append(victims, r.runner)
	}
	r.mu.Unlock()

	for _, conn := range victims {
		conn.Close()
	}
}
