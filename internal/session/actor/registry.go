package actor

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/agent-ops/relay/internal/database"
	"github.com/agent-ops/relay/internal/eventbus"
	"github.com/agent-ops/relay/internal/metrics"
	"github.com/agent-ops/relay/pkg/logger"
)

// sessionIDPattern constrains session ids to filename-safe tokens; the id
// becomes the database filename.
var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// Registry owns every live actor in the process, at most one per session id.
// Actors are created on demand, reopened from their database file after
// hibernation, and swept away once idle.
type Registry struct {
	dataDir string
	cfg     Config
	bus     eventbus.Publisher
	now     func() time.Time
	newID   func() string

	mu     sync.Mutex
	actors map[string]*Actor
}

// NewRegistry creates a registry rooted at dataDir. The clock and id
// generator are injected so tests can pin them.
func NewRegistry(dataDir string, cfg Config, bus eventbus.Publisher, now func() time.Time, newID func() string) *Registry {
	return &Registry{
		dataDir: dataDir,
		cfg:     cfg,
		bus:     bus,
		now:     now,
		newID:   newID,
		actors:  make(map[string]*Actor),
	}
}

func (r *Registry) dbPath(sessionID string) string {
	return filepath.Join(r.dataDir, sessionID+".db")
}

// GetOrCreate returns the live actor for sessionID, creating its database
// file on first use. A hibernated-but-mapped actor is replaced transparently.
func (r *Registry) GetOrCreate(sessionID string) (*Actor, error) {
	if !sessionIDPattern.MatchString(sessionID) {
		return nil, ErrInvalidSessionID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openLocked(sessionID)
}

// Get returns the live actor for sessionID, reopening it from disk when a
// database file exists. Sessions never started report ErrSessionNotFound.
func (r *Registry) Get(sessionID string) (*Actor, error) {
	if !sessionIDPattern.MatchString(sessionID) {
		return nil, ErrInvalidSessionID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.actors[sessionID]; ok && !a.isClosed() {
		return a, nil
	}
	if !database.Exists(r.dbPath(sessionID)) {
		return nil, ErrSessionNotFound
	}
	return r.openLocked(sessionID)
}

// openLocked returns the mapped actor or constructs a fresh one. Caller
// holds r.mu.
func (r *Registry) openLocked(sessionID string) (*Actor, error) {
	if a, ok := r.actors[sessionID]; ok {
		if !a.isClosed() {
			return a, nil
		}
		delete(r.actors, sessionID)
		metrics.ActiveActors.Dec()
	}

	a, err := newActor(sessionID, r.dbPath(sessionID), r.cfg, r.bus, r.now, r.newID)
	if err != nil {
		return nil, err
	}
	r.actors[sessionID] = a
	metrics.ActiveActors.Inc()
	return a, nil
}

// Wipe destroys all durable state for sessionID: sockets, tables and the
// database file itself.
func (r *Registry) Wipe(ctx context.Context, sessionID string) error {
	if !sessionIDPattern.MatchString(sessionID) {
		return ErrInvalidSessionID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	path := r.dbPath(sessionID)
	a, ok := r.actors[sessionID]
	if !ok && !database.Exists(path) {
		return ErrSessionNotFound
	}
	if ok {
		if err := a.Wipe(ctx); err != nil && err != ErrActorClosed {
			return err
		}
		delete(r.actors, sessionID)
		metrics.ActiveActors.Dec()
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	// SQLite side files; absent unless the journal mode created them.
	os.Remove(path + "-wal")
	os.Remove(path + "-shm")
	return nil
}

// Sweep hibernates every actor idle longer than maxIdle. Actors holding
// sockets or an armed question alarm are skipped.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	swept := 0
	for sessionID, a := range r.actors {
		if a.hibernate(maxIdle) {
			delete(r.actors, sessionID)
			metrics.ActiveActors.Dec()
			swept++
			logger.Debugf("[registry] session %s hibernated", sessionID)
		}
	}
	return swept
}

// Shutdown force-closes every live actor. Durable state survives for the
// next process.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sessionID, a := range r.actors {
		a.shutdown()
		delete(r.actors, sessionID)
		metrics.ActiveActors.Dec()
	}
}
