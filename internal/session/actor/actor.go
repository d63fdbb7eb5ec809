// Package actor implements the per-session coordinator. One Actor owns one
// session: its SQLite state, its attached sockets and its expiry alarm.
// Every entrypoint runs under the actor mutex, so handlers observe and
// mutate state strictly one at a time, and broadcast order always matches
// ledger order. No authoritative value lives only in memory; an actor can
// be dropped at any point and rebuilt from its database.
package actor

import (
	"context"
	"database/sql"
	"strconv"
	"sync"
	"time"

	"github.com/agent-ops/relay/internal/database"
	"github.com/agent-ops/relay/internal/eventbus"
	"github.com/agent-ops/relay/internal/models"
	"github.com/agent-ops/relay/internal/websocket"
	"github.com/agent-ops/relay/pkg/logger"
)

const (
	// defaultQuestionTTL is the pending-question expiry window.
	defaultQuestionTTL = 5 * time.Minute
	// defaultMaxQueueDepth bounds queued prompts per session.
	defaultMaxQueueDepth = 100
)

// Config carries the per-actor tunables.
type Config struct {
	// MaxQueueDepth bounds the number of queued prompts. Zero means the
	// default.
	MaxQueueDepth int
	// QuestionTTL is the pending-question expiry window. Zero means the
	// default.
	QuestionTTL time.Duration
}

func (c Config) maxQueueDepth() int {
	if c.MaxQueueDepth > 0 {
		return c.MaxQueueDepth
	}
	return defaultMaxQueueDepth
}

func (c Config) questionTTL() time.Duration {
	if c.QuestionTTL > 0 {
		return c.QuestionTTL
	}
	return defaultQuestionTTL
}

// Actor is one session's coordinator.
type Actor struct {
	sessionID string
	cfg       Config
	bus       eventbus.Publisher
	now       func() time.Time
	newID     func() string

	db      *database.DB
	queries *models.Queries
	sockets *websocket.Registry

	mu         sync.Mutex
	alarm      *time.Timer
	closed     bool
	lastActive time.Time
}

// newActor opens the session database (running migrations before anything
// else can touch the actor) and re-arms the expiry alarm from durable state.
func newActor(sessionID, dbPath string, cfg Config, bus eventbus.Publisher, now func() time.Time, newID func() string) (*Actor, error) {
	db, err := database.Open(dbPath)
	if err != nil {
		return nil, err
	}

	a := &Actor{
		sessionID: sessionID,
		cfg:       cfg,
		bus:       bus,
		now:       now,
		newID:     newID,
		db:        db,
		queries:   models.New(db.DB),
		sockets:   websocket.NewRegistry(),
	}
	a.lastActive = now()

	// A fresh session reports initializing until start flips it to running.
	// Reopened sessions keep whatever status they already persisted.
	if err := a.queries.InitState(context.Background(), models.SetStateParams{
		Key:   models.StateKeyStatus,
		Value: models.SessionStatusInitializing,
	}); err != nil {
		db.Close()
		return nil, err
	}

	// Pending questions survive hibernation; their alarm must too.
	a.mu.Lock()
	a.armAlarmLocked(context.Background())
	a.mu.Unlock()

	return a, nil
}

// SessionID returns the session this actor coordinates.
func (a *Actor) SessionID() string {
	return a.sessionID
}

// touchLocked records handler activity for idle eviction decisions.
func (a *Actor) touchLocked() {
	a.lastActive = a.now()
}

// isClosed reports whether the actor has released its database handle.
func (a *Actor) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// hibernate tears the actor down when it has been idle long enough and holds
// nothing volatile: no sockets and no armed alarm. Reports whether the actor
// is now closed.
func (a *Actor) hibernate(maxIdle time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return true
	}
	if a.sockets.ClientCount() > 0 || a.sockets.Runner() != nil {
		return false
	}
	if a.alarm != nil {
		return false
	}
	if a.now().Sub(a.lastActive) < maxIdle {
		return false
	}

	a.closeLocked()
	return true
}

// shutdown force-closes every socket and releases the database handle.
// Used on process exit; durable state is untouched.
func (a *Actor) shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.sockets.CloseAll()
	a.closeLocked()
}

// closeLocked releases the database handle and marks the actor unusable.
func (a *Actor) closeLocked() {
	if a.closed {
		return
	}
	a.closed = true
	a.stopAlarmLocked()
	if err := a.db.Close(); err != nil {
		logger.Warnf("[actor] session %s: close database: %v", a.sessionID, err)
	}
}

// getState reads one scalar state value; ok reports presence.
func (a *Actor) getState(ctx context.Context, key string) (string, bool, error) {
	value, err := a.queries.GetState(ctx, key)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (a *Actor) setState(ctx context.Context, key, value string) error {
	return a.queries.SetState(ctx, models.SetStateParams{Key: key, Value: value})
}

// runnerBusy reads the admission-control flag. Absent means idle.
func (a *Actor) runnerBusy(ctx context.Context) (bool, error) {
	value, ok, err := a.getState(ctx, models.StateKeyRunnerBusy)
	if err != nil || !ok {
		return false, err
	}
	busy, _ := strconv.ParseBool(value)
	return busy, nil
}

func (a *Actor) setRunnerBusy(ctx context.Context, busy bool) error {
	return a.setState(ctx, models.StateKeyRunnerBusy, strconv.FormatBool(busy))
}

// nowMs returns the injected clock in ms since epoch.
func (a *Actor) nowMs() int64 {
	return a.now().UnixMilli()
}
