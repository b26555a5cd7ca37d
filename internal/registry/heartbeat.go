package registry

import (
	"sync"
	"time"

	"github.com/opspilot/opspilot/pkg/models"
)

const (
	// HeartbeatCadence is how often a tracked agent's heartbeat fires.
	HeartbeatCadence = 30 * time.Second
	// StalenessWindow is how old a heartbeat may be before the agent is
	// considered unhealthy. A heartbeat exactly at the window boundary
	// still counts as healthy; only strictly older heartbeats are stale.
	StalenessWindow = 60 * time.Second
	// HeartbeatLifetime caps how long automatic heartbeat tracking runs
	// before it must be renewed.
	HeartbeatLifetime = 24 * time.Hour
)

// HeartbeatTracker holds in-memory last-seen timestamps per agent.
// State is process-local: health reads return unknown after a restart
// until a new heartbeat arrives. It is safe for concurrent use.
type HeartbeatTracker struct {
	mu        sync.RWMutex
	lastSeen  map[string]time.Time
	staleness time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewHeartbeatTracker creates a tracker with the given staleness window.
// A non-positive window falls back to StalenessWindow.
func NewHeartbeatTracker(staleness time.Duration) *HeartbeatTracker {
	if staleness <= 0 {
		staleness = StalenessWindow
	}
	return &HeartbeatTracker{
		lastSeen:  make(map[string]time.Time),
		staleness: staleness,
		now:       time.Now,
	}
}

// Record marks the agent as seen now. Idempotent, side-effect-only.
func (h *HeartbeatTracker) Record(agentID string) time.Time {
	seen := h.now()
	h.mu.Lock()
	h.lastSeen[agentID] = seen
	h.mu.Unlock()
	return seen
}

// Health derives the agent's liveness from its most recent heartbeat.
// The returned time is nil when no heartbeat has been recorded this
// process lifetime.
func (h *HeartbeatTracker) Health(agentID string) (models.HealthStatus, *time.Time) {
	h.mu.RLock()
	seen, ok := h.lastSeen[agentID]
	h.mu.RUnlock()

	if !ok {
		return models.HealthUnknown, nil
	}
	if h.now().Sub(seen) > h.staleness {
		return models.HealthUnhealthy, &seen
	}
	return models.HealthHealthy, &seen
}

// Forget drops tracking state for an agent.
func (h *HeartbeatTracker) Forget(agentID string) {
	h.mu.Lock()
	delete(h.lastSeen, agentID)
	h.mu.Unlock()
}
