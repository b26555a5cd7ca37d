// Package registry manages agent registration, heartbeat tracking, and
// health derivation.
package registry

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opspilot/opspilot/internal/state"
	"github.com/opspilot/opspilot/pkg/models"
)

// Health is one agent's derived liveness plus when it was last seen.
type Health struct {
	// Status is healthy, unhealthy, or unknown.
	Status models.HealthStatus
	// LastSeen is the most recent in-memory heartbeat, nil if never seen.
	LastSeen *time.Time
}

// Registry owns agent records and their heartbeat state.
// Persistence is write-through: agents are stored immediately and reads go
// to the store, while heartbeat liveness lives in memory.
type Registry struct {
	store      state.AgentStore
	heartbeats *HeartbeatTracker
	defaults   map[models.DomainType]map[string]any

	cadence  time.Duration
	lifetime time.Duration

	// trackers maps agent IDs to heartbeat-goroutine stop channels.
	trackers map[string]chan struct{}
	mu       sync.Mutex
}

// Option customizes a Registry.
type Option func(*Registry)

// WithDefaults replaces the built-in per-domain default configuration,
// typically with the result of LoadDefaultsFile.
func WithDefaults(defaults map[models.DomainType]map[string]any) Option {
	return func(r *Registry) { r.defaults = defaults }
}

// WithHeartbeatCadence overrides the automatic heartbeat interval.
func WithHeartbeatCadence(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.cadence = d
		}
	}
}

// WithHeartbeatLifetime overrides how long automatic heartbeats run before
// tracking lapses and must be renewed.
func WithHeartbeatLifetime(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.lifetime = d
		}
	}
}

// New creates a Registry backed by the given agent store.
func New(store state.AgentStore, opts ...Option) *Registry {
	r := &Registry{
		store:      store,
		heartbeats: NewHeartbeatTracker(StalenessWindow),
		defaults:   defaultConfigs(),
		cadence:    HeartbeatCadence,
		lifetime:   HeartbeatLifetime,
		trackers:   make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates an agent in active status with domain-default
// configuration overlaid by caller-supplied overrides, persists it, and
// starts heartbeat tracking. Returns a ValidationError if the domain is
// not one of the known domains.
func (r *Registry) Register(domain models.DomainType, projectID, name string, overrides map[string]any) (*models.Agent, error) {
	if !domain.Valid() {
		return nil, &models.ValidationError{Field: "domain", Reason: fmt.Sprintf("unknown domain type %q", domain)}
	}
	if projectID == "" {
		return nil, &models.ValidationError{Field: "project_id", Reason: "must not be empty"}
	}

	if name == "" {
		name = fmt.Sprintf("%s-agent", domain)
	}

	agent := &models.Agent{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Domain:    domain,
		Name:      name,
		Status:    models.AgentStatusActive,
		Config:    mergeConfig(r.defaults[domain], overrides),
		CreatedAt: time.Now(),
	}

	if err := r.store.CreateAgent(agent); err != nil {
		return nil, fmt.Errorf("register agent: %w", err)
	}

	r.startTracking(agent.ID)
	return agent, nil
}

// Get retrieves an agent by ID. Returns state.ErrNotFound if it does not exist.
func (r *Registry) Get(agentID string) (*models.Agent, error) {
	return r.store.GetAgent(agentID)
}

// ListByProject returns all agents for a project.
func (r *Registry) ListByProject(projectID string) ([]models.Agent, error) {
	return r.store.ListAgentsByProject(projectID)
}

// ListActive returns all active agents across projects.
func (r *Registry) ListActive() ([]models.Agent, error) {
	return r.store.ListAgentsByStatus(models.AgentStatusActive)
}

// RecordHeartbeat updates the agent's in-memory last-seen timestamp and
// persists it. Idempotent, side-effect-only.
func (r *Registry) RecordHeartbeat(agentID string) error {
	seen := r.heartbeats.Record(agentID)
	if err := r.store.UpdateAgentHeartbeat(agentID, seen); err != nil {
		return fmt.Errorf("record heartbeat: %w", err)
	}
	return nil
}

// Health returns the agent's derived liveness. This is a pure read of
// in-memory heartbeat state: it returns unknown if no heartbeat has been
// recorded this process lifetime, which resets on restart.
func (r *Registry) Health(agentID string) Health {
	status, lastSeen := r.heartbeats.Health(agentID)
	return Health{Status: status, LastSeen: lastSeen}
}

// SetStatus transitions an agent's lifecycle status. Agents are never hard
// deleted while referenced by tasks; deactivation is the soft lifecycle.
func (r *Registry) SetStatus(agentID string, status models.AgentStatus) error {
	if !status.Valid() {
		return &models.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}

	agent, err := r.store.GetAgent(agentID)
	if err != nil {
		return err
	}
	agent.Status = status
	if err := r.store.UpdateAgent(agent); err != nil {
		return fmt.Errorf("set agent status: %w", err)
	}

	if status != models.AgentStatusActive {
		r.stopTracking(agentID)
	}
	return nil
}

// startTracking runs automatic heartbeats for an agent: an immediate beat,
// then one per cadence, capped at the configured lifetime. Tracking an
// already-tracked agent renews its lifetime.
func (r *Registry) startTracking(agentID string) {
	r.mu.Lock()
	if stop, ok := r.trackers[agentID]; ok {
		close(stop)
	}
	stop := make(chan struct{})
	r.trackers[agentID] = stop
	r.mu.Unlock()

	go func() {
		if err := r.RecordHeartbeat(agentID); err != nil {
			log.Printf("[registry] heartbeat for agent %s: %v", agentID, err)
		}

		ticker := time.NewTicker(r.cadence)
		defer ticker.Stop()
		expiry := time.NewTimer(r.lifetime)
		defer expiry.Stop()

		for {
			select {
			case <-stop:
				return
			case <-expiry.C:
				// Lifetime reached; tracking lapses until renewed.
				return
			case <-ticker.C:
				if err := r.RecordHeartbeat(agentID); err != nil {
					log.Printf("[registry] heartbeat for agent %s: %v", agentID, err)
				}
			}
		}
	}()
}

// stopTracking halts automatic heartbeats for an agent.
func (r *Registry) stopTracking(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stop, ok := r.trackers[agentID]; ok {
		close(stop)
		delete(r.trackers, agentID)
	}
}

// Close stops all heartbeat goroutines.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, stop := range r.trackers {
		close(stop)
		delete(r.trackers, id)
	}
}
