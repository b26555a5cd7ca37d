package task

import (
	"context"

	"github.com/opspilot/opspilot/pkg/models"
)

// Handler executes one kind of task for one domain. It returns the task's
// output payload or an error that fails the task.
type Handler interface {
	Execute(ctx context.Context, agent *models.Agent, t *models.Task) (map[string]any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, agent *models.Agent, t *models.Task) (map[string]any, error)

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, agent *models.Agent, t *models.Task) (map[string]any, error) {
	return f(ctx, agent, t)
}

// handlerKey identifies one entry in the dispatch table.
type handlerKey struct {
	domain   models.DomainType
	taskType string
}

// Register adds a handler for a (domain, task type) pair. The dispatch
// table is meant to be populated at startup, before any Enqueue call;
// unsupported pairs then fail tasks at execution time rather than panic.
func (q *Queue) Register(domain models.DomainType, taskType string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[handlerKey{domain, taskType}] = h
}

// handlerFor looks up the handler for a pair, if one is registered.
func (q *Queue) handlerFor(domain models.DomainType, taskType string) (Handler, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	h, ok := q.handlers[handlerKey{domain, taskType}]
	return h, ok
}

// Supports reports whether a handler is registered for the pair.
func (q *Queue) Supports(domain models.DomainType, taskType string) bool {
	_, ok := q.handlerFor(domain, taskType)
	return ok
}
