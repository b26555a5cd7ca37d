package task

import (
	"fmt"

	"github.com/opspilot/opspilot/pkg/models"
)

// UnsupportedTaskError indicates no handler is registered for a
// (domain, task type) pair. It is recorded on the failed task rather than
// returned to the enqueue caller, since enqueue is fire-and-forget.
type UnsupportedTaskError struct {
	// Domain is the agent's domain.
	Domain models.DomainType
	// Type is the requested task type.
	Type string
}

func (e *UnsupportedTaskError) Error() string {
	return fmt.Sprintf("unsupported task type %q for domain %q", e.Type, e.Domain)
}
