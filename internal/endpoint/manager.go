package endpoint

import (
	"context"
	"time"

	"sparqlbench/internal/allocation"
	"sparqlbench/internal/query"
)

// Manager executes queries on a caller supplied connection under a fixed
// timeout. It keeps no state of its own and is shared by all agents.
type Manager struct {
	timeout time.Duration
}

func NewManager(timeout time.Duration) *Manager {
	return &Manager{timeout: timeout}
}

// Timeout returns the per-execution deadline.
func (m *Manager) Timeout() time.Duration {
	return m.timeout
}

// Execute sends q and returns the raw result text. Failures are always
// *ExecutionError; a timeout is never retried here.
func (m *Manager) Execute(ctx context.Context, conn Connection, kind allocation.Kind, q query.Query) (string, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	result, err := conn.Send(ctx, q)
	if err != nil {
		return "", classify(kind.Name, err)
	}
	return result, nil
}
