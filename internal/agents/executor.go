package agents

import (
	"context"

	"studentsupport/internal/session"
	"studentsupport/pkg"
)

// Executor performs one category of task given a routing decision. Executors
// are stateless between calls; all persistent state lives in the session,
// which they borrow read-only. An executor may return an error for
// irrecoverable internal failures, which the pipeline, not the executor,
// converts into a fallback or degraded response.
type Executor interface {
	Name() string
	Execute(ctx context.Context, decision pkg.RoutingDecision, sess *session.Session) (pkg.AgentResponse, error)
}
