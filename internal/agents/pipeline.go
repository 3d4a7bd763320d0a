package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"studentsupport/internal/audit"
	"studentsupport/internal/logger"
	"studentsupport/internal/session"
	"studentsupport/pkg"
)

const apologyContent = "I apologize, but I encountered an issue processing your request. " +
	"Please try again, or let me know if you'd like to speak with a human support agent."

const emptyMessageContent = "I didn't receive a message. Could you please try again?"

// Pipeline sequences classifier, router, and executors for one turn and
// guarantees a response is always produced: no error, panic, or missing
// executor escapes to the caller.
type Pipeline struct {
	store      session.Store
	classifier *QueryAgent
	router     *Router
	executors  map[string]Executor
	sink       audit.Sink
	llmTimeout time.Duration

	// Turns within one session are serialized so a double-submit cannot
	// interleave reads and writes on the same history. Different sessions
	// proceed fully in parallel.
	locks sync.Map // session id -> *sync.Mutex
}

// NewPipeline wires the pipeline. Executors are registered by name; the
// general executor must be among them since it is the last-resort fallback.
func NewPipeline(store session.Store, classifier *QueryAgent, router *Router, executors []Executor, sink audit.Sink, llmTimeout time.Duration) (*Pipeline, error) {
	if llmTimeout <= 0 {
		llmTimeout = 30 * time.Second
	}
	if sink == nil {
		sink = audit.NopSink{}
	}

	registry := make(map[string]Executor, len(executors))
	for _, e := range executors {
		registry[e.Name()] = e
	}
	if _, ok := registry[AgentGeneral]; !ok {
		return nil, fmt.Errorf("pipeline requires a registered %s", AgentGeneral)
	}

	return &Pipeline{
		store:      store,
		classifier: classifier,
		router:     router,
		executors:  registry,
		sink:       sink,
		llmTimeout: llmTimeout,
	}, nil
}

// Process runs one full turn: load session, classify, route, execute with
// fallback, record the turn. It returns the response and the session id for
// follow-up calls. It never returns an error; every failure mode degrades to
// an apologetic response with requires_followup set.
func (p *Pipeline) Process(ctx context.Context, userMessage, sessionID string) (pkg.AgentResponse, string) {
	if isBlank(userMessage) {
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		return pkg.AgentResponse{
			Content:          emptyMessageContent,
			Confidence:       0.0,
			RequiresFollowup: true,
		}, sessionID
	}

	sess, err := p.store.GetOrCreate(ctx, sessionID)
	if err != nil {
		// Session storage down: answer statelessly rather than fail the turn.
		logger.Error().Err(err).Msg("session store unavailable, processing statelessly")
		sess = session.New(sessionID)
	}

	unlock := p.lockSession(sess.ID)
	defer unlock()

	log := logger.Logger.With().Str("session_id", sess.ID).Logger()
	log.Info().Int("prior_turns", len(sess.Turns)).Msg("processing message")

	turnCtx, cancel := context.WithTimeout(ctx, p.llmTimeout)
	defer cancel()

	query := p.classifier.Process(turnCtx, userMessage, sess)
	log.Info().
		Str("intent", string(query.Intent)).
		Float64("confidence", query.Confidence).
		Msg("query classified")

	decision := p.router.Route(query)
	log.Info().
		Str("target", decision.TargetAgent).
		Str("priority", string(decision.Priority)).
		Str("reasoning", decision.Reasoning).
		Msg("query routed")
	if decision.RequiresEscalation {
		log.Warn().Str("reason", decision.EscalationReason).Msg("escalation triggered")
	}

	response, usedFallback := p.executeWithFallback(turnCtx, decision, sess)

	turn := sess.AddTurn(userMessage, response.Content, query.Intent, query.EntityMap(), decision.TargetAgent, response.Confidence)
	if err := p.store.Save(ctx, sess); err != nil {
		log.Error().Err(err).Msg("failed to persist session")
	}

	p.auditTurn(turn, sess.ID, decision, response, usedFallback)

	return response, sess.ID
}

// Session returns the live session for id, or session.ErrNotFound.
func (p *Pipeline) Session(ctx context.Context, id string) (*session.Session, error) {
	return p.store.Get(ctx, id)
}

// ClearSession deletes a session, reporting whether it existed.
func (p *Pipeline) ClearSession(ctx context.Context, id string) (bool, error) {
	return p.store.Delete(ctx, id)
}

// executeWithFallback runs the target executor, retrying once with the
// fallback on failure, then the general executor, then a synthesized
// apology. The second return reports whether anything other than the
// primary target produced the response.
func (p *Pipeline) executeWithFallback(ctx context.Context, decision pkg.RoutingDecision, sess *session.Session) (pkg.AgentResponse, bool) {
	target, ok := p.executors[decision.TargetAgent]
	if !ok {
		logger.Warn().Str("target", decision.TargetAgent).Msg("unknown executor requested, using general")
		target = p.executors[AgentGeneral]
	}

	response, err := p.executeSafely(ctx, target, decision, sess)
	if err == nil {
		return response, target.Name() != decision.TargetAgent
	}
	logger.Error().Err(err).Str("executor", target.Name()).Msg("executor failed")

	if decision.FallbackAgent != "" {
		if fallback, ok := p.executors[decision.FallbackAgent]; ok {
			response, err = p.executeSafely(ctx, fallback, decision, sess)
			if err == nil {
				return response, true
			}
			logger.Error().Err(err).Str("executor", fallback.Name()).Msg("fallback executor failed")
		}
	}

	if target.Name() != AgentGeneral && decision.FallbackAgent != AgentGeneral {
		response, err = p.executeSafely(ctx, p.executors[AgentGeneral], decision, sess)
		if err == nil {
			return response, true
		}
		logger.Error().Err(err).Msg("general executor failed as last resort")
	}

	return pkg.AgentResponse{
		Content:          apologyContent,
		Confidence:       0.0,
		RequiresFollowup: true,
		SuggestedActions: []string{"Try again", "Speak to human"},
	}, true
}

// executeSafely converts an executor panic into an error so one misbehaving
// handler cannot take down the turn.
func (p *Pipeline) executeSafely(ctx context.Context, executor Executor, decision pkg.RoutingDecision, sess *session.Session) (response pkg.AgentResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor %s panicked: %v", executor.Name(), r)
		}
	}()
	return executor.Execute(ctx, decision, sess)
}

func (p *Pipeline) auditTurn(turn session.Turn, sessionID string, decision pkg.RoutingDecision, response pkg.AgentResponse, usedFallback bool) {
	err := p.sink.Log(audit.Entry{
		Timestamp:    turn.Timestamp,
		Event:        "turn_processed",
		SessionID:    sessionID,
		TurnID:       turn.ID,
		Intent:       turn.Intent,
		TargetAgent:  decision.TargetAgent,
		Priority:     decision.Priority,
		Confidence:   response.Confidence,
		UsedFallback: usedFallback,
	})
	if err != nil {
		// Audit is fire-and-forget: the turn already succeeded.
		logger.Warn().Err(err).Msg("audit log write failed")
	}
}

func (p *Pipeline) lockSession(id string) func() {
	m, _ := p.locks.LoadOrStore(id, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
