package agents

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studentsupport/internal/audit"
	"studentsupport/internal/search"
	"studentsupport/internal/session"
	"studentsupport/internal/ticket"
	"studentsupport/pkg"
)

// classificationJSON builds the JSON payload the classifier chain expects
// from the model.
func classificationJSON(t *testing.T, intent string, confidence float64, entities map[string]string) string {
	t.Helper()
	payload := map[string]any{
		"intent":     intent,
		"confidence": confidence,
		"entities":   entities,
		"urgency":    "medium",
		"sentiment":  "neutral",
	}
	out, err := sonic.MarshalString(payload)
	require.NoError(t, err)
	return out
}

// scriptedModel serves the classifier one payload and every other model call
// another. The classifier is recognized by its system prompt.
func scriptedModel(classify func(prompt string) (string, error), answer func() (string, error)) *mockChatModel {
	return &mockChatModel{reply: func(messages []*schema.Message) (*schema.Message, error) {
		if len(messages) > 0 && strings.Contains(messages[0].Content, "query understanding agent") {
			content, err := classify(messages[len(messages)-1].Content)
			if err != nil {
				return nil, err
			}
			return schema.AssistantMessage(content, nil), nil
		}
		content, err := answer()
		if err != nil {
			return nil, err
		}
		return schema.AssistantMessage(content, nil), nil
	}}
}

type pipelineFixture struct {
	pipeline *Pipeline
	store    *session.MemoryStore
	sink     *recordingSink
	router   *Router
}

func newPipelineFixture(t *testing.T, chatModel *mockChatModel, searcher search.Searcher) *pipelineFixture {
	t.Helper()

	store := session.NewMemoryStore(0)
	sink := &recordingSink{}
	tickets := ticket.NewMemoryService()
	router := NewRouter(0.6)

	classifier, err := NewQueryAgent(context.Background(), chatModel)
	require.NoError(t, err)

	if searcher == nil {
		searcher = testIndex()
	}

	executors := []Executor{
		NewRetrieveExecutor(searcher, chatModel, 5, time.Second),
		NewGeneralExecutor(chatModel, 3),
		NewClarifyExecutor(chatModel),
		NewEscalateExecutor(tickets, sink),
		NewTicketStatusExecutor(tickets),
	}

	pipeline, err := NewPipeline(store, classifier, router, executors, sink, 30*time.Second)
	require.NoError(t, err)

	return &pipelineFixture{pipeline: pipeline, store: store, sink: sink, router: router}
}

func TestPipelineGreeting(t *testing.T) {
	chatModel := scriptedModel(
		func(string) (string, error) { return classificationJSON(t, "general_chat", 0.95, nil), nil },
		func() (string, error) { return "Hello! How can I help you today?", nil },
	)
	f := newPipelineFixture(t, chatModel, nil)

	response, sessionID := f.pipeline.Process(context.Background(), "Hello!", "")

	assert.NotEmpty(t, sessionID)
	assert.Equal(t, "Hello! How can I help you today?", response.Content)
	assert.GreaterOrEqual(t, response.Confidence, 0.7)
}

func TestPipelinePasswordResetCitesSources(t *testing.T) {
	chatModel := scriptedModel(
		func(string) (string, error) { return classificationJSON(t, "password_reset", 0.9, nil), nil },
		func() (string, error) { return "Request a reset link from the portal [1].", nil },
	)
	f := newPipelineFixture(t, chatModel, nil)

	response, _ := f.pipeline.Process(context.Background(), "How do I reset my password?", "")

	assert.NotEmpty(t, response.Sources)
	assert.Contains(t, response.Content, "reset link")
}

func TestPipelineHumanEscalation(t *testing.T) {
	// Even a confident general_chat classification loses to the "human"
	// trigger keyword.
	chatModel := scriptedModel(
		func(string) (string, error) { return classificationJSON(t, "general_chat", 0.9, nil), nil },
		func() (string, error) { return "unused", nil },
	)
	f := newPipelineFixture(t, chatModel, nil)

	response, _ := f.pipeline.Process(context.Background(), "I want to speak to a human", "")

	assert.Equal(t, 1.0, response.Confidence)
	assert.Contains(t, response.Content, "reference number")
	assert.Contains(t, response.Content, "2 business hours")
}

func TestPipelineRemembersTicketAcrossTurns(t *testing.T) {
	var turn int
	chatModel := scriptedModel(
		func(string) (string, error) {
			turn++
			if turn == 1 {
				return classificationJSON(t, "ticket_status", 0.9, map[string]string{"ticket_id": "TKT-67890"}), nil
			}
			// Follow-up mentions no ticket id; the session should remember it.
			return classificationJSON(t, "ticket_status", 0.85, nil), nil
		},
		func() (string, error) { return "unused", nil },
	)
	f := newPipelineFixture(t, chatModel, nil)

	first, sessionID := f.pipeline.Process(context.Background(), "Check on ticket TKT-67890 please", "")
	assert.Contains(t, first.Content, "TKT-67890")

	second, _ := f.pipeline.Process(context.Background(), "Any update on it?", sessionID)
	assert.Contains(t, second.Content, "TKT-67890")
	assert.Contains(t, second.Content, "Resolved")
}

func TestPipelineEmptyMessage(t *testing.T) {
	chatModel := scriptedModel(
		func(string) (string, error) { return "", errors.New("should not be called") },
		func() (string, error) { return "", errors.New("should not be called") },
	)
	f := newPipelineFixture(t, chatModel, nil)

	response, sessionID := f.pipeline.Process(context.Background(), "   \n  ", "")

	assert.NotEmpty(t, sessionID)
	assert.Equal(t, 0.0, response.Confidence)
	assert.True(t, response.RequiresFollowup)
	assert.Contains(t, response.Content, "didn't receive a message")
}

func TestPipelineAlwaysRespondsWhenModelIsDown(t *testing.T) {
	// Classifier fails -> unknown/0.0 -> clarification -> clarify model also
	// fails -> canned clarification question. The user still gets guidance.
	chatModel := &mockChatModel{reply: func([]*schema.Message) (*schema.Message, error) {
		return nil, errors.New("api down")
	}}
	f := newPipelineFixture(t, chatModel, nil)

	response, sessionID := f.pipeline.Process(context.Background(), "help me", "")

	assert.NotEmpty(t, sessionID)
	assert.NotEmpty(t, response.Content)
	assert.True(t, response.RequiresFollowup)
}

type panicExecutor struct{ name string }

func (p panicExecutor) Name() string { return p.name }

func (p panicExecutor) Execute(context.Context, pkg.RoutingDecision, *session.Session) (pkg.AgentResponse, error) {
	panic("executor blew up")
}

func TestPipelineRecoversExecutorPanic(t *testing.T) {
	chatModel := scriptedModel(
		func(string) (string, error) { return classificationJSON(t, "knowledge_query", 0.9, nil), nil },
		func() (string, error) { return "Here is what I know.", nil },
	)

	store := session.NewMemoryStore(0)
	sink := &recordingSink{}
	classifier, err := NewQueryAgent(context.Background(), chatModel)
	require.NoError(t, err)

	executors := []Executor{
		panicExecutor{name: AgentRetrieve},
		NewGeneralExecutor(chatModel, 3),
	}
	pipeline, err := NewPipeline(store, classifier, NewRouter(0.6), executors, sink, 30*time.Second)
	require.NoError(t, err)

	response, _ := pipeline.Process(context.Background(), "how do refunds work", "")

	// The retrieve executor panicked; the general fallback answered.
	assert.Equal(t, "Here is what I know.", response.Content)
}

func TestPipelineApologyWhenEverythingFails(t *testing.T) {
	// Classifier succeeds, but retrieval's search backend is down and every
	// other model call errors, so the whole fallback chain is exhausted.
	chatModel := scriptedModel(
		func(string) (string, error) { return classificationJSON(t, "knowledge_query", 0.9, nil), nil },
		func() (string, error) { return "", errors.New("api down") },
	)
	f := newPipelineFixture(t, chatModel, failingSearcher{})

	response, sessionID := f.pipeline.Process(context.Background(), "what is the refund policy", "")

	assert.NotEmpty(t, sessionID)
	assert.Equal(t, 0.0, response.Confidence)
	assert.True(t, response.RequiresFollowup)
	assert.Contains(t, response.Content, "apologize")
	assert.Contains(t, response.SuggestedActions, "Speak to human")
}

func TestPipelineUnknownTargetFallsBackToGeneral(t *testing.T) {
	chatModel := scriptedModel(
		func(string) (string, error) { return classificationJSON(t, "general_chat", 0.9, nil), nil },
		func() (string, error) { return "I can still help.", nil },
	)
	f := newPipelineFixture(t, chatModel, nil)
	f.router.Update(pkg.IntentGeneralChat, "agent_that_does_not_exist", "")

	response, _ := f.pipeline.Process(context.Background(), "hello there", "")

	assert.Equal(t, "I can still help.", response.Content)
}

func TestPipelineRecordsTurnAndAudit(t *testing.T) {
	chatModel := scriptedModel(
		func(string) (string, error) { return classificationJSON(t, "general_chat", 0.95, nil), nil },
		func() (string, error) { return "Hi!", nil },
	)
	f := newPipelineFixture(t, chatModel, nil)

	_, sessionID := f.pipeline.Process(context.Background(), "Hello!", "")

	sess, err := f.pipeline.Session(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, sess.Turns, 1)
	assert.Equal(t, "Hello!", sess.Turns[0].UserMessage)
	assert.Equal(t, pkg.IntentGeneralChat, sess.Turns[0].Intent)
	assert.Equal(t, AgentGeneral, sess.Turns[0].Routing)

	require.Len(t, f.sink.entries, 1)
	assert.Equal(t, "turn_processed", f.sink.entries[0].Event)
	assert.Equal(t, sessionID, f.sink.entries[0].SessionID)
	assert.False(t, f.sink.entries[0].UsedFallback)
}

func TestPipelineClearSession(t *testing.T) {
	chatModel := scriptedModel(
		func(string) (string, error) { return classificationJSON(t, "general_chat", 0.95, nil), nil },
		func() (string, error) { return "Hi!", nil },
	)
	f := newPipelineFixture(t, chatModel, nil)

	_, sessionID := f.pipeline.Process(context.Background(), "Hello!", "")

	existed, err := f.pipeline.ClearSession(context.Background(), sessionID)
	require.NoError(t, err)
	assert.True(t, existed)

	_, err = f.pipeline.Session(context.Background(), sessionID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

type failingSink struct{}

func (failingSink) Log(audit.Entry) error { return errors.New("disk full") }

func TestPipelineAuditFailureDoesNotFailTurn(t *testing.T) {
	chatModel := scriptedModel(
		func(string) (string, error) { return classificationJSON(t, "general_chat", 0.95, nil), nil },
		func() (string, error) { return "Hi!", nil },
	)

	store := session.NewMemoryStore(0)
	classifier, err := NewQueryAgent(context.Background(), chatModel)
	require.NoError(t, err)

	executors := []Executor{NewGeneralExecutor(chatModel, 3)}
	pipeline, err := NewPipeline(store, classifier, NewRouter(0.6), executors, failingSink{}, 30*time.Second)
	require.NoError(t, err)

	response, sessionID := pipeline.Process(context.Background(), "Hello!", "")

	assert.Equal(t, "Hi!", response.Content)
	sess, err := pipeline.Session(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Len(t, sess.Turns, 1)
}

func TestPipelineConcurrentSameSession(t *testing.T) {
	chatModel := scriptedModel(
		func(string) (string, error) { return classificationJSON(t, "general_chat", 0.95, nil), nil },
		func() (string, error) { return "Hi!", nil },
	)
	f := newPipelineFixture(t, chatModel, nil)

	_, sessionID := f.pipeline.Process(context.Background(), "Hello!", "")

	const workers = 8
	done := make(chan struct{})
	for i := 0; i < workers; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			f.pipeline.Process(context.Background(), "Hello again!", sessionID)
		}()
	}
	for i := 0; i < workers; i++ {
		<-done
	}

	sess, err := f.pipeline.Session(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Len(t, sess.Turns, workers+1)
}
