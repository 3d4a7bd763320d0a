package agents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studentsupport/internal/session"
	"studentsupport/pkg"
)

func newTestQueryAgent(t *testing.T, content string) *QueryAgent {
	t.Helper()
	agent, err := NewQueryAgent(context.Background(), fixedModel(content))
	require.NoError(t, err)
	return agent
}

func TestQueryAgentParsesClassification(t *testing.T) {
	agent := newTestQueryAgent(t, `{
		"intent": "ticket_status",
		"confidence": 0.92,
		"entities": {"ticket_id": "TKT-12345"},
		"entity_confidences": {"ticket_id": 0.99},
		"requires_clarification": false,
		"urgency": "medium",
		"sentiment": "neutral",
		"contains_pii": false
	}`)

	query := agent.Process(context.Background(), "Can you check TKT-12345?", session.New(""))

	assert.Equal(t, pkg.IntentTicketStatus, query.Intent)
	assert.Equal(t, 0.92, query.Confidence)
	assert.Equal(t, "Can you check TKT-12345?", query.OriginalQuery)

	entity := query.Entity("ticket_id")
	require.NotNil(t, entity)
	assert.Equal(t, "TKT-12345", entity.Value)
	assert.Equal(t, "identifier", entity.Type)
	assert.Equal(t, 0.99, entity.Confidence)
	assert.Equal(t, "medium", query.Metadata["urgency"])
}

func TestQueryAgentStripsCodeFence(t *testing.T) {
	agent := newTestQueryAgent(t, "```json\n{\"intent\": \"general_chat\", \"confidence\": 0.9}\n```")

	query := agent.Process(context.Background(), "Hello!", nil)

	assert.Equal(t, pkg.IntentGeneralChat, query.Intent)
	assert.Equal(t, 0.9, query.Confidence)
}

func TestQueryAgentMalformedJSONDegradesToUnknown(t *testing.T) {
	agent := newTestQueryAgent(t, "I think the user wants a password reset.")

	query := agent.Process(context.Background(), "reset please", nil)

	assert.Equal(t, pkg.IntentUnknown, query.Intent)
	assert.Equal(t, 0.0, query.Confidence)
	assert.Equal(t, "unparseable output", query.Metadata["classification_error"])
}

func TestQueryAgentModelErrorDegradesToUnknown(t *testing.T) {
	agent, err := NewQueryAgent(context.Background(), failingModel(errors.New("api down")))
	require.NoError(t, err)

	query := agent.Process(context.Background(), "hello", nil)

	assert.Equal(t, pkg.IntentUnknown, query.Intent)
	assert.Equal(t, 0.0, query.Confidence)
}

func TestQueryAgentRejectsInvalidInput(t *testing.T) {
	agent := newTestQueryAgent(t, `{"intent": "general_chat", "confidence": 0.9}`)

	for name, input := range map[string]string{
		"empty":      "",
		"whitespace": "   \n\t  ",
		"oversized":  strings.Repeat("a", maxQueryLength+1),
	} {
		t.Run(name, func(t *testing.T) {
			query := agent.Process(context.Background(), input, nil)
			assert.Equal(t, pkg.IntentUnknown, query.Intent)
			assert.Equal(t, 0.0, query.Confidence)
		})
	}
}

func TestQueryAgentInventedIntentBecomesUnknown(t *testing.T) {
	agent := newTestQueryAgent(t, `{"intent": "order_pizza", "confidence": 0.95}`)

	query := agent.Process(context.Background(), "large pepperoni please", nil)

	assert.Equal(t, pkg.IntentUnknown, query.Intent)
}

func TestQueryAgentClampsConfidence(t *testing.T) {
	agent := newTestQueryAgent(t, `{"intent": "general_chat", "confidence": 1.7}`)

	query := agent.Process(context.Background(), "hi", nil)

	assert.Equal(t, 1.0, query.Confidence)
}

func TestQueryAgentDropsClarificationWithoutQuestion(t *testing.T) {
	agent := newTestQueryAgent(t, `{
		"intent": "knowledge_query",
		"confidence": 0.7,
		"requires_clarification": true,
		"clarification_question": ""
	}`)

	query := agent.Process(context.Background(), "the thing about the stuff", nil)

	assert.False(t, query.RequiresClarification)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`{"a":1}`))
}
