package agents

import (
	"context"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"studentsupport/internal/logger"
	"studentsupport/internal/session"
	"studentsupport/pkg"
)

// maxQueryLength bounds classifier input to keep prompt size and API cost
// predictable. Longer input degrades to an unknown classification, it never
// errors.
const maxQueryLength = 10000

// querySystemTemplate defines the classification contract: intent
// categories, entities to extract, and the exact JSON shape the model must
// return. Literal braces are doubled for the f-string template format.
const querySystemTemplate = `You are a query understanding agent for a student support system.
Your job is to analyze user messages and extract structured information.

## Intent Categories

Classify the user's message into exactly ONE of these intents:

1. **knowledge_query**: Questions about policies, procedures, how-to guides, FAQs
   - Example: "How do I reset my password?"
   - Example: "What is the refund policy?"

2. **password_reset**: Specifically about password or account access issues
   - Example: "I forgot my password"
   - Example: "My account is locked"

3. **ticket_status**: Checking on existing support tickets
   - Example: "What's the status of my ticket?"
   - Example: "Can you check TKT-12345?"

4. **general_chat**: Casual conversation, greetings, thanks, small talk
   - Example: "Hello!"
   - Example: "Thanks for your help"

5. **escalation**: User wants human support, is frustrated, or has complex needs
   - Example: "I need to speak to a human"
   - Example: "I want to file a complaint"

6. **course_info**: Questions about courses, schedules, registration, enrollment
   - Example: "When does CS101 start?"

7. **unknown**: Cannot determine intent from the message
   - Use this when the message is unclear, gibberish, or off-topic
   - Set confidence below 0.5 for unknown

## Entity Extraction

Extract these entities when present:
- **ticket_id**: Support ticket IDs (format: TKT-XXXXX or similar)
- **course_number**: Course codes (e.g., CS101, MATH200)
- **user_name**: If user identifies themselves by name
- **date**: Dates mentioned (format: YYYY-MM-DD if possible)
- **topic**: Main subject of the query
- **urgency**: low, medium, or high based on language

## Output Format

Respond with ONLY valid JSON in this exact format:
{{
    "intent": "<one of the intent values>",
    "confidence": <0.0 to 1.0>,
    "entities": {{
        "entity_name": "entity_value"
    }},
    "entity_confidences": {{
        "entity_name": <0.0 to 1.0>
    }},
    "requires_clarification": <true or false>,
    "clarification_question": "<question to ask if clarification needed, null otherwise>",
    "urgency": "<low, medium, or high>",
    "sentiment": "<positive, neutral, or negative>",
    "contains_pii": <true or false>
}}

## Guidelines

- Be conservative with confidence scores
- If multiple intents could apply, choose the most specific one
- Set requires_clarification=true if the message is ambiguous
- Always provide a clarification_question when requires_clarification is true
- Detect urgency from language: "ASAP", "urgent", "immediately" = high
- Set contains_pii=true when the message includes personal data beyond a name`

const queryUserTemplate = `## Conversation Context
{context_summary}

## Current User Message
{user_message}

Analyze this message and respond with JSON.`

// QueryAgent converts one raw user utterance plus session context into a
// StructuredQuery. It is the first pipeline stage. Any failure (model error,
// unparseable payload, oversized input) degrades to intent=unknown with
// confidence 0 rather than propagating.
type QueryAgent struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewQueryAgent compiles the classification chain: template -> chat model.
func NewQueryAgent(ctx context.Context, chatModel model.BaseChatModel) (*QueryAgent, error) {
	template := prompt.FromMessages(schema.FString,
		schema.SystemMessage(querySystemTemplate),
		schema.UserMessage(queryUserTemplate),
	)

	chain, err := compose.NewChain[map[string]any, *schema.Message]().
		AppendChatTemplate(template).
		AppendChatModel(chatModel).
		Compile(ctx)
	if err != nil {
		return nil, err
	}

	return &QueryAgent{chain: chain}, nil
}

// queryLLMResult mirrors the JSON contract in querySystemTemplate.
type queryLLMResult struct {
	Intent                string             `json:"intent"`
	Confidence            float64            `json:"confidence"`
	Entities              map[string]any     `json:"entities"`
	EntityConfidences     map[string]float64 `json:"entity_confidences"`
	RequiresClarification bool               `json:"requires_clarification"`
	ClarificationQuestion string             `json:"clarification_question"`
	Urgency               string             `json:"urgency"`
	Sentiment             string             `json:"sentiment"`
	ContainsPII           bool               `json:"contains_pii"`
}

// Process classifies one user message. The session is borrowed read-only for
// its context summary and never retained.
func (a *QueryAgent) Process(ctx context.Context, userMessage string, sess *session.Session) pkg.StructuredQuery {
	trimmed := strings.TrimSpace(userMessage)
	if trimmed == "" || len(trimmed) > maxQueryLength {
		return unknownQuery(userMessage, "invalid input")
	}

	contextSummary := "This is the start of a new conversation."
	if sess != nil {
		contextSummary = sess.ContextSummary()
	}

	out, err := a.chain.Invoke(ctx, map[string]any{
		"context_summary": contextSummary,
		"user_message":    trimmed,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("classification model call failed")
		return unknownQuery(userMessage, "model error")
	}

	var result queryLLMResult
	if err := sonic.UnmarshalString(stripCodeFence(out.Content), &result); err != nil {
		logger.Warn().Err(err).Msg("classification output not valid JSON")
		return unknownQuery(userMessage, "unparseable output")
	}

	return buildQuery(userMessage, result)
}

func buildQuery(original string, result queryLLMResult) pkg.StructuredQuery {
	query := pkg.StructuredQuery{
		OriginalQuery:         original,
		Intent:                pkg.ParseIntent(result.Intent),
		Entities:              parseEntities(result.Entities, result.EntityConfidences),
		Confidence:            clamp01(result.Confidence),
		RequiresClarification: result.RequiresClarification,
		ClarificationQuestion: result.ClarificationQuestion,
		Metadata: map[string]any{
			"urgency":      defaultString(result.Urgency, "low"),
			"sentiment":    defaultString(result.Sentiment, "neutral"),
			"contains_pii": result.ContainsPII,
		},
	}

	// A clarification request without a question is useless downstream, so
	// drop the flag and let confidence-based routing decide.
	if query.RequiresClarification && query.ClarificationQuestion == "" {
		query.RequiresClarification = false
	}
	return query
}

// entityTypes maps entity names to categories for downstream processing.
var entityTypes = map[string]string{
	"ticket_id":     "identifier",
	"course_number": "identifier",
	"user_name":     "name",
	"date":          "date",
	"topic":         "topic",
	"urgency":       "attribute",
}

func parseEntities(values map[string]any, confidences map[string]float64) []pkg.Entity {
	entities := make([]pkg.Entity, 0, len(values))
	for name, raw := range values {
		value, ok := raw.(string)
		if !ok || value == "" {
			continue
		}

		confidence, ok := confidences[name]
		if !ok {
			confidence = 0.8
		}

		entityType, ok := entityTypes[name]
		if !ok {
			entityType = "unknown"
		}

		entities = append(entities, pkg.Entity{
			Name:       name,
			Value:      value,
			Type:       entityType,
			Confidence: clamp01(confidence),
		})
	}
	return entities
}

func unknownQuery(original, reason string) pkg.StructuredQuery {
	return pkg.StructuredQuery{
		OriginalQuery: original,
		Intent:        pkg.IntentUnknown,
		Entities:      []pkg.Entity{},
		Confidence:    0.0,
		Metadata: map[string]any{
			"urgency":              "low",
			"sentiment":            "neutral",
			"classification_error": reason,
		},
	}
}

// stripCodeFence removes a surrounding markdown code fence, which some
// models add even when asked for raw JSON.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
