package agents

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"studentsupport/internal/logger"
	"studentsupport/internal/session"
	"studentsupport/pkg"
)

const clarifySystemPrompt = `You are a helpful assistant asking for clarification.

The user's message was unclear or ambiguous. Your job is to:
1. Acknowledge what you understood (if anything)
2. Ask a specific, helpful clarification question
3. Provide examples of what you can help with

Keep your response friendly and brief. Don't make the user feel bad
for being unclear - just guide them toward a clearer request.

Format: Start with what you understood, then ask ONE clear question.`

// ClarifyExecutor asks for more information when the classifier could not
// commit to an intent. It either surfaces the specific question the
// classifier produced or synthesizes one from the low-confidence guess. A
// clarification turn always requires followup.
type ClarifyExecutor struct {
	chatModel model.BaseChatModel
}

func NewClarifyExecutor(chatModel model.BaseChatModel) *ClarifyExecutor {
	return &ClarifyExecutor{chatModel: chatModel}
}

func (e *ClarifyExecutor) Name() string { return AgentClarification }

func (e *ClarifyExecutor) Execute(ctx context.Context, decision pkg.RoutingDecision, sess *session.Session) (pkg.AgentResponse, error) {
	if question := decision.Parameters["question"]; question != "" {
		return pkg.AgentResponse{
			Content:          question,
			Confidence:       0.6,
			RequiresFollowup: true,
		}, nil
	}

	prompt := fmt.Sprintf(`The user said: %q

My best guess at their intent: %s (confidence: %s)

Generate a brief, friendly clarification question to understand what they need.`,
		decision.Parameters["original_query"],
		decision.Parameters["intent_guess"],
		decision.Parameters["confidence"],
	)

	reply, err := e.chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(clarifySystemPrompt),
		schema.UserMessage(prompt),
	})
	if err != nil {
		// Clarification should not bounce through the fallback chain just
		// because the model is down; a canned question still moves the
		// conversation forward.
		logger.Warn().Err(err).Msg("clarification model call failed, using canned question")
		return e.cannedResponse(), nil
	}

	response := e.cannedResponse()
	response.Content = reply.Content
	return response, nil
}

func (e *ClarifyExecutor) cannedResponse() pkg.AgentResponse {
	return pkg.AgentResponse{
		Content: "I want to make sure I help with the right thing. " +
			"Could you tell me a bit more about what you need?",
		Confidence:       0.5,
		RequiresFollowup: true,
		SuggestedActions: []string{
			"Ask about policies",
			"Check ticket status",
			"Reset password",
			"Talk to human",
		},
	}
}
