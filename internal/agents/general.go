package agents

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"studentsupport/internal/session"
	"studentsupport/pkg"
)

const generalSystemPrompt = `You are a friendly and helpful support assistant.

For general conversation:
- Be warm and personable
- Acknowledge what the user said
- If they seem to need help, offer to assist with specific tasks
- Keep responses concise (2-3 sentences for greetings)

Things you can help with:
- Answering questions from the knowledge base
- Checking ticket status
- Password reset guidance
- Course information
- Connecting with human support

End responses by gently guiding toward these capabilities when appropriate.`

// GeneralExecutor handles greetings, small talk, and anything nothing else
// claims. It keeps continuity through recent session history but performs no
// retrieval.
type GeneralExecutor struct {
	chatModel    model.BaseChatModel
	historyTurns int
}

func NewGeneralExecutor(chatModel model.BaseChatModel, historyTurns int) *GeneralExecutor {
	if historyTurns <= 0 {
		historyTurns = 3
	}
	return &GeneralExecutor{chatModel: chatModel, historyTurns: historyTurns}
}

func (e *GeneralExecutor) Name() string { return AgentGeneral }

func (e *GeneralExecutor) Execute(ctx context.Context, decision pkg.RoutingDecision, sess *session.Session) (pkg.AgentResponse, error) {
	query := decision.Parameters["query"]
	if query == "" {
		query = decision.Parameters["original_query"]
	}

	messages := []*schema.Message{schema.SystemMessage(generalSystemPrompt)}
	if sess != nil {
		messages = append(messages, sess.History(e.historyTurns)...)
	}
	messages = append(messages, schema.UserMessage(query))

	reply, err := e.chatModel.Generate(ctx, messages)
	if err != nil {
		return pkg.AgentResponse{}, fmt.Errorf("conversation model call failed: %w", err)
	}

	return pkg.AgentResponse{
		Content:    reply.Content,
		Confidence: 0.8,
		SuggestedActions: []string{
			"Ask a specific question",
			"Check ticket status",
			"Get help with password",
		},
	}, nil
}
