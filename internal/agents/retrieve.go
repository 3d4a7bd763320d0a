package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"studentsupport/internal/search"
	"studentsupport/internal/session"
	"studentsupport/pkg"
)

const ragSystemPrompt = `You are a helpful assistant answering questions based on a knowledge base.

IMPORTANT RULES:
1. ONLY answer based on the provided context - do not make up information
2. ALWAYS cite your sources using [1], [2], [3], etc. corresponding to the context sections
3. If the context doesn't contain enough information, say "I don't have enough information about that in my knowledge base"
4. Be concise but thorough
5. If multiple sources support a point, cite all of them

When you cannot answer from the context:
- Acknowledge the limitation
- Suggest what information might help
- Offer to escalate to human support if needed`

// RetrieveExecutor answers knowledge queries from the knowledge base: it
// searches, builds a numbered citation context, and asks the model to
// synthesize an answer constrained to that context.
type RetrieveExecutor struct {
	searcher      search.Searcher
	chatModel     model.BaseChatModel
	topK          int
	searchTimeout time.Duration
}

// NewRetrieveExecutor wires the search collaborator and chat model. topK
// defaults to 5 and the search timeout to 5 seconds when non-positive.
func NewRetrieveExecutor(searcher search.Searcher, chatModel model.BaseChatModel, topK int, searchTimeout time.Duration) *RetrieveExecutor {
	if topK <= 0 {
		topK = 5
	}
	if searchTimeout <= 0 {
		searchTimeout = 5 * time.Second
	}
	return &RetrieveExecutor{
		searcher:      searcher,
		chatModel:     chatModel,
		topK:          topK,
		searchTimeout: searchTimeout,
	}
}

func (e *RetrieveExecutor) Name() string { return AgentRetrieve }

func (e *RetrieveExecutor) Execute(ctx context.Context, decision pkg.RoutingDecision, sess *session.Session) (pkg.AgentResponse, error) {
	searchQuery := decision.Parameters["search_query"]
	if searchQuery == "" {
		searchQuery = decision.Parameters["query"]
	}

	searchCtx, cancel := context.WithTimeout(ctx, e.searchTimeout)
	defer cancel()

	docs, err := e.searcher.Search(searchCtx, searchQuery, e.topK)
	if err != nil {
		return pkg.AgentResponse{}, fmt.Errorf("knowledge base search failed: %w", err)
	}

	if len(docs) == 0 {
		return pkg.AgentResponse{
			Content: "I don't have enough information about that in my knowledge base. " +
				"Could you rephrase the question, or would you like me to connect you with human support?",
			Sources:          []pkg.Source{},
			Confidence:       0.3,
			RequiresFollowup: true,
			SuggestedActions: []string{"Rephrase the question", "Talk to human support"},
		}, nil
	}

	messages := []*schema.Message{
		schema.SystemMessage(ragSystemPrompt),
		schema.UserMessage(buildCitationContext(docs) + "\n\nQuestion: " + searchQuery),
	}

	answer, err := e.chatModel.Generate(ctx, messages)
	if err != nil {
		return pkg.AgentResponse{}, fmt.Errorf("answer synthesis failed: %w", err)
	}

	sources := make([]pkg.Source, 0, len(docs))
	for i, doc := range docs {
		sources = append(sources, pkg.Source{
			ID:      i + 1,
			Title:   doc.Title,
			Preview: preview(doc.Content, 200),
			Score:   doc.Score,
		})
	}

	return pkg.AgentResponse{
		Content:          answer.Content,
		Sources:          sources,
		Confidence:       0.85,
		SuggestedActions: []string{"Ask a follow-up question", "Need more help?"},
		Metadata:         map[string]any{"search_results_count": len(docs)},
	}, nil
}

// buildCitationContext numbers retrieved documents so the model can cite
// them as [1], [2], ...
func buildCitationContext(docs []search.Document) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, doc := range docs {
		fmt.Fprintf(&b, "\n[%d] **%s**\n%s\n", i+1, doc.Title, doc.Content)
	}
	return b.String()
}

func preview(content string, max int) string {
	if len(content) <= max {
		return content
	}
	return content[:max] + "..."
}
