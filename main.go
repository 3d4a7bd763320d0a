package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"studentsupport/internal/agents"
	"studentsupport/internal/audit"
	"studentsupport/internal/config"
	"studentsupport/internal/llm"
	"studentsupport/internal/logger"
	"studentsupport/internal/search"
	"studentsupport/internal/session"
	"studentsupport/internal/ticket"
)

// knowledgeBase seeds the in-memory search index with support articles the
// retrieval executor can cite.
func knowledgeBase() []search.Document {
	return []search.Document{
		{
			ID:    "kb-001",
			Title: "Password Reset Guide",
			Content: "To reset your student portal password, go to portal.university.edu/reset, " +
				"enter your student email address, and follow the link sent to your inbox. " +
				"The reset link expires after 30 minutes. If you no longer have access to " +
				"your email, contact the IT helpdesk with a photo ID.",
		},
		{
			ID:    "kb-002",
			Title: "Course Registration",
			Content: "Course registration opens two weeks before each semester. Log into the " +
				"student portal, select Enrollment, and search for courses by number or title. " +
				"Waitlisted courses notify you automatically when a seat opens.",
		},
		{
			ID:    "kb-003",
			Title: "CS310 Machine Learning Syllabus",
			Content: "CS310 covers supervised learning, neural networks, and model evaluation. " +
				"Prerequisites are CS210 and MATH220. The course meets Tuesdays and Thursdays " +
				"with a weekly lab session. Grading is 40% projects, 30% exams, 30% labs.",
		},
		{
			ID:    "kb-004",
			Title: "Support Ticket Guide",
			Content: "Support tickets track issues the helpdesk is working on. Each ticket has " +
				"an id of the form TKT-12345. You can check ticket status any time by quoting " +
				"the ticket number. Most tickets receive a first response within one business day.",
		},
		{
			ID:    "kb-005",
			Title: "Tuition and Refund Policy",
			Content: "Tuition is due by the first day of classes. Dropping a course within the " +
				"first two weeks qualifies for a full refund. Partial refunds apply through " +
				"week four. Contact the bursar's office for payment plans.",
		},
	}
}

// demoMessages walks the pipeline through a multi-turn support conversation
// exercising greeting, retrieval, follow-up context, ticket lookup, and
// escalation.
var demoMessages = []string{
	"Hello!",
	"How do I reset my password?",
	"What if I don't have access to my email anymore?",
	"Can you check on ticket TKT-12345?",
	"This isn't helping, I want to speak to a human",
}

func main() {
	// .env is optional; environment variables win either way.
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	ctx := context.Background()

	cfg, err := config.Load("config.yaml")
	if err != nil {
		fmt.Printf("Error loading config.yaml: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Log); err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		os.Exit(1)
	}

	chatModel, err := llm.NewChatModel(ctx, cfg.LLM)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create chat model")
		os.Exit(1)
	}

	var store session.Store
	switch cfg.Session.Backend {
	case "redis":
		redisStore, err := session.NewRedisStore(ctx, os.Getenv("REDIS_URL"), cfg.Session.TTL())
		if err != nil {
			logger.Error().Err(err).Msg("failed to connect to redis")
			os.Exit(1)
		}
		defer redisStore.Close()
		store = redisStore
	default:
		store = session.NewMemoryStore(cfg.Session.TTL())
	}

	sink, err := audit.NewFileSink(cfg.Audit.Dir)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create audit sink")
		os.Exit(1)
	}

	classifier, err := agents.NewQueryAgent(ctx, chatModel)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create query agent")
		os.Exit(1)
	}

	router := agents.NewRouter(cfg.Router.ConfidenceThreshold)
	index := search.NewMemoryIndex(knowledgeBase())
	tickets := ticket.NewMemoryService()

	executors := []agents.Executor{
		agents.NewRetrieveExecutor(index, chatModel, cfg.Search.TopK, cfg.Search.Timeout()),
		agents.NewGeneralExecutor(chatModel, cfg.Session.HistoryTurns),
		agents.NewClarifyExecutor(chatModel),
		agents.NewEscalateExecutor(tickets, sink),
		agents.NewTicketStatusExecutor(tickets),
	}

	pipeline, err := agents.NewPipeline(store, classifier, router, executors, sink, cfg.Pipeline.LLMTimeout())
	if err != nil {
		logger.Error().Err(err).Msg("failed to create pipeline")
		os.Exit(1)
	}

	var sessionID string
	for i, message := range demoMessages {
		fmt.Printf("\n%s\n", strings.Repeat("=", 60))
		fmt.Printf("Turn %d\n", i+1)
		fmt.Printf("%s\n", strings.Repeat("=", 60))
		fmt.Printf("User: %s\n", message)

		response, id := pipeline.Process(ctx, message, sessionID)
		sessionID = id

		fmt.Printf("\nAgent: %s\n", response.Content)
		fmt.Printf("Confidence: %.2f\n", response.Confidence)
		if len(response.Sources) > 0 {
			fmt.Println("Sources:")
			for _, src := range response.Sources {
				fmt.Printf("  [%d] %s (score %.2f)\n", src.ID, src.Title, src.Score)
			}
		}
		if len(response.SuggestedActions) > 0 {
			fmt.Printf("Suggested: %s\n", strings.Join(response.SuggestedActions, " | "))
		}
	}

	sess, err := pipeline.Session(ctx, sessionID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load session for summary")
		return
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 60))
	fmt.Println("Session Summary")
	fmt.Printf("%s\n", strings.Repeat("=", 60))
	fmt.Printf("Session ID: %s\n", sess.ID)
	fmt.Printf("Turns: %d\n", len(sess.Turns))
	fmt.Println(sess.ContextSummary())
}
