package session

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"studentsupport/pkg"
)

// MaxTurns bounds the per-session history. When the cap is exceeded the
// oldest turn is evicted first.
const MaxTurns = 50

// Turn is one user-message/agent-response exchange. Immutable once appended.
type Turn struct {
	ID            string            `json:"turn_id"`
	Timestamp     time.Time         `json:"timestamp"`
	UserMessage   string            `json:"user_message"`
	AgentResponse string            `json:"agent_response"`
	Intent        pkg.Intent        `json:"intent"`
	Entities      map[string]string `json:"entities"`
	Routing       string            `json:"routing"`
	Confidence    float64           `json:"confidence"`
}

// Session is the conversational context spanning multiple turns, keyed by an
// opaque id. It is mutated only through the orchestrator; classifier, router
// and executors borrow it read-only for the duration of one call.
type Session struct {
	ID           string         `json:"session_id"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
	Turns        []Turn         `json:"turns"`
	Context      map[string]any `json:"context"`
}

// New creates a session. An empty id allocates a fresh one.
func New(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		LastActivity: now,
		Turns:        []Turn{},
		Context:      make(map[string]any),
	}
}

// AddTurn records a new conversation turn, accumulates its entities into the
// session context, and enforces the turn cap.
func (s *Session) AddTurn(userMessage, agentResponse string, intent pkg.Intent, entities map[string]string, routing string, confidence float64) Turn {
	if entities == nil {
		entities = map[string]string{}
	}
	turn := Turn{
		ID:            uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		UserMessage:   userMessage,
		AgentResponse: agentResponse,
		Intent:        intent,
		Entities:      entities,
		Routing:       routing,
		Confidence:    confidence,
	}
	s.Turns = append(s.Turns, turn)
	if len(s.Turns) > MaxTurns {
		s.Turns = s.Turns[len(s.Turns)-MaxTurns:]
	}
	s.LastActivity = turn.Timestamp

	// Accumulate entities across turns so follow-up questions can reference
	// facts stated earlier (e.g. a ticket id from a previous turn).
	all := s.allEntities()
	for k, v := range entities {
		all[k] = v
	}
	s.Context["all_entities"] = all

	return turn
}

// Entity looks up an accumulated entity value from any prior turn.
func (s *Session) Entity(name string) (string, bool) {
	v, ok := s.allEntities()[name]
	return v, ok
}

// History returns recent turns as alternating user/assistant messages
// suitable for LLM prompts.
func (s *Session) History(maxTurns int) []*schema.Message {
	recent := s.Turns
	if maxTurns > 0 && len(recent) > maxTurns {
		recent = recent[len(recent)-maxTurns:]
	}

	history := make([]*schema.Message, 0, len(recent)*2)
	for _, turn := range recent {
		history = append(history, schema.UserMessage(turn.UserMessage))
		history = append(history, schema.AssistantMessage(turn.AgentResponse, nil))
	}
	return history
}

// ContextSummary produces a short digest of the conversation (recent intents,
// accumulated entities, turn count) for inclusion in classifier prompts.
func (s *Session) ContextSummary() string {
	if len(s.Turns) == 0 {
		return "This is the start of a new conversation."
	}

	recent := s.Turns
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	seen := make(map[pkg.Intent]bool)
	var intents []string
	for _, turn := range recent {
		if !seen[turn.Intent] {
			seen[turn.Intent] = true
			intents = append(intents, string(turn.Intent))
		}
	}

	var parts []string
	if len(intents) > 0 {
		parts = append(parts, "Recent topics: "+strings.Join(intents, ", "))
	}

	if all := s.allEntities(); len(all) > 0 {
		keys := make([]string, 0, len(all))
		for k := range all {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%s", k, all[k]))
		}
		parts = append(parts, "Known information: "+strings.Join(pairs, ", "))
	}

	parts = append(parts, fmt.Sprintf("Conversation length: %d turns", len(s.Turns)))
	return strings.Join(parts, "\n")
}

func (s *Session) allEntities() map[string]string {
	if s.Context == nil {
		s.Context = make(map[string]any)
	}
	switch v := s.Context["all_entities"].(type) {
	case map[string]string:
		return v
	case map[string]any:
		// JSON round-trips (Redis backend) widen the map value type.
		m := make(map[string]string, len(v))
		for k, val := range v {
			if str, ok := val.(string); ok {
				m[k] = str
			}
		}
		return m
	default:
		return map[string]string{}
	}
}
