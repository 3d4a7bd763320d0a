package pkg

// Shared contracts between the pipeline stages. The QueryAgent produces a
// StructuredQuery, the Router turns it into a RoutingDecision, and the
// action executors return an AgentResponse.

// Intent is the classified category of a user request. Each intent maps to
// an action executor in the routing table.
type Intent string

const (
	IntentKnowledgeQuery Intent = "knowledge_query" // policies, procedures, how-to
	IntentPasswordReset  Intent = "password_reset"  // account access issues
	IntentTicketStatus   Intent = "ticket_status"   // existing support tickets
	IntentGeneralChat    Intent = "general_chat"    // greetings, small talk
	IntentEscalation     Intent = "escalation"      // wants a human, frustrated
	IntentCourseInfo     Intent = "course_info"     // courses, schedules, enrollment
	IntentUnknown        Intent = "unknown"         // cannot determine intent
)

// ParseIntent maps a raw string to an Intent, defaulting to IntentUnknown
// for anything outside the enumeration. LLM output goes through this so an
// invented intent never leaks into routing.
func ParseIntent(s string) Intent {
	switch Intent(s) {
	case IntentKnowledgeQuery, IntentPasswordReset, IntentTicketStatus,
		IntentGeneralChat, IntentEscalation, IntentCourseInfo, IntentUnknown:
		return Intent(s)
	default:
		return IntentUnknown
	}
}

// Priority affects response time expectations and monitoring alerts.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Entity is a single structured fact extracted from free text, such as a
// ticket id or course number.
type Entity struct {
	Name       string  `json:"name"`
	Value      string  `json:"value"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// StructuredQuery is the QueryAgent's output and the Router's input.
type StructuredQuery struct {
	OriginalQuery         string         `json:"original_query"`
	Intent                Intent         `json:"intent"`
	Entities              []Entity       `json:"entities"`
	Confidence            float64        `json:"confidence"`
	RequiresClarification bool           `json:"requires_clarification"`
	ClarificationQuestion string         `json:"clarification_question,omitempty"`
	Metadata              map[string]any `json:"metadata,omitempty"`
}

// Entity returns the named entity, or nil when absent.
func (q *StructuredQuery) Entity(name string) *Entity {
	for i := range q.Entities {
		if q.Entities[i].Name == name {
			return &q.Entities[i]
		}
	}
	return nil
}

// EntityMap flattens entities to name->value for downstream parameters and
// session accumulation.
func (q *StructuredQuery) EntityMap() map[string]string {
	m := make(map[string]string, len(q.Entities))
	for _, e := range q.Entities {
		m[e.Name] = e.Value
	}
	return m
}

// RoutingDecision is the Router's output naming which executor handles the
// query and with what parameters. Reasoning is for logs and tests only, it
// never drives control flow.
type RoutingDecision struct {
	TargetAgent        string            `json:"target_agent"`
	Parameters         map[string]string `json:"parameters"`
	FallbackAgent      string            `json:"fallback_agent,omitempty"`
	Priority           Priority          `json:"priority"`
	Reasoning          string            `json:"reasoning"`
	RequiresEscalation bool              `json:"requires_escalation"`
	EscalationReason   string            `json:"escalation_reason,omitempty"`
}

// Source is one citation record attached to a retrieval-backed response.
type Source struct {
	ID      int     `json:"id"`
	Title   string  `json:"title"`
	Preview string  `json:"preview,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// AgentResponse is an executor's output, returned to the caller.
type AgentResponse struct {
	Content          string         `json:"content"`
	Sources          []Source       `json:"sources,omitempty"`
	Confidence       float64        `json:"confidence"`
	RequiresFollowup bool           `json:"requires_followup"`
	SuggestedActions []string       `json:"suggested_actions,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}
