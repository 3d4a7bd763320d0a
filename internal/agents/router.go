package agents

import (
	"fmt"
	"sort"
	"strings"

	"studentsupport/pkg"
)

// Executor names used in routing decisions. The pipeline registers an
// executor under each of these; RouterAgent only ever emits names from this
// set plus the general default.
const (
	AgentRetrieve      = "retrieve_agent"
	AgentGeneral       = "general_agent"
	AgentClarification = "clarification_agent"
	AgentEscalation    = "escalation_agent"
	AgentTicket        = "ticket_agent"
)

// DefaultConfidenceThreshold is the confidence below which a query is routed
// to clarification regardless of intent.
const DefaultConfidenceThreshold = 0.6

// route pairs a primary executor with an optional fallback.
type route struct {
	primary  string
	fallback string
}

// defaultRoutingTable maps each intent to its executor pair. Unknown intents
// fall through to the general executor.
func defaultRoutingTable() map[pkg.Intent]route {
	return map[pkg.Intent]route{
		pkg.IntentKnowledgeQuery: {AgentRetrieve, AgentGeneral},
		pkg.IntentPasswordReset:  {AgentRetrieve, AgentEscalation},
		pkg.IntentTicketStatus:   {AgentTicket, AgentGeneral},
		pkg.IntentGeneralChat:    {AgentGeneral, ""},
		pkg.IntentEscalation:     {AgentEscalation, ""},
		pkg.IntentCourseInfo:     {AgentRetrieve, AgentGeneral},
		pkg.IntentUnknown:        {AgentClarification, AgentGeneral},
	}
}

// Escalation trigger keywords checked against the raw message. These take
// precedence over intent routing because they indicate situations requiring
// human attention.
var (
	safetyTriggers = []string{"suicide", "harm", "hurt myself", "kill", "die"}
	legalTriggers  = []string{"lawyer", "attorney", "legal", "sue", "lawsuit"}
	otherTriggers  = []string{
		"supervisor", "manager", "complaint", "incompetent",
		"emergency", "urgent", "immediately", "right now", "asap",
		"human", "real person", "speak to someone", "talk to someone",
	}
)

// Router maps a StructuredQuery to a RoutingDecision. It is a pure decision
// function: no I/O, no hidden state, identical input gives identical output.
type Router struct {
	table     map[pkg.Intent]route
	threshold float64
}

// NewRouter creates a router with the default routing table. A non-positive
// threshold falls back to DefaultConfidenceThreshold.
func NewRouter(confidenceThreshold float64) *Router {
	if confidenceThreshold <= 0 {
		confidenceThreshold = DefaultConfidenceThreshold
	}
	return &Router{
		table:     defaultRoutingTable(),
		threshold: confidenceThreshold,
	}
}

// Route decides which executor handles the query. Precedence, first match
// wins:
//  1. escalation trigger keywords in the raw text
//  2. the classifier's clarification request
//  3. low confidence (below threshold) -> clarification with general fallback
//  4. the routing table, defaulting to the general executor
func (r *Router) Route(query pkg.StructuredQuery) pkg.RoutingDecision {
	if decision, ok := r.checkEscalationTriggers(query); ok {
		return decision
	}

	if query.RequiresClarification {
		return pkg.RoutingDecision{
			TargetAgent: AgentClarification,
			Parameters: map[string]string{
				"question":       query.ClarificationQuestion,
				"original_query": query.OriginalQuery,
				"intent_guess":   string(query.Intent),
			},
			FallbackAgent: AgentGeneral,
			Priority:      pkg.PriorityMedium,
			Reasoning:     "classifier requested clarification before proceeding",
		}
	}

	if query.Confidence < r.threshold {
		return pkg.RoutingDecision{
			TargetAgent: AgentClarification,
			Parameters: map[string]string{
				"intent_guess":   string(query.Intent),
				"confidence":     fmt.Sprintf("%.2f", query.Confidence),
				"original_query": query.OriginalQuery,
			},
			FallbackAgent: AgentGeneral,
			Priority:      pkg.PriorityMedium,
			Reasoning:     fmt.Sprintf("low confidence (%.2f) - requesting clarification", query.Confidence),
		}
	}

	rt, ok := r.table[query.Intent]
	if !ok {
		rt = route{AgentGeneral, ""}
	}

	return pkg.RoutingDecision{
		TargetAgent:   rt.primary,
		Parameters:    r.buildParameters(query),
		FallbackAgent: rt.fallback,
		Priority:      r.determinePriority(query),
		Reasoning:     fmt.Sprintf("intent '%s' with confidence %.2f", query.Intent, query.Confidence),
	}
}

// Update replaces the route for an intent at runtime.
func (r *Router) Update(intent pkg.Intent, primary, fallback string) {
	r.table[intent] = route{primary, fallback}
}

// AvailableAgents lists every executor name the routing table can emit.
func (r *Router) AvailableAgents() []string {
	set := make(map[string]bool)
	for _, rt := range r.table {
		set[rt.primary] = true
		if rt.fallback != "" {
			set[rt.fallback] = true
		}
	}
	agents := make([]string, 0, len(set))
	for name := range set {
		agents = append(agents, name)
	}
	sort.Strings(agents)
	return agents
}

func (r *Router) checkEscalationTriggers(query pkg.StructuredQuery) (pkg.RoutingDecision, bool) {
	text := strings.ToLower(query.OriginalQuery)

	var triggered []string
	matchAny := func(triggers []string) bool {
		var hit bool
		for _, t := range triggers {
			if strings.Contains(text, t) {
				triggered = append(triggered, t)
				hit = true
			}
		}
		return hit
	}

	safety := matchAny(safetyTriggers)
	legal := matchAny(legalTriggers)
	matchAny(otherTriggers)

	if len(triggered) == 0 {
		return pkg.RoutingDecision{}, false
	}

	priority := pkg.PriorityHigh
	reason := "escalation trigger detected: " + strings.Join(triggered, ", ")
	switch {
	case safety:
		priority = pkg.PriorityUrgent
		reason = "safety concern detected - immediate attention required"
	case legal:
		reason = "legal concern detected - requires human review"
	}

	return pkg.RoutingDecision{
		TargetAgent: AgentEscalation,
		Parameters: map[string]string{
			"original_query":     query.OriginalQuery,
			"triggered_keywords": strings.Join(triggered, ","),
		},
		// Escalation has no fallback: it must handle the request itself.
		Priority:           priority,
		Reasoning:          "escalation triggers detected: " + strings.Join(triggered, ", "),
		RequiresEscalation: true,
		EscalationReason:   reason,
	}, true
}

// buildParameters packages intent-specific data for the target executor.
func (r *Router) buildParameters(query pkg.StructuredQuery) map[string]string {
	params := map[string]string{
		"query":      query.OriginalQuery,
		"intent":     string(query.Intent),
		"confidence": fmt.Sprintf("%.2f", query.Confidence),
	}

	switch query.Intent {
	case pkg.IntentTicketStatus:
		if e := query.Entity("ticket_id"); e != nil {
			params["ticket_id"] = e.Value
		}
	case pkg.IntentKnowledgeQuery, pkg.IntentCourseInfo:
		if e := query.Entity("topic"); e != nil {
			params["topic"] = e.Value
		}
		if e := query.Entity("course_number"); e != nil {
			params["course_number"] = e.Value
		}
		params["search_query"] = query.OriginalQuery
	case pkg.IntentPasswordReset:
		if e := query.Entity("user_name"); e != nil {
			params["user_name"] = e.Value
		}
		params["search_query"] = query.OriginalQuery
	}

	return params
}

func (r *Router) determinePriority(query pkg.StructuredQuery) pkg.Priority {
	priority := pkg.PriorityMedium
	if urgency, ok := query.Metadata["urgency"].(string); ok {
		switch urgency {
		case "high":
			priority = pkg.PriorityHigh
		case "low":
			priority = pkg.PriorityLow
		}
	}

	if query.Intent == pkg.IntentEscalation {
		priority = pkg.PriorityHigh
	}
	return priority
}
