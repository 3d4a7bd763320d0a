package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"studentsupport/internal/audit"
	"studentsupport/internal/logger"
	"studentsupport/internal/session"
	"studentsupport/internal/ticket"
	"studentsupport/pkg"
)

const escalationSafetyTemplate = `I'm concerned about what you've shared. Your wellbeing is our top priority.

Please know that help is available:
- National Suicide Prevention Lifeline: 988
- Crisis Text Line: Text HOME to 741741
- Campus Counseling Services: contact your campus counseling center

A support team member will reach out to you within 1 hour. In the meantime, please reach out to one of these resources if you need immediate support.

Is there anything else I can help with right now?`

const escalationLegalTemplate = `I understand this involves a legal matter. I'm connecting you with our support team who can properly address your concerns.

A team member will contact you within 2 business hours. Please have any relevant documentation ready.

Your reference number is: %s

Is there any other information you'd like to provide?`

const escalationDefaultTemplate = `I understand you'd like to speak with a human support agent.

I'm creating a support ticket for you now. A member of our team will reach out within 2 business hours during business days.

Your reference number is: %s

In the meantime, is there anything specific you'd like me to document for the support team?`

// EscalateExecutor hands the conversation off to a human. It never returns
// an error: the verbal acknowledgment uses only local logic, and ticket
// creation is best-effort with the failure recorded for external retry.
type EscalateExecutor struct {
	tickets ticket.Service
	sink    audit.Sink
}

func NewEscalateExecutor(tickets ticket.Service, sink audit.Sink) *EscalateExecutor {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &EscalateExecutor{tickets: tickets, sink: sink}
}

func (e *EscalateExecutor) Name() string { return AgentEscalation }

func (e *EscalateExecutor) Execute(ctx context.Context, decision pkg.RoutingDecision, sess *session.Session) (pkg.AgentResponse, error) {
	refNumber := "ESC-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])

	triggered := decision.Parameters["triggered_keywords"]
	reason := strings.ToLower(decision.EscalationReason)

	var content, priorityNote string
	switch {
	case strings.Contains(reason, "safety") || containsAny(triggered, safetyTriggers):
		content = escalationSafetyTemplate
		priorityNote = "URGENT - Safety Concern"
	case strings.Contains(reason, "legal") || containsAny(triggered, legalTriggers):
		content = fmt.Sprintf(escalationLegalTemplate, refNumber)
		priorityNote = "HIGH - Legal Matter"
	default:
		content = fmt.Sprintf(escalationDefaultTemplate, refNumber)
		priorityNote = "Standard Escalation"
	}

	// Best-effort ticket creation. A ticketing outage must not block the
	// handoff acknowledgment; the audit entry carries enough context for a
	// retry worker to recreate the ticket.
	ticketID := e.createTicket(ctx, decision, refNumber)

	return pkg.AgentResponse{
		Content:          content,
		Confidence:       1.0,
		RequiresFollowup: true,
		SuggestedActions: []string{"Provide more details", "Confirm contact info"},
		Metadata: map[string]any{
			"reference_number":  refNumber,
			"escalation_reason": decision.EscalationReason,
			"priority":          priorityNote,
			"ticket_id":         ticketID,
		},
	}, nil
}

func (e *EscalateExecutor) createTicket(ctx context.Context, decision pkg.RoutingDecision, refNumber string) string {
	if e.tickets == nil {
		return ""
	}

	description := fmt.Sprintf("Escalation %s: %s", refNumber, decision.Parameters["original_query"])
	ticketID, err := e.tickets.Create(ctx, "human_support", decision.Priority, description, decision.Parameters)
	if err != nil {
		logger.Error().Err(err).Str("reference", refNumber).Msg("escalation ticket creation failed")
		if auditErr := e.sink.Log(audit.Entry{
			Timestamp: time.Now().UTC(),
			Event:     "escalation_ticket_failed",
			Priority:  decision.Priority,
			Error:     err.Error(),
			Detail: map[string]string{
				"reference":      refNumber,
				"original_query": decision.Parameters["original_query"],
			},
		}); auditErr != nil {
			logger.Error().Err(auditErr).Msg("audit log write failed")
		}
		return ""
	}
	return ticketID
}

// containsAny reports whether the comma-joined keyword list includes any of
// the given triggers.
func containsAny(joined string, triggers []string) bool {
	if joined == "" {
		return false
	}
	for _, kw := range strings.Split(joined, ",") {
		for _, t := range triggers {
			if kw == t {
				return true
			}
		}
	}
	return false
}
