package agents

import (
	"context"
	"errors"
	"fmt"

	"studentsupport/internal/session"
	"studentsupport/internal/ticket"
	"studentsupport/pkg"
)

// TicketStatusExecutor looks up a support ticket and reports its status. The
// ticket id comes from the routing parameters, falling back to an id
// remembered in the session from an earlier turn.
type TicketStatusExecutor struct {
	tickets ticket.Service
}

func NewTicketStatusExecutor(tickets ticket.Service) *TicketStatusExecutor {
	return &TicketStatusExecutor{tickets: tickets}
}

func (e *TicketStatusExecutor) Name() string { return AgentTicket }

func (e *TicketStatusExecutor) Execute(ctx context.Context, decision pkg.RoutingDecision, sess *session.Session) (pkg.AgentResponse, error) {
	ticketID := decision.Parameters["ticket_id"]
	if ticketID == "" && sess != nil {
		ticketID, _ = sess.Entity("ticket_id")
	}

	if ticketID == "" {
		return pkg.AgentResponse{
			Content: "I'd be happy to check your ticket status. Could you please provide " +
				"your ticket number? It usually starts with 'TKT-' followed by numbers.",
			Confidence:       0.8,
			RequiresFollowup: true,
		}, nil
	}

	t, err := e.tickets.Get(ctx, ticketID)
	if err != nil {
		if errors.Is(err, ticket.ErrNotFound) {
			return e.notFoundResponse(ticketID), nil
		}
		return pkg.AgentResponse{}, fmt.Errorf("ticket lookup failed: %w", err)
	}

	content := fmt.Sprintf(`Here's the status of your ticket **%s**:

- **Status:** %s
- **Assigned to:** %s
- **Last Updated:** %s
- **Summary:** %s

Is there anything else you'd like to know about this ticket?`,
		t.ID, t.Status, t.AssignedTo, t.LastUpdate.Format("2006-01-02"), t.Summary)

	return pkg.AgentResponse{
		Content:          content,
		Confidence:       0.95,
		SuggestedActions: []string{"Add a comment", "Escalate ticket", "Check another ticket"},
		Metadata:         map[string]any{"ticket_id": t.ID, "ticket_status": t.Status},
	}, nil
}

func (e *TicketStatusExecutor) notFoundResponse(ticketID string) pkg.AgentResponse {
	content := fmt.Sprintf(`I couldn't find a ticket with ID **%s** in our system.

This could mean:
- The ticket number might be different (check your confirmation email)
- The ticket may have been closed and archived
- There might be a typo in the ticket number

Could you double-check the ticket number? It should look like TKT-12345.`, ticketID)

	return pkg.AgentResponse{
		Content:          content,
		Confidence:       0.7,
		RequiresFollowup: true,
		SuggestedActions: []string{"Try another ticket number", "Create new ticket", "Talk to support"},
	}
}
