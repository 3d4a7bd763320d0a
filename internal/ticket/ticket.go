package ticket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"studentsupport/pkg"
)

// ErrNotFound is returned by Get when no ticket matches the id.
var ErrNotFound = errors.New("ticket not found")

// Ticket is one support ticket as seen by the pipeline.
type Ticket struct {
	ID          string       `json:"ticket_id"`
	Department  string       `json:"department"`
	Priority    pkg.Priority `json:"priority"`
	Status      string       `json:"status"`
	AssignedTo  string       `json:"assigned_to"`
	Summary     string       `json:"summary"`
	Description string       `json:"description"`
	LastUpdate  time.Time    `json:"last_update"`
}

// Service is the ticketing collaborator. The escalation executor creates
// tickets through it and the ticket-status executor reads them.
type Service interface {
	Create(ctx context.Context, department string, priority pkg.Priority, description string, context map[string]string) (string, error)
	Get(ctx context.Context, id string) (Ticket, error)
}

// MemoryService is an in-process ticketing backend for demos and tests.
type MemoryService struct {
	mu      sync.RWMutex
	tickets map[string]Ticket
}

// NewMemoryService creates a ticket service pre-seeded with sample tickets.
func NewMemoryService() *MemoryService {
	now := time.Now().UTC()
	return &MemoryService{
		tickets: map[string]Ticket{
			"TKT-12345": {
				ID:         "TKT-12345",
				Department: "it_support",
				Priority:   pkg.PriorityMedium,
				Status:     "In Progress",
				AssignedTo: "Support Team",
				Summary:    "Password reset request",
				LastUpdate: now.AddDate(0, 0, -2),
			},
			"TKT-67890": {
				ID:         "TKT-67890",
				Department: "it_support",
				Priority:   pkg.PriorityLow,
				Status:     "Resolved",
				AssignedTo: "IT Department",
				Summary:    "VPN access issue",
				LastUpdate: now.AddDate(0, 0, -7),
			},
		},
	}
}

func (m *MemoryService) Create(ctx context.Context, department string, priority pkg.Priority, description string, context map[string]string) (string, error) {
	id := fmt.Sprintf("TKT-%s", strings.ToUpper(uuid.NewString()[:8]))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[id] = Ticket{
		ID:          id,
		Department:  department,
		Priority:    priority,
		Status:      "Open",
		Description: description,
		Summary:     summarize(description),
		LastUpdate:  time.Now().UTC(),
	}
	return id, nil
}

func (m *MemoryService) Get(ctx context.Context, id string) (Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tickets[Normalize(id)]
	if !ok {
		return Ticket{}, ErrNotFound
	}
	return t, nil
}

// Normalize upper-cases a ticket id and ensures the TKT- prefix, so user
// input like "12345" or "tkt-12345" resolves the same ticket.
func Normalize(id string) string {
	id = strings.ToUpper(strings.TrimSpace(id))
	if id == "" {
		return id
	}
	if !strings.HasPrefix(id, "TKT-") {
		id = "TKT-" + id
	}
	return id
}

func summarize(description string) string {
	const max = 60
	description = strings.TrimSpace(description)
	if len(description) <= max {
		return description
	}
	return description[:max] + "..."
}
