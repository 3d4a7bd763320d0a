package session

import (
	"fmt"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studentsupport/pkg"
)

func TestNewAssignsID(t *testing.T) {
	s := New("")
	assert.NotEmpty(t, s.ID)
	assert.NotNil(t, s.Context)

	s = New("abc123")
	assert.Equal(t, "abc123", s.ID)
}

func TestAddTurnEnforcesCap(t *testing.T) {
	s := New("")
	for i := 0; i < MaxTurns+10; i++ {
		s.AddTurn(fmt.Sprintf("message %d", i), "reply", pkg.IntentGeneralChat, nil, "general_agent", 0.8)
	}

	require.Len(t, s.Turns, MaxTurns)
	// Oldest turns were evicted first.
	assert.Equal(t, "message 10", s.Turns[0].UserMessage)
	assert.Equal(t, fmt.Sprintf("message %d", MaxTurns+9), s.Turns[MaxTurns-1].UserMessage)
}

func TestEntitiesAccumulateAcrossTurns(t *testing.T) {
	s := New("")
	s.AddTurn("my ticket is TKT-9999", "noted", pkg.IntentTicketStatus,
		map[string]string{"ticket_id": "TKT-9999"}, "ticket_agent", 0.9)
	s.AddTurn("I'm asking about CS310", "ok", pkg.IntentCourseInfo,
		map[string]string{"course_number": "CS310"}, "retrieve_agent", 0.9)

	ticketID, ok := s.Entity("ticket_id")
	require.True(t, ok)
	assert.Equal(t, "TKT-9999", ticketID)

	course, ok := s.Entity("course_number")
	require.True(t, ok)
	assert.Equal(t, "CS310", course)

	_, ok = s.Entity("user_name")
	assert.False(t, ok)
}

func TestEntitySurvivesJSONRoundTrip(t *testing.T) {
	s := New("")
	s.AddTurn("ticket TKT-1111", "noted", pkg.IntentTicketStatus,
		map[string]string{"ticket_id": "TKT-1111"}, "ticket_agent", 0.9)

	// Simulate the Redis backend: marshal, then unmarshal into a fresh
	// session. Context map values widen to any.
	data, err := sonic.MarshalString(s)
	require.NoError(t, err)

	var restored Session
	require.NoError(t, sonic.UnmarshalString(data, &restored))

	ticketID, ok := restored.Entity("ticket_id")
	require.True(t, ok)
	assert.Equal(t, "TKT-1111", ticketID)
}

func TestHistoryAlternatesRoles(t *testing.T) {
	s := New("")
	s.AddTurn("first", "first reply", pkg.IntentGeneralChat, nil, "general_agent", 0.8)
	s.AddTurn("second", "second reply", pkg.IntentGeneralChat, nil, "general_agent", 0.8)
	s.AddTurn("third", "third reply", pkg.IntentGeneralChat, nil, "general_agent", 0.8)

	history := s.History(2)
	require.Len(t, history, 4)
	assert.Equal(t, "second", history[0].Content)
	assert.Equal(t, "second reply", history[1].Content)
	assert.Equal(t, "third", history[2].Content)
	assert.Equal(t, "third reply", history[3].Content)
}

func TestContextSummary(t *testing.T) {
	s := New("")
	assert.Contains(t, s.ContextSummary(), "start of a new conversation")

	s.AddTurn("check TKT-5555", "noted", pkg.IntentTicketStatus,
		map[string]string{"ticket_id": "TKT-5555"}, "ticket_agent", 0.9)

	summary := s.ContextSummary()
	assert.Contains(t, summary, "ticket_status")
	assert.Contains(t, summary, "ticket_id=TKT-5555")
	assert.Contains(t, summary, "1 turns")
}
