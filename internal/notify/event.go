// Package notify delivers domain events to interested agents and admins.
//
// Delivery is best-effort: the Notifier logs sink failures and never reports them to the
// caller, and services only emit after their transaction committed.
package notify

import (
	"time"

	"github.com/google/uuid"

	"greendrake/realty/internal/utils"
)

// Kind names a domain event.
type Kind string

const (
	KindInquiryAssigned       Kind = "inquiry_assigned"
	KindInquiryStatusChanged  Kind = "inquiry_status_changed"
	KindPropertyStatusChanged Kind = "property_status_changed"
	KindCalendarEventCreated  Kind = "calendar_event_created"
)

// Room names. Agent rooms are suffixed with the agent ID.
const (
	RoomAdmin = "admin"
	RoomAll   = "all"
	RoomAgent = "agent"
)

// Event is one notification. Agent-targeted events reach the agent's room and the admin room;
// broadcast events reach everyone.
type Event struct {
	ID         string       `json:"id"`
	Kind       Kind         `json:"kind"`
	Payload    interface{}  `json:"payload"`
	AgentID    *utils.SixID `json:"agent_id,omitempty"`
	Broadcast  bool         `json:"broadcast"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// NewEvent creates an event addressed to the admin room and, when agentID is set, to that agent.
func NewEvent(kind Kind, payload interface{}, agentID *utils.SixID) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    payload,
		AgentID:    agentID,
		OccurredAt: time.Now().UTC(),
	}
}

// NewBroadcast creates an event for every connected client.
func NewBroadcast(kind Kind, payload interface{}) Event {
	ev := NewEvent(kind, payload, nil)
	ev.Broadcast = true
	return ev
}

// Rooms lists the rooms the event is delivered to.
func (e Event) Rooms() []string {
	if e.Broadcast {
		return []string{RoomAll}
	}
	rooms := []string{RoomAdmin}
	if e.AgentID != nil {
		rooms = append(rooms, AgentRoom(*e.AgentID))
	}
	return rooms
}

// AgentRoom returns the room of one agent.
func AgentRoom(agentID utils.SixID) string {
	return RoomAgent + ":" + agentID.String()
}
