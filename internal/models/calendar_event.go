package models

import (
	"time"

	"greendrake/realty/internal/utils"
)

// EventType classifies a calendar commitment.
type EventType string

const (
	EventTypeViewing  EventType = "viewing"
	EventTypeMeeting  EventType = "meeting"
	EventTypeDeadline EventType = "deadline"
	EventTypeOther    EventType = "other"
)

// EventStatus is the state of a calendar commitment. Only scheduled events block bookings.
type EventStatus string

const (
	EventScheduled EventStatus = "scheduled"
	EventCompleted EventStatus = "completed"
	EventCancelled EventStatus = "cancelled"
)

// CalendarEvent is an agent's scheduled commitment.
type CalendarEvent struct {
	ID          utils.SixID  `bson:"_id" json:"id"`
	AgentID     utils.SixID  `bson:"agent_id" json:"agent_id"`
	Title       string       `bson:"title" json:"title"`
	Description string       `bson:"description,omitempty" json:"description,omitempty"`
	Type        EventType    `bson:"event_type" json:"event_type"`
	StartTime   time.Time    `bson:"start_time" json:"start_time"`
	EndTime     time.Time    `bson:"end_time" json:"end_time"`
	Status      EventStatus  `bson:"status" json:"status"`
	PropertyID  *utils.SixID `bson:"property_id,omitempty" json:"property_id,omitempty"`
	InquiryID   *utils.SixID `bson:"inquiry_id,omitempty" json:"inquiry_id,omitempty"`
	CreatedAt   time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `bson:"updated_at" json:"updated_at"`
}
