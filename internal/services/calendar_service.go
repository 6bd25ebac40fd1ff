package services

import (
	"context"
	"time"

	"greendrake/realty/internal/config"
	"greendrake/realty/internal/models"
	"greendrake/realty/internal/notify"
	"greendrake/realty/internal/store"
	"greendrake/realty/internal/utils"
)

// ICalendarService defines the interface for agent calendar operations.
type ICalendarService interface {
	CreateEvent(ctx context.Context, input CreateEventInput) (*models.CalendarEvent, error)
	UpdateEvent(ctx context.Context, id utils.SixID, patch EventPatch) (*models.CalendarEvent, error)
	DeleteEvent(ctx context.Context, id utils.SixID) (bool, error)
	GetEvent(ctx context.Context, id utils.SixID) (*models.CalendarEvent, error)
	ListEvents(ctx context.Context, filter store.EventFilter) ([]models.CalendarEvent, error)
	HasConflict(ctx context.Context, agentID utils.SixID, start, end time.Time, excludeID *utils.SixID) (bool, error)
}

// CreateEventInput is an already validated booking request.
type CreateEventInput struct {
	AgentID     utils.SixID
	Title       string
	Description string
	Type        models.EventType // Defaults to other
	StartTime   time.Time
	EndTime     time.Time
	PropertyID  *utils.SixID
	InquiryID   *utils.SixID
}

// EventPatch carries the fields to change; nil fields keep their value.
type EventPatch struct {
	Title       *string
	Description *string
	Type        *models.EventType
	StartTime   *time.Time
	EndTime     *time.Time
	Status      *models.EventStatus
	PropertyID  *utils.SixID
	InquiryID   *utils.SixID
}

// calendarService implements ICalendarService.
type calendarService struct {
	store    store.Store
	cfg      *config.Config
	notifier *notify.Notifier
	now      func() time.Time
}

// NewCalendarService creates a new CalendarService.
func NewCalendarService(st store.Store, cfg *config.Config, notifier *notify.Notifier) ICalendarService {
	return &calendarService{store: st, cfg: cfg, notifier: notifier, now: utcNow}
}

func validEventType(t models.EventType) bool {
	switch t {
	case models.EventTypeViewing, models.EventTypeMeeting, models.EventTypeDeadline, models.EventTypeOther:
		return true
	}
	return false
}

func validEventStatus(s models.EventStatus) bool {
	switch s {
	case models.EventScheduled, models.EventCompleted, models.EventCancelled:
		return true
	}
	return false
}

// CreateEvent books a scheduled event unless it collides with the agent's other bookings.
func (s *calendarService) CreateEvent(ctx context.Context, input CreateEventInput) (*models.CalendarEvent, error) {
	const op = "CreateEvent"
	if input.Type == "" {
		input.Type = models.EventTypeOther
	}
	if !validEventType(input.Type) {
		return nil, validationError(op, "unknown event type %q", input.Type)
	}
	if !input.EndTime.After(input.StartTime) {
		return nil, validationError(op, "end time must be after start time")
	}

	var created *models.CalendarEvent
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Events().LockAgent(ctx, input.AgentID); err != nil {
			return err
		}
		conflict, err := HasConflict(ctx, tx, input.AgentID, input.StartTime, input.EndTime, nil)
		if err != nil {
			return err
		}
		if conflict {
			return newError(op, KindScheduleConflict, "agent", input.AgentID, nil)
		}

		now := s.now()
		ev := &models.CalendarEvent{
			ID:          utils.NewSixID(),
			AgentID:     input.AgentID,
			Title:       input.Title,
			Description: input.Description,
			Type:        input.Type,
			StartTime:   input.StartTime.UTC(),
			EndTime:     input.EndTime.UTC(),
			Status:      models.EventScheduled,
			PropertyID:  input.PropertyID,
			InquiryID:   input.InquiryID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Events().Insert(ctx, ev); err != nil {
			return err
		}
		created = ev
		return nil
	})
	if err != nil {
		return nil, storeError(op, "calendar_event", nil, err)
	}

	s.notifier.Emit(ctx, notify.NewEvent(notify.KindCalendarEventCreated, created, &created.AgentID))
	return created, nil
}

// UpdateEvent applies a partial patch. Moving a scheduled event, or scheduling it again,
// re-checks the merged window against the agent's other bookings.
func (s *calendarService) UpdateEvent(ctx context.Context, id utils.SixID, patch EventPatch) (*models.CalendarEvent, error) {
	const op = "UpdateEvent"
	if patch.Type != nil && !validEventType(*patch.Type) {
		return nil, validationError(op, "unknown event type %q", *patch.Type)
	}
	if patch.Status != nil && !validEventStatus(*patch.Status) {
		return nil, validationError(op, "unknown event status %q", *patch.Status)
	}

	var updated *models.CalendarEvent
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ev, err := tx.Events().FindByID(ctx, id)
		if err != nil {
			return err
		}

		start, end := ev.StartTime, ev.EndTime
		if patch.StartTime != nil {
			start = patch.StartTime.UTC()
		}
		if patch.EndTime != nil {
			end = patch.EndTime.UTC()
		}
		status := ev.Status
		if patch.Status != nil {
			status = *patch.Status
		}
		if !end.After(start) {
			return validationError(op, "end time must be after start time")
		}

		moved := !start.Equal(ev.StartTime) || !end.Equal(ev.EndTime)
		rescheduled := ev.Status != models.EventScheduled && status == models.EventScheduled
		if status == models.EventScheduled && (moved || rescheduled) {
			if err := tx.Events().LockAgent(ctx, ev.AgentID); err != nil {
				return err
			}
			conflict, err := HasConflict(ctx, tx, ev.AgentID, start, end, &ev.ID)
			if err != nil {
				return err
			}
			if conflict {
				return newError(op, KindScheduleConflict, "calendar_event", ev.ID, nil)
			}
		}

		ev.StartTime, ev.EndTime, ev.Status = start, end, status
		if patch.Title != nil {
			ev.Title = *patch.Title
		}
		if patch.Description != nil {
			ev.Description = *patch.Description
		}
		if patch.Type != nil {
			ev.Type = *patch.Type
		}
		if patch.PropertyID != nil {
			ev.PropertyID = patch.PropertyID
		}
		if patch.InquiryID != nil {
			ev.InquiryID = patch.InquiryID
		}
		ev.UpdatedAt = s.now()
		if err := tx.Events().Update(ctx, ev); err != nil {
			return err
		}
		updated = ev
		return nil
	})
	if err != nil {
		return nil, storeError(op, "calendar_event", id, err)
	}
	return updated, nil
}

// DeleteEvent removes the event and reports whether it existed. Deleting twice is not an error.
func (s *calendarService) DeleteEvent(ctx context.Context, id utils.SixID) (bool, error) {
	var existed bool
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		existed, err = tx.Events().Delete(ctx, id)
		return err
	})
	if err != nil {
		return false, storeError("DeleteEvent", "calendar_event", id, err)
	}
	return existed, nil
}

func (s *calendarService) GetEvent(ctx context.Context, id utils.SixID) (*models.CalendarEvent, error) {
	ev, err := s.store.Reader().Events().FindByID(ctx, id)
	if err != nil {
		return nil, storeError("GetEvent", "calendar_event", id, err)
	}
	return ev, nil
}

// ListEvents returns matching events by start time.
func (s *calendarService) ListEvents(ctx context.Context, filter store.EventFilter) ([]models.CalendarEvent, error) {
	events, err := s.store.Reader().Events().List(ctx, filter)
	if err != nil {
		return nil, storeError("ListEvents", "calendar_event", nil, err)
	}
	return events, nil
}

// HasConflict answers a what-if query outside any transaction, e.g. to warn before booking.
func (s *calendarService) HasConflict(ctx context.Context, agentID utils.SixID, start, end time.Time, excludeID *utils.SixID) (bool, error) {
	conflict, err := HasConflict(ctx, s.store.Reader(), agentID, start, end, excludeID)
	if err != nil {
		return false, storeError("HasConflict", "agent", agentID, err)
	}
	return conflict, nil
}
