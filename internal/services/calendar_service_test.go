package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greendrake/realty/internal/models"
	"greendrake/realty/internal/notify"
	"greendrake/realty/internal/store"
	"greendrake/realty/internal/utils"
)

func viewing(agentID utils.SixID, start time.Time, length time.Duration) CreateEventInput {
	return CreateEventInput{
		AgentID:   agentID,
		Title:     "Viewing",
		Type:      models.EventTypeViewing,
		StartTime: start,
		EndTime:   start.Add(length),
	}
}

func TestCreateEvent_ConflictWithinBuffer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agent := utils.NewSixID()
	start := time.Date(2026, 5, 5, 10, 0, 0, 0, time.UTC)

	first, err := env.calendar.CreateEvent(ctx, viewing(agent, start, time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.EventScheduled, first.Status)

	_, err = env.calendar.CreateEvent(ctx, viewing(agent, start.Add(80*time.Minute), time.Hour))
	assert.ErrorIs(t, err, ErrScheduleConflict)
	assert.True(t, IsKind(err, KindScheduleConflict))

	_, err = env.calendar.CreateEvent(ctx, viewing(agent, start.Add(-50*time.Minute), 30*time.Minute))
	assert.ErrorIs(t, err, ErrScheduleConflict)

	second, err := env.calendar.CreateEvent(ctx, viewing(agent, start.Add(90*time.Minute), time.Hour))
	require.NoError(t, err)

	events, err := env.calendar.ListEvents(ctx, store.EventFilter{AgentID: &agent})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, first.ID, events[0].ID)
	assert.Equal(t, second.ID, events[1].ID)
}

func TestCreateEvent_OtherAgentsAndCancelledEventsDoNotBlock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start := time.Date(2026, 5, 5, 10, 0, 0, 0, time.UTC)
	agentA, agentB := utils.NewSixID(), utils.NewSixID()

	ev, err := env.calendar.CreateEvent(ctx, viewing(agentA, start, time.Hour))
	require.NoError(t, err)
	_, err = env.calendar.CreateEvent(ctx, viewing(agentB, start, time.Hour))
	require.NoError(t, err)

	cancelled := models.EventCancelled
	_, err = env.calendar.UpdateEvent(ctx, ev.ID, EventPatch{Status: &cancelled})
	require.NoError(t, err)
	_, err = env.calendar.CreateEvent(ctx, viewing(agentA, start, time.Hour))
	assert.NoError(t, err)
}

func TestCreateEvent_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start := time.Date(2026, 5, 5, 10, 0, 0, 0, time.UTC)

	_, err := env.calendar.CreateEvent(ctx, viewing(utils.NewSixID(), start, 0))
	assert.ErrorIs(t, err, ErrValidationFailure)

	in := viewing(utils.NewSixID(), start, time.Hour)
	in.Type = "party"
	_, err = env.calendar.CreateEvent(ctx, in)
	assert.ErrorIs(t, err, ErrValidationFailure)

	in.Type = ""
	ev, err := env.calendar.CreateEvent(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, models.EventTypeOther, ev.Type)
}

func TestCreateEvent_Notifies(t *testing.T) {
	env := newTestEnv(t)
	agent := utils.NewSixID()
	_, err := env.calendar.CreateEvent(context.Background(), viewing(agent, time.Date(2026, 5, 5, 10, 0, 0, 0, time.UTC), time.Hour))
	require.NoError(t, err)

	require.Equal(t, []notify.Kind{notify.KindCalendarEventCreated}, env.sink.Kinds())
	assert.Contains(t, env.sink.events[0].Rooms(), notify.AgentRoom(agent))
}

func TestUpdateEvent_RechecksMergedWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agent := utils.NewSixID()
	start := time.Date(2026, 5, 5, 10, 0, 0, 0, time.UTC)

	first, err := env.calendar.CreateEvent(ctx, viewing(agent, start, time.Hour))
	require.NoError(t, err)
	second, err := env.calendar.CreateEvent(ctx, viewing(agent, start.Add(3*time.Hour), time.Hour))
	require.NoError(t, err)

	// Only the start moves; the unchanged end is kept, so the merged window reaches into the first event's buffer.
	newStart := start.Add(80 * time.Minute)
	_, err = env.calendar.UpdateEvent(ctx, second.ID, EventPatch{StartTime: &newStart})
	assert.ErrorIs(t, err, ErrScheduleConflict)

	// Shifting an event within its own old window does not conflict with itself.
	shifted := start.Add(15 * time.Minute)
	updated, err := env.calendar.UpdateEvent(ctx, first.ID, EventPatch{StartTime: &shifted})
	require.NoError(t, err)
	assert.Equal(t, shifted, updated.StartTime)
	assert.Equal(t, start.Add(time.Hour), updated.EndTime)

	got, err := env.calendar.GetEvent(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, start.Add(3*time.Hour), got.StartTime, "rejected update must not change the event")
}

func TestUpdateEvent_PartialPatchAndReschedule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agent := utils.NewSixID()
	start := time.Date(2026, 5, 5, 10, 0, 0, 0, time.UTC)

	ev, err := env.calendar.CreateEvent(ctx, viewing(agent, start, time.Hour))
	require.NoError(t, err)
	cancelled := models.EventCancelled
	_, err = env.calendar.UpdateEvent(ctx, ev.ID, EventPatch{Status: &cancelled})
	require.NoError(t, err)
	_, err = env.calendar.CreateEvent(ctx, viewing(agent, start, time.Hour))
	require.NoError(t, err)

	scheduled := models.EventScheduled
	_, err = env.calendar.UpdateEvent(ctx, ev.ID, EventPatch{Status: &scheduled})
	assert.ErrorIs(t, err, ErrScheduleConflict, "re-scheduling must pass the conflict check")

	title := "Second viewing"
	patched, err := env.calendar.UpdateEvent(ctx, ev.ID, EventPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, patched.Title)
	assert.Equal(t, models.EventCancelled, patched.Status)
	assert.Equal(t, models.EventTypeViewing, patched.Type)

	badEnd := start.Add(-time.Minute)
	_, err = env.calendar.UpdateEvent(ctx, ev.ID, EventPatch{EndTime: &badEnd})
	assert.ErrorIs(t, err, ErrValidationFailure)

	_, err = env.calendar.UpdateEvent(ctx, utils.NewSixID(), EventPatch{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteEvent_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ev, err := env.calendar.CreateEvent(ctx, viewing(utils.NewSixID(), time.Date(2026, 5, 5, 10, 0, 0, 0, time.UTC), time.Hour))
	require.NoError(t, err)

	existed, err := env.calendar.DeleteEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = env.calendar.DeleteEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = env.calendar.GetEvent(ctx, ev.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHasConflict_Query(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agent := utils.NewSixID()
	start := time.Date(2026, 5, 5, 10, 0, 0, 0, time.UTC)
	ev, err := env.calendar.CreateEvent(ctx, viewing(agent, start, time.Hour))
	require.NoError(t, err)

	conflict, err := env.calendar.HasConflict(ctx, agent, start.Add(time.Hour), start.Add(2*time.Hour), nil)
	require.NoError(t, err)
	assert.True(t, conflict)

	conflict, err = env.calendar.HasConflict(ctx, agent, start.Add(time.Hour), start.Add(2*time.Hour), &ev.ID)
	require.NoError(t, err)
	assert.False(t, conflict)
}
