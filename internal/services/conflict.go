package services

import (
	"context"
	"time"

	"greendrake/realty/internal/models"
	"greendrake/realty/internal/store"
	"greendrake/realty/internal/utils"
)

// ConflictBuffer is the travel and preparation margin kept free around every booking.
const ConflictBuffer = 30 * time.Minute

// BufferedWindow widens [start, end] by ConflictBuffer on both sides.
func BufferedWindow(start, end time.Time) (time.Time, time.Time) {
	return start.Add(-ConflictBuffer), end.Add(ConflictBuffer)
}

// EventConflicts reports whether an existing event blocks the proposed window [start, end]
// of the same agent. Only scheduled events block, and excludeID (the event being moved) never
// blocks itself.
func EventConflicts(existing models.CalendarEvent, start, end time.Time, excludeID *utils.SixID) bool {
	if existing.Status != models.EventScheduled {
		return false
	}
	if excludeID != nil && existing.ID == *excludeID {
		return false
	}
	bufferStart, bufferEnd := BufferedWindow(start, end)
	overlaps := existing.StartTime.Before(bufferEnd) && existing.EndTime.After(bufferStart)
	startsInside := !existing.StartTime.Before(bufferStart) && existing.StartTime.Before(bufferEnd)
	return overlaps || startsInside
}

// HasConflict checks the agent's scheduled events as seen by tx. Call it in the same transaction
// that writes the event, after taking the agent's calendar lock.
func HasConflict(ctx context.Context, tx store.Tx, agentID utils.SixID, start, end time.Time, excludeID *utils.SixID) (bool, error) {
	bufferStart, bufferEnd := BufferedWindow(start, end)
	candidates, err := tx.Events().FindScheduledNear(ctx, agentID, bufferStart, bufferEnd, excludeID)
	if err != nil {
		return false, err
	}
	for _, ev := range candidates {
		if ev.AgentID == agentID && EventConflicts(ev, start, end, excludeID) {
			return true, nil
		}
	}
	return false, nil
}
