// Package services implements the reservation and inquiry lifecycle engine: calendar bookings
// with conflict detection, the inquiry state machine, the reservation coordinator, the expiry
// sweep and property management. Commands arrive validated and authorized; results are domain
// values or *DomainError.
package services

import (
	"errors"
	"fmt"
	"time"

	"greendrake/realty/internal/models"
	"greendrake/realty/internal/notify"
	"greendrake/realty/internal/store"
	"greendrake/realty/internal/utils"
)

func utcNow() time.Time {
	return time.Now().UTC()
}

// notFoundAs names the missing entity when err is store.ErrNotFound and leaves other errors
// as they are, so transient ones can still be retried by the store.
func notFoundAs(op, entity string, id fmt.Stringer, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return newError(op, KindNotFound, entity, id, err)
	}
	return err
}

func statusChangedEvent(inq *models.Inquiry, oldStatus models.InquiryStatus, actorID *utils.SixID) notify.Event {
	payload := map[string]interface{}{
		"inquiry_id":  inq.ID,
		"property_id": inq.PropertyID,
		"new_status":  inq.Status,
	}
	if oldStatus != "" {
		payload["old_status"] = oldStatus
	}
	if actorID != nil {
		payload["changed_by"] = *actorID
	}
	return notify.NewEvent(notify.KindInquiryStatusChanged, payload, inq.AssignedTo)
}

func propertyChangedEvent(outcome *ReservationOutcome) notify.Event {
	p := outcome.Property
	payload := map[string]interface{}{
		"property_id":      p.ID,
		"old_status":       outcome.PreviousStatus,
		"new_status":       p.Status,
		"reservation_type": p.ReservationType,
	}
	if p.ReservedByInquiryID != nil {
		payload["reserved_by_inquiry_id"] = *p.ReservedByInquiryID
	}
	if p.ReservationExpiry != nil {
		payload["reservation_expiry"] = *p.ReservationExpiry
	}
	return notify.NewBroadcast(notify.KindPropertyStatusChanged, payload)
}
