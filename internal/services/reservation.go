package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"greendrake/realty/internal/models"
	"greendrake/realty/internal/store"
	"greendrake/realty/internal/utils"
)

// ReservationCoordinator ties a property's availability to exactly one winning inquiry.
// Its methods run inside the caller's transaction and never commit on their own.
type ReservationCoordinator struct {
	expiryDays int
	now        func() time.Time
}

// NewReservationCoordinator creates a coordinator whose deposit holds last expiryDays.
func NewReservationCoordinator(expiryDays int, now func() time.Time) *ReservationCoordinator {
	if now == nil {
		now = utcNow
	}
	return &ReservationCoordinator{expiryDays: expiryDays, now: now}
}

// ReservationOutcome describes what a win or a release changed.
type ReservationOutcome struct {
	Property       *models.Property
	PreviousStatus models.PropertyStatus
	// Inquiries whose status the coordinator changed: cancelled siblings on a win, the expired
	// holder on a release.
	Changed []InquiryChange
}

// InquiryChange is an inquiry after a cascaded transition, with the status it left.
type InquiryChange struct {
	Inquiry   models.Inquiry
	OldStatus models.InquiryStatus
}

// WinInquiry commits the property to inquiryID: reserved for a deposit, sold for full payment.
// Every other open inquiry on the property is cancelled, each with its own history entry
// attributed to actorID.
func (c *ReservationCoordinator) WinInquiry(ctx context.Context, tx store.Tx, propertyID, inquiryID utils.SixID, reservationType models.ReservationType, actorID *utils.SixID) (*ReservationOutcome, error) {
	const op = "WinInquiry"
	var propertyStatus models.PropertyStatus
	switch reservationType {
	case models.ReservationDeposit:
		propertyStatus = models.PropertyStatusReserved
	case models.ReservationFullPayment:
		propertyStatus = models.PropertyStatusSold
	default:
		return nil, validationError(op, "unknown reservation type %q", reservationType)
	}

	p, err := tx.Properties().Lock(ctx, propertyID)
	if err != nil {
		return nil, notFoundAs(op, "property", propertyID, err)
	}
	if p.Status == models.PropertyStatusArchived {
		return nil, newError(op, KindPropertyUnavailable, "property", propertyID, fmt.Errorf("property is archived"))
	}
	if p.Status == models.PropertyStatusSold && (p.ReservedByInquiryID == nil || *p.ReservedByInquiryID != inquiryID) {
		return nil, newError(op, KindPropertyUnavailable, "property", propertyID, fmt.Errorf("property is sold to another inquiry"))
	}

	now := c.now()
	outcome := &ReservationOutcome{PreviousStatus: p.Status}
	p.Status = propertyStatus
	p.ReservationType = reservationType
	p.ReservationDate = &now
	p.ReservationExpiry = nil
	if reservationType == models.ReservationDeposit {
		expiry := now.AddDate(0, 0, c.expiryDays)
		p.ReservationExpiry = &expiry
	}
	p.ReservedByInquiryID = inquiryID.Ptr()
	p.UpdatedAt = now
	if err := tx.Properties().Update(ctx, p); err != nil {
		return nil, err
	}
	outcome.Property = p

	siblings, err := tx.Inquiries().FindOpenSiblings(ctx, propertyID, inquiryID)
	if err != nil {
		return nil, err
	}
	if len(siblings) == 0 {
		return outcome, nil
	}

	ids := make([]utils.SixID, len(siblings))
	entries := make([]*models.InquiryStatusHistory, len(siblings))
	changed := make([]InquiryChange, len(siblings))
	note := fmt.Sprintf("Cancelled automatically: property %s was %s by inquiry %s", propertyID, propertyStatus, inquiryID)
	for i := range siblings {
		ids[i] = siblings[i].ID
		entries[i] = &models.InquiryStatusHistory{
			ID:        utils.NewSixID(),
			InquiryID: siblings[i].ID,
			OldStatus: siblings[i].Status,
			NewStatus: models.InquiryCancelled,
			ChangedBy: actorID,
			Notes:     note,
			CreatedAt: now,
		}
		changed[i].OldStatus = siblings[i].Status
		siblings[i].Status = models.InquiryCancelled
		siblings[i].UpdatedAt = now
		changed[i].Inquiry = siblings[i]
	}
	if err := tx.Inquiries().SetStatusMany(ctx, ids, models.InquiryCancelled, now); err != nil {
		return nil, err
	}
	if err := tx.History().Append(ctx, entries...); err != nil {
		return nil, err
	}
	outcome.Changed = changed
	return outcome, nil
}

// ReleaseHolder returns the property to the market when the inquiry holding it leaves the
// race as cancelled or expired. It returns nil when inquiryID does not hold the property.
func (c *ReservationCoordinator) ReleaseHolder(ctx context.Context, tx store.Tx, propertyID, inquiryID utils.SixID) (*ReservationOutcome, error) {
	p, err := tx.Properties().Lock(ctx, propertyID)
	if err != nil {
		return nil, notFoundAs("ReleaseHolder", "property", propertyID, err)
	}
	if p.ReservedByInquiryID == nil || *p.ReservedByInquiryID != inquiryID {
		return nil, nil
	}

	outcome := &ReservationOutcome{PreviousStatus: p.Status}
	p.ClearReservation()
	p.UpdatedAt = c.now()
	if err := tx.Properties().Update(ctx, p); err != nil {
		return nil, err
	}
	outcome.Property = p
	return outcome, nil
}

// ReleaseExpired returns a lapsed deposit reservation to the market and expires the inquiry
// that held it. It re-checks the expiry under the property lock and returns nil when there is
// nothing to release, so concurrent sweeps reclaim each property once.
func (c *ReservationCoordinator) ReleaseExpired(ctx context.Context, tx store.Tx, propertyID utils.SixID) (*ReservationOutcome, error) {
	p, err := tx.Properties().Lock(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	now := c.now()
	if !p.ReservationExpired(now) {
		return nil, nil
	}

	holder := p.ReservedByInquiryID
	outcome := &ReservationOutcome{PreviousStatus: p.Status}
	p.ClearReservation()
	p.UpdatedAt = now
	if err := tx.Properties().Update(ctx, p); err != nil {
		return nil, err
	}
	outcome.Property = p

	if holder == nil {
		return outcome, nil
	}
	inq, err := tx.Inquiries().FindByID(ctx, *holder)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("ReleaseExpired: property %s referenced missing inquiry %s", propertyID, *holder)
		return outcome, nil
	}
	if err != nil {
		return nil, err
	}
	if inq.Status.Terminal() {
		return outcome, nil
	}
	entry := &models.InquiryStatusHistory{
		ID:        utils.NewSixID(),
		InquiryID: inq.ID,
		OldStatus: inq.Status,
		NewStatus: models.InquiryExpired,
		Notes:     fmt.Sprintf("Reservation on property %s expired", propertyID),
		CreatedAt: now,
	}
	inq.Status = models.InquiryExpired
	inq.UpdatedAt = now
	if err := tx.Inquiries().Update(ctx, inq); err != nil {
		return nil, err
	}
	if err := tx.History().Append(ctx, entry); err != nil {
		return nil, err
	}
	outcome.Changed = []InquiryChange{{Inquiry: *inq, OldStatus: entry.OldStatus}}
	return outcome, nil
}
