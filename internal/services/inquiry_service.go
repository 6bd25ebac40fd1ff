package services

import (
	"context"
	"strings"
	"time"

	"greendrake/realty/internal/config"
	"greendrake/realty/internal/models"
	"greendrake/realty/internal/notify"
	"greendrake/realty/internal/store"
	"greendrake/realty/internal/utils"
)

// IInquiryService defines the interface for the inquiry lifecycle.
type IInquiryService interface {
	CreateInquiry(ctx context.Context, propertyID utils.SixID, client models.Client, message string) (*models.Inquiry, error)
	AssignInquiry(ctx context.Context, inquiryID, agentID, actorID utils.SixID) (*models.Inquiry, error)
	ReassignInquiry(ctx context.Context, inquiryID, newAgentID, actorID utils.SixID) (*models.Inquiry, error)
	UpdateInquiryStatus(ctx context.Context, inquiryID utils.SixID, change StatusChange) (*models.Inquiry, error)
	GetInquiry(ctx context.Context, id utils.SixID) (*models.Inquiry, error)
	ListInquiries(ctx context.Context, filter store.InquiryFilter) ([]models.Inquiry, error)
	GetInquiryHistory(ctx context.Context, inquiryID utils.SixID) ([]models.InquiryStatusHistory, error)
}

// StatusChange is a requested transition. Any known status is accepted whatever the current one.
type StatusChange struct {
	Status           models.InquiryStatus
	ActorID          utils.SixID
	Notes            string   // Optional
	CommissionAmount *float64 // Optional
}

// inquiryService implements IInquiryService.
type inquiryService struct {
	store       store.Store
	cfg         *config.Config
	notifier    *notify.Notifier
	coordinator *ReservationCoordinator
	now         func() time.Time
}

// NewInquiryService creates a new InquiryService.
func NewInquiryService(st store.Store, cfg *config.Config, notifier *notify.Notifier) IInquiryService {
	s := &inquiryService{store: st, cfg: cfg, notifier: notifier, now: utcNow}
	s.coordinator = NewReservationCoordinator(cfg.ReservationExpiryDays, func() time.Time { return s.now() })
	return s
}

// CreateInquiry records a buyer's first contact. A client (matched by email or phone) may hold
// only one inquiry per property until it is cancelled or expires.
func (s *inquiryService) CreateInquiry(ctx context.Context, propertyID utils.SixID, client models.Client, message string) (*models.Inquiry, error) {
	const op = "CreateInquiry"
	client.Email = strings.TrimSpace(client.Email)
	client.Phone = strings.TrimSpace(client.Phone)
	if client.Email == "" && client.Phone == "" {
		return nil, validationError(op, "client email or phone is required")
	}

	var created *models.Inquiry
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		// The property lock serializes concurrent submissions for the same property.
		if _, err := tx.Properties().Lock(ctx, propertyID); err != nil {
			return notFoundAs(op, "property", propertyID, err)
		}
		dup, err := tx.Inquiries().FindActiveDuplicate(ctx, propertyID, client.Email, client.Phone)
		if err != nil {
			return err
		}
		if dup != nil {
			return newError(op, KindDuplicateInquiry, "inquiry", dup.ID, nil)
		}

		now := s.now()
		inq := &models.Inquiry{
			ID:         utils.NewSixID(),
			PropertyID: propertyID,
			Client:     client,
			Message:    message,
			Status:     models.InquiryNew,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.Inquiries().Insert(ctx, inq); err != nil {
			return err
		}
		created = inq
		return nil
	})
	if err != nil {
		return nil, storeError(op, "inquiry", nil, err)
	}
	return created, nil
}

// AssignInquiry sets the handling agent unconditionally.
func (s *inquiryService) AssignInquiry(ctx context.Context, inquiryID, agentID, actorID utils.SixID) (*models.Inquiry, error) {
	return s.assign(ctx, "AssignInquiry", inquiryID, agentID, actorID, false)
}

// ReassignInquiry moves the inquiry to another agent unless its commission is locked.
func (s *inquiryService) ReassignInquiry(ctx context.Context, inquiryID, newAgentID, actorID utils.SixID) (*models.Inquiry, error) {
	return s.assign(ctx, "ReassignInquiry", inquiryID, newAgentID, actorID, true)
}

func (s *inquiryService) assign(ctx context.Context, op string, inquiryID, agentID, actorID utils.SixID, respectLock bool) (*models.Inquiry, error) {
	var updated *models.Inquiry
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		inq, err := tx.Inquiries().FindByID(ctx, inquiryID)
		if err != nil {
			return err
		}
		if respectLock && inq.CommissionLocked {
			return newError(op, KindCommissionLocked, "inquiry", inquiryID, nil)
		}
		inq.AssignedTo = agentID.Ptr()
		inq.UpdatedAt = s.now()
		if err := tx.Inquiries().Update(ctx, inq); err != nil {
			return err
		}
		updated = inq
		return nil
	})
	if err != nil {
		return nil, storeError(op, "inquiry", inquiryID, err)
	}

	s.notifier.Emit(ctx, notify.NewEvent(notify.KindInquiryAssigned, map[string]interface{}{
		"inquiry_id":  updated.ID,
		"property_id": updated.PropertyID,
		"assigned_to": agentID,
		"assigned_by": actorID,
	}, &agentID))
	return updated, nil
}

// UpdateInquiryStatus applies a transition, records it in the history, locks the commission from
// deposit_paid on, and hands reserved/sold outcomes to the reservation coordinator, all in one
// transaction. Cancelling or expiring the inquiry that holds the property releases it.
func (s *inquiryService) UpdateInquiryStatus(ctx context.Context, inquiryID utils.SixID, change StatusChange) (*models.Inquiry, error) {
	const op = "UpdateInquiryStatus"
	if !change.Status.Valid() {
		return nil, validationError(op, "unknown inquiry status %q", change.Status)
	}

	var (
		updated   *models.Inquiry
		oldStatus models.InquiryStatus
		outcome   *ReservationOutcome
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		outcome = nil
		inq, err := tx.Inquiries().FindByID(ctx, inquiryID)
		if err != nil {
			return err
		}

		now := s.now()
		oldStatus = inq.Status
		inq.Status = change.Status
		if change.Notes != "" {
			inq.Notes = change.Notes
		}
		if change.CommissionAmount != nil {
			amount := *change.CommissionAmount
			inq.CommissionAmount = &amount
		}
		if change.Status == models.InquiryDepositPaid {
			inq.CommissionLocked = true
		}
		inq.UpdatedAt = now
		if err := tx.Inquiries().Update(ctx, inq); err != nil {
			return err
		}
		if err := tx.History().Append(ctx, &models.InquiryStatusHistory{
			ID:        utils.NewSixID(),
			InquiryID: inq.ID,
			OldStatus: oldStatus,
			NewStatus: change.Status,
			ChangedBy: change.ActorID.Ptr(),
			Notes:     change.Notes,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		switch change.Status {
		case models.InquiryReserved:
			outcome, err = s.coordinator.WinInquiry(ctx, tx, inq.PropertyID, inq.ID, models.ReservationDeposit, change.ActorID.Ptr())
		case models.InquirySold:
			outcome, err = s.coordinator.WinInquiry(ctx, tx, inq.PropertyID, inq.ID, models.ReservationFullPayment, change.ActorID.Ptr())
		case models.InquiryCancelled, models.InquiryExpired:
			outcome, err = s.coordinator.ReleaseHolder(ctx, tx, inq.PropertyID, inq.ID)
		}
		if err != nil {
			return err
		}
		updated = inq
		return nil
	})
	if err != nil {
		return nil, storeError(op, "inquiry", inquiryID, err)
	}

	events := []notify.Event{statusChangedEvent(updated, oldStatus, &change.ActorID)}
	if outcome != nil {
		events = append(events, propertyChangedEvent(outcome))
		for i := range outcome.Changed {
			c := &outcome.Changed[i]
			events = append(events, statusChangedEvent(&c.Inquiry, c.OldStatus, &change.ActorID))
		}
	}
	s.notifier.Emit(ctx, events...)
	return updated, nil
}

func (s *inquiryService) GetInquiry(ctx context.Context, id utils.SixID) (*models.Inquiry, error) {
	inq, err := s.store.Reader().Inquiries().FindByID(ctx, id)
	if err != nil {
		return nil, storeError("GetInquiry", "inquiry", id, err)
	}
	return inq, nil
}

// ListInquiries returns matching inquiries, newest first.
func (s *inquiryService) ListInquiries(ctx context.Context, filter store.InquiryFilter) ([]models.Inquiry, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, validationError("ListInquiries", "unknown inquiry status %q", filter.Status)
	}
	inquiries, err := s.store.Reader().Inquiries().List(ctx, filter)
	if err != nil {
		return nil, storeError("ListInquiries", "inquiry", nil, err)
	}
	return inquiries, nil
}

// GetInquiryHistory returns the inquiry's transitions, newest first.
func (s *inquiryService) GetInquiryHistory(ctx context.Context, inquiryID utils.SixID) ([]models.InquiryStatusHistory, error) {
	const op = "GetInquiryHistory"
	reader := s.store.Reader()
	if _, err := reader.Inquiries().FindByID(ctx, inquiryID); err != nil {
		return nil, storeError(op, "inquiry", inquiryID, err)
	}
	entries, err := reader.History().ListByInquiry(ctx, inquiryID)
	if err != nil {
		return nil, storeError(op, "inquiry", inquiryID, err)
	}
	return entries, nil
}
