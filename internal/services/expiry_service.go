package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"greendrake/realty/internal/config"
	"greendrake/realty/internal/notify"
	"greendrake/realty/internal/store"
	"greendrake/realty/internal/utils"
)

// IExpiryService defines the interface for reclaiming lapsed deposit reservations.
type IExpiryService interface {
	ExpireReservations(ctx context.Context) (int, error)
}

// expiryService implements IExpiryService.
type expiryService struct {
	store       store.Store
	cfg         *config.Config
	notifier    *notify.Notifier
	coordinator *ReservationCoordinator
	now         func() time.Time
}

// NewExpiryService creates a new ExpiryService.
func NewExpiryService(st store.Store, cfg *config.Config, notifier *notify.Notifier) IExpiryService {
	s := &expiryService{store: st, cfg: cfg, notifier: notifier, now: utcNow}
	s.coordinator = NewReservationCoordinator(cfg.ReservationExpiryDays, func() time.Time { return s.now() })
	return s
}

// ExpireReservations releases every deposit reservation whose expiry has passed and expires
// the inquiry that held it. Each property is released in its own transaction; a failure is
// logged and the sweep moves on. It returns how many properties were released, and an error
// summarizing the failures if there were any. Running it again right away releases nothing.
func (s *expiryService) ExpireReservations(ctx context.Context) (int, error) {
	ids, err := s.store.Reader().Properties().FindExpiredReservations(ctx, s.now())
	if err != nil {
		return 0, storeError("ExpireReservations", "property", nil, err)
	}

	released := 0
	var failures []error
	for _, id := range ids {
		if ctx.Err() != nil {
			failures = append(failures, ctx.Err())
			break
		}
		outcome, err := s.releaseOne(ctx, id)
		if err != nil {
			log.Printf("ExpireReservations: failed to release property %s: %v", id, err)
			failures = append(failures, fmt.Errorf("property %s: %w", id, err))
			continue
		}
		if outcome == nil {
			continue // Released by a concurrent sweep or renewed meanwhile
		}
		released++
		events := []notify.Event{propertyChangedEvent(outcome)}
		for i := range outcome.Changed {
			c := &outcome.Changed[i]
			events = append(events, statusChangedEvent(&c.Inquiry, c.OldStatus, nil))
		}
		s.notifier.Emit(ctx, events...)
	}

	log.Printf("ExpireReservations: %d of %d candidate reservations released", released, len(ids))
	if len(failures) > 0 {
		return released, fmt.Errorf("expiry sweep released %d, failed %d: %w", released, len(failures), errors.Join(failures...))
	}
	return released, nil
}

func (s *expiryService) releaseOne(ctx context.Context, propertyID utils.SixID) (*ReservationOutcome, error) {
	var outcome *ReservationOutcome
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		outcome, err = s.coordinator.ReleaseExpired(ctx, tx, propertyID)
		return err
	})
	if err != nil {
		return nil, storeError("ExpireReservations", "property", propertyID, err)
	}
	return outcome, nil
}
