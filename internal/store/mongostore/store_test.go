package mongostore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greendrake/realty/internal/models"
	"greendrake/realty/internal/store"
	"greendrake/realty/internal/utils"
)

const testDBName = "realty_test_mongostore"

func setupStore(t *testing.T) *Store {
	client, database := utils.SetupTestDB(t, testDBName, AllCollections...)
	s := New(client, database, 5)
	require.NoError(t, s.EnsureIndexes(context.Background()))
	return s
}

func newProperty(now time.Time) *models.Property {
	return &models.Property{
		ID:              utils.NewSixID(),
		Title:           "Two-storey house",
		Type:            models.PropertyTypeHouse,
		Status:          models.PropertyStatusAvailable,
		Price:           4500000,
		Location:        "Quezon City",
		Features:        []string{},
		ReservationType: models.ReservationNone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestRunInTx_CommitsAndRollsBack(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	committed := newProperty(now)
	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Properties().Insert(ctx, committed)
	}))

	boom := errors.New("boom")
	rolledBack := newProperty(now)
	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Properties().Insert(ctx, rolledBack); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Reader().Properties().FindByID(ctx, committed.ID)
	assert.NoError(t, err)
	_, err = s.Reader().Properties().FindByID(ctx, rolledBack.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLock_SerializesConcurrentWriters(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	p := newProperty(time.Now().UTC())
	require.NoError(t, s.Reader().Properties().Insert(ctx, p))

	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
				locked, err := tx.Properties().Lock(ctx, p.ID)
				if err != nil {
					return err
				}
				locked.Price += 1
				return tx.Properties().Update(ctx, locked)
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	got, err := s.Reader().Properties().FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Price+float64(succeeded), got.Price, "every committed increment must be visible")
}

func TestInquiryQueries(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	propertyID := utils.NewSixID()

	mk := func(status models.InquiryStatus, email, phone string, age time.Duration) *models.Inquiry {
		inq := &models.Inquiry{
			ID:         utils.NewSixID(),
			PropertyID: propertyID,
			Client:     models.Client{Name: "Client", Email: email, Phone: phone},
			Status:     status,
			CreatedAt:  now.Add(-age),
			UpdatedAt:  now.Add(-age),
		}
		require.NoError(t, s.Reader().Inquiries().Insert(ctx, inq))
		return inq
	}
	mk(models.InquiryCancelled, "a@x.com", "0917", 3*time.Hour)
	active := mk(models.InquiryContacted, "b@x.com", "0917", 2*time.Hour)
	sold := mk(models.InquirySold, "c@x.com", "0918", time.Hour)

	dup, err := s.Reader().Inquiries().FindActiveDuplicate(ctx, propertyID, "a@x.com", "0917")
	require.NoError(t, err)
	require.NotNil(t, dup)
	assert.Equal(t, active.ID, dup.ID)

	dup, err = s.Reader().Inquiries().FindActiveDuplicate(ctx, propertyID, "nobody@x.com", "0000")
	require.NoError(t, err)
	assert.Nil(t, dup)

	siblings, err := s.Reader().Inquiries().FindOpenSiblings(ctx, propertyID, sold.ID)
	require.NoError(t, err)
	require.Len(t, siblings, 1)
	assert.Equal(t, active.ID, siblings[0].ID)

	require.NoError(t, s.Reader().Inquiries().SetStatusMany(ctx, []utils.SixID{active.ID}, models.InquiryCancelled, now))
	got, err := s.Reader().Inquiries().FindByID(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InquiryCancelled, got.Status)
}

func TestFindScheduledNearAndExpiredReservations(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	agentID := utils.NewSixID()

	ev := &models.CalendarEvent{
		ID:        utils.NewSixID(),
		AgentID:   agentID,
		Title:     "Viewing",
		Type:      models.EventTypeViewing,
		StartTime: now.Add(time.Hour),
		EndTime:   now.Add(2 * time.Hour),
		Status:    models.EventScheduled,
	}
	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Events().LockAgent(ctx, agentID); err != nil {
			return err
		}
		return tx.Events().Insert(ctx, ev)
	}))

	near, err := s.Reader().Events().FindScheduledNear(ctx, agentID, now.Add(90*time.Minute), now.Add(3*time.Hour), nil)
	require.NoError(t, err)
	assert.Len(t, near, 1)
	near, err = s.Reader().Events().FindScheduledNear(ctx, agentID, now.Add(90*time.Minute), now.Add(3*time.Hour), &ev.ID)
	require.NoError(t, err)
	assert.Empty(t, near)

	expired := newProperty(now)
	past := now.Add(-time.Hour)
	expired.Status = models.PropertyStatusReserved
	expired.ReservationType = models.ReservationDeposit
	expired.ReservationExpiry = &past
	require.NoError(t, s.Reader().Properties().Insert(ctx, expired))
	require.NoError(t, s.Reader().Properties().Insert(ctx, newProperty(now)))

	ids, err := s.Reader().Properties().FindExpiredReservations(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []utils.SixID{expired.ID}, ids)
}
