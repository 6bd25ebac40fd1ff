package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"greendrake/realty/internal/models"
	"greendrake/realty/internal/store"
	"greendrake/realty/internal/utils"
)

var transientErr = mongo.CommandError{Code: 112, Name: "WriteConflict", Labels: []string{"TransientTransactionError"}}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	p := &models.Property{ID: utils.NewSixID(), Status: models.PropertyStatusAvailable}
	require.NoError(t, s.Reader().Properties().Insert(ctx, p))

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		locked, err := tx.Properties().Lock(ctx, p.ID)
		require.NoError(t, err)
		locked.Status = models.PropertyStatusSold
		require.NoError(t, tx.Properties().Update(ctx, locked))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Reader().Properties().FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PropertyStatusAvailable, got.Status)
}

func TestRunInTx_RetriesTransientFault(t *testing.T) {
	s := New(3)
	s.InjectFault(transientErr, 2)

	runs := 0
	err := s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		runs++
		return tx.Inquiries().Insert(ctx, &models.Inquiry{ID: utils.NewSixID()})
	})
	require.NoError(t, err)
	assert.Equal(t, 3, runs)

	all, err := s.Reader().Inquiries().List(context.Background(), store.InquiryFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1, "failed attempts must not leave writes behind")
}

func TestRunInTx_GivesUpAfterMaxRetries(t *testing.T) {
	s := New(1)
	s.InjectFault(transientErr, 5)

	runs := 0
	err := s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		runs++
		return nil
	})
	assert.Error(t, err)
	assert.Equal(t, 2, runs)
}

func TestFindScheduledNear(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	agent := utils.NewSixID()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	add := func(start, end time.Time, status models.EventStatus) *models.CalendarEvent {
		ev := &models.CalendarEvent{ID: utils.NewSixID(), AgentID: agent, StartTime: start, EndTime: end, Status: status}
		require.NoError(t, s.Reader().Events().Insert(ctx, ev))
		return ev
	}
	overlapping := add(base, base.Add(time.Hour), models.EventScheduled)
	add(base, base.Add(time.Hour), models.EventCancelled)
	add(base.Add(5*time.Hour), base.Add(6*time.Hour), models.EventScheduled)

	near, err := s.Reader().Events().FindScheduledNear(ctx, agent, base.Add(30*time.Minute), base.Add(2*time.Hour), nil)
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.Equal(t, overlapping.ID, near[0].ID)

	near, err = s.Reader().Events().FindScheduledNear(ctx, agent, base.Add(30*time.Minute), base.Add(2*time.Hour), &overlapping.ID)
	require.NoError(t, err)
	assert.Empty(t, near)
}

func TestHistoryNewestFirst(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	inquiryID := utils.NewSixID()
	now := time.Now()

	require.NoError(t, s.Reader().History().Append(ctx,
		&models.InquiryStatusHistory{ID: utils.NewSixID(), InquiryID: inquiryID, NewStatus: models.InquiryContacted, CreatedAt: now},
		&models.InquiryStatusHistory{ID: utils.NewSixID(), InquiryID: utils.NewSixID(), NewStatus: models.InquiryContacted, CreatedAt: now},
	))
	require.NoError(t, s.Reader().History().Append(ctx,
		&models.InquiryStatusHistory{ID: utils.NewSixID(), InquiryID: inquiryID, NewStatus: models.InquiryNegotiating, CreatedAt: now},
	))

	entries, err := s.Reader().History().ListByInquiry(ctx, inquiryID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.InquiryNegotiating, entries[0].NewStatus)
	assert.Equal(t, models.InquiryContacted, entries[1].NewStatus)
}

func TestDeleteReportsExistence(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	ev := &models.CalendarEvent{ID: utils.NewSixID()}
	require.NoError(t, s.Reader().Events().Insert(ctx, ev))

	existed, err := s.Reader().Events().Delete(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.Reader().Events().Delete(ctx, ev.ID)
	require.NoError(t, err)
	assert.False(t, existed)
}
