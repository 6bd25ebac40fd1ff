package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"greendrake/realty/internal/config"
	"greendrake/realty/internal/models"
	"greendrake/realty/internal/notify"
	"greendrake/realty/internal/store/memstore"
	"greendrake/realty/internal/utils"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recordingSink keeps every published event.
type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *recordingSink) Publish(_ context.Context, ev notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Kinds() []notify.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]notify.Kind, len(s.events))
	for i, ev := range s.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

func (s *recordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

type testEnv struct {
	cfg        *config.Config
	store      *memstore.Store
	clock      *fakeClock
	sink       *recordingSink
	properties *propertyService
	inquiries  *inquiryService
	calendar   *calendarService
	expiry     *expiryService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Default()
	st := memstore.New(cfg.TxMaxRetries)
	clock := newFakeClock(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	sink := &recordingSink{}
	notifier := notify.NewNotifier(sink)

	env := &testEnv{
		cfg:        cfg,
		store:      st,
		clock:      clock,
		sink:       sink,
		properties: NewPropertyService(st, cfg, notifier).(*propertyService),
		inquiries:  NewInquiryService(st, cfg, notifier).(*inquiryService),
		calendar:   NewCalendarService(st, cfg, notifier).(*calendarService),
		expiry:     NewExpiryService(st, cfg, notifier).(*expiryService),
	}
	env.properties.now = clock.Now
	env.inquiries.now = clock.Now
	env.calendar.now = clock.Now
	env.expiry.now = clock.Now
	return env
}

func (e *testEnv) createProperty(t *testing.T) *models.Property {
	t.Helper()
	p, err := e.properties.CreateProperty(context.Background(), PropertyInput{
		Title:    "3BR house in Antipolo",
		Type:     models.PropertyTypeHouse,
		Price:    5200000,
		Location: "Antipolo, Rizal",
	})
	require.NoError(t, err)
	return p
}

func (e *testEnv) createInquiry(t *testing.T, propertyID utils.SixID, email, phone string) *models.Inquiry {
	t.Helper()
	inq, err := e.inquiries.CreateInquiry(context.Background(), propertyID, models.Client{
		Name:  "Maria Santos",
		Email: email,
		Phone: phone,
	}, "Is this still available?")
	require.NoError(t, err)
	return inq
}

func (e *testEnv) setStatus(t *testing.T, inquiryID utils.SixID, status models.InquiryStatus, actor utils.SixID) *models.Inquiry {
	t.Helper()
	inq, err := e.inquiries.UpdateInquiryStatus(context.Background(), inquiryID, StatusChange{Status: status, ActorID: actor})
	require.NoError(t, err)
	return inq
}

func (e *testEnv) mustGetInquiry(t *testing.T, id utils.SixID) *models.Inquiry {
	t.Helper()
	inq, err := e.inquiries.GetInquiry(context.Background(), id)
	require.NoError(t, err)
	return inq
}

func (e *testEnv) mustGetProperty(t *testing.T, id utils.SixID) *models.Property {
	t.Helper()
	p, err := e.properties.GetProperty(context.Background(), id)
	require.NoError(t, err)
	return p
}
