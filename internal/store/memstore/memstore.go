// Package memstore is an in-process store.Store used by tests and single-instance development.
//
// One mutex serializes every transaction, and a failed transaction restores the snapshot taken
// when it started. This only serializes callers inside one process; multi-instance deployments
// use mongostore.
package memstore

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"greendrake/realty/internal/db"
	"greendrake/realty/internal/models"
	"greendrake/realty/internal/store"
	"greendrake/realty/internal/utils"
)

type dataset struct {
	properties map[utils.SixID]models.Property
	inquiries  map[utils.SixID]models.Inquiry
	history    []models.InquiryStatusHistory
	events     map[utils.SixID]models.CalendarEvent
}

func newDataset() *dataset {
	return &dataset{
		properties: map[utils.SixID]models.Property{},
		inquiries:  map[utils.SixID]models.Inquiry{},
		events:     map[utils.SixID]models.CalendarEvent{},
	}
}

func (d *dataset) clone() *dataset {
	c := &dataset{
		properties: make(map[utils.SixID]models.Property, len(d.properties)),
		inquiries:  make(map[utils.SixID]models.Inquiry, len(d.inquiries)),
		history:    append([]models.InquiryStatusHistory(nil), d.history...),
		events:     make(map[utils.SixID]models.CalendarEvent, len(d.events)),
	}
	for k, v := range d.properties {
		c.properties[k] = v
	}
	for k, v := range d.inquiries {
		c.inquiries[k] = v
	}
	for k, v := range d.events {
		c.events[k] = v
	}
	return c
}

// Store is an in-memory store.Store.
type Store struct {
	mu         sync.Mutex
	data       *dataset
	maxRetries int

	faultMu    sync.Mutex
	fault      error
	faultCount int
}

// New creates an empty store. maxRetries bounds re-runs of transiently failed transactions.
func New(maxRetries int) *Store {
	if maxRetries < 0 {
		maxRetries = db.DefaultMaxRetries
	}
	return &Store{data: newDataset(), maxRetries: maxRetries}
}

// InjectFault makes the next n transactions fail with err after fn ran, as if the commit had
// been rejected. Their writes are rolled back.
func (s *Store) InjectFault(err error, n int) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.fault, s.faultCount = err, n
}

func (s *Store) takeFault() error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if s.faultCount == 0 {
		return nil
	}
	s.faultCount--
	return s.fault
}

func (s *Store) RunInTx(ctx context.Context, fn store.TxFunc) error {
	return db.WithRetries(func() error {
		return s.runOnce(ctx, fn)
	}, s.maxRetries, db.IsRetryableStoreError)
}

func (s *Store) runOnce(ctx context.Context, fn store.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	err := fn(ctx, &view{s: s, inTx: true})
	if err == nil {
		err = s.takeFault()
		if err != nil {
			log.Printf("memstore: injected fault: %v", err)
		}
	}
	if err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *Store) Reader() store.Tx {
	return &view{s: s}
}

func (s *Store) Close(_ context.Context) error {
	return nil
}

// view implements store.Tx and every repository. Inside a transaction the store mutex is
// already held; outside, each call takes it.
type view struct {
	s    *Store
	inTx bool
}

func (v *view) do(fn func(d *dataset) error) error {
	if !v.inTx {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	return fn(v.s.data)
}

func (v *view) Properties() store.PropertyRepository { return propertyRepo{v} }
func (v *view) Inquiries() store.InquiryRepository   { return inquiryRepo{v} }
func (v *view) History() store.HistoryRepository     { return historyRepo{v} }
func (v *view) Events() store.EventRepository        { return eventRepo{v} }

// --- Properties ---

type propertyRepo struct{ v *view }

func (r propertyRepo) Insert(_ context.Context, p *models.Property) error {
	return r.v.do(func(d *dataset) error {
		d.properties[p.ID] = *p
		return nil
	})
}

func (r propertyRepo) FindByID(_ context.Context, id utils.SixID) (*models.Property, error) {
	var out *models.Property
	err := r.v.do(func(d *dataset) error {
		p, ok := d.properties[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r propertyRepo) Lock(ctx context.Context, id utils.SixID) (*models.Property, error) {
	return r.FindByID(ctx, id)
}

func (r propertyRepo) Update(_ context.Context, p *models.Property) error {
	return r.v.do(func(d *dataset) error {
		if _, ok := d.properties[p.ID]; !ok {
			return store.ErrNotFound
		}
		d.properties[p.ID] = *p
		return nil
	})
}

func (r propertyRepo) List(_ context.Context, filter store.PropertyFilter) ([]models.Property, error) {
	out := []models.Property{}
	err := r.v.do(func(d *dataset) error {
		location := strings.ToLower(filter.Location)
		for _, p := range d.properties {
			if filter.Status != "" && p.Status != filter.Status {
				continue
			}
			if filter.Type != "" && p.Type != filter.Type {
				continue
			}
			if filter.MinPrice != nil && p.Price < *filter.MinPrice {
				continue
			}
			if filter.MaxPrice != nil && p.Price > *filter.MaxPrice {
				continue
			}
			if location != "" && !strings.Contains(strings.ToLower(p.Location), location) {
				continue
			}
			out = append(out, p)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, err
}

func (r propertyRepo) FindExpiredReservations(_ context.Context, now time.Time) ([]utils.SixID, error) {
	var expired []models.Property
	err := r.v.do(func(d *dataset) error {
		for _, p := range d.properties {
			if p.ReservationExpired(now) {
				expired = append(expired, p)
			}
		}
		return nil
	})
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ReservationExpiry.Before(*expired[j].ReservationExpiry)
	})
	ids := make([]utils.SixID, 0, len(expired))
	for _, p := range expired {
		ids = append(ids, p.ID)
	}
	return ids, err
}

// --- Inquiries ---

type inquiryRepo struct{ v *view }

func (r inquiryRepo) Insert(_ context.Context, inq *models.Inquiry) error {
	return r.v.do(func(d *dataset) error {
		d.inquiries[inq.ID] = *inq
		return nil
	})
}

func (r inquiryRepo) FindByID(_ context.Context, id utils.SixID) (*models.Inquiry, error) {
	var out *models.Inquiry
	err := r.v.do(func(d *dataset) error {
		inq, ok := d.inquiries[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &inq
		return nil
	})
	return out, err
}

func (r inquiryRepo) Update(_ context.Context, inq *models.Inquiry) error {
	return r.v.do(func(d *dataset) error {
		if _, ok := d.inquiries[inq.ID]; !ok {
			return store.ErrNotFound
		}
		d.inquiries[inq.ID] = *inq
		return nil
	})
}

func (r inquiryRepo) List(_ context.Context, filter store.InquiryFilter) ([]models.Inquiry, error) {
	out := r.collect(func(inq models.Inquiry) bool {
		if filter.Status != "" && inq.Status != filter.Status {
			return false
		}
		if filter.PropertyID != nil && inq.PropertyID != *filter.PropertyID {
			return false
		}
		if filter.AssignedTo != nil && (inq.AssignedTo == nil || *inq.AssignedTo != *filter.AssignedTo) {
			return false
		}
		return true
	})
	return out, nil
}

func (r inquiryRepo) FindActiveDuplicate(_ context.Context, propertyID utils.SixID, email, phone string) (*models.Inquiry, error) {
	if email == "" && phone == "" {
		return nil, nil
	}
	matches := r.collect(func(inq models.Inquiry) bool {
		if inq.PropertyID != propertyID || !inq.Status.Active() {
			return false
		}
		return (email != "" && inq.Email == email) || (phone != "" && inq.Phone == phone)
	})
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

func (r inquiryRepo) FindOpenSiblings(_ context.Context, propertyID, excludeID utils.SixID) ([]models.Inquiry, error) {
	return r.collect(func(inq models.Inquiry) bool {
		return inq.PropertyID == propertyID && inq.ID != excludeID && !inq.Status.Terminal()
	}), nil
}

func (r inquiryRepo) SetStatusMany(_ context.Context, ids []utils.SixID, status models.InquiryStatus, now time.Time) error {
	return r.v.do(func(d *dataset) error {
		for _, id := range ids {
			inq, ok := d.inquiries[id]
			if !ok {
				continue
			}
			inq.Status = status
			inq.UpdatedAt = now
			d.inquiries[id] = inq
		}
		return nil
	})
}

// collect returns matching inquiries, newest first.
func (r inquiryRepo) collect(match func(models.Inquiry) bool) []models.Inquiry {
	out := []models.Inquiry{}
	_ = r.v.do(func(d *dataset) error {
		for _, inq := range d.inquiries {
			if match(inq) {
				out = append(out, inq)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out
}

// --- History ---

type historyRepo struct{ v *view }

func (r historyRepo) Append(_ context.Context, entries ...*models.InquiryStatusHistory) error {
	return r.v.do(func(d *dataset) error {
		for _, e := range entries {
			d.history = append(d.history, *e)
		}
		return nil
	})
}

func (r historyRepo) ListByInquiry(_ context.Context, inquiryID utils.SixID) ([]models.InquiryStatusHistory, error) {
	out := []models.InquiryStatusHistory{}
	err := r.v.do(func(d *dataset) error {
		for i := len(d.history) - 1; i >= 0; i-- {
			if d.history[i].InquiryID == inquiryID {
				out = append(out, d.history[i])
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, err
}

// --- Calendar events ---

type eventRepo struct{ v *view }

func (r eventRepo) Insert(_ context.Context, ev *models.CalendarEvent) error {
	return r.v.do(func(d *dataset) error {
		d.events[ev.ID] = *ev
		return nil
	})
}

func (r eventRepo) FindByID(_ context.Context, id utils.SixID) (*models.CalendarEvent, error) {
	var out *models.CalendarEvent
	err := r.v.do(func(d *dataset) error {
		ev, ok := d.events[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &ev
		return nil
	})
	return out, err
}

func (r eventRepo) Update(_ context.Context, ev *models.CalendarEvent) error {
	return r.v.do(func(d *dataset) error {
		if _, ok := d.events[ev.ID]; !ok {
			return store.ErrNotFound
		}
		d.events[ev.ID] = *ev
		return nil
	})
}

func (r eventRepo) Delete(_ context.Context, id utils.SixID) (bool, error) {
	var existed bool
	err := r.v.do(func(d *dataset) error {
		_, existed = d.events[id]
		delete(d.events, id)
		return nil
	})
	return existed, err
}

func (r eventRepo) List(_ context.Context, filter store.EventFilter) ([]models.CalendarEvent, error) {
	return r.collect(func(ev models.CalendarEvent) bool {
		if filter.AgentID != nil && ev.AgentID != *filter.AgentID {
			return false
		}
		if filter.From != nil && ev.StartTime.Before(*filter.From) {
			return false
		}
		if filter.To != nil && ev.EndTime.After(*filter.To) {
			return false
		}
		if filter.Status != "" && ev.Status != filter.Status {
			return false
		}
		if filter.Type != "" && ev.Type != filter.Type {
			return false
		}
		return true
	}), nil
}

func (r eventRepo) FindScheduledNear(_ context.Context, agentID utils.SixID, windowStart, windowEnd time.Time, excludeID *utils.SixID) ([]models.CalendarEvent, error) {
	return r.collect(func(ev models.CalendarEvent) bool {
		if ev.AgentID != agentID || ev.Status != models.EventScheduled {
			return false
		}
		if excludeID != nil && ev.ID == *excludeID {
			return false
		}
		overlaps := ev.StartTime.Before(windowEnd) && ev.EndTime.After(windowStart)
		startsInside := !ev.StartTime.Before(windowStart) && ev.StartTime.Before(windowEnd)
		return overlaps || startsInside
	}), nil
}

// LockAgent is a no-op: the store mutex already serializes transactions.
func (r eventRepo) LockAgent(_ context.Context, _ utils.SixID) error {
	return nil
}

// collect returns matching events ordered by start time.
func (r eventRepo) collect(match func(models.CalendarEvent) bool) []models.CalendarEvent {
	out := []models.CalendarEvent{}
	_ = r.v.do(func(d *dataset) error {
		for _, ev := range d.events {
			if match(ev) {
				out = append(out, ev)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func newerFirst(a, b time.Time, aID, bID utils.SixID) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return aID.String() < bID.String()
}
