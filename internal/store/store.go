// Package store defines the persistence boundary of the reservation engine.
//
// Every mutation runs inside Store.RunInTx. The Tx handed to the callback is the
// transactional boundary: all repositories obtained from it read and write within the
// same atomic unit, and the lock methods serialize concurrent transactions that target
// the same property or the same agent's calendar.
package store

import (
	"context"
	"errors"
	"time"

	"greendrake/realty/internal/models"
	"greendrake/realty/internal/utils"
)

// ErrNotFound is returned by repositories when the requested document does not exist.
var ErrNotFound = errors.New("store: not found")

// TxFunc is a unit of work executed atomically.
type TxFunc func(ctx context.Context, tx Tx) error

// Store opens transactions and serves read-only queries outside of them.
type Store interface {
	// RunInTx executes fn atomically. Transient storage failures are retried a bounded
	// number of times; fn must therefore be safe to run more than once.
	RunInTx(ctx context.Context, fn TxFunc) error
	// Reader returns repositories for non-transactional reads.
	Reader() Tx
	Close(ctx context.Context) error
}

// Tx groups the repositories bound to one transaction.
type Tx interface {
	Properties() PropertyRepository
	Inquiries() InquiryRepository
	History() HistoryRepository
	Events() EventRepository
}

// PropertyFilter narrows ListProperties. Zero values are ignored.
type PropertyFilter struct {
	Status   models.PropertyStatus
	Type     models.PropertyType
	MinPrice *float64
	MaxPrice *float64
	Location string // case-insensitive substring
}

// PropertyRepository persists properties.
type PropertyRepository interface {
	Insert(ctx context.Context, p *models.Property) error
	FindByID(ctx context.Context, id utils.SixID) (*models.Property, error)
	// Lock reads the property and takes its row lock for the rest of the transaction.
	Lock(ctx context.Context, id utils.SixID) (*models.Property, error)
	Update(ctx context.Context, p *models.Property) error
	List(ctx context.Context, filter PropertyFilter) ([]models.Property, error)
	// FindExpiredReservations returns the IDs of deposit reservations whose expiry is before now.
	FindExpiredReservations(ctx context.Context, now time.Time) ([]utils.SixID, error)
}

// InquiryFilter narrows ListInquiries. Zero values are ignored.
type InquiryFilter struct {
	Status     models.InquiryStatus
	PropertyID *utils.SixID
	AssignedTo *utils.SixID
}

// InquiryRepository persists inquiries.
type InquiryRepository interface {
	Insert(ctx context.Context, inq *models.Inquiry) error
	FindByID(ctx context.Context, id utils.SixID) (*models.Inquiry, error)
	Update(ctx context.Context, inq *models.Inquiry) error
	List(ctx context.Context, filter InquiryFilter) ([]models.Inquiry, error)
	// FindActiveDuplicate returns the newest non-cancelled, non-expired inquiry on the property
	// from a client matching email OR phone, or nil when there is none.
	FindActiveDuplicate(ctx context.Context, propertyID utils.SixID, email, phone string) (*models.Inquiry, error)
	// FindOpenSiblings returns the property's inquiries other than excludeID whose status is
	// not sold, cancelled or expired.
	FindOpenSiblings(ctx context.Context, propertyID, excludeID utils.SixID) ([]models.Inquiry, error)
	// SetStatusMany flips the status of the given inquiries in one write.
	SetStatusMany(ctx context.Context, ids []utils.SixID, status models.InquiryStatus, now time.Time) error
}

// HistoryRepository is the append-only status ledger.
type HistoryRepository interface {
	Append(ctx context.Context, entries ...*models.InquiryStatusHistory) error
	// ListByInquiry returns entries newest first.
	ListByInquiry(ctx context.Context, inquiryID utils.SixID) ([]models.InquiryStatusHistory, error)
}

// EventFilter narrows ListEvents. Zero values are ignored.
type EventFilter struct {
	AgentID *utils.SixID
	From    *time.Time // start_time >= From
	To      *time.Time // end_time <= To
	Status  models.EventStatus
	Type    models.EventType
}

// EventRepository persists calendar events.
type EventRepository interface {
	Insert(ctx context.Context, ev *models.CalendarEvent) error
	FindByID(ctx context.Context, id utils.SixID) (*models.CalendarEvent, error)
	Update(ctx context.Context, ev *models.CalendarEvent) error
	// Delete removes the event and reports whether it existed.
	Delete(ctx context.Context, id utils.SixID) (bool, error)
	List(ctx context.Context, filter EventFilter) ([]models.CalendarEvent, error)
	// FindScheduledNear returns the agent's scheduled events that start before windowEnd and
	// end after windowStart, or start inside [windowStart, windowEnd), excluding excludeID.
	FindScheduledNear(ctx context.Context, agentID utils.SixID, windowStart, windowEnd time.Time, excludeID *utils.SixID) ([]models.CalendarEvent, error)
	// LockAgent takes the agent's calendar lock for the rest of the transaction.
	LockAgent(ctx context.Context, agentID utils.SixID) error
}
