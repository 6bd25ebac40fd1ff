package models

import (
	"time"

	"greendrake/realty/internal/utils"
)

// InquiryStatus is a step in the inquiry lifecycle.
type InquiryStatus string

const (
	InquiryNew               InquiryStatus = "new"
	InquiryContacted         InquiryStatus = "contacted"
	InquiryViewingScheduled  InquiryStatus = "viewing_scheduled"
	InquiryViewingCompleted  InquiryStatus = "viewing_completed"
	InquiryNegotiating       InquiryStatus = "negotiating"
	InquiryDepositPaid       InquiryStatus = "deposit_paid"
	InquiryReserved          InquiryStatus = "reserved"
	InquiryPaymentProcessing InquiryStatus = "payment_processing"
	InquirySold              InquiryStatus = "sold"
	InquiryCancelled         InquiryStatus = "cancelled"
	InquiryExpired           InquiryStatus = "expired"
)

// InquiryStatuses lists every known status in lifecycle order.
var InquiryStatuses = []InquiryStatus{
	InquiryNew,
	InquiryContacted,
	InquiryViewingScheduled,
	InquiryViewingCompleted,
	InquiryNegotiating,
	InquiryDepositPaid,
	InquiryReserved,
	InquiryPaymentProcessing,
	InquirySold,
	InquiryCancelled,
	InquiryExpired,
}

// Valid reports whether s is a known status.
func (s InquiryStatus) Valid() bool {
	for _, known := range InquiryStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends the lifecycle.
func (s InquiryStatus) Terminal() bool {
	return s == InquirySold || s == InquiryCancelled || s == InquiryExpired
}

// Active reports whether an inquiry in this status blocks a duplicate submission.
// Sold inquiries still block; only cancelled and expired ones free the client to re-enquire.
func (s InquiryStatus) Active() bool {
	return s != InquiryCancelled && s != InquiryExpired
}

// Client holds the buyer's contact details.
type Client struct {
	Name  string `bson:"client_name" json:"client_name"`
	Email string `bson:"client_email" json:"client_email"`
	Phone string `bson:"client_phone" json:"client_phone"`
}

// Inquiry is a buyer's recorded interest in exactly one property.
type Inquiry struct {
	ID               utils.SixID `bson:"_id" json:"id"`
	PropertyID       utils.SixID `bson:"property_id" json:"property_id"`
	Client           `bson:",inline"`
	Message          string        `bson:"message,omitempty" json:"message,omitempty"`
	Status           InquiryStatus `bson:"status" json:"status"`
	AssignedTo       *utils.SixID  `bson:"assigned_to,omitempty" json:"assigned_to,omitempty"`
	CommissionAmount *float64      `bson:"commission_amount,omitempty" json:"commission_amount,omitempty"`
	CommissionLocked bool          `bson:"commission_locked" json:"commission_locked"` // Never reset once true
	Notes            string        `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt        time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `bson:"updated_at" json:"updated_at"`
}

// InquiryStatusHistory is an append-only audit entry, one per status transition.
type InquiryStatusHistory struct {
	ID        utils.SixID   `bson:"_id" json:"id"`
	InquiryID utils.SixID   `bson:"inquiry_id" json:"inquiry_id"`
	OldStatus InquiryStatus `bson:"old_status" json:"old_status"`
	NewStatus InquiryStatus `bson:"new_status" json:"new_status"`
	ChangedBy *utils.SixID  `bson:"changed_by,omitempty" json:"changed_by,omitempty"` // nil for system transitions
	Notes     string        `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt time.Time     `bson:"created_at" json:"created_at"`
}
