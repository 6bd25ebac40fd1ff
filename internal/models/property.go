package models

import (
	"time"

	"greendrake/realty/internal/utils"
)

// PropertyType classifies a listing.
type PropertyType string

const (
	PropertyTypeHouse      PropertyType = "house"
	PropertyTypeCondo      PropertyType = "condo"
	PropertyTypeTownhouse  PropertyType = "townhouse"
	PropertyTypeLot        PropertyType = "lot"
	PropertyTypeCommercial PropertyType = "commercial"
)

// PropertyStatus is the availability of a listing.
type PropertyStatus string

const (
	PropertyStatusAvailable PropertyStatus = "available"
	PropertyStatusReserved  PropertyStatus = "reserved"
	PropertyStatusSold      PropertyStatus = "sold"
	PropertyStatusArchived  PropertyStatus = "archived"
)

// ReservationType records how a property was committed to its winning inquiry.
type ReservationType string

const (
	ReservationNone        ReservationType = "none"
	ReservationDeposit     ReservationType = "deposit"
	ReservationFullPayment ReservationType = "full_payment"
)

// Property represents a real-estate listing.
// Status reserved or sold implies ReservedByInquiryID is set; ReservationExpiry is only
// set for deposit reservations.
type Property struct {
	ID                  utils.SixID     `bson:"_id" json:"id"`
	Title               string          `bson:"title" json:"title"`
	Description         string          `bson:"description,omitempty" json:"description,omitempty"`
	Type                PropertyType    `bson:"property_type" json:"property_type"`
	Status              PropertyStatus  `bson:"status" json:"status"`
	Price               float64         `bson:"price" json:"price"`
	Location            string          `bson:"location" json:"location"`
	Address             string          `bson:"address,omitempty" json:"address,omitempty"`
	Bedrooms            *int            `bson:"bedrooms,omitempty" json:"bedrooms,omitempty"`
	Bathrooms           *int            `bson:"bathrooms,omitempty" json:"bathrooms,omitempty"`
	FloorArea           *float64        `bson:"floor_area,omitempty" json:"floor_area,omitempty"`
	LotArea             *float64        `bson:"lot_area,omitempty" json:"lot_area,omitempty"`
	Features            []string        `bson:"features" json:"features"`
	AgentID             *utils.SixID    `bson:"agent_id,omitempty" json:"agent_id,omitempty"` // Listing agent
	ReservationType     ReservationType `bson:"reservation_type" json:"reservation_type"`
	ReservationDate     *time.Time      `bson:"reservation_date,omitempty" json:"reservation_date,omitempty"`
	ReservationExpiry   *time.Time      `bson:"reservation_expiry,omitempty" json:"reservation_expiry,omitempty"`
	ReservedByInquiryID *utils.SixID    `bson:"reserved_by_inquiry_id,omitempty" json:"reserved_by_inquiry_id,omitempty"`
	CreatedAt           time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `bson:"updated_at" json:"updated_at"`
}

// ClearReservation returns the property to the open market.
func (p *Property) ClearReservation() {
	p.Status = PropertyStatusAvailable
	p.ReservationType = ReservationNone
	p.ReservationDate = nil
	p.ReservationExpiry = nil
	p.ReservedByInquiryID = nil
}

// ReservationExpired reports whether a deposit hold has lapsed at the given instant.
func (p *Property) ReservationExpired(now time.Time) bool {
	return p.Status == PropertyStatusReserved &&
		p.ReservationType == ReservationDeposit &&
		p.ReservationExpiry != nil &&
		p.ReservationExpiry.Before(now)
}
